package hwwire

import (
	"bytes"
	"io"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

// emptyMessage is embedded by messages without fields. An empty TLV stream
// is zero bytes long.
type emptyMessage struct{}

// Encode writes nothing.
func (emptyMessage) Encode(*bytes.Buffer) error {
	return nil
}

// Decode accepts an empty stream and ignores unknown odd records.
func (emptyMessage) Decode(r io.Reader) error {
	_, err := decodeRecords(r)
	return err
}

// Initialize resets the device session.
type Initialize struct{ emptyMessage }

// MsgType returns the message type.
func (*Initialize) MsgType() MessageType { return MsgInitialize }

// Cancel aborts the pending operation.
type Cancel struct{ emptyMessage }

// MsgType returns the message type.
func (*Cancel) MsgType() MessageType { return MsgCancel }

// GetFeatures asks for the device features.
type GetFeatures struct{ emptyMessage }

// MsgType returns the message type.
func (*GetFeatures) MsgType() MessageType { return MsgGetFeatures }

// WipeDevice erases the device.
type WipeDevice struct{ emptyMessage }

// MsgType returns the message type.
func (*WipeDevice) MsgType() MessageType { return MsgWipeDevice }

// BackupDevice shows the mnemonic for backup.
type BackupDevice struct{ emptyMessage }

// MsgType returns the message type.
func (*BackupDevice) MsgType() MessageType { return MsgBackupDevice }

// EntropyRequest asks the host for entropy.
type EntropyRequest struct{ emptyMessage }

// MsgType returns the message type.
func (*EntropyRequest) MsgType() MessageType { return MsgEntropyRequest }

// PassphraseRequest asks the host for the passphrase.
type PassphraseRequest struct{ emptyMessage }

// MsgType returns the message type.
func (*PassphraseRequest) MsgType() MessageType { return MsgPassphraseRequest }

// ButtonAck tells the device the host is waiting for the button.
type ButtonAck struct{ emptyMessage }

// MsgType returns the message type.
func (*ButtonAck) MsgType() MessageType { return MsgButtonAck }

// Success reports a completed request.
type Success struct {
	Message string
}

// MsgType returns the message type.
func (*Success) MsgType() MessageType { return MsgSuccess }

// Encode writes the payload.
func (m *Success) Encode(w *bytes.Buffer) error {
	msg := []byte(m.Message)
	return encodeRecords(w, primitive(0, &msg))
}

// Decode reads the payload.
func (m *Success) Decode(r io.Reader) error {
	var msg []byte
	if _, err := decodeRecords(r, primitive(0, &msg)); err != nil {
		return err
	}
	m.Message = string(msg)

	return nil
}

// Failure reports a failed request.
type Failure struct {
	Code    uint16
	Message string
}

// MsgType returns the message type.
func (*Failure) MsgType() MessageType { return MsgFailure }

// Encode writes the payload.
func (m *Failure) Encode(w *bytes.Buffer) error {
	msg := []byte(m.Message)
	return encodeRecords(w, primitive(0, &m.Code), primitive(2, &msg))
}

// Decode reads the payload.
func (m *Failure) Decode(r io.Reader) error {
	var msg []byte
	_, err := decodeRecords(r, primitive(0, &m.Code), primitive(2, &msg))
	if err != nil {
		return err
	}
	m.Message = string(msg)

	return nil
}

// Ping asks the device to echo a message after the requested protections.
type Ping struct {
	Message              string
	ButtonProtection     bool
	PinProtection        bool
	PassphraseProtection bool
}

// MsgType returns the message type.
func (*Ping) MsgType() MessageType { return MsgPing }

func (m *Ping) records(msg *[]byte) []tlv.Record {
	return []tlv.Record{
		primitive(0, msg),
		primitive(2, &m.ButtonProtection),
		primitive(4, &m.PinProtection),
		primitive(6, &m.PassphraseProtection),
	}
}

// Encode writes the payload.
func (m *Ping) Encode(w *bytes.Buffer) error {
	msg := []byte(m.Message)
	return encodeRecords(w, m.records(&msg)...)
}

// Decode reads the payload.
func (m *Ping) Decode(r io.Reader) error {
	var msg []byte
	if _, err := decodeRecords(r, m.records(&msg)...); err != nil {
		return err
	}
	m.Message = string(msg)

	return nil
}

// Features describes the device.
type Features struct {
	Vendor               string
	Version              string
	Model                string
	DeviceID             string
	Label                string
	Language             string
	Initialized          bool
	PinProtection        bool
	PassphraseProtection bool
	PinCached            bool
	PassphraseCached     bool
	NeedsBackup          bool
	Emulator             bool
}

// MsgType returns the message type.
func (*Features) MsgType() MessageType { return MsgFeatures }

// featureStrings holds the byte form of the string fields while coding.
type featureStrings struct {
	vendor, version, model, deviceID, label, language []byte
}

func (m *Features) records(s *featureStrings) []tlv.Record {
	return []tlv.Record{
		primitive(0, &s.vendor),
		primitive(2, &s.version),
		primitive(4, &s.model),
		primitive(6, &s.deviceID),
		primitive(8, &s.label),
		primitive(10, &s.language),
		primitive(12, &m.Initialized),
		primitive(14, &m.PinProtection),
		primitive(16, &m.PassphraseProtection),
		primitive(18, &m.PinCached),
		primitive(20, &m.PassphraseCached),
		primitive(22, &m.NeedsBackup),
		primitive(24, &m.Emulator),
	}
}

// Encode writes the payload.
func (m *Features) Encode(w *bytes.Buffer) error {
	s := featureStrings{
		vendor:   []byte(m.Vendor),
		version:  []byte(m.Version),
		model:    []byte(m.Model),
		deviceID: []byte(m.DeviceID),
		label:    []byte(m.Label),
		language: []byte(m.Language),
	}

	return encodeRecords(w, m.records(&s)...)
}

// Decode reads the payload.
func (m *Features) Decode(r io.Reader) error {
	var s featureStrings
	if _, err := decodeRecords(r, m.records(&s)...); err != nil {
		return err
	}

	m.Vendor = string(s.vendor)
	m.Version = string(s.version)
	m.Model = string(s.model)
	m.DeviceID = string(s.deviceID)
	m.Label = string(s.label)
	m.Language = string(s.language)

	return nil
}

// GenerateMnemonic asks the device to create a mnemonic.
type GenerateMnemonic struct {
	WordCount            fn.Option[uint32]
	PassphraseProtection bool
}

// MsgType returns the message type.
func (*GenerateMnemonic) MsgType() MessageType { return MsgGenerateMnemonic }

// Encode writes the payload.
func (m *GenerateMnemonic) Encode(w *bytes.Buffer) error {
	records := []tlv.Record{primitive(0, &m.PassphraseProtection)}
	records = optionalRecord(records, 1, m.WordCount, primitive[uint32])

	return encodeRecords(w, records...)
}

// Decode reads the payload.
func (m *GenerateMnemonic) Decode(r io.Reader) error {
	var count uint32
	parsed, err := decodeRecords(
		r, primitive(0, &m.PassphraseProtection),
		primitive(1, &count),
	)
	if err != nil {
		return err
	}
	m.WordCount = optionFromParsed(parsed, 1, count)

	return nil
}

// SetMnemonic loads a mnemonic into the device.
type SetMnemonic struct {
	Mnemonic string
}

// MsgType returns the message type.
func (*SetMnemonic) MsgType() MessageType { return MsgSetMnemonic }

// Encode writes the payload.
func (m *SetMnemonic) Encode(w *bytes.Buffer) error {
	mnemonic := []byte(m.Mnemonic)
	return encodeRecords(w, primitive(0, &mnemonic))
}

// Decode reads the payload.
func (m *SetMnemonic) Decode(r io.Reader) error {
	var mnemonic []byte
	if _, err := decodeRecords(r, primitive(0, &mnemonic)); err != nil {
		return err
	}
	m.Mnemonic = string(mnemonic)

	return nil
}

// EntropyAck carries host entropy.
type EntropyAck struct {
	Entropy []byte
}

// MsgType returns the message type.
func (*EntropyAck) MsgType() MessageType { return MsgEntropyAck }

// Encode writes the payload.
func (m *EntropyAck) Encode(w *bytes.Buffer) error {
	return encodeRecords(w, primitive(0, &m.Entropy))
}

// Decode reads the payload.
func (m *EntropyAck) Decode(r io.Reader) error {
	_, err := decodeRecords(r, primitive(0, &m.Entropy))
	return err
}

// GetAddress asks for AddressN addresses starting at StartIndex.
type GetAddress struct {
	AddressN       uint32
	StartIndex     fn.Option[uint32]
	ConfirmAddress bool
}

// MsgType returns the message type.
func (*GetAddress) MsgType() MessageType { return MsgGetAddress }

// Encode writes the payload.
func (m *GetAddress) Encode(w *bytes.Buffer) error {
	records := []tlv.Record{
		primitive(0, &m.AddressN),
		primitive(2, &m.ConfirmAddress),
	}
	records = optionalRecord(records, 3, m.StartIndex, primitive[uint32])

	return encodeRecords(w, records...)
}

// Decode reads the payload.
func (m *GetAddress) Decode(r io.Reader) error {
	var start uint32
	parsed, err := decodeRecords(
		r, primitive(0, &m.AddressN), primitive(2, &m.ConfirmAddress),
		primitive(3, &start),
	)
	if err != nil {
		return err
	}
	m.StartIndex = optionFromParsed(parsed, 3, start)

	return nil
}

// ResponseAddress carries derived addresses.
type ResponseAddress struct {
	Addresses []string
}

// MsgType returns the message type.
func (*ResponseAddress) MsgType() MessageType { return MsgResponseAddress }

// Encode writes the payload.
func (m *ResponseAddress) Encode(w *bytes.Buffer) error {
	blob, err := encodeStrings(m.Addresses)
	if err != nil {
		return err
	}

	return encodeRecords(w, primitive(0, &blob))
}

// Decode reads the payload.
func (m *ResponseAddress) Decode(r io.Reader) error {
	var blob []byte
	if _, err := decodeRecords(r, primitive(0, &blob)); err != nil {
		return err
	}

	addrs, err := decodeStrings(blob)
	if err != nil {
		return err
	}
	m.Addresses = addrs

	return nil
}

// SignMessage asks the device to sign a message with the key at AddressN.
type SignMessage struct {
	AddressN uint32
	Message  string
}

// MsgType returns the message type.
func (*SignMessage) MsgType() MessageType { return MsgSignMessage }

// Encode writes the payload.
func (m *SignMessage) Encode(w *bytes.Buffer) error {
	msg := []byte(m.Message)
	return encodeRecords(w, primitive(0, &m.AddressN), primitive(2, &msg))
}

// Decode reads the payload.
func (m *SignMessage) Decode(r io.Reader) error {
	var msg []byte
	_, err := decodeRecords(
		r, primitive(0, &m.AddressN), primitive(2, &msg),
	)
	if err != nil {
		return err
	}
	m.Message = string(msg)

	return nil
}

// ResponseSignMessage carries a hex encoded signature.
type ResponseSignMessage struct {
	Signature string
}

// MsgType returns the message type.
func (*ResponseSignMessage) MsgType() MessageType {
	return MsgResponseSignMessage
}

// Encode writes the payload.
func (m *ResponseSignMessage) Encode(w *bytes.Buffer) error {
	sig := []byte(m.Signature)
	return encodeRecords(w, primitive(0, &sig))
}

// Decode reads the payload.
func (m *ResponseSignMessage) Decode(r io.Reader) error {
	var sig []byte
	if _, err := decodeRecords(r, primitive(0, &sig)); err != nil {
		return err
	}
	m.Signature = string(sig)

	return nil
}

// CheckMessageSignature asks the device to verify a signature.
type CheckMessageSignature struct {
	Address   string
	Message   string
	Signature string
}

// MsgType returns the message type.
func (*CheckMessageSignature) MsgType() MessageType {
	return MsgCheckMessageSignature
}

// Encode writes the payload.
func (m *CheckMessageSignature) Encode(w *bytes.Buffer) error {
	var (
		addr = []byte(m.Address)
		msg  = []byte(m.Message)
		sig  = []byte(m.Signature)
	)

	return encodeRecords(
		w, primitive(0, &addr), primitive(2, &msg), primitive(4, &sig),
	)
}

// Decode reads the payload.
func (m *CheckMessageSignature) Decode(r io.Reader) error {
	var addr, msg, sig []byte
	_, err := decodeRecords(
		r, primitive(0, &addr), primitive(2, &msg), primitive(4, &sig),
	)
	if err != nil {
		return err
	}

	m.Address = string(addr)
	m.Message = string(msg)
	m.Signature = string(sig)

	return nil
}

// ChangePin sets, changes or removes the PIN.
type ChangePin struct {
	Remove bool
}

// MsgType returns the message type.
func (*ChangePin) MsgType() MessageType { return MsgChangePin }

// Encode writes the payload.
func (m *ChangePin) Encode(w *bytes.Buffer) error {
	return encodeRecords(w, primitive(0, &m.Remove))
}

// Decode reads the payload.
func (m *ChangePin) Decode(r io.Reader) error {
	_, err := decodeRecords(r, primitive(0, &m.Remove))
	return err
}

// ApplySettings updates device settings. Unset fields are left alone.
type ApplySettings struct {
	Label         fn.Option[string]
	Language      fn.Option[string]
	UsePassphrase fn.Option[bool]
}

// MsgType returns the message type.
func (*ApplySettings) MsgType() MessageType { return MsgApplySettings }

// Encode writes the payload.
func (m *ApplySettings) Encode(w *bytes.Buffer) error {
	var records []tlv.Record
	records = optionalString(records, 1, m.Label)
	records = optionalString(records, 3, m.Language)
	records = optionalRecord(records, 5, m.UsePassphrase,
		primitive[bool])

	return encodeRecords(w, records...)
}

// Decode reads the payload.
func (m *ApplySettings) Decode(r io.Reader) error {
	var (
		label, language []byte
		usePassphrase   bool
	)
	parsed, err := decodeRecords(
		r, primitive(1, &label), primitive(3, &language),
		primitive(5, &usePassphrase),
	)
	if err != nil {
		return err
	}

	m.Label = optionFromParsed(parsed, 1, string(label))
	m.Language = optionFromParsed(parsed, 3, string(language))
	m.UsePassphrase = optionFromParsed(parsed, 5, usePassphrase)

	return nil
}

// PinMatrixRequest asks the host for a PIN.
type PinMatrixRequest struct {
	Type uint8
}

// MsgType returns the message type.
func (*PinMatrixRequest) MsgType() MessageType { return MsgPinMatrixRequest }

// Encode writes the payload.
func (m *PinMatrixRequest) Encode(w *bytes.Buffer) error {
	return encodeRecords(w, primitive(0, &m.Type))
}

// Decode reads the payload.
func (m *PinMatrixRequest) Decode(r io.Reader) error {
	_, err := decodeRecords(r, primitive(0, &m.Type))
	return err
}

// PinMatrixAck carries the PIN entered on the host.
type PinMatrixAck struct {
	Pin string
}

// MsgType returns the message type.
func (*PinMatrixAck) MsgType() MessageType { return MsgPinMatrixAck }

// Encode writes the payload.
func (m *PinMatrixAck) Encode(w *bytes.Buffer) error {
	pin := []byte(m.Pin)
	return encodeRecords(w, primitive(0, &pin))
}

// Decode reads the payload.
func (m *PinMatrixAck) Decode(r io.Reader) error {
	var pin []byte
	if _, err := decodeRecords(r, primitive(0, &pin)); err != nil {
		return err
	}
	m.Pin = string(pin)

	return nil
}

// PassphraseAck carries the passphrase entered on the host.
type PassphraseAck struct {
	Passphrase string
}

// MsgType returns the message type.
func (*PassphraseAck) MsgType() MessageType { return MsgPassphraseAck }

// Encode writes the payload.
func (m *PassphraseAck) Encode(w *bytes.Buffer) error {
	p := []byte(m.Passphrase)
	return encodeRecords(w, primitive(0, &p))
}

// Decode reads the payload.
func (m *PassphraseAck) Decode(r io.Reader) error {
	var p []byte
	if _, err := decodeRecords(r, primitive(0, &p)); err != nil {
		return err
	}
	m.Passphrase = string(p)

	return nil
}

// ButtonRequest asks the user to confirm Text on the device.
type ButtonRequest struct {
	Code uint8
	Text string
}

// MsgType returns the message type.
func (*ButtonRequest) MsgType() MessageType { return MsgButtonRequest }

// Encode writes the payload.
func (m *ButtonRequest) Encode(w *bytes.Buffer) error {
	text := []byte(m.Text)
	return encodeRecords(w, primitive(0, &m.Code), primitive(2, &text))
}

// Decode reads the payload.
func (m *ButtonRequest) Decode(r io.Reader) error {
	var text []byte
	_, err := decodeRecords(r, primitive(0, &m.Code), primitive(2, &text))
	if err != nil {
		return err
	}
	m.Text = string(text)

	return nil
}
