package hwwire

import (
	"bytes"
	"io"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

// WordRequest asks the host for the next recovery word.
type WordRequest struct{ emptyMessage }

// MsgType returns the message type.
func (*WordRequest) MsgType() MessageType { return MsgWordRequest }

// WordAck carries one recovery word.
type WordAck struct {
	Word string
}

// MsgType returns the message type.
func (*WordAck) MsgType() MessageType { return MsgWordAck }

// Encode writes the payload.
func (m *WordAck) Encode(w *bytes.Buffer) error {
	word := []byte(m.Word)
	return encodeRecords(w, primitive(0, &word))
}

// Decode reads the payload.
func (m *WordAck) Decode(r io.Reader) error {
	var word []byte
	if _, err := decodeRecords(r, primitive(0, &word)); err != nil {
		return err
	}
	m.Word = string(word)

	return nil
}

// GetRawEntropy asks for Size bytes straight from the device random source.
type GetRawEntropy struct {
	Size uint32
}

// MsgType returns the message type.
func (*GetRawEntropy) MsgType() MessageType { return MsgGetRawEntropy }

// Encode writes the payload.
func (m *GetRawEntropy) Encode(w *bytes.Buffer) error {
	return encodeRecords(w, primitive(0, &m.Size))
}

// Decode reads the payload.
func (m *GetRawEntropy) Decode(r io.Reader) error {
	_, err := decodeRecords(r, primitive(0, &m.Size))
	return err
}

// GetMixedEntropy asks for Size bytes of device randomness salted with the
// entropy pool.
type GetMixedEntropy struct {
	Size uint32
}

// MsgType returns the message type.
func (*GetMixedEntropy) MsgType() MessageType { return MsgGetMixedEntropy }

// Encode writes the payload.
func (m *GetMixedEntropy) Encode(w *bytes.Buffer) error {
	return encodeRecords(w, primitive(0, &m.Size))
}

// Decode reads the payload.
func (m *GetMixedEntropy) Decode(r io.Reader) error {
	_, err := decodeRecords(r, primitive(0, &m.Size))
	return err
}

// Entropy answers GetRawEntropy and GetMixedEntropy.
type Entropy struct {
	Entropy []byte
}

// MsgType returns the message type.
func (*Entropy) MsgType() MessageType { return MsgEntropy }

// Encode writes the payload.
func (m *Entropy) Encode(w *bytes.Buffer) error {
	return encodeRecords(w, primitive(0, &m.Entropy))
}

// Decode reads the payload.
func (m *Entropy) Decode(r io.Reader) error {
	_, err := decodeRecords(r, primitive(0, &m.Entropy))
	return err
}

// optionalString appends a string record when o is set.
func optionalString(records []tlv.Record, typ tlv.Type,
	o fn.Option[string]) []tlv.Record {

	toBytes := fn.MapOption(func(s string) []byte {
		return []byte(s)
	})

	return optionalRecord(records, typ, toBytes(o), primitive[[]byte])
}

// LoadDevice stores a mnemonic together with the device settings.
type LoadDevice struct {
	Mnemonic             string
	Pin                  fn.Option[string]
	PassphraseProtection bool
	Label                fn.Option[string]
	SkipChecksum         bool
}

// MsgType returns the message type.
func (*LoadDevice) MsgType() MessageType { return MsgLoadDevice }

// Encode writes the payload.
func (m *LoadDevice) Encode(w *bytes.Buffer) error {
	mnemonic := []byte(m.Mnemonic)
	records := []tlv.Record{
		primitive(0, &mnemonic),
		primitive(4, &m.PassphraseProtection),
		primitive(8, &m.SkipChecksum),
	}
	records = optionalString(records, 3, m.Pin)
	records = optionalString(records, 7, m.Label)

	return encodeRecords(w, records...)
}

// Decode reads the payload.
func (m *LoadDevice) Decode(r io.Reader) error {
	var mnemonic, pin, label []byte
	parsed, err := decodeRecords(
		r, primitive(0, &mnemonic), primitive(3, &pin),
		primitive(4, &m.PassphraseProtection), primitive(7, &label),
		primitive(8, &m.SkipChecksum),
	)
	if err != nil {
		return err
	}

	m.Mnemonic = string(mnemonic)
	m.Pin = optionFromParsed(parsed, 3, string(pin))
	m.Label = optionFromParsed(parsed, 7, string(label))

	return nil
}

// ResetDevice asks the device to generate a new seed and set it up.
type ResetDevice struct {
	Strength             fn.Option[uint32]
	DisplayRandom        bool
	PassphraseProtection bool
	PinProtection        bool
	Label                fn.Option[string]
	SkipBackup           bool
}

// MsgType returns the message type.
func (*ResetDevice) MsgType() MessageType { return MsgResetDevice }

// Encode writes the payload.
func (m *ResetDevice) Encode(w *bytes.Buffer) error {
	records := []tlv.Record{
		primitive(2, &m.DisplayRandom),
		primitive(4, &m.PassphraseProtection),
		primitive(6, &m.PinProtection),
		primitive(10, &m.SkipBackup),
	}
	records = optionalRecord(records, 1, m.Strength, primitive[uint32])
	records = optionalString(records, 9, m.Label)

	return encodeRecords(w, records...)
}

// Decode reads the payload.
func (m *ResetDevice) Decode(r io.Reader) error {
	var (
		strength uint32
		label    []byte
	)
	parsed, err := decodeRecords(
		r, primitive(1, &strength), primitive(2, &m.DisplayRandom),
		primitive(4, &m.PassphraseProtection),
		primitive(6, &m.PinProtection), primitive(9, &label),
		primitive(10, &m.SkipBackup),
	)
	if err != nil {
		return err
	}

	m.Strength = optionFromParsed(parsed, 1, strength)
	m.Label = optionFromParsed(parsed, 9, string(label))

	return nil
}

// RecoveryDevice starts a word by word seed recovery. With DryRun the
// entered seed is only compared with the stored one.
type RecoveryDevice struct {
	WordCount            fn.Option[uint32]
	PassphraseProtection bool
	PinProtection        bool
	Label                fn.Option[string]
	DryRun               bool
}

// MsgType returns the message type.
func (*RecoveryDevice) MsgType() MessageType { return MsgRecoveryDevice }

// Encode writes the payload.
func (m *RecoveryDevice) Encode(w *bytes.Buffer) error {
	records := []tlv.Record{
		primitive(2, &m.PassphraseProtection),
		primitive(4, &m.PinProtection),
		primitive(8, &m.DryRun),
	}
	records = optionalRecord(records, 1, m.WordCount, primitive[uint32])
	records = optionalString(records, 7, m.Label)

	return encodeRecords(w, records...)
}

// Decode reads the payload.
func (m *RecoveryDevice) Decode(r io.Reader) error {
	var (
		count uint32
		label []byte
	)
	parsed, err := decodeRecords(
		r, primitive(1, &count), primitive(2, &m.PassphraseProtection),
		primitive(4, &m.PinProtection), primitive(7, &label),
		primitive(8, &m.DryRun),
	)
	if err != nil {
		return err
	}

	m.WordCount = optionFromParsed(parsed, 1, count)
	m.Label = optionFromParsed(parsed, 7, string(label))

	return nil
}
