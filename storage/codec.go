package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

const (
	labelType                tlv.Type = 0
	languageType             tlv.Type = 2
	passphraseProtectionType tlv.Type = 4
	needsBackupType          tlv.Type = 6
	deviceIDType             tlv.Type = 8
)

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}

	return 0
}

// encodeSettings serializes the settings as a TLV stream.
func encodeSettings(w io.Writer, s *Settings) error {
	var (
		label       = []byte(s.Label)
		language    = []byte(s.Language)
		passphrase  = boolToByte(s.PassphraseProtection)
		needsBackup = boolToByte(s.NeedsBackup)
		deviceID    = []byte(s.DeviceID)
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(labelType, &label),
		tlv.MakePrimitiveRecord(languageType, &language),
		tlv.MakePrimitiveRecord(passphraseProtectionType, &passphrase),
		tlv.MakePrimitiveRecord(needsBackupType, &needsBackup),
		tlv.MakePrimitiveRecord(deviceIDType, &deviceID),
	)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// decodeSettings parses a TLV encoded settings record. Unknown even types are
// rejected by the stream, absent fields keep their zero value.
func decodeSettings(r io.Reader) (*Settings, error) {
	var (
		label, language, deviceID []byte
		passphrase, needsBackup   uint8
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(labelType, &label),
		tlv.MakePrimitiveRecord(languageType, &language),
		tlv.MakePrimitiveRecord(passphraseProtectionType, &passphrase),
		tlv.MakePrimitiveRecord(needsBackupType, &needsBackup),
		tlv.MakePrimitiveRecord(deviceIDType, &deviceID),
	)
	if err != nil {
		return nil, err
	}

	if err := stream.Decode(r); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	return &Settings{
		Label:                string(label),
		Language:             string(language),
		PassphraseProtection: passphrase == 1,
		NeedsBackup:          needsBackup == 1,
		DeviceID:             string(deviceID),
	}, nil
}

func serializeSettings(s *Settings) ([]byte, error) {
	var b bytes.Buffer
	if err := encodeSettings(&b, s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func putUint32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)

	return b[:]
}
