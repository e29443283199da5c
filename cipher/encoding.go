package cipher

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	// checksumLen is the length of a base58check checksum.
	checksumLen = 4
)

var (
	// ErrInvalidBase58 is returned when a string contains characters
	// outside of the base58 alphabet.
	ErrInvalidBase58 = errors.New("invalid base58 string")

	// ErrInvalidChecksum is returned when a base58check string fails its
	// checksum.
	ErrInvalidChecksum = errors.New("invalid base58check checksum")

	// ErrInvalidHexLength is returned when a hex string does not decode to
	// the expected number of bytes.
	ErrInvalidHexLength = errors.New("invalid hex length")
)

// Base58CheckEncode appends the first four bytes of DoubleSHA256(payload) to
// payload and base58 encodes the result.
func Base58CheckEncode(payload []byte) string {
	sum := DoubleSHA256(payload)

	buf := make([]byte, 0, len(payload)+checksumLen)
	buf = append(buf, payload...)
	buf = append(buf, sum[:checksumLen]...)

	return base58.Encode(buf)
}

// Base58CheckDecode reverses Base58CheckEncode and returns the payload with
// the checksum stripped.
func Base58CheckDecode(s string) ([]byte, error) {
	raw, err := Base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) < checksumLen {
		return nil, ErrInvalidChecksum
	}

	payload := raw[:len(raw)-checksumLen]
	sum := DoubleSHA256(payload)
	if !bytes.Equal(sum[:checksumLen], raw[len(raw)-checksumLen:]) {
		return nil, ErrInvalidChecksum
	}

	return payload, nil
}

// Base58Decode decodes a base58 string. The base58 package reports invalid
// input by returning an empty slice, which is mapped to ErrInvalidBase58.
func Base58Decode(s string) ([]byte, error) {
	if len(s) == 0 {
		return nil, ErrInvalidBase58
	}

	raw := base58.Decode(s)
	if len(raw) == 0 {
		return nil, ErrInvalidBase58
	}

	return raw, nil
}

// Base58Encode encodes b as base58.
func Base58Encode(b []byte) string {
	return base58.Encode(b)
}

// DecodeHex32 decodes a 64 character hex string into a 32-byte array.
func DecodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) != hex.EncodedLen(len(out)) {
		return out, fmt.Errorf("%w: want %d chars, got %d",
			ErrInvalidHexLength, hex.EncodedLen(len(out)), len(s))
	}

	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, err
	}

	return out, nil
}

// IsSHA256Hex reports whether s is the hex encoding of a 32-byte digest.
func IsSHA256Hex(s string) bool {
	_, err := DecodeHex32(s)
	return err == nil
}
