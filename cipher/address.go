package cipher

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// AddressKeyLen is the length of the hashed public key inside an
	// address.
	AddressKeyLen = 20

	// AddressLen is the length of a raw address: key‖version‖checksum.
	AddressLen = AddressKeyLen + 1 + checksumLen

	// AddressVersion is the version byte of mainnet addresses.
	AddressVersion byte = 0
)

var (
	// ErrAddressLength is returned when a decoded address has the wrong
	// size.
	ErrAddressLength = errors.New("invalid address length")

	// ErrAddressChecksum is returned when an address checksum does not
	// match.
	ErrAddressChecksum = errors.New("invalid address checksum")
)

// Address is a versioned hash of a public key. Its raw form is
// key[20]‖version[1]‖checksum[4] where checksum is the first four bytes of
// SHA256(key‖version).
type Address struct {
	Version byte
	Key     [AddressKeyLen]byte
}

// AddressFromPubKey derives the address of a public key.
func AddressFromPubKey(pub *btcec.PublicKey) Address {
	return AddressFromPubKeyBytes(pub.SerializeCompressed())
}

// AddressFromPubKeyBytes derives the address of a serialized compressed public
// key: RIPEMD160(SHA256(SHA256(pubkey))).
func AddressFromPubKeyBytes(pub []byte) Address {
	inner := SHA256(pub)
	outer := SHA256(inner[:])

	return Address{
		Version: AddressVersion,
		Key:     RIPEMD160(outer[:]),
	}
}

// checksum returns the checksum of the address.
func (a Address) checksum() [checksumLen]byte {
	var b [AddressKeyLen + 1]byte
	copy(b[:], a.Key[:])
	b[AddressKeyLen] = a.Version

	var out [checksumLen]byte
	sum := SHA256(b[:])
	copy(out[:], sum[:checksumLen])

	return out
}

// Bytes returns the raw 25-byte form of the address.
func (a Address) Bytes() [AddressLen]byte {
	var b [AddressLen]byte
	copy(b[:], a.Key[:])
	b[AddressKeyLen] = a.Version
	sum := a.checksum()
	copy(b[AddressKeyLen+1:], sum[:])

	return b
}

// String returns the base58 form of the address.
func (a Address) String() string {
	b := a.Bytes()
	return Base58Encode(b[:])
}

// Null reports whether a is the zero address.
func (a Address) Null() bool {
	return a == Address{}
}

// AddressFromBytes parses a raw 25-byte address and verifies its checksum.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLen {
		return a, fmt.Errorf("%w: %d", ErrAddressLength, len(b))
	}

	copy(a.Key[:], b[:AddressKeyLen])
	a.Version = b[AddressKeyLen]

	sum := a.checksum()
	if !bytes.Equal(sum[:], b[AddressKeyLen+1:]) {
		return Address{}, ErrAddressChecksum
	}

	return a, nil
}

// DecodeBase58Address parses the base58 form of an address.
func DecodeBase58Address(s string) (Address, error) {
	raw, err := Base58Decode(s)
	if err != nil {
		return Address{}, err
	}

	return AddressFromBytes(raw)
}
