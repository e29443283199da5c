package keychain

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/hdnode"
)

const (
	// HardenedKeyStart is the first hardened child index.
	HardenedKeyStart = hdnode.HardenedKeyStart

	// BIP0044Purpose is the hardened "purpose" value of the BIP44
	// hierarchy. All keys of the signer are derived below it.
	BIP0044Purpose = HardenedKeyStart + 44

	// CoinTypeSkycoin is the hardened SLIP-44 coin type of Skycoin.
	CoinTypeSkycoin = HardenedKeyStart + 8000

	// ChangeExternal is the branch of receiving addresses.
	ChangeExternal uint32 = 0

	// ChangeInternal is the branch of change addresses.
	ChangeInternal uint32 = 1
)

// ErrAddressGeneration is returned when the keys of a BIP44 branch cannot be
// derived.
var ErrAddressGeneration = errors.New("unable to generate address")

// KeyLocator identifies a key of the signer within the BIP44 hierarchy of its
// coin:
//
//   - m/44'/coinType'/account'/change/index
type KeyLocator struct {
	// Account is the hardened BIP44 account.
	Account uint32

	// Change is the branch, either ChangeExternal or ChangeInternal.
	Change uint32

	// Index is the child index on the branch.
	Index uint32
}

// String returns the locator in path notation relative to the coin node.
func (k KeyLocator) String() string {
	return fmt.Sprintf("%d'/%d/%d", k.Account-HardenedKeyStart, k.Change,
		k.Index)
}

// KeyDescriptor names a key by its locator, its public key or both. At least
// one of them is set.
type KeyDescriptor struct {
	KeyLocator

	// PubKey is nil when only the locator is known.
	PubKey *btcec.PublicKey
}

// Address returns the address of the described key.
func (k KeyDescriptor) Address() cipher.Address {
	return cipher.AddressFromPubKey(k.PubKey)
}

// KeyRing derives public keys of the signer.
type KeyRing interface {
	// DeriveKey returns the public key at keyLoc.
	DeriveKey(keyLoc KeyLocator) (KeyDescriptor, error)

	// DeriveAddress returns the address of the key at keyLoc.
	DeriveAddress(keyLoc KeyLocator) (cipher.Address, error)
}

// MessageSignerRing signs with keys named by their locator.
type MessageSignerRing interface {
	// SignDigestCompact signs a 32-byte digest with the key described by
	// the locator and returns the r‖s‖recid signature.
	SignDigestCompact(keyLoc KeyLocator, digest []byte) (cipher.Sig,
		error)

	// SignMessageCompact hashes msg once or twice with SHA-256 and signs
	// the digest like SignDigestCompact.
	SignMessageCompact(keyLoc KeyLocator, msg []byte,
		doubleHash bool) (cipher.Sig, error)
}

// SecretKeyRing derives keys and signs with them.
type SecretKeyRing interface {
	KeyRing

	MessageSignerRing
}
