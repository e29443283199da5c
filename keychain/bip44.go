package keychain

import (
	"fmt"

	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/hdnode"
)

// KeyPair is the key material of a single BIP44 leaf. The private key must be
// released with Zero once the caller is done with it.
type KeyPair struct {
	// Path is the path the pair was derived at.
	Path Path

	// SecKey is the raw private key.
	SecKey [cipher.SecKeyLen]byte

	// PubKey is the compressed public key.
	PubKey [cipher.PubKeyLen]byte
}

// Address returns the address of the pair's public key.
func (k *KeyPair) Address() cipher.Address {
	return cipher.AddressFromPubKeyBytes(k.PubKey[:])
}

// SignDigest signs a 32-byte digest with the pair's private key.
func (k *KeyPair) SignDigest(digest []byte) (cipher.Sig, error) {
	priv, err := cipher.PrivKeyFromSecKey(k.SecKey)
	if err != nil {
		return cipher.Sig{}, err
	}
	defer priv.Zero()

	return cipher.SignDigest(priv, digest)
}

// Zero wipes the private key.
func (k *KeyPair) Zero() {
	cipher.Zero(k.SecKey[:])
}

// leafNode walks the five derivation steps of a BIP44 branch from the seed.
// The caller owns the returned node and must Zero it.
func leafNode(seed []byte, p Path) (*hdnode.HDNode, error) {
	node, err := hdnode.FromSeed(seed)
	if err != nil {
		return nil, err
	}

	if err := node.DerivePath(p.Indices()); err != nil {
		node.Zero()
		return nil, err
	}

	return node, nil
}

// AddressForBranch derives the address at
// m/purpose/coinType/account/change/index below the seed.
func AddressForBranch(seed []byte, purpose, coinType, account, change,
	index uint32) (cipher.Address, error) {

	kp, err := KeyPairForBranch(
		seed, purpose, coinType, account, change, index,
	)
	if err != nil {
		return cipher.Address{}, err
	}
	defer kp.Zero()

	return kp.Address(), nil
}

// KeyPairForBranch derives the key pair at
// m/purpose/coinType/account/change/index below the seed. The path must pass
// Validate.
func KeyPairForBranch(seed []byte, purpose, coinType, account, change,
	index uint32) (*KeyPair, error) {

	p := Path{
		Purpose:      purpose,
		CoinType:     coinType,
		Account:      account,
		Change:       change,
		AddressIndex: index,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w at %v: %w", ErrAddressGeneration, p,
			err)
	}

	node, err := leafNode(seed, p)
	if err != nil {
		return nil, fmt.Errorf("%w at %v: %w", ErrAddressGeneration, p,
			err)
	}
	defer node.Zero()

	kp := &KeyPair{Path: p}
	kp.SecKey, err = node.PrivateKeyBytes()
	if err != nil {
		return nil, fmt.Errorf("%w at %v: %w", ErrAddressGeneration, p,
			err)
	}
	kp.PubKey, err = node.PublicKeyBytes()
	if err != nil {
		kp.Zero()
		return nil, fmt.Errorf("%w at %v: %w", ErrAddressGeneration, p,
			err)
	}

	log.Tracef("Derived key pair at %v", p)

	return kp, nil
}

// WithKeyPair derives the key pair at p and passes it to f. The private key
// is wiped when f returns, whatever the outcome.
func WithKeyPair(seed []byte, p Path, f func(*KeyPair) error) error {
	kp, err := KeyPairForBranch(
		seed, p.Purpose, p.CoinType, p.Account, p.Change,
		p.AddressIndex,
	)
	if err != nil {
		return err
	}
	defer kp.Zero()

	return f(kp)
}
