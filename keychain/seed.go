package keychain

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/logutil"
)

// ErrNoSeed is returned when a SeedKeyRing is used after being zeroed.
var ErrNoSeed = errors.New("key ring has no seed")

// SeedKeyRing implements SecretKeyRing over a BIP39 seed. Every operation
// walks the BIP44 hierarchy from the seed and wipes the intermediate nodes
// before returning.
type SeedKeyRing struct {
	seed []byte
}

// NewSeedKeyRing creates a new key ring over a copy of the seed. The ring must
// be released with Zero.
func NewSeedKeyRing(seed []byte) *SeedKeyRing {
	return &SeedKeyRing{
		seed: append([]byte(nil), seed...),
	}
}

// Zero wipes the seed held by the ring.
func (s *SeedKeyRing) Zero() {
	cipher.Zero(s.seed)
	s.seed = nil
}

// withKeyPair runs f with the key pair described by the locator.
func (s *SeedKeyRing) withKeyPair(keyLoc KeyLocator,
	f func(*KeyPair) error) error {

	if len(s.seed) == 0 {
		return ErrNoSeed
	}

	return WithKeyPair(s.seed, NewPath(keyLoc), f)
}

// DeriveKey returns the public key at keyLoc.
//
// NOTE: This is part of the keychain.KeyRing interface.
func (s *SeedKeyRing) DeriveKey(keyLoc KeyLocator) (KeyDescriptor, error) {
	var pub *btcec.PublicKey
	err := s.withKeyPair(keyLoc, func(kp *KeyPair) error {
		var err error
		pub, err = btcec.ParsePubKey(kp.PubKey[:])

		return err
	})
	if err != nil {
		return KeyDescriptor{}, err
	}

	log.TraceS(context.Background(), "Derived key",
		"locator", keyLoc, logutil.LogPubKey("pubkey", pub))

	return KeyDescriptor{
		KeyLocator: keyLoc,
		PubKey:     pub,
	}, nil
}

// DeriveAddress returns the address of the key at keyLoc.
//
// NOTE: This is part of the keychain.KeyRing interface.
func (s *SeedKeyRing) DeriveAddress(keyLoc KeyLocator) (cipher.Address,
	error) {

	if len(s.seed) == 0 {
		return cipher.Address{}, ErrNoSeed
	}

	p := NewPath(keyLoc)

	return AddressForBranch(
		s.seed, p.Purpose, p.CoinType, p.Account, p.Change,
		p.AddressIndex,
	)
}

// SignDigestCompact signs a 32-byte digest with the key described by the
// locator.
//
// NOTE: This is part of the keychain.MessageSignerRing interface.
func (s *SeedKeyRing) SignDigestCompact(keyLoc KeyLocator,
	digest []byte) (cipher.Sig, error) {

	var sig cipher.Sig
	err := s.withKeyPair(keyLoc, func(kp *KeyPair) error {
		var err error
		sig, err = kp.SignDigest(digest)

		return err
	})

	return sig, err
}

// SignMessageCompact hashes msg once or twice with SHA-256 and signs the
// digest with the key described by the locator.
//
// NOTE: This is part of the keychain.MessageSignerRing interface.
func (s *SeedKeyRing) SignMessageCompact(keyLoc KeyLocator, msg []byte,
	doubleHash bool) (cipher.Sig, error) {

	var digest []byte
	if doubleHash {
		digest = chainhash.DoubleHashB(msg)
	} else {
		digest = chainhash.HashB(msg)
	}

	sig, err := s.SignDigestCompact(keyLoc, digest)
	if err != nil {
		return cipher.Sig{}, fmt.Errorf("signing message: %w", err)
	}

	return sig, nil
}

// A compile time check to ensure SeedKeyRing implements the SecretKeyRing
// interface.
var _ SecretKeyRing = (*SeedKeyRing)(nil)
