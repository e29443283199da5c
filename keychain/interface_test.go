package keychain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/skyhw/signcore/cipher"
	"github.com/stretchr/testify/require"
)

var (
	testHDSeed = chainhash.Hash{
		0xb7, 0x94, 0x38, 0x5f, 0x2d, 0x1e, 0xf7, 0xab,
		0x4d, 0x92, 0x73, 0xd1, 0x90, 0x63, 0x81, 0xb4,
		0x4f, 0x2f, 0x6f, 0x25, 0x98, 0xa3, 0xef, 0xb9,
		0x69, 0x49, 0x18, 0x83, 0x31, 0x98, 0x47, 0x53,
	}

	testLocators = []KeyLocator{
		{Account: HardenedKeyStart, Change: ChangeExternal, Index: 0},
		{Account: HardenedKeyStart, Change: ChangeExternal, Index: 7},
		{Account: HardenedKeyStart, Change: ChangeInternal, Index: 3},
		{Account: HardenedKeyStart + 5, Change: ChangeExternal,
			Index: 1},
	}
)

// oracleAddress derives the address of a locator with btcutil's hdkeychain.
func oracleAddress(t *testing.T, loc KeyLocator) cipher.Address {
	t.Helper()

	key, err := hdkeychain.NewMaster(
		testHDSeed[:], &chaincfg.MainNetParams,
	)
	require.NoError(t, err)

	for _, idx := range NewPath(loc).Indices() {
		key, err = key.Derive(idx)
		require.NoError(t, err)
	}

	pub, err := key.ECPubKey()
	require.NoError(t, err)

	return cipher.AddressFromPubKey(pub)
}

// TestAddressForBranch checks BIP44 address derivation against an independent
// BIP32 implementation.
func TestAddressForBranch(t *testing.T) {
	t.Parallel()

	for _, loc := range testLocators {
		t.Run(loc.String(), func(t *testing.T) {
			addr, err := AddressForBranch(
				testHDSeed[:], BIP0044Purpose, CoinTypeSkycoin,
				loc.Account, loc.Change, loc.Index,
			)
			require.NoError(t, err)
			require.Equal(t, oracleAddress(t, loc), addr)
		})
	}
}

func TestAddressForBranchFailure(t *testing.T) {
	t.Parallel()

	_, err := AddressForBranch(
		nil, BIP0044Purpose, CoinTypeSkycoin, HardenedKeyStart, 0, 0,
	)
	require.ErrorIs(t, err, ErrAddressGeneration)
}

func TestWithKeyPairZeroes(t *testing.T) {
	t.Parallel()

	p := NewPath(testLocators[0])
	errBoom := errors.New("boom")

	var seen *KeyPair
	err := WithKeyPair(testHDSeed[:], p, func(kp *KeyPair) error {
		seen = kp
		require.NotEqual(t, [cipher.SecKeyLen]byte{}, kp.SecKey)
		require.Equal(t, oracleAddress(t, testLocators[0]), kp.Address())

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, [cipher.SecKeyLen]byte{}, seen.SecKey)
}

// TestKeyPairForBranchInvalidPath ensures that no key is derived for a path
// outside the signer's BIP44 tree, and that the reason survives in the error
// chain.
func TestKeyPairForBranchInvalidPath(t *testing.T) {
	t.Parallel()

	const h = HardenedKeyStart

	testCases := []struct {
		name string
		path Path
		err  error
	}{
		{
			name: "purpose",
			path: Path{44, CoinTypeSkycoin, h, 0, 0},
			err:  ErrInvalidPurpose,
		},
		{
			name: "coin type",
			path: Path{BIP0044Purpose, h, h, 0, 0},
			err:  ErrInvalidCoinType,
		},
		{
			name: "unhardened account",
			path: Path{BIP0044Purpose, CoinTypeSkycoin, 0, 0, 0},
			err:  ErrAccountNotHardened,
		},
		{
			name: "change",
			path: Path{BIP0044Purpose, CoinTypeSkycoin, h, 2, 0},
			err:  ErrInvalidChange,
		},
		{
			name: "hardened index",
			path: Path{BIP0044Purpose, CoinTypeSkycoin, h, 0, h},
			err:  ErrAddressIndexHardened,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.path

			kp, err := KeyPairForBranch(
				testHDSeed[:], p.Purpose, p.CoinType, p.Account,
				p.Change, p.AddressIndex,
			)
			require.ErrorIs(t, err, ErrAddressGeneration)
			require.ErrorIs(t, err, tc.err)
			require.Nil(t, kp)

			addr, err := AddressForBranch(
				testHDSeed[:], p.Purpose, p.CoinType, p.Account,
				p.Change, p.AddressIndex,
			)
			require.ErrorIs(t, err, ErrAddressGeneration)
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, cipher.Address{}, addr)

			called := false
			err = WithKeyPair(testHDSeed[:], p, func(*KeyPair) error {
				called = true
				return nil
			})
			require.ErrorIs(t, err, tc.err)
			require.False(t, called)
		})
	}
}

// TestKeyRingDerivation ensures that the seed key ring signs with the keys it
// derives.
func TestKeyRingDerivation(t *testing.T) {
	t.Parallel()

	keyRing := NewSeedKeyRing(testHDSeed[:])
	defer keyRing.Zero()

	for _, loc := range testLocators {
		t.Run(loc.String(), func(t *testing.T) {
			keyDesc, err := keyRing.DeriveKey(loc)
			require.NoError(t, err)
			require.Equal(t, loc, keyDesc.KeyLocator)
			require.Equal(t, oracleAddress(t, loc), keyDesc.Address())

			addr, err := keyRing.DeriveAddress(loc)
			require.NoError(t, err)
			require.Equal(t, keyDesc.Address(), addr)

			digest := chainhash.HashB([]byte("skycoin"))
			sig, err := keyRing.SignDigestCompact(loc, digest)
			require.NoError(t, err)

			pub, err := cipher.RecoverPubKey(sig, digest)
			require.NoError(t, err)
			require.True(t, pub.IsEqual(keyDesc.PubKey))
		})
	}
}

func TestKeyRingInvalidLocator(t *testing.T) {
	t.Parallel()

	keyRing := NewSeedKeyRing(testHDSeed[:])

	_, err := keyRing.DeriveKey(KeyLocator{Account: 1})
	require.ErrorIs(t, err, ErrAccountNotHardened)

	_, err = keyRing.DeriveKey(KeyLocator{
		Account: HardenedKeyStart, Change: 2,
	})
	require.ErrorIs(t, err, ErrInvalidChange)

	_, err = keyRing.SignDigestCompact(KeyLocator{
		Account: HardenedKeyStart, Index: HardenedKeyStart,
	}, chainhash.HashB([]byte("skycoin")))
	require.ErrorIs(t, err, ErrAddressIndexHardened)

	keyRing.Zero()
	_, err = keyRing.DeriveKey(testLocators[0])
	require.ErrorIs(t, err, ErrNoSeed)
	_, err = keyRing.DeriveAddress(testLocators[0])
	require.ErrorIs(t, err, ErrNoSeed)
}

// TestKeyRingSignMessage checks that message signing hashes the message the
// requested number of times before signing the digest.
func TestKeyRingSignMessage(t *testing.T) {
	t.Parallel()

	keyRing := NewSeedKeyRing(testHDSeed[:])
	defer keyRing.Zero()

	loc := testLocators[1]
	msg := []byte("hello world")

	for _, doubleHash := range []bool{false, true} {
		name := fmt.Sprintf("double=%v", doubleHash)
		t.Run(name, func(t *testing.T) {
			digest := chainhash.HashB(msg)
			if doubleHash {
				digest = chainhash.DoubleHashB(msg)
			}

			sig1, err := keyRing.SignMessageCompact(
				loc, msg, doubleHash,
			)
			require.NoError(t, err)
			sig2, err := keyRing.SignDigestCompact(loc, digest)
			require.NoError(t, err)
			require.Equal(t, sig1, sig2)
		})
	}
}
