package cipher

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
)

// SHA256 returns the SHA-256 digest of b.
func SHA256(b []byte) [32]byte {
	return chainhash.HashH(b)
}

// DoubleSHA256 returns SHA-256(SHA-256(b)).
func DoubleSHA256(b []byte) [32]byte {
	return chainhash.DoubleHashH(b)
}

// SHA256Two returns the SHA-256 digest of a‖b. This is the digest that is
// signed for every transaction input: SHA256(inner_hash‖input_hash).
func SHA256Two(a, b []byte) [32]byte {
	buf := make([]byte, 0, len(a)+len(b))
	buf = append(buf, a...)
	buf = append(buf, b...)

	return chainhash.HashH(buf)
}

// RIPEMD160 returns the RIPEMD-160 digest of b.
func RIPEMD160(b []byte) [20]byte {
	var out [20]byte

	h := ripemd160.New()
	_, _ = h.Write(b)
	copy(out[:], h.Sum(nil))

	return out
}

// Hash160 returns RIPEMD160(SHA256(b)), the digest used for BIP32 key
// fingerprints.
func Hash160(b []byte) [20]byte {
	var out [20]byte
	copy(out[:], btcutil.Hash160(b))

	return out
}

// Zero overwrites b with zeroes.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
