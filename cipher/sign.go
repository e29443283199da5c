package cipher

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	// SigLen is the length of a compact recoverable signature: r‖s‖recid.
	SigLen = 65

	// SecKeyLen is the length of a raw secp256k1 secret key.
	SecKeyLen = 32

	// PubKeyLen is the length of a compressed secp256k1 public key.
	PubKeyLen = 33

	// compactSigMagicOffset is the header offset used by btcec compact
	// signatures for compressed public keys (27 + 4).
	compactSigMagicOffset = 27 + 4
)

var (
	// ErrEmptyDigest is returned when asked to sign an empty digest.
	ErrEmptyDigest = errors.New("empty digest")

	// ErrInvalidDigestLength is returned when a digest is not 32 bytes.
	ErrInvalidDigestLength = errors.New("digest must be 32 bytes")

	// ErrInvalidSecKey is returned for a zero or out of range secret key.
	ErrInvalidSecKey = errors.New("invalid secret key")

	// ErrInvalidSignature is returned when a signature is malformed or
	// does not recover to a public key.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Sig is a 65-byte compact recoverable secp256k1 signature laid out as
// r‖s‖recid.
type Sig [SigLen]byte

// Hex returns the hex encoding of the signature.
func (s Sig) Hex() string {
	return hex.EncodeToString(s[:])
}

// IsNull reports whether s is the all-zero placeholder signature.
func (s Sig) IsNull() bool {
	return s == Sig{}
}

// SigFromHex parses a hex encoded 65-byte signature.
func SigFromHex(s string) (Sig, error) {
	var sig Sig

	b, err := hex.DecodeString(s)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != SigLen {
		return sig, fmt.Errorf("%w: length %d", ErrInvalidSignature,
			len(b))
	}
	copy(sig[:], b)

	return sig, nil
}

// PrivKeyFromSecKey parses a raw secret key. The key must be non-zero and
// less than the curve order.
func PrivKeyFromSecKey(sec [SecKeyLen]byte) (*btcec.PrivateKey, error) {
	var k btcec.ModNScalar
	overflow := k.SetBytes(&sec)
	if overflow != 0 || k.IsZero() {
		return nil, ErrInvalidSecKey
	}

	priv, _ := btcec.PrivKeyFromBytes(sec[:])
	k.Zero()

	return priv, nil
}

// PubKeyFromSecKey derives the public key of a raw secret key.
func PubKeyFromSecKey(sec [SecKeyLen]byte) (*btcec.PublicKey, error) {
	priv, err := PrivKeyFromSecKey(sec)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	return priv.PubKey(), nil
}

// SignDigest produces a deterministic (RFC6979) low-S recoverable signature of
// a 32-byte digest.
func SignDigest(priv *btcec.PrivateKey, digest []byte) (Sig, error) {
	var sig Sig

	switch {
	case len(digest) == 0:
		return sig, ErrEmptyDigest

	case len(digest) != 32:
		return sig, ErrInvalidDigestLength

	case priv == nil || priv.Key.IsZero():
		return sig, ErrInvalidSecKey
	}

	compact := ecdsa.SignCompact(priv, digest, true)
	if len(compact) != SigLen {
		return sig, ErrInvalidSignature
	}

	// btcec emits header‖r‖s, the device protocol uses r‖s‖recid.
	copy(sig[:64], compact[1:])
	sig[64] = compact[0] - compactSigMagicOffset

	return sig, nil
}

// RecoverPubKey recovers the public key that produced sig over digest.
func RecoverPubKey(sig Sig, digest []byte) (*btcec.PublicKey, error) {
	if len(digest) != 32 {
		return nil, ErrInvalidDigestLength
	}
	if sig[64] > 3 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature,
			sig[64])
	}

	var compact [SigLen]byte
	compact[0] = sig[64] + compactSigMagicOffset
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact[:], digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return pub, nil
}

// VerifyPubKey reports whether b is a valid compressed public key.
func VerifyPubKey(b []byte) bool {
	if len(b) != PubKeyLen {
		return false
	}
	_, err := btcec.ParsePubKey(b)

	return err == nil
}
