package hdnode

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/skyhw/signcore/cipher"
)

const (
	// HardenedKeyStart is the index at which a hardened key starts. Each
	// extended key has 2^31 normal child keys and 2^31 hardened child keys.
	HardenedKeyStart = 0x80000000

	// MaxDepth is the deepest node that can be represented in the one
	// byte depth field.
	MaxDepth = 255

	// KeyLen is the length of a private key, a chain code and the private
	// key extension.
	KeyLen = 32

	// PubKeyLen is the length of a compressed public key.
	PubKeyLen = 33
)

// Curve describes the elliptic curve a node derives on, together with the
// HMAC key used to create master nodes.
type Curve struct {
	// Name is the SLIP-10 name of the curve.
	Name string

	// SeedKey is the HMAC-SHA512 key used by FromSeed.
	SeedKey []byte
}

// Secp256k1 is the only curve supported by the signer.
var Secp256k1 = &Curve{
	Name:    "secp256k1",
	SeedKey: []byte("Bitcoin seed"),
}

// HDNode is a BIP32 extended key. A node either carries a private key, in
// which case the public key is computed on demand, or only a public key.
type HDNode struct {
	// Depth is the number of derivation steps from the master node.
	Depth uint8

	// ChildNum is the index this node was derived with.
	ChildNum uint32

	// ParentFingerprint is the fingerprint of the node this one was
	// derived from. It is zero for a master node.
	ParentFingerprint uint32

	// ChainCode is the BIP32 chain code.
	ChainCode [KeyLen]byte

	// PrivateKeyExtension holds I_L of the last derivation step.
	PrivateKeyExtension [KeyLen]byte

	// Curve is the curve of the node.
	Curve *Curve

	// privateKey is all zero when unknown.
	privateKey [KeyLen]byte

	// publicKey is the compressed public key. A zero first byte means it
	// has not been computed yet.
	publicKey [PubKeyLen]byte
}

// FromSeed creates a master node from a seed.
func FromSeed(seed []byte) (*HDNode, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeedLength
	}

	curve := Secp256k1
	mac := hmac.New(sha512.New, curve.SeedKey)
	_, _ = mac.Write(seed)
	sum := mac.Sum(nil)
	defer cipher.Zero(sum)

	node := &HDNode{
		Curve: curve,
	}
	copy(node.privateKey[:], sum[:KeyLen])
	copy(node.ChainCode[:], sum[KeyLen:])

	var k secp256k1.ModNScalar
	overflow := k.SetBytes(&node.privateKey)
	zero := k.IsZero()
	k.Zero()
	if overflow != 0 || zero {
		node.Zero()
		return nil, ErrImpossibleChild
	}

	return node, nil
}

// FromPublicKey creates a public-only node from its raw parts.
func FromPublicKey(depth uint8, childNum, parentFP uint32,
	chainCode [KeyLen]byte, pub []byte) (*HDNode, error) {

	if len(pub) != PubKeyLen {
		return nil, ErrInvalidPublicKey
	}
	if _, err := btcec.ParsePubKey(pub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	node := &HDNode{
		Depth:             depth,
		ChildNum:          childNum,
		ParentFingerprint: parentFP,
		ChainCode:         chainCode,
		Curve:             Secp256k1,
	}
	copy(node.publicKey[:], pub)

	return node, nil
}

// FromPrivateKey creates a node from its raw parts.
func FromPrivateKey(depth uint8, childNum, parentFP uint32,
	chainCode, priv [KeyLen]byte) (*HDNode, error) {

	var k secp256k1.ModNScalar
	overflow := k.SetBytes(&priv)
	zero := k.IsZero()
	k.Zero()
	if overflow != 0 || zero {
		return nil, ErrInvalidPrivateKey
	}

	return &HDNode{
		Depth:             depth,
		ChildNum:          childNum,
		ParentFingerprint: parentFP,
		ChainCode:         chainCode,
		Curve:             Secp256k1,
		privateKey:        priv,
	}, nil
}

// IsPrivate reports whether the node carries a private key.
func (n *HDNode) IsPrivate() bool {
	var zero [KeyLen]byte
	return n.privateKey != zero
}

// IsHardened reports whether the node was derived with a hardened index.
func (n *HDNode) IsHardened() bool {
	return n.ChildNum >= HardenedKeyStart
}

// fillPublicKey computes the public key from the private key if it is not
// cached yet.
func (n *HDNode) fillPublicKey() error {
	if n.publicKey[0] != 0 {
		return nil
	}
	if !n.IsPrivate() {
		return ErrNoPublicKey
	}

	pub, err := cipher.PubKeyFromSecKey(n.privateKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	copy(n.publicKey[:], pub.SerializeCompressed())

	return nil
}

// PublicKeyBytes returns the compressed public key of the node.
func (n *HDNode) PublicKeyBytes() ([PubKeyLen]byte, error) {
	if err := n.fillPublicKey(); err != nil {
		return [PubKeyLen]byte{}, err
	}

	return n.publicKey, nil
}

// PrivateKeyBytes returns the raw private key of the node.
func (n *HDNode) PrivateKeyBytes() ([KeyLen]byte, error) {
	if !n.IsPrivate() {
		return [KeyLen]byte{}, ErrNoPrivateKey
	}

	return n.privateKey, nil
}

// PubKey returns the parsed public key of the node.
func (n *HDNode) PubKey() (*btcec.PublicKey, error) {
	if err := n.fillPublicKey(); err != nil {
		return nil, err
	}

	return btcec.ParsePubKey(n.publicKey[:])
}

// PrivKey returns the private key of the node. The caller owns the returned
// key and should Zero it once done.
func (n *HDNode) PrivKey() (*btcec.PrivateKey, error) {
	if !n.IsPrivate() {
		return nil, ErrNoPrivateKey
	}

	return cipher.PrivKeyFromSecKey(n.privateKey)
}

// Fingerprint returns the first four bytes of HASH160 of the compressed
// public key, read as a big endian integer.
func (n *HDNode) Fingerprint() (uint32, error) {
	if err := n.fillPublicKey(); err != nil {
		return 0, err
	}
	h := cipher.Hash160(n.publicKey[:])

	return binary.BigEndian.Uint32(h[:4]), nil
}

// Neuter returns a public-only copy of the node.
func (n *HDNode) Neuter() (*HDNode, error) {
	if err := n.fillPublicKey(); err != nil {
		return nil, err
	}

	pub := *n
	pub.privateKey = [KeyLen]byte{}
	pub.PrivateKeyExtension = [KeyLen]byte{}

	return &pub, nil
}

// Clone returns a deep copy of the node.
func (n *HDNode) Clone() *HDNode {
	c := *n
	return &c
}

// Zero wipes all key material of the node.
func (n *HDNode) Zero() {
	cipher.Zero(n.privateKey[:])
	cipher.Zero(n.PrivateKeyExtension[:])
	cipher.Zero(n.ChainCode[:])
	cipher.Zero(n.publicKey[:])
}

// childMAC computes HMAC-SHA512(chain_code, data‖index_be).
func (n *HDNode) childMAC(data []byte, index uint32) []byte {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)

	mac := hmac.New(sha512.New, n.ChainCode[:])
	_, _ = mac.Write(data)
	_, _ = mac.Write(idx[:])

	return mac.Sum(nil)
}

// PrivateCKD replaces the node with its child at the given index using
// private derivation. The node is left untouched on error.
func (n *HDNode) PrivateCKD(index uint32) error {
	if n.Depth == MaxDepth {
		return ErrMaxDepthReached
	}
	if !n.IsPrivate() {
		return ErrNoPrivateKey
	}

	parentFP, err := n.Fingerprint()
	if err != nil {
		return err
	}

	// Hardened children commit to 0x00‖k, normal children to the
	// compressed public key.
	var data [1 + KeyLen]byte
	if index >= HardenedKeyStart {
		copy(data[1:], n.privateKey[:])
	} else {
		copy(data[:], n.publicKey[:])
	}
	sum := n.childMAC(data[:], index)
	defer cipher.Zero(sum)
	defer cipher.Zero(data[:])

	var ilBytes [KeyLen]byte
	copy(ilBytes[:], sum[:KeyLen])
	defer cipher.Zero(ilBytes[:])

	var il, k secp256k1.ModNScalar
	defer il.Zero()
	defer k.Zero()

	if overflow := il.SetBytes(&ilBytes); overflow != 0 {
		log.Debugf("Child %d of %x: I_L not below curve order",
			index, parentFP)
		return ErrImpossibleChild
	}
	k.SetBytes(&n.privateKey)
	k.Add(&il)
	if k.IsZero() {
		log.Debugf("Child %d of %x: zero private key", index, parentFP)
		return ErrImpossibleChild
	}

	n.privateKey = k.Bytes()
	n.PrivateKeyExtension = ilBytes
	copy(n.ChainCode[:], sum[KeyLen:])
	n.publicKey = [PubKeyLen]byte{}
	n.ParentFingerprint = parentFP
	n.ChildNum = index
	n.Depth++

	return nil
}

// PublicCKD replaces the node with its child at the given index using public
// derivation. Any private key held by the node is dropped. The node is left
// untouched on error.
func (n *HDNode) PublicCKD(index uint32) error {
	if index >= HardenedKeyStart {
		return ErrHardenedChildPublicKey
	}
	if n.Depth == MaxDepth {
		return ErrMaxDepthReached
	}

	parentFP, err := n.Fingerprint()
	if err != nil {
		return err
	}

	sum := n.childMAC(n.publicKey[:], index)
	defer cipher.Zero(sum)

	var ilBytes [KeyLen]byte
	copy(ilBytes[:], sum[:KeyLen])

	var il secp256k1.ModNScalar
	if overflow := il.SetBytes(&ilBytes); overflow != 0 {
		log.Debugf("Public child %d of %x: I_L not below curve order",
			index, parentFP)
		return ErrImpossibleChild
	}

	parent, err := btcec.ParsePubKey(n.publicKey[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	// child = P + I_L·G
	var p, ilG, child secp256k1.JacobianPoint
	parent.AsJacobian(&p)
	secp256k1.ScalarBaseMultNonConst(&il, &ilG)
	secp256k1.AddNonConst(&ilG, &p, &child)

	if (child.X.IsZero() && child.Y.IsZero()) || child.Z.IsZero() {
		log.Debugf("Public child %d of %x: point at infinity", index,
			parentFP)
		return ErrImpossibleChild
	}
	child.ToAffine()
	pub := secp256k1.NewPublicKey(&child.X, &child.Y)

	cipher.Zero(n.privateKey[:])
	n.PrivateKeyExtension = ilBytes
	copy(n.publicKey[:], pub.SerializeCompressed())
	copy(n.ChainCode[:], sum[KeyLen:])
	n.ParentFingerprint = parentFP
	n.ChildNum = index
	n.Depth++

	return nil
}
