package hdnode

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/skyhw/signcore/cipher"
)

// serializedKeyLen is the length of a serialized extended key without its
// checksum.
const serializedKeyLen = 4 + 1 + 4 + 4 + KeyLen + PubKeyLen

var (
	// VersionPrivate is the mainnet xprv version.
	VersionPrivate = binary.BigEndian.Uint32(
		chaincfg.MainNetParams.HDPrivateKeyID[:],
	)

	// VersionPublic is the mainnet xpub version.
	VersionPublic = binary.BigEndian.Uint32(
		chaincfg.MainNetParams.HDPublicKeyID[:],
	)
)

func (n *HDNode) serialize(fingerprint, version uint32,
	key []byte) string {

	buf := make([]byte, 0, serializedKeyLen)
	buf = binary.BigEndian.AppendUint32(buf, version)
	buf = append(buf, n.Depth)
	buf = binary.BigEndian.AppendUint32(buf, fingerprint)
	buf = binary.BigEndian.AppendUint32(buf, n.ChildNum)
	buf = append(buf, n.ChainCode[:]...)
	buf = append(buf, key...)
	defer cipher.Zero(buf)

	return cipher.Base58CheckEncode(buf)
}

// SerializePublic encodes the node as a base58check extended public key.
func (n *HDNode) SerializePublic(fingerprint, version uint32) (string,
	error) {

	if err := n.fillPublicKey(); err != nil {
		return "", err
	}

	return n.serialize(fingerprint, version, n.publicKey[:]), nil
}

// SerializePrivate encodes the node as a base58check extended private key.
func (n *HDNode) SerializePrivate(fingerprint, version uint32) (string,
	error) {

	if !n.IsPrivate() {
		return "", ErrNoPrivateKey
	}

	var key [1 + KeyLen]byte
	copy(key[1:], n.privateKey[:])
	defer cipher.Zero(key[:])

	return n.serialize(fingerprint, version, key[:]), nil
}

// String returns the mainnet xprv encoding of a private node and the xpub
// encoding of a public one.
func (n *HDNode) String() string {
	var (
		s   string
		err error
	)
	if n.IsPrivate() {
		s, err = n.SerializePrivate(n.ParentFingerprint, VersionPrivate)
	} else {
		s, err = n.SerializePublic(n.ParentFingerprint, VersionPublic)
	}
	if err != nil {
		return "<invalid node>"
	}

	return s
}

// Deserialize decodes a base58check extended key. The version must be either
// pubVersion or privVersion.
func Deserialize(s string, pubVersion, privVersion uint32) (*HDNode,
	error) {

	decoded, err := cipher.Base58Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChecksum, err)
	}
	defer cipher.Zero(decoded)

	if len(decoded) != serializedKeyLen+4 {
		return nil, ErrSerializedKeyWrongSize
	}

	raw, err := cipher.Base58CheckDecode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChecksum, err)
	}
	defer cipher.Zero(raw)

	version := binary.BigEndian.Uint32(raw[0:4])
	depth := raw[4]
	parentFP := binary.BigEndian.Uint32(raw[5:9])
	childNum := binary.BigEndian.Uint32(raw[9:13])

	var chainCode [KeyLen]byte
	copy(chainCode[:], raw[13:45])
	key := raw[45:]

	switch version {
	case pubVersion:
		return FromPublicKey(depth, childNum, parentFP, chainCode, key)

	case privVersion:
		if key[0] != 0 {
			return nil, ErrInvalidPrivateKey
		}

		var priv [KeyLen]byte
		copy(priv[:], key[1:])
		defer cipher.Zero(priv[:])

		return FromPrivateKey(depth, childNum, parentFP, chainCode,
			priv)

	default:
		return nil, fmt.Errorf("%w: %08x", ErrInvalidKeyVersion,
			version)
	}
}

// DeserializeMainNet decodes an xprv or xpub string.
func DeserializeMainNet(s string) (*HDNode, error) {
	return Deserialize(s, VersionPublic, VersionPrivate)
}
