package hdnode

import "errors"

var (
	// ErrInvalidSeedLength is returned when creating a master node from an
	// empty seed.
	ErrInvalidSeedLength = errors.New("seed must not be empty")

	// ErrImpossibleChild is returned when the derived key material is
	// invalid (I_L ≥ n, a zero private key or the point at infinity). The
	// caller must pick another index.
	ErrImpossibleChild = errors.New("the provided index yields an " +
		"invalid child key")

	// ErrMaxDepthReached is returned when deriving a child of a node at the
	// maximum depth.
	ErrMaxDepthReached = errors.New("cannot derive a key with more " +
		"than 255 indices in its path")

	// ErrHardenedChildPublicKey is returned when public derivation is
	// attempted for a hardened index.
	ErrHardenedChildPublicKey = errors.New("cannot derive a hardened key " +
		"from a public key")

	// ErrNoPrivateKey is returned when private derivation or private
	// serialization is attempted on a public-only node.
	ErrNoPrivateKey = errors.New("node has no private key")

	// ErrNoPublicKey is returned when public derivation is attempted on a
	// node that has neither a public nor a private key.
	ErrNoPublicKey = errors.New("node has no public key")

	// ErrPathNodeNotNumber is returned when a path component is not a
	// valid index.
	ErrPathNodeNotNumber = errors.New("path component is not a valid " +
		"index")

	// ErrPathChildMaster is returned when "m" appears after the first path
	// component.
	ErrPathChildMaster = errors.New("path contains a master node " +
		"below the root")

	// ErrPathNoMaster is returned when a path does not start with "m".
	ErrPathNoMaster = errors.New("path must start with m")

	// ErrSerializedKeyWrongSize is returned when a decoded extended key is
	// not 78 bytes long.
	ErrSerializedKeyWrongSize = errors.New("serialized extended key " +
		"has the wrong size")

	// ErrInvalidChecksum is returned when the base58check checksum of an
	// extended key does not match.
	ErrInvalidChecksum = errors.New("extended key has an invalid " +
		"checksum")

	// ErrInvalidKeyVersion is returned when the version of an extended key
	// matches neither the expected public nor private version.
	ErrInvalidKeyVersion = errors.New("extended key has an unknown " +
		"version")

	// ErrInvalidPublicKey is returned when a serialized public key is not a
	// point on the curve.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidPrivateKey is returned when a serialized private key is
	// zero, out of range or missing its 0x00 prefix.
	ErrInvalidPrivateKey = errors.New("invalid private key")
)
