package cipher

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"
)

// ErrHashFinalized is returned when data is written to a RunningHash that has
// already produced its digest.
var ErrHashFinalized = errors.New("running hash already finalized")

// RunningHash is an incremental SHA-256 state. It is used to accumulate the
// transaction commitment over several protocol rounds.
type RunningHash struct {
	h         hash.Hash
	finalized bool
}

// NewRunningHash returns a freshly initialized RunningHash.
func NewRunningHash() *RunningHash {
	return &RunningHash{h: sha256.New()}
}

// Write folds b into the hash state.
func (r *RunningHash) Write(b []byte) error {
	if r.finalized {
		return ErrHashFinalized
	}

	// Writes to a sha256 digest never fail.
	_, _ = r.h.Write(b)

	return nil
}

// WriteUint32 folds the little-endian encoding of v into the hash state.
func (r *RunningHash) WriteUint32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)

	return r.Write(b[:])
}

// WriteUint64 folds the little-endian encoding of v into the hash state.
func (r *RunningHash) WriteUint64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)

	return r.Write(b[:])
}

// Finalize returns the digest of everything written so far. Further writes
// fail with ErrHashFinalized.
func (r *RunningHash) Finalize() ([32]byte, error) {
	var out [32]byte
	if r.finalized {
		return out, ErrHashFinalized
	}

	r.finalized = true
	copy(out[:], r.h.Sum(nil))

	return out, nil
}
