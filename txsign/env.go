package txsign

import (
	"context"
	"math/bits"

	"github.com/skyhw/signcore/cipher"
)

// Signer is the device side collaborator of a signing session. It owns the
// key material and the user interface.
type Signer interface {
	// ConfirmOutput shows an output to the user and reports whether it
	// was accepted.
	ConfirmOutput(ctx context.Context, out Output) (bool, error)

	// DeriveAddress returns the external chain address at index.
	DeriveAddress(index uint32) (cipher.Address, error)

	// SignDigest signs digest with the external chain key at index. The
	// key is released before it returns.
	SignDigest(index uint32, digest [32]byte) (cipher.Sig, error)
}

// Environment holds the data of an open signing session along with the
// collaborators the states call into.
type Environment struct {
	signer Signer

	// reqCtx is the context of the round being processed.
	reqCtx context.Context

	nbIn  uint32
	nbOut uint32

	currentNbIn  uint32
	currentNbOut uint32

	hash         *cipher.RunningHash
	innerHash    [32]byte
	hasInnerHash bool

	coinName string
	version  uint32
	lockTime uint64
}

// ConfirmOutput asks the user to accept out.
func (e *Environment) ConfirmOutput(out Output) (bool, error) {
	return e.signer.ConfirmOutput(e.reqCtx, out)
}

// DeriveAddress returns the device address at index.
func (e *Environment) DeriveAddress(index uint32) (cipher.Address, error) {
	return e.signer.DeriveAddress(index)
}

// SignDigest signs digest with the key at index.
func (e *Environment) SignDigest(index uint32,
	digest [32]byte) (cipher.Sig, error) {

	return e.signer.SignDigest(index, digest)
}

// reset wipes the session data.
func (e *Environment) reset() {
	cipher.Zero(e.innerHash[:])

	e.nbIn, e.nbOut = 0, 0
	e.currentNbIn, e.currentNbOut = 0, 0
	e.hash = nil
	e.hasInnerHash = false
	e.coinName = ""
	e.version = 0
	e.lockTime = 0
	e.reqCtx = nil
}

// addCount adds a round size to a counter and reports whether the result
// stays within limit.
func addCount(cur uint32, n int, limit uint32) (uint32, bool) {
	if n < 0 || n > MaxTxInputs+MaxTxOutputs {
		return cur, false
	}

	sum, carry := bits.Add32(cur, uint32(n), 0)
	if carry != 0 || sum > limit {
		return cur, false
	}

	return sum, true
}
