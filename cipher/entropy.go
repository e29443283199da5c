package cipher

import (
	"errors"
	"fmt"
	"io"
)

// MaxExternalEntropy is the maximum number of bytes accepted per external
// entropy injection.
const MaxExternalEntropy = 32

// ErrEntropyTooLarge is returned when more than MaxExternalEntropy bytes are
// injected at once.
var ErrEntropyTooLarge = errors.New("external entropy too large")

// EntropyPool accumulates externally injected entropy and salts device
// randomness with it. The zero value is ready to use.
type EntropyPool struct {
	pool     [32]byte
	external bool
}

// AddExternal folds host supplied entropy into the pool.
func (p *EntropyPool) AddExternal(b []byte) error {
	if len(b) > MaxExternalEntropy {
		return fmt.Errorf("%w: %d bytes", ErrEntropyTooLarge, len(b))
	}

	p.pool = SHA256Two(p.pool[:], b)
	p.external = true

	return nil
}

// HasExternal reports whether any external entropy was injected since the
// last Reset.
func (p *EntropyPool) HasExternal() bool {
	return p.external
}

// Mix256 salts random with the pool and returns 32 bytes of mixed entropy. The
// pool is ratcheted forward so the same output is never produced twice.
func (p *EntropyPool) Mix256(random []byte) [32]byte {
	out := SHA256Two(random, p.pool[:])
	p.pool = SHA256Two(p.pool[:], out[:])

	return out
}

// Fill fills dst with random salted by the pool, 32 bytes per Mix256 round.
func (p *EntropyPool) Fill(dst []byte, random io.Reader) error {
	var block [32]byte
	defer Zero(block[:])

	for len(dst) > 0 {
		if _, err := io.ReadFull(random, block[:]); err != nil {
			return err
		}

		mixed := p.Mix256(block[:])
		n := copy(dst, mixed[:])
		Zero(mixed[:])
		dst = dst[n:]
	}

	return nil
}

// Reset wipes the pool.
func (p *EntropyPool) Reset() {
	Zero(p.pool[:])
	p.external = false
}
