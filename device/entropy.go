package device

import (
	"context"
	"fmt"
	"io"

	"github.com/skyhw/signcore/protect"
)

// MaxEntropySize bounds the answer of GetRawEntropy and GetMixedEntropy.
// Larger requests are truncated.
const MaxEntropySize = 1024

// confirmEntropy asks the user before randomness leaves the device.
func (d *Device) confirmEntropy(ctx context.Context) error {
	return d.confirm(
		ctx, protect.ButtonGetEntropy, "Do you really want to",
		"send entropy?",
	)
}

// GetRawEntropy returns up to MaxEntropySize bytes read straight from the
// device random source.
func (d *Device) GetRawEntropy(ctx context.Context, size uint32) ([]byte,
	error) {

	if err := d.checkHalted(); err != nil {
		return nil, err
	}
	if err := d.confirmEntropy(ctx); err != nil {
		return nil, err
	}

	buf := make([]byte, min(size, MaxEntropySize))
	if _, err := io.ReadFull(d.cfg.Rand, buf); err != nil {
		return nil, fmt.Errorf("reading device randomness: %w", err)
	}

	return buf, nil
}

// GetMixedEntropy returns up to MaxEntropySize bytes of device randomness
// salted with the entropy pool. The pool ratchets forward as it is read.
func (d *Device) GetMixedEntropy(ctx context.Context, size uint32) ([]byte,
	error) {

	if err := d.checkHalted(); err != nil {
		return nil, err
	}
	if err := d.confirmEntropy(ctx); err != nil {
		return nil, err
	}

	buf := make([]byte, min(size, MaxEntropySize))
	if err := d.pool.Fill(buf, d.cfg.Rand); err != nil {
		return nil, fmt.Errorf("reading device randomness: %w", err)
	}

	return buf, nil
}
