package device

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/storage"
)

// LoadRequest describes a LoadDevice call.
type LoadRequest struct {
	// Mnemonic is the seed to store.
	Mnemonic string

	// SkipChecksum stores the mnemonic without checking its BIP39
	// checksum.
	SkipChecksum bool

	// Pin is stored as the device PIN when set and non-empty.
	Pin fn.Option[string]

	// PassphraseProtection turns on the BIP39 passphrase.
	PassphraseProtection bool

	// Label replaces the device label when set.
	Label fn.Option[string]
}

// LoadDevice stores a mnemonic and the settings that come with it on an
// uninitialized device.
func (d *Device) LoadDevice(ctx context.Context, req LoadRequest) error {
	if err := d.checkHalted(); err != nil {
		return err
	}
	if err := d.requireUninitialized(); err != nil {
		return err
	}

	if strings.TrimSpace(req.Mnemonic) == "" {
		return fmt.Errorf("%w: empty mnemonic", ErrInvalidArg)
	}
	if !req.SkipChecksum && !cipher.MnemonicCheck(req.Mnemonic) {
		return ErrInvalidChecksum
	}

	err := d.confirm(
		ctx, protect.ButtonProtectCall, "Loading private seed",
		"is not recommended.", "Continue only if you",
		"know what you are doing!",
	)
	if err != nil {
		return err
	}

	pin := req.Pin.UnwrapOr("")
	if pin != "" {
		if err := d.cfg.Store.SetPin(pin); err != nil {
			return err
		}
	}

	if err := d.storeMnemonic(req.Mnemonic, func(s *storage.Settings) {
		s.PassphraseProtection = req.PassphraseProtection
		req.Label.WhenSome(func(l string) {
			s.Label = l
		})
	}); err != nil {
		return err
	}

	log.Infof("Device loaded")

	return nil
}

// ResetRequest describes a ResetDevice call.
type ResetRequest struct {
	// Strength is the seed strength in bits: 128, 192 or 256. Zero
	// selects 128.
	Strength uint32

	// DisplayRandom shows the device randomness before it is used.
	DisplayRandom bool

	// PassphraseProtection turns on the BIP39 passphrase.
	PassphraseProtection bool

	// PinProtection asks for a new PIN before the seed is stored.
	PinProtection bool

	// Label replaces the device label when set.
	Label fn.Option[string]

	// SkipBackup leaves the new seed marked as needing a backup instead
	// of showing it right away.
	SkipBackup bool
}

// DefaultResetStrength is the seed strength of a ResetDevice without one.
const DefaultResetStrength = 128

// ResetDevice generates a new seed from device randomness salted with host
// entropy, optionally sets a PIN, and shows the words for backup unless
// SkipBackup is set. It fails with ErrEntropyRequired until the host
// supplied entropy.
func (d *Device) ResetDevice(ctx context.Context, req ResetRequest) error {
	if err := d.checkHalted(); err != nil {
		return err
	}
	if err := d.requireUninitialized(); err != nil {
		return err
	}

	strength := req.Strength
	if strength == 0 {
		strength = DefaultResetStrength
	}
	switch strength {
	case 128, 192, 256:
	default:
		return fmt.Errorf("%w: invalid seed strength %d", ErrInvalidArg,
			strength)
	}

	if !d.pool.HasExternal() {
		return ErrEntropyRequired
	}

	mnemonic, err := d.newMnemonic(ctx, int(strength/8), req.DisplayRandom)
	if err != nil {
		return err
	}

	if req.PinProtection {
		if err := d.guard.ChangePin(ctx); err != nil {
			return err
		}
	}

	if err := d.storeMnemonic(mnemonic, func(s *storage.Settings) {
		s.PassphraseProtection = req.PassphraseProtection
		req.Label.WhenSome(func(l string) {
			s.Label = l
		})
	}); err != nil {
		return err
	}

	log.Infof("Device reset with a %d bit seed", strength)

	if req.SkipBackup {
		return nil
	}

	return d.backupWords(ctx, mnemonic)
}

// RecoveryRequest describes a RecoveryDevice call.
type RecoveryRequest struct {
	// WordCount is the length of the mnemonic, 12 or 24. Zero selects 12.
	WordCount uint32

	// PassphraseProtection turns on the BIP39 passphrase.
	PassphraseProtection bool

	// PinProtection asks for a new PIN before the words are entered.
	PinProtection bool

	// Label replaces the device label when set and non-empty.
	Label fn.Option[string]

	// DryRun only checks the entered words against the stored mnemonic.
	DryRun bool
}

// RecoveryDevice asks the user for a mnemonic word by word. A regular
// recovery stores it on an uninitialized device. A dry run checks it against
// the stored mnemonic and changes nothing.
func (d *Device) RecoveryDevice(ctx context.Context,
	req RecoveryRequest) error {

	if err := d.checkHalted(); err != nil {
		return err
	}

	if req.DryRun {
		if err := d.guard.ProtectPin(ctx, true); err != nil {
			return err
		}
		if err := d.requireMnemonic(); err != nil {
			return err
		}
	} else if err := d.requireUninitialized(); err != nil {
		return err
	}

	count := req.WordCount
	if count == 0 {
		count = cipher.MnemonicWordCount12
	}
	if _, err := cipher.EntropyLenForWordCount(count); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArg, err)
	}

	if !req.DryRun {
		err := d.confirm(
			ctx, protect.ButtonRecoveryDevice,
			"Do you really want to", "recover the device?",
		)
		if err != nil {
			return err
		}

		if req.PinProtection {
			if err := d.guard.ChangePin(ctx); err != nil {
				return err
			}
		}
	}

	mnemonic, err := d.readWords(ctx, count)
	if err != nil {
		return err
	}

	if req.DryRun {
		return d.checkRecoveredSeed(mnemonic)
	}

	label := req.Label.UnwrapOr("")
	if err := d.storeMnemonic(mnemonic, func(s *storage.Settings) {
		s.NeedsBackup = false
		s.PassphraseProtection = req.PassphraseProtection
		if label != "" {
			s.Label = label
		}
	}); err != nil {
		return err
	}

	log.Infof("Device recovered from a %d word mnemonic", count)

	return nil
}

// readWords requests count words from the user and returns them as a
// checked mnemonic.
func (d *Device) readWords(ctx context.Context, count uint32) (string,
	error) {

	words := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		word, err := d.cfg.UI.RequestWord(ctx)
		switch {
		case err != nil:
			return "", err

		case !cipher.IsMnemonicWord(word):
			return "", fmt.Errorf("%w: word %d is not a mnemonic "+
				"word", ErrInvalidArg, i+1)
		}

		words = append(words, word)
	}

	mnemonic := strings.Join(words, " ")
	if !cipher.MnemonicCheck(mnemonic) {
		return "", ErrInvalidChecksum
	}

	return mnemonic, nil
}

// checkRecoveredSeed compares a dry run mnemonic with the stored one.
func (d *Device) checkRecoveredSeed(mnemonic string) error {
	stored, err := d.cfg.Store.Mnemonic()
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(mnemonic), []byte(stored)) != 1 {
		return ErrSeedMismatch
	}

	log.Infof("Recovery dry run matched the stored seed")

	return nil
}

// requireUninitialized fails with ErrInitialized when a mnemonic is stored.
func (d *Device) requireUninitialized() error {
	initialized, err := d.cfg.Store.HasMnemonic()
	switch {
	case err != nil:
		return err

	case initialized:
		return ErrInitialized
	}

	return nil
}
