package device

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/build"
	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/keychain"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/storage"
	"github.com/skyhw/signcore/txsign"
)

const (
	// Vendor is reported in the device features.
	Vendor = "Skycoin Foundation"

	// Model is reported in the device features.
	Model = "1"
)

// Config holds the collaborators of a Device.
type Config struct {
	// Store is the persistent device storage.
	Store storage.Store

	// UI is the user interaction capability.
	UI protect.UI

	// Clock drives the PIN backoff. Defaults to the system clock.
	Clock clock.Clock

	// Rand is the device random source. Defaults to crypto/rand.
	Rand io.Reader

	// EntropyRequired makes mnemonic generation wait for host supplied
	// entropy.
	EntropyRequired bool

	// Emulator is reported in the device features.
	Emulator bool
}

// Features describes the device to the host.
type Features struct {
	Vendor               string
	Version              string
	Model                string
	DeviceID             string
	Label                string
	Language             string
	Initialized          bool
	PinProtection        bool
	PassphraseProtection bool
	PinCached            bool
	PassphraseCached     bool
	NeedsBackup          bool
	Emulator             bool
}

// SettingsUpdate is a partial update of the device settings. At least one
// field must be set.
type SettingsUpdate struct {
	Label         fn.Option[string]
	Language      fn.Option[string]
	UsePassphrase fn.Option[bool]
}

// Device is the message level facade of the signing core. It owns the single
// signing session and the PIN session of the device. Handlers must be called
// one at a time.
type Device struct {
	cfg Config

	guard *protect.Guard
	tx    *txsign.Ctx
	pool  cipher.EntropyPool
}

// New creates a device over the given collaborators.
func New(cfg Config) *Device {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}

	d := &Device{
		cfg: cfg,
		guard: protect.NewGuard(protect.Config{
			Store: cfg.Store,
			UI:    cfg.UI,
			Clock: cfg.Clock,
		}),
	}
	d.tx = txsign.NewCtx(&txSigner{d: d})

	return d
}

// Session returns the volatile PIN and passphrase session.
func (d *Device) Session() *protect.Session {
	return d.guard.Session()
}

// Guard returns the PIN guard of the device.
func (d *Device) Guard() *protect.Guard {
	return d.guard
}

// Halted reports whether the device stopped serving after the PIN lockout
// wiped it. A halted device fails every request until it is restarted.
func (d *Device) Halted() bool {
	return d.guard.Locked()
}

// checkHalted fails with ErrHalted on a halted device.
func (d *Device) checkHalted() error {
	if d.guard.Locked() {
		return ErrHalted
	}

	return nil
}

// SigningActive reports whether a transaction signing session is open.
func (d *Device) SigningActive() bool {
	return d.tx.Active()
}

// Initialize resets the volatile state and returns the device features.
func (d *Device) Initialize() (*Features, error) {
	d.guard.Session().Clear()
	d.tx.Cancel()

	return d.GetFeatures()
}

// Cancel aborts an open signing session.
func (d *Device) Cancel() {
	d.tx.Cancel()
}

// GetFeatures returns the device description.
func (d *Device) GetFeatures() (*Features, error) {
	if err := d.checkHalted(); err != nil {
		return nil, err
	}

	settings, err := d.cfg.Store.Settings()
	if err != nil {
		return nil, err
	}
	initialized, err := d.cfg.Store.HasMnemonic()
	if err != nil {
		return nil, err
	}
	hasPin := true
	_, err = d.cfg.Store.Pin()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		hasPin = false

	case err != nil:
		return nil, err
	}

	session := d.guard.Session()

	return &Features{
		Vendor:               Vendor,
		Version:              build.Version(),
		Model:                Model,
		DeviceID:             settings.DeviceID,
		Label:                settings.Label,
		Language:             settings.Language,
		Initialized:          initialized,
		PinProtection:        hasPin,
		PassphraseProtection: settings.PassphraseProtection,
		PinCached:            session.PinCached(),
		PassphraseCached:     session.Passphrase().IsSome(),
		NeedsBackup:          settings.NeedsBackup,
		Emulator:             d.cfg.Emulator,
	}, nil
}

// EntropyRequired reports whether GenerateMnemonic is waiting for host
// entropy.
func (d *Device) EntropyRequired() bool {
	return d.cfg.EntropyRequired && !d.pool.HasExternal()
}

// EntropyAck mixes host supplied entropy into the device pool.
func (d *Device) EntropyAck(entropy []byte) error {
	if err := d.checkHalted(); err != nil {
		return err
	}

	if err := d.pool.AddExternal(entropy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArg, err)
	}

	return nil
}

// requireMnemonic fails with ErrMnemonicRequired on an uninitialized device.
func (d *Device) requireMnemonic() error {
	ok, err := d.cfg.Store.HasMnemonic()
	switch {
	case err != nil:
		return err

	case !ok:
		return ErrMnemonicRequired
	}

	return nil
}

// unlockSeed checks the PIN and the mnemonic and makes sure a passphrase is
// cached when passphrase protection is on.
func (d *Device) unlockSeed(ctx context.Context) error {
	if err := d.guard.ProtectPin(ctx, true); err != nil {
		return err
	}
	if err := d.requireMnemonic(); err != nil {
		return err
	}

	ok, err := d.guard.ProtectPassphrase(ctx)
	switch {
	case err != nil:
		return err

	case !ok:
		return ErrActionCancelled
	}

	return nil
}

// seed derives the BIP39 seed of the stored mnemonic and the cached
// passphrase. The caller must zero it.
func (d *Device) seed() ([]byte, error) {
	mnemonic, err := d.cfg.Store.Mnemonic()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrMnemonicRequired

	case err != nil:
		return nil, err
	}

	settings, err := d.cfg.Store.Settings()
	if err != nil {
		return nil, err
	}

	passphrase := ""
	if settings.PassphraseProtection {
		passphrase = d.guard.Session().Passphrase().UnwrapOr("")
	}

	return cipher.MnemonicToSeed(mnemonic, passphrase), nil
}

// withSeed runs f with the device seed and zeroes it afterwards.
func (d *Device) withSeed(f func(seed []byte) error) error {
	seed, err := d.seed()
	if err != nil {
		return err
	}
	defer cipher.Zero(seed)

	return f(seed)
}

// withKeyRing runs f with a key ring over the device seed. The ring is wiped
// when f returns.
func (d *Device) withKeyRing(f func(keychain.SecretKeyRing) error) error {
	return d.withSeed(func(seed []byte) error {
		ring := keychain.NewSeedKeyRing(seed)
		defer ring.Zero()

		return f(ring)
	})
}

// externalLocator locates an external chain index of the first account.
func externalLocator(index uint32) keychain.KeyLocator {
	return keychain.KeyLocator{
		Account: keychain.HardenedKeyStart,
		Change:  keychain.ChangeExternal,
		Index:   index,
	}
}

// updateSettings applies f to the stored settings.
func (d *Device) updateSettings(f func(*storage.Settings)) error {
	settings, err := d.cfg.Store.Settings()
	if err != nil {
		return err
	}
	f(settings)

	return d.cfg.Store.SetSettings(settings)
}

// txSigner gives the signing session access to the device keys and UI.
type txSigner struct {
	d *Device
}

// ConfirmOutput shows an output on the device.
func (s *txSigner) ConfirmOutput(ctx context.Context,
	out txsign.Output) (bool, error) {

	return s.d.guard.ProtectButton(
		ctx, protect.ButtonConfirmOutput,
		fmt.Sprintf("Send %d coins and %d hours", out.Coins, out.Hours),
		out.Address,
	)
}

// DeriveAddress derives an external chain address.
func (s *txSigner) DeriveAddress(index uint32) (cipher.Address, error) {
	var addr cipher.Address
	err := s.d.withKeyRing(func(ring keychain.SecretKeyRing) error {
		var err error
		addr, err = ring.DeriveAddress(externalLocator(index))

		return err
	})

	return addr, err
}

// SignDigest signs with an external chain key.
func (s *txSigner) SignDigest(index uint32,
	digest [32]byte) (cipher.Sig, error) {

	var sig cipher.Sig
	err := s.d.withKeyRing(func(ring keychain.SecretKeyRing) error {
		var err error
		sig, err = ring.SignDigestCompact(
			externalLocator(index), digest[:],
		)

		return err
	})

	return sig, err
}
