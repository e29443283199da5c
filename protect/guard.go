package protect

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/skyhw/signcore/storage"
)

// WipeThreshold is the number of consecutive wrong PIN entries after which
// the device storage is wiped.
const WipeThreshold = 15

var (
	// ErrPinCancelled is returned when a PIN request or the backoff wait
	// is aborted by the host.
	ErrPinCancelled = errors.New("PIN cancelled")

	// ErrPinInvalid is returned when the entered PIN is wrong.
	ErrPinInvalid = errors.New("invalid PIN")

	// ErrPinLockout is returned once too many wrong PINs were entered. The
	// storage has been wiped and the device must be restarted.
	ErrPinLockout = errors.New("too many wrong PIN attempts, storage " +
		"has been wiped")

	// ErrPinRequired is returned when a new PIN entry is empty.
	ErrPinRequired = errors.New("PIN required")

	// ErrPinMismatch is returned when the two entries of a new PIN
	// differ.
	ErrPinMismatch = errors.New("PIN mismatch")
)

// BackoffWait returns how long the user must wait before entering a PIN after
// the given number of consecutive failures: 2^fails seconds.
func BackoffWait(fails uint32) time.Duration {
	if fails >= WipeThreshold {
		return time.Duration(1<<WipeThreshold) * time.Second
	}

	return time.Duration(uint64(1)<<fails) * time.Second
}

// lockedOut reports whether the wait for fails reaches the wipe threshold.
func lockedOut(fails uint32) bool {
	return BackoffWait(fails) >= BackoffWait(WipeThreshold)
}

// Config holds the collaborators of a Guard.
type Config struct {
	// Store persists the PIN and its fail counter.
	Store storage.Store

	// UI is used to request PINs, passphrases and confirmations.
	UI UI

	// Clock drives the backoff wait.
	Clock clock.Clock

	// Session is the volatile session state.
	Session *Session
}

// Guard enforces PIN, passphrase and button protection.
type Guard struct {
	cfg Config

	locked atomic.Bool
}

// NewGuard creates a guard. A nil clock defaults to the wall clock.
func NewGuard(cfg Config) *Guard {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Session == nil {
		cfg.Session = NewSession()
	}

	return &Guard{cfg: cfg}
}

// Session returns the session the guard caches into.
func (g *Guard) Session() *Session {
	return g.cfg.Session
}

// Locked reports whether the device was wiped after too many wrong PINs.
func (g *Guard) Locked() bool {
	return g.locked.Load()
}

// lockout wipes the storage and session and latches the locked state.
func (g *Guard) lockout() error {
	log.Errorf("PIN entered wrong %d times, wiping storage",
		WipeThreshold)

	g.locked.Store(true)
	g.cfg.Session.Clear()
	if err := g.cfg.Store.Wipe(); err != nil {
		return fmt.Errorf("%w: wipe failed: %w", ErrPinLockout, err)
	}

	return ErrPinLockout
}

// hasPin reports whether a PIN is stored.
func (g *Guard) hasPin() (bool, error) {
	_, err := g.cfg.Store.Pin()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return false, nil

	case err != nil:
		return false, err
	}

	return true, nil
}

// waitBackoff waits out the backoff one second at a time, aborting when the
// host sends Initialize or the context ends.
func (g *Guard) waitBackoff(ctx context.Context, wait time.Duration) error {
	for wait > 0 {
		select {
		case <-g.cfg.Clock.TickAfter(time.Second):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrPinCancelled, ctx.Err())
		}

		if g.cfg.UI.PollNextMessage() == MsgInitialize {
			log.Debugf("PIN wait aborted by initialize")
			return ErrPinCancelled
		}
		wait -= time.Second
	}

	return nil
}

// ProtectPin makes sure the user entered the PIN. With useCached a PIN
// entered earlier in the session is accepted.
func (g *Guard) ProtectPin(ctx context.Context, useCached bool) error {
	if g.Locked() {
		return ErrPinLockout
	}

	hasPin, err := g.hasPin()
	if err != nil {
		return err
	}
	if !hasPin || (useCached && g.cfg.Session.PinCached()) {
		return nil
	}

	fails, err := g.cfg.Store.PinFails()
	if err != nil {
		return err
	}
	if lockedOut(fails) {
		return g.lockout()
	}

	wait := BackoffWait(fails)
	log.Debugf("Waiting %v before PIN entry after %d failures", wait,
		fails)
	if err := g.waitBackoff(ctx, wait); err != nil {
		return err
	}

	pin, err := g.cfg.UI.RequestPin(ctx, PinCurrent)
	switch {
	case errors.Is(err, ErrUICancelled), errors.Is(err, ErrUIInitialize):
		return ErrPinCancelled

	case err != nil:
		return err
	}

	// The failure is recorded before the comparison so that an
	// interrupted check still counts.
	fails++
	if err := g.cfg.Store.SetPinFails(fails); err != nil {
		return fmt.Errorf("recording PIN attempt: %w", err)
	}

	stored, err := g.cfg.Store.Pin()
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(pin), []byte(stored)) != 1 {
		log.Infof("Wrong PIN entered, %d consecutive failures", fails)

		if lockedOut(fails) {
			return g.lockout()
		}

		return ErrPinInvalid
	}

	g.cfg.Session.CachePin()

	return g.cfg.Store.SetPinFails(0)
}

// ChangePin asks twice for a new PIN and stores it.
func (g *Guard) ChangePin(ctx context.Context) error {
	first, err := g.requestNewPin(ctx, PinNewFirst)
	if err != nil {
		return err
	}
	second, err := g.requestNewPin(ctx, PinNewSecond)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(first), []byte(second)) != 1 {
		return ErrPinMismatch
	}

	if err := g.cfg.Store.SetPin(first); err != nil {
		return err
	}
	g.cfg.Session.CachePin()

	log.Infof("PIN changed")

	return nil
}

func (g *Guard) requestNewPin(ctx context.Context, kind PinKind) (string,
	error) {

	pin, err := g.cfg.UI.RequestPin(ctx, kind)
	switch {
	case errors.Is(err, ErrUICancelled), errors.Is(err, ErrUIInitialize):
		return "", ErrPinCancelled

	case err != nil:
		return "", err

	case pin == "":
		return "", ErrPinRequired
	}

	return pin, nil
}

// RemovePin clears the stored PIN.
func (g *Guard) RemovePin() error {
	if err := g.cfg.Store.SetPin(""); err != nil {
		return err
	}

	log.Infof("PIN removed")

	return nil
}

// ProtectPassphrase makes sure a passphrase is cached when passphrase
// protection is enabled. It returns false if the user aborted the entry.
func (g *Guard) ProtectPassphrase(ctx context.Context) (bool, error) {
	settings, err := g.cfg.Store.Settings()
	if err != nil {
		return false, err
	}
	if !settings.PassphraseProtection ||
		g.cfg.Session.Passphrase().IsSome() {

		return true, nil
	}

	passphrase, err := g.cfg.UI.RequestPassphrase(ctx)
	switch {
	case errors.Is(err, ErrUICancelled), errors.Is(err, ErrUIInitialize):
		return false, nil

	case err != nil:
		return false, err
	}

	g.cfg.Session.CachePassphrase(passphrase)

	return true, nil
}

// ProtectButton asks the user to confirm an action on the device. It returns
// false if the user rejected it or the host aborted the request.
func (g *Guard) ProtectButton(ctx context.Context, kind ButtonKind,
	text ...string) (bool, error) {

	ok, err := g.cfg.UI.Confirm(ctx, kind, text...)
	switch {
	case errors.Is(err, ErrUICancelled), errors.Is(err, ErrUIInitialize):
		return false, nil

	case err != nil:
		return false, err
	}

	return ok, nil
}
