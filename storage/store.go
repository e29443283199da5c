package storage

import (
	"errors"
)

var (
	// ErrNotFound is returned when a value has never been stored.
	ErrNotFound = errors.New("value not found")

	// ErrStoreClosed is returned when the store is used after Close.
	ErrStoreClosed = errors.New("store is closed")
)

// DefaultLanguage is the only language the device supports.
const DefaultLanguage = "english"

// Settings are the persisted device options.
type Settings struct {
	// Label is the user chosen device name.
	Label string

	// Language is the UI language.
	Language string

	// PassphraseProtection enables the BIP39 passphrase prompt.
	PassphraseProtection bool

	// NeedsBackup is set when a generated mnemonic has not been shown to
	// the user yet.
	NeedsBackup bool

	// DeviceID is a random identifier created when the store is first
	// opened or wiped.
	DeviceID string
}

// Store is the persistent device storage.
type Store interface {
	// Mnemonic returns the stored mnemonic or ErrNotFound.
	Mnemonic() (string, error)

	// SetMnemonic stores the mnemonic.
	SetMnemonic(mnemonic string) error

	// HasMnemonic reports whether a mnemonic is stored.
	HasMnemonic() (bool, error)

	// Pin returns the stored PIN or ErrNotFound.
	Pin() (string, error)

	// SetPin stores the PIN. An empty PIN removes it.
	SetPin(pin string) error

	// PinFails returns the number of consecutive failed PIN entries.
	PinFails() (uint32, error)

	// SetPinFails stores the failed PIN entry counter.
	SetPinFails(fails uint32) error

	// Settings returns the device settings.
	Settings() (*Settings, error)

	// SetSettings replaces the device settings.
	SetSettings(s *Settings) error

	// Wipe erases every secret and setting and assigns a new device id.
	Wipe() error

	// Close releases the store.
	Close() error
}
