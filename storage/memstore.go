package storage

import (
	"sync"
)

// MemStore is a Store that keeps everything in memory. It is used by tests
// and by emulator sessions that must not touch the disk.
type MemStore struct {
	mu sync.Mutex

	mnemonic string
	pin      string
	fails    uint32
	settings Settings
	closed   bool
}

// A compile time check to ensure MemStore implements the Store interface.
var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	m := &MemStore{}
	m.reset()

	return m
}

func (m *MemStore) reset() {
	id, err := newDeviceID()
	if err != nil {
		id = ""
	}

	m.mnemonic = ""
	m.pin = ""
	m.fails = 0
	m.settings = Settings{
		Language: DefaultLanguage,
		DeviceID: id,
	}
}

func (m *MemStore) lock() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrStoreClosed
	}

	return nil
}

// Mnemonic returns the stored mnemonic or ErrNotFound.
func (m *MemStore) Mnemonic() (string, error) {
	if err := m.lock(); err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	if m.mnemonic == "" {
		return "", ErrNotFound
	}

	return m.mnemonic, nil
}

// SetMnemonic stores the mnemonic.
func (m *MemStore) SetMnemonic(mnemonic string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	m.mnemonic = mnemonic

	return nil
}

// HasMnemonic reports whether a mnemonic is stored.
func (m *MemStore) HasMnemonic() (bool, error) {
	if err := m.lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	return m.mnemonic != "", nil
}

// Pin returns the stored PIN or ErrNotFound.
func (m *MemStore) Pin() (string, error) {
	if err := m.lock(); err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	if m.pin == "" {
		return "", ErrNotFound
	}

	return m.pin, nil
}

// SetPin stores the PIN. An empty PIN removes it.
func (m *MemStore) SetPin(pin string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	m.pin = pin

	return nil
}

// PinFails returns the number of consecutive failed PIN entries.
func (m *MemStore) PinFails() (uint32, error) {
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	return m.fails, nil
}

// SetPinFails stores the failed PIN entry counter.
func (m *MemStore) SetPinFails(fails uint32) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	m.fails = fails

	return nil
}

// Settings returns a copy of the device settings.
func (m *MemStore) Settings() (*Settings, error) {
	if err := m.lock(); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	s := m.settings

	return &s, nil
}

// SetSettings replaces the device settings.
func (m *MemStore) SetSettings(s *Settings) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	m.settings = *s

	return nil
}

// Wipe erases every secret and setting and assigns a new device id.
func (m *MemStore) Wipe() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	m.reset()

	return nil
}

// Close marks the store as closed.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}
