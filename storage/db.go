package storage

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Import to register the bolt backend.
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	// DBFilename is the name of the device database file.
	DBFilename = "device.db"

	// deviceIDLen is the number of random bytes of a device id.
	deviceIDLen = 12
)

var (
	// deviceBucket holds every persisted value of the device.
	deviceBucket = []byte("device")

	mnemonicKey = []byte("mnemonic")
	pinKey      = []byte("pin")
	pinFailsKey = []byte("pin-fails")
	settingsKey = []byte("settings")
)

// newDeviceID returns a fresh random device id.
func newDeviceID() (string, error) {
	var b [deviceIDLen]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(b[:])), nil
}

// DB is a Store backed by a kvdb bolt database.
type DB struct {
	backend kvdb.Backend
}

// A compile time check to ensure DB implements the Store interface.
var _ Store = (*DB)(nil)

// Open opens, creating it if needed, the device database in dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, DBFilename)
	backend, err := kvdb.Create(
		kvdb.BoltBackendName, path, true, kvdb.DefaultDBTimeout, false,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v: %w", path, err)
	}

	db, err := NewDB(backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	log.Debugf("Opened device store at %v", path)

	return db, nil
}

// NewDB wraps an open backend, creating the device bucket and the device id
// if they do not exist yet.
func NewDB(backend kvdb.Backend) (*DB, error) {
	db := &DB{backend: backend}

	err := kvdb.Update(backend, func(tx kvdb.RwTx) error {
		return initBucket(tx)
	}, func() {})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// initBucket creates the device bucket and default settings when missing.
func initBucket(tx kvdb.RwTx) error {
	bucket, err := tx.CreateTopLevelBucket(deviceBucket)
	if err != nil {
		return err
	}

	if bucket.Get(settingsKey) != nil {
		return nil
	}

	id, err := newDeviceID()
	if err != nil {
		return err
	}
	b, err := serializeSettings(&Settings{
		Language: DefaultLanguage,
		DeviceID: id,
	})
	if err != nil {
		return err
	}

	return bucket.Put(settingsKey, b)
}

func (d *DB) get(key []byte) ([]byte, error) {
	var value []byte
	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(deviceBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		v := bucket.Get(key)
		if v == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)

		return nil
	}, func() {
		value = nil
	})

	return value, err
}

func (d *DB) put(key, value []byte) error {
	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(deviceBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		if value == nil {
			return bucket.Delete(key)
		}

		return bucket.Put(key, value)
	}, func() {})
}

// Mnemonic returns the stored mnemonic or ErrNotFound.
func (d *DB) Mnemonic() (string, error) {
	v, err := d.get(mnemonicKey)
	if err != nil {
		return "", err
	}

	return string(v), nil
}

// SetMnemonic stores the mnemonic.
func (d *DB) SetMnemonic(mnemonic string) error {
	return d.put(mnemonicKey, []byte(mnemonic))
}

// HasMnemonic reports whether a mnemonic is stored.
func (d *DB) HasMnemonic() (bool, error) {
	_, err := d.get(mnemonicKey)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil

	case err != nil:
		return false, err
	}

	return true, nil
}

// Pin returns the stored PIN or ErrNotFound.
func (d *DB) Pin() (string, error) {
	v, err := d.get(pinKey)
	if err != nil {
		return "", err
	}

	return string(v), nil
}

// SetPin stores the PIN. An empty PIN removes it.
func (d *DB) SetPin(pin string) error {
	if pin == "" {
		return d.put(pinKey, nil)
	}

	return d.put(pinKey, []byte(pin))
}

// PinFails returns the number of consecutive failed PIN entries.
func (d *DB) PinFails() (uint32, error) {
	v, err := d.get(pinFailsKey)
	switch {
	case errors.Is(err, ErrNotFound):
		return 0, nil

	case err != nil:
		return 0, err

	case len(v) != 4:
		return 0, fmt.Errorf("corrupt pin fail counter of %d bytes",
			len(v))
	}

	return binary.BigEndian.Uint32(v), nil
}

// SetPinFails stores the failed PIN entry counter.
func (d *DB) SetPinFails(fails uint32) error {
	return d.put(pinFailsKey, putUint32(fails))
}

// Settings returns the device settings.
func (d *DB) Settings() (*Settings, error) {
	v, err := d.get(settingsKey)
	if err != nil {
		return nil, err
	}

	return decodeSettings(bytes.NewReader(v))
}

// SetSettings replaces the device settings.
func (d *DB) SetSettings(s *Settings) error {
	b, err := serializeSettings(s)
	if err != nil {
		return err
	}

	return d.put(settingsKey, b)
}

// Wipe erases every secret and setting and assigns a new device id.
func (d *DB) Wipe() error {
	err := kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		err := tx.DeleteTopLevelBucket(deviceBucket)
		if err != nil && !errors.Is(err, kvdb.ErrBucketNotFound) {
			return err
		}

		return initBucket(tx)
	}, func() {})
	if err != nil {
		return err
	}

	log.Infof("Device storage wiped")

	return nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.backend.Close()
}
