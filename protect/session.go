package protect

import (
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/cipher"
)

// Session is the volatile security state of the device: whether the PIN has
// been entered and the cached passphrase. It is reset on Initialize, wipe and
// auto-lock.
type Session struct {
	mu sync.Mutex

	pinCached  bool
	passphrase fn.Option[[]byte]
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{
		passphrase: fn.None[[]byte](),
	}
}

// PinCached reports whether the PIN was entered during this session.
func (s *Session) PinCached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pinCached
}

// CachePin marks the PIN as entered.
func (s *Session) CachePin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pinCached = true
}

// Passphrase returns the cached passphrase, if any.
func (s *Session) Passphrase() fn.Option[string] {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn.MapOption(func(p []byte) string {
		return string(p)
	})(s.passphrase)
}

// CachePassphrase caches a passphrase. The empty passphrase is a valid entry.
func (s *Session) CachePassphrase(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.zeroPassphrase()
	s.passphrase = fn.Some([]byte(p))
}

func (s *Session) zeroPassphrase() {
	s.passphrase.WhenSome(func(p []byte) {
		cipher.Zero(p)
	})
	s.passphrase = fn.None[[]byte]()
}

// Clear forgets the cached PIN and passphrase.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pinCached = false
	s.zeroPassphrase()
}
