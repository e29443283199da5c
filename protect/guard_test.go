package protect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skyhw/signcore/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// instantClock returns ticks immediately and records the total time waited.
type instantClock struct {
	mu     sync.Mutex
	now    time.Time
	waited time.Duration
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *instantClock) TickAfter(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.waited += d
	c.now = c.now.Add(d)

	ch := make(chan time.Time, 1)
	ch <- c.now

	return ch
}

func (c *instantClock) Waited() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.waited
}

// mockUI is a testify mock of the UI capability.
type mockUI struct {
	mock.Mock
}

func (m *mockUI) RequestPin(_ context.Context, kind PinKind) (string,
	error) {

	args := m.Called(kind)
	return args.String(0), args.Error(1)
}

func (m *mockUI) RequestPassphrase(_ context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockUI) Confirm(_ context.Context, kind ButtonKind,
	text ...string) (bool, error) {

	args := m.Called(kind)
	return args.Bool(0), args.Error(1)
}

func (m *mockUI) RequestWord(_ context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *mockUI) PollNextMessage() MessageKind {
	args := m.Called()
	return args.Get(0).(MessageKind)
}

type guardHarness struct {
	guard *Guard
	store *storage.MemStore
	ui    *mockUI
	clock *instantClock
}

func newGuardHarness(t *testing.T, pin string) *guardHarness {
	t.Helper()

	store := storage.NewMemStore()
	require.NoError(t, store.SetPin(pin))

	ui := &mockUI{}
	ui.On("PollNextMessage").Return(MsgNone).Maybe()

	clk := &instantClock{now: time.Unix(0, 0)}

	return &guardHarness{
		guard: NewGuard(Config{
			Store:   store,
			UI:      ui,
			Clock:   clk,
			Session: NewSession(),
		}),
		store: store,
		ui:    ui,
		clock: clk,
	}
}

func TestBackoffWait(t *testing.T) {
	t.Parallel()

	for fails := uint32(0); fails < WipeThreshold; fails++ {
		require.Equal(
			t, time.Duration(1<<fails)*time.Second,
			BackoffWait(fails),
		)
		require.False(t, lockedOut(fails))
	}
	require.True(t, lockedOut(WipeThreshold))
	require.True(t, lockedOut(40))
}

// TestBackoffMonotonic checks that more failures never shorten the wait.
func TestBackoffMonotonic(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Uint32Range(0, 64).Draw(t, "a")
		b := rapid.Uint32Range(0, 64).Draw(t, "b")
		if a > b {
			a, b = b, a
		}

		require.LessOrEqual(t, BackoffWait(a), BackoffWait(b))
		if b < WipeThreshold && a < b {
			require.Less(t, BackoffWait(a), BackoffWait(b))
		}
	})
}

func TestProtectPinNoPin(t *testing.T) {
	t.Parallel()

	h := newGuardHarness(t, "")
	require.NoError(t, h.guard.ProtectPin(context.Background(), true))
	require.NoError(t, h.guard.ProtectPin(context.Background(), false))
	h.ui.AssertNotCalled(t, "RequestPin", mock.Anything)
}

func TestProtectPinCorrect(t *testing.T) {
	t.Parallel()

	h := newGuardHarness(t, "1234")
	require.NoError(t, h.store.SetPinFails(3))

	h.ui.On("RequestPin", PinCurrent).Return("1234", nil).Once()

	require.NoError(t, h.guard.ProtectPin(context.Background(), true))
	require.True(t, h.guard.Session().PinCached())
	require.Equal(t, BackoffWait(3), h.clock.Waited())

	fails, err := h.store.PinFails()
	require.NoError(t, err)
	require.Zero(t, fails)

	// The cached PIN is used on the next call.
	require.NoError(t, h.guard.ProtectPin(context.Background(), true))
	h.ui.AssertExpectations(t)
}

func TestProtectPinWrong(t *testing.T) {
	t.Parallel()

	h := newGuardHarness(t, "1234")
	h.ui.On("RequestPin", PinCurrent).Return("4321", nil).Once()

	err := h.guard.ProtectPin(context.Background(), true)
	require.ErrorIs(t, err, ErrPinInvalid)
	require.False(t, h.guard.Session().PinCached())

	fails, err := h.store.PinFails()
	require.NoError(t, err)
	require.EqualValues(t, 1, fails)
}

// failCountingStore records the fail counter when the PIN is read so the
// test can check that the failure was persisted before the comparison.
type failCountingStore struct {
	*storage.MemStore

	failsAtCompare uint32
}

func (s *failCountingStore) Pin() (string, error) {
	fails, err := s.MemStore.PinFails()
	if err != nil {
		return "", err
	}
	s.failsAtCompare = fails

	return s.MemStore.Pin()
}

func TestProtectPinCountsBeforeCompare(t *testing.T) {
	t.Parallel()

	store := &failCountingStore{MemStore: storage.NewMemStore()}
	require.NoError(t, store.SetPin("1"))
	require.NoError(t, store.SetPinFails(2))

	ui := &mockUI{}
	ui.On("PollNextMessage").Return(MsgNone).Maybe()
	ui.On("RequestPin", PinCurrent).Return("1", nil).Once()

	guard := NewGuard(Config{
		Store: store,
		UI:    ui,
		Clock: &instantClock{},
	})
	require.NoError(t, guard.ProtectPin(context.Background(), false))
	require.EqualValues(t, 3, store.failsAtCompare)
}

// brokenFailsStore cannot persist the PIN fail counter.
type brokenFailsStore struct {
	*storage.MemStore
}

var errFailsWrite = errors.New("fail counter write failed")

func (s *brokenFailsStore) SetPinFails(uint32) error {
	return errFailsWrite
}

// TestProtectPinFailCounterWriteError ensures that a storage failure while
// recording the attempt is reported as such and the PIN is not accepted.
func TestProtectPinFailCounterWriteError(t *testing.T) {
	t.Parallel()

	store := &brokenFailsStore{MemStore: storage.NewMemStore()}
	require.NoError(t, store.SetPin("1234"))

	ui := &mockUI{}
	ui.On("PollNextMessage").Return(MsgNone).Maybe()
	ui.On("RequestPin", PinCurrent).Return("1234", nil).Once()

	guard := NewGuard(Config{
		Store: store,
		UI:    ui,
		Clock: &instantClock{},
	})

	err := guard.ProtectPin(context.Background(), true)
	require.ErrorIs(t, err, errFailsWrite)
	require.NotErrorIs(t, err, ErrPinInvalid)
	require.False(t, guard.Session().PinCached())
}

func TestProtectPinLockout(t *testing.T) {
	t.Parallel()

	h := newGuardHarness(t, "1234")
	require.NoError(t, h.store.SetMnemonic("words"))
	require.NoError(t, h.store.SetPinFails(WipeThreshold-1))
	h.ui.On("RequestPin", PinCurrent).Return("0000", nil).Once()

	err := h.guard.ProtectPin(context.Background(), true)
	require.ErrorIs(t, err, ErrPinLockout)
	require.True(t, h.guard.Locked())

	has, err := h.store.HasMnemonic()
	require.NoError(t, err)
	require.False(t, has)

	// The guard stays locked even though the wiped store has no PIN.
	err = h.guard.ProtectPin(context.Background(), true)
	require.ErrorIs(t, err, ErrPinLockout)
}

func TestProtectPinLockoutBeforeWait(t *testing.T) {
	t.Parallel()

	h := newGuardHarness(t, "1234")
	require.NoError(t, h.store.SetPinFails(WipeThreshold))

	err := h.guard.ProtectPin(context.Background(), true)
	require.ErrorIs(t, err, ErrPinLockout)
	require.Zero(t, h.clock.Waited())
	h.ui.AssertNotCalled(t, "RequestPin", mock.Anything)
}

func TestProtectPinInitializeAbortsWait(t *testing.T) {
	t.Parallel()

	store := storage.NewMemStore()
	require.NoError(t, store.SetPin("1"))
	require.NoError(t, store.SetPinFails(4))

	ui := &mockUI{}
	ui.On("PollNextMessage").Return(MsgNone).Times(2)
	ui.On("PollNextMessage").Return(MsgInitialize).Once()

	clk := &instantClock{}
	guard := NewGuard(Config{Store: store, UI: ui, Clock: clk})

	err := guard.ProtectPin(context.Background(), true)
	require.ErrorIs(t, err, ErrPinCancelled)
	require.Equal(t, 3*time.Second, clk.Waited())
	ui.AssertNotCalled(t, "RequestPin", mock.Anything)

	// An aborted wait is not a failure.
	fails, err := store.PinFails()
	require.NoError(t, err)
	require.EqualValues(t, 4, fails)
}

func TestProtectPinContextCancel(t *testing.T) {
	t.Parallel()

	h := newGuardHarness(t, "1234")

	// A clock that never ticks leaves only the context to end the wait.
	h.guard.cfg.Clock = &stuckClock{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.guard.ProtectPin(ctx, true)
	require.ErrorIs(t, err, ErrPinCancelled)
	require.ErrorIs(t, err, context.Canceled)
}

type stuckClock struct{}

func (stuckClock) Now() time.Time { return time.Time{} }

func (stuckClock) TickAfter(time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

func TestProtectPinCancelled(t *testing.T) {
	t.Parallel()

	for _, uiErr := range []error{ErrUICancelled, ErrUIInitialize} {
		h := newGuardHarness(t, "1234")
		h.ui.On("RequestPin", PinCurrent).Return("", uiErr).Once()

		err := h.guard.ProtectPin(context.Background(), true)
		require.ErrorIs(t, err, ErrPinCancelled)
	}
}

func TestChangePin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		first  string
		second string
		err    error
	}{
		{name: "ok", first: "1111", second: "1111"},
		{name: "mismatch", first: "1111", second: "2222",
			err: ErrPinMismatch},
		{name: "empty second", first: "1111", second: "",
			err: ErrPinRequired},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newGuardHarness(t, "9")
			h.ui.On("RequestPin", PinNewFirst).Return(test.first, nil)
			h.ui.On("RequestPin", PinNewSecond).Return(
				test.second, nil,
			)

			err := h.guard.ChangePin(context.Background())
			pin, pinErr := h.store.Pin()
			require.NoError(t, pinErr)

			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				require.Equal(t, "9", pin)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.first, pin)
			require.True(t, h.guard.Session().PinCached())
		})
	}

	// An empty first entry never asks for the second one.
	h := newGuardHarness(t, "9")
	h.ui.On("RequestPin", PinNewFirst).Return("", nil).Once()
	require.ErrorIs(
		t, h.guard.ChangePin(context.Background()), ErrPinRequired,
	)
	h.ui.AssertNotCalled(t, "RequestPin", PinNewSecond)

	require.NoError(t, h.guard.RemovePin())
	_, err := h.store.Pin()
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProtectPassphrase(t *testing.T) {
	t.Parallel()

	h := newGuardHarness(t, "")
	ctx := context.Background()

	// Protection disabled.
	ok, err := h.guard.ProtectPassphrase(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	settings, err := h.store.Settings()
	require.NoError(t, err)
	settings.PassphraseProtection = true
	require.NoError(t, h.store.SetSettings(settings))

	h.ui.On("RequestPassphrase").Return("", ErrUICancelled).Once()
	ok, err = h.guard.ProtectPassphrase(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, h.guard.Session().Passphrase().IsNone())

	// The empty passphrase is a valid entry and is cached.
	h.ui.On("RequestPassphrase").Return("", nil).Once()
	ok, err = h.guard.ProtectPassphrase(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "", h.guard.Session().Passphrase().UnwrapOr("x"))

	ok, err = h.guard.ProtectPassphrase(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	h.guard.Session().Clear()
	require.True(t, h.guard.Session().Passphrase().IsNone())
	h.ui.AssertExpectations(t)
}

func TestProtectButton(t *testing.T) {
	t.Parallel()

	h := newGuardHarness(t, "")
	ctx := context.Background()

	h.ui.On("Confirm", ButtonWipeDevice).Return(true, nil).Once()
	ok, err := h.guard.ProtectButton(ctx, ButtonWipeDevice, "Wipe?")
	require.NoError(t, err)
	require.True(t, ok)

	h.ui.On("Confirm", ButtonWipeDevice).Return(false, nil).Once()
	ok, err = h.guard.ProtectButton(ctx, ButtonWipeDevice)
	require.NoError(t, err)
	require.False(t, ok)

	h.ui.On("Confirm", ButtonOther).Return(
		false, ErrUIInitialize,
	).Once()
	ok, err = h.guard.ProtectButton(ctx, ButtonOther)
	require.NoError(t, err)
	require.False(t, ok)

	h.ui.On("Confirm", ButtonAddress).Return(
		false, ErrUnexpectedMessage,
	).Once()
	_, err = h.guard.ProtectButton(ctx, ButtonAddress)
	require.ErrorIs(t, err, ErrUnexpectedMessage)
}
