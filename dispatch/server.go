package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/skyhw/signcore/device"
	"github.com/skyhw/signcore/hwwire"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/storage"
)

// DefaultAutoLock is the idle interval after which the PIN and passphrase
// cache is cleared.
const DefaultAutoLock = 10 * time.Minute

// Config holds the collaborators of a Server.
type Config struct {
	// In is the stream the host writes frames to.
	In io.Reader

	// Out is the stream responses and device requests are written to.
	Out io.Writer

	// Store is the persistent device storage.
	Store storage.Store

	// Clock drives the PIN backoff.
	Clock clock.Clock

	// Rand is the device random source.
	Rand io.Reader

	// EntropyRequired makes GenerateMnemonic ask the host for entropy.
	EntropyRequired bool

	// Emulator is reported in the device features.
	Emulator bool

	// AutoLock ticks once per auto-lock interval. A nil ticker disables
	// auto-lock.
	AutoLock ticker.Ticker

	// Buttons decides the physical button press once the host acknowledged
	// a ButtonRequest. A nil function accepts every request.
	Buttons func(kind protect.ButtonKind, text []string) bool
}

// ErrInputClosed is returned to a waiting handler when the host input can no
// longer be read.
var ErrInputClosed = errors.New("host input closed")

// frame is the outcome of reading one message from the input.
type frame struct {
	msg hwwire.Message
	err error
}

// recoverable reports whether the input is still aligned after err.
func recoverable(err error) bool {
	var unknown *hwwire.UnknownMessage
	return errors.Is(err, hwwire.ErrMalformedMessage) ||
		errors.As(err, &unknown)
}

// Server serves a single device over a framed byte stream. Messages are
// handled one at a time. While a handler waits for the user, replies to its
// requests are read from the same stream.
type Server struct {
	cfg Config
	dev *device.Device

	frames  chan frame
	pending *frame

	// readErr is the error that stopped the reader.
	readErr error

	// idle is set by every auto-lock tick and cleared by every message.
	idle bool

	started sync.Once
	quit    chan struct{}
}

// New creates a server and the device it serves.
func New(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		frames: make(chan frame),
		quit:   make(chan struct{}),
	}
	s.dev = device.New(device.Config{
		Store:           cfg.Store,
		UI:              &wireUI{s: s},
		Clock:           cfg.Clock,
		Rand:            cfg.Rand,
		EntropyRequired: cfg.EntropyRequired,
		Emulator:        cfg.Emulator,
	})

	return s
}

// Device returns the served device.
func (s *Server) Device() *device.Device {
	return s.dev
}

// Run serves messages until the input ends or ctx is done. A clean end of
// input returns nil. After a PIN lockout the failure is sent and Run returns
// device.ErrHalted. Run may only be called once.
func (s *Server) Run(ctx context.Context) error {
	err := errors.New("server already started")
	s.started.Do(func() {
		err = s.run(ctx)
	})

	return err
}

func (s *Server) run(ctx context.Context) error {
	// The reader exits after its next read once quit is closed.
	go s.readHandler()
	defer close(s.quit)

	var ticks <-chan time.Time
	if s.cfg.AutoLock != nil {
		s.cfg.AutoLock.Resume()
		defer s.cfg.AutoLock.Stop()

		ticks = s.cfg.AutoLock.Ticks()
	}

	log.Infof("Serving device")

	for {
		if s.readErr != nil {
			return s.exitErr()
		}

		// A frame peeked while the previous request was running is
		// served first.
		if f, ok := s.takePending(); ok {
			if err := s.serve(ctx, f); err != nil {
				return err
			}
			continue
		}

		select {
		case f := <-s.frames:
			if err := s.serve(ctx, f); err != nil {
				return err
			}

		case <-ticks:
			s.autoLock()

		case <-ctx.Done():
			log.Infof("Server shutting down")
			return nil
		}
	}
}

// exitErr converts the reader error into the result of Run.
func (s *Server) exitErr() error {
	if errors.Is(s.readErr, io.EOF) {
		log.Infof("Host closed the connection")
		return nil
	}

	return fmt.Errorf("reading message: %w", s.readErr)
}

// readHandler reads frames until a read error leaves the stream unusable.
func (s *Server) readHandler() {
	for {
		msg, err := hwwire.ReadMessage(s.cfg.In)

		select {
		case s.frames <- frame{msg: msg, err: err}:
		case <-s.quit:
			return
		}

		if err != nil && !recoverable(err) {
			return
		}
	}
}

// takePending returns the peeked frame, if any.
func (s *Server) takePending() (frame, bool) {
	if s.pending == nil {
		return frame{}, false
	}

	f := *s.pending
	s.pending = nil

	return f, true
}

// next blocks for the next frame.
func (s *Server) next(ctx context.Context) (frame, error) {
	if f, ok := s.takePending(); ok {
		return f, nil
	}

	select {
	case f := <-s.frames:
		return f, nil

	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

// peek returns the next frame without consuming it, if one is available.
func (s *Server) peek() (frame, bool) {
	if s.pending != nil {
		return *s.pending, true
	}

	select {
	case f := <-s.frames:
		s.pending = &f
		return f, true

	default:
		return frame{}, false
	}
}

// initializePending reports whether the host sent Initialize while the
// current request was running.
func (s *Server) initializePending() bool {
	if s.pending == nil {
		return false
	}
	_, ok := s.pending.msg.(*hwwire.Initialize)

	return ok
}

// serve handles one frame and writes the response.
func (s *Server) serve(ctx context.Context, f frame) error {
	if f.err != nil {
		if !recoverable(f.err) {
			s.readErr = f.err
			return s.exitErr()
		}

		log.Warnf("Dropping unreadable message: %v", f.err)

		return s.send(&hwwire.Failure{
			Code:    uint16(device.FailureUnexpectedMessage),
			Message: f.err.Error(),
		})
	}

	s.idle = false
	log.Debugf("Received %v", f.msg.MsgType())

	resp, err := s.handle(ctx, f.msg)
	switch {
	// An Initialize aborted the request. It is answered on its own.
	case err != nil && s.initializePending():
		log.Debugf("%v aborted by Initialize: %v", f.msg.MsgType(), err)
		return nil

	case err != nil:
		kind, code := device.Classify(err)
		log.Debugf("%v failed (%v, %v): %v", f.msg.MsgType(), kind,
			code, err)

		resp = &hwwire.Failure{Code: uint16(code), Message: err.Error()}
	}

	if s.readErr != nil {
		return s.exitErr()
	}

	if err := s.send(resp); err != nil {
		return err
	}

	// The lockout wiped the device. Nothing is served until a restart.
	if s.dev.Halted() {
		log.Criticalf("PIN lockout wiped the device, halting")
		return device.ErrHalted
	}

	return nil
}

// send writes msg to the output.
func (s *Server) send(msg hwwire.Message) error {
	if _, err := hwwire.WriteMessage(s.cfg.Out, msg); err != nil {
		return fmt.Errorf("writing %v: %w", msg.MsgType(), err)
	}
	log.Tracef("Sent %v", msg.MsgType())

	return nil
}

// request sends msg and waits for the host's reply. Cancel and Initialize
// replies abort the request.
func (s *Server) request(ctx context.Context,
	msg hwwire.Message) (hwwire.Message, error) {

	if err := s.send(msg); err != nil {
		return nil, err
	}

	f, err := s.next(ctx)
	switch {
	case err != nil:
		return nil, err

	case f.err != nil && !recoverable(f.err):
		s.readErr = f.err
		return nil, fmt.Errorf("%w: %w", ErrInputClosed, f.err)

	case f.err != nil:
		return nil, fmt.Errorf("%w: %w", protect.ErrUnexpectedMessage,
			f.err)
	}

	s.idle = false

	switch f.msg.(type) {
	case *hwwire.Cancel:
		return nil, protect.ErrUICancelled

	case *hwwire.Initialize:
		// Served by the main loop once the request unwinds.
		s.pending = &f
		return nil, protect.ErrUIInitialize
	}

	return f.msg, nil
}

// autoLock clears the PIN and passphrase cache after a full idle interval.
func (s *Server) autoLock() {
	if !s.idle {
		s.idle = true
		return
	}

	session := s.dev.Session()
	if session.PinCached() || session.Passphrase().IsSome() {
		log.Infof("Device idle, locking")
		session.Clear()
	}
}

// wireUI implements protect.UI over the server's stream.
type wireUI struct {
	s *Server
}

// unexpectedReply builds the error for a reply of the wrong type.
func unexpectedReply(got hwwire.Message, want hwwire.MessageType) error {
	return fmt.Errorf("%w: %v in reply to %v", protect.ErrUnexpectedMessage,
		got.MsgType(), want)
}

// RequestPin sends a PinMatrixRequest and returns the PIN of the reply.
func (u *wireUI) RequestPin(ctx context.Context,
	kind protect.PinKind) (string, error) {

	reply, err := u.s.request(
		ctx, &hwwire.PinMatrixRequest{Type: uint8(kind)},
	)
	if err != nil {
		return "", err
	}

	ack, ok := reply.(*hwwire.PinMatrixAck)
	if !ok {
		return "", unexpectedReply(reply, hwwire.MsgPinMatrixRequest)
	}

	return ack.Pin, nil
}

// RequestPassphrase sends a PassphraseRequest and returns the passphrase of
// the reply.
func (u *wireUI) RequestPassphrase(ctx context.Context) (string, error) {
	reply, err := u.s.request(ctx, &hwwire.PassphraseRequest{})
	if err != nil {
		return "", err
	}

	ack, ok := reply.(*hwwire.PassphraseAck)
	if !ok {
		return "", unexpectedReply(reply, hwwire.MsgPassphraseRequest)
	}

	return ack.Passphrase, nil
}

// Confirm sends a ButtonRequest and, once the host acknowledged it, waits
// for the button.
func (u *wireUI) Confirm(ctx context.Context, kind protect.ButtonKind,
	text ...string) (bool, error) {

	reply, err := u.s.request(ctx, &hwwire.ButtonRequest{
		Code: uint8(kind),
		Text: joinLines(text),
	})
	if err != nil {
		return false, err
	}

	if _, ok := reply.(*hwwire.ButtonAck); !ok {
		return false, unexpectedReply(reply, hwwire.MsgButtonRequest)
	}

	if u.s.cfg.Buttons == nil {
		return true, nil
	}

	return u.s.cfg.Buttons(kind, text), nil
}

// RequestWord sends a WordRequest and returns the word of the reply.
func (u *wireUI) RequestWord(ctx context.Context) (string, error) {
	reply, err := u.s.request(ctx, &hwwire.WordRequest{})
	if err != nil {
		return "", err
	}

	ack, ok := reply.(*hwwire.WordAck)
	if !ok {
		return "", unexpectedReply(reply, hwwire.MsgWordRequest)
	}

	return ack.Word, nil
}

// PollNextMessage peeks at the next frame without blocking.
func (u *wireUI) PollNextMessage() protect.MessageKind {
	f, ok := u.s.peek()
	switch {
	case !ok:
		return protect.MsgNone

	case f.err != nil:
		return protect.MsgOther
	}

	switch f.msg.(type) {
	case *hwwire.Initialize:
		return protect.MsgInitialize

	case *hwwire.Cancel:
		return protect.MsgCancel

	default:
		return protect.MsgOther
	}
}
