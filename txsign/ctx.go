package txsign

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/logutil"
)

// Ctx is the single signing session of a device. It is not safe for
// concurrent use; the device processes one message at a time.
type Ctx struct {
	state State
	env   *Environment

	txHash       string
	requestIndex uint32

	// mnemonicChange poisons an open session.
	mnemonicChange bool
}

// NewCtx returns an idle signing context bound to signer.
func NewCtx(signer Signer) *Ctx {
	return &Ctx{
		state: &Destroyed{},
		env:   &Environment{signer: signer},
	}
}

// State returns the current state.
func (c *Ctx) State() State {
	return c.state
}

// Active reports whether a session is open.
func (c *Ctx) Active() bool {
	return !c.state.IsTerminal()
}

// Begin opens a session and returns the request for the first inputs. An
// already open session is destroyed and ErrSessionInProgress is returned.
func (c *Ctx) Begin(ctx context.Context, req SignTx) (*TxRequest, error) {
	if c.Active() {
		log.Warnf("SignTx received in state %v, destroying session",
			c.state)

		c.Destroy()
		return nil, ErrSessionInProgress
	}

	log.Debugf("Opening signing session: %v", logutil.SpewLogClosure(req))

	c.txHash = req.TxHash
	c.requestIndex = 1

	resp, err := c.drive(ctx, &beginEvent{req: &req})
	if err != nil {
		return nil, err
	}

	return c.makeRequest(resp), nil
}

// Ack applies one round of inputs or outputs.
func (c *Ctx) Ack(ctx context.Context, ack TxAck) (*TxRequest, error) {
	if !c.Active() {
		return nil, ErrNoSession
	}

	if c.mnemonicChange {
		log.Warnf("Mnemonic changed during signing session, destroying")

		c.Destroy()
		return nil, ErrMnemonicChanged
	}

	log.Tracef("TxAck in state %v: %v", c.state,
		logutil.SpewLogClosure(ack))

	resp, err := c.drive(ctx, &roundEvent{ack: &ack})
	if err != nil {
		return nil, err
	}

	c.requestIndex++
	req := c.makeRequest(resp)

	if req.Type == RequestFinished {
		log.Infof("Signed transaction %v with %d inputs", c.txHash,
			len(req.SignResults))

		c.Destroy()
	}

	return req, nil
}

// Cancel destroys an open session.
func (c *Ctx) Cancel() {
	if c.Active() {
		log.Infof("Signing session %v cancelled", c.txHash)
	}

	c.Destroy()
}

// MnemonicChanged poisons an open session so its next round fails. It has no
// effect when no session is open.
func (c *Ctx) MnemonicChanged() {
	if c.Active() {
		c.mnemonicChange = true
	}
}

// Destroy wipes the session and returns to the idle state.
func (c *Ctx) Destroy() {
	c.env.reset()
	c.state = &Destroyed{}
	c.txHash = ""
	c.requestIndex = 0
	c.mnemonicChange = false
}

// drive applies event and every internal event it emits. Any error destroys
// the session. The response of the last transition that produced one is
// returned.
func (c *Ctx) drive(ctx context.Context, event Event) (Response, error) {
	c.env.reqCtx = ctx
	defer func() {
		c.env.reqCtx = nil
	}()

	var (
		queue = []Event{event}
		resp  fn.Option[Response]
	)
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		transition, err := c.state.ProcessEvent(ev, c.env)
		if err != nil {
			log.Debugf("Signing session failed in state %v: %v",
				c.state, err)

			if !errors.Is(err, ErrNoSession) {
				c.Destroy()
			}
			return Response{}, err
		}

		log.Tracef("Signing state %v -> %v", c.state,
			transition.NextState)
		c.state = transition.NextState

		transition.NewEvents.WhenSome(func(e EmittedEvent) {
			queue = append(queue, e.InternalEvent...)
			if e.Response.IsSome() {
				resp = e.Response
			}
		})
	}

	return resp.UnwrapOrErr(
		fmt.Errorf("%w: no response in state %v", ErrFailed, c.state),
	)
}

// makeRequest stamps a response with the correlation fields.
func (c *Ctx) makeRequest(resp Response) *TxRequest {
	return &TxRequest{
		Type:         resp.Type,
		RequestIndex: c.requestIndex,
		TxHash:       c.txHash,
		SignResults:  resp.SignResults,
	}
}
