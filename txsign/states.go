package txsign

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/logutil"
)

// Event is an input to the signing state machine.
type Event interface {
	eventSealed()
}

// beginEvent opens a session.
type beginEvent struct {
	req *SignTx
}

func (*beginEvent) eventSealed() {}

// seedHashEvent is emitted internally once a session is initialized so the
// running hash gets its input count prefix.
type seedHashEvent struct{}

func (*seedHashEvent) eventSealed() {}

// roundEvent carries one TxAck.
type roundEvent struct {
	ack *TxAck
}

func (*roundEvent) eventSealed() {}

// Response is what a transition asks the device to send back.
type Response struct {
	Type        RequestType
	SignResults []SignResult
}

// EmittedEvent is the set of events produced by a transition.
type EmittedEvent struct {
	// InternalEvent is processed by the machine before the round
	// completes.
	InternalEvent []Event

	// Response is sent to the host once the queue drains.
	Response fn.Option[Response]
}

// StateTransition is the result of applying an event to a state.
type StateTransition struct {
	NextState State
	NewEvents fn.Option[EmittedEvent]
}

// State is a single state of the signing session.
type State interface {
	// ProcessEvent applies event and returns the transition to take.
	ProcessEvent(event Event, env *Environment) (*StateTransition, error)

	// IsTerminal reports whether the session is over in this state.
	IsTerminal() bool

	// String returns the name of the state.
	String() string
}

// respond builds a transition to next that answers the host with typ.
func respond(next State, typ RequestType,
	results []SignResult) *StateTransition {

	return &StateTransition{
		NextState: next,
		NewEvents: fn.Some(EmittedEvent{
			Response: fn.Some(Response{
				Type:        typ,
				SignResults: results,
			}),
		}),
	}
}

// Destroyed is the idle state. It is both the initial and the final state.
type Destroyed struct{}

// String returns the name of the state.
func (d *Destroyed) String() string {
	return "Destroyed"
}

// IsTerminal returns true.
func (d *Destroyed) IsTerminal() bool {
	return true
}

// ProcessEvent only accepts the start of a session.
func (d *Destroyed) ProcessEvent(event Event,
	env *Environment) (*StateTransition, error) {

	switch e := event.(type) {
	case *beginEvent:
		req := e.req
		if req.NbIn == 0 || req.NbIn > MaxTxInputs {
			return nil, fmt.Errorf("%w: %d inputs", ErrInvalidArg,
				req.NbIn)
		}
		if req.NbOut == 0 || req.NbOut > MaxTxOutputs {
			return nil, fmt.Errorf("%w: %d outputs", ErrInvalidArg,
				req.NbOut)
		}

		env.nbIn = req.NbIn
		env.nbOut = req.NbOut
		env.coinName = req.CoinName
		env.version = req.Version
		env.lockTime = req.LockTime
		env.hash = cipher.NewRunningHash()

		return &StateTransition{
			NextState: &Start{},
			NewEvents: fn.Some(EmittedEvent{
				InternalEvent: []Event{&seedHashEvent{}},
			}),
		}, nil

	case *roundEvent:
		return nil, ErrNoSession
	}

	return nil, fmt.Errorf("%w: unknown event %T", ErrInvalidArg, event)
}

// Start is the state of a freshly initialized session.
type Start struct{}

// String returns the name of the state.
func (s *Start) String() string {
	return "Start"
}

// IsTerminal returns false.
func (s *Start) IsTerminal() bool {
	return false
}

// ProcessEvent writes the input count prefix and asks for the first inputs.
func (s *Start) ProcessEvent(event Event,
	env *Environment) (*StateTransition, error) {

	if _, ok := event.(*seedHashEvent); !ok {
		return nil, fmt.Errorf("%w: %T in state %v", ErrInvalidArg,
			event, s)
	}

	if err := env.hash.WriteUint32(env.nbIn); err != nil {
		return nil, err
	}

	return respond(&InnerHashInputs{}, RequestInput, nil), nil
}

// InnerHashInputs folds the input hashes into the commitment.
type InnerHashInputs struct{}

// String returns the name of the state.
func (s *InnerHashInputs) String() string {
	return "InnerHashInputs"
}

// IsTerminal returns false.
func (s *InnerHashInputs) IsTerminal() bool {
	return false
}

// ProcessEvent accepts a round of inputs.
func (s *InnerHashInputs) ProcessEvent(event Event,
	env *Environment) (*StateTransition, error) {

	ack, err := inputRound(event, s)
	if err != nil {
		return nil, err
	}

	next, ok := addCount(env.currentNbIn, len(ack.Inputs), env.nbIn)
	if !ok {
		return nil, fmt.Errorf("%w: %d inputs exceed the %d declared",
			ErrInvalidArg, len(ack.Inputs), env.nbIn)
	}

	for _, in := range ack.Inputs {
		if err := env.hash.Write(in.Hash[:]); err != nil {
			return nil, err
		}
	}
	env.currentNbIn = next

	if env.currentNbIn < env.nbIn {
		return respond(s, RequestInput, nil), nil
	}

	if err := env.hash.WriteUint32(env.nbOut); err != nil {
		return nil, err
	}

	return respond(&InnerHashOutputs{}, RequestOutput, nil), nil
}

// InnerHashOutputs checks each output with the user and folds it into the
// commitment.
type InnerHashOutputs struct{}

// String returns the name of the state.
func (s *InnerHashOutputs) String() string {
	return "InnerHashOutputs"
}

// IsTerminal returns false.
func (s *InnerHashOutputs) IsTerminal() bool {
	return false
}

// ProcessEvent accepts a round of outputs.
func (s *InnerHashOutputs) ProcessEvent(event Event,
	env *Environment) (*StateTransition, error) {

	r, ok := event.(*roundEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %T in state %v", ErrInvalidArg,
			event, s)
	}
	ack := r.ack
	if len(ack.Outputs) == 0 || len(ack.Inputs) != 0 {
		return nil, fmt.Errorf("%w: state %v expects outputs only",
			ErrInvalidArg, s)
	}
	if len(ack.Outputs) > MaxTxOutputs {
		return nil, fmt.Errorf("%w: %d outputs in one round",
			ErrInvalidArg, len(ack.Outputs))
	}

	next, ok := addCount(env.currentNbOut, len(ack.Outputs), env.nbOut)
	if !ok {
		return nil, fmt.Errorf("%w: %d outputs exceed the %d declared",
			ErrInvalidArg, len(ack.Outputs), env.nbOut)
	}

	addrs := make([]cipher.Address, len(ack.Outputs))
	for i, out := range ack.Outputs {
		addr, err := checkOutput(out, env)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}

	for i, out := range ack.Outputs {
		if err := foldOutput(env.hash, addrs[i], out); err != nil {
			return nil, err
		}
	}
	env.currentNbOut = next

	if env.currentNbOut < env.nbOut {
		return respond(s, RequestOutput, nil), nil
	}

	inner, err := env.hash.Finalize()
	if err != nil {
		return nil, err
	}
	env.innerHash = inner
	env.hasInnerHash = true

	log.DebugS(env.reqCtx, "Outputs committed",
		"num_outputs", env.nbOut, logutil.LogHash("inner_hash", inner))
	env.currentNbIn = 0

	return respond(&Signature{}, RequestInput, nil), nil
}

// checkOutput decodes the output address and has it approved, either by the
// user or by matching it against the device's own change address.
func checkOutput(out Output, env *Environment) (cipher.Address, error) {
	addr, err := cipher.DecodeBase58Address(out.Address)
	if err != nil {
		return cipher.Address{}, fmt.Errorf("%w: %q: %w",
			ErrInvalidAddress, out.Address, err)
	}

	if out.AddressN.IsSome() {
		idx := out.AddressN.UnwrapOr(0)
		own, err := env.DeriveAddress(idx)
		if err != nil {
			return cipher.Address{}, fmt.Errorf("%w: %w",
				ErrFailed, err)
		}
		if own != addr {
			return cipher.Address{}, fmt.Errorf("%w: index %d",
				ErrAddressMismatch, idx)
		}

		return addr, nil
	}

	accepted, err := env.ConfirmOutput(out)
	switch {
	case err != nil:
		return cipher.Address{}, fmt.Errorf("%w: %w",
			ErrActionCancelled, err)

	case !accepted:
		return cipher.Address{}, ErrActionCancelled
	}

	return addr, nil
}

// foldOutput writes version‖key‖coins‖hours into the running hash.
func foldOutput(h *cipher.RunningHash, addr cipher.Address,
	out Output) error {

	if err := h.Write([]byte{addr.Version}); err != nil {
		return err
	}
	if err := h.Write(addr.Key[:]); err != nil {
		return err
	}
	if err := h.WriteUint64(out.Coins); err != nil {
		return err
	}

	return h.WriteUint64(out.Hours)
}

// Signature signs each input against the finalized commitment.
type Signature struct{}

// String returns the name of the state.
func (s *Signature) String() string {
	return "Signature"
}

// IsTerminal returns false.
func (s *Signature) IsTerminal() bool {
	return false
}

// ProcessEvent signs a round of inputs.
func (s *Signature) ProcessEvent(event Event,
	env *Environment) (*StateTransition, error) {

	ack, err := inputRound(event, s)
	if err != nil {
		return nil, err
	}
	if !env.hasInnerHash {
		return nil, fmt.Errorf("%w: inner hash not finalized",
			ErrFailed)
	}

	next, ok := addCount(env.currentNbIn, len(ack.Inputs), env.nbIn)
	if !ok {
		return nil, fmt.Errorf("%w: %d inputs exceed the %d declared",
			ErrInvalidArg, len(ack.Inputs), env.nbIn)
	}

	results := make([]SignResult, 0, len(ack.Inputs))
	for i, in := range ack.Inputs {
		res := SignResult{Index: env.currentNbIn + uint32(i)}

		if in.AddressN.IsSome() {
			idx := in.AddressN.UnwrapOr(0)
			digest := cipher.SHA256Two(env.innerHash[:], in.Hash[:])

			sig, err := env.SignDigest(idx, digest)
			if err != nil {
				return nil, fmt.Errorf("%w: input %d: %w",
					ErrFailed, res.Index, err)
			}
			res.Signature = sig
		}

		results = append(results, res)
	}
	env.currentNbIn = next

	if env.currentNbIn < env.nbIn {
		return respond(s, RequestInput, results), nil
	}

	return respond(&Destroyed{}, RequestFinished, results), nil
}

// inputRound extracts an inputs only round from event.
func inputRound(event Event, s State) (*TxAck, error) {
	r, ok := event.(*roundEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %T in state %v", ErrInvalidArg,
			event, s)
	}

	ack := r.ack
	if len(ack.Inputs) == 0 || len(ack.Outputs) != 0 {
		return nil, fmt.Errorf("%w: state %v expects inputs only",
			ErrInvalidArg, s)
	}
	if len(ack.Inputs) > MaxTxInputs {
		return nil, fmt.Errorf("%w: %d inputs in one round",
			ErrInvalidArg, len(ack.Inputs))
	}

	return ack, nil
}
