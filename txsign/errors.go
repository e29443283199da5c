package txsign

import "errors"

var (
	// ErrSessionInProgress is returned when a signing session is started
	// while another one is still open. The open session is destroyed.
	ErrSessionInProgress = errors.New("signing session already in " +
		"progress")

	// ErrNoSession is returned when a round arrives without an open
	// session.
	ErrNoSession = errors.New("no signing session in progress")

	// ErrInvalidArg is returned for rounds that violate the protocol
	// ordering or the declared counts.
	ErrInvalidArg = errors.New("invalid argument")

	// ErrMnemonicChanged is returned when the mnemonic was replaced while
	// a session was open.
	ErrMnemonicChanged = errors.New("mnemonic changed during signing " +
		"session")

	// ErrInvalidAddress is returned when an output address cannot be
	// decoded.
	ErrInvalidAddress = errors.New("invalid output address")

	// ErrActionCancelled is returned when the user declines an output.
	ErrActionCancelled = errors.New("action cancelled by user")

	// ErrAddressMismatch is returned when a change output does not match
	// the address derived from its path.
	ErrAddressMismatch = errors.New("output address does not match " +
		"derived address")

	// ErrFailed is returned when signing cannot proceed.
	ErrFailed = errors.New("signing failed")
)
