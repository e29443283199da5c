package protect

import (
	"context"
	"errors"
)

var (
	// ErrUICancelled is returned by a UI when the host answers a request
	// with Cancel.
	ErrUICancelled = errors.New("request cancelled by host")

	// ErrUIInitialize is returned by a UI when the host answers a request
	// with Initialize.
	ErrUIInitialize = errors.New("request aborted by initialize")

	// ErrUnexpectedMessage is returned by a UI when the host answers a
	// request with an unrelated message.
	ErrUnexpectedMessage = errors.New("unexpected message")
)

// PinKind tells the host which PIN is requested.
type PinKind uint8

const (
	// PinCurrent requests the PIN currently set on the device.
	PinCurrent PinKind = 1

	// PinNewFirst requests the first entry of a new PIN.
	PinNewFirst PinKind = 2

	// PinNewSecond requests the confirmation of a new PIN.
	PinNewSecond PinKind = 3
)

// String returns a human readable prompt for the PIN kind.
func (k PinKind) String() string {
	switch k {
	case PinCurrent:
		return "current PIN"
	case PinNewFirst:
		return "new PIN"
	case PinNewSecond:
		return "new PIN again"
	default:
		return "unknown PIN"
	}
}

// ButtonKind tells the host why a physical confirmation is requested.
type ButtonKind uint8

const (
	ButtonOther ButtonKind = iota + 1
	ButtonConfirmOutput
	ButtonWipeDevice
	ButtonProtectCall
	ButtonAddress
	ButtonConfirmWord
	ButtonSignTx
	ButtonProtectPin
	ButtonResetDevice
	ButtonRecoveryDevice
	ButtonGetEntropy
)

// MessageKind classifies the next pending host message seen while polling.
type MessageKind uint8

const (
	// MsgNone means no message is pending.
	MsgNone MessageKind = iota

	// MsgInitialize is a pending Initialize.
	MsgInitialize

	// MsgCancel is a pending Cancel.
	MsgCancel

	// MsgOther is any other pending message.
	MsgOther
)

// UI is the user interaction capability of the device. Requests block until
// the host answers. A Cancel answer yields ErrUICancelled and an Initialize
// answer yields ErrUIInitialize.
type UI interface {
	// RequestPin asks for a PIN entry.
	RequestPin(ctx context.Context, kind PinKind) (string, error)

	// RequestPassphrase asks for the BIP39 passphrase.
	RequestPassphrase(ctx context.Context) (string, error)

	// Confirm shows text and waits for the user to accept or reject it.
	Confirm(ctx context.Context, kind ButtonKind,
		text ...string) (bool, error)

	// RequestWord asks for the next word of a mnemonic being recovered.
	RequestWord(ctx context.Context) (string, error)

	// PollNextMessage reports, without blocking, which message the host
	// has sent while the device was busy.
	PollNextMessage() MessageKind
}
