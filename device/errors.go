package device

import (
	"errors"
	"fmt"

	"github.com/skyhw/signcore/cipher"
	"github.com/skyhw/signcore/hdnode"
	"github.com/skyhw/signcore/keychain"
	"github.com/skyhw/signcore/protect"
	"github.com/skyhw/signcore/storage"
	"github.com/skyhw/signcore/txsign"
)

var (
	// ErrInitialized is returned when an operation needs a device
	// without a mnemonic.
	ErrInitialized = errors.New("device is already initialized, " +
		"use wipe first")

	// ErrMnemonicRequired is returned when an operation needs a
	// mnemonic and none is stored.
	ErrMnemonicRequired = errors.New("mnemonic not set")

	// ErrInvalidArg is returned for malformed request arguments.
	ErrInvalidArg = errors.New("invalid argument")

	// ErrInvalidValue is returned for request values the device does not
	// support.
	ErrInvalidValue = errors.New("invalid value")

	// ErrPreconditionFailed is returned when a request carries nothing to
	// do.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrTooManyAddresses is returned when more than MaxAddresses are
	// requested at once.
	ErrTooManyAddresses = errors.New("too many addresses requested")

	// ErrInvalidChecksum is returned for mnemonics with a bad checksum.
	ErrInvalidChecksum = errors.New("mnemonic with wrong checksum")

	// ErrInvalidSignature is returned when a signature does not recover
	// to the claimed address.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrAddressGeneration is returned when an address cannot be
	// derived.
	ErrAddressGeneration = errors.New("address generation failed")

	// ErrActionCancelled is returned when the user rejects an action.
	ErrActionCancelled = errors.New("action cancelled by user")

	// ErrUnexpectedMessage is returned for requests that make no sense in
	// the current device state.
	ErrUnexpectedMessage = errors.New("unexpected message")

	// ErrEntropyRequired is returned when mnemonic generation needs
	// external entropy that has not been supplied yet.
	ErrEntropyRequired = errors.New("external entropy required")

	// ErrSeedMismatch is returned when a recovery dry run was given a
	// valid mnemonic other than the stored one.
	ErrSeedMismatch = errors.New("the seed is valid but does not match " +
		"the one in the device")

	// ErrHalted is returned for every request once the PIN lockout
	// wiped the device.
	ErrHalted = errors.New("device halted after too many wrong PINs")

	// ErrFailed is returned when signing fails.
	ErrFailed = errors.New("operation failed")
)

// ErrorKind classifies an error by how the caller is expected to react.
type ErrorKind uint8

const (
	// KindInternal is an unexpected failure of the device itself.
	KindInternal ErrorKind = iota

	// KindProtocol is a message sequence violation. Any signing session
	// is destroyed.
	KindProtocol

	// KindValidation is a rejected argument. Nothing was changed and the
	// request may be retried.
	KindValidation

	// KindCrypto is a degenerate derivation or signature.
	KindCrypto

	// KindResource is a request above a fixed capacity.
	KindResource

	// KindUser is a user or host initiated abort.
	KindUser

	// KindSecurity is a PIN failure or lockout.
	KindSecurity
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindCrypto:
		return "crypto"
	case KindResource:
		return "resource"
	case KindUser:
		return "user"
	case KindSecurity:
		return "security"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// FailureCode is the code carried by a Failure message on the wire.
type FailureCode uint16

const (
	FailureUnexpectedMessage FailureCode = 1
	FailureDataError         FailureCode = 3
	FailureActionCancelled   FailureCode = 4
	FailurePinExpected       FailureCode = 5
	FailurePinCancelled      FailureCode = 6
	FailurePinInvalid        FailureCode = 7
	FailureInvalidSignature  FailureCode = 8
	FailureProcessError      FailureCode = 9
	FailureNotInitialized    FailureCode = 11
	FailurePinMismatch       FailureCode = 12
	FailureAddressGeneration FailureCode = 13
	FailureFirmwareError     FailureCode = 99
)

// String returns the wire name of the code.
func (c FailureCode) String() string {
	switch c {
	case FailureUnexpectedMessage:
		return "Failure_UnexpectedMessage"
	case FailureDataError:
		return "Failure_DataError"
	case FailureActionCancelled:
		return "Failure_ActionCancelled"
	case FailurePinExpected:
		return "Failure_PinExpected"
	case FailurePinCancelled:
		return "Failure_PinCancelled"
	case FailurePinInvalid:
		return "Failure_PinInvalid"
	case FailureInvalidSignature:
		return "Failure_InvalidSignature"
	case FailureProcessError:
		return "Failure_ProcessError"
	case FailureNotInitialized:
		return "Failure_NotInitialized"
	case FailurePinMismatch:
		return "Failure_PinMismatch"
	case FailureAddressGeneration:
		return "Failure_AddressGeneration"
	case FailureFirmwareError:
		return "Failure_FirmwareError"
	default:
		return fmt.Sprintf("FailureCode(%d)", uint16(c))
	}
}

// classification is one row of the error table.
type classification struct {
	err  error
	kind ErrorKind
	code FailureCode
}

// errorTable maps sentinel errors to their kind and wire code. The first
// matching row wins, so wrapping errors are listed before the errors they
// wrap.
var errorTable = []classification{
	// Signing session.
	{txsign.ErrMnemonicChanged, KindProtocol, FailureProcessError},
	{txsign.ErrSessionInProgress, KindProtocol, FailureProcessError},
	{txsign.ErrNoSession, KindProtocol, FailureUnexpectedMessage},
	{txsign.ErrInvalidAddress, KindValidation, FailureDataError},
	{txsign.ErrAddressMismatch, KindValidation, FailureDataError},
	{txsign.ErrActionCancelled, KindUser, FailureActionCancelled},
	{txsign.ErrInvalidArg, KindProtocol, FailureDataError},
	{txsign.ErrFailed, KindInternal, FailureFirmwareError},

	// PIN and session guard.
	{ErrHalted, KindSecurity, FailurePinInvalid},
	{protect.ErrPinLockout, KindSecurity, FailurePinInvalid},
	{protect.ErrPinInvalid, KindSecurity, FailurePinInvalid},
	{protect.ErrPinCancelled, KindUser, FailurePinCancelled},
	{protect.ErrPinRequired, KindValidation, FailurePinExpected},
	{protect.ErrPinMismatch, KindValidation, FailurePinMismatch},
	{protect.ErrUICancelled, KindUser, FailureActionCancelled},
	{protect.ErrUIInitialize, KindUser, FailureActionCancelled},
	{protect.ErrUnexpectedMessage, KindProtocol,
		FailureUnexpectedMessage},

	// Device requests.
	{ErrInitialized, KindValidation, FailureUnexpectedMessage},
	{ErrMnemonicRequired, KindValidation, FailureNotInitialized},
	{ErrInvalidArg, KindValidation, FailureDataError},
	{ErrInvalidValue, KindValidation, FailureDataError},
	{ErrPreconditionFailed, KindValidation, FailureDataError},
	{ErrTooManyAddresses, KindResource, FailureDataError},
	{ErrInvalidChecksum, KindValidation, FailureDataError},
	{ErrInvalidSignature, KindValidation, FailureInvalidSignature},
	{ErrSeedMismatch, KindValidation, FailureDataError},
	{ErrAddressGeneration, KindCrypto, FailureAddressGeneration},
	{ErrActionCancelled, KindUser, FailureActionCancelled},
	{ErrUnexpectedMessage, KindProtocol, FailureUnexpectedMessage},
	{ErrEntropyRequired, KindProtocol, FailureUnexpectedMessage},
	{ErrFailed, KindInternal, FailureFirmwareError},

	// Key derivation.
	{keychain.ErrAddressGeneration, KindCrypto, FailureAddressGeneration},
	{keychain.ErrInvalidPurpose, KindValidation, FailureDataError},
	{keychain.ErrInvalidCoinType, KindValidation, FailureDataError},
	{keychain.ErrAccountNotHardened, KindValidation, FailureDataError},
	{keychain.ErrInvalidChange, KindValidation, FailureDataError},
	{keychain.ErrAddressIndexHardened, KindValidation, FailureDataError},
	{hdnode.ErrImpossibleChild, KindCrypto, FailureAddressGeneration},
	{hdnode.ErrMaxDepthReached, KindResource, FailureDataError},
	{cipher.ErrEntropyTooLarge, KindResource, FailureDataError},
	{cipher.ErrInvalidSignature, KindValidation, FailureInvalidSignature},

	// Storage.
	{storage.ErrStoreClosed, KindInternal, FailureFirmwareError},
}

// Classify returns the kind and wire code of err. Unknown errors are
// internal firmware errors.
func Classify(err error) (ErrorKind, FailureCode) {
	for _, c := range errorTable {
		if errors.Is(err, c.err) {
			return c.kind, c.code
		}
	}

	return KindInternal, FailureFirmwareError
}
