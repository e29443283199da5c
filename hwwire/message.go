package hwwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMsgBody is the largest payload a frame may carry.
const MaxMsgBody = 64 * 1024

// headerLen is the size of the frame header: a 2-byte type and a 4-byte
// payload length, both big-endian.
const headerLen = 6

var (
	// ErrPayloadTooLarge is returned for frames above MaxMsgBody.
	ErrPayloadTooLarge = errors.New("message payload too large")

	// ErrMalformedMessage is returned when a complete frame was read but
	// its payload does not parse. The stream stays aligned.
	ErrMalformedMessage = errors.New("malformed message")
)

// MessageType is the 2-byte type of a frame.
type MessageType uint16

// The message types of the device protocol.
const (
	MsgInitialize              MessageType = 0
	MsgPing                    MessageType = 1
	MsgSuccess                 MessageType = 2
	MsgFailure                 MessageType = 3
	MsgChangePin               MessageType = 4
	MsgWipeDevice              MessageType = 5
	MsgGetRawEntropy           MessageType = 9
	MsgEntropy                 MessageType = 10
	MsgLoadDevice              MessageType = 13
	MsgResetDevice             MessageType = 14
	MsgFeatures                MessageType = 17
	MsgPinMatrixRequest        MessageType = 18
	MsgPinMatrixAck            MessageType = 19
	MsgCancel                  MessageType = 20
	MsgTxRequest               MessageType = 21
	MsgTxAck                   MessageType = 22
	MsgApplySettings           MessageType = 25
	MsgButtonRequest           MessageType = 26
	MsgButtonAck               MessageType = 27
	MsgBackupDevice            MessageType = 34
	MsgEntropyRequest          MessageType = 35
	MsgEntropyAck              MessageType = 36
	MsgPassphraseRequest       MessageType = 41
	MsgPassphraseAck           MessageType = 42
	MsgRecoveryDevice          MessageType = 45
	MsgWordRequest             MessageType = 46
	MsgWordAck                 MessageType = 47
	MsgGetFeatures             MessageType = 55
	MsgSignTx                  MessageType = 56
	MsgGetAddress              MessageType = 100
	MsgResponseAddress         MessageType = 101
	MsgCheckMessageSignature   MessageType = 102
	MsgSignMessage             MessageType = 103
	MsgResponseSignMessage     MessageType = 104
	MsgGenerateMnemonic        MessageType = 105
	MsgSetMnemonic             MessageType = 106
	MsgTransactionSign         MessageType = 107
	MsgResponseTransactionSign MessageType = 108
	MsgGetMixedEntropy         MessageType = 109
)

// String returns the name of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgInitialize:
		return "Initialize"
	case MsgPing:
		return "Ping"
	case MsgSuccess:
		return "Success"
	case MsgFailure:
		return "Failure"
	case MsgChangePin:
		return "ChangePin"
	case MsgWipeDevice:
		return "WipeDevice"
	case MsgGetRawEntropy:
		return "GetRawEntropy"
	case MsgEntropy:
		return "Entropy"
	case MsgLoadDevice:
		return "LoadDevice"
	case MsgResetDevice:
		return "ResetDevice"
	case MsgFeatures:
		return "Features"
	case MsgPinMatrixRequest:
		return "PinMatrixRequest"
	case MsgPinMatrixAck:
		return "PinMatrixAck"
	case MsgCancel:
		return "Cancel"
	case MsgTxRequest:
		return "TxRequest"
	case MsgTxAck:
		return "TxAck"
	case MsgApplySettings:
		return "ApplySettings"
	case MsgButtonRequest:
		return "ButtonRequest"
	case MsgButtonAck:
		return "ButtonAck"
	case MsgBackupDevice:
		return "BackupDevice"
	case MsgEntropyRequest:
		return "EntropyRequest"
	case MsgEntropyAck:
		return "EntropyAck"
	case MsgPassphraseRequest:
		return "PassphraseRequest"
	case MsgPassphraseAck:
		return "PassphraseAck"
	case MsgRecoveryDevice:
		return "RecoveryDevice"
	case MsgWordRequest:
		return "WordRequest"
	case MsgWordAck:
		return "WordAck"
	case MsgGetFeatures:
		return "GetFeatures"
	case MsgSignTx:
		return "SignTx"
	case MsgGetAddress:
		return "GetAddress"
	case MsgResponseAddress:
		return "ResponseAddress"
	case MsgCheckMessageSignature:
		return "CheckMessageSignature"
	case MsgSignMessage:
		return "SignMessage"
	case MsgResponseSignMessage:
		return "ResponseSignMessage"
	case MsgGenerateMnemonic:
		return "GenerateMnemonic"
	case MsgSetMnemonic:
		return "SetMnemonic"
	case MsgTransactionSign:
		return "TransactionSign"
	case MsgResponseTransactionSign:
		return "ResponseTransactionSign"
	case MsgGetMixedEntropy:
		return "GetMixedEntropy"
	default:
		return fmt.Sprintf("<unknown %d>", uint16(t))
	}
}

// UnknownMessage is returned when a frame carries a type this package does
// not know.
type UnknownMessage struct {
	messageType MessageType
}

// Error returns a human readable string describing the error.
func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unable to parse message of unknown type: %v",
		u.messageType)
}

// Serializable is a payload that can be written to and read from a frame.
type Serializable interface {
	// Decode reads the payload from r.
	Decode(r io.Reader) error

	// Encode writes the payload to w.
	Encode(w *bytes.Buffer) error
}

// Message is a device protocol message.
type Message interface {
	Serializable
	MsgType() MessageType
}

// makeEmptyMessage creates a new empty message of the proper concrete type
// based on the passed message type.
func makeEmptyMessage(msgType MessageType) (Message, error) {
	var msg Message

	switch msgType {
	case MsgInitialize:
		msg = &Initialize{}
	case MsgPing:
		msg = &Ping{}
	case MsgSuccess:
		msg = &Success{}
	case MsgFailure:
		msg = &Failure{}
	case MsgChangePin:
		msg = &ChangePin{}
	case MsgWipeDevice:
		msg = &WipeDevice{}
	case MsgGetRawEntropy:
		msg = &GetRawEntropy{}
	case MsgEntropy:
		msg = &Entropy{}
	case MsgLoadDevice:
		msg = &LoadDevice{}
	case MsgResetDevice:
		msg = &ResetDevice{}
	case MsgFeatures:
		msg = &Features{}
	case MsgPinMatrixRequest:
		msg = &PinMatrixRequest{}
	case MsgPinMatrixAck:
		msg = &PinMatrixAck{}
	case MsgCancel:
		msg = &Cancel{}
	case MsgTxRequest:
		msg = &TxRequest{}
	case MsgTxAck:
		msg = &TxAck{}
	case MsgApplySettings:
		msg = &ApplySettings{}
	case MsgButtonRequest:
		msg = &ButtonRequest{}
	case MsgButtonAck:
		msg = &ButtonAck{}
	case MsgBackupDevice:
		msg = &BackupDevice{}
	case MsgEntropyRequest:
		msg = &EntropyRequest{}
	case MsgEntropyAck:
		msg = &EntropyAck{}
	case MsgPassphraseRequest:
		msg = &PassphraseRequest{}
	case MsgPassphraseAck:
		msg = &PassphraseAck{}
	case MsgRecoveryDevice:
		msg = &RecoveryDevice{}
	case MsgWordRequest:
		msg = &WordRequest{}
	case MsgWordAck:
		msg = &WordAck{}
	case MsgGetFeatures:
		msg = &GetFeatures{}
	case MsgSignTx:
		msg = &SignTx{}
	case MsgGetAddress:
		msg = &GetAddress{}
	case MsgResponseAddress:
		msg = &ResponseAddress{}
	case MsgCheckMessageSignature:
		msg = &CheckMessageSignature{}
	case MsgSignMessage:
		msg = &SignMessage{}
	case MsgResponseSignMessage:
		msg = &ResponseSignMessage{}
	case MsgGenerateMnemonic:
		msg = &GenerateMnemonic{}
	case MsgSetMnemonic:
		msg = &SetMnemonic{}
	case MsgTransactionSign:
		msg = &TransactionSign{}
	case MsgResponseTransactionSign:
		msg = &ResponseTransactionSign{}
	case MsgGetMixedEntropy:
		msg = &GetMixedEntropy{}
	default:
		return nil, &UnknownMessage{msgType}
	}

	return msg, nil
}

// WriteMessage frames msg and writes it to w. Nothing is written if the
// payload cannot be encoded or is too large.
func WriteMessage(w io.Writer, msg Message) (int, error) {
	var payload bytes.Buffer
	if err := msg.Encode(&payload); err != nil {
		return 0, fmt.Errorf("failed to encode %v: %w", msg.MsgType(),
			err)
	}

	if payload.Len() > MaxMsgBody {
		return 0, fmt.Errorf("%w: %v is %d bytes, maximum is %d",
			ErrPayloadTooLarge, msg.MsgType(), payload.Len(),
			MaxMsgBody)
	}

	frame := make([]byte, headerLen, headerLen+payload.Len())
	binary.BigEndian.PutUint16(frame[:2], uint16(msg.MsgType()))
	binary.BigEndian.PutUint32(frame[2:headerLen], uint32(payload.Len()))
	frame = append(frame, payload.Bytes()...)

	return w.Write(frame)
}

// ReadMessage reads and parses the next frame from r.
func ReadMessage(r io.Reader) (Message, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(header[:2]))
	length := binary.BigEndian.Uint32(header[2:])
	if length > MaxMsgBody {
		return nil, fmt.Errorf("%w: %v declares %d bytes",
			ErrPayloadTooLarge, msgType, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrMalformedMessage,
			msgType, err)
	}

	log.Tracef("Read %v (%d bytes)", msgType, length)

	return msg, nil
}
