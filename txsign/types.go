package txsign

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/skyhw/signcore/cipher"
)

const (
	// MaxTxInputs is the largest number of inputs a transaction may have.
	MaxTxInputs = 8

	// MaxTxOutputs is the largest number of outputs a transaction may
	// have.
	MaxTxOutputs = 8
)

// RequestType tells the host what the device expects next.
type RequestType uint8

const (
	// RequestInput asks for the next batch of inputs.
	RequestInput RequestType = iota

	// RequestOutput asks for the next batch of outputs.
	RequestOutput

	// RequestFinished reports that every input was signed.
	RequestFinished
)

// String returns the wire name of the request type.
func (r RequestType) String() string {
	switch r {
	case RequestInput:
		return "TXINPUT"
	case RequestOutput:
		return "TXOUTPUT"
	case RequestFinished:
		return "TXFINISHED"
	default:
		return fmt.Sprintf("RequestType(%d)", uint8(r))
	}
}

// Input is a transaction input as streamed by the host. AddressN holds the
// BIP44 address index of the key that owns it, if the device should sign it.
type Input struct {
	Hash     [32]byte
	AddressN fn.Option[uint32]
}

// Output is a transaction output. Outputs with AddressN are change outputs
// and are checked against the device's own address instead of being shown
// to the user.
type Output struct {
	Address  string
	Coins    uint64
	Hours    uint64
	AddressN fn.Option[uint32]
}

// SignTx opens a signing session.
type SignTx struct {
	NbIn     uint32
	NbOut    uint32
	CoinName string
	Version  uint32
	LockTime uint64

	// TxHash is a host chosen correlation id echoed in every response.
	TxHash string
}

// TxAck carries one round of inputs or outputs.
type TxAck struct {
	Inputs  []Input
	Outputs []Output
}

// SignResult is the signature of a single input. Inputs the device does not
// own get an all-zero signature.
type SignResult struct {
	Index     uint32
	Signature cipher.Sig
}

// TxRequest is the device's answer to every round.
type TxRequest struct {
	Type         RequestType
	RequestIndex uint32
	TxHash       string
	SignResults  []SignResult
}
