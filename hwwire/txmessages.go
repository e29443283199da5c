package hwwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

// SignTx opens a transaction signing session.
type SignTx struct {
	NbIn     uint32
	NbOut    uint32
	CoinName string
	Version  uint32
	LockTime uint64
	TxHash   string
}

// MsgType returns the message type.
func (*SignTx) MsgType() MessageType { return MsgSignTx }

func (m *SignTx) records(coin, hash *[]byte) []tlv.Record {
	return []tlv.Record{
		primitive(0, &m.NbIn),
		primitive(2, &m.NbOut),
		primitive(4, coin),
		primitive(6, &m.Version),
		primitive(8, &m.LockTime),
		primitive(10, hash),
	}
}

// Encode writes the payload.
func (m *SignTx) Encode(w *bytes.Buffer) error {
	coin, hash := []byte(m.CoinName), []byte(m.TxHash)
	return encodeRecords(w, m.records(&coin, &hash)...)
}

// Decode reads the payload.
func (m *SignTx) Decode(r io.Reader) error {
	var coin, hash []byte
	if _, err := decodeRecords(r, m.records(&coin, &hash)...); err != nil {
		return err
	}

	m.CoinName = string(coin)
	m.TxHash = string(hash)

	return nil
}

// TxInput is an input streamed by the host.
type TxInput struct {
	Hash     [32]byte
	AddressN fn.Option[uint32]
}

// TxOutput is an output streamed by the host.
type TxOutput struct {
	Address  string
	Coins    uint64
	Hours    uint64
	AddressN fn.Option[uint32]
}

// TxAck carries one round of inputs or outputs.
type TxAck struct {
	Inputs  []TxInput
	Outputs []TxOutput
}

// MsgType returns the message type.
func (*TxAck) MsgType() MessageType { return MsgTxAck }

func encodeInputs(ins []TxInput) ([]byte, error) {
	var b bytes.Buffer
	if err := writeCount(&b, len(ins)); err != nil {
		return nil, err
	}
	for _, in := range ins {
		b.Write(in.Hash[:])
		writeOptionalUint32(&b, in.AddressN)
	}

	return b.Bytes(), nil
}

func decodeInputs(blob []byte) ([]TxInput, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	r := bytes.NewReader(blob)
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}

	ins := make([]TxInput, 0, n)
	for i := 0; i < n; i++ {
		var in TxInput
		if _, err := io.ReadFull(r, in.Hash[:]); err != nil {
			return nil, fmt.Errorf("%w: input %d: %w",
				ErrMalformedList, i, err)
		}
		if in.AddressN, err = readOptionalUint32(r); err != nil {
			return nil, err
		}
		ins = append(ins, in)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedList, r.Len())
	}

	return ins, nil
}

func encodeOutputs(outs []TxOutput) ([]byte, error) {
	var b bytes.Buffer
	if err := writeCount(&b, len(outs)); err != nil {
		return nil, err
	}

	var amounts [16]byte
	for _, out := range outs {
		if err := writeVarBytes(&b, []byte(out.Address)); err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint64(amounts[:8], out.Coins)
		binary.BigEndian.PutUint64(amounts[8:], out.Hours)
		b.Write(amounts[:])
		writeOptionalUint32(&b, out.AddressN)
	}

	return b.Bytes(), nil
}

func decodeOutputs(blob []byte) ([]TxOutput, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	r := bytes.NewReader(blob)
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}

	outs := make([]TxOutput, 0, n)
	for i := 0; i < n; i++ {
		addr, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}

		var amounts [16]byte
		if _, err := io.ReadFull(r, amounts[:]); err != nil {
			return nil, fmt.Errorf("%w: output %d: %w",
				ErrMalformedList, i, err)
		}

		addrN, err := readOptionalUint32(r)
		if err != nil {
			return nil, err
		}

		outs = append(outs, TxOutput{
			Address:  string(addr),
			Coins:    binary.BigEndian.Uint64(amounts[:8]),
			Hours:    binary.BigEndian.Uint64(amounts[8:]),
			AddressN: addrN,
		})
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedList, r.Len())
	}

	return outs, nil
}

// Encode writes the payload.
func (m *TxAck) Encode(w *bytes.Buffer) error {
	ins, err := encodeInputs(m.Inputs)
	if err != nil {
		return err
	}
	outs, err := encodeOutputs(m.Outputs)
	if err != nil {
		return err
	}

	return encodeRecords(w, primitive(0, &ins), primitive(2, &outs))
}

// Decode reads the payload.
func (m *TxAck) Decode(r io.Reader) error {
	var ins, outs []byte
	_, err := decodeRecords(r, primitive(0, &ins), primitive(2, &outs))
	if err != nil {
		return err
	}

	if m.Inputs, err = decodeInputs(ins); err != nil {
		return err
	}
	m.Outputs, err = decodeOutputs(outs)

	return err
}

// TxSignResult is the signature of one input.
type TxSignResult struct {
	Index     uint32
	Signature [65]byte
}

// TxRequest is the device's answer to SignTx and TxAck.
type TxRequest struct {
	Type         uint8
	RequestIndex uint32
	TxHash       string
	SignResults  []TxSignResult
}

// MsgType returns the message type.
func (*TxRequest) MsgType() MessageType { return MsgTxRequest }

func encodeSignResults(results []TxSignResult) ([]byte, error) {
	var b bytes.Buffer
	if err := writeCount(&b, len(results)); err != nil {
		return nil, err
	}

	var idx [4]byte
	for _, res := range results {
		binary.BigEndian.PutUint32(idx[:], res.Index)
		b.Write(idx[:])
		b.Write(res.Signature[:])
	}

	return b.Bytes(), nil
}

func decodeSignResults(blob []byte) ([]TxSignResult, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	r := bytes.NewReader(blob)
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}

	results := make([]TxSignResult, 0, n)
	for i := 0; i < n; i++ {
		var (
			res TxSignResult
			idx [4]byte
		)
		if _, err := io.ReadFull(r, idx[:]); err != nil {
			return nil, fmt.Errorf("%w: result %d: %w",
				ErrMalformedList, i, err)
		}
		if _, err := io.ReadFull(r, res.Signature[:]); err != nil {
			return nil, fmt.Errorf("%w: result %d: %w",
				ErrMalformedList, i, err)
		}
		res.Index = binary.BigEndian.Uint32(idx[:])
		results = append(results, res)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedList, r.Len())
	}

	return results, nil
}

// Encode writes the payload.
func (m *TxRequest) Encode(w *bytes.Buffer) error {
	results, err := encodeSignResults(m.SignResults)
	if err != nil {
		return err
	}
	hash := []byte(m.TxHash)

	return encodeRecords(
		w, primitive(0, &m.Type), primitive(2, &m.RequestIndex),
		primitive(4, &hash), primitive(6, &results),
	)
}

// Decode reads the payload.
func (m *TxRequest) Decode(r io.Reader) error {
	var hash, results []byte
	_, err := decodeRecords(
		r, primitive(0, &m.Type), primitive(2, &m.RequestIndex),
		primitive(4, &hash), primitive(6, &results),
	)
	if err != nil {
		return err
	}

	m.TxHash = string(hash)
	m.SignResults, err = decodeSignResults(results)

	return err
}

// TransactionSign carries a whole transaction to sign in one request.
type TransactionSign struct {
	Inputs  []TxInput
	Outputs []TxOutput
}

// MsgType returns the message type.
func (*TransactionSign) MsgType() MessageType { return MsgTransactionSign }

// Encode writes the payload.
func (m *TransactionSign) Encode(w *bytes.Buffer) error {
	ack := TxAck{Inputs: m.Inputs, Outputs: m.Outputs}
	return ack.Encode(w)
}

// Decode reads the payload.
func (m *TransactionSign) Decode(r io.Reader) error {
	var ack TxAck
	if err := ack.Decode(r); err != nil {
		return err
	}
	m.Inputs, m.Outputs = ack.Inputs, ack.Outputs

	return nil
}

// ResponseTransactionSign carries one hex encoded signature per input.
type ResponseTransactionSign struct {
	Signatures []string
}

// MsgType returns the message type.
func (*ResponseTransactionSign) MsgType() MessageType {
	return MsgResponseTransactionSign
}

// Encode writes the payload.
func (m *ResponseTransactionSign) Encode(w *bytes.Buffer) error {
	blob, err := encodeStrings(m.Signatures)
	if err != nil {
		return err
	}

	return encodeRecords(w, primitive(0, &blob))
}

// Decode reads the payload.
func (m *ResponseTransactionSign) Decode(r io.Reader) error {
	var blob []byte
	if _, err := decodeRecords(r, primitive(0, &blob)); err != nil {
		return err
	}

	sigs, err := decodeStrings(blob)
	if err != nil {
		return err
	}
	m.Signatures = sigs

	return nil
}
