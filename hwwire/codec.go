package hwwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

// maxListLen bounds the element count of an encoded list.
const maxListLen = 256

// ErrMalformedList is returned for list fields that do not parse.
var ErrMalformedList = errors.New("malformed list field")

// encodeRecords writes records as a TLV stream.
func encodeRecords(w *bytes.Buffer, records ...tlv.Record) error {
	tlv.SortRecords(records)

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// decodeRecords reads a TLV stream into records and returns the types that
// were present.
func decodeRecords(r io.Reader, records ...tlv.Record) (tlv.TypeMap, error) {
	tlv.SortRecords(records)

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	return stream.DecodeWithParsedTypes(r)
}

// optionalRecord appends a record for an optional value when it is set.
func optionalRecord[T any](records []tlv.Record, typ tlv.Type, o fn.Option[T],
	mk func(tlv.Type, *T) tlv.Record) []tlv.Record {

	o.WhenSome(func(v T) {
		records = append(records, mk(typ, &v))
	})

	return records
}

// optionFromParsed returns v if typ was present in the stream.
func optionFromParsed[T any](parsed tlv.TypeMap, typ tlv.Type,
	v T) fn.Option[T] {

	if _, ok := parsed[typ]; ok {
		return fn.Some(v)
	}

	return fn.None[T]()
}

func primitive[T any](typ tlv.Type, v *T) tlv.Record {
	return tlv.MakePrimitiveRecord(typ, v)
}

// writeVarBytes writes a varint length followed by b.
func writeVarBytes(w *bytes.Buffer, b []byte) error {
	var scratch [8]byte
	if err := tlv.WriteVarInt(w, uint64(len(b)), &scratch); err != nil {
		return err
	}
	_, err := w.Write(b)

	return err
}

// readVarBytes reads a varint length prefixed byte string.
func readVarBytes(r *bytes.Reader) ([]byte, error) {
	var scratch [8]byte
	n, err := tlv.ReadVarInt(r, &scratch)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d bytes declared, %d left",
			ErrMalformedList, n, r.Len())
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}

	return b, nil
}

// writeCount writes a list length.
func writeCount(w *bytes.Buffer, n int) error {
	if n > maxListLen {
		return fmt.Errorf("%w: %d elements", ErrMalformedList, n)
	}

	var scratch [8]byte
	return tlv.WriteVarInt(w, uint64(n), &scratch)
}

// readCount reads a list length.
func readCount(r *bytes.Reader) (int, error) {
	var scratch [8]byte
	n, err := tlv.ReadVarInt(r, &scratch)
	if err != nil {
		return 0, err
	}
	if n > maxListLen {
		return 0, fmt.Errorf("%w: %d elements", ErrMalformedList, n)
	}

	return int(n), nil
}

// writeOptionalUint32 writes a presence byte and, when set, the value.
func writeOptionalUint32(w *bytes.Buffer, o fn.Option[uint32]) {
	if o.IsNone() {
		w.WriteByte(0)
		return
	}

	w.WriteByte(1)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], o.UnwrapOr(0))
	w.Write(b[:])
}

// readOptionalUint32 reads a value written by writeOptionalUint32.
func readOptionalUint32(r *bytes.Reader) (fn.Option[uint32], error) {
	flag, err := r.ReadByte()
	if err != nil {
		return fn.None[uint32](), err
	}

	switch flag {
	case 0:
		return fn.None[uint32](), nil

	case 1:
		var v uint32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return fn.None[uint32](), err
		}

		return fn.Some(v), nil

	default:
		return fn.None[uint32](), fmt.Errorf("%w: presence flag %d",
			ErrMalformedList, flag)
	}
}

// encodeStrings encodes a list of strings.
func encodeStrings(ss []string) ([]byte, error) {
	var b bytes.Buffer
	if err := writeCount(&b, len(ss)); err != nil {
		return nil, err
	}
	for _, s := range ss {
		if err := writeVarBytes(&b, []byte(s)); err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}

// decodeStrings decodes a list written by encodeStrings.
func decodeStrings(blob []byte) ([]string, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	r := bytes.NewReader(blob)
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}

	ss := make([]string, 0, n)
	for i := 0; i < n; i++ {
		b, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		ss = append(ss, string(b))
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedList, r.Len())
	}

	return ss, nil
}
