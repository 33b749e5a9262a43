// Package bsonvalue implements the sortable binary encoding for BSON leaf
// values: the byte form used inside index keys must order lexicographically
// the same way the values order semantically, so that a prefix scan over
// encoded bytes is also a range scan over values.
//
// It also defines the length-prefixed form used to embed a doc-id (or any
// other value) at the tail of a composite key without a terminator byte.
package bsonvalue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// ErrUnsupportedType is returned when a BSON type has no sortable encoding
// defined for it (documents, arrays, binary, etc. are not leaf/indexable
// types).
var ErrUnsupportedType = errors.New("bsonvalue: unsupported type for sortable encoding")

// ErrTruncated is returned when a length-prefixed value cannot be decoded
// because the input ends before the declared length.
var ErrTruncated = errors.New("bsonvalue: truncated length-prefixed value")

const signMask64 = uint64(1) << 63
const signMask32 = uint32(1) << 31

// Value is a tagged, sortably-encoded BSON leaf. Data holds the bytes
// produced by Encode for the type named by Tag; comparing two Values of the
// same Tag by bytes.Compare on Data reproduces the semantic order of the
// source values (invariant 1 in the spec's testable properties).
type Value struct {
	Tag  bsontype.Type
	Data []byte
}

// FromRawValue extracts the sortable encoding of a BSON leaf value. Only
// the leaf types named in the data model (int32, int64, double, boolean,
// UTC datetime, string, ObjectId) are supported; anything else is
// ErrUnsupportedType.
func FromRawValue(rv bson.RawValue) (Value, error) {
	switch rv.Type {
	case bsontype.Int32:
		return Value{Tag: bsontype.Int32, Data: encodeI32(rv.Int32())}, nil
	case bsontype.Int64:
		return Value{Tag: bsontype.Int64, Data: encodeI64(rv.Int64())}, nil
	case bsontype.DateTime:
		return Value{Tag: bsontype.DateTime, Data: encodeI64(rv.DateTime())}, nil
	case bsontype.Double:
		return Value{Tag: bsontype.Double, Data: encodeF64(rv.Double())}, nil
	case bsontype.Boolean:
		b := byte(0)
		if rv.Boolean() {
			b = 1
		}
		return Value{Tag: bsontype.Boolean, Data: []byte{b}}, nil
	case bsontype.String:
		return Value{Tag: bsontype.String, Data: []byte(rv.StringValue())}, nil
	case bsontype.ObjectID:
		oid := rv.ObjectID()
		data := make([]byte, len(oid))
		copy(data, oid[:])
		return Value{Tag: bsontype.ObjectID, Data: data}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type)
	}
}

// ToRawValue reconstructs a bson.RawValue from a sortable Value, decoding
// the sortable bytes back into the type's native wire encoding.
func (v Value) ToRawValue() (bson.RawValue, error) {
	switch v.Tag {
	case bsontype.Int32:
		i := decodeI32(v.Data)
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(i))
		return bson.RawValue{Type: bsontype.Int32, Value: buf}, nil
	case bsontype.Int64:
		i := decodeI64(v.Data)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(i))
		return bson.RawValue{Type: bsontype.Int64, Value: buf}, nil
	case bsontype.DateTime:
		i := decodeI64(v.Data)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(i))
		return bson.RawValue{Type: bsontype.DateTime, Value: buf}, nil
	case bsontype.Double:
		f := decodeF64(v.Data)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		return bson.RawValue{Type: bsontype.Double, Value: buf}, nil
	case bsontype.Boolean:
		b := byte(0)
		if len(v.Data) > 0 && v.Data[0] != 0 {
			b = 1
		}
		return bson.RawValue{Type: bsontype.Boolean, Value: []byte{b}}, nil
	case bsontype.String:
		return bson.RawValue{Type: bsontype.String, Value: stringWire(v.Data)}, nil
	case bsontype.ObjectID:
		buf := make([]byte, 12)
		copy(buf, v.Data)
		return bson.RawValue{Type: bsontype.ObjectID, Value: buf}, nil
	default:
		return bson.RawValue{}, fmt.Errorf("%w: %s", ErrUnsupportedType, v.Tag)
	}
}

func stringWire(s []byte) []byte {
	buf := make([]byte, 4+len(s)+1)
	binary.LittleEndian.PutUint32(buf, uint32(len(s)+1))
	copy(buf[4:], s)
	buf[len(buf)-1] = 0
	return buf
}

// Compare orders two Values. Values of the same Tag compare by their
// sortable byte encoding (lexicographic == semantic order, per invariant
// 1). Values of different Tags compare by the type-tag byte, per the
// deterministic cross-type ordering decided for this repository (§4.2
// "preserving determinism if not semantics").
func Compare(a, b Value) int {
	if a.Tag != b.Tag {
		if a.Tag < b.Tag {
			return -1
		}
		return 1
	}
	n := min(len(a.Data), len(b.Data))
	for i := 0; i < n; i++ {
		if a.Data[i] != b.Data[i] {
			if a.Data[i] < b.Data[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a.Data) < len(b.Data):
		return -1
	case len(a.Data) > len(b.Data):
		return 1
	}
	return 0
}

// EncodeLengthPrefixed produces the composite-key tail form:
// [type tag: 1 byte][length: 2 bytes big-endian][bytes]. Used to embed a
// value (typically a doc-id) after other key components without a
// terminator, since the length makes it self-delimiting.
func EncodeLengthPrefixed(v Value) []byte {
	out := make([]byte, 3+len(v.Data))
	out[0] = byte(v.Tag)
	binary.BigEndian.PutUint16(out[1:3], uint16(len(v.Data)))
	copy(out[3:], v.Data)
	return out
}

// DecodeLengthPrefixed parses the head of b as a length-prefixed Value and
// returns the remaining bytes after it.
func DecodeLengthPrefixed(b []byte) (v Value, rest []byte, err error) {
	if len(b) < 3 {
		return Value{}, nil, ErrTruncated
	}
	tag := bsontype.Type(b[0])
	n := int(binary.BigEndian.Uint16(b[1:3]))
	if len(b)-3 < n {
		return Value{}, nil, ErrTruncated
	}
	data := make([]byte, n)
	copy(data, b[3:3+n])
	return Value{Tag: tag, Data: data}, b[3+n:], nil
}

func encodeI32(i int32) []byte {
	u := uint32(i) ^ signMask32
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, u)
	return buf
}

func decodeI32(b []byte) int32 {
	u := binary.BigEndian.Uint32(b) ^ signMask32
	return int32(u)
}

func encodeI64(i int64) []byte {
	u := uint64(i) ^ signMask64
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)
	return buf
}

func decodeI64(b []byte) int64 {
	u := binary.BigEndian.Uint64(b) ^ signMask64
	return int64(u)
}

func encodeF64(f float64) []byte {
	bits := math.Float64bits(f)
	var sortable uint64
	if bits&signMask64 != 0 {
		sortable = ^bits
	} else {
		sortable = bits ^ signMask64
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, sortable)
	return buf
}

func decodeF64(b []byte) float64 {
	sortable := binary.BigEndian.Uint64(b)
	var bits uint64
	if sortable&signMask64 != 0 {
		bits = sortable ^ signMask64
	} else {
		bits = ^sortable
	}
	return math.Float64frombits(bits)
}
