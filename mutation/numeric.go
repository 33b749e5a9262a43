package mutation

import (
	"encoding/binary"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

const (
	kindNotNumeric = -1
	kindInt32      = 0
	kindInt64      = 1
	kindDouble     = 2
)

func numKind(rv bson.RawValue) int {
	switch rv.Type {
	case bsontype.Int32:
		return kindInt32
	case bsontype.Int64:
		return kindInt64
	case bsontype.Double:
		return kindDouble
	default:
		return kindNotNumeric
	}
}

func asF64(rv bson.RawValue) float64 {
	switch rv.Type {
	case bsontype.Int32:
		return float64(rv.Int32())
	case bsontype.Int64:
		return float64(rv.Int64())
	case bsontype.Double:
		return rv.Double()
	default:
		return 0
	}
}

func asI64(rv bson.RawValue) int64 {
	switch rv.Type {
	case bsontype.Int32:
		return int64(rv.Int32())
	case bsontype.Int64:
		return rv.Int64()
	default:
		return 0
	}
}

// incValue computes existing + operand, promoting i32 to i64 on overflow
// and to f64 whenever either operand is a double, matching the spec's
// "numeric with i32->i64 overflow promotion and f64 promotion on mixed
// operands".
func incValue(existing *bson.RawValue, operand bson.RawValue) (bson.RawValue, error) {
	if numKind(operand) == kindNotNumeric {
		return bson.RawValue{}, ErrNotNumeric
	}
	if existing == nil {
		return operand, nil
	}
	ek := numKind(*existing)
	if ek == kindNotNumeric {
		return bson.RawValue{}, ErrNotNumeric
	}
	ok := numKind(operand)
	if ek == kindDouble || ok == kindDouble {
		return doubleValue(asF64(*existing) + asF64(operand)), nil
	}
	if ek == kindInt64 || ok == kindInt64 {
		return int64Value(asI64(*existing) + asI64(operand)), nil
	}
	sum := int64(existing.Int32()) + int64(operand.Int32())
	if sum >= math.MinInt32 && sum <= math.MaxInt32 {
		return int32Value(int32(sum)), nil
	}
	return int64Value(sum), nil
}

func int32Value(v int32) bson.RawValue {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return bson.RawValue{Type: bsontype.Int32, Value: buf}
}

func int64Value(v int64) bson.RawValue {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return bson.RawValue{Type: bsontype.Int64, Value: buf}
}

func doubleValue(v float64) bson.RawValue {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return bson.RawValue{Type: bsontype.Double, Value: buf}
}
