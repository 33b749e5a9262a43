package mutation

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncore"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

func arrayElements(existing *bson.RawValue) ([]bson.RawValue, error) {
	if existing == nil {
		return nil, nil
	}
	if existing.Type != bsontype.Array {
		return nil, ErrNotArray
	}
	arr, err := existing.Array()
	if err != nil {
		return nil, ErrNotArray
	}
	values, err := arr.Values()
	if err != nil {
		return nil, ErrNotArray
	}
	return values, nil
}

func arrayPush(existing *bson.RawValue, operand bson.RawValue, prepend bool) (bson.RawValue, error) {
	elems, err := arrayElements(existing)
	if err != nil {
		return bson.RawValue{}, err
	}
	if prepend {
		elems = append([]bson.RawValue{operand}, elems...)
	} else {
		elems = append(elems, operand)
	}
	return buildArray(elems), nil
}

// arrayPop drops the last element of an array, reporting whether the
// array actually shrank (an empty array has nothing to drop).
func arrayPop(existing bson.RawValue) (bson.RawValue, bool, error) {
	elems, err := arrayElements(&existing)
	if err != nil {
		return bson.RawValue{}, false, err
	}
	if len(elems) == 0 {
		return existing, false, nil
	}
	return buildArray(elems[:len(elems)-1]), true, nil
}

func buildArray(elems []bson.RawValue) bson.RawValue {
	idx, buf := bsoncore.AppendArrayStart(nil)
	for i, e := range elems {
		buf = bsoncore.AppendValueElement(buf, strconv.Itoa(i), bsoncore.Value{Type: e.Type, Data: e.Value})
	}
	buf, _ = bsoncore.AppendArrayEnd(buf, idx)
	return bson.RawValue{Type: bsontype.Array, Value: buf}
}
