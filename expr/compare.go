package expr

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Compare orders two scalar BSON values under the filter model's
// coercion rules: numeric promotion across int32/int64/double,
// string-to-number coercion, and datetime coercion against numbers
// (read as epoch seconds, so N compares as N*1000 millis) and RFC 3339
// strings. Incompatible type pairs report ok=false, which
// callers treat as "predicate silently fails" rather than an error.
func Compare(a, b bson.RawValue) (cmp int, ok bool) {
	if a.Type == bsontype.DateTime || b.Type == bsontype.DateTime {
		am, aok := asMillis(a)
		bm, bok := asMillis(b)
		if !aok || !bok {
			return 0, false
		}
		return cmpInt64(am, bm), true
	}
	if a.Type == bsontype.String && b.Type == bsontype.String {
		return strings.Compare(a.StringValue(), b.StringValue()), true
	}
	if a.Type == bsontype.Boolean && b.Type == bsontype.Boolean {
		av, bv := a.Boolean(), b.Boolean()
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// asMillis converts a value to a UTC millisecond timestamp for datetime
// comparison: a datetime as-is, an integer or double as epoch-seconds*
// 1000 — that is, N compared to a datetime is understood as N seconds,
// expressed as N*1000 millis — and an RFC 3339 string parsed to its
// instant.
func asMillis(rv bson.RawValue) (int64, bool) {
	switch rv.Type {
	case bsontype.DateTime:
		return rv.DateTime(), true
	case bsontype.Int32:
		return int64(rv.Int32()) * 1000, true
	case bsontype.Int64:
		return rv.Int64() * 1000, true
	case bsontype.Double:
		return int64(rv.Double() * 1000), true
	case bsontype.String:
		t, err := time.Parse(time.RFC3339, rv.StringValue())
		if err != nil {
			return 0, false
		}
		return t.UnixMilli(), true
	default:
		return 0, false
	}
}

// asFloat converts a value to a float64 for numeric comparison, coercing
// a numeric string ("42") the same as the literal number.
func asFloat(rv bson.RawValue) (float64, bool) {
	switch rv.Type {
	case bsontype.Int32:
		return float64(rv.Int32()), true
	case bsontype.Int64:
		return float64(rv.Int64()), true
	case bsontype.Double:
		return rv.Double(), true
	case bsontype.String:
		f, err := strconv.ParseFloat(rv.StringValue(), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
