package engine

import (
	"iter"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/internal/keys"
	"github.com/jpl-au/slate/internal/record"
)

// Scan yields every live document in the collection, in record-key order,
// skipping records expired at the transaction's clock. Record keys carry
// the length-prefixed doc-id, so ids order by type tag, then encoded
// length, then bytes: string ids of different lengths are not in plain
// lexicographic order.
func (t *Txn) Scan(h *Handle) iter.Seq2[bson.Raw, error] {
	return func(yield func(bson.Raw, error) bool) {
		for kv, err := range t.store.ScanPrefix(h.CF, keys.RecordPrefix(h.Name)) {
			if err != nil {
				yield(nil, err)
				return
			}
			if record.IsExpired(kv.Value, t.now) {
				continue
			}
			doc, _, err := record.Decode(kv.Value)
			if err != nil {
				if !yield(nil, record.ErrMalformed) {
					return
				}
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// RangeKind selects the shape of a ScanIndex bound.
type RangeKind int

const (
	// RangeFull visits every entry in the index, in value order.
	RangeFull RangeKind = iota
	// RangeEq visits only entries equal to Eq.
	RangeEq
	// RangeBetween visits entries bounded by Lo/Hi (either may be nil for
	// an open end), honoring LoInclusive/HiInclusive.
	RangeBetween
)

// Range describes the bound passed to ScanIndex.
type Range struct {
	Kind                     RangeKind
	Eq                       bsonvalue.Value
	Lo, Hi                   *bsonvalue.Value
	LoInclusive, HiInclusive bool
}

// IndexEntry is one live (doc-id, value) pair yielded by ScanIndex.
type IndexEntry struct {
	DocID bsonvalue.Value
	Value bsonvalue.Value
}

// ScanIndex range-scans one secondary index (or the TTL path) in value
// order, forward or reverse, skipping entries expired at the
// transaction's clock. For RangeBetween, the scan walks the whole field
// prefix and bounds entries by comparison rather than by byte prefix,
// since values of a field can vary in encoded length; because entries
// are value-ordered, it stops outright (rather than merely skipping) the
// moment it passes the far bound in its scan direction.
func (t *Txn) ScanIndex(h *Handle, field string, rng Range, reverse bool) iter.Seq2[IndexEntry, error] {
	return func(yield func(IndexEntry, error) bool) {
		var prefix []byte
		switch rng.Kind {
		case RangeEq:
			prefix = keys.IndexValuePrefix(h.Name, field, rng.Eq.Data)
		default:
			prefix = keys.IndexFieldPrefix(h.Name, field)
		}

		scan := t.store.ScanPrefix
		if reverse {
			scan = t.store.ScanPrefixRev
		}

		for kv, err := range scan(h.CF, prefix) {
			if err != nil {
				yield(IndexEntry{}, err)
				return
			}
			_, _, valueBytes, docID, derr := keys.DecodeIndex(kv.Key)
			if derr != nil {
				if !yield(IndexEntry{}, ErrCorruptIndex) {
					return
				}
				continue
			}
			tag, _, merr := record.DecodeIndexMeta(kv.Value)
			if merr != nil {
				if !yield(IndexEntry{}, ErrCorruptIndex) {
					return
				}
				continue
			}
			val := bsonvalue.Value{Tag: tag, Data: valueBytes}

			// The value prefix also matches longer values that start with
			// the same bytes (e.g. "red" and "reddish"); keep exact matches.
			if rng.Kind == RangeEq && bsonvalue.Compare(val, rng.Eq) != 0 {
				continue
			}

			if rng.Kind == RangeBetween {
				belowLo := rng.Lo != nil && boundViolated(val, *rng.Lo, rng.LoInclusive, true)
				aboveHi := rng.Hi != nil && boundViolated(val, *rng.Hi, rng.HiInclusive, false)
				if !reverse {
					if belowLo {
						continue
					}
					if aboveHi {
						return
					}
				} else {
					if aboveHi {
						continue
					}
					if belowLo {
						return
					}
				}
			}

			if record.IsIndexExpired(kv.Value, t.now) {
				continue
			}
			if !yield(IndexEntry{DocID: docID, Value: val}, nil) {
				return
			}
		}
	}
}

// boundViolated reports whether val falls outside bound on the excluded
// side: below bound (isLower=true, val must be >= bound, or > if
// exclusive) or above bound (isLower=false, val must be <= bound, or <
// if exclusive).
func boundViolated(val, bound bsonvalue.Value, inclusive, isLower bool) bool {
	c := bsonvalue.Compare(val, bound)
	if isLower {
		if c < 0 {
			return true
		}
		return c == 0 && !inclusive
	}
	if c > 0 {
		return true
	}
	return c == 0 && !inclusive
}
