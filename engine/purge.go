package engine

import (
	"math"

	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/internal/keys"
	"github.com/jpl-au/slate/internal/record"
)

// Purge deletes every record expired at the transaction's clock, and
// returns how many were removed.
func (t *Txn) Purge(h *Handle) (int, error) {
	return t.PurgeBefore(h, t.now)
}

// PurgeBefore deletes every record whose TTL is strictly before
// cutoffMillis, range-scanning the implicit TTL index rather than the
// whole collection: entries are value-ordered ascending, so the scan
// stops at the first one whose TTL has not yet passed.
func (t *Txn) PurgeBefore(h *Handle, cutoffMillis int64) (int, error) {
	var docIDs []bsonvalue.Value
	for kv, err := range t.store.ScanPrefix(h.CF, keys.IndexFieldPrefix(h.Name, h.TTLPath)) {
		if err != nil {
			return 0, err
		}
		_, ttl, derr := record.DecodeIndexMeta(kv.Value)
		if derr != nil {
			return 0, ErrCorruptIndex
		}
		if ttl == nil {
			continue
		}
		if *ttl >= cutoffMillis {
			break
		}
		_, _, _, docID, derr := keys.DecodeIndex(kv.Key)
		if derr != nil {
			return 0, ErrCorruptIndex
		}
		docIDs = append(docIDs, docID)
	}

	// Delete treats a record expired at its clock as already gone, and
	// purge candidates are usually expired, so they are deleted through a
	// view of the same store transaction whose clock precedes every TTL.
	del := &Txn{store: t.store, now: math.MinInt64}
	count := 0
	for _, id := range docIDs {
		deleted, err := del.Delete(h, id)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}
	return count, nil
}
