// Package engine implements the transaction-scoped read/write primitives
// that sit between the typed key schema and the public database façade:
// get, put, put_nx, delete, scan and scan_index, each wired through
// catalog for collection/index metadata, indexsync for the write-time
// index diff, and internal/keys + internal/record for the wire shapes.
//
// A Txn is bound to a single store.Txn and a fixed clock reading taken at
// Begin time, so every record and index entry touched by one engine
// transaction is judged against the same instant — a scan never sees a
// document expire partway through.
package engine

import (
	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/store"
)

// Txn wraps a store transaction with the current-millis clock used for
// TTL visibility checks throughout its lifetime.
type Txn struct {
	store store.Txn
	now   int64
}

// Begin starts an engine transaction against the given store transaction,
// fixing now as the clock reading for every expiry check made through it.
func Begin(txn store.Txn, nowMillis int64) *Txn {
	return &Txn{store: txn, now: nowMillis}
}

// Store exposes the underlying store transaction, for callers (the
// catalog-facing half of the façade) that need to perform catalog
// operations in the same transaction.
func (t *Txn) Store() store.Txn { return t.store }

// Now returns the clock reading fixed at Begin.
func (t *Txn) Now() int64 { return t.now }

// Handle is a resolved reference to a collection: its catalog metadata
// plus the live store.Handle for its partition, so repeated operations
// against the same collection don't re-resolve the CF each time.
type Handle struct {
	Name    string
	CF      store.Handle
	PKPath  string
	TTLPath string
}

// Resolve loads a collection's catalog metadata and its partition handle.
func (t *Txn) Resolve(collection string) (*Handle, error) {
	coll, err := catalog.GetCollection(t.store, collection)
	if err != nil {
		return nil, err
	}
	cfh, err := t.store.CF(coll.CF)
	if err != nil {
		return nil, err
	}
	return &Handle{Name: coll.Name, CF: cfh, PKPath: coll.PKPath, TTLPath: coll.TTLPath}, nil
}

// indexedFields returns the full set of property paths that must be kept
// in sync as index entries: every declared secondary index, plus the
// collection's TTL path. The TTL path rides the same indexsync machinery
// as a user index — an implicit index over "when does this expire" — so
// purge can range-scan it instead of a full collection scan. Using the
// TTL path's own name (rather than a reserved alias) is deliberate: if a
// user ever declares a real index on that exact path, the two produce
// identical entries for the same document and collapse into one, which
// is correct rather than a collision.
func indexedFields(h *Handle, declared []*catalog.IndexConfig) []string {
	fields := make([]string, 0, len(declared)+1)
	seen := make(map[string]bool, len(declared)+1)
	for _, idx := range declared {
		if !seen[idx.Field] {
			seen[idx.Field] = true
			fields = append(fields, idx.Field)
		}
	}
	if !seen[h.TTLPath] {
		fields = append(fields, h.TTLPath)
	}
	return fields
}
