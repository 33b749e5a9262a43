package slate

import (
	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/store"
)

// Txn is the public transaction handle: every collection, index, find
// and write operation in this package hangs off one. Collection and
// index metadata are re-exported from catalog directly rather than
// wrapped, since they carry no engine-internal state a caller shouldn't
// see.
type Txn struct {
	db     *Database
	store  store.Txn
	engine *engine.Txn
}

// Commit applies every write made through t atomically. A read-only txn
// (or one that made no writes) still needs Commit (or Rollback) called
// to release the store's lock.
func (t *Txn) Commit() error { return t.store.Commit() }

// Rollback discards every write made through t. Safe to call on an
// already-committed or already-rolled-back transaction.
func (t *Txn) Rollback() error { return t.store.Rollback() }

// CreateCollection is idempotent: creates the collection's partition and
// metadata if absent, returns the existing metadata otherwise.
func (t *Txn) CreateCollection(name string, opts catalog.CreateCollectionOptions) (*catalog.Collection, error) {
	return catalog.CreateCollection(t.store, name, opts)
}

// DropCollection deletes a collection's records, index entries, index
// declarations and metadata. Safe to call on a collection that doesn't
// exist.
func (t *Txn) DropCollection(name string) error {
	return catalog.DropCollection(t.store, name)
}

// ListCollections returns every collection's metadata.
func (t *Txn) ListCollections() ([]*catalog.Collection, error) {
	return catalog.ListCollections(t.store)
}

// CreateIndex declares (or returns the existing declaration for) a
// secondary index on field, backfilling entries for every existing live
// record in the same transaction.
func (t *Txn) CreateIndex(collection, field string) (*catalog.IndexConfig, error) {
	return catalog.CreateIndex(t.store, t.engine.Now(), collection, field)
}

// DropIndex removes a secondary index's entries and declaration.
func (t *Txn) DropIndex(collection, field string) error {
	return catalog.DropIndex(t.store, collection, field)
}

// ListIndexes returns every secondary index declared on a collection, in
// declaration order.
func (t *Txn) ListIndexes(collection string) ([]*catalog.IndexConfig, error) {
	return catalog.ListIndexes(t.store, collection)
}

// Purge deletes every record in collection expired at t's clock, and
// reports how many were removed. Exposed directly since it is the
// building block the TTL Sweeper runs on a schedule; callers wanting an
// immediate sweep of one collection can call it inline instead.
func (t *Txn) Purge(collection string) (int, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return 0, err
	}
	return t.engine.Purge(h)
}
