// Package slate is the public database façade: the one surface an
// embedding application imports, turning a ready store.Store into a
// MongoDB-flavored document database — collections with secondary
// indexes, a filter/mutation expression language, a streaming query
// planner and executor, and TTL expiry — without exposing any of
// engine, catalog, planner or executor directly.
//
// Open wraps a store; every operation after that runs inside a Txn
// bound to a single store.Txn, exactly as the engine package documents:
// one clock reading at Begin, one all-or-nothing Commit or Rollback.
package slate

import (
	"time"

	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/store"
)

// Database wraps a ready store, ready to hand out transactions.
type Database struct {
	store store.Store
}

// Open wraps store. The store is expected to already exist (its
// partitions persist across process restarts for store/filestore, or
// for the lifetime of the process for store/memstore); Open performs no
// schema setup of its own — CreateCollection does that lazily, the same
// way catalog.CreateCollection is idempotent.
func Open(s store.Store) (*Database, error) {
	return &Database{store: s}, nil
}

// Close releases the underlying store. Any transaction still open
// against it is left to the caller to resolve first.
func (db *Database) Close() error {
	return db.store.Close()
}

// Begin starts a transaction. Its clock reading is fixed at this
// instant for every TTL-visibility check made through it, per
// engine.Begin's documented contract.
func (db *Database) Begin(readOnly bool) (*Txn, error) {
	st, err := db.store.Begin(readOnly)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	return &Txn{db: db, store: st, engine: engine.Begin(st, now)}, nil
}
