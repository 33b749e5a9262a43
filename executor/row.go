// Package executor turns a planner.Node tree into a running pipeline: a
// push-iterator of Row values pulled through engine.Txn, mirroring the
// planner's access-path choices node for node. Write operations (delete,
// update, replace, insert, upsert, merge) sit alongside as plain
// functions rather than planner.Node variants, since they aren't an
// access-path concern — each consumes a read pipeline (or a document
// slice) and drives engine.Txn directly.
package executor

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/internal/bsonvalue"
)

// RowKind tags which field of Row is meaningful.
type RowKind int

const (
	// RowDoc carries a full decoded document.
	RowDoc RowKind = iota
	// RowDocID carries only a primary-key value, not yet resolved to a
	// record — the shape an IndexScan/IndexMerge yields before
	// ReadRecord runs.
	RowDocID
	// RowValue carries a single extracted scalar — the shape a covered
	// IndexScan or Distinct yields.
	RowValue
	// RowStatus carries the outcome of a write operation, one per input
	// document.
	RowStatus
)

// Status reports the outcome of a single write applied to one document.
type Status struct {
	DocID    bsonvalue.Value
	Matched  bool
	Modified bool
	Inserted bool
}

// Row is the unit flowing through an executor pipeline. Kind names the
// field that carries the row's payload. Other fields may also be set:
// document and value rows usually carry DocID, and write-status rows
// carry the written document in Doc.
type Row struct {
	Kind   RowKind
	Doc    bson.Raw
	DocID  bsonvalue.Value
	Value  bson.RawValue
	Status Status
}
