// Package planner chooses an access path for a filter/sort/limit/
// projection query shape and assembles it into a tree of plan nodes for
// the executor to interpret. Node is a tagged union in the same shape as
// expr.Node: a small interface implemented by one concrete struct per
// node kind, switched on by the executor rather than carrying behavior
// itself.
package planner

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/expr"
)

// Node is one stage of a query plan.
type Node interface{ planNode() }

// SortKey is one (field, direction) pair in a sort list.
type SortKey struct {
	Field string
	Desc  bool
}

// MergeOp selects how IndexMerge combines its branches.
type MergeOp int

const (
	// MergeAnd yields doc-ids present in every branch (intersection).
	MergeAnd MergeOp = iota
	// MergeOr yields the deduplicated union of every branch.
	MergeOr
)

// Values replays an already-materialized document list, used to seed
// insert/upsert pipelines rather than to read from storage.
type Values struct{ Docs []bson.Raw }

// Scan is a forward scan of the collection's whole record space.
type Scan struct{}

// IndexScan scans one secondary index (or, when PK is set, the implicit
// primary-key access path) within Range, in ascending order unless
// Reverse. Limit, when nonzero, is a pushed-down cap (an optimization
// hint, not a correctness requirement — the executor still applies the
// real skip/take via a Limit node). Covered means the scan's own
// (value, doc-id) entries satisfy the query without reading the record.
type IndexScan struct {
	Field   string
	Range   engine.Range
	Reverse bool
	Limit   int
	Covered bool
	PK      bool
}

// IndexMerge combines the doc-ids yielded by its branches per Op.
type IndexMerge struct {
	Op       MergeOp
	Branches []Node
}

// ReadRecord fetches the full document for each doc-id from Input,
// dropping ids whose record is missing or has since expired.
type ReadRecord struct{ Input Node }

// Filter evaluates Pred against each document from Input, dropping
// non-matches.
type Filter struct {
	Pred  expr.Node
	Input Node
}

// Sort materializes Input and orders it by Keys.
type Sort struct {
	Keys  []SortKey
	Input Node
}

// Limit drops Skip elements then yields up to Take (0 meaning
// unbounded for whichever of the two is zero).
type Limit struct {
	Skip, Take int
	Input      Node
}

// Projection emits a new document containing only Columns (dot-paths
// supported) from each document in Input.
type Projection struct {
	Columns []string
	Input   Node
}

// Distinct yields one element per unique value extracted from Field
// across Input, expanding arrays.
type Distinct struct {
	Field string
	Input Node
}

func (Values) planNode()     {}
func (Scan) planNode()       {}
func (IndexScan) planNode()  {}
func (IndexMerge) planNode() {}
func (ReadRecord) planNode() {}
func (Filter) planNode()     {}
func (Sort) planNode()       {}
func (Limit) planNode()      {}
func (Projection) planNode() {}
func (Distinct) planNode()   {}
