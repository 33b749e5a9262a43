package executor

import (
	"iter"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/planner"
)

// Run turns a plan built by planner.Build into a running pipeline of
// Rows, recursing through each node's input to compose the stages it
// wraps.
func Run(t *engine.Txn, h *engine.Handle, node planner.Node) iter.Seq2[Row, error] {
	switch n := node.(type) {
	case planner.Values:
		return runValues(n.Docs)
	case planner.Scan:
		return runScan(t, h)
	case planner.IndexScan:
		return runIndexScan(t, h, n)
	case planner.IndexMerge:
		return runIndexMerge(t, h, n)
	case planner.ReadRecord:
		return runReadRecord(t, h, Run(t, h, n.Input))
	case planner.Filter:
		return runFilter(n.Pred, Run(t, h, n.Input))
	case planner.Sort:
		return runSort(n.Keys, Run(t, h, n.Input))
	case planner.Limit:
		return runLimit(n.Skip, n.Take, Run(t, h, n.Input))
	case planner.Projection:
		return runProjection(n.Columns, Run(t, h, n.Input))
	case planner.Distinct:
		return runDistinct(n.Field, Run(t, h, n.Input))
	default:
		return func(yield func(Row, error) bool) {
			yield(Row{}, ErrUnsupportedNode)
		}
	}
}

func runValues(docs []bson.Raw) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, doc := range docs {
			if !yield(Row{Kind: RowDoc, Doc: doc}, nil) {
				return
			}
		}
	}
}

func runScan(t *engine.Txn, h *engine.Handle) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for doc, err := range t.Scan(h) {
			if err != nil {
				yield(Row{}, err)
				return
			}
			if !yield(Row{Kind: RowDoc, Doc: doc}, nil) {
				return
			}
		}
	}
}

// runIndexScan walks one secondary (or PK) index range. A PK scan has no
// real index entries to read — the primary key IS the record key — so it
// walks the record scan itself, filtering via the range bound on the
// extracted PK; a field index scan walks engine.Txn.ScanIndex. Covered
// scans yield the indexed value directly (RowValue) instead of the
// doc-id (RowDocID), letting Projection/Distinct skip ReadRecord
// entirely.
func runIndexScan(t *engine.Txn, h *engine.Handle, n planner.IndexScan) iter.Seq2[Row, error] {
	if n.PK {
		return runPKScan(t, h, n)
	}
	return func(yield func(Row, error) bool) {
		count := 0
		for entry, err := range t.ScanIndex(h, n.Field, n.Range, n.Reverse) {
			if err != nil {
				yield(Row{}, err)
				return
			}
			if n.Limit > 0 && count >= n.Limit {
				return
			}
			count++
			row := Row{Kind: RowDocID, DocID: entry.DocID}
			if n.Covered {
				rv, cerr := entry.Value.ToRawValue()
				if cerr != nil {
					if !yield(Row{}, cerr) {
						return
					}
					continue
				}
				row = Row{Kind: RowValue, DocID: entry.DocID, Value: rv}
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func runPKScan(t *engine.Txn, h *engine.Handle, n planner.IndexScan) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		count := 0
		for doc, err := range t.Scan(h) {
			if err != nil {
				yield(Row{}, err)
				return
			}
			pk, perr := t.ExtractPK(h, doc)
			if perr != nil {
				if !yield(Row{}, perr) {
					return
				}
				continue
			}
			if !pkInRange(pk, n.Range) {
				continue
			}
			if n.Limit > 0 && count >= n.Limit {
				return
			}
			count++
			if !yield(Row{Kind: RowDoc, Doc: doc, DocID: pk}, nil) {
				return
			}
		}
	}
}

func pkInRange(pk bsonvalue.Value, rng engine.Range) bool {
	switch rng.Kind {
	case engine.RangeFull:
		return true
	case engine.RangeEq:
		return bsonvalue.Compare(pk, rng.Eq) == 0
	case engine.RangeBetween:
		if rng.Lo != nil {
			c := bsonvalue.Compare(pk, *rng.Lo)
			if c < 0 || (c == 0 && !rng.LoInclusive) {
				return false
			}
		}
		if rng.Hi != nil {
			c := bsonvalue.Compare(pk, *rng.Hi)
			if c > 0 || (c == 0 && !rng.HiInclusive) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func runIndexMerge(t *engine.Txn, h *engine.Handle, n planner.IndexMerge) iter.Seq2[Row, error] {
	if n.Op == planner.MergeAnd {
		return runIndexMergeAnd(t, h, n.Branches)
	}
	return runIndexMergeOr(t, h, n.Branches)
}

// runIndexMergeAnd materializes every branch but the first into a doc-id
// set, then streams the first branch, yielding only doc-ids present in
// every other branch. A true cost-based "probe the smaller side" plan
// would need row-count estimates the planner doesn't compute, so branch
// order from planner.Build (ascending index declaration Seq) decides
// which branch streams; this still preserves doc-id order in the common
// case, since an Eq-valued IndexScan's composite key already orders by
// ascending doc-id within the fixed value prefix.
func runIndexMergeAnd(t *engine.Txn, h *engine.Handle, branches []planner.Node) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if len(branches) == 0 {
			return
		}
		sets := make([]*valueSet, len(branches)-1)
		for i, b := range branches[1:] {
			s := newValueSet()
			for row, err := range Run(t, h, b) {
				if err != nil {
					yield(Row{}, err)
					return
				}
				s.add(docIDKey(row.DocID))
			}
			sets[i] = s
		}
		for row, err := range Run(t, h, branches[0]) {
			if err != nil {
				yield(Row{}, err)
				return
			}
			key := docIDKey(row.DocID)
			matched := true
			for _, s := range sets {
				if !s.has(key) {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// runIndexMergeOr streams each branch in order, deduping by doc-id and
// yielding only the first occurrence of each — a deterministic but
// implementation-chosen order, as the spec allows for Or merges.
func runIndexMergeOr(t *engine.Txn, h *engine.Handle, branches []planner.Node) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		seen := newValueSet()
		for _, b := range branches {
			for row, err := range Run(t, h, b) {
				if err != nil {
					yield(Row{}, err)
					return
				}
				if seen.add(docIDKey(row.DocID)) {
					continue
				}
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}

// runReadRecord resolves a doc-id row into its full document. A doc-id
// whose record has since been deleted or expired is dropped silently,
// matching the spec's "a stale index reference drops rather than
// errors" rule — engine.ErrNotFound is the only error swallowed here.
func runReadRecord(t *engine.Txn, h *engine.Handle, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			if row.Kind == RowDoc {
				if !yield(row, nil) {
					return
				}
				continue
			}
			doc, gerr := t.Get(h, row.DocID)
			if gerr == engine.ErrNotFound {
				continue
			}
			if gerr != nil {
				if !yield(Row{}, gerr) {
					return
				}
				continue
			}
			if !yield(Row{Kind: RowDoc, Doc: doc, DocID: row.DocID}, nil) {
				return
			}
		}
	}
}
