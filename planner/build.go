package planner

import (
	"sort"

	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/expr"
	"github.com/jpl-au/slate/internal/bsonvalue"
)

// maxOrMergeBranches caps how many indexed $or branches the planner will
// fan out into an IndexMerge before giving up and falling back to a full
// scan; an unbounded branch count turns one query into as many index
// probes, which a pathological $or should not be allowed to do.
const maxOrMergeBranches = 16

// Options describes one query's shape, independent of access path.
type Options struct {
	Filter  expr.Node
	Sorts   []SortKey
	Skip    int
	Take    int
	Columns []string
}

// Build chooses an access path for opts against h's declared indexes
// and layers the residual filter, sort, limit, and projection stages
// the access path doesn't already provide.
func Build(h *engine.Handle, indexes []*catalog.IndexConfig, opts Options) (Node, error) {
	if err := validateFilter(opts.Filter); err != nil {
		return nil, err
	}

	byField := make(map[string]*catalog.IndexConfig, len(indexes))
	for _, idx := range indexes {
		byField[idx.Field] = idx
	}

	acc := chooseAccess(h, byField, opts)

	pushedSort := false
	if scan, ok := acc.node.(IndexScan); ok && len(opts.Sorts) == 1 && opts.Sorts[0].Field == scan.Field {
		scan.Reverse = opts.Sorts[0].Desc
		// A residual filter may drop scanned rows, so the cap is only
		// pushed down when every scanned row reaches the Limit node.
		if opts.Take > 0 && acc.residual == nil {
			scan.Limit = opts.Skip + opts.Take
		}
		acc.node = scan
		pushedSort = true
	}

	node := acc.node
	if !acc.docs && acc.coveredField == "" {
		node = ReadRecord{Input: node}
	}
	if acc.residual != nil {
		node = Filter{Pred: acc.residual, Input: node}
	}
	if !pushedSort && len(opts.Sorts) > 0 {
		node = Sort{Keys: opts.Sorts, Input: node}
	}
	if opts.Skip > 0 || opts.Take > 0 {
		node = Limit{Skip: opts.Skip, Take: opts.Take, Input: node}
	}
	if len(opts.Columns) > 0 {
		node = Projection{Columns: opts.Columns, Input: node}
	}
	return node, nil
}

// access is the chosen entry point for a query plus the bookkeeping
// Build needs to wrap it correctly.
type access struct {
	node         Node
	docs         bool // true when node already yields full documents (Scan)
	residual     expr.Node
	coveredField string
}

// fieldBound accumulates the Eq/range predicates gathered for one field
// across a top-level AND's conjuncts.
type fieldBound struct {
	eq             *bsonvalue.Value
	lo, hi         *bsonvalue.Value
	loIncl, hiIncl bool
}

func (b *fieldBound) toRange() engine.Range {
	if b.eq != nil {
		return engine.Range{Kind: engine.RangeEq, Eq: *b.eq}
	}
	return engine.Range{Kind: engine.RangeBetween, Lo: b.lo, Hi: b.hi, LoInclusive: b.loIncl, HiInclusive: b.hiIncl}
}

// classified pairs one conjunct with the indexed field it was folded
// into, or "" if it did not resolve to an access path.
type classified struct {
	node  expr.Node
	field string
}

func chooseAccess(h *engine.Handle, byField map[string]*catalog.IndexConfig, opts Options) access {
	filter := opts.Filter
	if filter == nil {
		return access{node: Scan{}, docs: true}
	}
	if or, ok := filter.(*expr.Or); ok {
		if acc, ok := chooseOrAccess(byField, or); ok {
			return acc
		}
		return access{node: Scan{}, docs: true, residual: filter}
	}

	conjuncts := splitConjuncts(filter)
	items, bounds := classifyConjuncts(conjuncts, byField, h.PKPath)

	var node Node
	docs := false
	var winners map[string]bool

	switch {
	case bounds[h.PKPath] != nil && bounds[h.PKPath].eq != nil:
		node = IndexScan{Field: h.PKPath, Range: bounds[h.PKPath].toRange(), PK: true}
		winners = map[string]bool{h.PKPath: true}

	case len(bounds) >= 2:
		fields := make([]string, 0, len(bounds))
		for f := range bounds {
			fields = append(fields, f)
		}
		sort.Slice(fields, func(i, j int) bool { return seqOf(byField, fields[i]) < seqOf(byField, fields[j]) })
		branches := make([]Node, len(fields))
		winners = make(map[string]bool, len(fields))
		for i, f := range fields {
			branches[i] = IndexScan{Field: f, Range: bounds[f].toRange()}
			winners[f] = true
		}
		node = IndexMerge{Op: MergeAnd, Branches: branches}

	case len(bounds) == 1:
		var field string
		for f := range bounds {
			field = f
		}
		node = IndexScan{Field: field, Range: bounds[field].toRange()}
		winners = map[string]bool{field: true}

	default:
		node = Scan{}
		docs = true
	}

	var residualClauses []expr.Node
	for _, it := range items {
		if it.field == "" || !winners[it.field] {
			residualClauses = append(residualClauses, it.node)
		}
	}
	residual := residualNode(residualClauses)

	coveredField := ""
	if scan, ok := node.(IndexScan); ok && residual == nil && isSubsetOfSingle(opts.Columns, scan.Field) {
		scan.Covered = true
		node = scan
		coveredField = scan.Field
	}

	return access{node: node, docs: docs, residual: residual, coveredField: coveredField}
}

// chooseOrAccess builds an IndexMerge(Or) only when every branch is a
// single Eq/Cmp predicate on an indexed field; any nested And/Or, any
// non-indexed branch, or too many branches aborts index-merge planning
// per the spec's "a mix of indexed and non-indexed branches aborts
// index-merge planning" rule.
func chooseOrAccess(byField map[string]*catalog.IndexConfig, or *expr.Or) (access, bool) {
	if len(or.Clauses) == 0 || len(or.Clauses) > maxOrMergeBranches {
		return access{}, false
	}
	branches := make([]Node, 0, len(or.Clauses))
	for _, cl := range or.Clauses {
		switch p := cl.(type) {
		case *expr.Eq:
			if _, ok := byField[p.Field]; !ok {
				return access{}, false
			}
			v, err := bsonvalue.FromRawValue(p.Value)
			if err != nil {
				return access{}, false
			}
			branches = append(branches, IndexScan{Field: p.Field, Range: engine.Range{Kind: engine.RangeEq, Eq: v}})
		case *expr.Cmp:
			if _, ok := byField[p.Field]; !ok {
				return access{}, false
			}
			v, err := bsonvalue.FromRawValue(p.Value)
			if err != nil {
				return access{}, false
			}
			b := &fieldBound{}
			switch p.Op {
			case expr.OpGt:
				b.lo, b.loIncl = &v, false
			case expr.OpGte:
				b.lo, b.loIncl = &v, true
			case expr.OpLt:
				b.hi, b.hiIncl = &v, false
			case expr.OpLte:
				b.hi, b.hiIncl = &v, true
			}
			branches = append(branches, IndexScan{Field: p.Field, Range: b.toRange()})
		default:
			return access{}, false
		}
	}
	return access{node: IndexMerge{Op: MergeOr, Branches: branches}}, true
}

// classifyConjuncts folds each conjunct into bounds when it is an Eq or
// Cmp against an indexed field (or an Eq against the primary key, which
// has no secondary index of its own but is always a valid point lookup).
// Conjuncts that don't resolve to an indexed bound keep field == "".
func classifyConjuncts(conjuncts []expr.Node, byField map[string]*catalog.IndexConfig, pkField string) ([]classified, map[string]*fieldBound) {
	bounds := map[string]*fieldBound{}
	out := make([]classified, len(conjuncts))
	for i, c := range conjuncts {
		out[i] = classified{node: c}
		switch p := c.(type) {
		case *expr.Eq:
			if p.Field == pkField {
				if v, err := bsonvalue.FromRawValue(p.Value); err == nil {
					boundFor(bounds, pkField).eq = &v
					out[i].field = pkField
				}
				continue
			}
			if _, ok := byField[p.Field]; !ok {
				continue
			}
			v, err := bsonvalue.FromRawValue(p.Value)
			if err != nil {
				continue
			}
			boundFor(bounds, p.Field).eq = &v
			out[i].field = p.Field
		case *expr.Cmp:
			if _, ok := byField[p.Field]; !ok {
				continue
			}
			v, err := bsonvalue.FromRawValue(p.Value)
			if err != nil {
				continue
			}
			b := boundFor(bounds, p.Field)
			switch p.Op {
			case expr.OpGt:
				b.lo, b.loIncl = &v, false
			case expr.OpGte:
				b.lo, b.loIncl = &v, true
			case expr.OpLt:
				b.hi, b.hiIncl = &v, false
			case expr.OpLte:
				b.hi, b.hiIncl = &v, true
			}
			out[i].field = p.Field
		}
	}
	return out, bounds
}

func boundFor(bounds map[string]*fieldBound, field string) *fieldBound {
	b, ok := bounds[field]
	if !ok {
		b = &fieldBound{}
		bounds[field] = b
	}
	return b
}

func seqOf(byField map[string]*catalog.IndexConfig, field string) int {
	if idx, ok := byField[field]; ok {
		return idx.Seq
	}
	return -1
}

func splitConjuncts(n expr.Node) []expr.Node {
	if and, ok := n.(*expr.And); ok {
		return and.Clauses
	}
	return []expr.Node{n}
}

func residualNode(clauses []expr.Node) expr.Node {
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return &expr.And{Clauses: clauses}
	}
}

func isSubsetOfSingle(columns []string, field string) bool {
	if len(columns) == 0 {
		return false
	}
	for _, c := range columns {
		if c != field {
			return false
		}
	}
	return true
}

// validateFilter rejects an explicit empty $and anywhere in the tree.
// It does not reject an empty Or (that legitimately matches nothing),
// and it does not reject a nil filter (no filter at all).
func validateFilter(n expr.Node) error {
	switch v := n.(type) {
	case *expr.And:
		if v.Clauses != nil && len(v.Clauses) == 0 {
			return ErrEmptyAnd
		}
		for _, c := range v.Clauses {
			if err := validateFilter(c); err != nil {
				return err
			}
		}
	case *expr.Or:
		for _, c := range v.Clauses {
			if err := validateFilter(c); err != nil {
				return err
			}
		}
	}
	return nil
}
