package executor

import (
	"iter"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncore"

	"github.com/jpl-au/slate/expr"
	"github.com/jpl-au/slate/planner"
)

func runFilter(pred expr.Node, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			ok, perr := pred.Eval(row.Doc)
			if perr != nil {
				if !yield(Row{}, perr) {
					return
				}
				continue
			}
			if !ok {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// runSort materializes the input and orders it by keys in sequence,
// first key decides unless tied. A field absent from a document sorts
// before every present value, regardless of sort direction, since there
// is no natural "greater or lesser than absent".
func runSort(keys []planner.SortKey, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		var rows []Row
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			rows = append(rows, row)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			for _, k := range keys {
				vi, oki := firstValue(rows[i].Doc, k.Field)
				vj, okj := firstValue(rows[j].Doc, k.Field)
				switch {
				case !oki && !okj:
					continue
				case !oki:
					return true
				case !okj:
					return false
				}
				c, ok := expr.Compare(vi, vj)
				if !ok || c == 0 {
					continue
				}
				if k.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func firstValue(doc bson.Raw, field string) (bson.RawValue, bool) {
	values := expr.ExtractField(doc, field)
	if len(values) == 0 {
		return bson.RawValue{}, false
	}
	return values[0], true
}

func runLimit(skip, take int, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		skipped := 0
		yielded := 0
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			if skipped < skip {
				skipped++
				continue
			}
			if take > 0 && yielded >= take {
				return
			}
			yielded++
			if !yield(row, nil) {
				return
			}
		}
	}
}

// runProjection rebuilds each document down to the given columns. A
// RowValue input (the covered-scan case, where the planner guarantees
// exactly one column) builds the single-field document directly from
// the carried value, skipping document reconstruction entirely; a
// RowDoc input walks each dotted column path and rebuilds a nested
// document holding just those fields, mirroring the mutation package's
// patch-tree rebuild over bsoncore's document builder.
func runProjection(columns []string, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			if row.Kind == RowValue {
				root := newProjNode()
				setProjPath(root, columns[0], row.Value)
				doc := renderProjNode(root)
				if !yield(Row{Kind: RowDoc, Doc: doc, DocID: row.DocID}, nil) {
					return
				}
				continue
			}
			root := newProjNode()
			for _, col := range columns {
				values := expr.ExtractField(row.Doc, col)
				if len(values) == 0 {
					continue
				}
				setProjPath(root, col, values[0])
			}
			doc := renderProjNode(root)
			if !yield(Row{Kind: RowDoc, Doc: doc, DocID: row.DocID}, nil) {
				return
			}
		}
	}
}

type projNode struct {
	value    bson.RawValue
	hasValue bool
	children map[string]*projNode
}

func newProjNode() *projNode { return &projNode{children: map[string]*projNode{}} }

func setProjPath(root *projNode, path string, rv bson.RawValue) {
	segs := strings.Split(path, ".")
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := cur.children[seg]
		if !ok {
			child = newProjNode()
			cur.children[seg] = child
		}
		cur = child
	}
	leaf := segs[len(segs)-1]
	child, ok := cur.children[leaf]
	if !ok {
		child = newProjNode()
		cur.children[leaf] = child
	}
	child.value = rv
	child.hasValue = true
}

func renderProjNode(node *projNode) bson.Raw {
	idx, buf := bsoncore.AppendDocumentStart(nil)
	names := make([]string, 0, len(node.children))
	for k := range node.children {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		child := node.children[k]
		if len(child.children) == 0 {
			buf = bsoncore.AppendValueElement(buf, k, bsoncore.Value{Type: child.value.Type, Data: child.value.Value})
			continue
		}
		sub := renderProjNode(child)
		buf = bsoncore.AppendDocumentElement(buf, k, bsoncore.Document(sub))
	}
	buf, _ = bsoncore.AppendDocumentEnd(buf, idx)
	return bson.Raw(buf)
}

// runDistinct extracts field's value(s) from every row and yields each
// distinct one once, in first-seen order. A RowValue input (the covered
// Distinct case) carries its single already-extracted value directly;
// a RowDoc input expands arrays the same way a filter match would.
func runDistinct(field string, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		seen := newValueSet()
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			var values []bson.RawValue
			if row.Kind == RowValue {
				values = []bson.RawValue{row.Value}
			} else {
				values = expr.ExtractField(row.Doc, field)
			}
			for _, v := range values {
				if seen.add(rawKey(v)) {
					continue
				}
				if !yield(Row{Kind: RowValue, Value: v}, nil) {
					return
				}
			}
		}
	}
}
