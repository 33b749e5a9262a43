package slate

import (
	"iter"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/executor"
	"github.com/jpl-au/slate/expr"
	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/planner"
)

// SortKey orders Find results by Field, ascending unless Desc is set.
type SortKey = planner.SortKey

// FindOptions shapes a Find call: Sort applies in sequence (first key
// decides unless tied), Skip/Take paginate after sorting, and Columns
// projects the result down to just those fields (a dotted path nests).
// The zero value matches every live document, unsorted, unprojected.
type FindOptions struct {
	Sort    []SortKey
	Skip    int
	Take    int
	Columns []string
}

func (t *Txn) parseFilter(filter bson.Raw) (expr.Node, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	return expr.Parse(filter)
}

// Find streams every live document in collection matching filter (a nil
// or empty filter matches everything), choosing an index access path
// over a full scan wherever a declared secondary index (or the primary
// key) covers it.
func (t *Txn) Find(collection string, filter bson.Raw, opts FindOptions) (iter.Seq2[bson.Raw, error], error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return nil, err
	}
	pred, err := t.parseFilter(filter)
	if err != nil {
		return nil, err
	}
	indexes, err := catalog.ListIndexes(t.store, collection)
	if err != nil {
		return nil, err
	}
	node, err := planner.Build(h, indexes, planner.Options{
		Filter: pred, Sorts: opts.Sort, Skip: opts.Skip, Take: opts.Take, Columns: opts.Columns,
	})
	if err != nil {
		return nil, err
	}
	return docsOf(executor.Run(t.engine, h, node)), nil
}

func docsOf(rows iter.Seq2[executor.Row, error]) iter.Seq2[bson.Raw, error] {
	return func(yield func(bson.Raw, error) bool) {
		for row, err := range rows {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row.Doc, nil) {
				return
			}
		}
	}
}

// FindOne returns the first document matching filter, or ok=false if
// none does.
func (t *Txn) FindOne(collection string, filter bson.Raw) (doc bson.Raw, ok bool, err error) {
	seq, err := t.Find(collection, filter, FindOptions{Take: 1})
	if err != nil {
		return nil, false, err
	}
	for d, ferr := range seq {
		if ferr != nil {
			return nil, false, ferr
		}
		return d, true, nil
	}
	return nil, false, nil
}

// FindByID looks up a single document by its primary-key value,
// returning engine.ErrNotFound if absent or expired.
func (t *Txn) FindByID(collection string, id bson.RawValue) (bson.Raw, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return nil, err
	}
	pk, err := bsonvalue.FromRawValue(id)
	if err != nil {
		return nil, err
	}
	return t.engine.Get(h, pk)
}

// Count reports how many live documents in collection match filter.
func (t *Txn) Count(collection string, filter bson.Raw) (int, error) {
	seq, err := t.Find(collection, filter, FindOptions{})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ferr := range seq {
		if ferr != nil {
			return n, ferr
		}
		n++
	}
	return n, nil
}

// Distinct returns every unique value of field across documents matching
// filter (a nil filter matches everything), in first-seen order. A
// filter-less distinct on an indexed field is covered: it reads the
// index directly, skipping every record read.
func (t *Txn) Distinct(collection, field string, filter bson.Raw) ([]bson.RawValue, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return nil, err
	}
	pred, err := t.parseFilter(filter)
	if err != nil {
		return nil, err
	}
	indexes, err := catalog.ListIndexes(t.store, collection)
	if err != nil {
		return nil, err
	}
	node, err := planner.PlanDistinct(h, indexes, field, pred)
	if err != nil {
		return nil, err
	}
	var out []bson.RawValue
	for row, rerr := range executor.Run(t.engine, h, node) {
		if rerr != nil {
			return nil, rerr
		}
		out = append(out, row.Value)
	}
	return out, nil
}
