package slate

import (
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncore"

	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/executor"
	"github.com/jpl-au/slate/expr"
	"github.com/jpl-au/slate/mutation"
	"github.com/jpl-au/slate/planner"
)

// Status reports the outcome of one write applied to one document.
type Status = executor.Status

func collectStatuses(rows iter.Seq2[executor.Row, error]) ([]Status, error) {
	var out []Status
	for row, err := range rows {
		if err != nil {
			return out, err
		}
		out = append(out, row.Status)
	}
	return out, nil
}

// InsertOne writes doc as a new record, failing with
// engine.ErrDuplicateKey if its primary key is already live.
func (t *Txn) InsertOne(collection string, doc bson.Raw) (Status, error) {
	statuses, err := t.InsertMany(collection, []bson.Raw{doc})
	return first(statuses), err
}

// InsertMany is InsertOne over a batch, yielding one Status per document
// in order; a failure partway through still reports the statuses already
// applied alongside the error.
func (t *Txn) InsertMany(collection string, docs []bson.Raw) ([]Status, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return nil, err
	}
	return collectStatuses(executor.Insert(t.engine, h, docs, true))
}

func first(statuses []Status) Status {
	if len(statuses) == 0 {
		return Status{}
	}
	return statuses[0]
}

func (t *Txn) buildFilterNode(h *engine.Handle, collection string, filter bson.Raw, take int) (planner.Node, error) {
	pred, err := t.parseFilter(filter)
	if err != nil {
		return nil, err
	}
	indexes, err := catalog.ListIndexes(t.store, collection)
	if err != nil {
		return nil, err
	}
	return planner.Build(h, indexes, planner.Options{Filter: pred, Take: take})
}

// UpdateOne applies spec to the first live document matching filter and
// writes it back if anything changed. When upsert is true and nothing
// matched, filter's own equality clauses (a bare field or an And of
// them; any other shape of filter is rejected with
// ErrUpsertFilterNotEquality) seed a new document that spec is then
// applied to and inserted.
func (t *Txn) UpdateOne(collection string, filter, mutationDoc bson.Raw, upsert bool) (Status, error) {
	statuses, err := t.updateMatching(collection, filter, mutationDoc, 1, upsert)
	return first(statuses), err
}

// UpdateMany is UpdateOne without upsert, applied to every matching
// document.
func (t *Txn) UpdateMany(collection string, filter, mutationDoc bson.Raw) ([]Status, error) {
	return t.updateMatching(collection, filter, mutationDoc, 0, false)
}

func (t *Txn) updateMatching(collection string, filter, mutationDoc bson.Raw, take int, upsert bool) ([]Status, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return nil, err
	}
	spec, err := mutation.Parse(mutationDoc)
	if err != nil {
		return nil, err
	}
	node, err := t.buildFilterNode(h, collection, filter, take)
	if err != nil {
		return nil, err
	}
	statuses, err := collectStatuses(executor.Update(t.engine, h, spec, executor.Run(t.engine, h, node)))
	if err != nil {
		return statuses, err
	}
	if len(statuses) > 0 || !upsert {
		return statuses, nil
	}

	seed, err := upsertSeed(filter, spec)
	if err != nil {
		return nil, err
	}
	if err := t.engine.Put(h, seed); err != nil {
		return nil, err
	}
	pk, err := t.engine.ExtractPK(h, seed)
	if err != nil {
		return nil, err
	}
	return []Status{{DocID: pk, Inserted: true, Modified: true}}, nil
}

// ReplaceOne overwrites the first live document matching filter with
// doc, carrying forward the original's primary-key value.
func (t *Txn) ReplaceOne(collection string, filter, doc bson.Raw) (Status, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return Status{}, err
	}
	node, err := t.buildFilterNode(h, collection, filter, 1)
	if err != nil {
		return Status{}, err
	}
	statuses, err := collectStatuses(executor.Replace(t.engine, h, doc, executor.Run(t.engine, h, node)))
	return first(statuses), err
}

// DeleteOne removes the first live document matching filter.
func (t *Txn) DeleteOne(collection string, filter bson.Raw) (Status, error) {
	statuses, err := t.deleteMatching(collection, filter, 1)
	return first(statuses), err
}

// DeleteMany removes every live document matching filter.
func (t *Txn) DeleteMany(collection string, filter bson.Raw) ([]Status, error) {
	return t.deleteMatching(collection, filter, 0)
}

func (t *Txn) deleteMatching(collection string, filter bson.Raw, take int) ([]Status, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return nil, err
	}
	node, err := t.buildFilterNode(h, collection, filter, take)
	if err != nil {
		return nil, err
	}
	return collectStatuses(executor.Delete(t.engine, h, executor.Run(t.engine, h, node)))
}

// UpsertMany writes each document by primary key: insert if absent,
// replace the live record wholesale otherwise.
func (t *Txn) UpsertMany(collection string, docs []bson.Raw) ([]Status, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return nil, err
	}
	return collectStatuses(executor.Upsert(t.engine, h, executor.UpsertReplace, docs))
}

// MergeMany writes each document by primary key: insert if absent,
// otherwise apply the document's own fields as an implicit $set patch
// against the live record, leaving fields it doesn't mention untouched.
func (t *Txn) MergeMany(collection string, docs []bson.Raw) ([]Status, error) {
	h, err := t.engine.Resolve(collection)
	if err != nil {
		return nil, err
	}
	return collectStatuses(executor.Merge(t.engine, h, docs))
}

// upsertSeed derives a base document from filter's equality clauses and
// applies spec to it, the starting point UpdateOne's upsert path writes
// when no document matched.
func upsertSeed(filter bson.Raw, spec *mutation.Spec) (bson.Raw, error) {
	eqs, err := equalitiesFromFilter(filter)
	if err != nil {
		return nil, err
	}
	base := docFromEqualities(eqs)
	merged, _, err := mutation.Apply(base, spec)
	return merged, err
}

func equalitiesFromFilter(filter bson.Raw) (map[string]bson.RawValue, error) {
	out := map[string]bson.RawValue{}
	if len(filter) == 0 {
		return out, nil
	}
	node, err := expr.Parse(filter)
	if err != nil {
		return nil, err
	}
	if err := collectEqualities(node, out); err != nil {
		return nil, err
	}
	return out, nil
}

func collectEqualities(n expr.Node, out map[string]bson.RawValue) error {
	switch v := n.(type) {
	case nil:
		return nil
	case *expr.And:
		for _, c := range v.Clauses {
			if err := collectEqualities(c, out); err != nil {
				return err
			}
		}
		return nil
	case *expr.Eq:
		out[v.Field] = v.Value
		return nil
	default:
		return ErrUpsertFilterNotEquality
	}
}

func docFromEqualities(eqs map[string]bson.RawValue) bson.Raw {
	idx, buf := bsoncore.AppendDocumentStart(nil)
	for field, v := range eqs {
		buf = bsoncore.AppendValueElement(buf, field, bsoncore.Value{Type: v.Type, Data: v.Value})
	}
	buf, _ = bsoncore.AppendDocumentEnd(buf, idx)
	return bson.Raw(buf)
}
