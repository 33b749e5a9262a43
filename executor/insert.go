package executor

import (
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncore"

	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/mutation"
)

// Insert writes each document as a new record, yielding a RowStatus per
// document. When nx is true a document whose primary key already holds
// a live record fails with engine.ErrDuplicateKey instead of replacing
// it, matching insert_one/insert_many's no-clobber guarantee; a plain
// (non-nx) insert behaves like Replace for an existing key.
//
// This collapses the plan-level InsertRecord/InsertIndex pair into one
// call: engine.Txn.Put/PutNX already reads the old record, diffs its
// index entries against the new document and applies the deletes, puts
// and record write in one store transaction (see engine/crud.go's put),
// so splitting record and index writes back into two executor stages
// would only reintroduce a window the engine exists to close.
func Insert(t *engine.Txn, h *engine.Handle, docs []bson.Raw, nx bool) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, doc := range docs {
			var err error
			if nx {
				err = t.PutNX(h, doc)
			} else {
				err = t.Put(h, doc)
			}
			if err != nil {
				if !yield(Row{}, err) {
					return
				}
				continue
			}
			pk, _ := t.ExtractPK(h, doc)
			status := Row{Kind: RowStatus, Doc: doc, Status: Status{DocID: pk, Inserted: true, Modified: true}}
			if !yield(status, nil) {
				return
			}
		}
	}
}

// UpsertMode selects how Upsert treats a document whose primary key
// already has a live record.
type UpsertMode int

const (
	// UpsertReplace overwrites the existing record wholesale.
	UpsertReplace UpsertMode = iota
	// UpsertMerge applies the document's own fields as an implicit $set
	// patch against the existing record, leaving fields it doesn't
	// mention untouched.
	UpsertMerge
)

// Upsert writes each document by primary key: insert if absent, or
// replace/merge the live record per mode otherwise. This is the engine
// behind both upsert_many (UpsertReplace) and the supplemented
// merge_many operation (UpsertMerge); no separate "fields" parameter is
// needed since the document itself supplies both the key and the patch.
func Upsert(t *engine.Txn, h *engine.Handle, mode UpsertMode, docs []bson.Raw) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, doc := range docs {
			pk, perr := t.ExtractPK(h, doc)
			if perr != nil {
				if !yield(Row{}, perr) {
					return
				}
				continue
			}
			existing, gerr := t.Get(h, pk)
			exists := gerr == nil
			if gerr != nil && gerr != engine.ErrNotFound {
				if !yield(Row{}, gerr) {
					return
				}
				continue
			}

			var final bson.Raw
			inserted := false
			modified := false
			switch {
			case !exists:
				final = doc
				inserted = true
				modified = true
			case mode == UpsertReplace:
				final = doc
				modified = true
			default:
				spec, serr := docAsMutationSpec(h, doc)
				if serr != nil {
					if !yield(Row{}, serr) {
						return
					}
					continue
				}
				merged, changed, aerr := mutation.Apply(existing, spec)
				if aerr != nil {
					if !yield(Row{}, aerr) {
						return
					}
					continue
				}
				final = merged
				modified = changed
			}

			if modified {
				if err := t.Put(h, final); err != nil {
					if !yield(Row{}, err) {
						return
					}
					continue
				}
			}
			status := Row{Kind: RowStatus, Doc: final, Status: Status{DocID: pk, Matched: exists, Modified: modified, Inserted: inserted}}
			if !yield(status, nil) {
				return
			}
		}
	}
}

// Merge is Upsert with UpsertMerge fixed, the executor half of the
// supplemented merge_many façade operation.
func Merge(t *engine.Txn, h *engine.Handle, docs []bson.Raw) iter.Seq2[Row, error] {
	return Upsert(t, h, UpsertMerge, docs)
}

// docAsMutationSpec treats doc's own fields as an implicit $set patch,
// the same bare-field convention mutation.Parse already gives top-level
// keys. The primary-key field is stripped first: mutation.Parse rejects
// any path touching "_id" (or whatever the collection's PK path is
// named), since a patch is never allowed to move a document's key, but
// every candidate document naturally carries its own PK value.
func docAsMutationSpec(h *engine.Handle, doc bson.Raw) (*mutation.Spec, error) {
	elems, err := doc.Elements()
	if err != nil {
		return nil, err
	}
	idx, buf := bsoncore.AppendDocumentStart(nil)
	for _, elem := range elems {
		key, kerr := elem.KeyErr()
		if kerr != nil {
			return nil, kerr
		}
		if key == h.PKPath {
			continue
		}
		val, verr := elem.ValueErr()
		if verr != nil {
			return nil, verr
		}
		buf = bsoncore.AppendValueElement(buf, key, bsoncore.Value{Type: val.Type, Data: val.Value})
	}
	buf, _ = bsoncore.AppendDocumentEnd(buf, idx)
	return mutation.Parse(bson.Raw(buf))
}
