package executor

import (
	"iter"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncore"

	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/mutation"
)

// Delete consumes a read pipeline of matched documents and removes each
// one by its primary key, yielding a RowStatus per document. A document
// whose record has already been removed (a race with another writer in
// the same transaction is not possible, but a plan built from a stale
// read is) yields Modified=false rather than an error.
func Delete(t *engine.Txn, h *engine.Handle, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			pk, perr := t.ExtractPK(h, row.Doc)
			if perr != nil {
				if !yield(Row{}, perr) {
					return
				}
				continue
			}
			deleted, derr := t.Delete(h, pk)
			if derr != nil {
				if !yield(Row{}, derr) {
					return
				}
				continue
			}
			status := Row{Kind: RowStatus, Status: Status{DocID: pk, Matched: true, Modified: deleted}}
			if !yield(status, nil) {
				return
			}
		}
	}
}

// Update applies spec to each matched document and writes it back if
// anything actually changed. Put re-derives the index entries from the
// new document in the same store transaction as the write, so a changed
// indexed field is kept consistent without any extra bookkeeping here.
func Update(t *engine.Txn, h *engine.Handle, spec *mutation.Spec, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			pk, perr := t.ExtractPK(h, row.Doc)
			if perr != nil {
				if !yield(Row{}, perr) {
					return
				}
				continue
			}
			newDoc, modified, aerr := mutation.Apply(row.Doc, spec)
			if aerr != nil {
				if !yield(Row{}, aerr) {
					return
				}
				continue
			}
			if modified {
				if err := t.Put(h, newDoc); err != nil {
					if !yield(Row{}, err) {
						return
					}
					continue
				}
			}
			status := Row{Kind: RowStatus, Doc: newDoc, Status: Status{DocID: pk, Matched: true, Modified: modified}}
			if !yield(status, nil) {
				return
			}
		}
	}
}

// Replace overwrites each matched document wholesale with doc, carrying
// forward the original's primary-key value so the replacement can't
// silently migrate a record to a different key.
func Replace(t *engine.Txn, h *engine.Handle, doc bson.Raw, input iter.Seq2[Row, error]) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for row, err := range input {
			if err != nil {
				yield(Row{}, err)
				return
			}
			pk, perr := t.ExtractPK(h, row.Doc)
			if perr != nil {
				if !yield(Row{}, perr) {
					return
				}
				continue
			}
			withID, werr := withPK(h, doc, pk)
			if werr != nil {
				if !yield(Row{}, werr) {
					return
				}
				continue
			}
			if err := t.Put(h, withID); err != nil {
				if !yield(Row{}, err) {
					return
				}
				continue
			}
			status := Row{Kind: RowStatus, Doc: withID, Status: Status{DocID: pk, Matched: true, Modified: true}}
			if !yield(status, nil) {
				return
			}
		}
	}
}

// withPK rebuilds doc with h.PKPath forced to pk's original value. Only
// a top-level (non-dotted) PK path is handled directly here; a dotted
// PK path is the rare case (collections almost universally key on a
// top-level "_id"-like field), and falls back to appending pk as a new
// top-level element under its last path segment rather than attempting
// a nested rebuild.
func withPK(h *engine.Handle, doc bson.Raw, pk bsonvalue.Value) (bson.Raw, error) {
	pkRaw, err := pk.ToRawValue()
	if err != nil {
		return nil, err
	}
	pkKey := h.PKPath
	if i := strings.IndexByte(pkKey, '.'); i >= 0 {
		pkKey = pkKey[strings.LastIndexByte(pkKey, '.')+1:]
	}

	elems, err := doc.Elements()
	if err != nil {
		return nil, err
	}
	idx, buf := bsoncore.AppendDocumentStart(nil)
	replaced := false
	for _, elem := range elems {
		key, kerr := elem.KeyErr()
		if kerr != nil {
			return nil, kerr
		}
		if key == pkKey {
			buf = bsoncore.AppendValueElement(buf, key, bsoncore.Value{Type: pkRaw.Type, Data: pkRaw.Value})
			replaced = true
			continue
		}
		val, verr := elem.ValueErr()
		if verr != nil {
			return nil, verr
		}
		buf = bsoncore.AppendValueElement(buf, key, bsoncore.Value{Type: val.Type, Data: val.Value})
	}
	if !replaced {
		buf = bsoncore.AppendValueElement(buf, pkKey, bsoncore.Value{Type: pkRaw.Type, Data: pkRaw.Value})
	}
	buf, _ = bsoncore.AppendDocumentEnd(buf, idx)
	return bson.Raw(buf), nil
}
