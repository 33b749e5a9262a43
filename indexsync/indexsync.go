// Package indexsync implements the pure index-entry diff algorithm: given
// a document's old and new state, compute exactly the (puts, deletes)
// needed to bring its index entries up to date. It touches no store — it
// is a function of bytes in, bytes out — which keeps the write path's
// ordering simple (diff, then delete, then put, then write the record)
// and makes the algorithm trivially unit-testable.
package indexsync

import (
	"bytes"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/internal/keys"
	"github.com/jpl-au/slate/internal/record"
	"github.com/jpl-au/slate/store"
)

// Diff computes the index-entry changes needed when a document addressed
// by docID transitions from (oldDoc, oldTTL) to (newDoc, newTTL) for the
// given set of indexed field paths. Pass a nil newDoc to compute a
// delete-only diff (the document is being removed). Pass a nil oldDoc
// when there is no prior record (the document is being inserted).
func Diff(collection string, fields []string, docID bsonvalue.Value, oldDoc bson.Raw, oldTTL *int64, newDoc bson.Raw, newTTL *int64) (puts []store.KV, deletes [][]byte, err error) {
	if len(fields) == 0 {
		return nil, nil, nil
	}
	tree := bsonvalue.BuildTree(fields)

	newEntries, err := extract(tree, collection, docID, newDoc, newTTL)
	if err != nil {
		return nil, nil, err
	}
	oldEntries, err := extract(tree, collection, docID, oldDoc, oldTTL)
	if err != nil {
		return nil, nil, err
	}

	for key, newMeta := range newEntries {
		oldMeta, existed := oldEntries[key]
		if existed {
			delete(oldEntries, key)
			if bytes.Equal(oldMeta, newMeta) {
				continue // untouched
			}
			deletes = append(deletes, []byte(key))
		}
		puts = append(puts, store.KV{Key: []byte(key), Value: newMeta})
	}
	for key := range oldEntries {
		deletes = append(deletes, []byte(key))
	}
	return puts, deletes, nil
}

// entries maps an encoded index key to its metadata bytes.
func extract(tree *bsonvalue.Tree, collection string, docID bsonvalue.Value, doc bson.Raw, ttl *int64) (map[string][]byte, error) {
	entries := make(map[string][]byte)
	if doc == nil {
		return entries, nil
	}
	var walkErr error
	err := bsonvalue.Walk(tree, doc, func(field string, rv bson.RawValue) {
		v, err := bsonvalue.FromRawValue(rv)
		if err != nil {
			return // unsupported type: not indexable, silently skipped
		}
		key := keys.Index(collection, field, v.Data, docID)
		meta := record.EncodeIndexMeta(v.Tag, ttl)
		entries[string(key)] = meta
	})
	if err != nil {
		return nil, err
	}
	return entries, walkErr
}
