package engine

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/indexsync"
	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/internal/keys"
	"github.com/jpl-au/slate/internal/record"
	"github.com/jpl-au/slate/store"
)

// ExtractPK reads the primary-key value out of doc at h.PKPath and
// converts it to its sortable form. Returns ErrMissingPK if the path is
// absent, ErrUnsupportedPKType if present but not one of the supported
// leaf types.
func (t *Txn) ExtractPK(h *Handle, doc bson.Raw) (bsonvalue.Value, error) {
	rv, err := doc.LookupErr(splitPath(h.PKPath)...)
	if err != nil {
		return bsonvalue.Value{}, ErrMissingPK
	}
	v, err := bsonvalue.FromRawValue(rv)
	if err != nil {
		return bsonvalue.Value{}, ErrUnsupportedPKType
	}
	return v, nil
}

// extractTTL reads the TTL value out of doc at h.TTLPath, if present.
// UTC datetime and 32/64-bit integer values are accepted as millisecond
// timestamps; any other shape (or absence of the field) yields no TTL
// rather than an error, since a document with no TTL is the common case.
func extractTTL(h *Handle, doc bson.Raw) *int64 {
	rv, err := doc.LookupErr(splitPath(h.TTLPath)...)
	if err != nil {
		return nil
	}
	switch rv.Type {
	case bsontype.DateTime:
		v := rv.DateTime()
		return &v
	case bsontype.Int64:
		v := rv.Int64()
		return &v
	case bsontype.Int32:
		v := int64(rv.Int32())
		return &v
	default:
		return nil
	}
}

func splitPath(path string) []string {
	out := []string{}
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	return append(out, path[start:])
}

// Get looks up a live record by primary key. Returns ErrNotFound if
// absent or expired at the transaction's clock.
func (t *Txn) Get(h *Handle, docID bsonvalue.Value) (bson.Raw, error) {
	raw, ok, err := t.store.Get(h.CF, keys.Record(h.Name, docID))
	if err != nil {
		return nil, store.NewStorageError("engine.get", err)
	}
	if !ok || record.IsExpired(raw, t.now) {
		return nil, ErrNotFound
	}
	doc, _, err := record.Decode(raw)
	if err != nil {
		return nil, record.ErrMalformed
	}
	return doc, nil
}

// Put inserts or replaces the document's record and brings its index
// entries up to date, all within the enclosing store transaction: the
// new PK and TTL are extracted, the old live record (if any) is read,
// indexsync computes the diff over the collection's indexed fields, and
// the deletes, puts and final record write are applied in that order.
func (t *Txn) Put(h *Handle, doc bson.Raw) error {
	if err := doc.Validate(); err != nil {
		return ErrInvalidDocument
	}
	pk, err := t.ExtractPK(h, doc)
	if err != nil {
		return err
	}
	return t.put(h, pk, doc, false)
}

// PutNX is Put, but fails with ErrDuplicateKey if a live record already
// occupies the primary key instead of replacing it.
func (t *Txn) PutNX(h *Handle, doc bson.Raw) error {
	if err := doc.Validate(); err != nil {
		return ErrInvalidDocument
	}
	pk, err := t.ExtractPK(h, doc)
	if err != nil {
		return err
	}
	return t.put(h, pk, doc, true)
}

func (t *Txn) put(h *Handle, pk bsonvalue.Value, doc bson.Raw, failOnExisting bool) error {
	recordKey := keys.Record(h.Name, pk)
	ttl := extractTTL(h, doc)

	var oldDoc bson.Raw
	var oldTTL *int64
	oldRaw, ok, err := t.store.Get(h.CF, recordKey)
	if err != nil {
		return store.NewStorageError("engine.put", err)
	}
	live := ok && !record.IsExpired(oldRaw, t.now)
	if live {
		if failOnExisting {
			return ErrDuplicateKey
		}
		oldDoc, oldTTL, err = record.Decode(oldRaw)
		if err != nil {
			return record.ErrMalformed
		}
	}

	indexes, err := catalog.ListIndexes(t.store, h.Name)
	if err != nil {
		return err
	}
	fields := indexedFields(h, indexes)

	puts, deletes, err := indexsync.Diff(h.Name, fields, pk, oldDoc, oldTTL, doc, ttl)
	if err != nil {
		return err
	}
	if err := t.store.DeleteBatch(h.CF, deletes); err != nil {
		return store.NewStorageError("engine.put", err)
	}
	if err := t.store.PutBatch(h.CF, puts); err != nil {
		return store.NewStorageError("engine.put", err)
	}
	if err := t.store.Put(h.CF, recordKey, record.Encode(doc, ttl)); err != nil {
		return store.NewStorageError("engine.put", err)
	}
	return nil
}

// Delete removes a record and its index entries. Reports whether a live
// record was actually present; deleting an absent or already-expired key
// is a no-op, not an error.
func (t *Txn) Delete(h *Handle, docID bsonvalue.Value) (bool, error) {
	recordKey := keys.Record(h.Name, docID)
	oldRaw, ok, err := t.store.Get(h.CF, recordKey)
	if err != nil {
		return false, store.NewStorageError("engine.delete", err)
	}
	if !ok || record.IsExpired(oldRaw, t.now) {
		return false, nil
	}
	oldDoc, oldTTL, err := record.Decode(oldRaw)
	if err != nil {
		return false, record.ErrMalformed
	}

	indexes, err := catalog.ListIndexes(t.store, h.Name)
	if err != nil {
		return false, err
	}
	fields := indexedFields(h, indexes)

	_, deletes, err := indexsync.Diff(h.Name, fields, docID, oldDoc, oldTTL, nil, nil)
	if err != nil {
		return false, err
	}
	if err := t.store.DeleteBatch(h.CF, deletes); err != nil {
		return false, store.NewStorageError("engine.delete", err)
	}
	if err := t.store.Delete(h.CF, recordKey); err != nil {
		return false, store.NewStorageError("engine.delete", err)
	}
	return true, nil
}
