// Package catalog persists collection and secondary-index metadata in the
// store's system partition, and performs index backfill: the one
// operation in the engine that needs both the catalog's bookkeeping and
// the field walker / index codec together, since a create_index call must
// synchronously populate entries for every existing record.
package catalog

import (
	"errors"
	"sort"

	json "github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/internal/keys"
	"github.com/jpl-au/slate/internal/record"
	"github.com/jpl-au/slate/store"
)

// SystemCF is the partition name holding Collection and IndexConfig
// metadata, distinct from every collection's own partition.
const SystemCF = "_sys_"

const (
	// DefaultPKPath is the primary-key field path assumed when a
	// collection is created without one specified.
	DefaultPKPath = "_id"
	// DefaultTTLPath is the TTL field path assumed when a collection is
	// created without one specified.
	DefaultTTLPath = "ttl"
)

// Collection is the persisted metadata for one collection.
type Collection struct {
	Name    string `json:"name"`
	CF      string `json:"cf"`
	PKPath  string `json:"pk_path"`
	TTLPath string `json:"ttl_path"`
}

// IndexConfig is the persisted metadata for one secondary index. Seq
// records declaration order within the collection, used by the planner's
// "first declared index wins" tie-break.
type IndexConfig struct {
	Collection string `json:"collection"`
	Field      string `json:"field"`
	Seq        int    `json:"seq"`
}

// CreateCollectionOptions customizes create_collection; zero values take
// the documented defaults.
type CreateCollectionOptions struct {
	CF      string
	PKPath  string
	TTLPath string
}

func systemHandle(txn store.Txn) (store.Handle, error) {
	return txn.CF(SystemCF)
}

// CreateCollection is idempotent: creates the collection's partition and
// writes its metadata if absent; returns the existing metadata otherwise.
func CreateCollection(txn store.Txn, name string, opts CreateCollectionOptions) (*Collection, error) {
	sys, err := systemHandle(txn)
	if err != nil {
		return nil, err
	}
	key := keys.Collection(name)
	if raw, ok, err := txn.Get(sys, key); err != nil {
		return nil, store.NewStorageError("catalog.get_collection", err)
	} else if ok {
		var existing Collection
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, ErrCorruptMetadata
		}
		return &existing, nil
	}

	cf := opts.CF
	if cf == "" {
		cf = name
	}
	pk := opts.PKPath
	if pk == "" {
		pk = DefaultPKPath
	}
	ttl := opts.TTLPath
	if ttl == "" {
		ttl = DefaultTTLPath
	}

	coll := &Collection{Name: name, CF: cf, PKPath: pk, TTLPath: ttl}
	buf, err := json.Marshal(coll)
	if err != nil {
		return nil, err
	}
	if _, err := txn.CreateCF(cf); err != nil {
		return nil, err
	}
	if err := txn.Put(sys, key, buf); err != nil {
		return nil, store.NewStorageError("catalog.create_collection", err)
	}
	return coll, nil
}

// GetCollection loads a collection's metadata, or ErrCollectionNotFound.
func GetCollection(txn store.Txn, name string) (*Collection, error) {
	sys, err := systemHandle(txn)
	if err != nil {
		return nil, err
	}
	raw, ok, err := txn.Get(sys, keys.Collection(name))
	if err != nil {
		return nil, store.NewStorageError("catalog.get_collection", err)
	}
	if !ok {
		return nil, ErrCollectionNotFound
	}
	var coll Collection
	if err := json.Unmarshal(raw, &coll); err != nil {
		return nil, ErrCorruptMetadata
	}
	return &coll, nil
}

// ListCollections returns every collection's metadata.
func ListCollections(txn store.Txn) ([]*Collection, error) {
	sys, err := systemHandle(txn)
	if err != nil {
		return nil, err
	}
	var out []*Collection
	for kv, err := range txn.ScanPrefix(sys, keys.CollectionPrefix()) {
		if err != nil {
			return nil, err
		}
		var coll Collection
		if err := json.Unmarshal(kv.Value, &coll); err != nil {
			return nil, ErrCorruptMetadata
		}
		out = append(out, &coll)
	}
	return out, nil
}

// DropCollection deletes every record, every index entry, every index
// config, and the collection's own metadata. Safe to call on a collection
// that does not exist.
func DropCollection(txn store.Txn, name string) error {
	sys, err := systemHandle(txn)
	if err != nil {
		return err
	}
	coll, err := GetCollection(txn, name)
	if err != nil {
		if err == ErrCollectionNotFound {
			return nil
		}
		return err
	}

	cfh, err := txn.CF(coll.CF)
	if err != nil {
		return err
	}
	if err := deleteAllWithPrefix(txn, cfh, keys.RecordPrefix(name)); err != nil {
		return err
	}
	if err := deleteAllWithPrefix(txn, cfh, keys.IndexCollectionPrefix(name)); err != nil {
		return err
	}
	if err := txn.DropCF(coll.CF); err != nil {
		return err
	}

	if err := deleteAllWithPrefix(txn, sys, keys.IndexConfigPrefix(name)); err != nil {
		return err
	}
	return txn.Delete(sys, keys.Collection(name))
}

func deleteAllWithPrefix(txn store.Txn, h store.Handle, prefix []byte) error {
	var toDelete [][]byte
	for kv, err := range txn.ScanPrefix(h, prefix) {
		if err != nil {
			return err
		}
		toDelete = append(toDelete, kv.Key)
	}
	return txn.DeleteBatch(h, toDelete)
}

// ListIndexes returns every secondary index declared on a collection, in
// declaration order (ascending Seq).
func ListIndexes(txn store.Txn, collection string) ([]*IndexConfig, error) {
	sys, err := systemHandle(txn)
	if err != nil {
		return nil, err
	}
	var out []*IndexConfig
	for kv, err := range txn.ScanPrefix(sys, keys.IndexConfigPrefix(collection)) {
		if err != nil {
			return nil, err
		}
		var idx IndexConfig
		if err := json.Unmarshal(kv.Value, &idx); err != nil {
			return nil, ErrCorruptMetadata
		}
		out = append(out, &idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// CreateIndex writes the IndexConfig entry (if absent) and backfills
// index entries for every existing live record, all inside the caller's
// write transaction.
func CreateIndex(txn store.Txn, now int64, collection, field string) (*IndexConfig, error) {
	sys, err := systemHandle(txn)
	if err != nil {
		return nil, err
	}
	coll, err := GetCollection(txn, collection)
	if err != nil {
		return nil, err
	}

	cfgKey := keys.IndexConfig(collection, field)
	if raw, ok, err := txn.Get(sys, cfgKey); err != nil {
		return nil, store.NewStorageError("catalog.create_index", err)
	} else if ok {
		var existing IndexConfig
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, ErrCorruptMetadata
		}
		return &existing, nil
	}

	existing, err := ListIndexes(txn, collection)
	if err != nil {
		return nil, err
	}
	idx := &IndexConfig{Collection: collection, Field: field, Seq: len(existing)}

	cfh, err := txn.CF(coll.CF)
	if err != nil {
		return nil, err
	}
	if err := backfill(txn, cfh, now, coll, field); err != nil {
		return nil, err
	}

	buf, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	if err := txn.Put(sys, cfgKey, buf); err != nil {
		return nil, store.NewStorageError("catalog.create_index", err)
	}
	return idx, nil
}

func backfill(txn store.Txn, cfh store.Handle, now int64, coll *Collection, field string) error {
	tree := bsonvalue.BuildTree([]string{field})
	var puts []store.KV

	for kv, err := range txn.ScanPrefix(cfh, keys.RecordPrefix(coll.Name)) {
		if err != nil {
			return err
		}
		_, docID, err := keys.DecodeRecord(kv.Key)
		if err != nil {
			return ErrCorruptMetadata
		}
		doc, ttl, err := record.Decode(kv.Value)
		if err != nil {
			continue // corrupt record: skip, do not fail the whole backfill
		}
		if record.IsExpired(kv.Value, now) {
			continue
		}
		// An unindexable value is skipped on its own, as the write-time
		// diff does; the document's other values are still indexed.
		vals, err := extractValues(tree, doc)
		if err != nil && !errors.Is(err, bsonvalue.ErrUnsupportedType) {
			continue
		}
		for _, v := range vals {
			ik := keys.Index(coll.Name, field, v.Data, docID)
			meta := record.EncodeIndexMeta(v.Tag, ttl)
			puts = append(puts, store.KV{Key: ik, Value: meta})
		}
	}
	return txn.PutBatch(cfh, puts)
}

// ExtractValues walks doc for every path in tree and returns the sortable
// Value for each matched leaf, the same walk backfill uses. indexsync
// does its own walk for the write-time diff and does not call this.
func ExtractValues(tree *bsonvalue.Tree, doc []byte) ([]bsonvalue.Value, error) {
	return extractValues(tree, doc)
}

func extractValues(tree *bsonvalue.Tree, doc []byte) ([]bsonvalue.Value, error) {
	var vals []bsonvalue.Value
	var walkErr error
	err := bsonvalue.Walk(tree, doc, func(_ string, rv bson.RawValue) {
		v, err := bsonvalue.FromRawValue(rv)
		if err != nil {
			walkErr = err
			return
		}
		vals = append(vals, v)
	})
	if err != nil {
		return nil, err
	}
	return vals, walkErr
}

// DropIndex deletes every index entry for (collection, field) and the
// IndexConfig entry itself.
func DropIndex(txn store.Txn, collection, field string) error {
	sys, err := systemHandle(txn)
	if err != nil {
		return err
	}
	coll, err := GetCollection(txn, collection)
	if err != nil {
		return err
	}
	cfh, err := txn.CF(coll.CF)
	if err != nil {
		return err
	}
	if err := deleteAllWithPrefix(txn, cfh, keys.IndexFieldPrefix(collection, field)); err != nil {
		return err
	}
	return txn.Delete(sys, keys.IndexConfig(collection, field))
}
