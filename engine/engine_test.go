package engine

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/jpl-au/slate/store/memstore"
)

func setup(t *testing.T, opts catalog.CreateCollectionOptions) (*Txn, *Handle) {
	t.Helper()
	s := memstore.New()
	st, err := s.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := catalog.CreateCollection(st, "widgets", opts); err != nil {
		t.Fatal(err)
	}
	tx := Begin(st, 1000)
	h, err := tx.Resolve("widgets")
	if err != nil {
		t.Fatal(err)
	}
	return tx, h
}

func mustDoc(t *testing.T, v any) bson.Raw {
	t.Helper()
	buf, err := bson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bson.Raw(buf)
}

func TestPutGetDelete(t *testing.T) {
	tx, h := setup(t, catalog.CreateCollectionOptions{})
	doc := mustDoc(t, bson.M{"_id": "w1", "name": "gizmo"})
	if err := tx.Put(h, doc); err != nil {
		t.Fatal(err)
	}
	pk, err := tx.ExtractPK(h, doc)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tx.Get(h, pk)
	if err != nil {
		t.Fatal(err)
	}
	if got.Lookup("name").StringValue() != "gizmo" {
		t.Fatalf("unexpected doc: %v", got)
	}
	deleted, err := tx.Delete(h, pk)
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	if _, err := tx.Get(h, pk); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutMissingPK(t *testing.T) {
	tx, h := setup(t, catalog.CreateCollectionOptions{})
	doc := mustDoc(t, bson.M{"name": "no id"})
	if err := tx.Put(h, doc); err != ErrMissingPK {
		t.Fatalf("expected ErrMissingPK, got %v", err)
	}
}

func TestPutNXDuplicate(t *testing.T) {
	tx, h := setup(t, catalog.CreateCollectionOptions{})
	doc := mustDoc(t, bson.M{"_id": "w1", "name": "gizmo"})
	if err := tx.PutNX(h, doc); err != nil {
		t.Fatal(err)
	}
	if err := tx.PutNX(h, doc); err != ErrDuplicateKey {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	tx, h := setup(t, catalog.CreateCollectionOptions{TTLPath: "expiresAt"})
	doc := mustDoc(t, bson.M{"_id": "w1", "expiresAt": int64(500)})
	if err := tx.Put(h, doc); err != nil {
		t.Fatal(err)
	}
	pk, _ := tx.ExtractPK(h, doc)
	// tx's clock is fixed at 1000, past the TTL of 500: the record reads
	// as absent even though its bytes are still in the store.
	if _, err := tx.Get(h, pk); err != ErrNotFound {
		t.Fatalf("expected expired record to read as not found, got %v", err)
	}

	fresh := Begin(tx.Store(), 100)
	fh, _ := fresh.Resolve("widgets")
	if doc2, err := fresh.Get(fh, pk); err != nil {
		t.Fatalf("expected record to be live before its TTL: %v", err)
	} else if doc2.Lookup("_id").StringValue() != "w1" {
		t.Fatalf("unexpected doc: %v", doc2)
	}
}

func TestIndexWriteAndScan(t *testing.T) {
	tx, h := setup(t, catalog.CreateCollectionOptions{})
	if _, err := catalog.CreateIndex(tx.Store(), tx.Now(), "widgets", "color"); err != nil {
		t.Fatal(err)
	}

	for _, d := range []bson.M{
		{"_id": "w1", "color": "red"},
		{"_id": "w2", "color": "blue"},
		{"_id": "w3", "color": "red"},
	} {
		if err := tx.Put(h, mustDoc(t, d)); err != nil {
			t.Fatal(err)
		}
	}

	red := bsonvalue.Value{Tag: bsontype.String, Data: []byte("red")}
	var ids []string
	for e, err := range tx.ScanIndex(h, "color", Range{Kind: RangeEq, Eq: red}, false) {
		if err != nil {
			t.Fatal(err)
		}
		rv, err := e.DocID.ToRawValue()
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rv.StringValue())
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 red widgets, got %v", ids)
	}
}

func TestPurgeBefore(t *testing.T) {
	tx, h := setup(t, catalog.CreateCollectionOptions{TTLPath: "expiresAt"})
	if err := tx.Put(h, mustDoc(t, bson.M{"_id": "w1", "expiresAt": int64(100)})); err != nil {
		t.Fatal(err)
	}
	if err := tx.Put(h, mustDoc(t, bson.M{"_id": "w2", "expiresAt": int64(9000)})); err != nil {
		t.Fatal(err)
	}
	if err := tx.Put(h, mustDoc(t, bson.M{"_id": "w3"})); err != nil {
		t.Fatal(err)
	}

	n, err := tx.PurgeBefore(h, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged record, got %d", n)
	}

	w2pk := bsonvalue.Value{Tag: bsontype.String, Data: []byte("w2")}
	if _, err := tx.Get(h, w2pk); err != nil {
		t.Fatalf("w2 should survive the purge: %v", err)
	}
}
