package slate

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/internal/keys"
	"github.com/jpl-au/slate/store/memstore"
)

func open(t *testing.T) *Database {
	t.Helper()
	db, err := Open(memstore.New())
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func mustDoc(t *testing.T, v any) bson.Raw {
	t.Helper()
	buf, err := bson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bson.Raw(buf)
}

func withCollection(t *testing.T, db *Database, name string, opts catalog.CreateCollectionOptions) {
	t.Helper()
	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := txn.CreateCollection(name, opts); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertFindByID(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	doc := mustDoc(t, bson.M{"_id": "w1", "name": "gizmo"})
	if _, err := txn.InsertOne("widgets", doc); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	txn, err = db.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()
	got, err := txn.FindByID("widgets", bson.RawValue{Type: bson.TypeString, Value: bsonString("w1")})
	if err != nil {
		t.Fatal(err)
	}
	if got.Lookup("name").StringValue() != "gizmo" {
		t.Fatalf("unexpected doc: %v", got)
	}
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()
	doc := mustDoc(t, bson.M{"_id": "w1", "name": "gizmo"})
	if _, err := txn.InsertOne("widgets", doc); err != nil {
		t.Fatal(err)
	}
	if _, err := txn.InsertOne("widgets", doc); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestUpdateOneUpsertSeedsFromFilter(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()

	filter := mustDoc(t, bson.M{"_id": "w1"})
	status, err := txn.UpdateOne("widgets", filter, mustDoc(t, bson.M{"$set": bson.M{"color": "red"}}), true)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Inserted {
		t.Fatalf("expected upsert to insert, got %+v", status)
	}

	doc, err := txn.FindByID("widgets", bson.RawValue{Type: bson.TypeString, Value: bsonString("w1")})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Lookup("color").StringValue() != "red" {
		t.Fatalf("expected seeded color, got %v", doc)
	}
}

func TestUpdateOneUpsertRejectsNonEqualityFilter(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()

	filter := mustDoc(t, bson.M{"count": bson.M{"$gt": 1}})
	_, err = txn.UpdateOne("widgets", filter, mustDoc(t, bson.M{"$set": bson.M{"color": "red"}}), true)
	if err != ErrUpsertFilterNotEquality {
		t.Fatalf("expected ErrUpsertFilterNotEquality, got %v", err)
	}
}

func TestDeleteOneRemovesDocument(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	doc := mustDoc(t, bson.M{"_id": "w1", "name": "gizmo"})
	if _, err := txn.InsertOne("widgets", doc); err != nil {
		t.Fatal(err)
	}
	filter := mustDoc(t, bson.M{"_id": "w1"})
	if _, err := txn.DeleteOne("widgets", filter); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	txn, err = db.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()
	n, err := txn.Count("widgets", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 live documents, got %d", n)
	}
}

func TestFindWithSortAndTake(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	docs := []bson.Raw{
		mustDoc(t, bson.M{"_id": "w1", "rank": int32(3)}),
		mustDoc(t, bson.M{"_id": "w2", "rank": int32(1)}),
		mustDoc(t, bson.M{"_id": "w3", "rank": int32(2)}),
	}
	if _, err := txn.InsertMany("widgets", docs); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	txn, err = db.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()
	seq, err := txn.Find("widgets", nil, FindOptions{Sort: []SortKey{{Field: "rank"}}, Take: 2})
	if err != nil {
		t.Fatal(err)
	}
	var ranks []int32
	for d, ferr := range seq {
		if ferr != nil {
			t.Fatal(ferr)
		}
		ranks = append(ranks, d.Lookup("rank").Int32())
	}
	if len(ranks) != 2 || ranks[0] != 1 || ranks[1] != 2 {
		t.Fatalf("unexpected order: %v", ranks)
	}
}

func TestUpsertManyAndMergeMany(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	seed := mustDoc(t, bson.M{"_id": "w1", "name": "gizmo", "color": "red"})
	if _, err := txn.UpsertMany("widgets", []bson.Raw{seed}); err != nil {
		t.Fatal(err)
	}
	patch := mustDoc(t, bson.M{"_id": "w1", "color": "blue"})
	if _, err := txn.MergeMany("widgets", []bson.Raw{patch}); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	txn, err = db.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()
	doc, err := txn.FindByID("widgets", bson.RawValue{Type: bson.TypeString, Value: bsonString("w1")})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Lookup("name").StringValue() != "gizmo" || doc.Lookup("color").StringValue() != "blue" {
		t.Fatalf("expected merge to preserve name and update color, got %v", doc)
	}
}

func TestCreateIndexAndDistinct(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := txn.CreateIndex("widgets", "color"); err != nil {
		t.Fatal(err)
	}
	docs := []bson.Raw{
		mustDoc(t, bson.M{"_id": "w1", "color": "red"}),
		mustDoc(t, bson.M{"_id": "w2", "color": "blue"}),
		mustDoc(t, bson.M{"_id": "w3", "color": "red"}),
	}
	if _, err := txn.InsertMany("widgets", docs); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	txn, err = db.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()
	values, err := txn.Distinct("widgets", "color", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 distinct colors, got %d", len(values))
	}
}

func TestSweeperPurgesExpiredRecords(t *testing.T) {
	db := open(t)
	withCollection(t, db, "widgets", catalog.CreateCollectionOptions{TTLPath: "ttl"})

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	expired := mustDoc(t, bson.M{"_id": "w1", "ttl": int64(1)})
	if _, err := txn.InsertOne("widgets", expired); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	sweeper := db.StartSweeper(10 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	sweeper.Stop()

	txn, err = db.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Rollback()
	n, err := txn.Count("widgets", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected sweeper to purge expired record, got %d live", n)
	}

	// Count never sees an expired record, so also check that the record
	// itself is gone from storage.
	ch, err := txn.store.CF("widgets")
	if err != nil {
		t.Fatal(err)
	}
	stored := 0
	for _, err := range txn.store.ScanPrefix(ch, keys.RecordPrefix("widgets")) {
		if err != nil {
			t.Fatal(err)
		}
		stored++
	}
	if stored != 0 {
		t.Fatalf("expected sweeper to delete the expired record, %d still stored", stored)
	}
}

func bsonString(s string) []byte {
	buf, _ := bson.Marshal(bson.M{"v": s})
	raw := bson.Raw(buf)
	return raw.Lookup("v").Value
}
