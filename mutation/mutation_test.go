package mutation

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func parseSpec(t *testing.T, v any) *Spec {
	t.Helper()
	buf, err := bson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	s, err := Parse(bson.Raw(buf))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mkDoc(t *testing.T, v any) bson.Raw {
	t.Helper()
	buf, err := bson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bson.Raw(buf)
}

func TestImplicitSet(t *testing.T) {
	spec := parseSpec(t, bson.M{"name": "widget"})
	doc := mkDoc(t, bson.M{"_id": "w1", "name": "gizmo"})
	out, modified, err := Apply(doc, spec)
	if err != nil {
		t.Fatal(err)
	}
	if !modified {
		t.Fatal("expected modified")
	}
	if out.Lookup("name").StringValue() != "widget" {
		t.Fatalf("unexpected doc: %v", out)
	}
}

func TestSetNoopWhenUnchanged(t *testing.T) {
	spec := parseSpec(t, bson.M{"$set": bson.M{"name": "gizmo"}})
	doc := mkDoc(t, bson.M{"_id": "w1", "name": "gizmo"})
	_, modified, err := Apply(doc, spec)
	if err != nil {
		t.Fatal(err)
	}
	if modified {
		t.Fatal("expected modified=false when value is unchanged")
	}
}

func TestSetDottedPathCreatesIntermediates(t *testing.T) {
	spec := parseSpec(t, bson.M{"$set": bson.M{"address.city": "austin"}})
	doc := mkDoc(t, bson.M{"_id": "w1"})
	out, modified, err := Apply(doc, spec)
	if err != nil {
		t.Fatal(err)
	}
	if !modified {
		t.Fatal("expected modified")
	}
	addr := out.Lookup("address")
	sub, err := addr.Document().Elements()
	if err != nil {
		t.Fatal(err)
	}
	if len(sub) != 1 {
		t.Fatalf("expected one nested field, got %d", len(sub))
	}
}

func TestUnsetNonCreatingErrorsOnScalarIntermediate(t *testing.T) {
	spec := parseSpec(t, bson.M{"$unset": bson.M{"address.city": ""}})
	doc := mkDoc(t, bson.M{"_id": "w1", "address": "not a document"})
	if _, _, err := Apply(doc, spec); err != ErrNonDocumentIntermediate {
		t.Fatalf("expected ErrNonDocumentIntermediate, got %v", err)
	}
}

func TestMutateIDRejected(t *testing.T) {
	buf, _ := bson.Marshal(bson.M{"$set": bson.M{"_id": "w2"}})
	if _, err := Parse(bson.Raw(buf)); err != ErrMutateID {
		t.Fatalf("expected ErrMutateID, got %v", err)
	}
}

func TestInc(t *testing.T) {
	spec := parseSpec(t, bson.M{"$inc": bson.M{"count": int32(1)}})
	doc := mkDoc(t, bson.M{"_id": "w1", "count": int32(41)})
	out, modified, err := Apply(doc, spec)
	if err != nil {
		t.Fatal(err)
	}
	if !modified || out.Lookup("count").Int32() != 42 {
		t.Fatalf("unexpected result: %v %v", modified, out)
	}
}

func TestIncOverflowPromotesToInt64(t *testing.T) {
	spec := parseSpec(t, bson.M{"$inc": bson.M{"n": int32(1)}})
	doc := mkDoc(t, bson.M{"_id": "w1", "n": int32(2147483647)})
	out, _, err := Apply(doc, spec)
	if err != nil {
		t.Fatal(err)
	}
	got := out.Lookup("n")
	if got.Type.String() != "int64" {
		t.Fatalf("expected promotion to int64, got %v", got.Type)
	}
	if got.Int64() != 2147483648 {
		t.Fatalf("unexpected value: %d", got.Int64())
	}
}

func TestRenameMovesValue(t *testing.T) {
	spec := parseSpec(t, bson.M{"$rename": bson.M{"oldName": "newName"}})
	doc := mkDoc(t, bson.M{"_id": "w1", "oldName": "gizmo"})
	out, modified, err := Apply(doc, spec)
	if err != nil {
		t.Fatal(err)
	}
	if !modified {
		t.Fatal("expected modified")
	}
	if out.Lookup("newName").StringValue() != "gizmo" {
		t.Fatalf("expected value moved to newName: %v", out)
	}
	if _, err := out.LookupErr("oldName"); err == nil {
		t.Fatal("expected oldName to be removed")
	}
}

func TestPushAndPop(t *testing.T) {
	spec := parseSpec(t, bson.M{"$push": bson.M{"tags": "new"}})
	doc := mkDoc(t, bson.M{"_id": "w1", "tags": bson.A{"a", "b"}})
	out, _, err := Apply(doc, spec)
	if err != nil {
		t.Fatal(err)
	}
	arr, err := out.Lookup("tags").Array().Values()
	if err != nil || len(arr) != 3 || arr[2].StringValue() != "new" {
		t.Fatalf("unexpected push result: %v %v", arr, err)
	}

	popSpec := parseSpec(t, bson.M{"$pop": bson.M{"tags": ""}})
	out2, modified, err := Apply(out, popSpec)
	if err != nil {
		t.Fatal(err)
	}
	if !modified {
		t.Fatal("expected modified")
	}
	arr2, err := out2.Lookup("tags").Array().Values()
	if err != nil || len(arr2) != 2 {
		t.Fatalf("unexpected pop result: %v %v", arr2, err)
	}
}
