package expr

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func parseFilter(t *testing.T, v any) Node {
	t.Helper()
	buf, err := bson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	n, err := Parse(bson.Raw(buf))
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func doc(t *testing.T, v any) bson.Raw {
	t.Helper()
	buf, err := bson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bson.Raw(buf)
}

func TestEqScalar(t *testing.T) {
	n := parseFilter(t, bson.M{"name": "gizmo"})
	ok, err := n.Eval(doc(t, bson.M{"name": "gizmo"}))
	if err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	ok, _ = n.Eval(doc(t, bson.M{"name": "widget"}))
	if ok {
		t.Fatal("expected no match")
	}
}

func TestEqNullMatchesMissing(t *testing.T) {
	n := parseFilter(t, bson.M{"deletedAt": nil})
	if ok, _ := n.Eval(doc(t, bson.M{"name": "x"})); !ok {
		t.Fatal("expected eq:null to match a missing field")
	}
	if ok, _ := n.Eval(doc(t, bson.M{"deletedAt": nil})); !ok {
		t.Fatal("expected eq:null to match an explicit null")
	}
	if ok, _ := n.Eval(doc(t, bson.M{"deletedAt": "2020-01-01"})); ok {
		t.Fatal("expected eq:null not to match a present non-null value")
	}
}

func TestRangeAnd(t *testing.T) {
	n := parseFilter(t, bson.M{"age": bson.M{"$gte": int32(18), "$lt": int32(65)}})
	if ok, _ := n.Eval(doc(t, bson.M{"age": int32(30)})); !ok {
		t.Fatal("expected 30 to be in [18,65)")
	}
	if ok, _ := n.Eval(doc(t, bson.M{"age": int32(65)})); ok {
		t.Fatal("expected 65 to be excluded by $lt")
	}
}

func TestOrTopLevel(t *testing.T) {
	n := parseFilter(t, bson.M{"$or": bson.A{
		bson.M{"status": "active"},
		bson.M{"status": "pending"},
	}})
	if ok, _ := n.Eval(doc(t, bson.M{"status": "pending"})); !ok {
		t.Fatal("expected $or branch to match")
	}
	if ok, _ := n.Eval(doc(t, bson.M{"status": "archived"})); ok {
		t.Fatal("expected no $or branch to match")
	}
}

func TestArrayAnyElementMatches(t *testing.T) {
	n := parseFilter(t, bson.M{"tags": "blue"})
	if ok, _ := n.Eval(doc(t, bson.M{"tags": bson.A{"red", "blue"}})); !ok {
		t.Fatal("expected array element match")
	}
	if ok, _ := n.Eval(doc(t, bson.M{"tags": bson.A{"red", "green"}})); ok {
		t.Fatal("expected no match")
	}
}

func TestStringNumberCoercion(t *testing.T) {
	n := parseFilter(t, bson.M{"count": int32(42)})
	if ok, _ := n.Eval(doc(t, bson.M{"count": "42"})); !ok {
		t.Fatal("expected \"42\" to compare equal to 42")
	}
}

func TestExists(t *testing.T) {
	n := parseFilter(t, bson.M{"nickname": bson.M{"$exists": true}})
	if ok, _ := n.Eval(doc(t, bson.M{"nickname": nil})); !ok {
		t.Fatal("expected an explicit null to count as present")
	}
	if ok, _ := n.Eval(doc(t, bson.M{"name": "x"})); ok {
		t.Fatal("expected a missing field not to satisfy $exists:true")
	}
}

func TestRegexWithOptions(t *testing.T) {
	n := parseFilter(t, bson.M{"name": bson.M{"$regex": "^GIZ", "$options": "i"}})
	if ok, _ := n.Eval(doc(t, bson.M{"name": "gizmo"})); !ok {
		t.Fatal("expected case-insensitive match")
	}
}

func TestUnknownOperatorIsParseError(t *testing.T) {
	buf, _ := bson.Marshal(bson.M{"age": bson.M{"$bogus": 1}})
	if _, err := Parse(bson.Raw(buf)); err != ErrParse {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}
