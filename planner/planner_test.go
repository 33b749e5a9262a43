package planner

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/catalog"
	"github.com/jpl-au/slate/engine"
	"github.com/jpl-au/slate/expr"
)

func handle() *engine.Handle {
	return &engine.Handle{Name: "widgets", PKPath: "_id", TTLPath: "ttl"}
}

func idx(field string, seq int) *catalog.IndexConfig {
	return &catalog.IndexConfig{Collection: "widgets", Field: field, Seq: seq}
}

func parseFilter(t *testing.T, v any) expr.Node {
	t.Helper()
	buf, err := bson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	n, err := expr.Parse(bson.Raw(buf))
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestPKEqualityUsesIndexScan(t *testing.T) {
	filter := parseFilter(t, bson.M{"_id": "w1"})
	node, err := Build(handle(), nil, Options{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	rr, ok := node.(ReadRecord)
	if !ok {
		t.Fatalf("expected ReadRecord wrapping the PK scan, got %T", node)
	}
	scan, ok := rr.Input.(IndexScan)
	if !ok || !scan.PK || scan.Field != "_id" {
		t.Fatalf("expected PK IndexScan, got %#v", rr.Input)
	}
}

func TestIndexedEquality(t *testing.T) {
	filter := parseFilter(t, bson.M{"color": "red"})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("color", 0)}, Options{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	rr, ok := node.(ReadRecord)
	if !ok {
		t.Fatalf("expected ReadRecord, got %T", node)
	}
	scan, ok := rr.Input.(IndexScan)
	if !ok || scan.Field != "color" || scan.Range.Kind != engine.RangeEq {
		t.Fatalf("expected Eq IndexScan on color, got %#v", rr.Input)
	}
}

func TestIndexedRangeMergesBothBounds(t *testing.T) {
	filter := parseFilter(t, bson.M{"price": bson.M{"$gte": 10, "$lt": 20}})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("price", 0)}, Options{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	rr := node.(ReadRecord)
	scan := rr.Input.(IndexScan)
	if scan.Range.Kind != engine.RangeBetween || scan.Range.Lo == nil || scan.Range.Hi == nil {
		t.Fatalf("expected a merged Between range, got %#v", scan.Range)
	}
	if !scan.Range.LoInclusive || scan.Range.HiInclusive {
		t.Fatalf("expected [10, 20) inclusivity, got lo=%v hi=%v", scan.Range.LoInclusive, scan.Range.HiInclusive)
	}
}

func TestAndOfTwoIndexedFieldsMerges(t *testing.T) {
	filter := parseFilter(t, bson.M{"color": "red", "size": "L"})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("color", 0), idx("size", 1)}, Options{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	rr := node.(ReadRecord)
	merge, ok := rr.Input.(IndexMerge)
	if !ok || merge.Op != MergeAnd || len(merge.Branches) != 2 {
		t.Fatalf("expected a 2-branch And merge, got %#v", rr.Input)
	}
}

func TestAndWithResidualNonIndexedPredicate(t *testing.T) {
	filter := parseFilter(t, bson.M{"color": "red", "weight": bson.M{"$gt": 5}})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("color", 0)}, Options{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	f, ok := node.(Filter)
	if !ok {
		t.Fatalf("expected a residual Filter wrapping the index scan, got %T", node)
	}
	if _, ok := f.Input.(ReadRecord); !ok {
		t.Fatalf("expected ReadRecord beneath the residual filter, got %T", f.Input)
	}
}

func TestOrOverIndexedFieldsMerges(t *testing.T) {
	filter := parseFilter(t, bson.M{"$or": bson.A{bson.M{"color": "red"}, bson.M{"color": "blue"}}})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("color", 0)}, Options{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	rr := node.(ReadRecord)
	merge, ok := rr.Input.(IndexMerge)
	if !ok || merge.Op != MergeOr || len(merge.Branches) != 2 {
		t.Fatalf("expected a 2-branch Or merge, got %#v", rr.Input)
	}
}

func TestOrWithNonIndexedBranchFallsBackToScan(t *testing.T) {
	filter := parseFilter(t, bson.M{"$or": bson.A{bson.M{"color": "red"}, bson.M{"weight": bson.M{"$gt": 5}}}})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("color", 0)}, Options{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	f, ok := node.(Filter)
	if !ok {
		t.Fatalf("expected Filter over a full Scan, got %T", node)
	}
	if _, ok := f.Input.(Scan); !ok {
		t.Fatalf("expected a full Scan beneath the filter, got %T", f.Input)
	}
}

func TestRegexNeverBecomesAccessPath(t *testing.T) {
	filter := parseFilter(t, bson.M{"name": bson.M{"$regex": "^w"}})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("name", 0)}, Options{Filter: filter})
	if err != nil {
		t.Fatal(err)
	}
	f, ok := node.(Filter)
	if !ok {
		t.Fatalf("expected regex to always be a Filter, got %T", node)
	}
	if _, ok := f.Input.(Scan); !ok {
		t.Fatalf("expected a full Scan beneath a regex filter, got %T", f.Input)
	}
}

func TestSortPushdownIntoIndexScan(t *testing.T) {
	filter := parseFilter(t, bson.M{"color": "red"})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("color", 0)}, Options{
		Filter: filter,
		Sorts:  []SortKey{{Field: "color", Desc: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rr := node.(ReadRecord)
	scan := rr.Input.(IndexScan)
	if !scan.Reverse {
		t.Fatal("expected sort pushed into IndexScan.Reverse")
	}
}

func TestMismatchedSortAddsExplicitSortNode(t *testing.T) {
	filter := parseFilter(t, bson.M{"color": "red"})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("color", 0)}, Options{
		Filter: filter,
		Sorts:  []SortKey{{Field: "weight"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := node.(Sort); !ok {
		t.Fatalf("expected an explicit Sort node, got %T", node)
	}
}

func TestCoveredScanSkipsReadRecord(t *testing.T) {
	filter := parseFilter(t, bson.M{"color": "red"})
	node, err := Build(handle(), []*catalog.IndexConfig{idx("color", 0)}, Options{
		Filter:  filter,
		Columns: []string{"color"},
	})
	if err != nil {
		t.Fatal(err)
	}
	proj, ok := node.(Projection)
	if !ok {
		t.Fatalf("expected Projection outermost, got %T", node)
	}
	scan, ok := proj.Input.(IndexScan)
	if !ok || !scan.Covered {
		t.Fatalf("expected a covered IndexScan directly under Projection, got %#v", proj.Input)
	}
}

func TestLimitPlacedLast(t *testing.T) {
	node, err := Build(handle(), nil, Options{Skip: 5, Take: 10})
	if err != nil {
		t.Fatal(err)
	}
	lim, ok := node.(Limit)
	if !ok || lim.Skip != 5 || lim.Take != 10 {
		t.Fatalf("expected Limit{5,10} outermost, got %#v", node)
	}
	if _, ok := lim.Input.(Scan); !ok {
		t.Fatalf("expected Scan beneath Limit, got %T", lim.Input)
	}
}

func TestEmptyAndIsRejected(t *testing.T) {
	filter := parseFilter(t, bson.M{"$and": bson.A{}})
	if _, err := Build(handle(), nil, Options{Filter: filter}); err != ErrEmptyAnd {
		t.Fatalf("expected ErrEmptyAnd, got %v", err)
	}
}

func TestNoFilterIsFullScan(t *testing.T) {
	node, err := Build(handle(), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := node.(Scan); !ok {
		t.Fatalf("expected a bare Scan, got %T", node)
	}
}

func TestDistinctOnIndexedFieldIsCovered(t *testing.T) {
	node, err := PlanDistinct(handle(), []*catalog.IndexConfig{idx("color", 0)}, "color", nil)
	if err != nil {
		t.Fatal(err)
	}
	dist, ok := node.(Distinct)
	if !ok {
		t.Fatalf("expected Distinct, got %T", node)
	}
	scan, ok := dist.Input.(IndexScan)
	if !ok || !scan.Covered {
		t.Fatalf("expected a covered IndexScan under Distinct, got %#v", dist.Input)
	}
}
