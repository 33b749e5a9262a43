package memstore

import (
	"testing"

	"github.com/jpl-au/slate/store"
)

func TestPutGetRoundtrip(t *testing.T) {
	s := New()
	txn, err := s.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	h, err := txn.CF("users")
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Put(h, []byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := txn.Get(h, []byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("got %q %v %v", v, ok, err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestScanPrefixOrdering(t *testing.T) {
	s := New()
	txn, _ := s.Begin(false)
	h, _ := txn.CF("cf")
	for _, k := range []string{"b", "a", "c", "ab"} {
		if err := txn.Put(h, []byte(k), []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	var got []string
	for kv, err := range txn.ScanPrefix(h, []byte("a")) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, string(kv.Key))
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "ab" {
		t.Fatalf("unexpected scan result: %v", got)
	}

	var gotRev []string
	for kv, err := range txn.ScanPrefixRev(h, []byte("a")) {
		if err != nil {
			t.Fatal(err)
		}
		gotRev = append(gotRev, string(kv.Key))
	}
	if len(gotRev) != 2 || gotRev[0] != "ab" || gotRev[1] != "a" {
		t.Fatalf("unexpected reverse scan result: %v", gotRev)
	}
	txn.Rollback()
}

// TestIsolation covers property 6: a read-only transaction begun before a
// write commits must never observe that write.
func TestIsolation(t *testing.T) {
	s := New()
	setup, _ := s.Begin(false)
	h, _ := setup.CF("cf")
	if err := setup.Put(h, []byte("k"), []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := setup.Commit(); err != nil {
		t.Fatal(err)
	}

	reader, err := s.Begin(true)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		writer, _ := s.Begin(false)
		wh, _ := writer.CF("cf")
		writer.Put(wh, []byte("k"), []byte("new"))
		writer.Commit()
	}()

	rh, _ := reader.CF("cf")
	v, _, err := reader.Get(rh, []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "old" {
		t.Fatalf("read-only txn observed a later write: got %q", v)
	}
	reader.Rollback()
	<-done

	verify, _ := s.Begin(true)
	vh, _ := verify.CF("cf")
	v2, _, _ := verify.Get(vh, []byte("k"))
	if string(v2) != "new" {
		t.Fatalf("writer commit did not apply: got %q", v2)
	}
	verify.Rollback()
}

// TestAtomicity covers property 7: an aborted write transaction leaves no
// trace, even after partial mutation of its own (cloned) tree.
func TestAtomicity(t *testing.T) {
	s := New()
	setup, _ := s.Begin(false)
	h, _ := setup.CF("cf")
	setup.Put(h, []byte("k1"), []byte("v1"))
	setup.Commit()

	w, _ := s.Begin(false)
	wh, _ := w.CF("cf")
	w.Put(wh, []byte("k2"), []byte("v2"))
	w.Delete(wh, []byte("k1"))
	if err := w.Rollback(); err != nil {
		t.Fatal(err)
	}

	check, _ := s.Begin(true)
	ch, _ := check.CF("cf")
	if _, ok, _ := check.Get(ch, []byte("k2")); ok {
		t.Fatal("rolled-back put is visible")
	}
	if v, ok, _ := check.Get(ch, []byte("k1")); !ok || string(v) != "v1" {
		t.Fatal("rolled-back delete took effect")
	}
	check.Rollback()
}

var _ store.Store = (*Store)(nil)
