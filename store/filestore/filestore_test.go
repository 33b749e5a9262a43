package filestore

import (
	"os"
	"testing"
)

func open(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, "data.log", Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrips(t *testing.T) {
	s := open(t)
	txn, err := s.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	h, err := txn.CF("widgets")
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Put(h, []byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	rtx, err := s.Begin(true)
	if err != nil {
		t.Fatal(err)
	}
	defer rtx.Commit()
	rh, err := rtx.CF("widgets")
	if err != nil {
		t.Fatal(err)
	}
	v, ok, err := rtx.Get(rh, []byte("a"))
	if err != nil || !ok {
		t.Fatalf("expected a live value, got ok=%v err=%v", ok, err)
	}
	if string(v) != "1" {
		t.Fatalf("expected 1, got %s", v)
	}
}

func TestGetMissingReturnsNotOK(t *testing.T) {
	s := open(t)
	txn, _ := s.Begin(true)
	h, _ := txn.CF("widgets")
	_, ok, err := txn.Get(h, []byte("absent"))
	if err != nil || ok {
		t.Fatalf("expected absent, got ok=%v err=%v", ok, err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	s := open(t)
	txn, _ := s.Begin(false)
	h, _ := txn.CF("widgets")
	txn.Put(h, []byte("a"), []byte("1"))
	txn.Delete(h, []byte("a"))
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	rtx, _ := s.Begin(true)
	rh, _ := rtx.CF("widgets")
	_, ok, _ := rtx.Get(rh, []byte("a"))
	if ok {
		t.Fatal("expected the deleted key to be absent")
	}
}

func TestScanPrefixOrdersAscending(t *testing.T) {
	s := open(t)
	txn, _ := s.Begin(false)
	h, _ := txn.CF("widgets")
	txn.Put(h, []byte("b"), []byte("2"))
	txn.Put(h, []byte("a"), []byte("1"))
	txn.Put(h, []byte("c"), []byte("3"))
	txn.Commit()

	rtx, _ := s.Begin(true)
	rh, _ := rtx.CF("widgets")
	var keys []string
	for kv, err := range rtx.ScanPrefix(rh, nil) {
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, string(kv.Key))
	}
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}
}

func TestRollbackDiscardsWrite(t *testing.T) {
	s := open(t)
	txn, _ := s.Begin(false)
	h, _ := txn.CF("widgets")
	txn.Put(h, []byte("a"), []byte("1"))
	if err := txn.Rollback(); err != nil {
		t.Fatal(err)
	}

	rtx, _ := s.Begin(true)
	rh, _ := rtx.CF("widgets")
	_, ok, _ := rtx.Get(rh, []byte("a"))
	if ok {
		t.Fatal("expected rollback to discard the write")
	}
}

func TestReopenReplaysLog(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "data.log", Config{})
	if err != nil {
		t.Fatal(err)
	}
	txn, _ := s.Begin(false)
	h, _ := txn.CF("widgets")
	txn.Put(h, []byte("a"), []byte("1"))
	txn.Put(h, []byte("b"), []byte("2"))
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir, "data.log", Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	rtx, _ := s2.Begin(true)
	rh, _ := rtx.CF("widgets")
	v, ok, err := rtx.Get(rh, []byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("expected replayed value 1, got ok=%v v=%s err=%v", ok, v, err)
	}
}

func TestLargeValueCompresses(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "data.log", Config{CompressThreshold: 8})
	if err != nil {
		t.Fatal(err)
	}
	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i % 251)
	}
	txn, _ := s.Begin(false)
	h, _ := txn.CF("widgets")
	if err := txn.Put(h, []byte("big"), big); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir, "data.log", Config{CompressThreshold: 8})
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	rtx, _ := s2.Begin(true)
	rh, _ := rtx.CF("widgets")
	v, ok, err := rtx.Get(rh, []byte("big"))
	if err != nil || !ok {
		t.Fatalf("expected the large value to survive a reopen, ok=%v err=%v", ok, err)
	}
	if len(v) != len(big) {
		t.Fatalf("expected %d bytes back, got %d", len(big), len(v))
	}
	for i := range big {
		if v[i] != big[i] {
			t.Fatalf("byte %d differs after decompression", i)
		}
	}
}

func TestCrashTailIsTruncatedOnReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "data.log", Config{})
	if err != nil {
		t.Fatal(err)
	}
	txn, _ := s.Begin(false)
	h, _ := txn.CF("widgets")
	txn.Put(h, []byte("a"), []byte("1"))
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash: append a truncated, unterminated partial record
	// without clearing the dirty flag (skip the clean Close).
	path := dir + "/data.log"
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(`{"op":1,"cf":"widg`)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	s2, err := Open(dir, "data.log", Config{})
	if err != nil {
		t.Fatalf("expected recovery to succeed, got %v", err)
	}
	defer s2.Close()
	rtx, _ := s2.Begin(true)
	rh, _ := rtx.CF("widgets")
	v, ok, err := rtx.Get(rh, []byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("expected the committed record to survive recovery, got ok=%v v=%s err=%v", ok, v, err)
	}
}

func TestCompactShrinksSupersededWrites(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "data.log", Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for i := 0; i < 50; i++ {
		txn, _ := s.Begin(false)
		ch, _ := txn.CF("widgets")
		txn.Put(ch, []byte("a"), []byte("v"))
		if err := txn.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	sizeBefore, _ := os.Stat(dir + "/data.log")

	if err := s.Compact(); err != nil {
		t.Fatal(err)
	}
	sizeAfter, _ := os.Stat(dir + "/data.log")
	if sizeAfter.Size() >= sizeBefore.Size() {
		t.Fatalf("expected compaction to shrink the log, before=%d after=%d", sizeBefore.Size(), sizeAfter.Size())
	}

	rtx, _ := s.Begin(true)
	rh, _ := rtx.CF("widgets")
	v, ok, err := rtx.Get(rh, []byte("a"))
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("expected the live value to survive compaction, ok=%v v=%s err=%v", ok, v, err)
	}
}
