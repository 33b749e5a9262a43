// Package memstore is the in-memory reference implementation of the
// abstract store interface (store.Store). It keeps one ordered btree per
// partition and enforces the single-writer rule with a sync.RWMutex: the
// one live write transaction holds the write lock for its entire
// lifetime, and concurrent read-only transactions share a read lock and
// therefore always observe a consistent, unchanging snapshot.
//
// Ordering comes from github.com/google/btree's copy-on-write BTreeG: a
// write transaction clones each partition's tree at Begin (an O(1)
// structural-sharing clone), mutates its own clone, and the commit simply
// swaps the store's partition map for the transaction's — giving
// read-your-writes inside the transaction and atomic, all-or-nothing
// visibility to everyone else.
package memstore

import (
	"bytes"
	"iter"
	"sync"

	"github.com/google/btree"

	"github.com/jpl-au/slate/store"
)

const btreeDegree = 32

type kv struct {
	key   []byte
	value []byte
}

func less(a, b kv) bool { return bytes.Compare(a.key, b.key) < 0 }

func newTree() *btree.BTreeG[kv] { return btree.NewG(btreeDegree, less) }

// Store is the in-memory backend.
type Store struct {
	mu  sync.RWMutex
	cfs map[string]*btree.BTreeG[kv]
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{cfs: make(map[string]*btree.BTreeG[kv])}
}

// Begin starts a transaction. Writable transactions hold the store's write
// lock until Commit or Rollback; read-only transactions hold the read
// lock for the same span.
func (s *Store) Begin(readOnly bool) (store.Txn, error) {
	if readOnly {
		s.mu.RLock()
		trees := make(map[string]*btree.BTreeG[kv], len(s.cfs))
		for name, t := range s.cfs {
			trees[name] = t
		}
		return &txn{store: s, readOnly: true, trees: trees}, nil
	}

	s.mu.Lock()
	trees := make(map[string]*btree.BTreeG[kv], len(s.cfs))
	for name, t := range s.cfs {
		trees[name] = t.Clone()
	}
	return &txn{store: s, readOnly: false, trees: trees}, nil
}

// Close is a no-op: the store holds no external resources.
func (s *Store) Close() error { return nil }

type handle struct{ name string }

func (h handle) Name() string { return h.name }

type txn struct {
	store    *Store
	readOnly bool
	trees    map[string]*btree.BTreeG[kv]
	consumed bool
}

func (t *txn) ReadOnly() bool { return t.readOnly }

func (t *txn) checkAlive() error {
	if t.consumed {
		return store.ErrTransactionConsumed
	}
	return nil
}

func (t *txn) checkWritable() error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (t *txn) CF(name string) (store.Handle, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	if _, ok := t.trees[name]; !ok {
		t.trees[name] = newTree()
	}
	return handle{name: name}, nil
}

func (t *txn) CreateCF(name string) (store.Handle, error) {
	if err := t.checkWritable(); err != nil {
		return nil, err
	}
	if _, ok := t.trees[name]; !ok {
		t.trees[name] = newTree()
	}
	return handle{name: name}, nil
}

func (t *txn) DropCF(name string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	delete(t.trees, name)
	return nil
}

func (t *txn) tree(h store.Handle) *btree.BTreeG[kv] {
	tr, ok := t.trees[h.Name()]
	if !ok {
		tr = newTree()
		t.trees[h.Name()] = tr
	}
	return tr
}

func (t *txn) Get(h store.Handle, key []byte) ([]byte, bool, error) {
	if err := t.checkAlive(); err != nil {
		return nil, false, err
	}
	item, ok := t.tree(h).Get(kv{key: key})
	if !ok {
		return nil, false, nil
	}
	return item.value, true, nil
}

func (t *txn) MultiGet(h store.Handle, keys [][]byte) ([][]byte, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	tr := t.tree(h)
	for i, k := range keys {
		if item, ok := tr.Get(kv{key: k}); ok {
			out[i] = item.value
		}
	}
	return out, nil
}

func (t *txn) Put(h store.Handle, key, value []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	t.tree(h).ReplaceOrInsert(kv{key: key, value: value})
	return nil
}

func (t *txn) PutBatch(h store.Handle, pairs []store.KV) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	tr := t.tree(h)
	for _, p := range pairs {
		tr.ReplaceOrInsert(kv{key: p.Key, value: p.Value})
	}
	return nil
}

func (t *txn) Delete(h store.Handle, key []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	t.tree(h).Delete(kv{key: key})
	return nil
}

func (t *txn) DeleteBatch(h store.Handle, keys [][]byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	tr := t.tree(h)
	for _, k := range keys {
		tr.Delete(kv{key: k})
	}
	return nil
}

func (t *txn) ScanPrefix(h store.Handle, prefix []byte) iter.Seq2[store.KV, error] {
	return func(yield func(store.KV, error) bool) {
		if err := t.checkAlive(); err != nil {
			yield(store.KV{}, err)
			return
		}
		tr := t.tree(h)
		tr.AscendGreaterOrEqual(kv{key: prefix}, func(item kv) bool {
			if !bytes.HasPrefix(item.key, prefix) {
				return false
			}
			return yield(store.KV{Key: item.key, Value: item.value}, nil)
		})
	}
}

func (t *txn) ScanPrefixRev(h store.Handle, prefix []byte) iter.Seq2[store.KV, error] {
	return func(yield func(store.KV, error) bool) {
		if err := t.checkAlive(); err != nil {
			yield(store.KV{}, err)
			return
		}
		tr := t.tree(h)
		var matches []kv
		tr.AscendGreaterOrEqual(kv{key: prefix}, func(item kv) bool {
			if !bytes.HasPrefix(item.key, prefix) {
				return false
			}
			matches = append(matches, item)
			return true
		})
		for i := len(matches) - 1; i >= 0; i-- {
			if !yield(store.KV{Key: matches[i].key, Value: matches[i].value}, nil) {
				return
			}
		}
	}
}

func (t *txn) Commit() error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	t.consumed = true
	if t.readOnly {
		t.store.mu.RUnlock()
		return nil
	}
	t.store.cfs = t.trees
	t.store.mu.Unlock()
	return nil
}

func (t *txn) Rollback() error {
	if t.consumed {
		return nil
	}
	t.consumed = true
	if t.readOnly {
		t.store.mu.RUnlock()
		return nil
	}
	// Discard the cloned trees; store.cfs was never touched.
	t.store.mu.Unlock()
	return nil
}
