package filestore

import (
	"bytes"

	"github.com/jpl-au/slate/store"
)

type handle struct{ name string }

func (h handle) Name() string { return h.name }

// txn mirrors store/memstore's txn exactly at the API level: a writable
// transaction clones every partition at Begin and stages mutations
// privately, visible to nobody until Commit; a read-only transaction
// shares the store's live trees directly. The difference is durability —
// Commit here also appends the staged mutations to the log before
// swapping them into the store.
type txn struct {
	store    *Store
	readOnly bool
	cfs      map[string]*cfState
	log      []logRecord
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

func (t *txn) state(name string) *cfState {
	st, ok := t.cfs[name]
	if !ok {
		st = &cfState{tree: newTree(), bloom: newBloom()}
		t.cfs[name] = st
	}
	return st
}

func (t *txn) CF(name string) (store.Handle, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	if _, ok := t.cfs[name]; !ok {
		t.cfs[name] = &cfState{tree: newTree(), bloom: newBloom()}
		if !t.readOnly {
			t.log = append(t.log, logRecord{Op: opCreateCF, CF: name})
		}
	}
	return handle{name: name}, nil
}

func (t *txn) CreateCF(name string) (store.Handle, error) {
	if err := t.checkWritable(); err != nil {
		return nil, err
	}
	if _, ok := t.cfs[name]; !ok {
		t.cfs[name] = &cfState{tree: newTree(), bloom: newBloom()}
	}
	t.log = append(t.log, logRecord{Op: opCreateCF, CF: name})
	return handle{name: name}, nil
}

func (t *txn) DropCF(name string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	delete(t.cfs, name)
	t.log = append(t.log, logRecord{Op: opDropCF, CF: name})
	return nil
}

func (t *txn) Get(h store.Handle, key []byte) ([]byte, bool, error) {
	if err := t.checkAlive(); err != nil {
		return nil, false, err
	}
	st := t.state(h.Name())
	if !st.bloom.Contains(key) {
		return nil, false, nil
	}
	item, ok := st.tree.Get(kv{key: key})
	if !ok {
		return nil, false, nil
	}
	return item.value, true, nil
}

func (t *txn) MultiGet(h store.Handle, keys [][]byte) ([][]byte, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	st := t.state(h.Name())
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if !st.bloom.Contains(k) {
			continue
		}
		if item, ok := st.tree.Get(kv{key: k}); ok {
			out[i] = item.value
		}
	}
	return out, nil
}

func (t *txn) Put(h store.Handle, key, value []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	st := t.state(h.Name())
	st.tree.ReplaceOrInsert(kv{key: key, value: value})
	st.bloom.Add(key)
	t.log = append(t.log, logRecord{Op: opPut, CF: h.Name(), Key: key, Value: value})
	return nil
}

func (t *txn) PutBatch(h store.Handle, pairs []store.KV) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	st := t.state(h.Name())
	for _, p := range pairs {
		st.tree.ReplaceOrInsert(kv{key: p.Key, value: p.Value})
		st.bloom.Add(p.Key)
		t.log = append(t.log, logRecord{Op: opPut, CF: h.Name(), Key: p.Key, Value: p.Value})
	}
	return nil
}

func (t *txn) Delete(h store.Handle, key []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	st := t.state(h.Name())
	st.tree.Delete(kv{key: key})
	t.log = append(t.log, logRecord{Op: opDelete, CF: h.Name(), Key: key})
	return nil
}

func (t *txn) DeleteBatch(h store.Handle, keys [][]byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	st := t.state(h.Name())
	for _, k := range keys {
		st.tree.Delete(kv{key: k})
		t.log = append(t.log, logRecord{Op: opDelete, CF: h.Name(), Key: k})
	}
	return nil
}

func (t *txn) ScanPrefix(h store.Handle, prefix []byte) func(func(store.KV, error) bool) {
	return func(yield func(store.KV, error) bool) {
		if err := t.checkAlive(); err != nil {
			yield(store.KV{}, err)
			return
		}
		st := t.state(h.Name())
		st.tree.AscendGreaterOrEqual(kv{key: prefix}, func(item kv) bool {
			if !bytes.HasPrefix(item.key, prefix) {
				return false
			}
			return yield(store.KV{Key: item.key, Value: item.value}, nil)
		})
	}
}

func (t *txn) ScanPrefixRev(h store.Handle, prefix []byte) func(func(store.KV, error) bool) {
	return func(yield func(store.KV, error) bool) {
		if err := t.checkAlive(); err != nil {
			yield(store.KV{}, err)
			return
		}
		st := t.state(h.Name())
		var matches []kv
		st.tree.AscendGreaterOrEqual(kv{key: prefix}, func(item kv) bool {
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

// Commit appends the transaction's whole log batch to the store's file
// in one WriteAt call, then swaps the store's partitions for the
// transaction's mutated clones — the same clone-then-swap visibility
// store/memstore uses, with the log append as the added durability step.
// An empty batch (a read-only-shaped write txn that touched nothing)
// still takes the swap path so CF/CreateCF/DropCF calls are not lost.
func (t *txn) Commit() error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	t.consumed = true
	if t.readOnly {
		t.store.mu.RUnlock()
		return nil
	}
	defer t.store.lock.Unlock()
	defer t.store.mu.Unlock()

	s := t.store
	if len(t.log) > 0 {
		var buf []byte
		for _, rec := range t.log {
			line, err := encodeRecord(rec, s.config.Algorithm, s.config.CompressThreshold)
			if err != nil {
				return err
			}
			buf = append(buf, line...)
			buf = append(buf, '\n')
		}
		if s.header.Error == 0 {
			s.header.Error = 1
			if err := writeDirty(s.file, true); err != nil {
				return err
			}
		}
		if _, err := s.file.WriteAt(buf, s.tail); err != nil {
			return store.NewStorageError("filestore.commit", err)
		}
		if s.config.SyncWrites {
			if err := s.file.Sync(); err != nil {
				return store.NewStorageError("filestore.commit", err)
			}
		}
		s.tail += int64(len(buf))
	}
	s.cfs = t.cfs
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
	// Nothing was ever written to disk; discard the cloned trees and the
	// buffered log, and release both locks.
	t.store.lock.Unlock()
	t.store.mu.Unlock()
	return nil
}
