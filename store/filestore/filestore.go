// Package filestore is the durable, single-process backend for the
// abstract store interface (store.Store): every partition is kept as an
// in-memory github.com/google/btree index for ordering, the same way
// store/memstore keeps its trees, backed by a single append-only log
// file on disk so the index can be rebuilt after a restart.
//
// The on-disk mechanics — the fixed header with its crash-dirty flag,
// OS-level flock coordination, zstd+ascii85 value compression, the
// multi-algorithm record checksum, the per-partition bloom filter used
// as a fast negative-lookup path, and the sorted-replay-into-temp-file
// compaction — are adapted from a reference embedded-database engine;
// generalized here from "label, JSON document" to "partition, key,
// value", and from an index-pointer file layout to a single replayable
// log, since filestore's in-memory btree already gives ordered,
// point-in-time snapshots without a separate on-disk index region.
package filestore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"

	"github.com/jpl-au/slate/store"
)

const btreeDegree = 32

type kv struct {
	key   []byte
	value []byte
}

func less(a, b kv) bool {
	return string(a.key) < string(b.key)
}

func newTree() *btree.BTreeG[kv] { return btree.NewG(btreeDegree, less) }

// Config customizes an opened Store. The zero value is a usable default:
// xxHash3 checksums, writes not fsync'd per commit, and a 256-byte
// compression threshold.
type Config struct {
	// Algorithm selects the checksum algorithm guarding each log record
	// against silent corruption. Zero selects AlgXXHash3.
	Algorithm int
	// SyncWrites fsyncs the log file after every commit. Off by default,
	// matching the reference engine's own default: durability against a
	// process crash either way (the data is in the OS page cache the
	// instant WriteAt returns), only an OS-level crash needs the fsync.
	SyncWrites bool
	// CompressThreshold is the value size, in bytes, at or above which a
	// record's value is zstd-compressed before being written. Zero
	// selects a 256-byte default.
	CompressThreshold int
}

func (c Config) withDefaults() Config {
	if c.Algorithm == 0 {
		c.Algorithm = AlgXXHash3
	}
	if c.CompressThreshold == 0 {
		c.CompressThreshold = 256
	}
	return c
}

type cfState struct {
	tree  *btree.BTreeG[kv]
	bloom *bloom
}

func (s *cfState) clone() *cfState {
	return &cfState{tree: s.tree.Clone(), bloom: s.bloom.clone()}
}

// Store is the durable backend: one append-only log file per database,
// with an in-memory btree+bloom index per partition rebuilt from the log
// at Open.
type Store struct {
	mu     sync.RWMutex
	lock   *fileLock
	file   *os.File
	path   string
	config Config
	header *Header
	tail   int64
	cfs    map[string]*cfState
}

// Open opens (creating if absent) the log file dir/name, replaying it
// into an in-memory index. A dirty header (the prior session did not
// call Close) triggers crash recovery: replay stops at the first
// unreadable or checksum-mismatched record and the file is truncated to
// drop the partial tail, exactly the reference engine's "detect the
// dirty flag, repair before serving traffic" flow.
func Open(dir, name string, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	var hdr *Header
	if info.Size() == 0 {
		hdr = &Header{Version: 1, Algorithm: cfg.Algorithm, Error: 1}
		buf, eerr := hdr.encode()
		if eerr != nil {
			f.Close()
			return nil, eerr
		}
		if _, err := f.WriteAt(buf, 0); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		hdr, err = readHeader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	s := &Store{
		lock:   &fileLock{},
		file:   f,
		path:   path,
		config: cfg,
		header: hdr,
		tail:   HeaderSize,
		cfs:    make(map[string]*cfState),
	}
	s.lock.setFile(f)

	if err := s.replay(); err != nil {
		f.Close()
		return nil, err
	}

	// Clear the dirty flag: either this was a clean file already, or
	// replay just finished truncating away any crash-time partial tail.
	if hdr.Error != 0 {
		hdr.Error = 0
		if err := writeDirty(f, false); err != nil {
			f.Close()
			return nil, err
		}
	}

	return s, nil
}

// replay reads every log record from HeaderSize to EOF and rebuilds the
// in-memory index. A record that fails to decode or checksum is treated
// as a crash-time partial write: replay stops there and, if the header
// was already marked dirty, the file is truncated to discard it. The
// same stopping point without a dirty header means real corruption, not
// a crash artifact, and is reported rather than silently dropped.
func (s *Store) replay() error {
	r := io.NewSectionReader(s.file, HeaderSize, 1<<62)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)

	offset := int64(HeaderSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			offset += int64(len(line)) + 1
			continue
		}
		rec, err := decodeRecord(line, s.config.Algorithm)
		if err != nil {
			if s.header.Error != 0 {
				s.tail = offset
				return os.Truncate(s.path, offset)
			}
			return fmt.Errorf("%w: replay at offset %d: %w", ErrCorruptRecord, offset, err)
		}
		s.apply(rec)
		offset += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		if s.header.Error != 0 {
			s.tail = offset
			return os.Truncate(s.path, offset)
		}
		return err
	}
	s.tail = offset
	return nil
}

func (s *Store) apply(rec *logRecord) {
	st, ok := s.cfs[rec.CF]
	if !ok {
		st = &cfState{tree: newTree(), bloom: newBloom()}
		s.cfs[rec.CF] = st
	}
	switch rec.Op {
	case opCreateCF:
		// Already materialized above; nothing further to do.
	case opDropCF:
		delete(s.cfs, rec.CF)
	case opPut:
		st.tree.ReplaceOrInsert(kv{key: rec.Key, value: rec.Value})
		st.bloom.Add(rec.Key)
	case opDelete:
		st.tree.Delete(kv{key: rec.Key})
	}
}

// Close marks the file clean and releases the OS lock. The in-memory
// index is discarded; a subsequent Open replays the log from scratch.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeDirty(s.file, false); err != nil {
		return err
	}
	s.lock.setFile(nil)
	return s.file.Close()
}

// Begin starts a transaction. Writable transactions take the OS-level
// exclusive lock plus the in-process write lock and clone every
// partition's tree and bloom filter (cheap structural-sharing clones),
// staging writes privately until Commit appends them to the log and
// swaps them into the store. Read-only transactions take the read lock
// and share the live trees directly, the same split store/memstore uses.
func (s *Store) Begin(readOnly bool) (store.Txn, error) {
	if readOnly {
		s.mu.RLock()
		cfs := make(map[string]*cfState, len(s.cfs))
		for name, st := range s.cfs {
			cfs[name] = st
		}
		return &txn{store: s, readOnly: true, cfs: cfs}, nil
	}

	if err := s.lock.Lock(LockExclusive); err != nil {
		return nil, err
	}
	s.mu.Lock()
	cfs := make(map[string]*cfState, len(s.cfs))
	for name, st := range s.cfs {
		cfs[name] = st.clone()
	}
	return &txn{store: s, readOnly: false, cfs: cfs}, nil
}
