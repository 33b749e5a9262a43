// Package store defines the abstract ordered key-value interface the
// engine is built on: named partitions ("CFs") of totally ordered
// bytes-to-bytes maps, scoped to a transaction that is either read-only
// (a consistent snapshot) or writable (single-writer, atomic commit).
//
// Concrete backends live in sub-packages (memstore, filestore); this
// package constrains only the contract they must honor.
package store

import (
	"errors"
	"fmt"
	"iter"
)

// ErrReadOnly is returned when a write operation is attempted against a
// read-only transaction.
var ErrReadOnly = errors.New("store: transaction is read-only")

// ErrTransactionConsumed is returned when an operation is attempted
// against a transaction that has already committed or rolled back.
var ErrTransactionConsumed = errors.New("store: transaction already consumed")

// ErrCFNotFound names a missing partition. Txn.CF creates a partition on
// first use, so neither backend in this module returns it.
var ErrCFNotFound = errors.New("store: partition not found")

// StorageError wraps a backend-specific failure so callers can use
// errors.Is/As while still reporting the underlying detail.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err with the operation name that produced it.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Handle is a resolved, live reference to one partition within a
// transaction.
type Handle interface {
	Name() string
}

// KV is one key/value pair yielded by a prefix scan.
type KV struct {
	Key   []byte
	Value []byte
}

// Txn is a single transaction against a Store. All operations are scoped
// to the CF handles resolved from it. Iterators returned by the scan
// methods are only valid for the lifetime of the transaction.
type Txn interface {
	// CF resolves a handle for an existing partition, or creates one if it
	// does not yet exist (partitions are created lazily on first use,
	// matching engine call sites that assume collection CFs already
	// exist by the time they are addressed).
	CF(name string) (Handle, error)

	// CreateCF explicitly creates a partition. Idempotent.
	CreateCF(name string) (Handle, error)

	// DropCF removes a partition and all its entries.
	DropCF(name string) error

	Get(h Handle, key []byte) (value []byte, ok bool, err error)
	MultiGet(h Handle, keys [][]byte) (values [][]byte, err error)

	Put(h Handle, key, value []byte) error
	PutBatch(h Handle, pairs []KV) error

	Delete(h Handle, key []byte) error
	DeleteBatch(h Handle, keys [][]byte) error

	// ScanPrefix yields every (key, value) pair whose key starts with
	// prefix, in ascending key order.
	ScanPrefix(h Handle, prefix []byte) iter.Seq2[KV, error]

	// ScanPrefixRev is the same scan in descending key order.
	ScanPrefixRev(h Handle, prefix []byte) iter.Seq2[KV, error]

	// ReadOnly reports whether writes to this transaction fail with
	// ErrReadOnly.
	ReadOnly() bool

	Commit() error
	Rollback() error
}

// Store opens transactions against a concrete backend.
type Store interface {
	Begin(readOnly bool) (Txn, error)
	Close() error
}
