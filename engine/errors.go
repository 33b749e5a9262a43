package engine

import "errors"

var (
	// ErrNotFound is returned when a record does not exist or has
	// expired at the transaction's clock.
	ErrNotFound = errors.New("engine: record not found")

	// ErrDuplicateKey is returned by PutNX when a live record already
	// occupies the primary key.
	ErrDuplicateKey = errors.New("engine: duplicate key")

	// ErrMissingPK is returned when a document has no value at the
	// collection's configured primary-key path.
	ErrMissingPK = errors.New("engine: missing primary key")

	// ErrUnsupportedPKType is returned when the primary-key path holds a
	// value outside the supported leaf types.
	ErrUnsupportedPKType = errors.New("engine: unsupported primary key type")

	// ErrInvalidDocument is returned when a document fails BSON
	// structural validation.
	ErrInvalidDocument = errors.New("engine: invalid document")

	// ErrCorruptIndex is returned when a stored index entry cannot be
	// decoded — treated as fatal for the iterator, not the process.
	ErrCorruptIndex = errors.New("engine: corrupt index entry")
)
