package catalog

import "errors"

var (
	// ErrCollectionNotFound is returned when an operation names a
	// collection that has not been created (or was dropped).
	ErrCollectionNotFound = errors.New("catalog: collection not found")

	// ErrCorruptMetadata is returned when a Collection or IndexConfig
	// record fails to decode.
	ErrCorruptMetadata = errors.New("catalog: corrupt metadata")
)
