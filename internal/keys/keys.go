// Package keys implements the typed key schema described in the storage
// layout: a single tag byte plus a `\x00` separator distinguishes the four
// key variants (Collection, IndexConfig, Record, Index), each with its own
// encode and decode. Record and Index keys embed a doc-id using the
// bsonvalue length-prefixed form so the doc-id is self-delimiting.
package keys

import (
	"bytes"
	"errors"

	"github.com/jpl-au/slate/internal/bsonvalue"
)

const (
	tagCollection  = 'c'
	tagIndexConfig = 'x'
	tagRecord      = 'r'
	tagIndex       = 'i'
	sep            = 0x00
)

// ErrMalformed is returned when a key cannot be parsed as any known
// variant — corruption detected while decoding a stored key.
var ErrMalformed = errors.New("keys: malformed key")

// Collection encodes the system-partition key for a collection's metadata:
// c\x00{name}.
func Collection(name string) []byte {
	buf := make([]byte, 0, 2+len(name))
	buf = append(buf, tagCollection, sep)
	buf = append(buf, name...)
	return buf
}

// CollectionPrefix is the scan prefix enumerating every Collection key.
func CollectionPrefix() []byte {
	return []byte{tagCollection, sep}
}

// DecodeCollection parses a Collection key, returning the collection name.
func DecodeCollection(key []byte) (name string, err error) {
	if len(key) < 2 || key[0] != tagCollection || key[1] != sep {
		return "", ErrMalformed
	}
	return string(key[2:]), nil
}

// IndexConfig encodes the system-partition key for a secondary index's
// declaration: x\x00{collection}\x00{field}.
func IndexConfig(collection, field string) []byte {
	buf := make([]byte, 0, 2+len(collection)+1+len(field))
	buf = append(buf, tagIndexConfig, sep)
	buf = append(buf, collection...)
	buf = append(buf, sep)
	buf = append(buf, field...)
	return buf
}

// IndexConfigPrefix enumerates every IndexConfig key for a collection.
func IndexConfigPrefix(collection string) []byte {
	buf := make([]byte, 0, 2+len(collection)+1)
	buf = append(buf, tagIndexConfig, sep)
	buf = append(buf, collection...)
	buf = append(buf, sep)
	return buf
}

// DecodeIndexConfig parses an IndexConfig key into (collection, field).
func DecodeIndexConfig(key []byte) (collection, field string, err error) {
	if len(key) < 2 || key[0] != tagIndexConfig || key[1] != sep {
		return "", "", ErrMalformed
	}
	rest := key[2:]
	i := bytes.IndexByte(rest, sep)
	if i < 0 {
		return "", "", ErrMalformed
	}
	return string(rest[:i]), string(rest[i+1:]), nil
}

// Record encodes a document's key: r\x00{collection}\x00{docId_lp}.
func Record(collection string, docID bsonvalue.Value) []byte {
	lp := bsonvalue.EncodeLengthPrefixed(docID)
	buf := make([]byte, 0, 2+len(collection)+1+len(lp))
	buf = append(buf, tagRecord, sep)
	buf = append(buf, collection...)
	buf = append(buf, sep)
	buf = append(buf, lp...)
	return buf
}

// RecordPrefix enumerates every Record key in a collection, in doc-id order.
func RecordPrefix(collection string) []byte {
	buf := make([]byte, 0, 2+len(collection)+1)
	buf = append(buf, tagRecord, sep)
	buf = append(buf, collection...)
	buf = append(buf, sep)
	return buf
}

// DecodeRecord parses a Record key into (collection, docID).
func DecodeRecord(key []byte) (collection string, docID bsonvalue.Value, err error) {
	if len(key) < 2 || key[0] != tagRecord || key[1] != sep {
		return "", bsonvalue.Value{}, ErrMalformed
	}
	rest := key[2:]
	i := bytes.IndexByte(rest, sep)
	if i < 0 {
		return "", bsonvalue.Value{}, ErrMalformed
	}
	collection = string(rest[:i])
	v, tail, err := bsonvalue.DecodeLengthPrefixed(rest[i+1:])
	if err != nil || len(tail) != 0 {
		return "", bsonvalue.Value{}, ErrMalformed
	}
	return collection, v, nil
}

// Index encodes a value-first secondary-index entry:
// i\x00{collection}\x00{field}\x00{valueBytes}{docId_lp}. valueBytes is the
// sortable encoding of the indexed value (bsonvalue.Value.Data); there is
// deliberately no separator between valueBytes and the doc-id, since the
// doc-id's length prefix makes it self-delimiting regardless of what bytes
// valueBytes contains.
func Index(collection, field string, valueBytes []byte, docID bsonvalue.Value) []byte {
	lp := bsonvalue.EncodeLengthPrefixed(docID)
	buf := make([]byte, 0, 2+len(collection)+1+len(field)+1+len(valueBytes)+len(lp))
	buf = append(buf, tagIndex, sep)
	buf = append(buf, collection...)
	buf = append(buf, sep)
	buf = append(buf, field...)
	buf = append(buf, sep)
	buf = append(buf, valueBytes...)
	buf = append(buf, lp...)
	return buf
}

// IndexCollectionPrefix enumerates every index entry for a collection,
// across all fields: i\x00{collection}\x00.
func IndexCollectionPrefix(collection string) []byte {
	buf := make([]byte, 0, 2+len(collection)+1)
	buf = append(buf, tagIndex, sep)
	buf = append(buf, collection...)
	buf = append(buf, sep)
	return buf
}

// IndexFieldPrefix enumerates an entire index (all values, all doc-ids) in
// value order: i\x00{collection}\x00{field}\x00.
func IndexFieldPrefix(collection, field string) []byte {
	buf := make([]byte, 0, 2+len(collection)+1+len(field)+1)
	buf = append(buf, tagIndex, sep)
	buf = append(buf, collection...)
	buf = append(buf, sep)
	buf = append(buf, field...)
	buf = append(buf, sep)
	return buf
}

// IndexValuePrefix enumerates exact-match entries for one value:
// i\x00{collection}\x00{field}\x00{valueBytes}.
func IndexValuePrefix(collection, field string, valueBytes []byte) []byte {
	buf := make([]byte, 0, 2+len(collection)+1+len(field)+1+len(valueBytes))
	buf = append(buf, IndexFieldPrefix(collection, field)...)
	buf = append(buf, valueBytes...)
	return buf
}

const lpHeaderSize = 3 // 1 type byte + 2 length bytes

// DecodeIndex parses an Index key into its parts. valueBytes is returned as
// a sub-slice of key (the sortable encoding of the indexed value); docID is
// decoded from the trailing length-prefixed doc-id.
//
// The doc-id tail is located by scanning backwards for the rightmost byte
// offset at which a length-prefixed value parses and consumes exactly to
// the end of the key. Because the engine only ever writes one true
// boundary, and entries are scanned from the right, this recovers it
// without needing a separator that would otherwise constrain valueBytes.
func DecodeIndex(key []byte) (collection, field string, valueBytes []byte, docID bsonvalue.Value, err error) {
	if len(key) < 2 || key[0] != tagIndex || key[1] != sep {
		return "", "", nil, bsonvalue.Value{}, ErrMalformed
	}
	rest := key[2:]
	firstSep := bytes.IndexByte(rest, sep)
	if firstSep < 0 {
		return "", "", nil, bsonvalue.Value{}, ErrMalformed
	}
	collection = string(rest[:firstSep])
	afterCollection := rest[firstSep+1:]
	secondSep := bytes.IndexByte(afterCollection, sep)
	if secondSep < 0 {
		return "", "", nil, bsonvalue.Value{}, ErrMalformed
	}
	field = string(afterCollection[:secondSep])
	tail := afterCollection[secondSep+1:]

	valueBytes, docID, err = splitTrailingDocID(tail)
	if err != nil {
		return "", "", nil, bsonvalue.Value{}, err
	}
	return collection, field, valueBytes, docID, nil
}

func splitTrailingDocID(b []byte) (valueBytes []byte, docID bsonvalue.Value, err error) {
	if len(b) < lpHeaderSize {
		return nil, bsonvalue.Value{}, ErrMalformed
	}
	for start := len(b) - lpHeaderSize; start >= 0; start-- {
		candidate := b[start:]
		v, tail, derr := bsonvalue.DecodeLengthPrefixed(candidate)
		if derr == nil && len(tail) == 0 {
			return b[:start], v, nil
		}
	}
	return nil, bsonvalue.Value{}, ErrMalformed
}
