// Package record implements the on-disk shapes for document records and
// secondary-index entries: the record codec (header byte + optional TTL +
// BSON body) and the index-entry metadata codec (type byte + optional
// TTL), both designed so expiry can be checked with one integer compare
// without parsing BSON.
package record

import (
	"encoding/binary"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// ErrMalformed is returned when record or index-entry bytes are too short
// or carry an unrecognized header byte.
var ErrMalformed = errors.New("record: malformed record bytes")

const (
	headerNoTTL   = 0x00
	headerWithTTL = 0x01
)

// Encode produces the stored byte form of a document: [0x00][doc] with no
// TTL, or [0x01][ttl millis, little-endian i64][doc] when ttl is non-nil.
func Encode(doc bson.Raw, ttl *int64) []byte {
	if ttl == nil {
		out := make([]byte, 1+len(doc))
		out[0] = headerNoTTL
		copy(out[1:], doc)
		return out
	}
	out := make([]byte, 1+8+len(doc))
	out[0] = headerWithTTL
	binary.LittleEndian.PutUint64(out[1:9], uint64(*ttl))
	copy(out[9:], doc)
	return out
}

// Decode splits stored record bytes back into the document body and its
// optional TTL.
func Decode(data []byte) (doc bson.Raw, ttl *int64, err error) {
	if len(data) < 1 {
		return nil, nil, ErrMalformed
	}
	switch data[0] {
	case headerNoTTL:
		return bson.Raw(data[1:]), nil, nil
	case headerWithTTL:
		if len(data) < 9 {
			return nil, nil, ErrMalformed
		}
		t := int64(binary.LittleEndian.Uint64(data[1:9]))
		return bson.Raw(data[9:]), &t, nil
	default:
		return nil, nil, ErrMalformed
	}
}

// IsExpired performs the O(1) expiry check on stored record bytes without
// decoding the BSON body: a record with no TTL header is never expired; a
// record with a TTL header is expired once nowMillis reaches it.
func IsExpired(data []byte, nowMillis int64) bool {
	if len(data) < 1 || data[0] != headerWithTTL {
		return false
	}
	if len(data) < 9 {
		return false
	}
	ttl := int64(binary.LittleEndian.Uint64(data[1:9]))
	return nowMillis >= ttl
}

// EncodeIndexMeta produces the metadata bytes stored alongside an index
// key: [type byte] with no TTL, or [type byte][ttl millis LE i64] (9 bytes
// total) when ttl is non-nil. tag is the BSON type of the indexed value,
// needed to reconstruct it from the key's raw value bytes.
func EncodeIndexMeta(tag bsontype.Type, ttl *int64) []byte {
	if ttl == nil {
		return []byte{byte(tag)}
	}
	out := make([]byte, 9)
	out[0] = byte(tag)
	binary.LittleEndian.PutUint64(out[1:9], uint64(*ttl))
	return out
}

// DecodeIndexMeta parses index-entry metadata into the indexed value's
// type tag and its optional TTL.
func DecodeIndexMeta(meta []byte) (tag bsontype.Type, ttl *int64, err error) {
	if len(meta) < 1 {
		return 0, nil, ErrMalformed
	}
	tag = bsontype.Type(meta[0])
	if len(meta) == 1 {
		return tag, nil, nil
	}
	if len(meta) < 9 {
		return 0, nil, ErrMalformed
	}
	t := int64(binary.LittleEndian.Uint64(meta[1:9]))
	return tag, &t, nil
}

// IsIndexExpired performs the O(1) expiry check on index-entry metadata:
// 1-byte metadata (no TTL) is never expired; 9-byte metadata is expired
// once nowMillis reaches the stored TTL.
func IsIndexExpired(meta []byte, nowMillis int64) bool {
	const ttlOffset = 1
	const withTTLSize = 9
	if len(meta) < withTTLSize {
		return false
	}
	ttl := int64(binary.LittleEndian.Uint64(meta[ttlOffset:withTTLSize]))
	return nowMillis >= ttl
}
