package executor

import (
	"bytes"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jpl-au/slate/internal/bsonvalue"
	"github.com/zeebo/xxh3"
)

// valueSet is a hash-bucketed set used to dedup doc-ids (for IndexMerge's
// intersection/union) or raw BSON values (for Distinct). Buckets are
// keyed by an xxh3 hash of the encoded key; each bucket holds the exact
// byte keys seen so far, so a collision just means comparing a few extra
// byte slices rather than a wrong answer.
type valueSet struct {
	buckets map[uint64][][]byte
}

func newValueSet() *valueSet {
	return &valueSet{buckets: map[uint64][][]byte{}}
}

func docIDKey(v bsonvalue.Value) []byte {
	key := make([]byte, 1+len(v.Data))
	key[0] = byte(v.Tag)
	copy(key[1:], v.Data)
	return key
}

func rawKey(rv bson.RawValue) []byte {
	key := make([]byte, 1+len(rv.Value))
	key[0] = byte(rv.Type)
	copy(key[1:], rv.Value)
	return key
}

// add inserts key, returning true iff it was already present.
func (s *valueSet) add(key []byte) bool {
	h := xxh3.Hash(key)
	for _, existing := range s.buckets[h] {
		if bytes.Equal(existing, key) {
			return true
		}
	}
	s.buckets[h] = append(s.buckets[h], key)
	return false
}

func (s *valueSet) has(key []byte) bool {
	h := xxh3.Hash(key)
	for _, existing := range s.buckets[h] {
		if bytes.Equal(existing, key) {
			return true
		}
	}
	return false
}
