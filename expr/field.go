package expr

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// ExtractField resolves a dot-path against doc the same way a filter
// predicate would, implicitly expanding arrays along the path. It's
// exported for executor's Distinct and non-covered-projection stages,
// which need the identical "array means any/all matching elements"
// semantics outside of evaluating a predicate.
func ExtractField(doc bson.Raw, path string) []bson.RawValue {
	return resolveField(doc, path)
}

// resolveField resolves a dot-path against doc, implicitly expanding any
// array encountered along the way (including at the leaf): the result
// holds one entry per matching value, so a predicate matches the field
// iff it matches any entry. This differs deliberately from
// internal/bsonvalue's field walker, which only expands an array when the
// path explicitly names it with "[]" — that walker serves index
// declarations, where array expansion must be an explicit, auditable
// choice; a query filter instead follows the document shape as given,
// matching ordinary Mongo-style query semantics.
func resolveField(doc bson.Raw, path string) []bson.RawValue {
	segs := strings.Split(path, ".")
	rv, err := doc.LookupErr(segs[0])
	if err != nil {
		return nil
	}
	return expandPath(rv, segs[1:])
}

func expandPath(rv bson.RawValue, rest []string) []bson.RawValue {
	if len(rest) == 0 {
		if rv.Type != bsontype.Array {
			return []bson.RawValue{rv}
		}
		arr, err := rv.Array()
		if err != nil {
			return []bson.RawValue{rv}
		}
		values, err := arr.Values()
		if err != nil {
			return []bson.RawValue{rv}
		}
		return values
	}
	switch rv.Type {
	case bsontype.EmbeddedDocument:
		sub, err := rv.Document()
		if err != nil {
			return nil
		}
		next, err := sub.LookupErr(rest[0])
		if err != nil {
			return nil
		}
		return expandPath(next, rest[1:])
	case bsontype.Array:
		arr, err := rv.Array()
		if err != nil {
			return nil
		}
		values, err := arr.Values()
		if err != nil {
			return nil
		}
		var out []bson.RawValue
		for _, elem := range values {
			out = append(out, expandPath(elem, rest)...)
		}
		return out
	default:
		return nil
	}
}

// fieldPresent reports whether path is physically present in doc
// (including an explicit null), traversing only embedded documents — no
// implicit array expansion, matching "$exists checks physical presence
// only".
func fieldPresent(doc bson.Raw, path string) bool {
	_, err := doc.LookupErr(strings.Split(path, ".")...)
	return err == nil
}
