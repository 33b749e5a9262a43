package mutation

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Spec is a parsed mutation document, ready to apply to many documents
// without re-parsing.
type Spec struct {
	sets    map[string]bson.RawValue
	unsets  map[string]bool
	incs    map[string]bson.RawValue
	pushes  map[string]bson.RawValue
	lpushes map[string]bson.RawValue
	pops    map[string]bool
	renames map[string]string
}

// Parse compiles a mutation document: $set, $unset, $inc, $rename,
// $push, $lpush, $pop each take a sub-document mapping field paths to
// operands ($rename's operand is the new field name); a bare top-level
// field not matching a known operator is an implicit $set. Any path
// touching "_id" is a parse error.
func Parse(spec bson.Raw) (*Spec, error) {
	s := &Spec{
		sets:    map[string]bson.RawValue{},
		unsets:  map[string]bool{},
		incs:    map[string]bson.RawValue{},
		pushes:  map[string]bson.RawValue{},
		lpushes: map[string]bson.RawValue{},
		pops:    map[string]bool{},
		renames: map[string]string{},
	}
	elems, err := spec.Elements()
	if err != nil {
		return nil, ErrParse
	}
	for _, elem := range elems {
		key, err := elem.KeyErr()
		if err != nil {
			return nil, ErrParse
		}
		val, err := elem.ValueErr()
		if err != nil {
			return nil, ErrParse
		}
		switch key {
		case "$set":
			if err := fillOperands(val, s.sets); err != nil {
				return nil, err
			}
		case "$unset":
			if err := fillFlags(val, s.unsets); err != nil {
				return nil, err
			}
		case "$inc":
			if err := fillOperands(val, s.incs); err != nil {
				return nil, err
			}
		case "$push":
			if err := fillOperands(val, s.pushes); err != nil {
				return nil, err
			}
		case "$lpush":
			if err := fillOperands(val, s.lpushes); err != nil {
				return nil, err
			}
		case "$pop":
			if err := fillFlags(val, s.pops); err != nil {
				return nil, err
			}
		case "$rename":
			if err := fillRenames(val, s.renames); err != nil {
				return nil, err
			}
		default:
			if strings.HasPrefix(key, "$") {
				return nil, ErrParse // unknown operator
			}
			if err := checkNotID(key); err != nil {
				return nil, err
			}
			s.sets[key] = val
		}
	}
	return s, nil
}

func fillOperands(val bson.RawValue, into map[string]bson.RawValue) error {
	if val.Type != bsontype.EmbeddedDocument {
		return ErrParse
	}
	doc, err := val.Document()
	if err != nil {
		return ErrParse
	}
	elems, err := doc.Elements()
	if err != nil {
		return ErrParse
	}
	for _, elem := range elems {
		key, err := elem.KeyErr()
		if err != nil {
			return ErrParse
		}
		if err := checkNotID(key); err != nil {
			return err
		}
		v, err := elem.ValueErr()
		if err != nil {
			return ErrParse
		}
		into[key] = v
	}
	return nil
}

func fillFlags(val bson.RawValue, into map[string]bool) error {
	if val.Type != bsontype.EmbeddedDocument {
		return ErrParse
	}
	doc, err := val.Document()
	if err != nil {
		return ErrParse
	}
	elems, err := doc.Elements()
	if err != nil {
		return ErrParse
	}
	for _, elem := range elems {
		key, err := elem.KeyErr()
		if err != nil {
			return ErrParse
		}
		if err := checkNotID(key); err != nil {
			return err
		}
		into[key] = true
	}
	return nil
}

func fillRenames(val bson.RawValue, into map[string]string) error {
	if val.Type != bsontype.EmbeddedDocument {
		return ErrParse
	}
	doc, err := val.Document()
	if err != nil {
		return ErrParse
	}
	elems, err := doc.Elements()
	if err != nil {
		return ErrParse
	}
	for _, elem := range elems {
		key, err := elem.KeyErr()
		if err != nil {
			return ErrParse
		}
		v, err := elem.ValueErr()
		if err != nil || v.Type != bsontype.String {
			return ErrParse
		}
		newName := v.StringValue()
		if err := checkNotID(key); err != nil {
			return err
		}
		if err := checkNotID(newName); err != nil {
			return err
		}
		into[key] = newName
	}
	return nil
}

func checkNotID(path string) error {
	if firstSegment(path) == "_id" {
		return ErrMutateID
	}
	return nil
}

func firstSegment(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}
