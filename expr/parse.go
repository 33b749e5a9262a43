package expr

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Parse compiles a filter document into an expression tree. Multiple
// top-level entries fold into an And; {"field": v} with v not an
// operator sub-document becomes Eq(field, v); operator sub-documents
// ({"$gt": v, "$lte": w}) expand into one clause per operator; $and/$or
// take arrays of sub-filter documents.
func Parse(filter bson.Raw) (Node, error) {
	elems, err := filter.Elements()
	if err != nil {
		return nil, ErrParse
	}
	var clauses []Node
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
		case "$and":
			subs, err := parseSubfilters(val)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, &And{Clauses: subs})
		case "$or":
			subs, err := parseSubfilters(val)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, &Or{Clauses: subs})
		default:
			n, err := parseField(key, val)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, n)
		}
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return &And{Clauses: clauses}, nil
}

func parseSubfilters(val bson.RawValue) ([]Node, error) {
	if val.Type != bsontype.Array {
		return nil, ErrParse
	}
	arr, err := val.Array()
	if err != nil {
		return nil, ErrParse
	}
	values, err := arr.Values()
	if err != nil {
		return nil, ErrParse
	}
	out := make([]Node, 0, len(values))
	for _, v := range values {
		if v.Type != bsontype.EmbeddedDocument {
			return nil, ErrParse
		}
		doc, err := v.Document()
		if err != nil {
			return nil, ErrParse
		}
		n, err := Parse(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseField(field string, val bson.RawValue) (Node, error) {
	if val.Type != bsontype.EmbeddedDocument {
		return &Eq{Field: field, Value: val}, nil
	}
	doc, err := val.Document()
	if err != nil {
		return nil, ErrParse
	}
	elems, err := doc.Elements()
	if err != nil {
		return nil, ErrParse
	}
	if len(elems) == 0 || !isOperatorKey(elems[0]) {
		// A literal nested document to match by equality.
		return &Eq{Field: field, Value: val}, nil
	}

	var pattern string
	var hasPattern bool
	var options string
	var clauses []Node
	for _, elem := range elems {
		key, err := elem.KeyErr()
		if err != nil {
			return nil, ErrParse
		}
		if !isOperatorKey(elem) {
			return nil, ErrParse
		}
		opVal, err := elem.ValueErr()
		if err != nil {
			return nil, ErrParse
		}
		switch key {
		case "$eq":
			clauses = append(clauses, &Eq{Field: field, Value: opVal})
		case "$gt":
			clauses = append(clauses, &Cmp{Op: OpGt, Field: field, Value: opVal})
		case "$gte":
			clauses = append(clauses, &Cmp{Op: OpGte, Field: field, Value: opVal})
		case "$lt":
			clauses = append(clauses, &Cmp{Op: OpLt, Field: field, Value: opVal})
		case "$lte":
			clauses = append(clauses, &Cmp{Op: OpLte, Field: field, Value: opVal})
		case "$exists":
			if opVal.Type != bsontype.Boolean {
				return nil, ErrParse
			}
			clauses = append(clauses, &Exists{Field: field, Want: opVal.Boolean()})
		case "$regex":
			switch opVal.Type {
			case bsontype.String:
				pattern = opVal.StringValue()
			case bsontype.Regex:
				p, o := opVal.Regex()
				pattern = p
				if options == "" {
					options = o
				}
			default:
				return nil, ErrParse
			}
			hasPattern = true
		case "$options":
			if opVal.Type != bsontype.String {
				return nil, ErrParse
			}
			options = opVal.StringValue()
		default:
			return nil, ErrParse
		}
	}
	if hasPattern {
		re, err := compileRegex(pattern, options)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, &Regex{Field: field, Re: re})
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return &And{Clauses: clauses}, nil
}

func isOperatorKey(elem bson.RawElement) bool {
	key, err := elem.KeyErr()
	if err != nil || key == "" {
		return false
	}
	return key[0] == '$'
}
