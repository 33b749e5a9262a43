// Package expr implements the filter expression model: the AST produced
// by parsing a Mongo-style filter document, and its match semantics
// against a BSON document (numeric promotion, string/number coercion,
// UTC-millis/epoch-seconds/RFC3339 datetime coercion, array
// any-element matching).
package expr

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Node is one node of a parsed filter expression.
type Node interface {
	Eval(doc bson.Raw) (bool, error)
}

// And matches iff every clause matches. An empty And matches everything.
type And struct{ Clauses []Node }

// Or matches iff any clause matches. An empty Or matches nothing.
type Or struct{ Clauses []Node }

// Eq matches a field against a literal value, with the coercions
// described in Compare. A Null value matches both an absent field and an
// explicit null.
type Eq struct {
	Field string
	Value bson.RawValue
}

// CmpOp selects a comparison operator for Cmp.
type CmpOp int

const (
	OpGt CmpOp = iota
	OpGte
	OpLt
	OpLte
)

// Cmp matches a field against a literal value using Op, with the same
// coercions as Eq.
type Cmp struct {
	Op    CmpOp
	Field string
	Value bson.RawValue
}

// Regex matches a field's string value(s) against a compiled pattern.
// Non-string field values never match.
type Regex struct {
	Field string
	Re    *regexp.Regexp
}

// Exists matches on physical presence of the field path, ignoring value
// (including an explicit null, which still counts as present).
type Exists struct {
	Field string
	Want  bool
}

func (n *And) Eval(doc bson.Raw) (bool, error) {
	for _, c := range n.Clauses {
		ok, err := c.Eval(doc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (n *Or) Eval(doc bson.Raw) (bool, error) {
	for _, c := range n.Clauses {
		ok, err := c.Eval(doc)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (n *Eq) Eval(doc bson.Raw) (bool, error) {
	values := resolveField(doc, n.Field)
	if n.Value.Type == bsontype.Null {
		if len(values) == 0 {
			return true, nil
		}
		for _, v := range values {
			if v.Type == bsontype.Null {
				return true, nil
			}
		}
		return false, nil
	}
	for _, v := range values {
		if c, ok := Compare(v, n.Value); ok && c == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (n *Cmp) Eval(doc bson.Raw) (bool, error) {
	for _, v := range resolveField(doc, n.Field) {
		c, ok := Compare(v, n.Value)
		if !ok {
			continue
		}
		switch n.Op {
		case OpGt:
			if c > 0 {
				return true, nil
			}
		case OpGte:
			if c >= 0 {
				return true, nil
			}
		case OpLt:
			if c < 0 {
				return true, nil
			}
		case OpLte:
			if c <= 0 {
				return true, nil
			}
		}
	}
	return false, nil
}

func (n *Regex) Eval(doc bson.Raw) (bool, error) {
	for _, v := range resolveField(doc, n.Field) {
		if v.Type != bsontype.String {
			continue
		}
		if n.Re.MatchString(v.StringValue()) {
			return true, nil
		}
	}
	return false, nil
}

func (n *Exists) Eval(doc bson.Raw) (bool, error) {
	return fieldPresent(doc, n.Field) == n.Want, nil
}
