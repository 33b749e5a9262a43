package mutation

import "errors"

var (
	// ErrParse is returned when a mutation document is malformed: an
	// unknown operator, a non-document operator value, or a non-string
	// $rename target.
	ErrParse = errors.New("mutation: invalid mutation document")

	// ErrMutateID is returned when any operator names the primary-key
	// field "_id".
	ErrMutateID = errors.New("mutation: _id is immutable")

	// ErrNonDocumentIntermediate is returned when a dotted path descends
	// through a field that holds a non-document value (an array counts as
	// one), for an operator that does not create intermediate structure.
	ErrNonDocumentIntermediate = errors.New("mutation: path crosses a non-document value")

	// ErrNotNumeric is returned when $inc names a field whose existing or
	// operand value is not numeric.
	ErrNotNumeric = errors.New("mutation: $inc requires a numeric value")

	// ErrNotArray is returned when $push/$lpush/$pop names a field whose
	// existing value is present but not an array.
	ErrNotArray = errors.New("mutation: expected an array value")
)
