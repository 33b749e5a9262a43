package expr

import "errors"

// ErrParse is returned when a filter document cannot be parsed: an
// unknown top-level or field operator, a malformed $regex/$options pair,
// or an operator sub-document mixing $-prefixed and plain keys.
var ErrParse = errors.New("expr: invalid filter")
