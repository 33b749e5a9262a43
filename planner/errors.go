package planner

import "errors"

// ErrEmptyAnd is returned when a filter explicitly contains an empty
// $and (an array with zero sub-filters), which has no sensible query
// meaning distinct from "no filter at all" and is rejected rather than
// silently treated as match-everything.
var ErrEmptyAnd = errors.New("planner: empty $and")
