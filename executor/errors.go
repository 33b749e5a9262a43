package executor

import "errors"

// ErrUnsupportedNode is returned if Run is given a planner.Node variant
// it doesn't know how to execute — a defensive backstop, since planner
// and executor are meant to agree on the full Node set at compile time.
var ErrUnsupportedNode = errors.New("executor: unsupported plan node")
