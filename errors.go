package slate

import "errors"

// ErrUpsertFilterNotEquality is returned by UpdateOne(upsert=true) when
// filter is something other than a bare equality or an And of them, and
// so cannot be turned into a seed document for the insert side of the
// upsert.
var ErrUpsertFilterNotEquality = errors.New("slate: upsert filter must be a conjunction of equality matches")
