package betree

import "errors"

// ErrNotFound is returned by Query for a key with no live INSERT
// reaching it. Callers should treat it as an expected, recoverable
// outcome, not a failure.
var ErrNotFound = errors.New("betree: key not found")
