package swapspace

import "fmt"

// ErrNotFound is returned for lookups against an unknown object. An
// absent root is reported by GetRoot's ok result instead.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "swapspace: not found" }

// CorruptionError reports that a deserialized object's reconstructed
// referent tally disagrees with its stored ondiskReferents, or that a
// referent ID referenced by the directory is missing. This is a fatal,
// unrecoverable condition.
type CorruptionError struct {
	ObjectID ID
	Reason   string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("swapspace: corruption in object %d: %s", e.ObjectID, e.Reason)
}

// ContractViolationError reports a programming-bug-level invariant
// break: a pin outliving the space, a drop of a pinned object, a
// negative pincount/refcount, or a conflicting read/write pin. These
// are fatal.
type ContractViolationError struct {
	Reason string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("swapspace: contract violation: %s", e.Reason)
}
