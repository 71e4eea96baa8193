package swapspace

import "fmt"

// ReadPin is a short-lived, scoped acquisition guaranteeing an object's
// in-memory presence and immovability for read access. Release it as
// soon as the value is no longer needed; it must not outlive the
// owning Space.
type ReadPin[T Payload] struct {
	obj   *object
	value T
}

// Value returns the pinned target. Callers must not mutate it through
// a read pin.
func (p *ReadPin[T]) Value() T { return p.value }

// Release drops the pin. An error here means the object died on this
// drop (refcount and pincount both reached zero) and dying failed — a
// genuine backing-store failure during deallocation that callers must
// not ignore.
func (p *ReadPin[T]) Release() error {
	if p == nil || p.obj == nil {
		return nil
	}
	err := p.obj.unpinRead()
	p.obj = nil
	return err
}

// WritePin is a short-lived, scoped, exclusive acquisition guaranteeing
// an object's in-memory presence and immovability for write access.
// Obtaining one marks the object dirty.
type WritePin[T Payload] struct {
	obj   *object
	value T
}

// Value returns the pinned target, mutable in place.
func (p *WritePin[T]) Value() T { return p.value }

// Release drops the pin. See ReadPin.Release for the meaning of a
// non-nil return.
func (p *WritePin[T]) Release() error {
	if p == nil || p.obj == nil {
		return nil
	}
	err := p.obj.unpinWrite()
	p.obj = nil
	return err
}

func (o *object) unpinRead() error {
	if o.pincount <= 0 {
		panic(&ContractViolationError{Reason: "release of a read pin on an object with zero pincount"})
	}
	o.pincount--
	if err := o.space.maybeKill(o); err != nil {
		return fmt.Errorf("swapspace: release read pin on object %d: %w", o.id, err)
	}
	return nil
}

func (o *object) unpinWrite() error {
	if o.pincount <= 0 || !o.writePinned {
		panic(&ContractViolationError{Reason: "release of a write pin on an object not write-pinned"})
	}
	o.pincount--
	o.writePinned = false
	if err := o.space.maybeKill(o); err != nil {
		return fmt.Errorf("swapspace: release write pin on object %d: %w", o.id, err)
	}
	return nil
}
