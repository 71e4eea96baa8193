package swapspace

import (
	"fmt"

	"betreestore/storage/cache"
)

// Handle is a logical, reference-counted pointer to a swappable
// object of payload type T. It never owns T directly — only an ID and
// a non-owning back-reference to the space that owns the object table.
//
// Go has no destructors, so the copy/drop discipline this implies is
// made explicit: Clone bumps the refcount (use when storing a second
// copy of the handle somewhere), and Close drops it (use when a field
// or local holding the handle goes out of scope). The zero Handle[T]
// is a valid "no object" value, analogous to a nil pointer.
type Handle[T Payload] struct {
	id    ID
	space *Space
}

// ObjectID returns the handle's underlying object ID, or 0 for the zero
// Handle.
func (h Handle[T]) ObjectID() ID { return h.id }

// IsZero reports whether this handle refers to no object.
func (h Handle[T]) IsZero() bool { return h.id == 0 }

// Clone returns a new Handle sharing the same object, with the
// refcount incremented to reflect the new owning reference.
func (h Handle[T]) Clone() Handle[T] {
	if h.id != 0 {
		h.space.incRef(h.id)
	}
	return h
}

// Close drops this handle's reference. If this was the last reference
// and the object is unpinned, the object dies: its blob is released and
// every on-disk referent's refcount is decremented in turn.
func (h Handle[T]) Close() error {
	if h.id == 0 {
		return nil
	}
	return h.space.decRef(h.id)
}

// Peek reports whether the handle's target is currently resident in
// memory, and if so, whether it is dirty — without pinning or loading
// it. The B^ε-tree's flush algorithm uses this to decide whether
// dirtying an already-dirty child is free (the batch-to-dirty
// optimization).
func (h Handle[T]) Peek() (resident bool, dirty bool) {
	if h.id == 0 {
		return false, false
	}
	obj, err := h.space.resolve(h.id)
	if err != nil {
		return false, false
	}
	return obj.target != nil, obj.dirty
}

// PinForRead acquires a read pin: the target is loaded if absent and
// guaranteed resident and immutable for the pin's lifetime. Read pins
// may coexist with other read pins on the same object, but not with a
// write pin.
func (h Handle[T]) PinForRead() (*ReadPin[T], error) {
	obj, err := h.space.resolve(h.id)
	if err != nil {
		return nil, err
	}
	if obj.writePinned {
		panic(&ContractViolationError{Reason: "read pin requested on a write-pinned object"})
	}
	if err := h.space.ensureLoaded(obj); err != nil {
		return nil, err
	}
	t, ok := obj.target.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("swapspace: object %d holds %T, want %T", obj.id, obj.target, zero)
	}
	obj.pincount++
	if err := h.space.cacheMgr.NoteRead(cache.ID(obj.id), obj); err != nil {
		obj.pincount--
		return nil, fmt.Errorf("swapspace: note read on object %d: %w", obj.id, err)
	}
	return &ReadPin[T]{obj: obj, value: t}, nil
}

// PinForWrite acquires an exclusive write pin: the target is loaded if
// absent, marked dirty, and guaranteed resident and immovable for the
// pin's lifetime. Only one pin — read or write — may be outstanding on
// an object pinned for write.
func (h Handle[T]) PinForWrite() (*WritePin[T], error) {
	obj, err := h.space.resolve(h.id)
	if err != nil {
		return nil, err
	}
	if obj.pincount > 0 {
		panic(&ContractViolationError{Reason: "write pin requested on an already-pinned object"})
	}
	if err := h.space.ensureLoaded(obj); err != nil {
		return nil, err
	}
	t, ok := obj.target.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("swapspace: object %d holds %T, want %T", obj.id, obj.target, zero)
	}
	obj.pincount++
	obj.writePinned = true
	obj.dirty = true
	if err := h.space.cacheMgr.NoteWrite(cache.ID(obj.id), obj); err != nil {
		obj.pincount--
		obj.writePinned = false
		obj.dirty = false
		return nil, fmt.Errorf("swapspace: note write on object %d: %w", obj.id, err)
	}
	return &WritePin[T]{obj: obj, value: t}, nil
}
