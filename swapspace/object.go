package swapspace

import (
	"bytes"
	"fmt"
	"io"

	"betreestore/storage/cache"
	"betreestore/storage/store"
)

// ID is a swap-space-local, non-zero integer identifier for a
// swappable object. Stable for the object's lifetime and across
// checkpoints. Zero means "no object."
type ID uint64

// object is the swap space's bookkeeping for one swappable value. It
// generalizes PageFrame (storage/buffer/buffermanager_impl.go) from a
// fixed-size page slot to an arbitrary Payload, and folds in the
// refcount/ondisk-referents machinery that makes serialize-on-clean
// reference counting work. Objects never appear outside this package;
// callers only ever hold Handle[T] and pins.
type object struct {
	id      ID
	blobID  store.BlobID
	target  Payload // nil when not resident
	space   *Space

	refcount int
	pincount int
	writePinned bool
	dirty    bool

	// ondiskReferents is the multiset of objects the most recently
	// serialized image of this object refers to — the basis for
	// reference-count correctness across serialization boundaries.
	ondiskReferents map[ID]int
}

// cache.Referent implementation -------------------------------------------------

func (o *object) IsDirty() bool  { return o.dirty }
func (o *object) IsPinned() bool { return o.pincount > 0 }

func (o *object) Clean() error {
	return o.space.clean(o)
}

func (o *object) Evict() error {
	return o.space.evictObject(o)
}

// clean serializes the target, allocates a fresh blob, diffs the
// referent multiset against ondiskReferents to transfer reference
// counts, and releases the old blob.
func (sp *Space) clean(o *object) error {
	if o.target == nil {
		return nil
	}

	buf := &bytes.Buffer{}
	ctx := newSaveContext(buf)
	if err := o.target.Save(ctx); err != nil {
		return fmt.Errorf("swapspace: save object %d: %w", o.id, err)
	}

	newBlobID, err := sp.store.Allocate(buf.Len())
	if err != nil {
		return fmt.Errorf("swapspace: allocate blob for object %d: %w", o.id, err)
	}
	stream, err := sp.store.Get(newBlobID)
	if err != nil {
		return fmt.Errorf("swapspace: open blob %d for object %d: %w", newBlobID, o.id, err)
	}
	if _, err := io.Copy(stream, buf); err != nil {
		return fmt.Errorf("swapspace: write blob %d for object %d: %w", newBlobID, o.id, err)
	}
	if err := sp.store.Put(stream); err != nil {
		return fmt.Errorf("swapspace: commit blob %d for object %d: %w", newBlobID, o.id, err)
	}

	for refID, newCount := range ctx.referents {
		oldCount := o.ondiskReferents[refID]
		for i := oldCount; i < newCount; i++ {
			sp.incRef(refID)
		}
	}
	for refID, oldCount := range o.ondiskReferents {
		newCount := ctx.referents[refID]
		for i := newCount; i < oldCount; i++ {
			if err := sp.decRef(refID); err != nil {
				return err
			}
		}
	}

	oldBlobID := o.blobID
	o.ondiskReferents = ctx.referents
	o.blobID = newBlobID
	o.dirty = false
	if oldBlobID != 0 {
		if err := sp.store.Deallocate(oldBlobID); err != nil {
			return fmt.Errorf("swapspace: deallocate old blob %d for object %d: %w", oldBlobID, o.id, err)
		}
	}
	sp.cacheMgr.NoteClean(cache.ID(o.id))
	return nil
}

// evictObject frees the in-memory target of a clean, unpinned object,
// keeping its blob on disk.
func (sp *Space) evictObject(o *object) error {
	if o.pincount > 0 {
		panic(&ContractViolationError{Reason: fmt.Sprintf("object %d evicted while pinned", o.id)})
	}
	if o.dirty {
		panic(&ContractViolationError{Reason: fmt.Sprintf("object %d evicted while dirty", o.id)})
	}
	o.target = nil
	sp.cacheMgr.NoteEvict(cache.ID(o.id))
	return nil
}

// ensureLoaded deserializes the target from its blob if absent, then
// verifies the reconstructed referent multiset against
// ondiskReferents.
func (sp *Space) ensureLoaded(o *object) error {
	if o.target != nil {
		return nil
	}
	if o.blobID == 0 {
		panic(&CorruptionError{ObjectID: o.id, Reason: "object has no backing blob and no resident target"})
	}

	stream, err := sp.store.Get(o.blobID)
	if err != nil {
		return fmt.Errorf("swapspace: read blob %d for object %d: %w", o.blobID, o.id, err)
	}
	target := sp.factory()
	loadCtx := newLoadContext(stream, sp)
	referents := &referentCollector{}
	loadCtx.collector = referents
	if err := target.Load(loadCtx); err != nil {
		return fmt.Errorf("swapspace: load object %d: %w", o.id, err)
	}

	if !referents.equals(o.ondiskReferents) {
		panic(&CorruptionError{ObjectID: o.id, Reason: "reconstructed referents disagree with ondisk_referents"})
	}

	o.target = target
	// Hold a pin across NoteLoad so the eviction it may trigger cannot
	// pick the object that was just loaded.
	o.pincount++
	err = sp.cacheMgr.NoteLoad(cache.ID(o.id), o)
	o.pincount--
	if err != nil {
		return fmt.Errorf("swapspace: note load of object %d: %w", o.id, err)
	}
	return nil
}
