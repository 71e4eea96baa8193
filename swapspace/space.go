// Package swapspace implements an object-paging layer: a handle factory
// that transparently pages objects between RAM and a pluggable backing
// store, reference-counts and pins them, and can checkpoint the whole
// object graph durably.
//
// Grounded on storage/buffer.BufferManagerImpl: PinPage/UnpinPage
// generalizes into PinForRead/PinForWrite, AllocatePage/FreePage
// generalizes into Allocate/Handle.Close, and the
// PageFrame/LRUReplacementPolicy split generalizes into the
// storage/cache.Manager/Referent capability sets, replacing an
// inheritance hierarchy with composition over small interfaces.
//
// A Space is built around exactly one concrete Payload type, supplied
// as a factory at construction — the betree package is the only caller
// in this module, and it only ever stores *Node[K, V] behind handles,
// so there is no need for the multi-type object registry a fully
// general-purpose swap space would require.
package swapspace

import (
	"bufio"
	"fmt"
	"sort"

	"betreestore/storage/cache"
	"betreestore/storage/store"

	"go.uber.org/zap"
)

// Space owns the in-memory object table, reference counts, and
// checkpoint bookkeeping for one swap space.
type Space struct {
	store    store.BackingStore
	cacheMgr cache.Manager
	factory  func() Payload
	log      *zap.SugaredLogger

	objects map[ID]*object
	nextID  ID
	rootID  ID

	directoryBlob  store.BlobID
	lastCheckpoint map[ID]struct{}
}

// Option configures a Space at construction, following the
// functional-options family of storage/buffer.Option.
type Option func(*Space)

// WithTracer installs a structured logger for lifecycle tracing. The
// default is a no-op logger.
func WithTracer(log *zap.SugaredLogger) Option {
	return func(sp *Space) { sp.log = log }
}

// NewSpace constructs a swap space over backing, using cacheMgr to
// drive residency, and factory to produce a zero-valued Payload when
// deserializing an object whose concrete type isn't otherwise known
// (i.e. on reboot). If backing already holds a root, the directory is
// read back and the object table repopulated with absent targets.
func NewSpace(backing store.BackingStore, cacheMgr cache.Manager, factory func() Payload, opts ...Option) (*Space, error) {
	sp := &Space{
		store:    backing,
		cacheMgr: cacheMgr,
		factory:  factory,
		objects:  make(map[ID]*object),
		nextID:   1,
		log:      nopLogger(),
	}
	for _, opt := range opts {
		opt(sp)
	}

	rootBlob, err := backing.GetRoot()
	if err != nil {
		return nil, fmt.Errorf("swapspace: read backing-store root: %w", err)
	}
	if rootBlob == 0 {
		sp.lastCheckpoint = map[ID]struct{}{}
		return sp, nil
	}
	if err := sp.reboot(rootBlob); err != nil {
		return nil, err
	}
	return sp, nil
}

func nopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func (sp *Space) resolve(id ID) (*object, error) {
	obj, ok := sp.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return obj, nil
}

func (sp *Space) incRef(id ID) {
	obj, ok := sp.objects[id]
	if !ok {
		return
	}
	obj.refcount++
}

func (sp *Space) decRef(id ID) error {
	obj, ok := sp.objects[id]
	if !ok {
		return nil
	}
	if obj.refcount <= 0 {
		panic(&ContractViolationError{Reason: fmt.Sprintf("decRef on object %d with non-positive refcount", id)})
	}
	obj.refcount--
	return sp.maybeKill(obj)
}

// maybeKill kills an object once both refcount and pincount reach zero.
func (sp *Space) maybeKill(obj *object) error {
	if obj.refcount == 0 && obj.pincount == 0 {
		return sp.kill(obj)
	}
	return nil
}

func (sp *Space) kill(obj *object) error {
	if obj.pincount > 0 {
		panic(&ContractViolationError{Reason: fmt.Sprintf("object %d died while pinned", obj.id)})
	}
	if obj.blobID != 0 {
		if err := sp.store.Deallocate(obj.blobID); err != nil {
			return fmt.Errorf("swapspace: deallocate blob for dying object %d: %w", obj.id, err)
		}
	}
	referents := obj.ondiskReferents
	delete(sp.objects, obj.id)
	sp.cacheMgr.NoteDeath(cache.ID(obj.id))
	for refID, count := range referents {
		for i := 0; i < count; i++ {
			if err := sp.decRef(refID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Allocate creates a new object wrapping a fresh, factory-constructed
// Payload, and returns a Handle owning one reference. The target starts
// dirty and not yet backed by any blob -- newly "born."
func Allocate[T Payload](sp *Space) (Handle[T], error) {
	raw := sp.factory()
	t, ok := raw.(T)
	if !ok {
		var zero T
		return Handle[T]{}, fmt.Errorf("swapspace: factory produced %T, want %T", raw, zero)
	}
	id := sp.nextID
	sp.nextID++
	obj := &object{
		id:              id,
		target:          t,
		dirty:           true,
		refcount:        1,
		ondiskReferents: map[ID]int{},
		space:           sp,
	}
	sp.objects[id] = obj
	// The newborn is pinned across NoteBirth so the eviction it may
	// trigger picks some other object.
	obj.pincount++
	err := sp.cacheMgr.NoteBirth(cache.ID(id), obj)
	obj.pincount--
	if err != nil {
		delete(sp.objects, id)
		return Handle[T]{}, fmt.Errorf("swapspace: note birth of object %d: %w", id, err)
	}
	return Handle[T]{id: id, space: sp}, nil
}

// SetRoot publishes h as the handle rooting the persistent graph,
// retaining a reference on it and releasing whatever the space's
// previous root was.
func SetRoot[T Payload](sp *Space, h Handle[T]) error {
	if h.id != 0 {
		sp.incRef(h.id)
	}
	old := sp.rootID
	sp.rootID = h.id
	if old != 0 {
		return sp.decRef(old)
	}
	return nil
}

// GetRoot recovers the handle rooting the persistent graph. ok is false
// if no root has ever been set.
func GetRoot[T Payload](sp *Space) (h Handle[T], ok bool) {
	if sp.rootID == 0 {
		return Handle[T]{}, false
	}
	sp.incRef(sp.rootID)
	return Handle[T]{id: sp.rootID, space: sp}, true
}

// directoryEntry is one row of the persisted directory blob: an
// (id, blob_id, [(referent_id, count)], refcount) tuple.
type directoryEntry struct {
	id        ID
	blobID    store.BlobID
	refcount  int
	referents map[ID]int
}

func (sp *Space) snapshotDirectory() []directoryEntry {
	ids := make([]ID, 0, len(sp.objects))
	for id := range sp.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := make([]directoryEntry, 0, len(ids))
	for _, id := range ids {
		obj := sp.objects[id]
		entries = append(entries, directoryEntry{
			id:        obj.id,
			blobID:    obj.blobID,
			refcount:  obj.refcount,
			referents: obj.ondiskReferents,
		})
	}
	return entries
}

// Checkpoint writes a self-describing, durable image of the entire
// swap-space object graph and flips the backing store's root pointer
// to it.
func (sp *Space) Checkpoint() error {
	if err := sp.cacheMgr.Checkpoint(); err != nil {
		return fmt.Errorf("swapspace: checkpoint clean pass: %w", err)
	}

	current := make(map[ID]struct{}, len(sp.objects))
	for id := range sp.objects {
		sp.incRef(id)
		current[id] = struct{}{}
	}
	for id := range sp.lastCheckpoint {
		if err := sp.decRef(id); err != nil {
			return fmt.Errorf("swapspace: release previous checkpoint reference on object %d: %w", id, err)
		}
	}

	buf := &bufferWriter{}
	if err := writeDirectory(buf, sp); err != nil {
		return fmt.Errorf("swapspace: encode directory: %w", err)
	}

	newBlobID, err := sp.store.Allocate(buf.Len())
	if err != nil {
		return fmt.Errorf("swapspace: allocate directory blob: %w", err)
	}
	stream, err := sp.store.Get(newBlobID)
	if err != nil {
		return fmt.Errorf("swapspace: open directory blob: %w", err)
	}
	if _, err := stream.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("swapspace: write directory blob: %w", err)
	}
	if err := sp.store.Put(stream); err != nil {
		return fmt.Errorf("swapspace: commit directory blob: %w", err)
	}

	oldDirectoryBlob := sp.directoryBlob
	if err := sp.store.SetRoot(newBlobID); err != nil {
		return fmt.Errorf("swapspace: set backing-store root: %w", err)
	}
	if oldDirectoryBlob != 0 {
		if err := sp.store.Deallocate(oldDirectoryBlob); err != nil {
			return fmt.Errorf("swapspace: deallocate previous directory blob: %w", err)
		}
	}

	sp.directoryBlob = newBlobID
	sp.lastCheckpoint = current
	sp.log.Debugw("swapspace: checkpoint", "objects", len(sp.objects), "blob", newBlobID)
	return nil
}

// reboot reads the directory blob and repopulates the object table with
// absent targets.
func (sp *Space) reboot(rootBlob store.BlobID) error {
	stream, err := sp.store.Get(rootBlob)
	if err != nil {
		return fmt.Errorf("swapspace: read directory blob: %w", err)
	}
	r := bufio.NewReader(stream)
	entries, nextID, rootID, err := readDirectory(r)
	if err != nil {
		return fmt.Errorf("swapspace: decode directory blob: %w", err)
	}

	sp.objects = make(map[ID]*object, len(entries))
	current := make(map[ID]struct{}, len(entries))
	for _, e := range entries {
		sp.objects[e.id] = &object{
			id:              e.id,
			blobID:          e.blobID,
			refcount:        e.refcount,
			ondiskReferents: e.referents,
			space:           sp,
		}
		current[e.id] = struct{}{}
	}
	sp.nextID = nextID
	sp.rootID = rootID
	sp.directoryBlob = rootBlob
	sp.lastCheckpoint = current
	return nil
}
