package swapspace

import (
	"testing"

	"betreestore/storage/cache"
	"betreestore/storage/store"

	"github.com/stretchr/testify/require"
)

// counter is a minimal Payload for exercising the swap space
// independently of the betree package: an int value plus an optional
// reference to another counter object, so tests can exercise
// ondiskReferents reconciliation.
type counter struct {
	value int
	child Handle[*counter]
}

func (c *counter) Save(ctx *SaveContext) error {
	if err := ctx.WriteUint64(uint64(c.value)); err != nil {
		return err
	}
	return ctx.SaveHandle(c.child)
}

func (c *counter) Load(ctx *LoadContext) error {
	v, err := ctx.ReadUint64()
	if err != nil {
		return err
	}
	c.value = int(v)
	child, err := LoadHandle[*counter](ctx)
	if err != nil {
		return err
	}
	c.child = child
	return nil
}

func newTestSpace(t *testing.T, cacheSize int) *Space {
	t.Helper()
	backing, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	cacheMgr := cache.NewLRU(cacheSize, nil)
	sp, err := NewSpace(backing, cacheMgr, func() Payload { return &counter{} })
	require.NoError(t, err)
	return sp
}

func TestAllocateWriteReadRoundTrip(t *testing.T) {
	sp := newTestSpace(t, 4)
	h, err := Allocate[*counter](sp)
	require.NoError(t, err)

	pin, err := h.PinForWrite()
	require.NoError(t, err)
	pin.Value().value = 42
	require.NoError(t, pin.Release())

	rpin, err := h.PinForRead()
	require.NoError(t, err)
	require.Equal(t, 42, rpin.Value().value)
	require.NoError(t, rpin.Release())

	require.NoError(t, h.Close())
}

// Invariant 7 (cache discipline): with a cache size smaller than the
// number of live objects, residency is bounded but reads after
// eviction still return the correct, durable value.
func TestEvictionThenReload(t *testing.T) {
	sp := newTestSpace(t, 2)
	var handles []Handle[*counter]
	for i := 0; i < 10; i++ {
		h, err := Allocate[*counter](sp)
		require.NoError(t, err)
		pin, err := h.PinForWrite()
		require.NoError(t, err)
		pin.Value().value = i
		require.NoError(t, pin.Release())
		handles = append(handles, h)
	}

	for i, h := range handles {
		pin, err := h.PinForRead()
		require.NoError(t, err)
		require.Equal(t, i, pin.Value().value)
		require.NoError(t, pin.Release())
	}

	for _, h := range handles {
		require.NoError(t, h.Close())
	}
}

// Invariant 5 (reference counting): a parent holding a cloned handle to
// a child keeps the child alive past the original handle's Close; only
// once both references are closed does the child's blob disappear.
func TestRefcountKeepsChildAliveUntilLastClose(t *testing.T) {
	sp := newTestSpace(t, 8)
	child, err := Allocate[*counter](sp)
	require.NoError(t, err)
	pin, err := child.PinForWrite()
	require.NoError(t, err)
	pin.Value().value = 7
	require.NoError(t, pin.Release())

	clone := child.Clone()

	require.NoError(t, child.Close())

	rpin, err := clone.PinForRead()
	require.NoError(t, err)
	require.Equal(t, 7, rpin.Value().value)
	require.NoError(t, rpin.Release())

	require.NoError(t, clone.Close())
}

// Invariant 6 (checkpoint durability): values written before a
// checkpoint are readable from a freshly reopened space over the same
// backing directory.
func TestCheckpointDurability(t *testing.T) {
	dir := t.TempDir()
	factory := func() Payload { return &counter{} }

	backing, err := store.NewFileStore(dir)
	require.NoError(t, err)
	sp, err := NewSpace(backing, cache.NewLRU(4, nil), factory)
	require.NoError(t, err)

	h, err := Allocate[*counter](sp)
	require.NoError(t, err)
	pin, err := h.PinForWrite()
	require.NoError(t, err)
	pin.Value().value = 99
	require.NoError(t, pin.Release())
	require.NoError(t, SetRoot[*counter](sp, h))
	require.NoError(t, sp.Checkpoint())

	backing2, err := store.NewFileStore(dir)
	require.NoError(t, err)
	sp2, err := NewSpace(backing2, cache.NewLRU(4, nil), factory)
	require.NoError(t, err)

	root, ok := GetRoot[*counter](sp2)
	require.True(t, ok)
	rpin, err := root.PinForRead()
	require.NoError(t, err)
	require.Equal(t, 99, rpin.Value().value)
	require.NoError(t, rpin.Release())
}
