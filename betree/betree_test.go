package betree

import (
	"math/rand"
	"testing"

	"betreestore/internal/oracle"
	"betreestore/storage/cache"
	"betreestore/storage/codec"
	"betreestore/storage/store"
	"betreestore/swapspace"

	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T, maxNodeSize, minFlushSize, cacheSize int) *Betree[uint64, string] {
	t.Helper()
	backing, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	cacheMgr := cache.NewLRU(cacheSize, nil)
	factory := NewNodeFactory[uint64, string](codec.Uint64, codec.String)
	sp, err := swapspace.NewSpace(backing, cacheMgr, factory)
	require.NoError(t, err)
	less := func(a, b uint64) bool { return a < b }
	combine := func(a, b string) string { return a + b }
	tree, err := New[uint64, string](sp, codec.Uint64, codec.String, less, combine, "", maxNodeSize, minFlushSize)
	require.NoError(t, err)
	return tree
}

// S1: insert(7, "A"); query(7) -> "A".
func TestInsertThenQuery(t *testing.T) {
	tree := newTestTree(t, 256, 16, 16)
	require.NoError(t, tree.Insert(7, "A"))
	v, err := tree.Query(7)
	require.NoError(t, err)
	require.Equal(t, "A", v)
}

// S2: update(7,"x"); update(7,"y") against a missing key with
// default_value="" and concatenation combiner; query(7) -> "xy".
func TestUpdateAssociativityAgainstMissingKey(t *testing.T) {
	tree := newTestTree(t, 256, 16, 16)
	require.NoError(t, tree.Update(7, "x"))
	require.NoError(t, tree.Update(7, "y"))
	v, err := tree.Query(7)
	require.NoError(t, err)
	require.Equal(t, "xy", v)
}

// S3: insert(7,"A"); update(7,"B"); query(7) -> "AB".
func TestInsertThenUpdateFolds(t *testing.T) {
	tree := newTestTree(t, 256, 16, 16)
	require.NoError(t, tree.Insert(7, "A"))
	require.NoError(t, tree.Update(7, "B"))
	v, err := tree.Query(7)
	require.NoError(t, err)
	require.Equal(t, "AB", v)
}

func TestEraseRemovesKey(t *testing.T) {
	tree := newTestTree(t, 256, 16, 16)
	require.NoError(t, tree.Insert(7, "A"))
	require.NoError(t, tree.Erase(7))
	_, err := tree.Query(7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQueryMissingKeyIsNotFound(t *testing.T) {
	tree := newTestTree(t, 256, 16, 16)
	_, err := tree.Query(42)
	require.ErrorIs(t, err, ErrNotFound)
}

// S4 shape: a small max_node_size/min_flush_size/cache_size forcing
// many flushes and splits over a large key population, checked against
// an oracle.
func TestThousandKeysAgainstOracle(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	oc := oracle.New[uint64, string](func(a, b uint64) bool { return a < b }, func(a, b string) string { return a + b }, "")

	const n = 1000
	for i := uint64(0); i < n; i++ {
		v := "v"
		require.NoError(t, tree.Insert(i, v))
		oc.Insert(i, v)
	}
	for i := uint64(0); i < n; i++ {
		want, _ := oc.Query(i)
		got, err := tree.Query(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	it := tree.Begin()
	count := 0
	oc.Range(nil, func(k uint64, v string) bool {
		require.True(t, it.Next())
		require.Equal(t, k, it.Key())
		require.Equal(t, v, it.Value())
		count++
		return true
	})
	require.False(t, it.Next())
	require.Equal(t, n, count)
}

// S6 lite: a seeded random sequence of insert/update/delete/query
// against an oracle, checking every query.
func TestRandomOpsAgainstOracle(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	oc := oracle.New[uint64, string](func(a, b uint64) bool { return a < b }, func(a, b string) string { return a + b }, "")
	rng := rand.New(rand.NewSource(1))

	const keySpace = 64
	for i := 0; i < 2048; i++ {
		k := rng.Uint64() % keySpace
		switch rng.Intn(4) {
		case 0:
			require.NoError(t, tree.Insert(k, "x"))
			oc.Insert(k, "x")
		case 1:
			require.NoError(t, tree.Update(k, "y"))
			oc.Update(k, "y")
		case 2:
			require.NoError(t, tree.Erase(k))
			oc.Erase(k)
		case 3:
			want, found := oc.Query(k)
			got, err := tree.Query(k)
			if found {
				require.NoError(t, err)
				require.Equal(t, want, got)
			} else {
				require.ErrorIs(t, err, ErrNotFound)
			}
		}
	}
}

// Invariant 4: size bound at rest -- every node stays within
// max_node_size after every mutating call.
func TestSizeBoundAtRest(t *testing.T) {
	const maxNodeSize = 32
	tree := newTestTree(t, maxNodeSize, 8, 8)
	for i := uint64(0); i < 500; i++ {
		require.NoError(t, tree.Insert(i, "value"))
		assertSizeBound(t, tree, tree.root, maxNodeSize)
	}
}

func assertSizeBound(t *testing.T, tree *Betree[uint64, string], h swapspace.Handle[*Node[uint64, string]], maxNodeSize int) {
	t.Helper()
	if h.IsZero() {
		return
	}
	pin, err := h.PinForRead()
	require.NoError(t, err)
	node := pin.Value()
	size := node.totalSize()
	children := make([]swapspace.Handle[*Node[uint64, string]], 0, len(node.pivots))
	for _, p := range node.pivots {
		children = append(children, p.child)
	}
	require.NoError(t, pin.Release())
	require.LessOrEqualf(t, size, maxNodeSize, "node exceeds max_node_size at rest")
	for _, c := range children {
		assertSizeBound(t, tree, c, maxNodeSize)
	}
}

func TestCheckpointThenReopen(t *testing.T) {
	dir := t.TempDir()
	backing, err := store.NewFileStore(dir)
	require.NoError(t, err)
	cacheMgr := cache.NewLRU(4, nil)
	factory := NewNodeFactory[uint64, string](codec.Uint64, codec.String)
	sp, err := swapspace.NewSpace(backing, cacheMgr, factory)
	require.NoError(t, err)
	less := func(a, b uint64) bool { return a < b }
	combine := func(a, b string) string { return a + b }
	tree, err := New[uint64, string](sp, codec.Uint64, codec.String, less, combine, "", 16, 4)
	require.NoError(t, err)

	for i := uint64(0); i < 200; i++ {
		require.NoError(t, tree.Insert(i, "v"))
	}
	require.NoError(t, tree.Checkpoint())

	backing2, err := store.NewFileStore(dir)
	require.NoError(t, err)
	cacheMgr2 := cache.NewLRU(4, nil)
	sp2, err := swapspace.NewSpace(backing2, cacheMgr2, factory)
	require.NoError(t, err)
	tree2, err := New[uint64, string](sp2, codec.Uint64, codec.String, less, combine, "", 16, 4)
	require.NoError(t, err)

	for i := uint64(0); i < 200; i++ {
		v, err := tree2.Query(i)
		require.NoError(t, err)
		require.Equal(t, "v", v)
	}
}
