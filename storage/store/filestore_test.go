package store

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocatePutGetRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	id, err := fs.Allocate(0)
	require.NoError(t, err)

	s, err := fs.Get(id)
	require.NoError(t, err)
	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, fs.Put(s))

	s2, err := fs.Get(id)
	require.NoError(t, err)
	data, err := io.ReadAll(s2)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestDeallocateTwiceIsNoOp(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	id, err := fs.Allocate(0)
	require.NoError(t, err)
	s, err := fs.Get(id)
	require.NoError(t, err)
	_, err = s.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, fs.Put(s))

	require.NoError(t, fs.Deallocate(id))
	// Deallocating an already-gone blob is a no-op, not an error.
	require.NoError(t, fs.Deallocate(id))
}

func TestSetRootGetRootPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, fs.SetRoot(BlobID(7)))

	fs2, err := NewFileStore(dir)
	require.NoError(t, err)
	root, err := fs2.GetRoot()
	require.NoError(t, err)
	require.Equal(t, BlobID(7), root)
}

func TestGetRootWithNoRootSetReturnsZero(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	root, err := fs.GetRoot()
	require.NoError(t, err)
	require.Equal(t, BlobID(0), root)
}

func TestNextIDResumesAboveExistingBlobsOnReopen(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	id1, err := fs.Allocate(0)
	require.NoError(t, err)
	s, err := fs.Get(id1)
	require.NoError(t, err)
	_, err = s.Write([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, fs.Put(s))

	fs2, err := NewFileStore(dir)
	require.NoError(t, err)
	id2, err := fs2.Allocate(0)
	require.NoError(t, err)
	require.Greater(t, uint64(id2), uint64(id1))
}
