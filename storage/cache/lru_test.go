package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeReferent is a minimal Referent for exercising LRU eviction
// decisions without a real swap space.
type fakeReferent struct {
	dirty    bool
	pinned   bool
	cleaned  int
	evicted  int
	cleanErr error
	evictErr error
}

func (f *fakeReferent) IsDirty() bool  { return f.dirty }
func (f *fakeReferent) IsPinned() bool { return f.pinned }
func (f *fakeReferent) Clean() error {
	if f.cleanErr != nil {
		return f.cleanErr
	}
	f.cleaned++
	f.dirty = false
	return nil
}
func (f *fakeReferent) Evict() error {
	if f.evictErr != nil {
		return f.evictErr
	}
	f.evicted++
	return nil
}

func TestEvictsOldestUnpinnedOnOverflow(t *testing.T) {
	l := NewLRU(2, nil)
	a := &fakeReferent{}
	b := &fakeReferent{}
	c := &fakeReferent{}

	require.NoError(t, l.NoteBirth(1, a))
	require.NoError(t, l.NoteBirth(2, b))
	require.NoError(t, l.NoteBirth(3, c)) // overflow: 1 is oldest, should be evicted

	require.Equal(t, 1, a.evicted)
	require.Equal(t, 0, b.evicted)
	require.Equal(t, 0, c.evicted)
}

func TestDirtyVictimIsCleanedBeforeEviction(t *testing.T) {
	l := NewLRU(1, nil)
	a := &fakeReferent{dirty: true}
	b := &fakeReferent{}

	require.NoError(t, l.NoteBirth(1, a))
	require.NoError(t, l.NoteBirth(2, b))

	require.Equal(t, 1, a.cleaned)
	require.Equal(t, 1, a.evicted)
}

func TestPinnedEntrySurvivesOverflow(t *testing.T) {
	l := NewLRU(1, nil)
	a := &fakeReferent{pinned: true}
	b := &fakeReferent{}

	require.NoError(t, l.NoteBirth(1, a))
	require.NoError(t, l.NoteBirth(2, b))

	require.Equal(t, 0, a.evicted)
}

func TestCheckpointCleansWithoutEvicting(t *testing.T) {
	l := NewLRU(4, nil)
	a := &fakeReferent{dirty: true}
	require.NoError(t, l.NoteBirth(1, a))

	require.NoError(t, l.Checkpoint())
	require.Equal(t, 1, a.cleaned)
	require.Equal(t, 0, a.evicted)
}

func TestEvictFailurePropagatesFromNoteAccess(t *testing.T) {
	l := NewLRU(1, nil)
	boom := errors.New("backing store unavailable")
	a := &fakeReferent{evictErr: boom}
	b := &fakeReferent{}

	require.NoError(t, l.NoteBirth(1, a))
	err := l.NoteRead(2, b)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}

func TestCleanFailureDuringEvictionPropagates(t *testing.T) {
	l := NewLRU(1, nil)
	boom := errors.New("disk full")
	a := &fakeReferent{dirty: true, cleanErr: boom}
	b := &fakeReferent{}

	require.NoError(t, l.NoteBirth(1, a))
	err := l.NoteWrite(2, b)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}
