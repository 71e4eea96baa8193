package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// entry tracks one resident object: its referent capability set and the
// access counter value it was last recorded at.
type entry struct {
	ref        Referent
	lastAccess uint64
}

// LRU is the reference cache manager, grounded on LRUReplacementPolicy
// and PageFrame.LastAccess (storage/buffer/buffermanager_impl.go),
// generalized from a fixed array of page frames to an arbitrary set of
// referents named by ID, and from wall-clock timestamps to a monotone
// access counter so that behavior is deterministic and independent of
// note_write rounding jitter. Eviction and write-back selection is a
// plain linear scan over resident entries, same as FindVictim — at the
// cache sizes this index is meant for, an ordered auxiliary structure
// is not worth the complexity.
type LRU struct {
	size    int
	counter uint64
	entries map[ID]*entry
	log     *zap.SugaredLogger
}

// NewLRU constructs an LRU cache manager bounding residency to size
// objects. A nil logger disables tracing.
func NewLRU(size int, log *zap.SugaredLogger) *LRU {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LRU{
		size:    size,
		entries: make(map[ID]*entry),
		log:     log,
	}
}

// staleness is the minimum gap, in access-counter ticks, before a
// resident entry's last-access record is refreshed — a
// coarse-granularity LRU that avoids churning the access order on
// every touch, at one percent of the cache size.
func (l *LRU) staleness() uint64 {
	s := uint64(l.size) / 100
	if s < 1 {
		s = 1
	}
	return s
}

func (l *LRU) NoteBirth(id ID, ref Referent) error {
	l.counter++
	l.entries[id] = &entry{ref: ref, lastAccess: l.counter}
	l.log.Debugw("cache: birth", "id", id)
	return l.evictOverflow()
}

func (l *LRU) NoteLoad(id ID, ref Referent) error {
	l.counter++
	l.entries[id] = &entry{ref: ref, lastAccess: l.counter}
	l.log.Debugw("cache: load", "id", id)
	return l.evictOverflow()
}

func (l *LRU) noteAccess(id ID, ref Referent) error {
	l.counter++
	if e, ok := l.entries[id]; ok {
		if l.counter-e.lastAccess >= l.staleness() {
			e.lastAccess = l.counter
		}
	} else {
		l.entries[id] = &entry{ref: ref, lastAccess: l.counter}
	}
	return l.evictOverflow()
}

func (l *LRU) NoteRead(id ID, ref Referent) error  { return l.noteAccess(id, ref) }
func (l *LRU) NoteWrite(id ID, ref Referent) error { return l.noteAccess(id, ref) }

func (l *LRU) NoteClean(id ID) {
	l.log.Debugw("cache: clean", "id", id)
}

func (l *LRU) NoteEvict(id ID) {
	delete(l.entries, id)
	l.log.Debugw("cache: evict", "id", id)
}

func (l *LRU) NoteDeath(id ID) {
	delete(l.entries, id)
	l.log.Debugw("cache: death", "id", id)
}

func (l *LRU) SetCacheSize(n int) error {
	l.size = n
	return l.evictOverflow()
}

// Checkpoint cleans every dirty resident object without evicting any of
// them -- the first step of a durable checkpoint.
func (l *LRU) Checkpoint() error {
	for id, e := range l.entries {
		if e.ref.IsDirty() {
			if err := e.ref.Clean(); err != nil {
				return err
			}
			l.log.Debugw("cache: checkpoint clean", "id", id)
		}
	}
	return nil
}

// evictOverflow repeatedly picks the oldest unpinned resident entry and
// demands its write-back (if dirty) and eviction, until residency is at
// or under size or no victim can be found (every resident entry is
// pinned). A write-back or eviction failure is a genuine backing-store
// error and is returned to the caller rather than merely logged —
// residency is left as-is on the failing entry, and the loop stops.
func (l *LRU) evictOverflow() error {
	for len(l.entries) > l.size {
		victimID, victim := l.pickVictim()
		if victim == nil {
			return nil
		}
		if victim.IsDirty() {
			if err := victim.Clean(); err != nil {
				return fmt.Errorf("cache: clean victim %d during eviction: %w", victimID, err)
			}
		}
		if err := victim.Evict(); err != nil {
			return fmt.Errorf("cache: evict victim %d: %w", victimID, err)
		}
		// victim.Evict() is expected to call NoteEvict(victimID) as part
		// of the swap space's eviction protocol, which removes it from
		// l.entries. If it somehow didn't, force it here so the loop
		// makes progress instead of spinning.
		if _, stillPresent := l.entries[victimID]; stillPresent {
			delete(l.entries, victimID)
		}
	}
	return nil
}

func (l *LRU) pickVictim() (ID, Referent) {
	var victimID ID
	var victim Referent
	var oldest uint64
	found := false
	for id, e := range l.entries {
		if e.ref.IsPinned() {
			continue
		}
		if !found || e.lastAccess < oldest {
			victimID, victim, oldest = id, e.ref, e.lastAccess
			found = true
		}
	}
	return victimID, victim
}
