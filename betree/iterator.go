package betree

import (
	"fmt"

	"betreestore/swapspace"
)

// Iterator walks the tree's message stream in key order, folding
// INSERT/UPDATE/DELETE messages into materialized (key, value) entries
// as it goes. The zero value is not usable; obtain one from Begin,
// LowerBound, UpperBound, or End.
type Iterator[K any, V any] struct {
	t      *Betree[K, V]
	cursor *MessageKey[K]
	err    error
	done   bool

	curKey   K
	curVal   V
	curValid bool

	key K
	val V
}

// Begin returns an iterator positioned before the first entry: the
// first Next computes "next after (min, 0)", where a nil cursor plays
// the role of the unreachable (min, 0) sentinel, since K has no
// synthesizable minimum without a user-supplied one.
func (t *Betree[K, V]) Begin() *Iterator[K, V] {
	return &Iterator[K, V]{t: t}
}

// LowerBound returns an iterator positioned so the first call to Next
// materializes the entry for the smallest key >= k, if one exists.
func (t *Betree[K, V]) LowerBound(k K) *Iterator[K, V] {
	c := MessageKey[K]{UserKey: k, Timestamp: minTimestamp}
	return &Iterator[K, V]{t: t, cursor: &c}
}

// UpperBound returns an iterator positioned so the first call to Next
// materializes the entry for the smallest key > k, if one exists.
func (t *Betree[K, V]) UpperBound(k K) *Iterator[K, V] {
	c := rangeEnd(k)
	return &Iterator[K, V]{t: t, cursor: &c}
}

// End returns an exhausted iterator, a sentinel comparable against to
// detect the end of a scan.
func (t *Betree[K, V]) End() *Iterator[K, V] {
	return &Iterator[K, V]{t: t, done: true}
}

// Next advances to the next materialized entry, returning false when
// the stream is exhausted or an error occurred (check Err).
func (it *Iterator[K, V]) Next() bool {
	if it.done {
		return false
	}
	for {
		msg, err := it.t.nextAfter(it.t.root, it.cursor)
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		if msg == nil {
			it.done = true
			if it.curValid {
				it.key, it.val = it.curKey, it.curVal
				it.curValid = false
				return true
			}
			return false
		}
		it.cursor = &msg.Key

		if it.curValid && !keyEqual(it.t.less, msg.Key.UserKey, it.curKey) {
			emitKey, emitVal := it.curKey, it.curVal
			it.curValid = false
			it.applyToCurrent(*msg)
			it.key, it.val = emitKey, emitVal
			return true
		}
		it.applyToCurrent(*msg)
	}
}

// applyToCurrent folds msg into the iterator's pending entry: INSERT
// replaces, UPDATE folds (using default_value as a base if the entry
// isn't currently valid), DELETE invalidates.
func (it *Iterator[K, V]) applyToCurrent(msg Message[K, V]) {
	if !it.curValid {
		it.curKey = msg.Key.UserKey
	}
	switch msg.Op {
	case OpInsert:
		it.curVal = msg.Value
		it.curValid = true
	case OpDelete:
		it.curValid = false
	case OpUpdate:
		base := it.t.zero
		if it.curValid {
			base = it.curVal
		}
		it.curVal = it.t.combine(base, msg.Value)
		it.curValid = true
	}
}

// Key returns the current entry's key. Valid only after a Next call
// that returned true.
func (it *Iterator[K, V]) Key() K { return it.key }

// Value returns the current entry's value. Valid only after a Next
// call that returned true.
func (it *Iterator[K, V]) Value() V { return it.val }

// Err returns the first error Next encountered, if any.
func (it *Iterator[K, V]) Err() error { return it.err }

// nextAfter computes the globally next message strictly after thresh
// (nil meaning "before everything") by recursively merging each
// pivot's own buffered messages with its child subtree's next message,
// scanning pivots left to right.
func (t *Betree[K, V]) nextAfter(h swapspace.Handle[*Node[K, V]], thresh *MessageKey[K]) (next *Message[K, V], err error) {
	if h.IsZero() {
		return nil, nil
	}
	pin, err := h.PinForRead()
	if err != nil {
		return nil, fmt.Errorf("betree: pin for iteration: %w", err)
	}
	defer func() {
		if rerr := pin.Release(); rerr != nil && err == nil {
			next, err = nil, rerr
		}
	}()
	node := pin.Value()
	if len(node.pivots) == 0 {
		return nil, nil
	}

	start := 0
	if thresh != nil {
		if idx := node.pivotIndex(t.less, thresh.UserKey); idx >= 0 {
			start = idx
		}
	}

	for i := start; i < len(node.pivots); i++ {
		var localThresh *MessageKey[K]
		if i == start {
			localThresh = thresh
		}
		p := &node.pivots[i]

		local := firstBufferedAfter(t.less, &p.buffer, localThresh)

		var childNext *Message[K, V]
		if !node.isLeaf() {
			childNext, err = t.nextAfter(p.child, localThresh)
			if err != nil {
				return nil, err
			}
		}

		if candidate := pickMin(t.less, local, childNext); candidate != nil {
			return candidate, nil
		}
	}
	return nil, nil
}

// firstBufferedAfter returns the first message in buf strictly after
// thresh (or the first message at all, if thresh is nil).
func firstBufferedAfter[K any, V any](less Less[K], buf *messageBuffer[K, V], thresh *MessageKey[K]) *Message[K, V] {
	idx := 0
	if thresh != nil {
		idx = buf.lowerBound(less, *thresh)
		if idx < len(buf.msgs) && compareMessageKeys(less, buf.msgs[idx].Key, *thresh) == 0 {
			idx++
		}
	}
	if idx >= len(buf.msgs) {
		return nil
	}
	m := buf.msgs[idx]
	return &m
}

func pickMin[K any, V any](less Less[K], a, b *Message[K, V]) *Message[K, V] {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if compareMessageKeys(less, a.Key, b.Key) <= 0 {
		return a
	}
	return b
}
