package betree

import "sort"

// messageBuffer is the sorted run of pending messages held under one
// pivot. Kept as a plain slice, sorted ascending by message key, and
// manipulated with binary search and slice surgery -- the same idiom
// splitLeafNode/splitInternalNode use to keep a page's keys/values
// sorted during an insert (storage/btree/node_ops.go), generalized from
// fixed uint64 arrays to a growable slice of messages.
type messageBuffer[K any, V any] struct {
	msgs []Message[K, V]
}

func (b *messageBuffer[K, V]) size() int { return len(b.msgs) }

// lowerBound returns the index of the first message with key >= mk.
func (b *messageBuffer[K, V]) lowerBound(less Less[K], mk MessageKey[K]) int {
	return sort.Search(len(b.msgs), func(i int) bool {
		return compareMessageKeys(less, b.msgs[i].Key, mk) >= 0
	})
}

// insert adds msg in sorted position. Message keys are unique (the
// timestamp dimension guarantees this), so no position ever needs
// overwriting.
func (b *messageBuffer[K, V]) insert(less Less[K], msg Message[K, V]) {
	i := b.lowerBound(less, msg.Key)
	b.msgs = append(b.msgs, Message[K, V]{})
	copy(b.msgs[i+1:], b.msgs[i:])
	b.msgs[i] = msg
}

// purgeKey removes every buffered message for user key k, regardless of
// timestamp -- a range deletion over [range_start(k), range_end(k)].
func (b *messageBuffer[K, V]) purgeKey(less Less[K], k K) {
	lo := b.lowerBound(less, rangeStart(k))
	hi := b.lowerBound(less, rangeEnd(k))
	if hi <= lo {
		return
	}
	b.msgs = append(b.msgs[:lo], b.msgs[hi:]...)
}

// greatest returns the highest-timestamp buffered message for user key
// k, if any.
func (b *messageBuffer[K, V]) greatest(less Less[K], k K) (Message[K, V], bool) {
	hi := b.lowerBound(less, rangeEnd(k))
	if hi == 0 {
		return Message[K, V]{}, false
	}
	cand := b.msgs[hi-1]
	if !keyEqual(less, cand.Key.UserKey, k) {
		return Message[K, V]{}, false
	}
	return cand, true
}

// splitAt partitions the buffer at index i, returning the left and
// right halves as new buffers. Used by the oversize-pivot-buffer split
// in the leaf branch of flush.
func (b *messageBuffer[K, V]) splitAt(i int) (messageBuffer[K, V], messageBuffer[K, V]) {
	left := messageBuffer[K, V]{msgs: append([]Message[K, V]{}, b.msgs[:i]...)}
	right := messageBuffer[K, V]{msgs: append([]Message[K, V]{}, b.msgs[i:]...)}
	return left, right
}
