package betree

import (
	"fmt"

	"betreestore/swapspace"
)

// flushResult is flush's return value: either "fits, no change needed
// at the caller" (split == false) or the two-pivot replacement for a
// split node.
type flushResult[K any, V any] struct {
	split       bool
	left, right pivot[K, V]
}

// flush absorbs incoming (sorted by message key) into node h's subtree,
// cascading batches downward as needed, and reports whether h's node
// outgrew max_node_size and had to split.
func (t *Betree[K, V]) flush(h swapspace.Handle[*Node[K, V]], incoming []Message[K, V]) (result flushResult[K, V], err error) {
	if len(incoming) == 0 {
		return flushResult[K, V]{}, nil
	}

	pin, err := h.PinForWrite()
	if err != nil {
		return flushResult[K, V]{}, fmt.Errorf("betree: pin for flush: %w", err)
	}
	defer func() {
		if rerr := pin.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	node := pin.Value()

	node.ensureFirstPivot(t.less, incoming[0].Key.UserKey)

	if node.isLeaf() {
		return t.flushLeaf(node, incoming)
	}
	return t.flushInterior(node, incoming)
}

// flushLeaf applies incoming directly to the leaf's own buffers.
func (t *Betree[K, V]) flushLeaf(node *Node[K, V], incoming []Message[K, V]) (flushResult[K, V], error) {
	for _, msg := range incoming {
		idx := node.pivotIndex(t.less, msg.Key.UserKey)
		node.applyLocal(t.less, idx, msg, t.zero, t.combine)
	}

	t.splitOversizeBuffers(node)

	if node.totalSize() >= t.maxNodeSize && len(node.pivots) > 1 {
		return t.splitNode(node)
	}
	return flushResult[K, V]{}, nil
}

// splitOversizeBuffers implements the leaf-branch median split of any
// pivot buffer exceeding 2*min_flush_size.
func (t *Betree[K, V]) splitOversizeBuffers(node *Node[K, V]) {
	threshold := 2 * t.minFlushSize
	for i := 0; i < len(node.pivots); i++ {
		buf := &node.pivots[i].buffer
		if buf.size() <= threshold {
			continue
		}
		median := buf.size() / 2
		left, right := buf.splitAt(median)
		medianKey := right.msgs[0].Key.UserKey

		node.pivots[i].buffer = left
		newPivot := pivot[K, V]{key: medianKey, buffer: right}
		node.pivots = append(node.pivots, pivot[K, V]{})
		copy(node.pivots[i+2:], node.pivots[i+1:])
		node.pivots[i+1] = newPivot
	}
}

// flushInterior buffers incoming at this node and cascades oversize
// pivot buffers down to children in batches, splitting the node itself
// if it ends up oversize.
func (t *Betree[K, V]) flushInterior(node *Node[K, V], incoming []Message[K, V]) (flushResult[K, V], error) {
	if idx, ok := singlePivot(t.less, node, incoming); ok {
		child := node.pivots[idx].child
		// The fast path is taken only when nothing is buffered here for
		// this pivot, so incoming never overtakes older buffered messages.
		if !child.IsZero() && node.pivots[idx].buffer.size() == 0 {
			if resident, dirty := child.Peek(); resident && dirty {
				res, err := t.flush(child, incoming)
				if err != nil {
					return flushResult[K, V]{}, err
				}
				if err := t.absorbChildResult(node, idx, child, res); err != nil {
					return flushResult[K, V]{}, err
				}
				return t.maybeSplit(node)
			}
		}
	}

	for _, msg := range incoming {
		idx := node.pivotIndex(t.less, msg.Key.UserKey)
		node.applyLocal(t.less, idx, msg, t.zero, t.combine)
	}

	for node.totalSize() >= t.maxNodeSize {
		idx, ok := t.selectFlushCandidate(node)
		if !ok {
			break
		}
		child := node.pivots[idx].child
		batch := node.pivots[idx].buffer.msgs
		node.pivots[idx].buffer.msgs = nil

		res, err := t.flush(child, batch)
		if err != nil {
			return flushResult[K, V]{}, err
		}
		if err := t.absorbChildResult(node, idx, child, res); err != nil {
			return flushResult[K, V]{}, err
		}
	}

	return t.maybeSplit(node)
}

// singlePivot reports whether every incoming message maps to the same
// pivot, and if so, which one -- the precondition for the
// batch-to-dirty optimization below.
func singlePivot[K any, V any](less Less[K], node *Node[K, V], incoming []Message[K, V]) (int, bool) {
	idx := node.pivotIndex(less, incoming[0].Key.UserKey)
	if idx < 0 {
		return 0, false
	}
	for _, msg := range incoming[1:] {
		if node.pivotIndex(less, msg.Key.UserKey) != idx {
			return 0, false
		}
	}
	return idx, true
}

// selectFlushCandidate picks the largest pivot buffer eligible to
// flush: a buffer whose size meets min_flush_size unconditionally, or
// min_flush_size/2 when its child is already resident (clean or dirty,
// so no extra read is needed to dirty it).
func (t *Betree[K, V]) selectFlushCandidate(node *Node[K, V]) (int, bool) {
	best := -1
	bestSize := -1
	for i := range node.pivots {
		sz := node.pivots[i].buffer.size()
		if sz == 0 {
			continue
		}
		eligible := sz >= t.minFlushSize
		if !eligible && sz >= t.minFlushSize/2 {
			child := node.pivots[i].child
			if !child.IsZero() {
				if resident, _ := child.Peek(); resident {
					eligible = true
				}
			}
		}
		if eligible && sz > bestSize {
			best, bestSize = i, sz
		}
	}
	return best, best >= 0
}

// absorbChildResult folds a child flush's outcome back into node's
// pivot table at idx: either updating the flushed child's own cached
// size (not some unrelated pivot's), or replacing the pivot with the
// split's two new pivots and closing the old child handle.
func (t *Betree[K, V]) absorbChildResult(node *Node[K, V], idx int, child swapspace.Handle[*Node[K, V]], res flushResult[K, V]) error {
	if !res.split {
		size, err := t.peekSize(child)
		if err != nil {
			return err
		}
		node.pivots[idx].childSize = size
		return nil
	}

	node.pivots = append(node.pivots, pivot[K, V]{})
	copy(node.pivots[idx+2:], node.pivots[idx+1:])
	node.pivots[idx] = res.left
	node.pivots[idx+1] = res.right
	return child.Close()
}

// peekSize pins child for read just long enough to read its own
// total_size, used as the cached child_size.
func (t *Betree[K, V]) peekSize(child swapspace.Handle[*Node[K, V]]) (size int, err error) {
	pin, err := child.PinForRead()
	if err != nil {
		return 0, fmt.Errorf("betree: pin child to cache size: %w", err)
	}
	defer func() {
		if rerr := pin.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return pin.Value().totalSize(), nil
}

// maybeSplit splits node if it has outgrown max_node_size.
func (t *Betree[K, V]) maybeSplit(node *Node[K, V]) (flushResult[K, V], error) {
	if node.totalSize() > t.maxNodeSize && len(node.pivots) > 1 {
		return t.splitNode(node)
	}
	return flushResult[K, V]{}, nil
}

// splitNode distributes node's pivots across two freshly allocated
// siblings of the same height, first half to the left, second half to
// the right.
func (t *Betree[K, V]) splitNode(node *Node[K, V]) (flushResult[K, V], error) {
	mid := len(node.pivots) / 2
	leftPivots := append([]pivot[K, V]{}, node.pivots[:mid]...)
	rightPivots := append([]pivot[K, V]{}, node.pivots[mid:]...)

	left, leftSize, err := t.allocateSibling(node.height, leftPivots)
	if err != nil {
		return flushResult[K, V]{}, err
	}
	right, rightSize, err := t.allocateSibling(node.height, rightPivots)
	if err != nil {
		return flushResult[K, V]{}, err
	}

	return flushResult[K, V]{
		split: true,
		left:  pivot[K, V]{key: leftPivots[0].key, child: left, childSize: leftSize},
		right: pivot[K, V]{key: rightPivots[0].key, child: right, childSize: rightSize},
	}, nil
}

func (t *Betree[K, V]) allocateSibling(height int, pivots []pivot[K, V]) (swapspace.Handle[*Node[K, V]], int, error) {
	h, err := swapspace.Allocate[*Node[K, V]](t.sp)
	if err != nil {
		return swapspace.Handle[*Node[K, V]]{}, 0, fmt.Errorf("betree: allocate split sibling: %w", err)
	}
	pin, err := h.PinForWrite()
	if err != nil {
		return swapspace.Handle[*Node[K, V]]{}, 0, fmt.Errorf("betree: pin split sibling: %w", err)
	}
	pin.Value().height = height
	pin.Value().pivots = pivots
	size := pin.Value().totalSize()
	if err := pin.Release(); err != nil {
		return swapspace.Handle[*Node[K, V]]{}, 0, fmt.Errorf("betree: release split sibling pin: %w", err)
	}
	return h, size, nil
}
