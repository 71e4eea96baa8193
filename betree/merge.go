package betree

import (
	"fmt"

	"betreestore/swapspace"
)

// Compact is an optional maintenance pass: it walks the tree collapsing
// runs of small adjacent children into single merged nodes, reducing
// fan-out overhead. It is never called by Insert/Update/Erase/Query --
// callers invoke it explicitly, e.g. on a maintenance schedule or after
// a burst of deletions.
func (t *Betree[K, V]) Compact() error {
	return t.compactSubtree(t.root)
}

func (t *Betree[K, V]) compactSubtree(h swapspace.Handle[*Node[K, V]]) error {
	if h.IsZero() {
		return nil
	}
	pin, err := h.PinForWrite()
	if err != nil {
		return fmt.Errorf("betree: pin for compact: %w", err)
	}
	node := pin.Value()
	if node.isLeaf() {
		return pin.Release()
	}
	if err := t.mergeSmallChildren(node); err != nil {
		if rerr := pin.Release(); rerr != nil {
			return rerr
		}
		return err
	}
	children := make([]swapspace.Handle[*Node[K, V]], len(node.pivots))
	for i := range node.pivots {
		children[i] = node.pivots[i].child
	}
	if err := pin.Release(); err != nil {
		return err
	}

	for _, c := range children {
		if err := t.compactSubtree(c); err != nil {
			return err
		}
	}
	return nil
}

// mergeThreshold is the "0.6 * max_node_size" fit bound a run of
// children must stay under to qualify for merging.
func (t *Betree[K, V]) mergeThreshold() int {
	return (6 * t.maxNodeSize) / 10
}

// mergeSmallChildren scans node's pivots left to right, accumulating
// cached child sizes, and replaces any run of two or more whose summed
// size stays under mergeThreshold with one pivot over a single merged
// child.
func (t *Betree[K, V]) mergeSmallChildren(node *Node[K, V]) error {
	threshold := t.mergeThreshold()
	i := 0
	for i < len(node.pivots) {
		sum := node.pivots[i].childSize
		j := i + 1
		for j < len(node.pivots) && sum+node.pivots[j].childSize < threshold {
			sum += node.pivots[j].childSize
			j++
		}
		if j-i < 2 {
			i = j
			continue
		}

		merged, mergedSize, err := t.mergePrefix(node.height-1, node.pivots[i:j])
		if err != nil {
			return err
		}
		for k := i; k < j; k++ {
			if err := node.pivots[k].child.Close(); err != nil {
				return err
			}
		}

		replacement := pivot[K, V]{key: node.pivots[i].key, child: merged, childSize: mergedSize}
		rest := append([]pivot[K, V]{}, node.pivots[j:]...)
		node.pivots = append(node.pivots[:i], replacement)
		node.pivots = append(node.pivots, rest...)
		i++
	}
	return nil
}

// mergePrefix builds one new node of the given height whose pivots are
// the union, in order, of prefix's children's own pivots, and whose
// buffers are the union of the prefix's per-pivot buffers. Grandchild
// handles are cloned (not moved) so the prefix's old, about-to-be-closed
// top-level handles keep an accurate reference picture until they die.
func (t *Betree[K, V]) mergePrefix(height int, prefix []pivot[K, V]) (swapspace.Handle[*Node[K, V]], int, error) {
	var merged []pivot[K, V]
	for _, p := range prefix {
		if p.child.IsZero() {
			continue
		}
		pin, err := p.child.PinForRead()
		if err != nil {
			return swapspace.Handle[*Node[K, V]]{}, 0, fmt.Errorf("betree: pin merge source: %w", err)
		}
		child := pin.Value()
		for _, cp := range child.pivots {
			merged = append(merged, pivot[K, V]{
				key:       cp.key,
				child:     cp.child.Clone(),
				childSize: cp.childSize,
				buffer:    messageBuffer[K, V]{msgs: append([]Message[K, V]{}, cp.buffer.msgs...)},
			})
		}
		if err := pin.Release(); err != nil {
			return swapspace.Handle[*Node[K, V]]{}, 0, fmt.Errorf("betree: release merge source pin: %w", err)
		}
	}

	h, err := swapspace.Allocate[*Node[K, V]](t.sp)
	if err != nil {
		return swapspace.Handle[*Node[K, V]]{}, 0, fmt.Errorf("betree: allocate merged node: %w", err)
	}
	pin, err := h.PinForWrite()
	if err != nil {
		return swapspace.Handle[*Node[K, V]]{}, 0, fmt.Errorf("betree: pin merged node: %w", err)
	}
	pin.Value().height = height
	pin.Value().pivots = merged
	size := pin.Value().totalSize()
	if err := pin.Release(); err != nil {
		return swapspace.Handle[*Node[K, V]]{}, 0, fmt.Errorf("betree: release merged node pin: %w", err)
	}
	return h, size, nil
}
