package betree

import (
	"fmt"
	"sort"

	"betreestore/storage/codec"
	"betreestore/swapspace"
)

// pivot is a child descriptor: a boundary key, the subtree below it, a
// cached size for that subtree, and the messages buffered for keys in
// its range. At a leaf, child is always the zero Handle -- a leaf's
// pivots degenerate to carrying only the message buffers.
type pivot[K any, V any] struct {
	key       K
	child     swapspace.Handle[*Node[K, V]]
	childSize int
	buffer    messageBuffer[K, V]
}

// Node is one swap-space-resident node of the tree: an interior node
// (height > 0) buffers messages per pivot and defers them to children;
// a leaf (height == 0) holds only the authoritative per-key messages.
// Node generalizes the fixed-layout LeafNode/InternalNode
// (storage/page/page_format.go) into a single variable-length,
// generic-typed shape, since the buffered-message design has no analog
// in a plain B-tree page.
type Node[K any, V any] struct {
	height int
	pivots []pivot[K, V]

	// nextTimestamp is meaningful only on the node currently installed
	// as the tree's root; it is the monotone message-timestamp counter,
	// carried here so it survives a checkpoint/reboot without a
	// separate metadata blob. Whichever node holds the root handle at
	// Save time owns the authoritative value; a split that installs a
	// new root copies it forward.
	nextTimestamp uint64

	keyCodec codec.Codec[K]
	valCodec codec.Codec[V]
}

// NewNodeFactory returns the factory swapspace.NewSpace needs to
// construct a fresh Payload on Allocate and on Load -- the node it
// produces is pre-wired with the user's codecs, since Payload.Save/Load
// take no parameters of their own (Save/Load thread an explicit
// context instead of a global archive-helper; codecs are wired once,
// here, instead).
func NewNodeFactory[K any, V any](keyCodec codec.Codec[K], valCodec codec.Codec[V]) func() swapspace.Payload {
	return func() swapspace.Payload {
		return &Node[K, V]{keyCodec: keyCodec, valCodec: valCodec}
	}
}

// isLeaf reports whether this node is a leaf (height 0).
func (n *Node[K, V]) isLeaf() bool { return n.height == 0 }

// totalSize is total_size(node): |pivots| + Σ|buffer_i|.
func (n *Node[K, V]) totalSize() int {
	total := len(n.pivots)
	for i := range n.pivots {
		total += n.pivots[i].buffer.size()
	}
	return total
}

// pivotIndex returns the index of the pivot whose range [k_i, k_i+1)
// contains key -- the last pivot with key <= k. Pivots must be
// non-empty and sorted ascending.
func (n *Node[K, V]) pivotIndex(less Less[K], key K) int {
	i := sort.Search(len(n.pivots), func(i int) bool {
		return less(key, n.pivots[i].key)
	})
	return i - 1
}

// ensureFirstPivot seeds or widens the leftmost pivot to cover key: a
// brand new node seeds its first pivot at key, and an existing node's
// first pivot is renamed leftward if a smaller key arrives.
func (n *Node[K, V]) ensureFirstPivot(less Less[K], key K) {
	if len(n.pivots) == 0 {
		n.pivots = append(n.pivots, pivot[K, V]{key: key})
		return
	}
	if less(key, n.pivots[0].key) {
		n.pivots[0].key = key
	}
}

// applyLocal applies one message to this node's local buffers.
// defaultValue and combine implement the identity and fold for
// UPDATE-against-missing-key at a leaf.
func (n *Node[K, V]) applyLocal(less Less[K], idx int, msg Message[K, V], defaultValue V, combine func(V, V) V) {
	buf := &n.pivots[idx].buffer
	k := msg.Key.UserKey

	switch msg.Op {
	case OpInsert:
		buf.purgeKey(less, k)
		buf.insert(less, msg)
	case OpDelete:
		buf.purgeKey(less, k)
		if !n.isLeaf() {
			buf.insert(less, msg)
		}
	case OpUpdate:
		existing, found := buf.greatest(less, k)
		if !found {
			if n.isLeaf() {
				buf.insert(less, Message[K, V]{Key: msg.Key, Op: OpInsert, Value: combine(defaultValue, msg.Value)})
			} else {
				buf.insert(less, msg)
			}
			return
		}
		if existing.Op == OpInsert {
			buf.purgeKey(less, k)
			buf.insert(less, Message[K, V]{Key: msg.Key, Op: OpInsert, Value: combine(existing.Value, msg.Value)})
			return
		}
		buf.insert(less, msg)
	}
}

// Save implements swapspace.Payload: write height, nextTimestamp, pivot
// count, then per pivot the key, child handle (zero at a leaf), cached
// child size, and buffered messages.
func (n *Node[K, V]) Save(ctx *swapspace.SaveContext) error {
	if err := ctx.WriteUint64(uint64(n.height)); err != nil {
		return err
	}
	if err := ctx.WriteUint64(n.nextTimestamp); err != nil {
		return err
	}
	if err := ctx.WriteUint64(uint64(len(n.pivots))); err != nil {
		return err
	}
	for i := range n.pivots {
		p := &n.pivots[i]
		if err := n.keyCodec.Encode(ctx.Writer(), p.key); err != nil {
			return fmt.Errorf("betree: encode pivot %d key: %w", i, err)
		}
		if err := ctx.SaveHandle(p.child); err != nil {
			return fmt.Errorf("betree: encode pivot %d child handle: %w", i, err)
		}
		if err := ctx.WriteUint64(uint64(p.childSize)); err != nil {
			return err
		}
		if err := ctx.WriteUint64(uint64(len(p.buffer.msgs))); err != nil {
			return err
		}
		for j, msg := range p.buffer.msgs {
			if err := n.keyCodec.Encode(ctx.Writer(), msg.Key.UserKey); err != nil {
				return fmt.Errorf("betree: encode pivot %d message %d key: %w", i, j, err)
			}
			if err := ctx.WriteUint64(msg.Key.Timestamp); err != nil {
				return err
			}
			if err := ctx.WriteUint64(uint64(msg.Op)); err != nil {
				return err
			}
			if msg.Op != OpDelete {
				if err := n.valCodec.Encode(ctx.Writer(), msg.Value); err != nil {
					return fmt.Errorf("betree: encode pivot %d message %d value: %w", i, j, err)
				}
			}
		}
	}
	return nil
}

// Load implements swapspace.Payload, mirroring Save.
func (n *Node[K, V]) Load(ctx *swapspace.LoadContext) error {
	height, err := ctx.ReadUint64()
	if err != nil {
		return err
	}
	n.height = int(height)

	nextTimestamp, err := ctx.ReadUint64()
	if err != nil {
		return err
	}
	n.nextTimestamp = nextTimestamp

	pivotCount, err := ctx.ReadUint64()
	if err != nil {
		return err
	}
	n.pivots = make([]pivot[K, V], pivotCount)
	for i := range n.pivots {
		p := &n.pivots[i]
		key, err := n.keyCodec.Decode(ctx.Reader())
		if err != nil {
			return fmt.Errorf("betree: decode pivot %d key: %w", i, err)
		}
		p.key = key

		child, err := swapspace.LoadHandle[*Node[K, V]](ctx)
		if err != nil {
			return fmt.Errorf("betree: decode pivot %d child handle: %w", i, err)
		}
		p.child = child

		childSize, err := ctx.ReadUint64()
		if err != nil {
			return err
		}
		p.childSize = int(childSize)

		msgCount, err := ctx.ReadUint64()
		if err != nil {
			return err
		}
		p.buffer.msgs = make([]Message[K, V], msgCount)
		for j := range p.buffer.msgs {
			userKey, err := n.keyCodec.Decode(ctx.Reader())
			if err != nil {
				return fmt.Errorf("betree: decode pivot %d message %d key: %w", i, j, err)
			}
			timestamp, err := ctx.ReadUint64()
			if err != nil {
				return err
			}
			opRaw, err := ctx.ReadUint64()
			if err != nil {
				return err
			}
			op := Opcode(opRaw)
			var value V
			if op != OpDelete {
				value, err = n.valCodec.Decode(ctx.Reader())
				if err != nil {
					return fmt.Errorf("betree: decode pivot %d message %d value: %w", i, j, err)
				}
			}
			p.buffer.msgs[j] = Message[K, V]{
				Key:   MessageKey[K]{UserKey: userKey, Timestamp: timestamp},
				Op:    op,
				Value: value,
			}
		}
	}
	return nil
}
