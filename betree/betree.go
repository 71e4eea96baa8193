// Package betree implements a buffered-message B-tree: an ordered map
// over swap-space-resident nodes, amortizing writes by buffering
// pending inserts/deletes/updates at interior nodes and flushing them
// downward in batches.
package betree

import (
	"fmt"

	"betreestore/storage/codec"
	"betreestore/swapspace"

	"go.uber.org/zap"
)

// Betree is an ordered Key -> Value map built over a swapspace.Space
// dedicated to *Node[K, V] objects. It generalizes BTreeImpl
// (storage/btree/btree_impl.go) from fixed uint64 keys/values and a
// flat page store to generic, user-coded keys/values and a
// buffered-message node format.
type Betree[K any, V any] struct {
	sp *swapspace.Space

	keyCodec codec.Codec[K]
	valCodec codec.Codec[V]
	less     Less[K]
	combine  func(a, b V) V
	zero     V

	maxNodeSize  int
	minFlushSize int

	root swapspace.Handle[*Node[K, V]]
	log  *zap.SugaredLogger
}

// Option configures a Betree at construction, following the
// functional-options family of storage/buffer.Option, generalized here
// to WithTracer.
type Option[K any, V any] func(*Betree[K, V])

// WithTracer installs a structured logger for split/flush tracing. The
// default is a no-op logger.
func WithTracer[K any, V any](log *zap.SugaredLogger) Option[K, V] {
	return func(t *Betree[K, V]) { t.log = log }
}

// New constructs a tree over sp. sp must have been built with the
// factory NewNodeFactory(keyCodec, valCodec) returns, matching the same
// K, V as this call -- the swap space is dedicated to this tree's node
// type for its whole life (see swapspace package docs).
//
// If sp already has a root (a reopened backing store), that root is
// reused and its subtree reinterpreted as this tree's root; otherwise a
// fresh empty leaf root is allocated and published.
func New[K any, V any](
	sp *swapspace.Space,
	keyCodec codec.Codec[K],
	valCodec codec.Codec[V],
	less Less[K],
	combine func(a, b V) V,
	defaultValue V,
	maxNodeSize, minFlushSize int,
	opts ...Option[K, V],
) (*Betree[K, V], error) {
	t := &Betree[K, V]{
		sp:           sp,
		keyCodec:     keyCodec,
		valCodec:     valCodec,
		less:         less,
		combine:      combine,
		zero:         defaultValue,
		maxNodeSize:  maxNodeSize,
		minFlushSize: minFlushSize,
		log:          zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if h, ok := swapspace.GetRoot[*Node[K, V]](sp); ok {
		t.root = h
		return t, nil
	}

	root, err := swapspace.Allocate[*Node[K, V]](sp)
	if err != nil {
		return nil, fmt.Errorf("betree: allocate root: %w", err)
	}
	{
		pin, err := root.PinForWrite()
		if err != nil {
			return nil, fmt.Errorf("betree: pin fresh root: %w", err)
		}
		pin.Value().nextTimestamp = 1
		if err := pin.Release(); err != nil {
			return nil, fmt.Errorf("betree: release fresh root pin: %w", err)
		}
	}
	if err := swapspace.SetRoot[*Node[K, V]](sp, root); err != nil {
		return nil, fmt.Errorf("betree: publish root: %w", err)
	}
	t.root = root
	return t, nil
}

func (t *Betree[K, V]) nextTimestamp() (ts uint64, err error) {
	pin, err := t.root.PinForWrite()
	if err != nil {
		return 0, fmt.Errorf("betree: pin root for timestamp: %w", err)
	}
	defer func() {
		if rerr := pin.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	ts = pin.Value().nextTimestamp
	pin.Value().nextTimestamp++
	return ts, nil
}

// Insert stores k -> v, replacing any prior value.
func (t *Betree[K, V]) Insert(k K, v V) error {
	return t.upsertOne(OpInsert, k, v)
}

// Update folds v into the existing value at k via the combiner, using
// defaultValue if k is missing.
func (t *Betree[K, V]) Update(k K, v V) error {
	return t.upsertOne(OpUpdate, k, v)
}

// Erase tombstones k. A subsequent Query returns ErrNotFound until a
// later Insert or Update reintroduces the key.
func (t *Betree[K, V]) Erase(k K) error {
	var zero V
	return t.upsertOne(OpDelete, k, zero)
}

// upsertOne implements the upsert-at-root algorithm for a single
// message.
func (t *Betree[K, V]) upsertOne(op Opcode, k K, v V) error {
	ts, err := t.nextTimestamp()
	if err != nil {
		return err
	}
	msg := Message[K, V]{Key: MessageKey[K]{UserKey: k, Timestamp: ts}, Op: op, Value: v}

	res, err := t.flush(t.root, []Message[K, V]{msg})
	if err != nil {
		return fmt.Errorf("betree: upsert %s %v: %w", op, k, err)
	}
	if !res.split {
		return nil
	}
	return t.installNewRoot(res)
}

// installNewRoot wraps a root-level split result in a fresh node one
// level taller, and releases the old root's reference.
func (t *Betree[K, V]) installNewRoot(res flushResult[K, V]) error {
	oldRoot := t.root

	oldPin, err := oldRoot.PinForRead()
	if err != nil {
		return fmt.Errorf("betree: pin old root to read height: %w", err)
	}
	height := oldPin.Value().height
	nextTS := oldPin.Value().nextTimestamp
	if err := oldPin.Release(); err != nil {
		return fmt.Errorf("betree: release old root pin: %w", err)
	}

	newRoot, err := swapspace.Allocate[*Node[K, V]](t.sp)
	if err != nil {
		return fmt.Errorf("betree: allocate new root: %w", err)
	}
	pin, err := newRoot.PinForWrite()
	if err != nil {
		return fmt.Errorf("betree: pin new root: %w", err)
	}
	node := pin.Value()
	node.height = height + 1
	node.nextTimestamp = nextTS
	node.pivots = []pivot[K, V]{res.left, res.right}
	if err := pin.Release(); err != nil {
		return fmt.Errorf("betree: release new root pin: %w", err)
	}

	if err := swapspace.SetRoot[*Node[K, V]](t.sp, newRoot); err != nil {
		return fmt.Errorf("betree: publish new root: %w", err)
	}
	t.root = newRoot
	t.log.Debugw("betree: root split", "new_height", node.height)
	return oldRoot.Close()
}

// Query looks up k.
func (t *Betree[K, V]) Query(k K) (V, error) {
	return t.query(t.root, k)
}

func (t *Betree[K, V]) query(h swapspace.Handle[*Node[K, V]], k K) (result V, err error) {
	var zero V
	if h.IsZero() {
		return zero, ErrNotFound
	}
	pin, err := h.PinForRead()
	if err != nil {
		return zero, fmt.Errorf("betree: pin for query: %w", err)
	}
	defer func() {
		if rerr := pin.Release(); rerr != nil && err == nil {
			result, err = zero, rerr
		}
	}()
	node := pin.Value()

	idx := node.pivotIndex(t.less, k)
	if idx < 0 {
		return zero, ErrNotFound
	}
	buf := &node.pivots[idx].buffer

	if node.isLeaf() {
		msg, found := buf.greatest(t.less, k)
		if !found || msg.Op != OpInsert {
			return zero, ErrNotFound
		}
		return msg.Value, nil
	}

	hi := buf.lowerBound(t.less, rangeEnd(k))
	lo := buf.lowerBound(t.less, rangeStart(k))
	cursor := lo

	if cursor == hi {
		child := node.pivots[idx].child
		return t.query(child, k)
	}

	var v V
	first := buf.msgs[cursor]
	switch first.Op {
	case OpInsert:
		v = first.Value
		cursor++
	case OpDelete:
		cursor++
		if cursor == hi {
			return zero, ErrNotFound
		}
		v = t.zero
	case OpUpdate:
		child := node.pivots[idx].child
		childVal, err := t.query(child, k)
		if err != nil {
			if err != ErrNotFound {
				return zero, err
			}
			v = t.zero
		} else {
			v = childVal
		}
	}

	for ; cursor < hi; cursor++ {
		v = t.combine(v, buf.msgs[cursor].Value)
	}
	return v, nil
}

// Checkpoint delegates to the swap space.
func (t *Betree[K, V]) Checkpoint() error {
	return t.sp.Checkpoint()
}
