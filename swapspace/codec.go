package swapspace

import (
	"encoding/binary"
	"io"
)

// Payload is the capability set a type must implement to be stored
// behind a swap-space handle: a small trait the caller implements once
// per stored type, instead of the swap space knowing anything about
// the type's shape. This replaces template specialization on
// serialization.
type Payload interface {
	// Save writes the receiver's own bytes to ctx's stream, recording
	// any embedded handles via ctx.SaveHandle as it goes.
	Save(ctx *SaveContext) error

	// Load reconstructs the receiver's own state from ctx's stream,
	// recovering any embedded handles via LoadHandle.
	Load(ctx *LoadContext) error
}

// AnyHandle is implemented by every Handle[T]; it lets SaveContext
// record a referent without knowing its payload type. Go methods can't
// introduce new type parameters, so the handle-recording half of the
// serialization contract goes through this non-generic seam while
// handle reconstruction (LoadHandle, below) is a free generic function.
type AnyHandle interface {
	ObjectID() ID
}

// SaveContext accumulates the multiset of objects a Save call
// references — the "new referents" a clean needs to reconcile against
// ondiskReferents — while writing the payload's own bytes to the
// underlying stream.
type SaveContext struct {
	w         io.Writer
	referents map[ID]int
}

func newSaveContext(w io.Writer) *SaveContext {
	return &SaveContext{w: w, referents: map[ID]int{}}
}

// Writer exposes the underlying stream for a payload's own field
// encoding.
func (c *SaveContext) Writer() io.Writer { return c.w }

// SaveHandle records a handle as a referent and writes its object ID to
// the stream. Writing 0 for a zero-value ("no handle") Handle is valid
// and is not counted as a referent.
func (c *SaveContext) SaveHandle(h AnyHandle) error {
	id := h.ObjectID()
	if id != 0 {
		c.referents[id]++
	}
	return binary.Write(c.w, binary.LittleEndian, uint64(id))
}

// WriteUint64 and WriteBytes are small helpers payloads use to encode
// their own scalar and byte-slice fields in a fixed, self-describing
// way. User Key/Value codecs (storage/codec.Codec) do not use them; they
// encode straight to Writer().
func (c *SaveContext) WriteUint64(v uint64) error {
	return binary.Write(c.w, binary.LittleEndian, v)
}

func (c *SaveContext) WriteBytes(b []byte) error {
	if err := c.WriteUint64(uint64(len(b))); err != nil {
		return err
	}
	_, err := c.w.Write(b)
	return err
}

// LoadContext mirrors SaveContext on the read side, and carries the
// owning space so LoadHandle can mint handles bound to it.
type LoadContext struct {
	r         io.Reader
	space     *Space
	collector *referentCollector
}

func newLoadContext(r io.Reader, space *Space) *LoadContext {
	return &LoadContext{r: r, space: space}
}

func (c *LoadContext) Reader() io.Reader { return c.r }

func (c *LoadContext) ReadUint64() (uint64, error) {
	var v uint64
	err := binary.Read(c.r, binary.LittleEndian, &v)
	return v, err
}

func (c *LoadContext) ReadBytes() ([]byte, error) {
	n, err := c.ReadUint64()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(c.r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// LoadHandle reconstructs a Handle[T] from the next object ID in the
// stream. It does not pin or load the referent; the handle is resolved
// lazily the first time it is pinned.
func LoadHandle[T Payload](ctx *LoadContext) (Handle[T], error) {
	id, err := ctx.ReadUint64()
	if err != nil {
		return Handle[T]{}, err
	}
	if id != 0 && ctx.collector != nil {
		ctx.collector.note(ID(id))
	}
	return Handle[T]{id: ID(id), space: ctx.space}, nil
}

// referentCollector tallies the referent IDs a Load call reconstructs,
// so ensureLoaded can check them against the stored ondiskReferents
// multiset.
type referentCollector struct {
	counts map[ID]int
}

func (c *referentCollector) note(id ID) {
	if c.counts == nil {
		c.counts = map[ID]int{}
	}
	c.counts[id]++
}

func (c *referentCollector) equals(other map[ID]int) bool {
	if len(c.counts) != len(other) {
		return false
	}
	for id, n := range c.counts {
		if other[id] != n {
			return false
		}
	}
	return true
}
