package swapspace

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"betreestore/storage/store"
)

// bufferWriter is a tiny growable byte sink satisfying the io.Writer
// the directory encoder needs without pulling bytes.Buffer's whole
// Read-side API into the checkpoint path's vocabulary.
type bufferWriter struct {
	buf bytes.Buffer
}

func (w *bufferWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *bufferWriter) Len() int                     { return w.buf.Len() }
func (w *bufferWriter) Bytes() []byte                { return w.buf.Bytes() }

// writeDirectory encodes the directory blob: nextID, rootID, entry
// count, then one record per live object -- (id, blobID, refcount,
// referent-count, [(referentID, count)]...). Self-describing and
// forward-readable with no external schema, matching the style of
// storage/page's encode helpers.
func writeDirectory(w io.Writer, sp *Space) error {
	if err := writeUint64(w, uint64(sp.nextID)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(sp.rootID)); err != nil {
		return err
	}
	entries := sp.snapshotDirectory()
	if err := writeUint64(w, uint64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeUint64(w, uint64(e.id)); err != nil {
			return err
		}
		if err := writeUint64(w, uint64(e.blobID)); err != nil {
			return err
		}
		if err := writeUint64(w, uint64(e.refcount)); err != nil {
			return err
		}
		if err := writeUint64(w, uint64(len(e.referents))); err != nil {
			return err
		}
		for refID, count := range e.referents {
			if err := writeUint64(w, uint64(refID)); err != nil {
				return err
			}
			if err := writeUint64(w, uint64(count)); err != nil {
				return err
			}
		}
	}
	return nil
}

// readDirectory is writeDirectory's inverse, used on reboot.
func readDirectory(r io.Reader) (entries []directoryEntry, nextID ID, rootID ID, err error) {
	nextRaw, err := readUint64(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read nextID: %w", err)
	}
	rootRaw, err := readUint64(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read rootID: %w", err)
	}
	count, err := readUint64(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read entry count: %w", err)
	}

	entries = make([]directoryEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		id, err := readUint64(r)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("read entry %d id: %w", i, err)
		}
		blobID, err := readUint64(r)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("read entry %d blobID: %w", i, err)
		}
		refcount, err := readUint64(r)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("read entry %d refcount: %w", i, err)
		}
		refCount, err := readUint64(r)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("read entry %d referent count: %w", i, err)
		}
		referents := make(map[ID]int, refCount)
		for j := uint64(0); j < refCount; j++ {
			refID, err := readUint64(r)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("read entry %d referent %d id: %w", i, j, err)
			}
			n, err := readUint64(r)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("read entry %d referent %d count: %w", i, j, err)
			}
			referents[ID(refID)] = int(n)
		}
		entries = append(entries, directoryEntry{
			id:        ID(id),
			blobID:    store.BlobID(blobID),
			refcount:  int(refcount),
			referents: referents,
		})
	}
	return entries, ID(nextRaw), ID(rootRaw), nil
}

func writeUint64(w io.Writer, v uint64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readUint64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}
