package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

const rootFileName = "ROOT"

// FileStore is the reference backing store: a directory holding one file
// per blob, named by its numeric ID, plus a small ROOT file holding the
// current root blob ID. Grounded on the per-page file layout of
// storage/buffer.BufferManagerImpl's btreeFiles and on NutellaDB's
// one-file-per-node convention (db/btree/fs_handler.go), generalized
// from fixed pages to variably sized blobs and made crash-safe with a
// temp-file-then-rename write path.
type FileStore struct {
	dir     string
	tmpDir  string
	mu      sync.Mutex
	nextID  uint64
	rootSet bool
	root    BlobID
}

// NewFileStore opens (creating if absent) a directory-backed store. If
// the directory already holds blobs from a prior run, NextID resumes
// above the highest blob file found.
func NewFileStore(dir string) (*FileStore, error) {
	blobsDir := filepath.Join(dir, "blobs")
	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(blobsDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create blob directory: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create temp directory: %w", err)
	}

	fs := &FileStore{dir: blobsDir, tmpDir: tmpDir, nextID: 1}

	entries, err := os.ReadDir(blobsDir)
	if err != nil {
		return nil, fmt.Errorf("store: list blob directory: %w", err)
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(ent.Name(), 10, 64)
		if err != nil {
			continue
		}
		if id+1 > fs.nextID {
			fs.nextID = id + 1
		}
	}

	rootPath := filepath.Join(dir, rootFileName)
	if data, err := os.ReadFile(rootPath); err == nil {
		id, perr := strconv.ParseUint(string(data), 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("store: parse root file: %w", perr)
		}
		fs.root = BlobID(id)
		fs.rootSet = true
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("store: read root file: %w", err)
	}

	return fs, nil
}

func (fs *FileStore) blobPath(id BlobID) string {
	return filepath.Join(fs.dir, strconv.FormatUint(uint64(id), 10))
}

func (fs *FileStore) Allocate(sizeHint int) (BlobID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id := BlobID(fs.nextID)
	fs.nextID++
	return id, nil
}

func (fs *FileStore) Deallocate(id BlobID) error {
	if id == 0 {
		return nil
	}
	err := os.Remove(fs.blobPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: deallocate blob %d: %w", id, err)
	}
	return nil
}

// fileStream wraps an *os.File. For a blob that has no file yet, the
// file is opened against a temp path and Put renames it atomically onto
// the blob's final path before fsyncing the directory entry, so a
// half-written new blob never appears under its final name. For a blob
// whose file already exists, the file is opened in place on its final
// path and Put only fsyncs and closes it. Grounded on the atomic-write
// idiom used throughout the pack's storage layers (temp file + rename +
// fsync).
type fileStream struct {
	f       *os.File
	tmpPath string
	finalID BlobID
	store   *FileStore
}

func (s *fileStream) Read(p []byte) (int, error)                 { return s.f.Read(p) }
func (s *fileStream) Write(p []byte) (int, error)                { return s.f.Write(p) }
func (s *fileStream) Seek(offset int64, whence int) (int64, error) { return s.f.Seek(offset, whence) }

func (fs *FileStore) Get(id BlobID) (Stream, error) {
	if id == 0 {
		return nil, ErrNoSuchBlob
	}
	finalPath := fs.blobPath(id)
	if _, err := os.Stat(finalPath); err == nil {
		f, err := os.OpenFile(finalPath, os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("store: open blob %d: %w", id, err)
		}
		return &fileStream{f: f, finalID: id, store: fs}, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("store: stat blob %d: %w", id, err)
	}

	tmpPath := filepath.Join(fs.tmpDir, uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: create temp blob for %d: %w", id, err)
	}
	return &fileStream{f: f, tmpPath: tmpPath, finalID: id, store: fs}, nil
}

func (fs *FileStore) Put(s Stream) error {
	fstream, ok := s.(*fileStream)
	if !ok {
		return fmt.Errorf("store: Put called with a stream not obtained from this store")
	}
	if err := fstream.f.Sync(); err != nil {
		return fmt.Errorf("store: sync blob %d: %w", fstream.finalID, err)
	}
	if err := fstream.f.Close(); err != nil {
		return fmt.Errorf("store: close blob %d: %w", fstream.finalID, err)
	}
	if fstream.tmpPath != "" {
		finalPath := fstream.store.blobPath(fstream.finalID)
		if err := os.Rename(fstream.tmpPath, finalPath); err != nil {
			return fmt.Errorf("store: commit blob %d: %w", fstream.finalID, err)
		}
		if dir, err := os.Open(fstream.store.dir); err == nil {
			_ = dir.Sync()
			_ = dir.Close()
		}
	}
	return nil
}

func (fs *FileStore) SetRoot(id BlobID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rootPath := filepath.Join(filepath.Dir(fs.dir), rootFileName)
	tmpPath := filepath.Join(fs.tmpDir, uuid.NewString())
	if err := os.WriteFile(tmpPath, []byte(strconv.FormatUint(uint64(id), 10)), 0o644); err != nil {
		return fmt.Errorf("store: stage root: %w", err)
	}
	f, err := os.OpenFile(tmpPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("store: reopen staged root: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("store: sync staged root: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close staged root: %w", err)
	}
	if err := os.Rename(tmpPath, rootPath); err != nil {
		return fmt.Errorf("store: commit root: %w", err)
	}

	fs.root = id
	fs.rootSet = true
	return nil
}

func (fs *FileStore) GetRoot() (BlobID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.rootSet {
		return 0, nil
	}
	return fs.root, nil
}
