// Package blobstore implements a flat, content-addressed store of patch
// file contents on the local filesystem, keyed solely by digest.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/socket-patch/socket-patch/digest"
	"github.com/socket-patch/socket-patch/internal/dcontext"
	"github.com/socket-patch/socket-patch/internal/uuid"
	"github.com/socket-patch/socket-patch/patcherr"
)

// ErrNotFound is returned by Get and Open when the requested digest is not
// present in the store.
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is a directory of blobs named by their digest, with no
// subdirectory sharding: <root>/<digest>.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory is created lazily by
// Put; Has/Get/Open/List all tolerate a directory that does not exist yet,
// treating it as empty.
func New(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) path(d digest.Digest) string {
	return filepath.Join(s.root, string(d))
}

// Root returns the directory the store is rooted at.
func (s *Store) Root() string {
	return s.root
}

// Has reports whether d is present in the store.
func (s *Store) Has(d digest.Digest) (bool, error) {
	_, err := os.Stat(s.path(d))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("blobstore: stat %s: %w", d, err)
}

// Get returns the full contents of d, or ErrNotFound if absent.
func (s *Store) Get(d digest.Digest) ([]byte, error) {
	b, err := os.ReadFile(s.path(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: reading %s: %w", d, err)
	}
	return b, nil
}

// Open returns a stream over the contents of d, or ErrNotFound if absent.
// The caller must Close the returned stream.
func (s *Store) Open(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.path(d))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: opening %s: %w", d, err)
	}
	return f, nil
}

// Put writes contents under d, atomically: the data lands in a temp file in
// the same directory and is renamed into place only after the destination
// would re-hash to d, mirroring the write-then-verify discipline storage
// drivers in this family use for all durable writes. A hash mismatch
// returns *patcherr.IntegrityError and removes the partial file.
func (s *Store) Put(d digest.Digest, contents []byte) error {
	if computed := digest.FromBytes(contents); !computed.Equal(d) {
		return &patcherr.IntegrityError{Path: string(d), Expected: d, Actual: computed}
	}

	if err := os.MkdirAll(s.root, 0o777); err != nil {
		return fmt.Errorf("blobstore: creating %s: %w", s.root, err)
	}

	tempPath := filepath.Join(s.root, fmt.Sprintf(".%s.%s.tmp", d, uuid.NewString()))

	if err := writeFileAtomic(tempPath, contents); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("blobstore: writing temp file: %w", err)
	}

	// Re-verify against the bytes actually landed on disk before exposing
	// them under their final name.
	reread, err := os.ReadFile(tempPath)
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("blobstore: re-reading temp file: %w", err)
	}
	if computed := digest.FromBytes(reread); !computed.Equal(d) {
		os.Remove(tempPath)
		return &patcherr.IntegrityError{Path: string(d), Expected: d, Actual: computed}
	}

	dest := s.path(d)
	if err := os.Rename(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("blobstore: renaming into place: %w", err)
	}

	return nil
}

func writeFileAtomic(path string, contents []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, bytes.NewReader(contents)); err != nil {
		return err
	}
	return f.Sync()
}

// Delete removes d from the store. It is idempotent: deleting an absent
// digest is not an error.
func (s *Store) Delete(ctx context.Context, d digest.Digest) error {
	err := os.Remove(s.path(d))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: deleting %s: %w", d, err)
	}
	dcontext.GetLogger(ctx).Infof("deleted blob %s", d)
	return nil
}

// List returns every digest currently present in the store. An absent root
// directory is treated as an empty store, not an error.
func (s *Store) List() ([]digest.Digest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("blobstore: listing %s: %w", s.root, err)
	}

	out := make([]digest.Digest, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > 0 && name[0] == '.' {
			continue // skip stray temp files from an interrupted Put
		}
		if d, err := digest.Parse(name); err == nil {
			out = append(out, d)
		}
	}
	return out, nil
}
