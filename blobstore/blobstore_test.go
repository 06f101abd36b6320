package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/socket-patch/socket-patch/digest"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	content := []byte("console.log('patched')")
	d := digest.FromBytes(content)

	if err := s.Put(d, content); err != nil {
		t.Fatalf("Put: %v", err)
	}

	has, err := s.Has(d)
	if err != nil || !has {
		t.Fatalf("Has = %v, %v; want true, nil", has, err)
	}

	got, err := s.Get(d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("Get = %q, want %q", got, content)
	}
}

func TestPutRejectsMismatchedDigest(t *testing.T) {
	s := New(t.TempDir())
	content := []byte("a")
	wrong := digest.FromBytes([]byte("b"))

	err := s.Put(wrong, content)
	if err == nil {
		t.Fatal("Put accepted content not matching the given digest")
	}

	if has, _ := s.Has(wrong); has {
		t.Fatal("Put left a blob behind after an integrity failure")
	}

	entries, _ := os.ReadDir(s.root)
	if len(entries) != 0 {
		t.Fatalf("Put left stray files: %v", entries)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Get(digest.FromBytes([]byte("absent")))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := New(t.TempDir())
	a := []byte("alpha")
	b := []byte("beta")
	da, db := digest.FromBytes(a), digest.FromBytes(b)

	if err := s.Put(da, a); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := s.Put(db, b); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List = %v, want 2 entries", list)
	}

	if err := s.Delete(context.Background(), da); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if has, _ := s.Has(da); has {
		t.Fatal("Delete did not remove the blob")
	}

	// Deleting again is a no-op, not an error.
	if err := s.Delete(context.Background(), da); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestListOnMissingDirectoryIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist"))
	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("List = %v, want empty", list)
	}
}
