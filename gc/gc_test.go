package gc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/digest"
)

type fakeManifest struct {
	referenced []digest.Digest
}

func (f fakeManifest) ReferencedHashes() []digest.Digest { return f.referenced }

func TestCollectRemovesOnlyUnreferenced(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "blobs"))

	keep := []byte("referenced")
	drop := []byte("orphaned")
	keepDigest := digest.FromBytes(keep)
	dropDigest := digest.FromBytes(drop)

	if err := store.Put(keepDigest, keep); err != nil {
		t.Fatalf("seeding keep: %v", err)
	}
	if err := store.Put(dropDigest, drop); err != nil {
		t.Fatalf("seeding drop: %v", err)
	}

	report, err := Collect(context.Background(), store, fakeManifest{referenced: []digest.Digest{keepDigest}}, Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Checked != 2 || report.Removed != 1 {
		t.Fatalf("report = %+v, want Checked=2 Removed=1", report)
	}

	if has, _ := store.Has(keepDigest); !has {
		t.Fatal("Collect removed a referenced blob")
	}
	if has, _ := store.Has(dropDigest); has {
		t.Fatal("Collect left an unreferenced blob behind")
	}
}

func TestCollectDryRunChangesNothing(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "blobs"))
	drop := []byte("orphaned")
	dropDigest := digest.FromBytes(drop)
	if err := store.Put(dropDigest, drop); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	report, err := Collect(context.Background(), store, fakeManifest{}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Removed != 1 || !report.DryRun {
		t.Fatalf("report = %+v, want Removed=1 DryRun=true", report)
	}

	if has, _ := store.Has(dropDigest); !has {
		t.Fatal("dry-run Collect deleted a blob")
	}
}

func TestCollectOnMissingStoreDirIsZero(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "does-not-exist"))

	report, err := Collect(context.Background(), store, fakeManifest{}, Options{})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Checked != 0 {
		t.Fatalf("Checked = %d, want 0", report.Checked)
	}
}
