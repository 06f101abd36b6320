package repair

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/digest"
)

type fakeManifest struct {
	after, before, referenced []digest.Digest
}

func (f fakeManifest) AfterHashes() []digest.Digest      { return f.after }
func (f fakeManifest) BeforeHashes() []digest.Digest     { return f.before }
func (f fakeManifest) ReferencedHashes() []digest.Digest { return f.referenced }

type fakeProvider struct {
	blobs map[digest.Digest][]byte
}

func (p fakeProvider) FetchBlob(ctx context.Context, d digest.Digest) ([]byte, error) {
	if b, ok := p.blobs[d]; ok {
		return b, nil
	}
	return nil, errNotAvailable
}

var errNotAvailable = &notAvailableErr{}

type notAvailableErr struct{}

func (*notAvailableErr) Error() string { return "not available" }

func TestRunFetchesMissingBlobs(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "blobs"))
	content := []byte("patched contents")
	d := digest.FromBytes(content)

	m := fakeManifest{after: []digest.Digest{d}, referenced: []digest.Digest{d}}
	p := fakeProvider{blobs: map[digest.Digest][]byte{d: content}}

	report, err := Run(context.Background(), store, m, p, Options{SkipGC: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Fetched) != 1 || report.Fetched[0] != d {
		t.Fatalf("Fetched = %v", report.Fetched)
	}
	if has, _ := store.Has(d); !has {
		t.Fatal("blob was not stored after fetch")
	}
}

func TestRunRecordsFailures(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "blobs"))
	d := digest.FromBytes([]byte("unreachable"))

	m := fakeManifest{after: []digest.Digest{d}}
	p := fakeProvider{blobs: map[digest.Digest][]byte{}}

	report, err := Run(context.Background(), store, m, p, Options{SkipGC: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Digest != d {
		t.Fatalf("Failed = %v", report.Failed)
	}
}

func TestRunSkipFetchOnlyRunsGC(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "blobs"))
	orphan := []byte("orphan")
	od := digest.FromBytes(orphan)
	if err := store.Put(od, orphan); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	m := fakeManifest{}
	report, err := Run(context.Background(), store, m, nil, Options{SkipFetch: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Fetched) != 0 || len(report.Failed) != 0 {
		t.Fatalf("fetch phase ran despite SkipFetch: %+v", report)
	}
	if report.GC.Removed != 1 {
		t.Fatalf("GC.Removed = %d, want 1", report.GC.Removed)
	}
}
