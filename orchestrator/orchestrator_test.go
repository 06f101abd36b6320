package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/digest"
	"github.com/socket-patch/socket-patch/manifest"
)

type staticLocator struct {
	instances map[manifest.PackageKey][]Instance
}

func (l staticLocator) Locate(ctx context.Context, key manifest.PackageKey) ([]Instance, error) {
	return l.instances[key], nil
}

func TestRunAppliesAcrossPackages(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "blobs"))

	before := []byte("original")
	after := []byte("patched")
	beforeDigest := digest.FromBytes(before)
	afterDigest := digest.FromBytes(after)
	if err := store.Put(afterDigest, after); err != nil {
		t.Fatalf("seeding blob: %v", err)
	}

	pkgDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(pkgDir, "index.js"), before, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	key := manifest.PackageKey("npm:left-pad@1.0.0")
	id := uuid.New().String()
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	body := `{"patches":{"npm:left-pad@1.0.0":{"uuid":"` + id + `","files":{"package/index.js":{"beforeHash":"` +
		string(beforeDigest) + `","afterHash":"` + string(afterDigest) + `"}}}}}`
	if err := os.WriteFile(manifestPath, []byte(body), 0o644); err != nil {
		t.Fatalf("writing manifest fixture: %v", err)
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	locator := staticLocator{instances: map[manifest.PackageKey][]Instance{
		key: {{Key: key, Path: pkgDir}},
	}}

	result, err := Run(context.Background(), ModeApply, m, locator, store, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed() {
		t.Fatalf("Run reported failure: %+v", result.Packages)
	}
	if len(result.Packages) != 1 {
		t.Fatalf("Packages = %v, want 1 entry", result.Packages)
	}
	if result.Packages[0].Apply == nil || len(result.Packages[0].Apply.Applied) != 1 {
		t.Fatalf("Apply result = %+v", result.Packages[0].Apply)
	}
}
