package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/socket-patch/socket-patch/patcherr"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadMissingIsManifestNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "manifest.json"))
	if err == nil {
		t.Fatal("Load of missing file returned nil error")
	}
	var notFound *patcherr.ManifestNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("Load of missing file = %v, want *patcherr.ManifestNotFound", err)
	}
}

func TestLoadRejectsMalformedUUID(t *testing.T) {
	hash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	path := writeManifest(t, `{"patches":{"npm:left-pad@1.0.0":{"uuid":"not-a-uuid","files":{"index.js":{"beforeHash":"`+hash+`","afterHash":"`+hash+`"}}}}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted a malformed uuid")
	}
}

func TestLoadAndQueries(t *testing.T) {
	id := uuid.New().String()
	before := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	after := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	path := writeManifest(t, `{"patches":{"npm:left-pad@1.0.0":{"uuid":"`+id+`","files":{"index.js":{"beforeHash":"`+before+`","afterHash":"`+after+`"}}}}}`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	rec, ok := m.Lookup("npm:left-pad@1.0.0")
	if !ok {
		t.Fatal("Lookup missed known package")
	}
	if rec.UUID != id {
		t.Fatalf("UUID = %s, want %s", rec.UUID, id)
	}

	keys := m.PackageKeys()
	if len(keys) != 1 || keys[0] != "npm:left-pad@1.0.0" {
		t.Fatalf("PackageKeys = %v", keys)
	}

	if got := m.AfterHashes(); len(got) != 1 || string(got[0]) != after {
		t.Fatalf("AfterHashes = %v", got)
	}
	if got := m.BeforeHashes(); len(got) != 1 || string(got[0]) != before {
		t.Fatalf("BeforeHashes = %v", got)
	}
	if got := m.ReferencedHashes(); len(got) != 2 {
		t.Fatalf("ReferencedHashes = %v, want 2 entries", got)
	}
}

func TestRemovePersists(t *testing.T) {
	id := uuid.New().String()
	before := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	after := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	path := writeManifest(t, `{"patches":{"npm:left-pad@1.0.0":{"uuid":"`+id+`","files":{"index.js":{"beforeHash":"`+before+`","afterHash":"`+after+`"}}}}}`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Remove("npm:left-pad@1.0.0"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := reloaded.Lookup("npm:left-pad@1.0.0"); ok {
		t.Fatal("removed package still present after reload")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written manifest: %v", err)
	}
	if raw[len(raw)-1] != '\n' {
		t.Fatal("manifest write is missing trailing newline")
	}
}

func TestStripPackagePrefix(t *testing.T) {
	cases := map[string]string{
		"package/index.js": "index.js",
		"package/lib/a.js": "lib/a.js",
		"index.js":         "index.js",
	}
	for in, want := range cases {
		if got := StripPackagePrefix(in); got != want {
			t.Errorf("StripPackagePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
