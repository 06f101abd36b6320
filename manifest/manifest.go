// Package manifest loads, validates, and queries the JSON document mapping
// installed package keys to the patch records describing how to transform
// them.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/socket-patch/socket-patch/common"
	"github.com/socket-patch/socket-patch/digest"
	"github.com/socket-patch/socket-patch/patcherr"
)

// PackageKey opaquely identifies an installed package instance, e.g.
// "npm:lodash@4.17.21" or a PURL "pkg:npm/lodash@4.17.21". The manifest
// treats it as an opaque string; only the admin command surface (outside
// this module) needs to parse its grammar.
type PackageKey string

// FileChange describes the content transition of a single file within a
// package, identified by path relative to the package root.
type FileChange struct {
	BeforeHash digest.Digest `json:"beforeHash"`
	AfterHash  digest.Digest `json:"afterHash"`
}

// Vulnerability documents one advisory addressed by a patch.
type Vulnerability struct {
	CVEs        []string `json:"cves"`
	Summary     string   `json:"summary"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
}

// PatchRecord is everything the engine needs to apply or roll back a patch
// for one package instance.
type PatchRecord struct {
	UUID            string                   `json:"uuid"`
	ExportedAt      string                   `json:"exportedAt"`
	Files           map[string]FileChange    `json:"files"`
	Vulnerabilities map[string]Vulnerability `json:"vulnerabilities"`
	Description     string                   `json:"description"`
	License         string                   `json:"license"`
	Tier            string                   `json:"tier"`
}

// AfterHashes returns the afterHash of every file in this record, one entry
// per file; digests shared by several files are not deduplicated.
func (p PatchRecord) AfterHashes() []digest.Digest {
	out := make([]digest.Digest, 0, len(p.Files))
	for _, fc := range p.Files {
		out = append(out, fc.AfterHash)
	}
	return out
}

// BeforeHashes returns the beforeHash of every file in this record, one
// entry per file; digests shared by several files are not deduplicated.
func (p PatchRecord) BeforeHashes() []digest.Digest {
	out := make([]digest.Digest, 0, len(p.Files))
	for _, fc := range p.Files {
		out = append(out, fc.BeforeHash)
	}
	return out
}

// document is the on-disk JSON shape (§6 of the manifest schema).
type document struct {
	Patches map[PackageKey]PatchRecord `json:"patches"`
}

// Manifest is the validated, in-memory form of manifest.json. Construction
// always goes through Load or New so that every Manifest in memory has
// already passed schema validation.
type Manifest struct {
	path    string
	patches map[PackageKey]PatchRecord
}

// New constructs an empty Manifest bound to path, for callers building one
// from scratch (e.g. tests) rather than loading an existing file.
func New(path string) *Manifest {
	return &Manifest{path: path, patches: map[PackageKey]PatchRecord{}}
}

// Load reads and validates the manifest at path. A missing file is reported
// as *patcherr.ManifestNotFound; a malformed one as *patcherr.ManifestInvalid.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &patcherr.ManifestNotFound{Path: path}
		}
		return nil, fmt.Errorf("manifest: reading %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &patcherr.ManifestInvalid{Path: path, Reason: err.Error()}
	}

	if err := validate(doc); err != nil {
		return nil, &patcherr.ManifestInvalid{Path: path, Reason: err.Error()}
	}

	if doc.Patches == nil {
		doc.Patches = map[PackageKey]PatchRecord{}
	}

	return &Manifest{path: path, patches: doc.Patches}, nil
}

func validate(doc document) error {
	for key, rec := range doc.Patches {
		if strings.TrimSpace(string(key)) == "" {
			return fmt.Errorf("empty package key")
		}
		if _, err := uuid.Parse(rec.UUID); err != nil {
			return fmt.Errorf("package %s: invalid uuid %q: %w", key, rec.UUID, err)
		}
		if len(rec.Files) == 0 {
			return fmt.Errorf("package %s: missing files", key)
		}
		for path, fc := range rec.Files {
			if fc.BeforeHash == "" || fc.AfterHash == "" {
				return fmt.Errorf("package %s: file %s missing before/after hash", key, path)
			}
		}
	}
	return nil
}

// Lookup returns the patch record for key, if present.
func (m *Manifest) Lookup(key PackageKey) (PatchRecord, bool) {
	rec, ok := m.patches[key]
	return rec, ok
}

// PackageKeys returns every package key in the manifest, in a stable
// (lexicographic) order so the orchestrator's manifest-iteration order is
// deterministic across runs.
func (m *Manifest) PackageKeys() []PackageKey {
	keys := make([]PackageKey, 0, len(m.patches))
	for k := range m.patches {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// AfterHashes returns the deduplicated union of every afterHash referenced
// by the manifest.
func (m *Manifest) AfterHashes() []digest.Digest {
	return m.collectHashes(PatchRecord.AfterHashes)
}

// BeforeHashes returns the deduplicated union of every beforeHash
// referenced by the manifest.
func (m *Manifest) BeforeHashes() []digest.Digest {
	return m.collectHashes(PatchRecord.BeforeHashes)
}

// ReferencedHashes returns the deduplicated union of every hash (before and
// after) the manifest references. This is the retained set for garbage
// collection: a blob store entry absent from this set is safe to delete.
func (m *Manifest) ReferencedHashes() []digest.Digest {
	seen := make(common.StringSet)
	out := make([]digest.Digest, 0)
	for _, d := range append(m.AfterHashes(), m.BeforeHashes()...) {
		if seen.Contains(d.String()) {
			continue
		}
		seen.Add(d.String())
		out = append(out, d)
	}
	return out
}

func (m *Manifest) collectHashes(extract func(PatchRecord) []digest.Digest) []digest.Digest {
	seen := make(common.StringSet)
	out := make([]digest.Digest, 0)
	for _, rec := range m.patches {
		for _, d := range extract(rec) {
			if seen.Contains(d.String()) {
				continue
			}
			seen.Add(d.String())
			out = append(out, d)
		}
	}
	return out
}

// Remove deletes key from the manifest and persists the result. It is the
// only mutating entry point, matching the single admin write path.
func (m *Manifest) Remove(key PackageKey) error {
	if _, ok := m.patches[key]; !ok {
		return nil
	}
	delete(m.patches, key)
	return m.save()
}

// save writes the manifest back to disk as 2-space-indented JSON with a
// trailing newline, last-write-wins.
func (m *Manifest) save() error {
	doc := document{Patches: m.patches}

	buf, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encoding: %w", err)
	}
	buf = append(buf, '\n')

	return os.WriteFile(m.path, buf, 0o644)
}

// StripPackagePrefix removes a single leading "package/" path segment, the
// convention patch archives use for the root of the package tree. If the
// prefix is absent the path is returned unchanged.
func StripPackagePrefix(path string) string {
	const prefix = "package/"
	return strings.TrimPrefix(path, prefix)
}
