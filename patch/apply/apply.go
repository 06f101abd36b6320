// Package apply implements the two-phase plan-then-execute engine that
// transforms a package directory from its original state to its patched
// state, with a compensating rewind if any write in Phase 2 fails.
package apply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/digest"
	"github.com/socket-patch/socket-patch/internal/dcontext"
	"github.com/socket-patch/socket-patch/internal/uuid"
	"github.com/socket-patch/socket-patch/manifest"
	"github.com/socket-patch/socket-patch/patcherr"
	"github.com/socket-patch/socket-patch/verify"
)

// Action is what Phase 2 should do with a planned file.
type Action int

const (
	// ActionSkip means the file is already patched; no write needed.
	ActionSkip Action = iota
	// ActionWrite means the file is in its original state and should be
	// overwritten with the after-blob's contents.
	ActionWrite
)

// PlanEntry is one file's Phase-1 classification.
type PlanEntry struct {
	RelPath string
	AbsPath string
	Status  verify.Status
	After   digest.Digest
	Action  Action
}

// Result is what an Apply invocation produced.
type Result struct {
	Applied []string
	Skipped []string
	Aborted error
}

// Ensure is called once per required blob during planning. It should make
// the blob locally present (fetching it from a provider if necessary) and
// report whether it succeeded.
type Ensure func(d digest.Digest) bool

// Run applies rec's files under dir. store must already contain (or
// ensure must be able to produce) every afterHash the record references.
// If Phase 1 finds any file Missing, Modified, or backed by an
// unavailable blob, no file is written and Result.Aborted names the first
// such problem. If Phase 2 fails partway through, every file it already
// wrote this invocation is restored to its pre-write bytes before Run
// returns.
func Run(ctx context.Context, dir string, rec manifest.PatchRecord, store *blobstore.Store, ensure Ensure) (Result, error) {
	plan, abortErr := planPhase(dir, rec, store, ensure)
	if abortErr != nil {
		return Result{Aborted: abortErr}, nil
	}

	return executePhase(ctx, plan, store)
}

// Plan runs only Phase 1, returning the classification for every file
// without writing anything. It is what a --dry-run flag shows the caller.
func Plan(dir string, rec manifest.PatchRecord, store *blobstore.Store, ensure Ensure) ([]PlanEntry, error) {
	return planPhase(dir, rec, store, ensure)
}

func planPhase(dir string, rec manifest.PatchRecord, store *blobstore.Store, ensure Ensure) ([]PlanEntry, error) {
	relPaths := make([]string, 0, len(rec.Files))
	for p := range rec.Files {
		relPaths = append(relPaths, p)
	}
	sort.Strings(relPaths)

	plan := make([]PlanEntry, 0, len(relPaths))

	for _, rawPath := range relPaths {
		change := rec.Files[rawPath]
		relPath := manifest.StripPackagePrefix(rawPath)
		absPath := filepath.Join(dir, relPath)

		if !ensure(change.AfterHash) {
			return nil, &patcherr.BlobUnavailable{Digest: change.AfterHash}
		}

		status, err := verify.Classify(absPath, change.BeforeHash, change.AfterHash)
		if err != nil {
			return nil, fmt.Errorf("apply: classifying %s: %w", relPath, err)
		}

		switch status {
		case verify.Patched:
			plan = append(plan, PlanEntry{RelPath: relPath, AbsPath: absPath, Status: status, After: change.AfterHash, Action: ActionSkip})
		case verify.Original:
			plan = append(plan, PlanEntry{RelPath: relPath, AbsPath: absPath, Status: status, After: change.AfterHash, Action: ActionWrite})
		default: // Missing or Modified
			return nil, &patcherr.UnsafeState{Path: relPath, Status: status.String()}
		}
	}

	return plan, nil
}

func executePhase(ctx context.Context, plan []PlanEntry, store *blobstore.Store) (Result, error) {
	snapshots := map[string][]byte{}
	var written []string

	for _, entry := range plan {
		if entry.Action == ActionSkip {
			continue
		}

		pre, err := os.ReadFile(entry.AbsPath)
		if err != nil {
			return rewind(ctx, written, snapshots, fmt.Errorf("apply: snapshotting %s: %w", entry.RelPath, err))
		}
		snapshots[entry.AbsPath] = pre

		contents, err := store.Get(entry.After)
		if err != nil {
			return rewind(ctx, written, snapshots, fmt.Errorf("apply: reading blob %s: %w", entry.After, err))
		}

		if err := writeFileAtomic(entry.AbsPath, contents); err != nil {
			return rewind(ctx, written, snapshots, fmt.Errorf("apply: writing %s: %w", entry.RelPath, err))
		}

		written = append(written, entry.AbsPath)

		got, err := digest.FromFile(entry.AbsPath)
		if err != nil {
			return rewind(ctx, written, snapshots, fmt.Errorf("apply: re-reading %s: %w", entry.RelPath, err))
		}
		if !got.Equal(entry.After) {
			err := &patcherr.IntegrityError{Path: entry.RelPath, Expected: entry.After, Actual: got}
			return rewind(ctx, written, snapshots, err)
		}
	}

	result := Result{}
	for _, entry := range plan {
		switch entry.Action {
		case ActionSkip:
			result.Skipped = append(result.Skipped, entry.RelPath)
		case ActionWrite:
			result.Applied = append(result.Applied, entry.RelPath)
		}
	}
	return result, nil
}

// rewind restores every path in written to its snapshot, in order, and
// returns a Result reporting the abort without any net change on disk.
func rewind(ctx context.Context, written []string, snapshots map[string][]byte, cause error) (Result, error) {
	dcontext.GetLogger(ctx).WithError(cause).Warn("apply failed partway through, rewinding")

	for _, path := range written {
		if err := writeFileAtomic(path, snapshots[path]); err != nil {
			dcontext.GetLogger(ctx).WithError(err).Errorf("rewind: failed to restore %s", path)
		}
	}

	return Result{Aborted: cause}, nil
}

// writeFileAtomic writes contents to path via a temp file in the same
// directory followed by a rename, so a crash mid-write never leaves a
// truncated or partial file in the package tree.
func writeFileAtomic(path string, contents []byte) error {
	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}

	dir := filepath.Dir(path)
	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp", uuid.NewString()))

	if err := os.WriteFile(tempPath, contents, mode); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}

	return nil
}
