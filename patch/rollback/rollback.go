// Package rollback implements the mirror of package apply: it transforms a
// package directory from its patched state back to its original state,
// with the same two-phase plan/execute/rewind discipline.
package rollback

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
	// ActionSkip means the file is already in its original state.
	ActionSkip Action = iota
	// ActionWrite means the file is patched and should be restored to
	// the before-blob's contents.
	ActionWrite
)

// PlanEntry is one file's Phase-1 classification for a rollback.
type PlanEntry struct {
	RelPath string
	AbsPath string
	Status  verify.Status
	Before  digest.Digest
	Action  Action
}

// Result is what a Run invocation produced.
type Result struct {
	Restored []string
	Skipped  []string
	Aborted  error
}

// Ensure is called once per required beforeHash blob during planning. For
// rollback this may call a remote provider on demand when the blob is not
// already present locally; callers running in offline mode should supply
// an Ensure that never succeeds for an absent blob.
type Ensure func(d digest.Digest) bool

// Run rolls rec's files back under dir to their pre-patch contents. A
// file already Original is a no-op; any file Missing or Modified aborts
// the whole operation before any write happens. A failed write rewinds
// every file this invocation already restored.
func Run(ctx context.Context, dir string, rec manifest.PatchRecord, store *blobstore.Store, ensure Ensure) (Result, error) {
	plan, abortErr := planPhase(dir, rec, store, ensure)
	if abortErr != nil {
		return Result{Aborted: abortErr}, nil
	}

	return executeWithStore(ctx, plan, store)
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

		// Roles swapped from apply: verify against (after, before) so
		// Patched means "needs restoring" and Original means "already
		// rolled back", matching the rollback semantics of §4.G.
		status, err := verify.Classify(absPath, change.AfterHash, change.BeforeHash)
		if err != nil {
			return nil, fmt.Errorf("rollback: classifying %s: %w", relPath, err)
		}

		switch status {
		case verify.Patched: // current already equals beforeHash: already rolled back
			plan = append(plan, PlanEntry{RelPath: relPath, AbsPath: absPath, Status: verify.Original, Before: change.BeforeHash, Action: ActionSkip})
			continue
		case verify.Original: // current equals afterHash: still patched, needs restoring
			if !ensure(change.BeforeHash) {
				return nil, &patcherr.MissingBeforeBlob{Digest: change.BeforeHash}
			}
			plan = append(plan, PlanEntry{RelPath: relPath, AbsPath: absPath, Status: verify.Patched, Before: change.BeforeHash, Action: ActionWrite})
		default: // Missing or Modified
			return nil, &patcherr.UnsafeState{Path: relPath, Status: status.String()}
		}
	}

	return plan, nil
}

// storeGetter is satisfied by *blobstore.Store; kept as a narrow interface
// so tests can exercise executeWithStore without a full store.
type storeGetter interface {
	Get(d digest.Digest) ([]byte, error)
}

func executeWithStore(ctx context.Context, plan []PlanEntry, store storeGetter) (Result, error) {
	snapshots := map[string][]byte{}
	var written []string

	for _, entry := range plan {
		if entry.Action == ActionSkip {
			continue
		}

		pre, err := os.ReadFile(entry.AbsPath)
		if err != nil {
			return rewind(ctx, written, snapshots, fmt.Errorf("rollback: snapshotting %s: %w", entry.RelPath, err))
		}
		snapshots[entry.AbsPath] = pre

		contents, err := store.Get(entry.Before)
		if err != nil {
			return rewind(ctx, written, snapshots, fmt.Errorf("rollback: reading blob %s: %w", entry.Before, err))
		}

		if err := writeFileAtomic(entry.AbsPath, contents); err != nil {
			return rewind(ctx, written, snapshots, fmt.Errorf("rollback: writing %s: %w", entry.RelPath, err))
		}

		written = append(written, entry.AbsPath)

		got, err := digest.FromFile(entry.AbsPath)
		if err != nil {
			return rewind(ctx, written, snapshots, fmt.Errorf("rollback: re-reading %s: %w", entry.RelPath, err))
		}
		if !got.Equal(entry.Before) {
			err := &patcherr.IntegrityError{Path: entry.RelPath, Expected: entry.Before, Actual: got}
			return rewind(ctx, written, snapshots, err)
		}
	}

	result := Result{}
	for _, entry := range plan {
		switch entry.Action {
		case ActionSkip:
			result.Skipped = append(result.Skipped, entry.RelPath)
		case ActionWrite:
			result.Restored = append(result.Restored, entry.RelPath)
		}
	}
	return result, nil
}

func rewind(ctx context.Context, written []string, snapshots map[string][]byte, cause error) (Result, error) {
	dcontext.GetLogger(ctx).WithError(cause).Warn("rollback failed partway through, rewinding")

	for _, path := range written {
		if err := writeFileAtomic(path, snapshots[path]); err != nil {
			dcontext.GetLogger(ctx).WithError(err).Errorf("rewind: failed to restore %s", path)
		}
	}

	return Result{Aborted: cause}, nil
}

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
