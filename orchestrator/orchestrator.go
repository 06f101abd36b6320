// Package orchestrator drives apply or rollback across every package
// instance a manifest describes, aggregating per-package results the way
// the registry's garbage collector aggregates per-repository stats.
package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/digest"
	"github.com/socket-patch/socket-patch/internal/dcontext"
	"github.com/socket-patch/socket-patch/manifest"
	"github.com/socket-patch/socket-patch/metrics"
	"github.com/socket-patch/socket-patch/patch/apply"
	"github.com/socket-patch/socket-patch/patch/rollback"
	"github.com/socket-patch/socket-patch/provider"
)

// Instance is one on-disk location of an installed package, as produced by
// an external package-tree locator.
type Instance struct {
	Key  manifest.PackageKey
	Path string
}

// Locator finds installed instances of a package key on disk. Its
// implementation (an npm/yarn/pnpm tree walker, for example) is outside
// this module's scope; this module only defines the contract it consumes.
type Locator interface {
	Locate(ctx context.Context, key manifest.PackageKey) ([]Instance, error)
}

// WorkDirLocator treats Dir itself as the sole instance of every package
// key it is asked about. It is a minimal stand-in for a real node_modules
// (or equivalent) tree walker, useful when the patch target is a single
// already-resolved package directory rather than a project with many
// installed dependencies.
type WorkDirLocator struct {
	Dir string
}

// Locate implements Locator.
func (l WorkDirLocator) Locate(ctx context.Context, key manifest.PackageKey) ([]Instance, error) {
	return []Instance{{Key: key, Path: l.Dir}}, nil
}

// Mode selects which engine Run drives.
type Mode int

const (
	ModeApply Mode = iota
	ModeRollback
)

// PackageResult is one package instance's outcome.
type PackageResult struct {
	Key      manifest.PackageKey
	Path     string
	Apply    *apply.Result
	Rollback *rollback.Result
	Err      error
}

// Result aggregates every package instance processed by a Run.
type Result struct {
	Packages []PackageResult
}

// Failed reports whether any package instance aborted or errored.
func (r Result) Failed() bool {
	for _, p := range r.Packages {
		if p.Err != nil {
			return true
		}
		if p.Apply != nil && p.Apply.Aborted != nil {
			return true
		}
		if p.Rollback != nil && p.Rollback.Aborted != nil {
			return true
		}
	}
	return false
}

// Options configures a Run invocation.
type Options struct {
	// Targets restricts the run to these package keys; nil means every
	// key in the manifest, in its stable iteration order.
	Targets []manifest.PackageKey
	// Concurrency bounds how many package instances are processed at
	// once; distinct package directories never share state, so this is
	// safe to raise above 1. 0 or 1 means strictly sequential.
	Concurrency int
	Provider    provider.Provider
	// Metrics records per-file and per-blob counters as instances are
	// processed. A nil Metrics records nothing.
	Metrics *metrics.Recorder
}

// Run resolves each target package key to its installed instances via
// locator and applies or rolls back rec for each, in manifest order,
// sequentially within a package and optionally concurrently across
// packages.
func Run(ctx context.Context, mode Mode, m *manifest.Manifest, locator Locator, store *blobstore.Store, opts Options) (Result, error) {
	keys := opts.Targets
	if keys == nil {
		keys = m.PackageKeys()
	}

	type work struct {
		key manifest.PackageKey
		rec manifest.PatchRecord
	}

	var items []work
	for _, key := range keys {
		rec, ok := m.Lookup(key)
		if !ok {
			continue
		}
		items = append(items, work{key: key, rec: rec})
	}

	results := make([]PackageResult, 0, len(items))

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	perItem := make([][]PackageResult, len(items))

	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			instances, err := locator.Locate(gctx, it.key)
			if err != nil {
				perItem[i] = []PackageResult{{Key: it.key, Err: fmt.Errorf("orchestrator: locating %s: %w", it.key, err)}}
				return nil
			}

			var out []PackageResult
			for _, inst := range instances {
				out = append(out, runOne(gctx, mode, it.key, inst, it.rec, store, opts.Provider, opts.Metrics))
			}
			perItem[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("orchestrator: %w", err)
	}

	for _, batch := range perItem {
		results = append(results, batch...)
	}

	dcontext.GetLogger(ctx).Infof("orchestrator: processed %d package instances", len(results))

	return Result{Packages: results}, nil
}

func runOne(ctx context.Context, mode Mode, key manifest.PackageKey, inst Instance, rec manifest.PatchRecord, store *blobstore.Store, p provider.Provider, m *metrics.Recorder) PackageResult {
	fetched := 0
	ensureFetch := func(d digest.Digest) bool {
		has, err := store.Has(d)
		if err != nil {
			return false
		}
		if has {
			return true
		}
		if p == nil {
			return false
		}
		contents, err := p.FetchBlob(ctx, d)
		if err != nil {
			return false
		}
		if err := store.Put(d, contents); err != nil {
			return false
		}
		fetched++
		return true
	}

	switch mode {
	case ModeApply:
		result, err := apply.Run(ctx, inst.Path, rec, store, ensureFetch)
		m.AddFilesApplied(len(result.Applied))
		m.AddFilesSkipped(len(result.Skipped))
		m.AddBlobsFetched(fetched)
		return PackageResult{Key: key, Path: inst.Path, Apply: &result, Err: err}
	default:
		result, err := rollback.Run(ctx, inst.Path, rec, store, ensureFetch)
		m.AddFilesApplied(len(result.Restored))
		m.AddFilesSkipped(len(result.Skipped))
		m.AddBlobsFetched(fetched)
		return PackageResult{Key: key, Path: inst.Path, Rollback: &result, Err: err}
	}
}
