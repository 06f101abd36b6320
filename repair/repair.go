// Package repair fetches any blob a manifest references but the local
// blob store is missing, then garbage collects. Both phases are
// independently toggled, so "offline" or "download-only" modes are just
// flag combinations over the same algorithm.
package repair

import (
	"context"
	"fmt"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/common"
	"github.com/socket-patch/socket-patch/digest"
	"github.com/socket-patch/socket-patch/gc"
	"github.com/socket-patch/socket-patch/internal/dcontext"
	"github.com/socket-patch/socket-patch/provider"
)

// Manifest is the subset of *manifest.Manifest the repair engine needs.
type Manifest interface {
	AfterHashes() []digest.Digest
	BeforeHashes() []digest.Digest
	ReferencedHashes() []digest.Digest
}

// Options configures a Run invocation.
type Options struct {
	// SkipFetch disables phase 1 (fetching missing blobs), e.g. for
	// offline mode: only the garbage-collection phase runs.
	SkipFetch bool
	// SkipGC disables phase 2 (garbage collection), e.g. for
	// download-only mode.
	SkipGC bool
	// IncludeBeforeHashes also fetches beforeHash blobs, not just
	// afterHash ones, so a later rollback does not need network access.
	IncludeBeforeHashes bool
	GC                  gc.Options
}

// BlobResult records the outcome of fetching one missing blob.
type BlobResult struct {
	Digest digest.Digest
	Err    error
}

// Report summarizes a Run.
type Report struct {
	Fetched []digest.Digest
	Failed  []BlobResult
	GC      gc.Report
}

// Run fetches missing blobs via p (skipped entirely if opts.SkipFetch; with
// a nil p every missing blob is recorded under Report.Failed) and then
// garbage collects (skipped if opts.SkipGC).
func Run(ctx context.Context, store *blobstore.Store, m Manifest, p provider.Provider, opts Options) (Report, error) {
	var report Report

	if !opts.SkipFetch {
		needed := m.AfterHashes()
		if opts.IncludeBeforeHashes {
			needed = append(needed, m.BeforeHashes()...)
		}

		for _, d := range dedupe(needed) {
			has, err := store.Has(d)
			if err != nil {
				return Report{}, fmt.Errorf("repair: checking %s: %w", d, err)
			}
			if has {
				continue
			}

			if p == nil {
				report.Failed = append(report.Failed, BlobResult{Digest: d, Err: fmt.Errorf("repair: no provider configured")})
				continue
			}

			contents, err := p.FetchBlob(ctx, d)
			if err != nil {
				dcontext.GetLogger(ctx).WithError(err).Warnf("repair: could not fetch %s", d)
				report.Failed = append(report.Failed, BlobResult{Digest: d, Err: err})
				continue
			}

			if err := store.Put(d, contents); err != nil {
				dcontext.GetLogger(ctx).WithError(err).Warnf("repair: could not store %s", d)
				report.Failed = append(report.Failed, BlobResult{Digest: d, Err: err})
				continue
			}

			report.Fetched = append(report.Fetched, d)
		}
	}

	if !opts.SkipGC {
		gcReport, err := gc.Collect(ctx, store, m, opts.GC)
		if err != nil {
			return report, fmt.Errorf("repair: %w", err)
		}
		report.GC = gcReport
	}

	return report, nil
}

func dedupe(digests []digest.Digest) []digest.Digest {
	seen := make(common.StringSet, len(digests))
	out := make([]digest.Digest, 0, len(digests))
	for _, d := range digests {
		if seen.Contains(d.String()) {
			continue
		}
		seen.Add(d.String())
		out = append(out, d)
	}
	return out
}
