// Package gc removes blobs no longer referenced by the manifest, the same
// mark-and-sweep shape distribution's registry garbage collector uses for
// layer blobs, scaled down to a single referenced-set/present-set diff.
package gc

import (
	"context"
	"fmt"
	"sync"

	humanize "github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/digest"
	"github.com/socket-patch/socket-patch/internal/dcontext"
)

// Report summarizes one collection run.
type Report struct {
	Checked    int
	Removed    int
	BytesFreed int64
	DryRun     bool
}

// String renders a one-line human-readable summary.
func (r Report) String() string {
	verb := "removed"
	if r.DryRun {
		verb = "would remove"
	}
	return fmt.Sprintf("checked=%d %s=%d freed=%s", r.Checked, verb, r.Removed, humanize.Bytes(uint64(r.BytesFreed)))
}

// Manifest is the subset of *manifest.Manifest the collector needs.
type Manifest interface {
	ReferencedHashes() []digest.Digest
}

// Options configures a Collect invocation.
type Options struct {
	// DryRun reports what would be removed without deleting anything.
	DryRun bool
	// Concurrency bounds how many unreferenced blobs are sized (by reading
	// them) and deleted concurrently; 0 means sequential.
	Concurrency int
}

// Collect deletes every blob present in store but not referenced by m. A
// blob store whose root directory does not exist yet is treated as
// Checked: 0, not an error.
func Collect(ctx context.Context, store *blobstore.Store, m Manifest, opts Options) (Report, error) {
	present, err := store.List()
	if err != nil {
		return Report{}, fmt.Errorf("gc: listing blobs: %w", err)
	}

	referenced := map[digest.Digest]struct{}{}
	for _, d := range m.ReferencedHashes() {
		referenced[d] = struct{}{}
	}

	var unreferenced []digest.Digest
	for _, d := range present {
		if _, ok := referenced[d]; !ok {
			unreferenced = append(unreferenced, d)
		}
	}

	report := Report{Checked: len(present), DryRun: opts.DryRun}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var (
		mu         sync.Mutex
		removed    int
		bytesFreed int64
	)

	for _, d := range unreferenced {
		d := d
		g.Go(func() error {
			size, err := blobSize(store, d)
			if err != nil {
				return err
			}

			if !opts.DryRun {
				if err := store.Delete(gctx, d); err != nil {
					return err
				}
			}

			mu.Lock()
			removed++
			bytesFreed += size
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("gc: %w", err)
	}

	report.Removed = removed
	report.BytesFreed = bytesFreed

	dcontext.GetLogger(ctx).Infof("garbage collection: %s", report)

	return report, nil
}

func blobSize(store *blobstore.Store, d digest.Digest) (int64, error) {
	b, err := store.Get(d)
	if err != nil {
		return 0, fmt.Errorf("gc: reading %s: %w", d, err)
	}
	return int64(len(b)), nil
}
