package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/config"
	"github.com/socket-patch/socket-patch/gc"
	"github.com/socket-patch/socket-patch/manifest"
)

func newGCCmd() *cobra.Command {
	var (
		dryRun      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove blobs no longer referenced by the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("resolving configuration: %w", err)
			}

			m, err := manifest.Load(cfg.ManifestPath)
			if err != nil {
				return err
			}

			store := blobstore.New(cfg.BlobDir)

			start := time.Now()
			report, err := gc.Collect(cmd.Context(), store, m, gc.Options{DryRun: dryRun, Concurrency: concurrency})
			recorder.ObserveDuration(start, "gc", outcome(err))
			if err != nil {
				return err
			}
			recorder.AddGCBytesFreed(report.BytesFreed)

			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be removed without deleting anything")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of blobs to check concurrently")

	return cmd
}
