package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/config"
	"github.com/socket-patch/socket-patch/gc"
	"github.com/socket-patch/socket-patch/manifest"
	"github.com/socket-patch/socket-patch/provider"
	"github.com/socket-patch/socket-patch/repair"
)

func newRepairCmd() *cobra.Command {
	var (
		offline       bool
		downloadOnly  bool
		includeBefore bool
	)

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Fetch blobs missing from the local store, then garbage collect",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.WithOffline(offline))
			if err != nil {
				return fmt.Errorf("resolving configuration: %w", err)
			}

			m, err := manifest.Load(cfg.ManifestPath)
			if err != nil {
				return err
			}

			store := blobstore.New(cfg.BlobDir)

			var p provider.Provider
			if !cfg.Offline && cfg.ProviderURL != "" {
				p = provider.HTTP{BaseURL: cfg.ProviderURL}
			}

			start := time.Now()
			report, err := repair.Run(cmd.Context(), store, m, p, repair.Options{
				SkipFetch:           cfg.Offline,
				SkipGC:              downloadOnly,
				IncludeBeforeHashes: includeBefore,
				GC:                  gc.Options{Concurrency: 4},
			})
			recorder.ObserveDuration(start, "repair", outcome(err))
			if err != nil {
				return err
			}
			recorder.AddBlobsFetched(len(report.Fetched))
			recorder.AddGCBytesFreed(report.GC.BytesFreed)

			fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d failed=%d %s\n", len(report.Fetched), len(report.Failed), report.GC.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "skip fetching; only garbage collect")
	cmd.Flags().BoolVar(&downloadOnly, "download-only", false, "skip garbage collection; only fetch")
	cmd.Flags().BoolVar(&includeBefore, "include-before-hashes", false, "also fetch beforeHash blobs so rollback can run offline later")

	return cmd
}
