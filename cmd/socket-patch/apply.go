package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socket-patch/socket-patch/blobstore"
	"github.com/socket-patch/socket-patch/config"
	"github.com/socket-patch/socket-patch/digest"
	"github.com/socket-patch/socket-patch/internal/dcontext"
	"github.com/socket-patch/socket-patch/manifest"
	"github.com/socket-patch/socket-patch/orchestrator"
	"github.com/socket-patch/socket-patch/patch/apply"
	"github.com/socket-patch/socket-patch/patch/rollback"
	"github.com/socket-patch/socket-patch/provider"
)

func newApplyCmd() *cobra.Command {
	var (
		offline     bool
		dryRun      bool
		concurrency int
		targets     []string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply patches described by the manifest to installed packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestrated(cmd.Context(), orchestrator.ModeApply, offline, dryRun, concurrency, targets)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact a remote blob provider")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing anything")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of package instances to process concurrently")
	cmd.Flags().StringSliceVar(&targets, "package", nil, "restrict to this package key (repeatable); default is every package in the manifest")

	return cmd
}

func newRollbackCmd() *cobra.Command {
	var (
		offline     bool
		dryRun      bool
		concurrency int
		targets     []string
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back patches described by the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestrated(cmd.Context(), orchestrator.ModeRollback, offline, dryRun, concurrency, targets)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact a remote blob provider for missing pre-patch blobs")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing anything")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of package instances to process concurrently")
	cmd.Flags().StringSliceVar(&targets, "package", nil, "restrict to this package key (repeatable); default is every package in the manifest")

	return cmd
}

func runOrchestrated(ctx context.Context, mode orchestrator.Mode, offline, dryRun bool, concurrency int, targetStrings []string) error {
	cfg, err := config.Load(config.WithOffline(offline))
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}

	m, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		return err
	}

	store := blobstore.New(cfg.BlobDir)

	var p provider.Provider = provider.Null{}
	if !cfg.Offline && cfg.ProviderURL != "" {
		p = provider.HTTP{BaseURL: cfg.ProviderURL}
	}

	targets := make([]manifest.PackageKey, 0, len(targetStrings))
	for _, t := range targetStrings {
		targets = append(targets, manifest.PackageKey(t))
	}

	// ensureFetch backs the --dry-run plan: a blob the provider can supply
	// counts as available, but it is only checked, never written to the
	// store.
	ensureFetch := func(d digest.Digest) bool {
		has, err := store.Has(d)
		if err != nil {
			return false
		}
		if has {
			return true
		}
		contents, err := p.FetchBlob(ctx, d)
		if err != nil {
			return false
		}
		return digest.FromBytes(contents).Equal(d)
	}

	if dryRun {
		return runPlanOnly(ctx, mode, m, cfg.WorkDir, store, ensureFetch, nilIfEmpty(targets))
	}

	locator := orchestrator.WorkDirLocator{Dir: cfg.WorkDir}

	result, err := orchestrator.Run(ctx, mode, m, locator, store, orchestrator.Options{
		Targets:     nilIfEmpty(targets),
		Concurrency: concurrency,
		Provider:    p,
		Metrics:     recorder,
	})
	if err != nil {
		return err
	}

	for _, pr := range result.Packages {
		reportPackageResult(ctx, pr)
	}

	if result.Failed() {
		return fmt.Errorf("one or more packages failed")
	}
	return nil
}

func reportPackageResult(ctx context.Context, pr orchestrator.PackageResult) {
	logger := dcontext.GetLoggerWithField(ctx, "package", pr.Key)
	switch {
	case pr.Err != nil:
		logger.WithError(pr.Err).Error("package processing failed")
	case pr.Apply != nil && pr.Apply.Aborted != nil:
		logger.WithError(pr.Apply.Aborted).Error("apply aborted")
	case pr.Rollback != nil && pr.Rollback.Aborted != nil:
		logger.WithError(pr.Rollback.Aborted).Error("rollback aborted")
	case pr.Apply != nil:
		logger.Infof("applied %d files, skipped %d", len(pr.Apply.Applied), len(pr.Apply.Skipped))
	case pr.Rollback != nil:
		logger.Infof("restored %d files, skipped %d", len(pr.Rollback.Restored), len(pr.Rollback.Skipped))
	}
}

func nilIfEmpty(keys []manifest.PackageKey) []manifest.PackageKey {
	if len(keys) == 0 {
		return nil
	}
	return keys
}

// runPlanOnly prints each package's Phase-1 classification without ever
// entering Phase 2, for --dry-run.
func runPlanOnly(ctx context.Context, mode orchestrator.Mode, m *manifest.Manifest, workDir string, store *blobstore.Store, ensure func(digest.Digest) bool, targets []manifest.PackageKey) error {
	keys := targets
	if keys == nil {
		keys = m.PackageKeys()
	}

	for _, key := range keys {
		rec, ok := m.Lookup(key)
		if !ok {
			continue
		}

		logger := dcontext.GetLoggerWithField(ctx, "package", key)

		switch mode {
		case orchestrator.ModeApply:
			plan, err := apply.Plan(workDir, rec, store, apply.Ensure(ensure))
			if err != nil {
				logger.WithError(err).Error("would abort")
				continue
			}
			for _, entry := range plan {
				logger.Infof("%s: %s -> %v", entry.RelPath, entry.Status, entry.Action == apply.ActionWrite)
			}
		case orchestrator.ModeRollback:
			plan, err := rollback.Plan(workDir, rec, store, rollback.Ensure(ensure))
			if err != nil {
				logger.WithError(err).Error("would abort")
				continue
			}
			for _, entry := range plan {
				logger.Infof("%s: %s -> %v", entry.RelPath, entry.Status, entry.Action == rollback.ActionWrite)
			}
		}
	}

	return nil
}
