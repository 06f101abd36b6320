package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/socket-patch/socket-patch/config"
	"github.com/socket-patch/socket-patch/manifest"
	"github.com/socket-patch/socket-patch/verify"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <package-key>",
		Short: "Report each file's classification against the manifest without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("resolving configuration: %w", err)
			}

			m, err := manifest.Load(cfg.ManifestPath)
			if err != nil {
				return err
			}

			key := manifest.PackageKey(args[0])
			rec, ok := m.Lookup(key)
			if !ok {
				return fmt.Errorf("no patch recorded for package %q", key)
			}

			for rawPath, change := range rec.Files {
				relPath := manifest.StripPackagePrefix(rawPath)
				status, err := verify.Classify(filepath.Join(cfg.WorkDir, relPath), change.BeforeHash, change.AfterHash)
				if err != nil {
					return fmt.Errorf("classifying %s: %w", relPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", relPath, status)
			}

			return nil
		},
	}

	return cmd
}
