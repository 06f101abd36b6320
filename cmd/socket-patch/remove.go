package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/socket-patch/socket-patch/config"
	"github.com/socket-patch/socket-patch/manifest"
)

func newRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <package-key>",
		Short: "Remove a package's patch record from the manifest",
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
			if _, ok := m.Lookup(key); !ok {
				return fmt.Errorf("no patch recorded for package %q", key)
			}

			if !yes {
				confirmed, err := confirm(cmd, fmt.Sprintf("remove the patch record for %s? this does not roll back any applied files", key))
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			return m.Remove(key)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// confirm prompts the user on stdin, mirroring the registry pruner's
// confirm-before-destructive-op pattern.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	var answer string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &answer); err != nil {
		return false, nil
	}
	return answer == "y" || answer == "Y" || answer == "yes", nil
}
