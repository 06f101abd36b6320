package main

import (
	"github.com/spf13/cobra"

	"github.com/socket-patch/socket-patch/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the binary's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			version.FprintVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
