// Command socket-patch applies, rolls back, verifies, and garbage collects
// curated security patches against installed third-party packages.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logFormat     string
		verbose       bool
		metricsListen string
	)

	root := &cobra.Command{
		Use:           "socket-patch",
		Short:         "Apply and manage curated security patches for installed packages",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(logFormat, verbose)
			if metricsListen != "" {
				recorder = startMetricsServer(cmd.Context(), metricsListen)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (e.g. :9090); disabled when empty")

	root.AddCommand(
		newApplyCmd(),
		newRollbackCmd(),
		newVerifyCmd(),
		newGCCmd(),
		newRepairCmd(),
		newRemoveCmd(),
		newVersionCmd(),
	)

	return root
}

func configureLogging(format string, verbose bool) {
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
