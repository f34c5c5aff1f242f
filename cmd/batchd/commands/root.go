package commands

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

// NewRootCmd creates the batchd command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "batchd",
		Short:         "Batch image job service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (default: ./config.yaml, $HOME/.batchd, /etc/batchd)")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newWorkerCommand(opts),
		newMigrateCommand(opts),
		newQuotaCommand(opts),
		newTokenCommand(opts),
		newVersionCommand(),
	)
	return rootCmd
}
