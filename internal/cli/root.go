// Package cli implements the voxloop command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/voxloop/voxloop/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	log *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voxloop",
		Short: "Voxloop — per-call conversation orchestrator for telephony",
		Long:  "Voxloop turns speech transcripts into guarded, multi-turn phone conversations: it keeps per-call session state, screens input and output, and drives a language model one bounded turn at a time.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default voxloop.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInvokeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
