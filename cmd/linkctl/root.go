package main

import (
	"github.com/kursadbilgin/linkbot/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const appName = "linkctl"

type rootFlags struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Inspect and run the link pipeline from a terminal",
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newExtractCmd(),
		newClassifyCmd(),
		newRunCmd(flags),
	)
	return cmd
}

func (f *rootFlags) logger() (*zap.Logger, error) {
	return observability.NewLogger(f.logLevel)
}
