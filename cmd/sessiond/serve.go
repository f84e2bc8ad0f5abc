package main

import (
	"github.com/spf13/cobra"

	"session-sync/protocal"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the local HTTP control API",
		Long: `Starts the engine: restores recent sessions from the store, probes the backend,
starts the background refresh loop and serves the control API until a terminate
event or signal arrives.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return protocal.ServeHTTP(flags.configPath, flags.env)
		},
	}
}
