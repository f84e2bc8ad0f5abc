package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"session-sync/configs"
	"session-sync/pkg/logging"
	"session-sync/protocal"
)

type rootFlags struct {
	configPath string
	env        string
	output     string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "sessiond",
		Short: "Session lifecycle and synchronization engine",
		Long: `sessiond keeps a local cache and store of remote conversation sessions in sync with the backend.
Run "sessiond serve" for the local control API, or use the session commands for one-off operations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "./configs", "Directory holding config.yaml")
	cmd.PersistentFlags().StringVar(&flags.env, "env", "", "Environment overlay, reads config.<env>.yaml")
	cmd.PersistentFlags().StringVarP(&flags.output, "output", "o", formatTable, "Output format: table, yaml or json")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "Deadline for one-off commands")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newSessionsCmd(flags))
	cmd.AddCommand(newStatusCmd(flags))
	return cmd
}

// withEngine loads config, wires an in-process engine and runs fn against it
func withEngine(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, engine *protocal.Engine, out *printer) error) error {
	out, err := newPrinter(cmd.OutOrStdout(), flags.output)
	if err != nil {
		return err
	}
	if err := configs.Load(flags.configPath, flags.env); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := *configs.GetViper()
	logging.Configure(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	engine, err := protocal.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logging.NewLogger("cli").Warnf("Failed to close engine: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()
	engine.Restore(ctx)
	return fn(ctx, engine, out)
}
