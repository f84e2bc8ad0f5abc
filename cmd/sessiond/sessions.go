package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"session-sync/internal/domain"
	"session-sync/pkg/validator"
	"session-sync/protocal"
)

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "Inspect and manage remote sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(flags),
		newSessionsCreateCmd(flags),
		newSessionsShowCmd(flags),
		newSessionsSwitchCmd(flags),
		newSessionsDeleteCmd(flags),
	)
	return cmd
}

func newSessionsListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Sync and list sessions, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, flags, func(ctx context.Context, engine *protocal.Engine, out *printer) error {
				sessions, err := engine.Repository.GetAllSessions(ctx)
				if err != nil {
					return err
				}
				return out.Sessions(sessions, engine.Repository.CurrentSessionID())
			})
		},
	}
}

func newSessionsCreateCmd(flags *rootFlags) *cobra.Command {
	var name, workingContext string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session on the backend and make it current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, flags, func(ctx context.Context, engine *protocal.Engine, out *printer) error {
				request := domain.CreateSessionRequest{UserID: engine.Sync.UserID()}
				if name != "" {
					request.Name = &name
				}
				if workingContext != "" {
					request.WorkingContext = &workingContext
				}
				if err := validator.New().ValidateStruct(request); err != nil {
					return fmt.Errorf("invalid session: %w", err)
				}
				session, err := engine.Repository.CreateSession(ctx, request)
				if err != nil {
					return err
				}
				return out.Session(*session, session.SessionID)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&workingContext, "context", "", "Working context, usually a project directory")
	return cmd
}

func newSessionsShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Show one session with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, flags, func(ctx context.Context, engine *protocal.Engine, out *printer) error {
				session, err := engine.Repository.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Session(*session, engine.Repository.CurrentSessionID())
			})
		},
	}
}

func newSessionsSwitchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "switch SESSION_ID",
		Short: "Make a session current, loading it from the cheapest tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, flags, func(ctx context.Context, engine *protocal.Engine, out *printer) error {
				session, err := engine.Repository.SwitchToSession(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Session(*session, session.SessionID)
			})
		},
	}
}

func newSessionsDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete SESSION_ID",
		Aliases: []string{"rm"},
		Short:   "Delete a session remotely and locally",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, flags, func(ctx context.Context, engine *protocal.Engine, out *printer) error {
				if err := engine.Repository.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
				return nil
			})
		},
	}
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the backend and print the connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, flags, func(ctx context.Context, engine *protocal.Engine, out *printer) error {
				status := engine.Sync.CheckConnectionStatus(ctx)
				var stats *domain.SessionStats
				if status.IsHealthy() {
					// a stats failure only degrades the status
					stats, _ = engine.Sync.Stats(ctx)
					status = engine.Sync.Status()
				}
				return out.Status(status, engine.Monitor.LastError(), stats)
			})
		},
	}
}
