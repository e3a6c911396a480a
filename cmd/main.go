package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/app"
	"github.com/lijuuu/StakedChallengeService/internal/config"
	"github.com/lijuuu/StakedChallengeService/internal/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "challenge-service",
		Short:        "Staked challenge lifecycle and settlement service",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCommand(), newReconcileCommand())
	return cmd
}

func bootstrap() (config.Config, *zap.Logger, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(logger.Configuration{
		LogFile:   cfg.LogFile,
		ErrorFile: cfg.ErrorLogFile,
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
	})
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers, the elimination scheduler and reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := app.New(cfg, log)
			if err != nil {
				log.Error("failed to start", zap.Error(err))
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and print divergences",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			divergences, err := a.Coordinator().Reconcile(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(divergences); err != nil {
				return err
			}
			if len(divergences) > 0 {
				return fmt.Errorf("%d challenge(s) diverged from the ledger", len(divergences))
			}
			return nil
		},
	}
}
