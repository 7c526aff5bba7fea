package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"msgflow/backend/internal/app"
	"msgflow/backend/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var svc *app.App

func main() {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Operate the msgflow backend",
		Long: `admin runs maintenance tasks against the msgflow database:
cancel or reschedule scheduled messages, run a sweep on demand and purge chat flows.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, rdb, err := app.Connect(context.Background(), cfg)
			if err != nil {
				return err
			}
			svc, err = app.New(cfg, db, rdb)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if svc != nil {
				svc.Close()
			}
		},
	}

	rootCmd.AddCommand(scheduledCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(rescheduleCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(flowsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
