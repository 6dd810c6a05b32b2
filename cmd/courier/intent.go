package main

import (
	"fmt"

	"courierloc/config"
	"courierloc/internal/database"
	"courierloc/internal/intent"
	"courierloc/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// openIntentStore opens the agent's local database holding the tracking intent.
func openIntentStore(cfg *config.Config, log *zap.Logger) (*intent.Store, error) {
	db, err := database.NewDB(&config.DatabaseConfig{Driver: "sqlite", DSN: cfg.Tracker.DataPath})
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}
	if err := database.MigrateSettings(db); err != nil {
		return nil, fmt.Errorf("migrate local state: %w", err)
	}
	return intent.NewStore(repository.NewSettingRepository(db), log), nil
}

func newIntentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Inspect or reset the persisted tracking intent",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print whether reporting resumes on the next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openIntentStore(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			state := "off"
			if store.Load() {
				state = "on"
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the persisted intent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openIntentStore(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			if err := store.Clear(); err != nil {
				return fmt.Errorf("clear intent: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "intent cleared")
			return nil
		},
	})
	return cmd
}
