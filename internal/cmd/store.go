package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/config"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/core/store"
	"github.com/Krosebrook/RoseyRecords-sub000/internal/observability"
)

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the admission window store",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		version, err := db.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}

		observability.CLILogger.Info("Store schema up to date",
			zap.Int("schema_version", version),
			zap.String("driver", db.Driver()))
		return nil
	},
}

var storePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the resolved store location",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if cfg.Store.URL != "" {
			fmt.Println(cfg.Store.URL)
			return nil
		}

		path := cfg.Store.Path
		if path == "" {
			path = config.DefaultStorePath()
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeMigrateCmd)
	storeCmd.AddCommand(storePathCmd)
	rootCmd.AddCommand(storeCmd)
}
