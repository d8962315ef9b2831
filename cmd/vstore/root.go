package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var (
	flagConfig   string
	flagDataDir  string
	flagDatabase string
	flagVerbose  bool
)

var (
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg    *config
)

var rootCmd = &cobra.Command{
	Use:           "vstore",
	Short:         "Inspect and edit a vstore database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
		c, err := loadConfig(flagConfig)
		if err != nil {
			return err
		}
		if flagDataDir != "" {
			c.DataDir = flagDataDir
		}
		if flagDatabase != "" {
			c.Database = flagDatabase
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./vstore.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: "+defaultDataDir+")")
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "db", "", "database name (default: "+defaultDatabase+")")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(storesCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(objCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// withDB opens the configured database, runs fn and closes everything.
func withDB(ctx context.Context, fn func(db *vstore.DB) error) error {
	scm, err := cfg.schema()
	if err != nil {
		return err
	}

	eng, err := vstore.OpenEngine(filepath.Clean(cfg.DataDir), vstore.EngineOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer eng.Close()

	db, err := vstore.Open(ctx, eng, cfg.Database, scm, cfg.options())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.WaitSchema(); err != nil {
		return fmt.Errorf("create declared stores: %w", err)
	}
	return fn(db)
}

func store(db *vstore.DB, name string) (*vstore.Store, error) {
	if st := db.Store(name); st != nil {
		return st, nil
	}
	return nil, fmt.Errorf("unknown store %q (declare it under stores: in the config)", name)
}

func object(db *vstore.DB, name string) (*vstore.Object, error) {
	if obj := db.Object(name); obj != nil {
		return obj, nil
	}
	return nil, fmt.Errorf("unknown object %q (declare it under objects: in the config)", name)
}
