package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write a compressed snapshot of every store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFileArg(args[0], true)
		if err != nil {
			return err
		}
		err = withDB(cmd.Context(), func(db *vstore.DB) error {
			return db.Export(cmd.Context(), f)
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace store contents from a snapshot",
	Long: `Import replaces the records of every store found in the snapshot and
creates stores that do not exist yet. Other stores are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openFileArg(args[0], false)
		if err != nil {
			return err
		}
		defer f.Close()
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			return db.Import(cmd.Context(), f)
		})
	},
}
