package main

import (
	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "List the stores of the database with their indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			descs, err := db.StoreDescriptors(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"database": db.Name(),
				"version":  db.Version(),
				"stores":   descs,
			})
		})
	},
}
