package main

import (
	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var listCmd = &cobra.Command{
	Use:   "list <store>",
	Short: "List all records, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			st, err := store(db, args[0])
			if err != nil {
				return err
			}
			all, err := st.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), all)
		})
	},
}
