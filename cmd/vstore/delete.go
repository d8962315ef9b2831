package main

import (
	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <store> <id>...",
	Short: "Delete records by id",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			st, err := store(db, args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				if err := st.Delete(cmd.Context(), args[1]); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]bool{args[1]: true})
			}
			results, err := st.BatchDelete(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), results)
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <store>",
	Short: "Delete every record of a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			st, err := store(db, args[0])
			if err != nil {
				return err
			}
			return st.DeleteAll(cmd.Context())
		})
	},
}
