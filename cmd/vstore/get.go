package main

import (
	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var getCmd = &cobra.Command{
	Use:   "get <store> <id>...",
	Short: "Get records by id",
	Long: `Get prints the record with the given id, or null if there is none.
With several ids it prints an array in the same order.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			st, err := store(db, args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				rec, err := st.GetID(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			}
			recs, err := st.GetIDs(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		})
	},
}
