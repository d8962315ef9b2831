package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var putCmd = &cobra.Command{
	Use:   "put <store> <json|->",
	Short: "Create or update records",
	Long: `Put merges a JSON object into the record with the same id, creating it
if there is none. An array of objects is written as a batch.

Example:
  vstore put notes '{"title":"hello","keyword":"greeting"}'
  cat notes.json | vstore put notes -`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := parseRecords(args[1], cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			st, err := store(db, args[0])
			if err != nil {
				return err
			}
			if len(recs) == 1 {
				if err := st.Create(cmd.Context(), recs[0]); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"written": 1})
			}
			written, err := st.BatchCreate(cmd.Context(), recs)
			if err != nil {
				return err
			}
			if len(written) < len(recs) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d records failed\n", len(recs)-len(written), len(recs))
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"written": len(written)})
		})
	},
}
