package main

import (
	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var objCmd = &cobra.Command{
	Use:   "obj",
	Short: "Read and write singleton objects",
}

var objGetCmd = &cobra.Command{
	Use:   "get <object> [field]...",
	Short: "Print an object, or some of its fields",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			obj, err := object(db, args[0])
			if err != nil {
				return err
			}
			var v any
			switch len(args) {
			case 1:
				v, err = obj.Get(cmd.Context())
			case 2:
				v, err = obj.GetField(cmd.Context(), args[1])
			default:
				v, err = obj.GetFields(cmd.Context(), args[1:]...)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		})
	},
}

var objSetCmd = &cobra.Command{
	Use:   "set <object> <json|->",
	Short: "Merge a JSON object into an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseRecord(args[1], cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			obj, err := object(db, args[0])
			if err != nil {
				return err
			}
			if err := obj.Set(cmd.Context(), data); err != nil {
				return err
			}
			rec, err := obj.Get(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		})
	},
}

func init() {
	objCmd.AddCommand(objGetCmd)
	objCmd.AddCommand(objSetCmd)
}
