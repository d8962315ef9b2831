package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/vstore"
)

var (
	flagPageNo    int
	flagPageSize  int
	flagKeyword   string
	flagIndex     string
	flagPrimary   bool
	flagDirection string
)

var pageCmd = &cobra.Command{
	Use:   "page <store>",
	Short: "Print one page of records walking an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt := vstore.PageOptions{
			Query: vstore.Query{PageNo: flagPageNo, PageSize: flagPageSize, Keyword: flagKeyword},
			Index: flagIndex,
		}
		if flagPrimary {
			opt.Index = vstore.PrimaryKey
		}
		switch flagDirection {
		case "prev", "":
		case "next":
			opt = opt.WithDirection(vstore.Forward)
		default:
			return fmt.Errorf("invalid --direction %q (valid: next, prev)", flagDirection)
		}
		return withDB(cmd.Context(), func(db *vstore.DB) error {
			st, err := store(db, args[0])
			if err != nil {
				return err
			}
			page, err := st.GetPageWith(cmd.Context(), opt)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		})
	},
}

func init() {
	pageCmd.Flags().IntVar(&flagPageNo, "page", 1, "page number, starting at 1")
	pageCmd.Flags().IntVar(&flagPageSize, "size", 10, "records per page")
	pageCmd.Flags().StringVar(&flagKeyword, "keyword", "", "substring the index key must contain")
	pageCmd.Flags().StringVar(&flagIndex, "index", vstore.DefaultPageIndex, "index to walk")
	pageCmd.Flags().BoolVar(&flagPrimary, "primary", false, "walk the store in primary key order instead of an index")
	pageCmd.Flags().StringVar(&flagDirection, "direction", "prev", "walk direction: next or prev")
}
