package cmd

import (
	"fmt"
	"strings"

	"tscommunity/cmd/tscommunity-cli/utils"
	"tscommunity/lib/scrapers/tscommunity/forum"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", forum.DefaultLimit, "maximum number of threads")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Searches the forum and lists the matching threads.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := strings.Join(args, " ")
		res, err := client.SearchForum(cmd.Context(), query, searchLimit)
		if err != nil {
			fail(err)
		}
		if len(res.Threads) == 0 {
			fmt.Printf("No results found for query: %s\n", query)
			return
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"#", "Title", "Author", "Replies", "Last Post", "URL"})
		for i, thread := range res.Threads {
			t.AppendRow(table.Row{
				i + 1,
				thread.Title,
				utils.Deref(thread.Author),
				utils.Deref(thread.Replies),
				utils.Deref(thread.LastActivityText),
				thread.Url,
			})
		}
		if res.Source == "browse" {
			t.SetCaption("search was empty, matched against the latest topics")
		}
		t.Render()
	},
}
