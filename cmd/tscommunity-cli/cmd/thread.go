package cmd

import (
	"fmt"

	"tscommunity/cmd/tscommunity-cli/utils"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(threadCmd)
}

var threadCmd = &cobra.Command{
	Use:   "thread <url>",
	Short: "Prints every post of a thread.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		content, err := client.GetThread(cmd.Context(), args[0])
		if err != nil {
			fail(err)
		}

		title := "Thread"
		if content.Title != nil {
			title = *content.Title
		}
		fmt.Println(title)

		t := utils.NewTable()
		t.AppendHeader(table.Row{"#", "Author", "Date", "Post"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 4, WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		})
		for i, p := range content.Posts {
			t.AppendRow(table.Row{i + 1, utils.Deref(p.Author), utils.Deref(p.TimestampText), p.Body})
		}
		t.AppendFooter(table.Row{"", "", "Posts", content.PostCount})
		t.Render()
	},
}
