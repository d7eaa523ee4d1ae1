package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Checks that the saved session is still signed in.",
	Run: func(cmd *cobra.Command, args []string) {
		err := client.Check(cmd.Context())
		if err != nil {
			fail(err)
		}
		fmt.Printf("Signed in, %d cookies.\n", len(client.Session().Cookies()))
	},
}
