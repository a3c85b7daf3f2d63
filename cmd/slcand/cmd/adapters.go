package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roffe/slcan"
	"github.com/roffe/slcan/adapter"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "list CAN adapters and bitrates",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, a := range adapter.ListAdapters() {
			fmt.Fprintln(out, a.String())
		}
		fmt.Fprintln(out)
		for _, br := range slcan.Bitrates() {
			fmt.Fprintf(out, "%s\t%s\n", br.Command(), br)
		}
	},
}

func init() {
	rootCmd.AddCommand(adaptersCmd)
}
