package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roffe/slcan/pkg/line"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "list com-ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := line.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), line.Describe(p))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
