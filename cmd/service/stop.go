package service

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a service",
	Long:  "Stop one running service; a no-op when it is already stopped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := postLifecycle(args[0], "stop")
		if err != nil {
			return err
		}
		fmt.Printf("Service '%s' is %s\n", detail.Name, detail.Status)
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(stopCmd)

	stopCmd.Example = `  stack-keeper service stop api`
}
