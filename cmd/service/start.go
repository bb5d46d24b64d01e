package service

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a service",
	Long:  "Start one declared service; a no-op when it is already running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := postLifecycle(args[0], "start")
		if err != nil {
			return err
		}
		fmt.Printf("Service '%s' is %s\n", detail.Name, detail.Status)
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(startCmd)

	startCmd.Example = `  stack-keeper service start api`
}
