package service

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Restart a service",
	Long:  "Stop then start one service as a single serialized operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		detail, err := postLifecycle(args[0], "restart")
		if err != nil {
			return err
		}
		fmt.Printf("Service '%s' is %s\n", detail.Name, detail.Status)
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(restartCmd)

	restartCmd.Example = `  stack-keeper service restart api`
}
