package service

import (
	"encoding/json"
	"fmt"

	"stack-keeper/internal/models"
	"stack-keeper/internal/rpc"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show one service's detail",
	Long:  "Show a service's status, PID, listening state and last exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(args[0])
	},
}

func showStatus(name string) error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	resp, err := client.Get("/api/v1/services/"+name, nil)
	if err != nil {
		return fmt.Errorf("keeper unreachable: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}

	var detail models.ServiceDetail
	if err := json.Unmarshal(resp.Body, &detail); err != nil {
		return err
	}
	printDetail(&detail)
	return nil
}

func init() {
	serviceCmd.AddCommand(statusCmd)

	statusCmd.Example = `  stack-keeper service status api`
}
