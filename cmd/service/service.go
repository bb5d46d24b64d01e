package service

import (
	"encoding/json"
	"fmt"

	"stack-keeper/cmd/root"
	"stack-keeper/internal/models"
	"stack-keeper/internal/rpc"

	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Service operations (list/start/stop/restart/status)",
	Long:  `Service operations (list/start/stop/restart/status)`,
}

const serviceExample = `  # start a service
  stack-keeper service start api`

func init() {
	root.RootCmd.AddCommand(serviceCmd)

	serviceCmd.Example = serviceExample
}

// postLifecycle sends one lifecycle operation to the running keeper and
// decodes the resulting service detail.
func postLifecycle(name, op string) (*models.ServiceDetail, error) {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	resp, err := client.Post(fmt.Sprintf("/api/v1/services/%s/%s", name, op), nil)
	if err != nil {
		return nil, fmt.Errorf("keeper unreachable: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	var detail models.ServiceDetail
	if err := json.Unmarshal(resp.Body, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func printDetail(detail *models.ServiceDetail) {
	fmt.Printf("Name:      %s\n", detail.Name)
	if detail.Label != "" {
		fmt.Printf("Label:     %s\n", detail.Label)
	}
	fmt.Printf("Status:    %s\n", detail.Status)
	if detail.Pid > 0 {
		fmt.Printf("PID:       %d\n", detail.Pid)
	}
	if detail.Port > 0 {
		fmt.Printf("Port:      %d (listening: %v)\n", detail.Port, detail.Listening)
	}
	if detail.StartTime != "" {
		fmt.Printf("Started:   %s\n", detail.StartTime)
	}
	if detail.LastExit != nil {
		fmt.Printf("Last exit: code=%d at %s\n", detail.LastExit.Code, detail.LastExit.Time.Format("15:04:05"))
	}
}
