package service

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"stack-keeper/internal/models"
	"stack-keeper/internal/rpc"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all services with their current status",
	Long:  "List every declared service with status, PID, port and listening state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listServices()
	},
}

/**
 * List every service known to the running keeper
 * @returns {error} Returns error when the keeper is unreachable
 */
func listServices() error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	resp, err := client.Get("/api/v1/services", nil)
	if err != nil {
		return fmt.Errorf("keeper unreachable: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}

	var details []models.ServiceDetail
	if err := json.Unmarshal(resp.Body, &details); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tPID\tPORT\tLISTENING")
	for _, d := range details {
		pid := "-"
		if d.Pid > 0 {
			pid = fmt.Sprintf("%d", d.Pid)
		}
		port := "-"
		if d.Port > 0 {
			port = fmt.Sprintf("%d", d.Port)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", d.Name, d.Status, pid, port, d.Listening)
	}
	return w.Flush()
}

func init() {
	serviceCmd.AddCommand(listCmd)

	listCmd.Example = `  stack-keeper service list`
}
