package logs

import (
	"encoding/json"
	"fmt"
	"time"

	"stack-keeper/cmd/root"
	"stack-keeper/internal/models"
	"stack-keeper/internal/rpc"

	"github.com/spf13/cobra"
)

var (
	tailCount int
	follow    bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <service>",
	Short: "Show buffered log output of a service",
	Long:  "Show the retained log entries of one service, optionally following new output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showLogs(args[0])
	},
}

/**
 * Print buffered logs, optionally following new entries
 * @param {string} service - Service name
 * @returns {error} Returns error when the keeper is unreachable
 * @description
 * - Follow mode polls the since-cursor endpoint; entries evicted between
 *   polls are lost, which the API reports via the truncated flag
 */
func showLogs(service string) error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	page, err := fetchPage(client, service, map[string]interface{}{"tail": tailCount})
	if err != nil {
		return err
	}
	printEntries(page.Entries)

	if !follow {
		return nil
	}

	cursor := page.MaxID
	for {
		time.Sleep(time.Second)
		page, err := fetchPage(client, service, map[string]interface{}{"since": cursor})
		if err != nil {
			return err
		}
		if page.Truncated {
			fmt.Println("... (entries dropped by the ring buffer)")
		}
		printEntries(page.Entries)
		if page.MaxID > cursor {
			cursor = page.MaxID
		}
	}
}

func fetchPage(client rpc.HTTPClient, service string, params map[string]interface{}) (*models.LogPage, error) {
	resp, err := client.Get("/api/v1/logs/"+service, params)
	if err != nil {
		return nil, fmt.Errorf("keeper unreachable: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	var page models.LogPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func printEntries(entries []models.LogEntry) {
	for _, entry := range entries {
		fmt.Printf("%s [%s] %s\n", entry.Time.Format("15:04:05.000"), entry.Stream, entry.Line)
	}
}

func init() {
	root.RootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&tailCount, "tail", "n", 100, "number of entries to show")
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new entries")
	logsCmd.Example = `  stack-keeper logs api --tail 50
  stack-keeper logs api -f`
}
