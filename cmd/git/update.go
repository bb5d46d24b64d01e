package git

import (
	"encoding/json"
	"fmt"
	"strings"

	"stack-keeper/internal/models"
	"stack-keeper/internal/rpc"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <repo>",
	Short: "Fast-forward a repository and restart its services",
	Long:  "Attempt a fast-forward-only update; dirty or detached checkouts are skipped untouched",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateRepo(args[0])
	},
}

func updateRepo(repo string) error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	resp, err := client.Post(fmt.Sprintf("/api/v1/git/%s/update", repo), nil)
	if err != nil {
		return fmt.Errorf("keeper unreachable: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}

	var response models.UpdateResponse
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return err
	}

	outcome := response.Outcome
	switch outcome.Kind {
	case models.UpdateApplied:
		if outcome.OldCommit == outcome.NewCommit {
			fmt.Printf("Repo '%s' already up to date\n", repo)
		} else {
			fmt.Printf("Repo '%s' updated: %.8s -> %.8s\n", repo, outcome.OldCommit, outcome.NewCommit)
		}
	case models.UpdateFailed:
		fmt.Printf("Repo '%s' update failed: %s\n", repo, outcome.Reason)
	default:
		fmt.Printf("Repo '%s' skipped (%s)\n", repo, outcome.Kind)
	}
	if len(response.Restarted) > 0 {
		fmt.Printf("Restarted services: %s\n", strings.Join(response.Restarted, ", "))
	}
	return nil
}

func init() {
	gitCmd.AddCommand(updateCmd)

	updateCmd.Example = `  stack-keeper git update backend`
}
