package git

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"stack-keeper/internal/models"
	"stack-keeper/internal/rpc"

	"github.com/spf13/cobra"
)

var refresh bool

var statusCmd = &cobra.Command{
	Use:   "status [repo]",
	Short: "Show the cached git state of managed repositories",
	Long:  "Show branch, dirty flag and ahead/behind counts; --refresh re-fetches first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := ""
		if len(args) == 1 {
			repo = args[0]
		}
		return showStatus(repo)
	},
}

func showStatus(repo string) error {
	client := rpc.NewHTTPClient(nil)
	defer client.Close()

	var states []models.RepoState
	if repo == "" {
		resp, err := client.Get("/api/v1/git", nil)
		if err != nil {
			return fmt.Errorf("keeper unreachable: %w", err)
		}
		if resp.Error != "" {
			return fmt.Errorf("%s", resp.Error)
		}
		if err := json.Unmarshal(resp.Body, &states); err != nil {
			return err
		}
	} else {
		var resp *rpc.HTTPResponse
		var err error
		if refresh {
			resp, err = client.Post(fmt.Sprintf("/api/v1/git/%s/refresh", repo), nil)
		} else {
			resp, err = client.Get("/api/v1/git/"+repo, nil)
		}
		if err != nil {
			return fmt.Errorf("keeper unreachable: %w", err)
		}
		if resp.Error != "" {
			return fmt.Errorf("%s", resp.Error)
		}
		var state models.RepoState
		if err := json.Unmarshal(resp.Body, &state); err != nil {
			return err
		}
		states = append(states, state)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPO\tBRANCH\tDIRTY\tAHEAD\tBEHIND\tERROR")
	for _, s := range states {
		ahead, behind := "-", "-"
		if s.Ahead != nil {
			ahead = fmt.Sprintf("%d", *s.Ahead)
		}
		if s.Behind != nil {
			behind = fmt.Sprintf("%d", *s.Behind)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\t%s\n", s.Name, s.Branch, s.Dirty, ahead, behind, s.LastError)
	}
	return w.Flush()
}

func init() {
	gitCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&refresh, "refresh", false, "fetch before reporting (single repo only)")
	statusCmd.Example = `  stack-keeper git status
  stack-keeper git status backend --refresh`
}
