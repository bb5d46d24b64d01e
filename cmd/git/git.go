package git

import (
	"stack-keeper/cmd/root"

	"github.com/spf13/cobra"
)

var gitCmd = &cobra.Command{
	Use:   "git",
	Short: "Repository operations (status/update)",
	Long:  `Repository operations (status/update)`,
}

const gitExample = `  # update a checkout and restart its services
  stack-keeper git update backend`

func init() {
	root.RootCmd.AddCommand(gitCmd)

	gitCmd.Example = gitExample
}
