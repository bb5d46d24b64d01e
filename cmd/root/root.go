package root

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "stack-keeper",
	Short: "Local development stack keeper",
	Long:  `stack-keeper supervises the processes of a local development stack, buffers their logs, tracks the git state of their checkouts and exposes a loopback HTTP control API`,
}
