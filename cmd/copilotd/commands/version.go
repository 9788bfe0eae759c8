package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the copilotd version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("copilotd %s (%s, built %s)\n", Version, Commit, BuildDate)
		return nil
	},
}
