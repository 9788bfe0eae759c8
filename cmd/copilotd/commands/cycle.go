package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single automation cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, _, _, err := buildCoordinator()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return coord.RunCycle(ctx)
	},
}
