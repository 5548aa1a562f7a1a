package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"market-signal-alerts/internal/task"
)

var onceCmd = &cobra.Command{
	Use:   "once <task>",
	Short: "Run one monitoring task immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().RunOnce(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"status: %s\nduration: %s\nprocessed: %d, successful: %d, failed: %d\nfiltered: %d, duplicates: %d, new alerts: %d\n",
			result.Status, result.Duration,
			result.Counts.Processed, result.Counts.Successful, result.Counts.Failed,
			result.Counts.Filtered, result.Counts.Duplicates, result.Counts.NewAlerts,
		)
		if result.Status == task.StatusError && result.Err != nil {
			return result.Err
		}
		return nil
	},
}
