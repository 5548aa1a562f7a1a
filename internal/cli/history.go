package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"market-signal-alerts/internal/app"
)

var (
	historyLimit int
	historyClear bool
)

var historyCmd = &cobra.Command{
	Use:   "history <task>",
	Short: "Display or clear a task's persisted alert history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !historyClear && historyLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		return getApp().History(cmd.Context(), app.HistoryOptions{
			Task:  args[0],
			Limit: historyLimit,
			Clear: historyClear,
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of records to display")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Clear the task's history instead of displaying it")
}
