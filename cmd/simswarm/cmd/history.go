package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/simswarm/simswarm/internal/history"
)

var (
	historyDBPath string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent simulator runs",
	Long:  `History lists the most recent run attempts recorded by the supervisor, newest first, with a per-outcome summary.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyDBPath, "history-db", "simswarm-history.db", "Run history database path")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(historyDBPath); err != nil {
		return fmt.Errorf("history database not found at %s", historyDBPath)
	}

	store, err := history.Open(historyDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(historyLimit)
	if err != nil {
		return err
	}
	summary, err := store.Summarize()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(map[string]interface{}{
			"runs":    records,
			"summary": summary,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if len(records) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Run ID", "Slot", "Outcome", "Exit", "Started", "Duration", "Log")

	for _, rec := range records {
		runID := rec.RunID
		if len(runID) > 8 {
			runID = runID[:8]
		}
		table.Append(
			runID,
			fmt.Sprintf("%d", rec.Slot),
			rec.Outcome,
			fmt.Sprintf("%d", rec.ExitCode),
			rec.StartTime.Local().Format("2006-01-02 15:04:05"),
			rec.EndTime.Sub(rec.StartTime).Round(time.Second).String(),
			rec.LogPath,
		)
	}
	table.Render()

	fmt.Println()
	fmt.Printf("Total runs: %d", summary.Total)
	for outcome, count := range summary.ByOutcome {
		fmt.Printf("  %s: %d", outcome, count)
	}
	fmt.Println()
	return nil
}
