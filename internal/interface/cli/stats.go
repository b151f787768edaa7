package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsDays int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rollup statistics",
	Long: `Display totals and a per-day activity table from the rollup
database. Run "agentsearch index" first to populate it.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsDays, "days", 14, "How many recent days to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	totals, err := store.Totals()
	if err != nil {
		return fmt.Errorf("failed to read totals: %w", err)
	}

	fmt.Println("Rollup Statistics")
	fmt.Println("=================")
	fmt.Println()
	fmt.Printf("Sessions:      %d\n", totals.Sessions)
	fmt.Printf("Events:        %d\n", totals.Events)
	fmt.Printf("Files:         %d (%s)\n", totals.Files, humanize.Bytes(uint64(totals.FileBytes)))
	fmt.Printf("Active days:   %d\n", totals.ActiveDays)
	fmt.Printf("Total time:    %s\n", totals.Duration.Round(time.Minute))
	fmt.Println()

	fromDay := ""
	if statsDays > 0 {
		fromDay = time.Now().AddDate(0, 0, -statsDays).Format("2006-01-02")
	}
	rows, err := store.DailyRollups(fromDay, "", nil)
	if err != nil {
		return fmt.Errorf("failed to read rollups: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("No daily activity recorded yet.")
		return nil
	}

	fmt.Printf("%-12s %-8s %-20s %9s %9s %11s %10s\n",
		"Day", "Source", "Model", "Sessions", "Messages", "Tool calls", "Time")
	for _, r := range rows {
		model := r.Model
		if model == "" {
			model = "-"
		}
		fmt.Printf("%-12s %-8s %-20s %9d %9d %11d %10s\n",
			r.Day, r.Source, model, r.Sessions, r.Messages, r.ToolCalls,
			r.Duration.Round(time.Minute))
	}
	return nil
}
