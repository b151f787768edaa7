package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/retsubhtym/agent-sessions-sub002/internal/core/rollup"
)

var (
	listLimit int
	listFind  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed sessions, newest first",
	Long: `List sessions from the rollup database without opening any
transcript file.

With --find, sessions are fuzzy-matched on title, repository, and
file path, ranked by match quality.

Examples:
  agentsearch list
  agentsearch list --find billing --limit 10`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&listLimit, "limit", 30, "Maximum sessions to show")
	listCmd.Flags().StringVar(&listFind, "find", "", "Fuzzy-match sessions by title, repo, or path")
}

// fuzzySource adapts session metadata for fuzzy matching.
type fuzzySource []rollup.SessionMeta

func (f fuzzySource) String(i int) string {
	return f[i].Title + " " + f[i].RepoName + " " + f[i].FilePath
}

func (f fuzzySource) Len() int { return len(f) }

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	metas, err := store.Sessions(0)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(metas) == 0 {
		fmt.Println("No sessions indexed yet. Run \"agentsearch index\" first.")
		return nil
	}

	if listFind != "" {
		matches := fuzzy.FindFrom(listFind, fuzzySource(metas))
		ranked := make([]rollup.SessionMeta, 0, len(matches))
		for _, m := range matches {
			ranked = append(ranked, metas[m.Index])
		}
		metas = ranked
	}

	shown := len(metas)
	if listLimit > 0 && shown > listLimit {
		shown = listLimit
	}
	for _, m := range metas[:shown] {
		started := "-"
		if !m.StartTime.IsZero() {
			started = humanize.Time(m.StartTime)
		}
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		dur := ""
		if !m.StartTime.IsZero() && !m.EndTime.IsZero() {
			dur = m.EndTime.Sub(m.StartTime).Round(time.Minute).String()
		}
		fmt.Printf("%-8s %-14s %-20s %6d ev %8s  %s\n",
			m.Source, started, m.RepoName, m.EventCount, dur, title)
	}
	if shown < len(metas) {
		fmt.Printf("... and %d more\n", len(metas)-shown)
	}
	return nil
}
