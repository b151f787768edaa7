package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/retsubhtym/agent-sessions-sub002/internal/core/rollup"
	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

var indexSource string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan session directories and update the rollup database",
	Long: `Scan the configured session directories and bring the rollup
database up to date.

Unchanged files are skipped, as are files modified within the hot
window (they may still be mid-write). One corrupt file never aborts
the pass.

Examples:
  agentsearch index
  agentsearch index --source codex`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexSource, "source", "", "Limit to one source (claude, codex, gemini)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	scanner := newScanner()
	var candidates []transcript.Session
	if indexSource != "" {
		src := transcript.Source(indexSource)
		if !validSource(src) {
			return fmt.Errorf("unknown source %q", indexSource)
		}
		candidates = scanner.SessionFiles(src)
	} else {
		candidates = scanner.All()
	}

	indexer := rollup.NewIndexer(store, cfg.HotWindow, cfg.IndexWorkers)
	stats, err := indexer.Index(cmd.Context(), candidates)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("Indexed %d of %d files (%d skipped, %d failed)\n",
		stats.Indexed, stats.Candidates, stats.Skipped, stats.Failed)
	if stats.Purged > 0 {
		fmt.Printf("Rebuilt %d source(s) after identifier migration\n", stats.Purged)
	}
	return nil
}

func validSource(src transcript.Source) bool {
	for _, s := range transcript.AllSources {
		if s == src {
			return true
		}
	}
	return false
}
