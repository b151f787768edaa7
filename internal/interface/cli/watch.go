package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retsubhtym/agent-sessions-sub002/internal/core/rollup"
	"github.com/retsubhtym/agent-sessions-sub002/internal/core/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the rollup database up to date as sessions are written",
	Long: `Watch the configured session directories and reindex whenever
transcript files change. Runs an initial pass on startup, then waits
for file activity. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	scanner := newScanner()
	indexer := rollup.NewIndexer(store, cfg.HotWindow, cfg.IndexWorkers)

	reindex := func() {
		stats, err := indexer.Index(cmd.Context(), scanner.All())
		if err != nil {
			fmt.Fprintf(os.Stderr, "reindex failed: %v\n", err)
			return
		}
		if stats.Indexed > 0 || stats.Failed > 0 {
			fmt.Printf("Indexed %d files (%d skipped, %d failed)\n",
				stats.Indexed, stats.Skipped, stats.Failed)
		}
	}
	reindex()

	roots := append(append(append([]string{}, cfg.ClaudeRoots...), cfg.CodexRoots...), cfg.GeminiRoots...)
	watcher, err := watch.NewWatcher(roots, reindex)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() {
		_ = watcher.Stop()
	}()

	fmt.Println("Watching for session changes. Press Ctrl-C to stop.")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-cmd.Context().Done():
	}
	return nil
}
