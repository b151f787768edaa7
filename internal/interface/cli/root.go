package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/retsubhtym/agent-sessions-sub002/internal/core/config"
	"github.com/retsubhtym/agent-sessions-sub002/internal/core/discover"
	"github.com/retsubhtym/agent-sessions-sub002/internal/core/rollup"
	"github.com/retsubhtym/agent-sessions-sub002/internal/logging"
)

var (
	dbPath      string
	verbose     bool
	versionInfo string

	cfg *config.Config
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Shutdown()
}

var rootCmd = &cobra.Command{
	Use:   "agentsearch",
	Short: "Index and search AI coding agent sessions",
	Long: `agentsearch - index and search your coding agent transcripts

Scans Claude Code, Codex, and Gemini CLI session logs, keeps daily
rollups in a local SQLite database, and searches across every
transcript with small files answered first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		logging.Init(logging.Config{
			LogDir:  cfg.LogDir,
			Verbose: verbose,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default ~/.config/agentsearch/rollups.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

func openStore() (*rollup.Store, error) {
	store, err := rollup.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func newScanner() *discover.Scanner {
	return &discover.Scanner{
		ClaudeRoots: cfg.ClaudeRoots,
		CodexRoots:  cfg.CodexRoots,
		GeminiRoots: cfg.GeminiRoots,
	}
}
