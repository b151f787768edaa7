package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the tunable policy constants and source locations.
// The thresholds are empirically tuned policy, not architecture, so
// they live here rather than as package constants.
type Config struct {
	// DBPath is the rollup store location.
	DBPath string

	// LogDir is where the rotated log file is written.
	LogDir string

	// ClaudeRoots / CodexRoots / GeminiRoots are the per-tool session
	// directories scanned by discovery.
	ClaudeRoots []string
	CodexRoots  []string
	GeminiRoots []string

	// LargeFileThreshold separates the small and large search phases.
	LargeFileThreshold int64

	// HotWindow is how recently a file may have been modified before
	// the indexer skips it as a possibly partial write.
	HotWindow time.Duration

	// SearchBatchSize is the phase-1 batch size.
	SearchBatchSize int

	// IndexWorkers bounds concurrent file parses during indexing.
	IndexWorkers int
}

type tomlConfig struct {
	DBPath               string   `toml:"db_path"`
	LogDir               string   `toml:"log_dir"`
	ClaudeRoots          []string `toml:"claude_roots"`
	CodexRoots           []string `toml:"codex_roots"`
	GeminiRoots          []string `toml:"gemini_roots"`
	LargeFileThresholdMB int      `toml:"large_file_threshold_mb"`
	HotWindowSecs        int      `toml:"hot_window_secs"`
	SearchBatchSize      int      `toml:"search_batch_size"`
	IndexWorkers         int      `toml:"index_workers"`
}

// Default returns the built-in configuration for this machine.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".config", "agentsearch")
	return &Config{
		DBPath:             filepath.Join(dataDir, "rollups.db"),
		LogDir:             dataDir,
		ClaudeRoots:        []string{filepath.Join(home, ".claude", "projects")},
		CodexRoots:         []string{filepath.Join(home, ".codex", "sessions")},
		GeminiRoots:        []string{filepath.Join(home, ".gemini")},
		LargeFileThreshold: 10 * 1024 * 1024,
		HotWindow:          120 * time.Second,
		SearchBatchSize:    64,
		IndexWorkers:       4,
	}
}

// Load reads ~/.config/agentsearch/config.toml over the defaults.
// A missing file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil
	}
	path := filepath.Join(home, ".config", "agentsearch", "config.toml")
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}

	var tc tomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return cfg, err
	}
	applyFile(cfg, &tc)
	return cfg, nil
}

func applyFile(cfg *Config, tc *tomlConfig) {
	if tc.DBPath != "" {
		cfg.DBPath = tc.DBPath
	}
	if tc.LogDir != "" {
		cfg.LogDir = tc.LogDir
	}
	if len(tc.ClaudeRoots) > 0 {
		cfg.ClaudeRoots = tc.ClaudeRoots
	}
	if len(tc.CodexRoots) > 0 {
		cfg.CodexRoots = tc.CodexRoots
	}
	if len(tc.GeminiRoots) > 0 {
		cfg.GeminiRoots = tc.GeminiRoots
	}
	if tc.LargeFileThresholdMB > 0 {
		cfg.LargeFileThreshold = int64(tc.LargeFileThresholdMB) * 1024 * 1024
	}
	if tc.HotWindowSecs > 0 {
		cfg.HotWindow = time.Duration(tc.HotWindowSecs) * time.Second
	}
	if tc.SearchBatchSize > 0 {
		cfg.SearchBatchSize = tc.SearchBatchSize
	}
	if tc.IndexWorkers > 0 {
		cfg.IndexWorkers = tc.IndexWorkers
	}
}
