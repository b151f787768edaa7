package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.LargeFileThreshold != 10*1024*1024 {
		t.Errorf("LargeFileThreshold = %d, want 10 MiB", cfg.LargeFileThreshold)
	}
	if cfg.HotWindow != 120*time.Second {
		t.Errorf("HotWindow = %v, want 120s", cfg.HotWindow)
	}
	if cfg.SearchBatchSize != 64 || cfg.IndexWorkers != 4 {
		t.Errorf("batch/workers = %d/%d, want 64/4", cfg.SearchBatchSize, cfg.IndexWorkers)
	}
	if len(cfg.ClaudeRoots) == 0 || len(cfg.CodexRoots) == 0 || len(cfg.GeminiRoots) == 0 {
		t.Error("default source roots must not be empty")
	}
}

func TestApplyFileOverrides(t *testing.T) {
	cfg := Default()
	applyFile(cfg, &tomlConfig{
		DBPath:               "/tmp/other.db",
		ClaudeRoots:          []string{"/srv/claude"},
		LargeFileThresholdMB: 5,
		HotWindowSecs:        30,
	})

	if cfg.DBPath != "/tmp/other.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if len(cfg.ClaudeRoots) != 1 || cfg.ClaudeRoots[0] != "/srv/claude" {
		t.Errorf("ClaudeRoots = %v", cfg.ClaudeRoots)
	}
	if cfg.LargeFileThreshold != 5*1024*1024 {
		t.Errorf("LargeFileThreshold = %d, want 5 MiB", cfg.LargeFileThreshold)
	}
	if cfg.HotWindow != 30*time.Second {
		t.Errorf("HotWindow = %v, want 30s", cfg.HotWindow)
	}
	// Untouched fields keep their defaults.
	if cfg.SearchBatchSize != 64 {
		t.Errorf("SearchBatchSize = %d, want default 64", cfg.SearchBatchSize)
	}
}
