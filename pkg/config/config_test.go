package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig_HeartbeatEnabled verifies heartbeat is enabled by default
func TestDefaultConfig_HeartbeatEnabled(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Heartbeat.Enabled {
		t.Error("Heartbeat should be enabled by default")
	}
	if cfg.Heartbeat.DormantMinutes != 60 {
		t.Errorf("DormantMinutes = %d, want 60", cfg.Heartbeat.DormantMinutes)
	}
}

// TestDefaultConfig_WorkspacePath verifies workspace path is correctly set
func TestDefaultConfig_WorkspacePath(t *testing.T) {
	cfg := DefaultConfig()

	// Just verify the workspace is set, don't compare exact paths
	// since expandHome behavior may differ based on environment
	if cfg.Agent.Workspace == "" {
		t.Error("Workspace should not be empty")
	}
}

// TestDefaultConfig_Brain verifies brain model defaults
func TestDefaultConfig_Brain(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Brain.Model == "" {
		t.Error("Model should not be empty")
	}
	if len(cfg.Brain.FallbackModels) == 0 {
		t.Error("FallbackModels should not be empty")
	}
	if cfg.Brain.RepairAttempts != 3 {
		t.Errorf("RepairAttempts = %d, want 3", cfg.Brain.RepairAttempts)
	}
}

// TestDefaultConfig_AgentLimits verifies loop bounds have default values
func TestDefaultConfig_AgentLimits(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.MaxTurns != 15 {
		t.Errorf("MaxTurns = %d, want 15", cfg.Agent.MaxTurns)
	}
	if cfg.Agent.HistoryThreshold == 0 {
		t.Error("HistoryThreshold should not be zero")
	}
}

// TestDefaultConfig_Scheduler verifies scheduler defaults
func TestDefaultConfig_Scheduler(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Scheduler.GraceMinutes != 5 {
		t.Errorf("GraceMinutes = %d, want 5", cfg.Scheduler.GraceMinutes)
	}
	if cfg.Scheduler.CleanupAfterHrs != 24 {
		t.Errorf("CleanupAfterHrs = %d, want 24", cfg.Scheduler.CleanupAfterHrs)
	}
	if cfg.Scheduler.DuplicateWindowS != 60 {
		t.Errorf("DuplicateWindowS = %d, want 60", cfg.Scheduler.DuplicateWindowS)
	}
}

// TestLoadConfig_MissingFile verifies defaults are returned when no file exists
func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope", "config.json"))
	if err != nil {
		t.Fatalf("LoadConfig with missing file should not error: %v", err)
	}
	if cfg.Agent.MaxTurns != 15 {
		t.Error("Missing file should yield defaults")
	}
}

// TestLoadConfig_FileAndEnvOverlay verifies JSON values load and env wins
func TestLoadConfig_FileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"agent": {"max_turns": 7}, "brain": {"model": "openai/gpt-4o-mini"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("EMBER_BRAIN_MODEL", "anthropic/claude-3.5-sonnet")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Agent.MaxTurns != 7 {
		t.Errorf("MaxTurns = %d, want 7 from file", cfg.Agent.MaxTurns)
	}
	if cfg.Brain.Model != "anthropic/claude-3.5-sonnet" {
		t.Errorf("Model = %q, env should override file", cfg.Brain.Model)
	}
}

// TestFlexibleStringSlice_MixedTypes verifies mixed string/number arrays parse
func TestFlexibleStringSlice_MixedTypes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"channels": {"discord": {"allow_from": ["alice", 123456789]}}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	got := []string(cfg.Channels.Discord.AllowFrom)
	if len(got) != 2 || got[0] != "alice" || got[1] != "123456789" {
		t.Errorf("AllowFrom = %v, want [alice 123456789]", got)
	}
}

// TestSaveConfig_RoundTrip verifies save/load round trip
func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Agent.MaxTurns = 9
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Agent.MaxTurns != 9 {
		t.Errorf("MaxTurns = %d, want 9", loaded.Agent.MaxTurns)
	}
}
