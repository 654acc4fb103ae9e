package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Execution.Budget != 1000000 {
		t.Errorf("expected default budget 1000000, got %d", cfg.Execution.Budget)
	}
	if cfg.Execution.StackSize != 0x4000 {
		t.Errorf("expected default stack size 0x4000, got 0x%x", cfg.Execution.StackSize)
	}
	if cfg.Execution.MaxCallDepth != 20 {
		t.Errorf("expected default call depth 20, got %d", cfg.Execution.MaxCallDepth)
	}
	if cfg.Mbuff.OffsetStart != 0x40 || cfg.Mbuff.OffsetEnd != 0x50 {
		t.Errorf("expected default metadata offsets 0x40/0x50, got 0x%x/0x%x",
			cfg.Mbuff.OffsetStart, cfg.Mbuff.OffsetEnd)
	}
}

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("expected defaults for a missing file, got %v", err)
	}
	if cfg.Execution.Budget != DefaultConfig().Execution.Budget {
		t.Errorf("expected default budget, got %d", cfg.Execution.Budget)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Execution.Budget = 4242
	cfg.Execution.EnableTrace = true
	cfg.Visualizer.FlattenCallGraph = true

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Execution.Budget != 4242 {
		t.Errorf("expected budget 4242, got %d", loaded.Execution.Budget)
	}
	if !loaded.Execution.EnableTrace {
		t.Error("expected trace to stay enabled")
	}
	if !loaded.Visualizer.FlattenCallGraph {
		t.Error("expected flatten_call_graph to stay enabled")
	}
}

func TestLoadFromRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[execution\nbudget = oops"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected a parse error for a malformed file")
	}
}
