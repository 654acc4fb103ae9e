// Package config loads and saves the engine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config represents the engine configuration
type Config struct {
	// Execution settings
	Execution struct {
		Budget         uint64 `toml:"budget"`
		StackSize      uint   `toml:"stack_size"`
		MaxCallDepth   int    `toml:"max_call_depth"`
		MaxProgramSize int    `toml:"max_program_size"`
		EntryOffset    int    `toml:"entry_offset"`
		EnableTrace    bool   `toml:"enable_trace"`
	} `toml:"execution"`

	// Metadata buffer settings for the fixed form
	Mbuff struct {
		OffsetStart uint `toml:"offset_start"`
		OffsetEnd   uint `toml:"offset_end"`
	} `toml:"mbuff"`

	// Trace settings
	Trace struct {
		OutputFile string `toml:"output_file"`
		MaxEntries int    `toml:"max_entries"`
	} `toml:"trace"`

	// Visualizer settings
	Visualizer struct {
		EdgeLabels       bool `toml:"edge_labels"`
		FlattenCallGraph bool `toml:"flatten_call_graph"`
	} `toml:"visualizer"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Execution.Budget = 1000000
	cfg.Execution.StackSize = 0x4000
	cfg.Execution.MaxCallDepth = 20
	cfg.Execution.MaxProgramSize = 65536
	cfg.Execution.EntryOffset = 0
	cfg.Execution.EnableTrace = false

	cfg.Mbuff.OffsetStart = 0x40
	cfg.Mbuff.OffsetEnd = 0x50

	cfg.Trace.OutputFile = "trace.log"
	cfg.Trace.MaxEntries = 100000

	cfg.Visualizer.EdgeLabels = true
	cfg.Visualizer.FlattenCallGraph = false

	return cfg
}

// GetConfigPath returns the platform-specific config file path
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "rpdf")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "rpdf")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
