// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all resolved paths for one workspace
type Config struct {
	HomeDir        string
	WingmanDir     string
	WorkspaceDir   string
	DataDir        string
	DatabasePath   string
	CheckpointsDir string
	LogDir         string
	SettingsPath   string
	Settings       *Settings
}

// Load creates a Config for the given workspace with resolved paths.
// Everything is stored under ~/.wingman/<workspace basename>, or under
// $WINGMAN_HOME when it is set.
func Load(workspace string) (*Config, error) {
	if workspace == "" {
		return nil, errors.New("workspace path is required")
	}

	workspace, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	wingmanDir := os.Getenv("WINGMAN_HOME")
	if wingmanDir == "" {
		wingmanDir = filepath.Join(home, ".wingman")
	}

	dataDir := filepath.Join(wingmanDir, filepath.Base(workspace))
	logDir := filepath.Join(dataDir, "logs")
	checkpointsDir := filepath.Join(dataDir, "checkpoints")

	// Ensure directories exist
	for _, dir := range []string{wingmanDir, dataDir, logDir, checkpointsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	settingsPath := filepath.Join(wingmanDir, "settings.yaml")
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		HomeDir:        home,
		WingmanDir:     wingmanDir,
		WorkspaceDir:   workspace,
		DataDir:        dataDir,
		DatabasePath:   filepath.Join(dataDir, "wingman.db"),
		CheckpointsDir: checkpointsDir,
		LogDir:         logDir,
		SettingsPath:   settingsPath,
		Settings:       settings,
	}, nil
}

// LogFile returns the default log file path for the workspace
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, "wingman.log")
}
