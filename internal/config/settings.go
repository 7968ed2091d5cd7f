package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Settings is the user-editable settings.yaml
type Settings struct {
	Provider   ProviderSettings   `yaml:"provider"`
	Composer   ComposerSettings   `yaml:"composer"`
	Indexer    IndexerSettings    `yaml:"indexer"`
	Checkpoint CheckpointSettings `yaml:"checkpoint"`
	Server     ServerSettings     `yaml:"server"`
}

// ProviderSettings configures the OpenAI-compatible model endpoint
type ProviderSettings struct {
	BaseURL        string   `yaml:"base_url"`
	Model          string   `yaml:"model"`
	ReasoningModel string   `yaml:"reasoning_model"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	APIKey         string   `yaml:"api_key"`
	Temperature    *float64 `yaml:"temperature"`
}

// ComposerSettings holds the workflow policy knobs
type ComposerSettings struct {
	MaxReplans    int           `yaml:"max_replans"`
	WriteAttempts int           `yaml:"write_attempts"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	FindTimeout   time.Duration `yaml:"find_timeout"`
	MaxToolRounds int           `yaml:"max_tool_rounds"`
	SearchResults int           `yaml:"search_results"`
	ScanDepth     int           `yaml:"scan_depth"`
}

// IndexerSettings filters which workspace files are listed and searched
type IndexerSettings struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

type CheckpointSettings struct {
	CompressionLevel int `yaml:"compression_level"`
}

type ServerSettings struct {
	Addr    string `yaml:"addr"`
	AuthKey string `yaml:"auth_key"`
}

// DefaultExclude are the globs skipped by the workspace scanner
var DefaultExclude = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/vendor/**",
	"**/.wingman/**",
	"**/*.lock",
	"**/package-lock.json",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// DefaultSettings returns settings with every default applied
func DefaultSettings() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

// LoadSettings reads path and fills in defaults. A missing file is not an error.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.Provider.BaseURL == "" {
		s.Provider.BaseURL = "https://api.openai.com/v1"
	}
	if s.Provider.Model == "" {
		s.Provider.Model = "gpt-4o"
	}
	if s.Provider.ReasoningModel == "" {
		s.Provider.ReasoningModel = s.Provider.Model
	}
	if s.Provider.APIKeyEnv == "" {
		s.Provider.APIKeyEnv = "OPENAI_API_KEY"
	}

	if s.Composer.MaxReplans == 0 {
		s.Composer.MaxReplans = 3
	}
	if s.Composer.WriteAttempts == 0 {
		s.Composer.WriteAttempts = 2
	}
	if s.Composer.WriteTimeout == 0 {
		s.Composer.WriteTimeout = 120 * time.Second
	}
	if s.Composer.FindTimeout == 0 {
		s.Composer.FindTimeout = 300 * time.Second
	}
	if s.Composer.MaxToolRounds == 0 {
		s.Composer.MaxToolRounds = 8
	}
	if s.Composer.SearchResults == 0 {
		s.Composer.SearchResults = 5
	}
	if s.Composer.ScanDepth == 0 {
		s.Composer.ScanDepth = 12
	}

	if len(s.Indexer.Include) == 0 {
		s.Indexer.Include = []string{"**/*"}
	}
	if len(s.Indexer.Exclude) == 0 {
		s.Indexer.Exclude = append([]string(nil), DefaultExclude...)
	}

	if s.Checkpoint.CompressionLevel == 0 {
		s.Checkpoint.CompressionLevel = 3
	}

	if s.Server.Addr == "" {
		s.Server.Addr = "127.0.0.1:0"
	}
}

// Validate rejects negative knobs and malformed globs
func (s *Settings) Validate() error {
	var errs []error

	knobs := map[string]int{
		"composer.max_replans":     s.Composer.MaxReplans,
		"composer.write_attempts":  s.Composer.WriteAttempts,
		"composer.max_tool_rounds": s.Composer.MaxToolRounds,
		"composer.search_results":  s.Composer.SearchResults,
		"composer.scan_depth":      s.Composer.ScanDepth,
	}
	for name, v := range knobs {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if s.Composer.WriteTimeout < 0 || s.Composer.FindTimeout < 0 {
		errs = append(errs, errors.New("composer timeouts must not be negative"))
	}

	for _, pattern := range append(append([]string(nil), s.Indexer.Include...), s.Indexer.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("invalid glob %q", pattern))
		}
	}

	return errors.Join(errs...)
}

// ResolveAPIKey returns the provider key, preferring the inline value
func (p ProviderSettings) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	return os.Getenv(p.APIKeyEnv)
}
