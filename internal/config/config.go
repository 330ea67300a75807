// Package config loads finprep.yaml over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ogulcanaydogan/finprep/internal/generate"
	"github.com/ogulcanaydogan/finprep/internal/logging"
	"github.com/ogulcanaydogan/finprep/internal/prompt"
	"github.com/ogulcanaydogan/finprep/pkg/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFile    = "finprep.yaml"
	DefaultDataset = "./dataset"
)

type ProjectConfig struct {
	DatasetDir   string             `yaml:"dataset_dir"`
	PromptFile   string             `yaml:"prompt_file"`
	PromptSchema string             `yaml:"prompt_schema,omitempty"`
	Overwrite    bool               `yaml:"overwrite"`
	EnsureASCII  bool               `yaml:"ensure_ascii"`
	LogLevel     string             `yaml:"log_level"`
	Generator    generate.Config    `yaml:"generator"`
	Subsets      []types.SubsetSpec `yaml:"subsets"`
}

func LoadConfig(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		DatasetDir:  DefaultDataset,
		PromptFile:  prompt.DefaultFile,
		EnsureASCII: true,
		LogLevel:    logging.DefaultLevel,
		Generator:   generate.DefaultConfig(),
		Subsets:     types.DefaultSubsets(),
	}
}

// Load overlays the file at path on the defaults. Relative paths in the file
// that do not exist from the working directory are tried next to the file.
func Load(path string) (ProjectConfig, error) {
	cfg := DefaultProjectConfig()
	if err := LoadConfig(path, &cfg); err != nil {
		return ProjectConfig{}, err
	}
	cfg.DatasetDir = resolvePath(path, cfg.DatasetDir)
	cfg.PromptFile = resolvePath(path, cfg.PromptFile)
	cfg.PromptSchema = resolvePath(path, cfg.PromptSchema)
	if err := cfg.Validate(); err != nil {
		return ProjectConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault reads path when it exists and falls back to the defaults.
func LoadOrDefault(path string) (ProjectConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultProjectConfig(), nil
		}
		return ProjectConfig{}, fmt.Errorf("stat config %s: %w", path, err)
	}
	return Load(path)
}

func (c ProjectConfig) Validate() error {
	if strings.TrimSpace(c.DatasetDir) == "" {
		return fmt.Errorf("dataset_dir is required")
	}
	if strings.TrimSpace(c.PromptFile) == "" {
		return fmt.Errorf("prompt_file is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Generator.Validate(); err != nil {
		return err
	}
	if len(c.Subsets) == 0 {
		return fmt.Errorf("at least one subset is required")
	}
	seen := make(map[string]struct{}, len(c.Subsets))
	for _, s := range c.Subsets {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate subset %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// Select returns the configured specs for names in the order given. An empty
// list selects every configured subset. Names missing from the config get a
// copy-only spec with no fallback policy.
func (c ProjectConfig) Select(names []string) []types.SubsetSpec {
	if len(names) == 0 {
		out := make([]types.SubsetSpec, len(c.Subsets))
		copy(out, c.Subsets)
		return out
	}
	out := make([]types.SubsetSpec, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		spec, _ := types.LookupSubset(c.Subsets, n)
		out = append(out, spec)
	}
	return out
}

func (c ProjectConfig) SubsetNames() []string {
	names := make([]string, len(c.Subsets))
	for i, s := range c.Subsets {
		names[i] = s.Name
	}
	return names
}

func Marshal(c ProjectConfig) ([]byte, error) {
	return yaml.Marshal(c)
}

func resolvePath(configPath, candidate string) string {
	if candidate == "" || strings.Contains(candidate, "://") || filepath.IsAbs(candidate) {
		return candidate
	}
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	joined := filepath.Clean(filepath.Join(filepath.Dir(configPath), candidate))
	if _, err := os.Stat(joined); err == nil {
		return joined
	}
	return candidate
}
