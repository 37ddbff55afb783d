package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/phpflow/pkg/lint"
)

// Config holds all configuration for phpflow
type Config struct {
	// Rules lists the enabled diagnostic rules
	Rules []string `yaml:"rules" env:"PHPFLOW_RULES"`

	// IgnorePrefixes lists variable-name prefixes that are never reported
	IgnorePrefixes []string `yaml:"ignore_prefixes" env:"PHPFLOW_IGNORE_PREFIXES"`

	// File discovery
	Extensions  []string `yaml:"extensions" env:"PHPFLOW_EXTENSIONS"`
	Excludes    []string `yaml:"excludes" env:"PHPFLOW_EXCLUDES"`
	IgnoreFile  string   `yaml:"ignore_file" env:"PHPFLOW_IGNORE_FILE"`
	MaxFileSize int64    `yaml:"max_file_size" env:"PHPFLOW_MAX_FILE_SIZE"`

	// Workers is the number of files checked in parallel (0 = one per CPU)
	Workers int `yaml:"workers" env:"PHPFLOW_WORKERS"`

	// Result cache
	CacheDir string `yaml:"cache_dir" env:"PHPFLOW_CACHE_DIR"`
	NoCache  bool   `yaml:"no_cache" env:"PHPFLOW_NO_CACHE"`

	// Output
	Format lint.Format `yaml:"format" env:"PHPFLOW_FORMAT"`

	// Logging
	LogLevel string `yaml:"log_level" env:"PHPFLOW_LOG_LEVEL"`
	Verbose  bool   `yaml:"verbose" env:"PHPFLOW_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	rules := make([]string, 0, len(lint.AllRules))
	for _, r := range lint.DefaultRules.Rules() {
		rules = append(rules, string(r))
	}
	return &Config{
		Rules:          rules,
		IgnorePrefixes: []string{"_"},
		Extensions:     []string{".php", ".phtml", ".inc"},
		Excludes:       []string{"vendor", "node_modules", ".git"},
		IgnoreFile:     ".phpflowignore",
		MaxFileSize:    2 << 20,
		Workers:        0,
		CacheDir:       ".phpflow/cache",
		NoCache:        false,
		Format:         lint.FormatText,
		LogLevel:       "warn",
		Verbose:        false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.phpflow/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phpflow/config.yaml"
	}
	return filepath.Join(home, ".phpflow", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.phpflow/config.yaml)
func ProjectConfigFilePath() string {
	return ".phpflow/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.phpflow/config.yaml)
// 3. Global config (~/.phpflow/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PHPFLOW_RULES"); v != "" {
		cfg.Rules = splitList(v)
	}
	if v, ok := os.LookupEnv("PHPFLOW_IGNORE_PREFIXES"); ok {
		cfg.IgnorePrefixes = splitList(v)
	}
	if v := os.Getenv("PHPFLOW_EXTENSIONS"); v != "" {
		cfg.Extensions = splitList(v)
	}
	if v := os.Getenv("PHPFLOW_EXCLUDES"); v != "" {
		cfg.Excludes = splitList(v)
	}
	if v := os.Getenv("PHPFLOW_IGNORE_FILE"); v != "" {
		cfg.IgnoreFile = v
	}
	if v := os.Getenv("PHPFLOW_MAX_FILE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxFileSize = int64(i)
		}
	}
	if v := os.Getenv("PHPFLOW_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("PHPFLOW_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("PHPFLOW_NO_CACHE"); v != "" {
		cfg.NoCache = parseBool(v)
	}
	if v := os.Getenv("PHPFLOW_FORMAT"); v != "" {
		cfg.Format = lint.Format(v)
	}
	if v := os.Getenv("PHPFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PHPFLOW_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if _, err := c.RuleSet(); err != nil {
		return err
	}

	switch c.Format {
	case lint.FormatText, lint.FormatJSON:
	default:
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", c.Format)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn or error)", c.LogLevel)
	}

	if len(c.Extensions) == 0 {
		return fmt.Errorf("extensions must not be empty")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("invalid extension %q (must start with '.')", ext)
		}
	}

	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must be non-negative")
	}
	if !c.NoCache && c.CacheDir == "" {
		return fmt.Errorf("cache_dir is required unless no_cache is set")
	}

	return nil
}

// RuleSet converts Rules to a lint.RuleSet.
func (c *Config) RuleSet() (lint.RuleSet, error) {
	return lint.ParseRuleSet(c.Rules)
}

// LintOptions returns the lint options described by the config.
func (c *Config) LintOptions() (lint.Options, error) {
	rules, err := c.RuleSet()
	if err != nil {
		return lint.Options{}, err
	}
	return lint.Options{Rules: rules, IgnorePrefixes: c.IgnorePrefixes}, nil
}

// splitList splits a comma-separated environment value.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
