package healthcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/phpflow/internal/config"
	"github.com/l3aro/phpflow/pkg/lint"
	"github.com/l3aro/phpflow/pkg/syntax"
)

// ComponentStatus represents the health of one part of the setup.
type ComponentStatus struct {
	Name   string
	Detail string
	Status string // "ready", "disabled", "missing", "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Rules          string
	Parser         ComponentStatus
	Cache          ComponentStatus
	IgnoreFile     ComponentStatus
}

// HasError reports whether any component failed.
func (r *HealthCheckResult) HasError() bool {
	return r.Parser.Status == "error" || r.Cache.Status == "error"
}

// sample has exactly one unused variable.
const sample = `<?php
function sample($input) {
    $unused = 1;
    return $input;
}
`

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	rules, err := cfg.RuleSet()
	if err != nil {
		return nil, err
	}

	return &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
		Rules:          rules.String(),
		Parser:         checkParser(),
		Cache:          checkCache(cfg),
		IgnoreFile:     checkIgnoreFile(cfg),
	}, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".phpflow")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkParser runs the whole pipeline on a known snippet.
func checkParser() ComponentStatus {
	status := ComponentStatus{Name: "parser", Detail: "tree-sitter php"}

	tree, err := syntax.Parse([]byte(sample))
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}
	diags, callables := lint.CheckTree(tree, "sample.php", lint.DefaultOptions())
	if callables != 1 || len(diags) != 1 || diags[0].Variable != "unused" {
		status.Status = "error"
		status.Error = fmt.Sprintf("sample produced %d callables and %d findings, want 1 and 1", callables, len(diags))
		return status
	}

	status.Status = "ready"
	return status
}

// checkCache verifies the cache directory can be created and written.
func checkCache(cfg *config.Config) ComponentStatus {
	status := ComponentStatus{Name: "cache", Detail: cfg.CacheDir}
	if cfg.NoCache {
		status.Status = "disabled"
		return status
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		status.Status = "error"
		status.Error = fmt.Sprintf("cannot create %s: %v", cfg.CacheDir, err)
		return status
	}
	f, err := os.CreateTemp(cfg.CacheDir, ".write-check-*")
	if err != nil {
		status.Status = "error"
		status.Error = fmt.Sprintf("cannot write to %s: %v", cfg.CacheDir, err)
		return status
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	status.Status = "ready"
	return status
}

// checkIgnoreFile looks for the project ignore file in the working directory.
func checkIgnoreFile(cfg *config.Config) ComponentStatus {
	status := ComponentStatus{Name: "ignore file", Detail: cfg.IgnoreFile}
	if cfg.IgnoreFile == "" {
		status.Status = "disabled"
		return status
	}
	if _, err := os.Stat(cfg.IgnoreFile); err != nil {
		status.Status = "missing"
		return status
	}
	status.Status = "ready"
	return status
}
