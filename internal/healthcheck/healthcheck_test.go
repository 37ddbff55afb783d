package healthcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/phpflow/internal/config"
)

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckWithBadRules(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Rules = []string{"nope"}
	if _, err := Check(cfg, "", ""); err == nil {
		t.Error("Expected error for unknown rule, got nil")
	}
}

func TestCheckReady(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(".phpflowignore", []byte("generated/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.CacheDir = filepath.Join(dir, "cache")

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if result.Parser.Status != "ready" {
		t.Errorf("Parser.Status = %q (%s), want ready", result.Parser.Status, result.Parser.Error)
	}
	if result.Cache.Status != "ready" {
		t.Errorf("Cache.Status = %q (%s), want ready", result.Cache.Status, result.Cache.Error)
	}
	if result.IgnoreFile.Status != "ready" {
		t.Errorf("IgnoreFile.Status = %q, want ready", result.IgnoreFile.Status)
	}
	if result.Rules != "unused-variable,undefined-variable,possibly-undefined-variable" {
		t.Errorf("Rules = %q", result.Rules)
	}
	if result.HasError() {
		t.Error("HasError() = true, want false")
	}

	entries, err := os.ReadDir(cfg.CacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cache check left %d files behind", len(entries))
	}
}

func TestCheckCacheDisabledAndUnwritable(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg := config.DefaultConfig()
	cfg.NoCache = true
	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Cache.Status != "disabled" {
		t.Errorf("Cache.Status = %q, want disabled", result.Cache.Status)
	}
	if result.IgnoreFile.Status != "missing" {
		t.Errorf("IgnoreFile.Status = %q, want missing", result.IgnoreFile.Status)
	}

	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg.NoCache = false
	cfg.CacheDir = filepath.Join(blocker, "cache")
	result, err = Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Cache.Status != "error" {
		t.Errorf("Cache.Status = %q, want error", result.Cache.Status)
	}
	if !result.HasError() {
		t.Error("HasError() = false, want true")
	}
}

func TestScopeFromPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{filepath.Join(home, ".phpflow", "config.yaml"), "global"},
		{".phpflow/config.yaml", "project"},
	}
	for _, tt := range tests {
		if got := scopeFromPath(tt.path); got != tt.want {
			t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
