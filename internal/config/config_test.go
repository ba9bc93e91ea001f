package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"shelver/internal/config"
)

func writeConfig(t *testing.T, dir string, mutate func(*config.Config)) string {
	t.Helper()
	cfg := config.Default()
	cfg.Watch.Roots = []string{filepath.Join(dir, "incoming")}
	cfg.Paths.LibraryDir = filepath.Join(dir, "library")
	cfg.Paths.StateDir = filepath.Join(dir, "state")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Organizer.ConflictPolicy = "rename"
	if mutate != nil {
		mutate(&cfg)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "shelver.toml")
	content := `
[paths]
library_dir = "~/library"

[watch]
roots = ["~/incoming", "~/incoming/", "  "]
extensions = ["MKV", ".pdf", "mkv"]

[organizer]
conflict_policy = " Skip "
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution %q exists=%v", resolved, exists)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "library") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, ".local", "share", "shelver") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if len(cfg.Watch.Roots) != 1 || cfg.Watch.Roots[0] != filepath.Join(tempHome, "incoming") {
		t.Fatalf("expected deduplicated roots, got %v", cfg.Watch.Roots)
	}
	if strings.Join(cfg.Watch.Extensions, ",") != ".mkv,.pdf" {
		t.Fatalf("unexpected extensions %v", cfg.Watch.Extensions)
	}
	if cfg.Organizer.ConflictPolicy != config.ConflictSkip {
		t.Fatalf("expected normalized conflict policy, got %q", cfg.Organizer.ConflictPolicy)
	}
	if cfg.Queue.RegistrationCapacity != 100 || cfg.Queue.ClassificationCapacity != 50 {
		t.Fatalf("unexpected queue capacities %+v", cfg.Queue)
	}
	if cfg.Classifier.AutoThreshold != 0.85 || cfg.Classifier.SuggestThreshold != 0.50 {
		t.Fatalf("unexpected thresholds %+v", cfg.Classifier)
	}
	if cfg.QuietWindow() != 3*time.Second {
		t.Fatalf("unexpected quiet window %s", cfg.QuietWindow())
	}
}

func TestLoadRequiresConflictPolicy(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, func(cfg *config.Config) {
		cfg.Organizer.ConflictPolicy = ""
	})
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "organizer.conflict_policy") {
		t.Fatalf("expected conflict policy error, got %v", err)
	}
}

func TestLoadRejectsUnknownConflictPolicy(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, func(cfg *config.Config) {
		cfg.Organizer.ConflictPolicy = "merge"
	})
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown conflict policy")
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"no roots", func(c *config.Config) { c.Watch.Roots = nil }, "watch.roots"},
		{"threshold order", func(c *config.Config) { c.Classifier.SuggestThreshold = 0.9 }, "suggest_threshold"},
		{"threshold range", func(c *config.Config) { c.Classifier.AutoThreshold = 1.5 }, "auto_threshold"},
		{"zero capacity", func(c *config.Config) { c.Queue.RegistrationCapacity = 0 }, "queue.registration_capacity"},
		{"bad glob", func(c *config.Config) { c.Watch.Exclude = []string{"[abc"} }, "watch.exclude"},
		{"template without category", func(c *config.Config) { c.Organizer.PathTemplate = "{filename}" }, "{category}"},
		{"llm without key", func(c *config.Config) { c.Classifier.Provider = "llm"; c.LLM.APIKey = "" }, "llm.api_key"},
		{"library inside root", func(c *config.Config) { c.Paths.LibraryDir = filepath.Join(c.Watch.Roots[0], "lib") }, "must not be inside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SHELVER_LLM_API_KEY", "")
			dir := t.TempDir()
			path := writeConfig(t, dir, tt.mutate)
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadUsesEnvLLMKey(t *testing.T) {
	t.Setenv("SHELVER_LLM_API_KEY", "env-key")
	dir := t.TempDir()
	path := writeConfig(t, dir, func(cfg *config.Config) {
		cfg.Classifier.Provider = "llm"
	})
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("expected env api key, got %q", cfg.LLM.APIKey)
	}
}

func TestRetryBackoffDoublesAndCaps(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.BaseDelaySeconds = 5
	cfg.Retry.MaxDelaySeconds = 30
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, expected := range want {
		if got := cfg.RetryBackoff(i + 1); got != expected {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, expected)
		}
	}
}

func TestSampleConfigLoads(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Organizer.ConflictPolicy != config.ConflictRename {
		t.Fatalf("unexpected sample conflict policy %q", cfg.Organizer.ConflictPolicy)
	}
	if got := cfg.Classifier.Keywords["Photos"]; len(got) == 0 {
		t.Fatalf("expected keyword patterns for Photos, got %v", got)
	}
}

func TestEnsureDirectoriesCreatesStateAndLogs(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(dir, "state")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.LibraryDir = filepath.Join(dir, "library")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, path := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.LibraryDir} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", path, err)
		}
	}
}
