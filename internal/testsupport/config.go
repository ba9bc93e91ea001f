package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"shelver/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Watch.Roots = []string{filepath.Join(base, "inbox")}
	cfgVal.Watch.QuietWindowMillis = 50
	cfgVal.Organizer.ConflictPolicy = config.ConflictRename
	cfgVal.Queue.PollIntervalSeconds = 1
	cfgVal.Queue.ShutdownGraceSeconds = 2
	cfgVal.Retry.BaseDelaySeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range append([]string{cfgVal.Paths.LibraryDir}, cfgVal.Watch.Roots...) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithQuietWindow sets watch.quiet_window_ms on the test config.
func WithQuietWindow(window time.Duration) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watch.QuietWindowMillis = int(window / time.Millisecond)
	}
}

// WithConflictPolicy sets organizer.conflict_policy on the test config.
func WithConflictPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Organizer.ConflictPolicy = policy
	}
}

// WithCategories seeds classifier.categories on the test config.
func WithCategories(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Classifier.Categories = append([]string(nil), names...)
	}
}

// WithEpisodeTemplate sets the organizer episode template.
func WithEpisodeTemplate(template string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Organizer.EpisodeTemplate = template
	}
}

// WithMaxRetries overrides the bounded retry count.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxRetries = n
	}
}

// WithQueueCapacity overrides both stage queue capacities.
func WithQueueCapacity(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.RegistrationCapacity = n
		b.cfg.Queue.ClassificationCapacity = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// InboxDir returns the first watch root of the generated config.
func InboxDir(cfg *config.Config) string {
	return cfg.Watch.Roots[0]
}
