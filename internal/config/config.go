package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Watch contains discovery settings.
type Watch struct {
	Roots                    []string `toml:"roots"`
	Recursive                bool     `toml:"recursive"`
	QuietWindowMillis        int      `toml:"quiet_window_ms"`
	MinSizeBytes             int64    `toml:"min_size_bytes"`
	Extensions               []string `toml:"extensions"`
	Exclude                  []string `toml:"exclude"`
	ReconcileIntervalSeconds int      `toml:"reconcile_interval_seconds"`
}

// Queue contains coordinator sizing.
type Queue struct {
	RegistrationCapacity   int `toml:"registration_capacity"`
	ClassificationCapacity int `toml:"classification_capacity"`
	RegistrationWorkers    int `toml:"registration_workers"`
	ClassificationWorkers  int `toml:"classification_workers"`
	OrganizeWorkers        int `toml:"organize_workers"`
	FairnessInterval       int `toml:"fairness_interval"`
	ShutdownGraceSeconds   int `toml:"shutdown_grace_seconds"`
	PollIntervalSeconds    int `toml:"poll_interval_seconds"`
}

// Classifier contains decision engine configuration.
type Classifier struct {
	Provider                string              `toml:"provider"`
	AutoThreshold           float64             `toml:"auto_threshold"`
	SuggestThreshold        float64             `toml:"suggest_threshold"`
	BatchSize               int                 `toml:"batch_size"`
	BatchParallelism        int                 `toml:"batch_parallelism"`
	TimeoutSeconds          int                 `toml:"timeout_seconds"`
	UnavailableRetrySeconds int                 `toml:"unavailable_retry_seconds"`
	Categories              []string            `toml:"categories"`
	Keywords                map[string][]string `toml:"keywords"`
}

// LLM contains connection settings for the chat-completion classifier.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Organizer contains library layout and move settings.
type Organizer struct {
	PathTemplate       string `toml:"path_template"`
	EpisodeTemplate    string `toml:"episode_template"`
	ConflictPolicy     string `toml:"conflict_policy"`
	CategoryCase       string `toml:"category_case"`
	MoveTimeoutSeconds int    `toml:"move_timeout_seconds"`
	MinFreeSpaceMB     int64  `toml:"min_free_space_mb"`
}

// Retry contains the bounded retry policy for transient failures.
type Retry struct {
	MaxRetries       int `toml:"max_retries"`
	BaseDelaySeconds int `toml:"base_delay_seconds"`
	MaxDelaySeconds  int `toml:"max_delay_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic            string `toml:"ntfy_topic"`
	RequestTimeout       int    `toml:"request_timeout"`
	BufferSize           int    `toml:"buffer_size"`
	Discovered           bool   `toml:"discovered"`
	Classified           bool   `toml:"classified"`
	ReadyForConfirmation bool   `toml:"ready_for_confirmation"`
	Moved                bool   `toml:"moved"`
	Failed               bool   `toml:"failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shelver.
//
// Configuration sections by subsystem:
//   - Paths: library destination, state (databases, lock) and logs
//   - Watch: discovery roots, quiet window, validation rules
//   - Queue: bounded queue capacities and worker pool sizes
//   - Classifier: provider, confidence thresholds, batching
//   - LLM: chat-completion endpoint for the llm provider
//   - Organizer: path templates and conflict policy
//   - Retry: bounded retry and backoff for transient failures
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Watch         Watch         `toml:"watch"`
	Queue         Queue         `toml:"queue"`
	Classifier    Classifier    `toml:"classifier"`
	LLM           LLM           `toml:"llm"`
	Organizer     Organizer     `toml:"organizer"`
	Retry         Retry         `toml:"retry"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, resolvedPath, exists, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shelver.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// QueueDBPath returns the SQLite file holding tracked items.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// JournalDBPath returns the SQLite file holding the move transaction log.
func (c *Config) JournalDBPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LogPath returns the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "shelver.log")
}

// LockPath returns the single-instance lock file used by the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "shelver.lock")
}

// QuietWindow returns the discovery debounce duration.
func (c *Config) QuietWindow() time.Duration {
	return time.Duration(c.Watch.QuietWindowMillis) * time.Millisecond
}

// ReconcileInterval returns the period of the full-tree reconciliation scan.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Watch.ReconcileIntervalSeconds) * time.Second
}

// ShutdownGrace returns how long in-flight work may run after shutdown starts.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Queue.ShutdownGraceSeconds) * time.Second
}

// PollInterval returns the dispatcher polling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalSeconds) * time.Second
}

// ClassifierTimeout returns the deadline applied to each classifier call.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSeconds) * time.Second
}

// UnavailableRetryDelay returns how long an item waits after the classifier was unreachable.
func (c *Config) UnavailableRetryDelay() time.Duration {
	return time.Duration(c.Classifier.UnavailableRetrySeconds) * time.Second
}

// MoveTimeout returns the deadline applied to a single organize operation.
func (c *Config) MoveTimeout() time.Duration {
	return time.Duration(c.Organizer.MoveTimeoutSeconds) * time.Second
}

// RetryBackoff returns the delay before the given retry attempt (1-based),
// doubling from the base delay and capped at the max delay.
func (c *Config) RetryBackoff(attempt int) time.Duration {
	base := time.Duration(c.Retry.BaseDelaySeconds) * time.Second
	maxDelay := time.Duration(c.Retry.MaxDelaySeconds) * time.Second
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
