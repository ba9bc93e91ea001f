package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Conflict policies accepted by organizer.conflict_policy.
const (
	ConflictSkip      = "skip"
	ConflictRename    = "rename"
	ConflictOverwrite = "overwrite"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateOrganizer(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	for _, root := range c.Watch.Roots {
		if root == c.Paths.LibraryDir || strings.HasPrefix(c.Paths.LibraryDir, root+"/") {
			return fmt.Errorf("paths.library_dir %q must not be inside watch root %q", c.Paths.LibraryDir, root)
		}
	}
	return nil
}

func (c *Config) validateWatch() error {
	if len(c.Watch.Roots) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("watch.roots must list at least one directory. Edit %s (create with 'shelver config init')", defaultPath)
	}
	if c.Watch.QuietWindowMillis < 0 {
		return errors.New("watch.quiet_window_ms must be >= 0")
	}
	if c.Watch.MinSizeBytes < 0 {
		return errors.New("watch.min_size_bytes must be >= 0")
	}
	if c.Watch.ReconcileIntervalSeconds <= 0 {
		return errors.New("watch.reconcile_interval_seconds must be positive")
	}
	for _, pattern := range c.Watch.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("watch.exclude: invalid pattern %q", pattern)
		}
	}
	return nil
}

func (c *Config) validateQueue() error {
	return ensurePositiveMap(map[string]int{
		"queue.registration_capacity":   c.Queue.RegistrationCapacity,
		"queue.classification_capacity": c.Queue.ClassificationCapacity,
		"queue.registration_workers":    c.Queue.RegistrationWorkers,
		"queue.classification_workers":  c.Queue.ClassificationWorkers,
		"queue.organize_workers":        c.Queue.OrganizeWorkers,
		"queue.fairness_interval":       c.Queue.FairnessInterval,
		"queue.shutdown_grace_seconds":  c.Queue.ShutdownGraceSeconds,
		"queue.poll_interval_seconds":   c.Queue.PollIntervalSeconds,
	})
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.Provider {
	case "keywords":
	case "llm":
		if c.LLM.APIKey == "" {
			return errors.New("llm.api_key must be set when classifier.provider is \"llm\" (or set SHELVER_LLM_API_KEY)")
		}
	default:
		return fmt.Errorf("classifier.provider: unsupported value %q (want keywords or llm)", c.Classifier.Provider)
	}
	if c.Classifier.AutoThreshold < 0 || c.Classifier.AutoThreshold > 1 {
		return errors.New("classifier.auto_threshold must be between 0 and 1")
	}
	if c.Classifier.SuggestThreshold < 0 || c.Classifier.SuggestThreshold > 1 {
		return errors.New("classifier.suggest_threshold must be between 0 and 1")
	}
	if c.Classifier.SuggestThreshold >= c.Classifier.AutoThreshold {
		return errors.New("classifier.suggest_threshold must be below classifier.auto_threshold")
	}
	for category, patterns := range c.Classifier.Keywords {
		for _, pattern := range patterns {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("classifier.keywords.%s: invalid pattern %q", category, pattern)
			}
		}
	}
	return ensurePositiveMap(map[string]int{
		"classifier.batch_size":                c.Classifier.BatchSize,
		"classifier.batch_parallelism":         c.Classifier.BatchParallelism,
		"classifier.timeout_seconds":           c.Classifier.TimeoutSeconds,
		"classifier.unavailable_retry_seconds": c.Classifier.UnavailableRetrySeconds,
	})
}

func (c *Config) validateOrganizer() error {
	switch c.Organizer.ConflictPolicy {
	case ConflictSkip, ConflictRename, ConflictOverwrite:
	case "":
		return errors.New("organizer.conflict_policy must be set explicitly to skip, rename, or overwrite")
	default:
		return fmt.Errorf("organizer.conflict_policy: unsupported value %q (want skip, rename, or overwrite)", c.Organizer.ConflictPolicy)
	}
	if err := validateTemplate("organizer.path_template", c.Organizer.PathTemplate); err != nil {
		return err
	}
	if c.Organizer.EpisodeTemplate != "" {
		if err := validateTemplate("organizer.episode_template", c.Organizer.EpisodeTemplate); err != nil {
			return err
		}
	}
	switch c.Organizer.CategoryCase {
	case "preserve", "title", "upper", "lower":
	default:
		return fmt.Errorf("organizer.category_case: unsupported value %q", c.Organizer.CategoryCase)
	}
	if c.Organizer.MoveTimeoutSeconds <= 0 {
		return errors.New("organizer.move_timeout_seconds must be positive")
	}
	if c.Organizer.MinFreeSpaceMB < 0 {
		return errors.New("organizer.min_free_space_mb must be >= 0")
	}
	return nil
}

func validateTemplate(key, template string) error {
	if !strings.Contains(template, "{category}") {
		return fmt.Errorf("%s must contain {category}", key)
	}
	if !strings.Contains(template, "{filename}") && !strings.Contains(template, "{name}") {
		return fmt.Errorf("%s must contain {filename} or {name}", key)
	}
	if strings.HasPrefix(template, "/") || strings.Contains(template, "..") {
		return fmt.Errorf("%s must be relative to paths.library_dir", key)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must be >= 0")
	}
	if c.Retry.BaseDelaySeconds < 0 {
		return errors.New("retry.base_delay_seconds must be >= 0")
	}
	if c.Retry.MaxDelaySeconds < c.Retry.BaseDelaySeconds {
		return errors.New("retry.max_delay_seconds must be >= retry.base_delay_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
