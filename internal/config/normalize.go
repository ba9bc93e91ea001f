package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	c.normalizeClassifier()
	c.normalizeLLM()
	c.normalizeOrganizer()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatch() error {
	roots := make([]string, 0, len(c.Watch.Roots))
	seen := make(map[string]struct{}, len(c.Watch.Roots))
	for _, root := range c.Watch.Roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(root))
		if err != nil {
			return fmt.Errorf("watch.roots: %w", err)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		roots = append(roots, expanded)
	}
	c.Watch.Roots = roots

	exts := make([]string, 0, len(c.Watch.Extensions))
	seenExt := make(map[string]struct{}, len(c.Watch.Extensions))
	for _, ext := range c.Watch.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, ok := seenExt[normalized]; ok {
			continue
		}
		seenExt[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Watch.Extensions = exts

	patterns := c.Watch.Exclude[:0]
	for _, pattern := range c.Watch.Exclude {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	c.Watch.Exclude = patterns
	return nil
}

func (c *Config) normalizeClassifier() {
	c.Classifier.Provider = strings.ToLower(strings.TrimSpace(c.Classifier.Provider))
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = defaultClassifierProvider
	}
	categories := make([]string, 0, len(c.Classifier.Categories))
	for _, name := range c.Classifier.Categories {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			categories = append(categories, trimmed)
		}
	}
	c.Classifier.Categories = categories
	for category, patterns := range c.Classifier.Keywords {
		cleaned := make([]string, 0, len(patterns))
		for _, pattern := range patterns {
			if trimmed := strings.ToLower(strings.TrimSpace(pattern)); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		c.Classifier.Keywords[category] = cleaned
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("SHELVER_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
}

func (c *Config) normalizeOrganizer() {
	c.Organizer.PathTemplate = strings.TrimSpace(c.Organizer.PathTemplate)
	if c.Organizer.PathTemplate == "" {
		c.Organizer.PathTemplate = defaultPathTemplate
	}
	c.Organizer.EpisodeTemplate = strings.TrimSpace(c.Organizer.EpisodeTemplate)
	c.Organizer.ConflictPolicy = strings.ToLower(strings.TrimSpace(c.Organizer.ConflictPolicy))
	c.Organizer.CategoryCase = strings.ToLower(strings.TrimSpace(c.Organizer.CategoryCase))
	if c.Organizer.CategoryCase == "" {
		c.Organizer.CategoryCase = defaultCategoryCase
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SHELVER_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.BufferSize <= 0 {
		c.Notifications.BufferSize = defaultNotifyBufferSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
