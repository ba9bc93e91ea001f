package classification

import (
	"fmt"
	"log/slog"

	"shelver/internal/categories"
	"shelver/internal/config"
	"shelver/internal/services"
	"shelver/internal/services/llm"
)

// Provider names accepted by classifier.provider.
const (
	ProviderKeywords = "keywords"
	ProviderLLM      = "llm"
)

// NewFromConfig builds the configured classifier.
func NewFromConfig(cfg *config.Config, registry *categories.Registry, logger *slog.Logger) (Classifier, error) {
	switch cfg.Classifier.Provider {
	case "", ProviderKeywords:
		return NewKeywordClassifier(cfg.Classifier.Keywords, registry)
	case ProviderLLM:
		client := llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Referer:        cfg.LLM.Referer,
			Title:          cfg.LLM.Title,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		})
		return NewLLMClassifier(client, registry, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "classification", "provider",
			fmt.Sprintf("unsupported provider %q", cfg.Classifier.Provider), nil)
	}
}
