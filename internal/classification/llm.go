package classification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"shelver/internal/categories"
	"shelver/internal/logging"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/services/llm"
)

const systemPrompt = `You sort files into library categories using only the file name.
Respond with JSON only. Prefer an existing category when one fits; otherwise propose a short new category name.
Confidence is a number from 0 to 1 describing how sure you are.`

// Completer is the subset of the LLM client used for classification.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMClassifier classifies file names with a chat-completion endpoint.
type LLMClassifier struct {
	client   Completer
	registry *categories.Registry
	logger   *slog.Logger
}

// NewLLMClassifier wraps a completion client.
func NewLLMClassifier(client Completer, registry *categories.Registry, logger *slog.Logger) *LLMClassifier {
	return &LLMClassifier{
		client:   client,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "llm-classifier"),
	}
}

type llmAnswer struct {
	ID           string              `json:"id,omitempty"`
	Category     string              `json:"category"`
	Confidence   float64             `json:"confidence"`
	Alternatives []queue.Alternative `json:"alternatives"`
}

type llmBatchAnswer struct {
	Results []llmAnswer `json:"results"`
}

type llmItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Classify implements Classifier. An unusable answer yields an empty result,
// which the engine treats as a manual decision.
func (c *LLMClassifier) Classify(ctx context.Context, req Request) (Result, error) {
	prompt := fmt.Sprintf("%s\nFile name: %s\nReply as {\"category\": string, \"confidence\": number, \"alternatives\": [{\"category\": string, \"confidence\": number}]}",
		c.categoryLine(), req.DisplayName)
	content, err := c.client.CompleteJSON(ctx, systemPrompt, prompt)
	if err != nil {
		return Result{}, c.wrap("classify", err)
	}
	var answer llmAnswer
	if err := llm.DecodeJSON(content, &answer); err != nil {
		logging.WarnWithContext(c.logger, "unusable classifier answer", "llm_answer_invalid",
			logging.String(logging.FieldFingerprint, req.Fingerprint),
			logging.Error(err),
			logging.String(logging.FieldImpact, "item requires a manual category"),
		)
		return Result{}, nil
	}
	return answer.result(), nil
}

// ClassifyBatch implements BatchClassifier. A response missing any request
// id fails the batch so the engine falls back to per-item calls.
func (c *LLMClassifier) ClassifyBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	items := make([]llmItem, len(reqs))
	for i, req := range reqs {
		items[i] = llmItem{ID: req.Fingerprint, Name: req.DisplayName}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	prompt := fmt.Sprintf("%s\nFiles: %s\nReply as {\"results\": [{\"id\": string, \"category\": string, \"confidence\": number, \"alternatives\": [{\"category\": string, \"confidence\": number}]}]} with one entry per file id.",
		c.categoryLine(), payload)
	content, err := c.client.CompleteJSON(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, c.wrap("classify batch", err)
	}
	var answer llmBatchAnswer
	if err := llm.DecodeJSON(content, &answer); err != nil {
		return nil, services.Wrap(services.ErrValidation, "classification", "classify batch", "decode answer", err)
	}
	byID := make(map[string]llmAnswer, len(answer.Results))
	for _, entry := range answer.Results {
		byID[entry.ID] = entry
	}
	results := make([]Result, len(reqs))
	for i, req := range reqs {
		entry, ok := byID[req.Fingerprint]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "classification", "classify batch",
				fmt.Sprintf("answer missing id %s", req.Fingerprint), nil)
		}
		results[i] = entry.result()
	}
	return results, nil
}

// HealthCheck verifies the endpoint when the client supports it.
func (c *LLMClassifier) HealthCheck(ctx context.Context) error {
	checker, ok := c.client.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return nil
	}
	return checker.HealthCheck(ctx)
}

func (c *LLMClassifier) categoryLine() string {
	if c.registry == nil || c.registry.Len() == 0 {
		return "Existing categories: none yet."
	}
	return "Existing categories: " + strings.Join(c.registry.Names(), ", ") + "."
}

func (c *LLMClassifier) wrap(op string, err error) error {
	if llm.IsTemporary(err) || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrClassifierUnavailable, "classification", op, "llm endpoint unavailable", err)
	}
	return services.Wrap(services.ErrConfiguration, "classification", op, "llm request rejected", err)
}

func (a llmAnswer) result() Result {
	return Result{
		Category:     strings.TrimSpace(a.Category),
		Confidence:   a.Confidence,
		Alternatives: a.Alternatives,
	}
}
