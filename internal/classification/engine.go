package classification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"shelver/internal/categories"
	"shelver/internal/config"
	"shelver/internal/logging"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/stage"
)

// Engine applies batching and the confidence decision policy on top of a
// Classifier.
type Engine struct {
	classifier       Classifier
	registry         *categories.Registry
	logger           *slog.Logger
	autoThreshold    float64
	suggestThreshold float64
	batchSize        int
	parallelism      int
	timeout          time.Duration
}

// NewEngine builds an engine from classifier settings.
func NewEngine(cfg *config.Config, classifier Classifier, registry *categories.Registry, logger *slog.Logger) *Engine {
	batchSize := cfg.Classifier.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	parallelism := cfg.Classifier.BatchParallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Engine{
		classifier:       classifier,
		registry:         registry,
		logger:           logging.NewComponentLogger(logger, "classification"),
		autoThreshold:    cfg.Classifier.AutoThreshold,
		suggestThreshold: cfg.Classifier.SuggestThreshold,
		batchSize:        batchSize,
		parallelism:      parallelism,
		timeout:          cfg.ClassifierTimeout(),
	}
}

// BatchSize returns the maximum number of requests sent in one classifier call.
func (e *Engine) BatchSize() int {
	return e.batchSize
}

// Decide maps a confidence onto the confirmation policy.
func (e *Engine) Decide(confidence float64) queue.Decision {
	switch {
	case confidence >= e.autoThreshold:
		return queue.DecisionAuto
	case confidence >= e.suggestThreshold:
		return queue.DecisionSuggest
	default:
		return queue.DecisionManual
	}
}

// Run classifies requests in batches and returns one outcome per request in
// input order.
func (e *Engine) Run(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, 0, len(reqs))
	for start := 0; start < len(reqs); start += e.batchSize {
		end := min(start+e.batchSize, len(reqs))
		outcomes = append(outcomes, e.runChunk(ctx, reqs[start:end])...)
	}
	return outcomes
}

func (e *Engine) runChunk(ctx context.Context, chunk []Request) []Outcome {
	if batcher, ok := e.classifier.(BatchClassifier); ok && len(chunk) > 1 {
		results, err := e.classifyBatch(ctx, batcher, chunk)
		if err == nil {
			outcomes := make([]Outcome, len(chunk))
			for i, req := range chunk {
				outcomes[i] = e.outcome(req, results[i], nil)
			}
			return outcomes
		}
		if ctx.Err() != nil {
			return e.failAll(chunk, services.Wrap(services.ErrClassifierUnavailable, "classification", "batch", "cancelled", ctx.Err()))
		}
		logging.WarnWithContext(e.logger, "batch classification failed; falling back to per-item calls", "classification_batch_failed",
			logging.Int("batch_size", len(chunk)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "items are classified one at a time"),
		)
	}
	return e.classifyEach(ctx, chunk)
}

func (e *Engine) classifyBatch(ctx context.Context, batcher BatchClassifier, chunk []Request) ([]Result, error) {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	results, err := batcher.ClassifyBatch(callCtx, chunk)
	if err != nil {
		return nil, err
	}
	if len(results) != len(chunk) {
		return nil, fmt.Errorf("batch returned %d results for %d requests", len(results), len(chunk))
	}
	return results, nil
}

func (e *Engine) classifyEach(ctx context.Context, chunk []Request) []Outcome {
	outcomes := make([]Outcome, len(chunk))
	var group errgroup.Group
	group.SetLimit(e.parallelism)
	for i, req := range chunk {
		group.Go(func() error {
			callCtx, cancel := e.withTimeout(ctx)
			defer cancel()
			result, err := e.classifier.Classify(callCtx, req)
			if err != nil {
				err = markTimeout(callCtx, err)
			}
			outcomes[i] = e.outcome(req, result, err)
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// markTimeout reports an expired classifier deadline as unavailability so the
// item is re-attempted later instead of failing.
func markTimeout(ctx context.Context, err error) error {
	if services.KindOf(err) == services.KindClassifierUnavailable {
		return err
	}
	if ctx.Err() != nil {
		return services.Wrap(services.ErrClassifierUnavailable, "classification", "classify", "classifier call timed out", err)
	}
	return err
}

func (e *Engine) failAll(chunk []Request, err error) []Outcome {
	outcomes := make([]Outcome, len(chunk))
	for i, req := range chunk {
		outcomes[i] = Outcome{Request: req, Err: err}
	}
	return outcomes
}

func (e *Engine) outcome(req Request, result Result, err error) Outcome {
	if err != nil {
		return Outcome{Request: req, Err: err}
	}
	result = e.normalize(result)
	return Outcome{Request: req, Result: result, Decision: e.Decide(result.Confidence)}
}

// normalize canonicalizes category spellings, clamps confidences and orders
// the alternatives.
func (e *Engine) normalize(result Result) Result {
	result.Category = e.resolve(result.Category)
	result.Confidence = clamp(result.Confidence)
	if result.Category == "" {
		result.Confidence = 0
	}

	best := make(map[string]float64, len(result.Alternatives))
	for _, alt := range result.Alternatives {
		name := e.resolve(alt.Category)
		if name == "" || name == result.Category {
			continue
		}
		confidence := clamp(alt.Confidence)
		if current, ok := best[name]; !ok || confidence > current {
			best[name] = confidence
		}
	}
	alternatives := make([]queue.Alternative, 0, len(best))
	for name, confidence := range best {
		alternatives = append(alternatives, queue.Alternative{Category: name, Confidence: confidence})
	}
	sort.Slice(alternatives, func(i, j int) bool {
		if alternatives[i].Confidence != alternatives[j].Confidence {
			return alternatives[i].Confidence > alternatives[j].Confidence
		}
		return alternatives[i].Category < alternatives[j].Category
	})
	result.Alternatives = alternatives
	return result
}

func (e *Engine) resolve(name string) string {
	if e.registry == nil {
		return name
	}
	return e.registry.Resolve(name)
}

func clamp(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}

// HealthCheck reports whether the configured classifier is reachable.
// Classifiers without a probe are always ready.
func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	const name = "classifier"
	checker, ok := e.classifier.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return stage.Healthy(name)
	}
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := checker.HealthCheck(callCtx); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
