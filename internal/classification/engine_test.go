package classification_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shelver/internal/categories"
	"shelver/internal/classification"
	"shelver/internal/logging"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/testsupport"
)

type scriptedClassifier struct {
	mu        sync.Mutex
	batchErr  error
	results   map[string]classification.Result
	errs      map[string]error
	delay     time.Duration
	batches   atomic.Int32
	singles   atomic.Int32
	batchSeen [][]string
}

func (s *scriptedClassifier) Classify(ctx context.Context, req classification.Request) (classification.Result, error) {
	s.singles.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return classification.Result{}, ctx.Err()
		}
	}
	if err := s.errs[req.Fingerprint]; err != nil {
		return classification.Result{}, err
	}
	return s.results[req.Fingerprint], nil
}

func (s *scriptedClassifier) ClassifyBatch(_ context.Context, reqs []classification.Request) ([]classification.Result, error) {
	s.batches.Add(1)
	ids := make([]string, len(reqs))
	for i, req := range reqs {
		ids[i] = req.Fingerprint
	}
	s.mu.Lock()
	s.batchSeen = append(s.batchSeen, ids)
	s.mu.Unlock()
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	out := make([]classification.Result, len(reqs))
	for i, req := range reqs {
		out[i] = s.results[req.Fingerprint]
	}
	return out, nil
}

func newEngine(t *testing.T, classifier classification.Classifier, registry *categories.Registry) *classification.Engine {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.BatchSize = 2
	cfg.Classifier.BatchParallelism = 2
	cfg.Classifier.TimeoutSeconds = 1
	return classification.NewEngine(cfg, classifier, registry, logging.NewNop())
}

func requests(ids ...string) []classification.Request {
	reqs := make([]classification.Request, len(ids))
	for i, id := range ids {
		reqs[i] = classification.Request{Fingerprint: id, DisplayName: id + ".txt"}
	}
	return reqs
}

func TestDecideThresholds(t *testing.T) {
	engine := newEngine(t, &scriptedClassifier{}, nil)
	tests := []struct {
		confidence float64
		want       queue.Decision
	}{
		{0.90, queue.DecisionAuto},
		{0.85, queue.DecisionAuto},
		{0.60, queue.DecisionSuggest},
		{0.50, queue.DecisionSuggest},
		{0.20, queue.DecisionManual},
	}
	for _, tt := range tests {
		if got := engine.Decide(tt.confidence); got != tt.want {
			t.Fatalf("Decide(%v) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestRunChunksRequestsByBatchSize(t *testing.T) {
	classifier := &scriptedClassifier{results: map[string]classification.Result{
		"a": {Category: "Documents", Confidence: 0.9},
		"b": {Category: "Music", Confidence: 0.6},
		"c": {Category: "Photos", Confidence: 0.1},
	}}
	engine := newEngine(t, classifier, nil)

	outcomes := engine.Run(context.Background(), requests("a", "b", "c"))
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if got := classifier.batches.Load(); got != 1 {
		t.Fatalf("expected one batch call for the first chunk, got %d", got)
	}
	if got := classifier.singles.Load(); got != 1 {
		t.Fatalf("expected single call for trailing item, got %d", got)
	}
	wantDecisions := []queue.Decision{queue.DecisionAuto, queue.DecisionSuggest, queue.DecisionManual}
	for i, outcome := range outcomes {
		if outcome.Err != nil {
			t.Fatalf("outcome %d error: %v", i, outcome.Err)
		}
		if outcome.Decision != wantDecisions[i] {
			t.Fatalf("outcome %d decision = %s, want %s", i, outcome.Decision, wantDecisions[i])
		}
	}
}

func TestRunFallsBackToPerItemOnBatchFailure(t *testing.T) {
	unavailable := services.Wrap(services.ErrClassifierUnavailable, "test", "classify", "down", nil)
	classifier := &scriptedClassifier{
		batchErr: errors.New("malformed batch"),
		results: map[string]classification.Result{
			"a": {Category: "Documents", Confidence: 0.9},
		},
		errs: map[string]error{"b": unavailable},
	}
	engine := newEngine(t, classifier, nil)

	outcomes := engine.Run(context.Background(), requests("a", "b"))
	if classifier.singles.Load() != 2 {
		t.Fatalf("expected per-item fallback for both items, got %d calls", classifier.singles.Load())
	}
	if outcomes[0].Err != nil || outcomes[0].Result.Category != "Documents" {
		t.Fatalf("unexpected first outcome: %+v", outcomes[0])
	}
	if services.KindOf(outcomes[1].Err) != services.KindClassifierUnavailable {
		t.Fatalf("expected classifier unavailable, got %v", outcomes[1].Err)
	}
}

func TestRunTreatsTimeoutAsUnavailable(t *testing.T) {
	classifier := &scriptedClassifier{delay: 5 * time.Second}
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.BatchSize = 1
	cfg.Classifier.TimeoutSeconds = 1
	engine := classification.NewEngine(cfg, classifier, nil, logging.NewNop())

	start := time.Now()
	outcomes := engine.Run(context.Background(), requests("slow"))
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("classifier call not bounded by timeout: %s", elapsed)
	}
	if services.KindOf(outcomes[0].Err) != services.KindClassifierUnavailable {
		t.Fatalf("expected timeout to be classifier unavailable, got %v", outcomes[0].Err)
	}
}

func TestRunCanonicalizesCategoriesAndAlternatives(t *testing.T) {
	registry := categories.New(categories.CasePreserve)
	registry.Seed("Show Name", "Documents")
	classifier := &scriptedClassifier{results: map[string]classification.Result{
		"a": {
			Category:   "SHOW NAME",
			Confidence: 1.4,
			Alternatives: []queue.Alternative{
				{Category: "documents", Confidence: 0.2},
				{Category: "DOCUMENTS", Confidence: 0.4},
				{Category: "show name", Confidence: 0.3},
				{Category: "Invoices", Confidence: 0.5},
			},
		},
	}}
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.BatchSize = 1
	engine := classification.NewEngine(cfg, classifier, registry, logging.NewNop())

	outcome := engine.Run(context.Background(), requests("a"))[0]
	if outcome.Result.Category != "Show Name" || outcome.Result.Confidence != 1 {
		t.Fatalf("unexpected primary: %+v", outcome.Result)
	}
	alts := outcome.Result.Alternatives
	if len(alts) != 2 || alts[0].Category != "Invoices" || alts[1].Category != "Documents" || alts[1].Confidence != 0.4 {
		t.Fatalf("unexpected alternatives: %+v", alts)
	}
}
