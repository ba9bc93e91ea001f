package workflow_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shelver/internal/categories"
	"shelver/internal/classification"
	"shelver/internal/config"
	"shelver/internal/coordinator"
	"shelver/internal/fingerprint"
	"shelver/internal/logging"
	"shelver/internal/notifications"
	"shelver/internal/organizer"
	"shelver/internal/queue"
	"shelver/internal/testsupport"
	"shelver/internal/txlog"
	"shelver/internal/workflow"
)

const waitFor = 10 * time.Second

type answer struct {
	result classification.Result
	err    error
}

func sure(category string, confidence float64) answer {
	return answer{result: classification.Result{Category: category, Confidence: confidence}}
}

func hedged(category string, confidence float64, alternative string, altConfidence float64) answer {
	return answer{result: classification.Result{
		Category:     category,
		Confidence:   confidence,
		Alternatives: []queue.Alternative{{Category: alternative, Confidence: altConfidence}},
	}}
}

func failing(err error) answer {
	return answer{err: err}
}

// scriptedClassifier answers by display name. Answers are consumed in order
// and the last one repeats.
type scriptedClassifier struct {
	mu      sync.Mutex
	answers map[string][]answer
	calls   map[string]int
}

func newScriptedClassifier() *scriptedClassifier {
	return &scriptedClassifier{answers: make(map[string][]answer), calls: make(map[string]int)}
}

func (c *scriptedClassifier) script(name string, answers ...answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers[name] = append(c.answers[name], answers...)
}

func (c *scriptedClassifier) Classify(_ context.Context, req classification.Request) (classification.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.DisplayName]++
	queued := c.answers[req.DisplayName]
	if len(queued) == 0 {
		return classification.Result{}, nil
	}
	next := queued[0]
	if len(queued) > 1 {
		c.answers[req.DisplayName] = queued[1:]
	}
	return next.result, next.err
}

func (c *scriptedClassifier) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

type capturedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{event: event, payload: payload})
}

// forItem returns the events published for fp in order.
func (p *recordingPublisher) forItem(fp string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.payload["fingerprint"] == fp {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) kinds(fp string) []notifications.Event {
	var kinds []notifications.Event
	for _, e := range p.forItem(fp) {
		kinds = append(kinds, e.event)
	}
	return kinds
}

type registration struct {
	path string
	err  error
}

type registrationLog struct {
	mu   sync.Mutex
	seen []registration
}

func (l *registrationLog) observe(path string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, registration{path: path, err: err})
}

func (l *registrationLog) find(path string) (registration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.seen {
		if r.path == path {
			return r, true
		}
	}
	return registration{}, false
}

type fixture struct {
	cfg        *config.Config
	store      *queue.Store
	journal    *txlog.Journal
	registry   *categories.Registry
	classifier *scriptedClassifier
	publisher  *recordingPublisher
	registered *registrationLog
	manager    *workflow.Manager
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	f := &fixture{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		journal:    testsupport.MustOpenJournal(t, cfg),
		registry:   categories.New(cfg.Organizer.CategoryCase),
		classifier: newScriptedClassifier(),
		publisher:  &recordingPublisher{},
		registered: &registrationLog{},
	}
	f.registry.Seed(cfg.Classifier.Categories...)
	logger := logging.NewNop()
	engine := classification.NewEngine(cfg, f.classifier, f.registry, logger)
	mover := organizer.New(cfg, f.store, f.journal, f.registry, f.publisher, logger)
	f.manager = workflow.NewManager(cfg, workflow.Dependencies{
		Store:      f.store,
		Registry:   f.registry,
		Classifier: engine,
		Mover:      mover,
		Publisher:  f.publisher,
	}, logger, workflow.WithRegistrationObserver(f.registered.observe))
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Start(context.Background()))
	t.Cleanup(f.manager.Stop)
}

// drop writes a file into the inbox and returns its path and fingerprint.
func (f *fixture) drop(t *testing.T, name, content string) (string, string) {
	t.Helper()
	path := filepath.Join(testsupport.InboxDir(f.cfg), name)
	testsupport.WriteFile(t, path, content)
	digest, err := fingerprint.File(context.Background(), path)
	require.NoError(t, err)
	return path, digest.Hex
}

func (f *fixture) submit(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, f.manager.SubmitPath(context.Background(), path, coordinator.PriorityNormal))
}

// waitUntil polls the item until cond holds and returns the matching state.
func (f *fixture) waitUntil(t *testing.T, fp string, cond func(*queue.Item) bool) *queue.Item {
	t.Helper()
	var last *queue.Item
	require.Eventually(t, func() bool {
		item, err := f.store.GetByFingerprint(context.Background(), fp)
		if err != nil || item == nil {
			return false
		}
		last = item
		return cond(item)
	}, waitFor, 20*time.Millisecond, "item %s never reached the expected state", fp)
	return last
}

func (f *fixture) waitStatus(t *testing.T, fp string, status queue.Status) *queue.Item {
	t.Helper()
	return f.waitUntil(t, fp, func(item *queue.Item) bool { return item.Status == status })
}
