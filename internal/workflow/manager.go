package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shelver/internal/categories"
	"shelver/internal/config"
	"shelver/internal/coordinator"
	"shelver/internal/logging"
	"shelver/internal/notifications"
	"shelver/internal/queue"
)

// Manager coordinates registration, classification and organization.
type Manager struct {
	cfg        *config.Config
	store      *queue.Store
	registry   *categories.Registry
	classifier Classifier
	mover      Mover
	publisher  notifications.Publisher
	logger     *slog.Logger

	locks    *coordinator.KeyedLock
	coord    *coordinator.Coordinator
	organize *coordinator.Queue[string]
	policy   queue.RetryPolicy

	pollInterval     time.Duration
	unavailableDelay time.Duration
	grace            time.Duration
	onRegistered     func(path string, err error)

	mu             sync.RWMutex
	running        bool
	cancel         context.CancelFunc
	organizeCancel context.CancelFunc
	wg             sync.WaitGroup
	organizeWG     sync.WaitGroup
	lastErr        error
	lastItem       *queue.Item
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithRegistrationObserver registers a callback invoked with the outcome of
// every path registration.
func WithRegistrationObserver(fn func(path string, err error)) ManagerOption {
	return func(m *Manager) {
		m.onRegistered = fn
	}
}

// NewManager constructs a workflow manager. The coordinator is built
// immediately so paths can be submitted before Start; they are processed
// once workers run.
func NewManager(cfg *config.Config, deps Dependencies, logger *slog.Logger, opts ...ManagerOption) *Manager {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = notifications.NopPublisher{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:              cfg,
		store:            deps.Store,
		registry:         deps.Registry,
		classifier:       deps.Classifier,
		mover:            deps.Mover,
		publisher:        publisher,
		logger:           logging.NewComponentLogger(logger, "workflow-manager"),
		locks:            coordinator.NewKeyedLock(),
		policy:           queue.RetryPolicyFromConfig(cfg),
		pollInterval:     cfg.PollInterval(),
		unavailableDelay: cfg.UnavailableRetryDelay(),
		grace:            cfg.ShutdownGrace(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.coord = coordinator.New(coordinator.OptionsFromConfig(cfg), coordinator.Handlers{
		Register: m.register,
		Classify: m.classify,
		Spill:    m.spill,
	}, m.locks, logger)
	m.organize = coordinator.NewQueue[string](max(cfg.Queue.OrganizeWorkers*2, 1), 0)
	return m
}

// SubmitPath queues a discovered path, blocking while registration is
// saturated.
func (m *Manager) SubmitPath(ctx context.Context, path string, priority coordinator.Priority) error {
	return m.coord.SubmitPath(ctx, path, priority)
}

// TrySubmitPath queues a discovered path without blocking.
func (m *Manager) TrySubmitPath(path string, priority coordinator.Priority) bool {
	return m.coord.TrySubmitPath(path, priority)
}
