package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"shelver/internal/categories"
	"shelver/internal/classification"
	"shelver/internal/config"
	"shelver/internal/discovery"
	"shelver/internal/logging"
	"shelver/internal/notifications"
	"shelver/internal/organizer"
	"shelver/internal/preflight"
	"shelver/internal/queue"
	"shelver/internal/stage"
	"shelver/internal/staging"
	"shelver/internal/txlog"
	"shelver/internal/workflow"
)

// staleTempAge is how old an unowned temp file must be before startup removes it.
const staleTempAge = time.Hour

// ErrAlreadyRunning is returned when another daemon holds the state lock.
var ErrAlreadyRunning = errors.New("another shelver daemon instance is already running")

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	recovery  organizer.RecoveryReport
	preflight []preflight.Result
	cancel    context.CancelFunc

	store     *queue.Store
	journal   *txlog.Journal
	bus       *notifications.Bus
	workflow  *workflow.Manager
	discovery *discovery.Service
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	StartedAt     time.Time
	Recovery      organizer.RecoveryReport
	Preflight     []preflight.Result
	Workflow      workflow.StatusSummary
	Discovery     stage.Health
	Database      queue.DatabaseHealth
	QueueDBPath   string
	JournalDBPath string
	LockFilePath  string
}

// New constructs a daemon. Nothing is opened until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the lock, recovers interrupted moves and launches the
// workflow manager and discovery.
func (d *Daemon) Start(ctx context.Context) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err != nil {
			d.teardown()
		}
	}()

	if d.store, err = queue.Open(d.cfg); err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	if d.journal, err = txlog.Open(d.cfg); err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	d.preflight = preflight.RunAll(ctx, d.cfg)
	for _, check := range preflight.Failed(d.preflight) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "moves or classification may fail until resolved"),
		)
	}

	registry, err := d.loadRegistry(ctx)
	if err != nil {
		return err
	}
	d.bus = notifications.NewFromConfig(d.cfg, d.logger)

	classifier, err := classification.NewFromConfig(d.cfg, registry, d.logger)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}
	engine := classification.NewEngine(d.cfg, classifier, registry, d.logger)
	mover := organizer.New(d.cfg, d.store, d.journal, registry, d.bus, d.logger)

	report, err := mover.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover moves: %w", err)
	}
	d.recovery = report
	d.sweepTemps(ctx)

	// The observer only fires once the manager runs, after discovery exists.
	var disc *discovery.Service
	d.workflow = workflow.NewManager(d.cfg, workflow.Dependencies{
		Store:      d.store,
		Registry:   registry,
		Classifier: engine,
		Mover:      mover,
		Publisher:  d.bus,
	}, d.logger, workflow.WithRegistrationObserver(func(path string, err error) {
		disc.Settle(path, err)
	}))
	disc, err = discovery.New(d.cfg, d.store, d.workflow, d.logger)
	if err != nil {
		return fmt.Errorf("build discovery: %w", err)
	}
	d.discovery = disc

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.workflow.Start(runCtx); err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.discovery.Start(runCtx); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}

	d.running = true
	d.startedAt = time.Now()
	d.logger.Info(
		"shelver daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("categories", registry.Len()),
		logging.Int("recovered_forward", report.RolledForward),
		logging.Int("recovered_back", report.RolledBack),
		logging.Int("recovered_orphans", report.Orphaned),
	)
	return nil
}

// loadRegistry seeds categories from configuration and from items already
// in the store.
func (d *Daemon) loadRegistry(ctx context.Context) (*categories.Registry, error) {
	registry := categories.New(d.cfg.Organizer.CategoryCase)
	registry.Seed(d.cfg.Classifier.Categories...)
	known, err := d.store.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	registry.Seed(known...)
	return registry, nil
}

// sweepTemps removes stray organizer temp files that no pending move owns.
func (d *Daemon) sweepTemps(ctx context.Context) {
	keep := map[string]struct{}{}
	pending, err := d.journal.Pending(ctx)
	if err != nil {
		d.logger.Warn("skipping temp sweep", logging.Error(err))
		return
	}
	for _, entry := range pending {
		if entry.TempPath != "" {
			keep[entry.TempPath] = struct{}{}
		}
	}
	result := staging.CleanStale(ctx, d.cfg.Paths.LibraryDir, staleTempAge, keep, d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("swept stale temp files", logging.Int("removed", len(result.Removed)))
	}
}

// Stop stops intake, drains the workflow and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.teardown()
	d.running = false
	d.logger.Info("shelver daemon stopped")
}

// teardown releases whatever Start acquired, newest first.
func (d *Daemon) teardown() {
	if d.discovery != nil {
		d.discovery.Stop()
		d.discovery = nil
	}
	if d.workflow != nil {
		d.workflow.Stop()
		d.workflow = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.bus != nil {
		d.bus.Close()
		d.bus = nil
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			d.logger.Warn("failed to close journal", logging.Error(err))
		}
		d.journal = nil
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("failed to close queue store", logging.Error(err))
		}
		d.store = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := Status{
		Running:       d.running,
		StartedAt:     d.startedAt,
		Recovery:      d.recovery,
		Preflight:     d.preflight,
		QueueDBPath:   d.cfg.QueueDBPath(),
		JournalDBPath: d.cfg.JournalDBPath(),
		LockFilePath:  d.lockPath,
	}
	if !d.running {
		return status
	}
	status.Workflow = d.workflow.Status(ctx)
	status.Discovery = d.discovery.HealthCheck(ctx)
	db, err := d.store.CheckHealth(ctx)
	if err != nil {
		db.Error = err.Error()
	}
	status.Database = db
	return status
}

// LockHeld reports whether a daemon currently holds the lock at lockPath.
func LockHeld(lockPath string) (bool, error) {
	probe := flock.New(lockPath)
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	if err := probe.Unlock(); err != nil {
		return false, fmt.Errorf("release lock probe: %w", err)
	}
	return false, nil
}
