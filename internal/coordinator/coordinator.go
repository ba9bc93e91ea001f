package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shelver/internal/config"
	"shelver/internal/logging"
	"shelver/internal/services"
)

// Task is one unit of queued work.
type Task struct {
	// Path is set for registration tasks.
	Path string
	// Fingerprint is set for classification tasks.
	Fingerprint string
	Priority    Priority
}

// Leftovers holds work still queued when the coordinator shut down.
type Leftovers struct {
	Paths        []string
	Fingerprints []string
}

// Empty reports whether nothing was left behind.
func (l Leftovers) Empty() bool {
	return len(l.Paths) == 0 && len(l.Fingerprints) == 0
}

// Handlers are the stage callbacks the coordinator drives.
type Handlers struct {
	// Register persists a discovered path and returns the fingerprint to
	// classify, or "" when nothing should be classified.
	Register func(ctx context.Context, task Task) (string, error)
	// Classify handles a batch of claimed fingerprints.
	Classify func(ctx context.Context, batch []Task)
	// Spill receives leftovers at shutdown.
	Spill func(ctx context.Context, leftovers Leftovers)
}

// Options sizes the stages.
type Options struct {
	RegistrationCapacity   int
	ClassificationCapacity int
	RegistrationWorkers    int
	ClassificationWorkers  int
	FairnessInterval       int
	BatchSize              int
}

// OptionsFromConfig maps queue and classifier settings to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RegistrationCapacity:   cfg.Queue.RegistrationCapacity,
		ClassificationCapacity: cfg.Queue.ClassificationCapacity,
		RegistrationWorkers:    cfg.Queue.RegistrationWorkers,
		ClassificationWorkers:  cfg.Queue.ClassificationWorkers,
		FairnessInterval:       cfg.Queue.FairnessInterval,
		BatchSize:              cfg.Classifier.BatchSize,
	}
}

// Depths reports queue occupancy.
type Depths struct {
	Registration           int `json:"registration"`
	RegistrationCapacity   int `json:"registration_capacity"`
	Classification         int `json:"classification"`
	ClassificationCapacity int `json:"classification_capacity"`
	Claimed                int `json:"claimed"`
}

// Coordinator owns the registration and classification queues and their
// worker pools.
type Coordinator struct {
	opts     Options
	handlers Handlers
	locks    *KeyedLock
	logger   *slog.Logger

	registration   *Queue[Task]
	classification *Queue[Task]

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a coordinator. locks may be shared with other components
// that mutate items; nil allocates a private table.
func New(opts Options, handlers Handlers, locks *KeyedLock, logger *slog.Logger) *Coordinator {
	opts.RegistrationWorkers = max(opts.RegistrationWorkers, 1)
	opts.ClassificationWorkers = max(opts.ClassificationWorkers, 1)
	opts.BatchSize = max(opts.BatchSize, 1)
	if locks == nil {
		locks = NewKeyedLock()
	}
	return &Coordinator{
		opts:           opts,
		handlers:       handlers,
		locks:          locks,
		logger:         logging.NewComponentLogger(logger, "coordinator"),
		registration:   NewQueue[Task](opts.RegistrationCapacity, opts.FairnessInterval),
		classification: NewQueue[Task](opts.ClassificationCapacity, opts.FairnessInterval),
	}
}

// Locks returns the lock table shared with handlers.
func (c *Coordinator) Locks() *KeyedLock {
	return c.locks
}

// Start launches the worker pools. Workers outlive ctx cancellation until
// Shutdown so in-flight work can finish within the grace period.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrClosed
	}
	if c.running {
		return errors.New("coordinator already running")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.running = true

	for i := range c.opts.RegistrationWorkers {
		c.wg.Go(func() { c.registrationWorker(runCtx, i) })
	}
	for i := range c.opts.ClassificationWorkers {
		c.wg.Go(func() { c.classificationWorker(runCtx, i) })
	}
	c.logger.Info(
		"coordinator started",
		logging.Int("registration_workers", c.opts.RegistrationWorkers),
		logging.Int("classification_workers", c.opts.ClassificationWorkers),
		logging.Int("batch_size", c.opts.BatchSize),
	)
	return nil
}

// SubmitPath queues a discovered path, blocking while the registration queue
// is full.
func (c *Coordinator) SubmitPath(ctx context.Context, path string, priority Priority) error {
	return c.registration.Push(ctx, Task{Path: path, Priority: priority}, priority)
}

// TrySubmitPath queues a path without blocking.
func (c *Coordinator) TrySubmitPath(path string, priority Priority) bool {
	return c.registration.TryPush(Task{Path: path, Priority: priority}, priority)
}

// SubmitFingerprint claims fp and queues it for classification, blocking
// while the classification queue is full. It returns false without queuing
// when fp is already claimed.
func (c *Coordinator) SubmitFingerprint(ctx context.Context, fp string, priority Priority) (bool, error) {
	if !c.locks.TryClaim(fp) {
		return false, nil
	}
	if err := c.classification.Push(ctx, Task{Fingerprint: fp, Priority: priority}, priority); err != nil {
		c.locks.Release(fp)
		return false, err
	}
	return true, nil
}

// Depths returns current queue occupancy.
func (c *Coordinator) Depths() Depths {
	return Depths{
		Registration:           c.registration.Len(),
		RegistrationCapacity:   c.registration.Cap(),
		Classification:         c.classification.Len(),
		ClassificationCapacity: c.classification.Cap(),
		Claimed:                c.locks.Claimed(),
	}
}

// Shutdown closes both queues, waits up to grace for workers to finish
// their current task, cancels them if they have not, and hands what is
// still queued to the Spill handler.
func (c *Coordinator) Shutdown(grace time.Duration) Leftovers {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return Leftovers{}
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	c.registration.Close()
	c.classification.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logging.WarnWithContext(c.logger, "shutdown grace elapsed; cancelling workers", "coordinator_shutdown_timeout",
			logging.Duration("grace", grace),
			logging.String(logging.FieldImpact, "in-flight items resume from the store on next start"),
			logging.String(logging.FieldErrorHint, "raise queue.shutdown_grace_seconds if classification is slow"),
		)
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}

	var leftovers Leftovers
	for _, task := range c.registration.Drain() {
		leftovers.Paths = append(leftovers.Paths, task.Path)
	}
	for _, task := range c.classification.Drain() {
		leftovers.Fingerprints = append(leftovers.Fingerprints, task.Fingerprint)
		c.locks.Release(task.Fingerprint)
	}
	if !leftovers.Empty() {
		c.logger.Info(
			"coordinator spilled queued work",
			logging.Int("paths", len(leftovers.Paths)),
			logging.Int("fingerprints", len(leftovers.Fingerprints)),
		)
		if c.handlers.Spill != nil {
			c.handlers.Spill(context.Background(), leftovers)
		}
	}
	c.logger.Info("coordinator stopped")
	return leftovers
}

func (c *Coordinator) registrationWorker(ctx context.Context, id int) {
	for {
		task, err := c.registration.Pop(ctx)
		if err != nil {
			return
		}
		fp, err := c.register(ctx, task)
		if err != nil {
			if !services.IsContextError(err) {
				logging.WarnWithContext(c.logger, "registration failed", "registration_failed",
					logging.Int("worker", id),
					logging.String("path", task.Path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "path is picked up again by the next reconcile scan"),
				)
			}
			continue
		}
		if fp == "" {
			continue
		}
		if _, err := c.SubmitFingerprint(ctx, fp, task.Priority); err != nil && !errors.Is(err, ErrClosed) {
			c.logger.Debug("classification submit abandoned",
				logging.String("fingerprint", fp),
				logging.Error(err),
			)
		}
	}
}

func (c *Coordinator) register(ctx context.Context, task Task) (fp string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register handler panic: %v", r)
		}
	}()
	if c.handlers.Register == nil {
		return "", nil
	}
	return c.handlers.Register(services.WithLane(ctx, task.Priority.String()), task)
}

func (c *Coordinator) classificationWorker(ctx context.Context, id int) {
	for {
		first, err := c.classification.Pop(ctx)
		if err != nil {
			return
		}
		batch := []Task{first}
		for len(batch) < c.opts.BatchSize {
			task, ok := c.classification.TryPop()
			if !ok {
				break
			}
			batch = append(batch, task)
		}
		c.classify(ctx, id, batch)
		for _, task := range batch {
			c.locks.Release(task.Fingerprint)
		}
	}
}

func (c *Coordinator) classify(ctx context.Context, id int, batch []Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(c.logger, "classification handler panic", "classification_panic",
				logging.Int("worker", id),
				logging.Int("batch_size", len(batch)),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	if c.handlers.Classify == nil {
		return
	}
	c.handlers.Classify(services.WithLane(ctx, batch[0].Priority.String()), batch)
}
