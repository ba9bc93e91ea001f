package workflow

import (
	"context"

	"shelver/internal/coordinator"
	"shelver/internal/logging"
	"shelver/internal/queue"
	"shelver/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running       bool
	LastError     string
	LastItem      *queue.Item
	Depths        coordinator.Depths
	OrganizeDepth int
	QueueStats    map[queue.Status]int
	StageHealth   map[string]stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastItem := m.lastItem
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	summary := StatusSummary{
		Running:       running,
		Depths:        m.coord.Depths(),
		OrganizeDepth: m.organize.Len(),
		QueueStats:    stats,
		StageHealth:   m.health(ctx),
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastItem != nil {
		copy := *lastItem
		summary.LastItem = &copy
	}
	return summary
}

func (m *Manager) checkers() []stage.Checker {
	var checkers []stage.Checker
	if m.classifier != nil {
		checkers = append(checkers, m.classifier)
	}
	if m.mover != nil {
		checkers = append(checkers, m.mover)
	}
	return checkers
}

func (m *Manager) health(ctx context.Context) map[string]stage.Health {
	checkers := m.checkers()
	health := make(map[string]stage.Health, len(checkers))
	for _, checker := range checkers {
		h := checker.HealthCheck(ctx)
		health[h.Name] = h
	}
	return health
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *queue.Item) {
	m.mu.Lock()
	if item != nil {
		copy := *item
		m.lastItem = &copy
	} else {
		m.lastItem = nil
	}
	m.mu.Unlock()
}
