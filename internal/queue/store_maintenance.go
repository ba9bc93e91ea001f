package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tracked_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates item state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusNew, StatusProcessing, StatusMoving, StatusReadyToMove:
			health.InFlight += count
		case StatusClassified, StatusRetry:
			health.Waiting += count
		case StatusError:
			health.Failed += count
		case StatusMoved:
			health.Moved += count
		case StatusIgnored:
			health.Ignored += count
		}
	}
	return health, nil
}

// SavePendingPaths persists discovered paths that were not yet fingerprinted
// when the daemon stopped.
func (s *Store) SavePendingPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	now := formatTime(time.Now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, path := range paths {
			if strings.TrimSpace(path) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO pending_paths (path, saved_at) VALUES (?, ?)
                 ON CONFLICT(path) DO UPDATE SET saved_at = excluded.saved_at`,
				path, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pending paths: %w", err)
	}
	return nil
}

// TakePendingPaths returns and removes every saved path in save order.
func (s *Store) TakePendingPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		paths = paths[:0]
		rows, err := tx.QueryContext(ctx, `SELECT path FROM pending_paths ORDER BY saved_at, path`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				rows.Close()
				return err
			}
			paths = append(paths, path)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		_, err = tx.ExecContext(ctx, `DELETE FROM pending_paths`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("take pending paths: %w", err)
	}
	return paths, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	columns, err := s.tableColumns(connCtx, "tracked_items")
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.TableExists = len(columns) > 0
	if health.TableExists {
		for _, col := range strings.Split(itemColumns, ",") {
			col = strings.TrimSpace(col)
			if _, ok := columns[col]; !ok {
				health.MissingColumns = append(health.MissingColumns, col)
			}
		}
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM tracked_items")
		if err := row.Scan(&health.TotalItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count tracked items: %w", err)
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()
	columns := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	return columns, rows.Err()
}
