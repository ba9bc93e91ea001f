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

// GetByFingerprint fetches a tracked item. It returns nil, nil when the
// fingerprint is unknown.
func (s *Store) GetByFingerprint(ctx context.Context, fingerprint string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM tracked_items WHERE fingerprint = ?`, fingerprint)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindByPrefix resolves a unique fingerprint prefix to its item.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) (*Item, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, fmt.Errorf("%w: empty fingerprint", ErrNotFound)
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM tracked_items WHERE substr(fingerprint, 1, ?) = ? LIMIT 2`,
		len(prefix),
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("find by prefix: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("find by prefix: %w", err)
	}
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return items[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousPrefix, prefix)
	}
}

// Upsert writes the full item, inserting it when the fingerprint is new.
// It does not check lifecycle edges; use Transition for status changes.
func (s *Store) Upsert(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	if strings.TrimSpace(item.Fingerprint) == "" {
		return errors.New("item fingerprint is required")
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.Active = !item.Status.IsTerminal()
	args, err := itemArgs(item)
	if err != nil {
		return err
	}
	if err := s.execWithoutResultRetry(ctx, upsertItemSQL, args...); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// QueryByStatus returns items matching any of the statuses ordered by
// creation time. With no statuses it returns every item.
func (s *Store) QueryByStatus(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM tracked_items`
	orderClause := ` ORDER BY created_at, fingerprint`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	return items, nil
}

// List returns items filtered by status set (or all items when no status is
// provided), most recently updated first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM tracked_items`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	query += ` ORDER BY updated_at DESC, fingerprint`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ActiveByPath returns the non-terminal item whose source is path, or nil.
func (s *Store) ActiveByPath(ctx context.Context, path string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM tracked_items WHERE source_path = ? AND active = 1 ORDER BY created_at DESC LIMIT 1`,
		path,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active by path: %w", err)
	}
	return item, nil
}

// Register records a fingerprinted candidate. It returns the existing item
// with created=false when the fingerprint is already tracked; the recorded
// source path is refreshed only when the old source no longer exists.
func (s *Store) Register(ctx context.Context, cand Candidate) (*Item, bool, error) {
	if strings.TrimSpace(cand.Fingerprint) == "" {
		return nil, false, errors.New("candidate fingerprint is required")
	}
	var (
		result  *Item
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, created = nil, false
		row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM tracked_items WHERE fingerprint = ?`, cand.Fingerprint)
		existing, err := scanItem(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		now := time.Now().UTC()
		if existing != nil {
			result = existing
			if existing.SourcePath == cand.SourcePath || existing.Status.IsTerminal() || sourceExists(existing.SourcePath) {
				return nil
			}
			existing.SourcePath = cand.SourcePath
			existing.UpdatedAt = now
			_, err := tx.ExecContext(ctx,
				`UPDATE tracked_items SET source_path = ?, updated_at = ? WHERE fingerprint = ?`,
				cand.SourcePath, formatTime(now), cand.Fingerprint,
			)
			return err
		}
		item := &Item{
			Fingerprint: cand.Fingerprint,
			SourcePath:  cand.SourcePath,
			DisplayName: cand.DisplayName,
			SizeBytes:   cand.SizeBytes,
			Season:      cand.Season,
			Episode:     cand.Episode,
			Year:        cand.Year,
			Status:      StatusNew,
			Audit:       Audit{CreatedAt: now, UpdatedAt: now, Active: true},
		}
		args, err := itemArgs(item)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertItemSQL, args...); err != nil {
			return err
		}
		result, created = item, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("register %s: %w", cand.Fingerprint, err)
	}
	return result, created, nil
}

// Categories returns the distinct category names recorded on items.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM tracked_items WHERE category IS NOT NULL AND category != '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func sourceExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
