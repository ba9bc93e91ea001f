package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shelver/internal/config"
	"shelver/internal/services"
)

// Transition moves an item from one status to another as a compare-and-set.
// The change is rejected with ErrInvalidTransition when the edge is not in
// the lifecycle table or the stored status is no longer from. The optional
// mutate callback edits other fields inside the same transaction.
func (s *Store) Transition(ctx context.Context, fingerprint string, from, to Status, mutate func(*Item)) (*Item, error) {
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return s.rewrite(ctx, fingerprint, func(item *Item) error {
		if item.Status != from {
			return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, fingerprint, item.Status, from)
		}
		if mutate != nil {
			mutate(item)
		}
		item.Status = to
		return nil
	})
}

// rewrite loads, edits and stores one item inside a transaction.
func (s *Store) rewrite(ctx context.Context, fingerprint string, edit func(*Item) error) (*Item, error) {
	var result *Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM tracked_items WHERE fingerprint = ?`, fingerprint)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, fingerprint)
		}
		if err != nil {
			return err
		}
		if err := edit(item); err != nil {
			return err
		}
		item.Fingerprint = fingerprint
		item.UpdatedAt = time.Now().UTC()
		item.Active = !item.Status.IsTerminal()
		args, err := itemArgs(item)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertItemSQL, args...); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reset returns an item to new regardless of its current status, clearing
// classification and failure state. A moved item is re-homed to its library
// path so it can be organized again.
func (s *Store) Reset(ctx context.Context, fingerprint string) (*Item, error) {
	return s.rewrite(ctx, fingerprint, func(item *Item) error {
		if item.Status == StatusMoving {
			return fmt.Errorf("%w: %s has a move in flight", ErrInvalidTransition, fingerprint)
		}
		if item.Status == StatusMoved && item.TargetPath != "" {
			item.SourcePath = item.TargetPath
		}
		item.Status = StatusNew
		item.Decision = DecisionNone
		item.Confirmed = false
		item.Category = ""
		item.Confidence = 0
		item.Alternatives = nil
		item.TargetPath = ""
		item.RetryCount = 0
		item.ClassifiedAt = nil
		item.MovedAt = nil
		item.ClearError()
		return nil
	})
}

// Ignore moves any non-terminal item to ignored. Items with a move in
// flight cannot be ignored.
func (s *Store) Ignore(ctx context.Context, fingerprint string) (*Item, error) {
	return s.rewrite(ctx, fingerprint, func(item *Item) error {
		if !CanTransition(item.Status, StatusIgnored) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, StatusIgnored)
		}
		item.Status = StatusIgnored
		item.NextAttemptAt = nil
		return nil
	})
}

// RetryFailed moves error items to retry with a fresh retry budget, due
// immediately. With no fingerprints every error item is retried.
func (s *Store) RetryFailed(ctx context.Context, fingerprints ...string) (int64, error) {
	now := formatTime(time.Now())
	query := `UPDATE tracked_items
        SET status = ?, retry_count = 0, next_attempt_at = ?, updated_at = ?
        WHERE status = ?`
	args := []any{StatusRetry, now, now, StatusError}
	if len(fingerprints) > 0 {
		query += ` AND fingerprint IN (` + makePlaceholders(len(fingerprints)) + `)`
		for _, fp := range fingerprints {
			args = append(args, fp)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return res.RowsAffected()
}

// DueForRetry returns error and retry items whose scheduled attempt has
// elapsed at now. Terminal errors have no scheduled attempt and are skipped.
func (s *Store) DueForRetry(ctx context.Context, now time.Time) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM tracked_items
         WHERE status IN (?, ?) AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?
         ORDER BY next_attempt_at, fingerprint`,
		StatusError,
		StatusRetry,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("due retry items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("due retry items: %w", err)
	}
	return items, nil
}

// DueProcessing returns processing items that are not waiting on a
// classifier backoff at now.
func (s *Store) DueProcessing(ctx context.Context, now time.Time) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM tracked_items
         WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY created_at, fingerprint`,
		StatusProcessing,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("due processing items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("due processing items: %w", err)
	}
	return items, nil
}

// Postpone schedules the next attempt of an item without changing its
// status or consuming a retry. It is used when a dependency such as the
// classifier is temporarily unavailable.
func (s *Store) Postpone(ctx context.Context, fingerprint string, status Status, until time.Time, kind services.ErrorKind, detail string) (*Item, error) {
	until = until.UTC()
	return s.rewrite(ctx, fingerprint, func(item *Item) error {
		if item.Status != status {
			return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, fingerprint, item.Status, status)
		}
		item.SetError(kind, detail)
		item.NextAttemptAt = &until
		return nil
	})
}

// RetryPolicy bounds automatic re-attempts of retryable failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    func(attempt int) time.Duration
}

// RetryPolicyFromConfig builds the policy from the retry section.
func RetryPolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{MaxRetries: cfg.Retry.MaxRetries, Backoff: cfg.RetryBackoff}
}

// Fail moves an item from one status to error and records the failure. A
// retryable kind consumes one retry; while the budget lasts the next attempt
// is scheduled after the policy backoff, otherwise the error is terminal.
func (s *Store) Fail(ctx context.Context, fingerprint string, from Status, kind services.ErrorKind, detail string, policy RetryPolicy) (*Item, error) {
	now := time.Now().UTC()
	return s.Transition(ctx, fingerprint, from, StatusError, func(item *Item) {
		item.SetError(kind, detail)
		item.NextAttemptAt = nil
		if !services.Retryable(kind) {
			return
		}
		item.RetryCount++
		if item.RetryCount > policy.MaxRetries {
			return
		}
		var delay time.Duration
		if policy.Backoff != nil {
			delay = policy.Backoff(item.RetryCount)
		}
		next := now.Add(delay)
		item.NextAttemptAt = &next
	})
}

// ResetInFlight clears scheduled attempts on processing items after a
// restart so the dispatcher picks them up immediately. Moving items are left
// for move recovery.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracked_items SET next_attempt_at = NULL, updated_at = ? WHERE status = ?`,
		formatTime(time.Now()),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight items: %w", err)
	}
	return res.RowsAffected()
}
