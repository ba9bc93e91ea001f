package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shelver/internal/services"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const itemColumns = "fingerprint, source_path, display_name, size_bytes, season, episode, year, status, decision, confirmed, category, confidence, alternatives_json, target_path, error_kind, error_detail, retry_count, next_attempt_at, classified_at, moved_at, active, created_at, updated_at"

const upsertItemSQL = `INSERT INTO tracked_items (` + itemColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(fingerprint) DO UPDATE SET
    source_path = excluded.source_path,
    display_name = excluded.display_name,
    size_bytes = excluded.size_bytes,
    season = excluded.season,
    episode = excluded.episode,
    year = excluded.year,
    status = excluded.status,
    decision = excluded.decision,
    confirmed = excluded.confirmed,
    category = excluded.category,
    confidence = excluded.confidence,
    alternatives_json = excluded.alternatives_json,
    target_path = excluded.target_path,
    error_kind = excluded.error_kind,
    error_detail = excluded.error_detail,
    retry_count = excluded.retry_count,
    next_attempt_at = excluded.next_attempt_at,
    classified_at = excluded.classified_at,
    moved_at = excluded.moved_at,
    active = excluded.active,
    updated_at = excluded.updated_at`

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item           Item
		statusStr      string
		decision       sql.NullString
		confirmed      int64
		category       sql.NullString
		alternatives   sql.NullString
		targetPath     sql.NullString
		errorKind      sql.NullString
		errorDetail    sql.NullString
		nextAttemptRaw sql.NullString
		classifiedRaw  sql.NullString
		movedRaw       sql.NullString
		active         int64
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&item.Fingerprint,
		&item.SourcePath,
		&item.DisplayName,
		&item.SizeBytes,
		&item.Season,
		&item.Episode,
		&item.Year,
		&statusStr,
		&decision,
		&confirmed,
		&category,
		&item.Confidence,
		&alternatives,
		&targetPath,
		&errorKind,
		&errorDetail,
		&item.RetryCount,
		&nextAttemptRaw,
		&classifiedRaw,
		&movedRaw,
		&active,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item.Status = Status(statusStr)
	item.Decision = Decision(decision.String)
	item.Confirmed = confirmed != 0
	item.Category = category.String
	item.TargetPath = targetPath.String
	item.ErrorKind = services.ErrorKind(errorKind.String)
	item.ErrorDetail = errorDetail.String
	item.Active = active != 0
	if alternatives.Valid && alternatives.String != "" {
		if err := json.Unmarshal([]byte(alternatives.String), &item.Alternatives); err != nil {
			return nil, fmt.Errorf("decode alternatives for %s: %w", item.Fingerprint, err)
		}
	}
	item.NextAttemptAt = parseOptionalTime(nextAttemptRaw)
	item.ClassifiedAt = parseOptionalTime(classifiedRaw)
	item.MovedAt = parseOptionalTime(movedRaw)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return &item, nil
}

// itemArgs returns the column values in itemColumns order.
func itemArgs(item *Item) ([]any, error) {
	var alternatives any
	if len(item.Alternatives) > 0 {
		data, err := json.Marshal(item.Alternatives)
		if err != nil {
			return nil, fmt.Errorf("encode alternatives: %w", err)
		}
		alternatives = string(data)
	}
	return []any{
		item.Fingerprint,
		item.SourcePath,
		item.DisplayName,
		item.SizeBytes,
		item.Season,
		item.Episode,
		item.Year,
		item.Status,
		nullableString(string(item.Decision)),
		boolToInt(item.Confirmed),
		nullableString(item.Category),
		item.Confidence,
		alternatives,
		nullableString(item.TargetPath),
		nullableString(string(item.ErrorKind)),
		nullableString(item.ErrorDetail),
		item.RetryCount,
		nullableTime(item.NextAttemptAt),
		nullableTime(item.ClassifiedAt),
		nullableTime(item.MovedAt),
		boolToInt(item.Active),
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	}, nil
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseOptionalTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
