package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shelver/internal/queue"
	"shelver/internal/txlog"
)

const displayTimeLayout = "2006-01-02 15:04:05"

func buildQueueListRows(items []*queue.Item, colorize bool) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ShortFingerprint(),
			truncate(item.DisplayName, 40),
			colorStatus(item.Status, colorize),
			dashIfEmpty(item.Category),
			formatConfidence(item),
			dashIfEmpty(string(item.Decision)),
			formatTime(item.UpdatedAt),
		})
	}
	return rows
}

func buildHistoryRows(entries []txlog.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		tx := entry.TxID
		if len(tx) > 8 {
			tx = tx[:8]
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.Seq, 10),
			tx,
			string(entry.Phase),
			formatTime(entry.Timestamp),
			entry.ToPath,
		})
	}
	return rows
}

func renderItemDetail(item *queue.Item) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%-14s %s\n", label+":", value)
	}

	line("Fingerprint", item.Fingerprint)
	line("Name", item.DisplayName)
	line("Source", item.SourcePath)
	line("Size", strconv.FormatInt(item.SizeBytes, 10)+" bytes")
	if item.HasEpisode() {
		line("Episode", fmt.Sprintf("S%02dE%02d", item.Season, item.Episode))
	}
	if item.Year > 0 {
		line("Year", strconv.Itoa(item.Year))
	}
	line("Status", string(item.Status))
	line("Decision", dashIfEmpty(string(item.Decision)))
	line("Confirmed", yesNo(item.Confirmed))
	line("Category", dashIfEmpty(item.Category))
	line("Confidence", formatConfidence(item))
	if len(item.Alternatives) > 0 {
		alts := make([]string, 0, len(item.Alternatives))
		for _, alt := range item.Alternatives {
			alts = append(alts, fmt.Sprintf("%s (%.2f)", alt.Category, alt.Confidence))
		}
		line("Alternatives", strings.Join(alts, ", "))
	}
	if item.TargetPath != "" {
		line("Target", item.TargetPath)
	}
	if item.ErrorKind != "" || item.ErrorDetail != "" {
		line("Error", fmt.Sprintf("%s: %s", item.ErrorKind, item.ErrorDetail))
	}
	line("Retries", strconv.Itoa(item.RetryCount))
	if item.NextAttemptAt != nil {
		line("Next attempt", formatTime(*item.NextAttemptAt))
	}
	if item.ClassifiedAt != nil {
		line("Classified", formatTime(*item.ClassifiedAt))
	}
	if item.MovedAt != nil {
		line("Moved", formatTime(*item.MovedAt))
	}
	line("Created", formatTime(item.CreatedAt))
	line("Updated", formatTime(item.UpdatedAt))
	return b.String()
}

func formatConfidence(item *queue.Item) string {
	if item.Category == "" && item.Confidence == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", item.Confidence)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(displayTimeLayout)
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
