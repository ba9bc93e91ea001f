package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	pollInterval  = 250 * time.Millisecond
	maxLineLength = 1024 * 1024
)

// Matcher selects which log lines are returned. A nil Matcher keeps all.
type Matcher func(line string) bool

// TailOptions controls a single Tail call. A negative Offset reads the last
// Limit lines; otherwise reading resumes at Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Match  Matcher
}

// TailResult holds the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log at path. A missing file yields no lines.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	opts.Wait = max(opts.Wait, 0)

	if opts.Offset < 0 {
		lines, offset, err := readLast(path, opts.Limit, opts.Match)
		if err != nil {
			return result, err
		}
		result = TailResult{Lines: lines, Offset: offset}
	} else {
		start := opts.Offset
		if start > info.Size() {
			// Truncated or rotated; start over at the new end.
			start = info.Size()
		}
		lines, offset, err := readFrom(path, start, opts.Match)
		if err != nil {
			return result, err
		}
		result = TailResult{Lines: lines, Offset: offset}
	}

	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return follow(ctx, path, result.Offset, opts.Wait, opts.Match)
	}
	return result, nil
}

// readLast keeps the final limit matching lines in a ring buffer.
func readLast(path string, limit int, match Matcher) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	end, err := scan(file, match, func(line string) {
		ring[next] = line
		next = (next + 1) % limit
		count = min(count+1, limit)
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := range count {
		lines[i] = ring[(start+i)%limit]
	}
	return lines, end, nil
}

func readFrom(path string, offset int64, match Matcher) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	end, err := scan(file, match, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, 0, err
	}
	return lines, end, nil
}

// scan feeds matching lines to keep and returns the offset after the last
// byte read.
func scan(file *os.File, match Matcher, keep func(string)) (int64, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		line := scanner.Text()
		if match == nil || match(line) {
			keep(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	return end, nil
}

func follow(ctx context.Context, path string, offset int64, wait time.Duration, match Matcher) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, next, err := readFrom(path, result.Offset, match)
		if err != nil {
			return result, err
		}
		result.Offset = next
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}

// MatchAll combines matchers; every one must accept the line.
func MatchAll(matchers ...Matcher) Matcher {
	active := make([]Matcher, 0, len(matchers))
	for _, m := range matchers {
		if m != nil {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(line string) bool {
		for _, m := range active {
			if !m(line) {
				return false
			}
		}
		return true
	}
}

// MatchFingerprint keeps lines mentioning the fingerprint prefix.
func MatchFingerprint(prefix string) Matcher {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil
	}
	return func(line string) bool {
		return strings.Contains(line, prefix)
	}
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// MatchMinLevel keeps lines at or above level. It understands both the
// console format and the JSON "level" field; lines with no level are kept.
func MatchMinLevel(level string) Matcher {
	want, ok := levelRank[strings.ToUpper(strings.TrimSpace(level))]
	if !ok || want == 0 {
		return nil
	}
	return func(line string) bool {
		got, found := lineLevel(line)
		return !found || got >= want
	}
}

func lineLevel(line string) (int, bool) {
	best, at := -1, -1
	for name, rank := range levelRank {
		for _, token := range []string{" " + name + " ", `"level":"` + name + `"`} {
			if idx := strings.Index(line, token); idx >= 0 && (at < 0 || idx < at) {
				best, at = rank, idx
			}
		}
	}
	return best, at >= 0
}
