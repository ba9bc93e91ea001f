package txlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"shelver/internal/config"
)

// Phase is one step of a move transaction.
type Phase string

const (
	PhaseBegun         Phase = "begun"
	PhaseCopied        Phase = "copied"
	PhaseVerified      Phase = "verified"
	PhaseSourceRemoved Phase = "source-removed"
	PhaseCommitted     Phase = "committed"
	PhaseAborted       Phase = "aborted"
)

var phaseRank = map[Phase]int{
	PhaseBegun:         1,
	PhaseCopied:        2,
	PhaseVerified:      3,
	PhaseSourceRemoved: 4,
	PhaseCommitted:     5,
}

// AtLeast reports whether p is at or beyond other in the forward sequence.
// Aborted is outside the sequence and never compares as reached.
func (p Phase) AtLeast(other Phase) bool {
	rank, ok := phaseRank[p]
	if !ok {
		return false
	}
	return rank >= phaseRank[other]
}

// Final reports whether no further rows will be appended for the transaction.
func (p Phase) Final() bool {
	return p == PhaseCommitted || p == PhaseAborted
}

// Entry is one journal row.
type Entry struct {
	Seq         int64
	TxID        string
	Fingerprint string
	FromPath    string
	ToPath      string
	TempPath    string
	Phase       Phase
	Timestamp   time.Time
}

// ErrUnknownTx indicates Append referenced a transaction without a begun row.
var ErrUnknownTx = errors.New("unknown move transaction")

const journalSchema = `
CREATE TABLE IF NOT EXISTS move_journal (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    tx_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    from_path TEXT NOT NULL,
    to_path TEXT NOT NULL,
    temp_path TEXT,
    phase TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_move_journal_tx ON move_journal(tx_id, seq);
CREATE INDEX IF NOT EXISTS idx_move_journal_fingerprint ON move_journal(fingerprint, seq);
`

const entryColumns = "seq, tx_id, fingerprint, from_path, to_path, temp_path, phase, recorded_at"

// Journal is the append-only move transaction log.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the journal database under the state directory.
func Open(cfg *config.Config) (*Journal, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	path := cfg.JournalDBPath()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// NewTxID returns a fresh transaction id. Callers allocate it before Begin
// so temp file names can carry it.
func NewTxID() string {
	return uuid.NewString()
}

// Begin records the begun row of a move transaction.
func (j *Journal) Begin(ctx context.Context, txID, fingerprint, from, to, temp string) error {
	return j.insert(ctx, Entry{
		TxID:        txID,
		Fingerprint: fingerprint,
		FromPath:    from,
		ToPath:      to,
		TempPath:    temp,
		Phase:       PhaseBegun,
	})
}

// Append records that a transaction reached phase.
func (j *Journal) Append(ctx context.Context, txID string, phase Phase) error {
	last, err := j.latest(ctx, txID)
	if err != nil {
		return err
	}
	if last.Phase.Final() {
		return fmt.Errorf("append %s to %s: transaction already %s", phase, txID, last.Phase)
	}
	last.Phase = phase
	return j.insert(ctx, last)
}

// Latest returns the most recent row of a transaction.
func (j *Journal) Latest(ctx context.Context, txID string) (Entry, error) {
	return j.latest(ctx, txID)
}

// Pending returns the latest row of every transaction that is neither
// committed nor aborted, oldest first.
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM move_journal m
         WHERE seq = (SELECT MAX(seq) FROM move_journal WHERE tx_id = m.tx_id)
           AND phase NOT IN (?, ?)
         ORDER BY seq`,
		PhaseCommitted, PhaseAborted,
	)
	if err != nil {
		return nil, fmt.Errorf("pending transactions: %w", err)
	}
	return scanEntries(rows)
}

// History returns every row recorded for a fingerprint in append order.
func (j *Journal) History(ctx context.Context, fingerprint string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM move_journal WHERE fingerprint = ? ORDER BY seq`,
		fingerprint,
	)
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	return scanEntries(rows)
}

func (j *Journal) latest(ctx context.Context, txID string) (Entry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM move_journal WHERE tx_id = ? ORDER BY seq DESC LIMIT 1`,
		txID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownTx, txID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read transaction %s: %w", txID, err)
	}
	return entry, nil
}

func (j *Journal) insert(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.TxID) == "" {
		return errors.New("transaction id is required")
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO move_journal (tx_id, fingerprint, from_path, to_path, temp_path, phase, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.TxID,
		entry.Fingerprint,
		entry.FromPath,
		entry.ToPath,
		nullableString(entry.TempPath),
		entry.Phase,
		j.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal %s %s: %w", entry.TxID, entry.Phase, err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry    Entry
		temp     sql.NullString
		phase    string
		recorded string
	)
	if err := scanner.Scan(&entry.Seq, &entry.TxID, &entry.Fingerprint, &entry.FromPath, &entry.ToPath, &temp, &phase, &recorded); err != nil {
		return Entry{}, err
	}
	entry.TempPath = temp.String
	entry.Phase = Phase(phase)
	if ts, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
		entry.Timestamp = ts
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
