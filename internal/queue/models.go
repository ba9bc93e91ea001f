package queue

import (
	"strings"
	"time"

	"shelver/internal/services"
)

// Status represents the lifecycle of a tracked item.
type Status string

const (
	StatusNew         Status = "new"
	StatusProcessing  Status = "processing"
	StatusClassified  Status = "classified"
	StatusReadyToMove Status = "ready_to_move"
	StatusMoving      Status = "moving"
	StatusMoved       Status = "moved"
	StatusError       Status = "error"
	StatusRetry       Status = "retry"
	StatusIgnored     Status = "ignored"
)

var allStatuses = []Status{
	StatusNew,
	StatusProcessing,
	StatusClassified,
	StatusReadyToMove,
	StatusMoving,
	StatusMoved,
	StatusError,
	StatusRetry,
	StatusIgnored,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions lists the allowed automatic edges. Operator reset to new is
// handled separately by Store.Reset.
var transitions = map[Status][]Status{
	StatusNew:         {StatusProcessing, StatusIgnored},
	StatusProcessing:  {StatusClassified, StatusError, StatusIgnored},
	StatusClassified:  {StatusReadyToMove, StatusError, StatusIgnored},
	StatusReadyToMove: {StatusMoving, StatusError, StatusIgnored},
	StatusMoving:      {StatusMoved, StatusError},
	StatusError:       {StatusRetry, StatusIgnored},
	StatusRetry:       {StatusProcessing, StatusIgnored},
}

// CanTransition reports whether the lifecycle permits moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition occurs from status.
func (s Status) IsTerminal() bool {
	return s == StatusMoved || s == StatusIgnored
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Decision is the classification outcome that selects the confirmation path.
type Decision string

const (
	DecisionNone    Decision = ""
	DecisionAuto    Decision = "auto"
	DecisionSuggest Decision = "suggest"
	DecisionManual  Decision = "manual"
)

// Audit carries the bookkeeping fields shared by persisted entities.
type Audit struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Active    bool
}

// Alternative is a lower-ranked category candidate.
type Alternative struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Item is the tracked item persisted in SQLite, one per content fingerprint.
type Item struct {
	Fingerprint string
	SourcePath  string
	DisplayName string
	SizeBytes   int64

	// Structural markers parsed from the display name; zero means absent.
	Season  int
	Episode int
	Year    int

	Status       Status
	Decision     Decision
	Confirmed    bool
	Category     string
	Confidence   float64
	Alternatives []Alternative

	TargetPath    string
	ErrorKind     services.ErrorKind
	ErrorDetail   string
	RetryCount    int
	NextAttemptAt *time.Time
	ClassifiedAt  *time.Time
	MovedAt       *time.Time

	Audit
}

// ShortFingerprint returns the abbreviated fingerprint used in logs and tables.
func (i Item) ShortFingerprint() string {
	if len(i.Fingerprint) <= 12 {
		return i.Fingerprint
	}
	return i.Fingerprint[:12]
}

// HasEpisode reports whether season and episode markers are both known.
func (i Item) HasEpisode() bool {
	return i.Season > 0 && i.Episode > 0
}

// SetError records a failure on the item without changing its status.
func (i *Item) SetError(kind services.ErrorKind, detail string) {
	i.ErrorKind = kind
	i.ErrorDetail = detail
}

// ClearError removes failure details and any scheduled attempt.
func (i *Item) ClearError() {
	i.ErrorKind = ""
	i.ErrorDetail = ""
	i.NextAttemptAt = nil
}

// Candidate describes a fingerprinted file offered for registration.
type Candidate struct {
	Fingerprint string
	SourcePath  string
	DisplayName string
	SizeBytes   int64
	Season      int
	Episode     int
	Year        int
}

// HealthSummary describes aggregated counts per key lifecycle states.
type HealthSummary struct {
	Total    int
	InFlight int
	Waiting  int
	Failed   int
	Moved    int
	Ignored  int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}
