// Package categories owns the set of known library categories.
//
// Category names are compared case-insensitively through a Unicode fold key,
// so "SHOW NAME" and "Show Name" resolve to one canonical spelling: the first
// one registered. The registry is an injected service shared by the
// classification engine, the organizer and confirmation.
package categories

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"shelver/internal/queue"
	"shelver/internal/textutil"
)

// Case modes accepted by organizer.category_case.
const (
	CasePreserve = "preserve"
	CaseTitle    = "title"
	CaseUpper    = "upper"
	CaseLower    = "lower"
)

// ErrInvalidName indicates a category name is empty after normalization.
var ErrInvalidName = errors.New("invalid category name")

// Category is a registered library category.
type Category struct {
	Name string
	queue.Audit
}

// Registry is a concurrency-safe set of categories keyed by fold key.
type Registry struct {
	mu       sync.RWMutex
	caseMode string
	byKey    map[string]Category
}

// New creates an empty registry applying caseMode to normalized names.
func New(caseMode string) *Registry {
	if caseMode == "" {
		caseMode = CasePreserve
	}
	return &Registry{caseMode: caseMode, byKey: make(map[string]Category)}
}

// Normalize strips characters that cannot appear in a directory name,
// collapses whitespace and applies the configured case.
func (r *Registry) Normalize(name string) string {
	cleaned := textutil.SanitizePathSegment(name)
	if cleaned == "" {
		return ""
	}
	// Casers carry state and are not safe for concurrent use.
	switch r.caseMode {
	case CaseTitle:
		return cases.Title(language.Und).String(cleaned)
	case CaseUpper:
		return cases.Upper(language.Und).String(cleaned)
	case CaseLower:
		return cases.Lower(language.Und).String(cleaned)
	default:
		return cleaned
	}
}

// Resolve returns the canonical spelling of an already registered category,
// or the normalized input when it is unknown.
func (r *Registry) Resolve(name string) string {
	normalized := r.Normalize(name)
	if normalized == "" {
		return ""
	}
	r.mu.RLock()
	existing, ok := r.byKey[foldKey(normalized)]
	r.mu.RUnlock()
	if ok {
		return existing.Name
	}
	return normalized
}

// Register adds a category when unknown and returns its canonical entry.
func (r *Registry) Register(name string) (Category, error) {
	normalized := r.Normalize(name)
	if normalized == "" {
		return Category{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	key := foldKey(normalized)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byKey[key]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	category := Category{
		Name:  normalized,
		Audit: queue.Audit{CreatedAt: now, UpdatedAt: now, Active: true},
	}
	r.byKey[key] = category
	return category, nil
}

// Seed registers every valid name, skipping empty ones.
func (r *Registry) Seed(names ...string) {
	for _, name := range names {
		_, _ = r.Register(name)
	}
}

// Lookup returns the registered category matching name.
func (r *Registry) Lookup(name string) (Category, bool) {
	normalized := r.Normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	category, ok := r.byKey[foldKey(normalized)]
	return category, ok
}

// Names returns the canonical names sorted case-insensitively.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byKey))
	for _, category := range r.byKey {
		names = append(names, category.Name)
	}
	r.mu.RUnlock()
	sort.Slice(names, func(i, j int) bool {
		return foldKey(names[i]) < foldKey(names[j])
	})
	return names
}

// Len returns the number of registered categories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

func foldKey(name string) string {
	return cases.Fold().String(name)
}
