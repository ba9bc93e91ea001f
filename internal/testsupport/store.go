package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"shelver/internal/config"
	"shelver/internal/fingerprint"
	"shelver/internal/queue"
	"shelver/internal/textutil"
	"shelver/internal/txlog"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenJournal opens a txlog.Journal for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *txlog.Journal {
	t.Helper()

	journal, err := txlog.Open(cfg)
	if err != nil {
		t.Fatalf("txlog.Open: %v", err)
	}
	t.Cleanup(func() {
		journal.Close()
	})
	return journal
}

// RegisterFile fingerprints path and registers it with the store.
func RegisterFile(t testing.TB, store *queue.Store, path string) *queue.Item {
	t.Helper()

	ctx := context.Background()
	digest, err := fingerprint.File(ctx, path)
	if err != nil {
		t.Fatalf("fingerprint %s: %v", path, err)
	}
	name := filepath.Base(path)
	markers := textutil.ParseMarkers(name)
	item, _, err := store.Register(ctx, queue.Candidate{
		Fingerprint: digest.Hex,
		SourcePath:  path,
		DisplayName: name,
		SizeBytes:   digest.Size,
		Season:      markers.Season,
		Episode:     markers.Episode,
		Year:        markers.Year,
	})
	if err != nil {
		t.Fatalf("store.Register: %v", err)
	}
	return item
}

// Advance walks an item through the given statuses using Transition.
func Advance(t testing.TB, store *queue.Store, fp string, statuses ...queue.Status) *queue.Item {
	t.Helper()

	ctx := context.Background()
	item, err := store.GetByFingerprint(ctx, fp)
	if err != nil || item == nil {
		t.Fatalf("GetByFingerprint(%s): %v", fp, err)
	}
	for _, next := range statuses {
		item, err = store.Transition(ctx, fp, item.Status, next, nil)
		if err != nil {
			t.Fatalf("Transition to %s: %v", next, err)
		}
	}
	return item
}
