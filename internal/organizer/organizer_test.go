package organizer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shelver/internal/categories"
	"shelver/internal/config"
	"shelver/internal/logging"
	"shelver/internal/notifications"
	"shelver/internal/organizer"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/testsupport"
	"shelver/internal/txlog"
)

type capturedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingPublisher struct {
	events []capturedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) {
	p.events = append(p.events, capturedEvent{event: event, payload: payload})
}

func (p *recordingPublisher) has(event notifications.Event) bool {
	for _, e := range p.events {
		if e.event == event {
			return true
		}
	}
	return false
}

type fixture struct {
	cfg       *config.Config
	store     *queue.Store
	journal   *txlog.Journal
	registry  *categories.Registry
	publisher *recordingPublisher
	org       *organizer.Organizer
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	f := &fixture{
		cfg:       cfg,
		store:     testsupport.MustOpenStore(t, cfg),
		journal:   testsupport.MustOpenJournal(t, cfg),
		registry:  categories.New(cfg.Organizer.CategoryCase),
		publisher: &recordingPublisher{},
	}
	f.org = organizer.New(cfg, f.store, f.journal, f.registry, f.publisher, logging.NewNop())
	return f
}

// ready registers a file in the inbox and walks it to ready_to_move.
func (f *fixture) ready(t *testing.T, name, content, category string) *queue.Item {
	t.Helper()
	path := filepath.Join(testsupport.InboxDir(f.cfg), name)
	testsupport.WriteFile(t, path, content)
	item := testsupport.RegisterFile(t, f.store, path)
	testsupport.Advance(t, f.store, item.Fingerprint, queue.StatusProcessing)
	if _, err := f.store.Transition(context.Background(), item.Fingerprint, queue.StatusProcessing, queue.StatusClassified, func(it *queue.Item) {
		it.Category = category
		it.Confidence = 0.93
		it.Decision = queue.DecisionAuto
	}); err != nil {
		t.Fatalf("classify %s: %v", name, err)
	}
	return testsupport.Advance(t, f.store, item.Fingerprint, queue.StatusReadyToMove)
}

func (f *fixture) phases(t *testing.T, fp string) []txlog.Phase {
	t.Helper()
	history, err := f.journal.History(context.Background(), fp)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	phases := make([]txlog.Phase, 0, len(history))
	for _, entry := range history {
		phases = append(phases, entry.Phase)
	}
	return phases
}

func assertPhases(t *testing.T, got []txlog.Phase, want ...txlog.Phase) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("journal phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("journal phases = %v, want %v", got, want)
		}
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be absent, stat err=%v", path, err)
	}
}

func TestOrganizeMovesIntoCategoryDirectory(t *testing.T) {
	f := newFixture(t)
	item := f.ready(t, "Show.Name.S01E01.mkv", "episode one", "SHOW NAME")

	moved, err := f.org.Organize(context.Background(), item.Fingerprint)
	if err != nil {
		t.Fatalf("Organize failed: %v", err)
	}

	want := filepath.Join(f.cfg.Paths.LibraryDir, "SHOW NAME", "Show.Name.S01E01.mkv")
	if moved.Status != queue.StatusMoved || moved.TargetPath != want || moved.MovedAt == nil {
		t.Fatalf("unexpected moved item: %+v", moved)
	}
	if got := testsupport.ReadFile(t, want); got != "episode one" {
		t.Fatalf("target content = %q", got)
	}
	assertMissing(t, item.SourcePath)
	assertPhases(t, f.phases(t, item.Fingerprint), txlog.PhaseBegun, txlog.PhaseCommitted)
	if !f.publisher.has(notifications.EventMoved) {
		t.Fatal("expected moved event")
	}
	if moved.Active {
		t.Fatal("moved item should not be active")
	}
}

func TestOrganizeUsesCanonicalCategorySpelling(t *testing.T) {
	f := newFixture(t)
	if _, err := f.registry.Register("Show Name"); err != nil {
		t.Fatal(err)
	}
	item := f.ready(t, "Show.Name.S01E02.mkv", "episode two", "SHOW   NAME")

	moved, err := f.org.Organize(context.Background(), item.Fingerprint)
	if err != nil {
		t.Fatalf("Organize failed: %v", err)
	}
	want := filepath.Join(f.cfg.Paths.LibraryDir, "Show Name", "Show.Name.S01E02.mkv")
	if moved.TargetPath != want || moved.Category != "Show Name" {
		t.Fatalf("target=%q category=%q, want %q under Show Name", moved.TargetPath, moved.Category, want)
	}
}

func TestOrganizeEpisodeTemplate(t *testing.T) {
	f := newFixture(t, testsupport.WithEpisodeTemplate("{category}/Season {season}/{name}.{ext}"))
	item := f.ready(t, "Show.Name.S02E05.mkv", "episode", "Show Name")

	moved, err := f.org.Organize(context.Background(), item.Fingerprint)
	if err != nil {
		t.Fatalf("Organize failed: %v", err)
	}
	want := filepath.Join(f.cfg.Paths.LibraryDir, "Show Name", "Season 02", "Show.Name.S02E05.mkv")
	if moved.TargetPath != want {
		t.Fatalf("target = %q, want %q", moved.TargetPath, want)
	}
}

func TestOrganizeConflictPolicies(t *testing.T) {
	t.Run("skip", func(t *testing.T) {
		f := newFixture(t, testsupport.WithConflictPolicy(config.ConflictSkip))
		existing := filepath.Join(f.cfg.Paths.LibraryDir, "Docs", "report.pdf")
		testsupport.WriteFile(t, existing, "older report")
		item := f.ready(t, "report.pdf", "new report", "Docs")

		failed, err := f.org.Organize(context.Background(), item.Fingerprint)
		if err == nil {
			t.Fatal("expected move conflict")
		}
		if failed.Status != queue.StatusError || failed.ErrorKind != services.KindMoveConflict {
			t.Fatalf("unexpected failed item: %+v", failed)
		}
		if failed.NextAttemptAt != nil {
			t.Fatal("move conflicts should not schedule an automatic retry")
		}
		if got := testsupport.ReadFile(t, item.SourcePath); got != "new report" {
			t.Fatalf("source changed: %q", got)
		}
		if got := testsupport.ReadFile(t, existing); got != "older report" {
			t.Fatalf("existing target changed: %q", got)
		}
		if !f.publisher.has(notifications.EventFailed) {
			t.Fatal("expected failed event")
		}
	})

	t.Run("rename", func(t *testing.T) {
		f := newFixture(t, testsupport.WithConflictPolicy(config.ConflictRename))
		dir := filepath.Join(f.cfg.Paths.LibraryDir, "Docs")
		testsupport.WriteFile(t, filepath.Join(dir, "report.pdf"), "first")
		testsupport.WriteFile(t, filepath.Join(dir, "report-1.pdf"), "second")
		item := f.ready(t, "report.pdf", "third", "Docs")

		moved, err := f.org.Organize(context.Background(), item.Fingerprint)
		if err != nil {
			t.Fatalf("Organize failed: %v", err)
		}
		want := filepath.Join(dir, "report-2.pdf")
		if moved.TargetPath != want {
			t.Fatalf("target = %q, want %q", moved.TargetPath, want)
		}
		if got := testsupport.ReadFile(t, want); got != "third" {
			t.Fatalf("renamed target content = %q", got)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		f := newFixture(t, testsupport.WithConflictPolicy(config.ConflictOverwrite))
		existing := filepath.Join(f.cfg.Paths.LibraryDir, "Docs", "report.pdf")
		testsupport.WriteFile(t, existing, "stale")
		item := f.ready(t, "report.pdf", "fresh", "Docs")

		moved, err := f.org.Organize(context.Background(), item.Fingerprint)
		if err != nil {
			t.Fatalf("Organize failed: %v", err)
		}
		if moved.TargetPath != existing {
			t.Fatalf("target = %q, want %q", moved.TargetPath, existing)
		}
		if got := testsupport.ReadFile(t, existing); got != "fresh" {
			t.Fatalf("target not replaced: %q", got)
		}
	})
}

func TestOrganizeReconcilesIdenticalTarget(t *testing.T) {
	f := newFixture(t, testsupport.WithConflictPolicy(config.ConflictSkip))
	existing := filepath.Join(f.cfg.Paths.LibraryDir, "Photos", "beach.jpg")
	testsupport.WriteFile(t, existing, "same bytes")
	item := f.ready(t, "beach.jpg", "same bytes", "Photos")

	moved, err := f.org.Organize(context.Background(), item.Fingerprint)
	if err != nil {
		t.Fatalf("Organize failed: %v", err)
	}
	if moved.Status != queue.StatusMoved || moved.TargetPath != existing {
		t.Fatalf("unexpected item: %+v", moved)
	}
	assertMissing(t, item.SourcePath)
	assertPhases(t, f.phases(t, item.Fingerprint), txlog.PhaseBegun, txlog.PhaseCommitted)
}

func TestOrganizeCrossDeviceCopy(t *testing.T) {
	f := newFixture(t)
	organizer.ForceCrossDevice(f.org)

	path := filepath.Join(testsupport.InboxDir(f.cfg), "archive.bin")
	testsupport.WriteSizedFile(t, path, 3<<20+17, 7)
	item := testsupport.RegisterFile(t, f.store, path)
	testsupport.Advance(t, f.store, item.Fingerprint, queue.StatusProcessing)
	if _, err := f.store.Transition(context.Background(), item.Fingerprint, queue.StatusProcessing, queue.StatusClassified, func(it *queue.Item) {
		it.Category = "Archives"
	}); err != nil {
		t.Fatal(err)
	}
	testsupport.Advance(t, f.store, item.Fingerprint, queue.StatusReadyToMove)

	moved, err := f.org.Organize(context.Background(), item.Fingerprint)
	if err != nil {
		t.Fatalf("Organize failed: %v", err)
	}
	want := filepath.Join(f.cfg.Paths.LibraryDir, "Archives", "archive.bin")
	if moved.TargetPath != want {
		t.Fatalf("target = %q, want %q", moved.TargetPath, want)
	}
	info, err := os.Stat(want)
	if err != nil || info.Size() != item.SizeBytes {
		t.Fatalf("target missing or wrong size: %v %v", info, err)
	}
	assertMissing(t, path)
	assertPhases(t, f.phases(t, item.Fingerprint),
		txlog.PhaseBegun, txlog.PhaseCopied, txlog.PhaseVerified, txlog.PhaseSourceRemoved, txlog.PhaseCommitted)

	entries, err := os.ReadDir(filepath.Dir(want))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".part") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestOrganizeCrossDeviceDetectsChangedSource(t *testing.T) {
	f := newFixture(t)
	organizer.ForceCrossDevice(f.org)
	item := f.ready(t, "draft.txt", "version one", "Docs")

	// Same size, different bytes: the copy no longer matches the fingerprint.
	testsupport.WriteFile(t, item.SourcePath, "version two")

	failed, err := f.org.Organize(context.Background(), item.Fingerprint)
	if err == nil {
		t.Fatal("expected corruption error")
	}
	if failed.Status != queue.StatusError || failed.ErrorKind != services.KindCorruption {
		t.Fatalf("unexpected failed item: %+v", failed)
	}
	if got := testsupport.ReadFile(t, item.SourcePath); got != "version two" {
		t.Fatalf("source touched: %q", got)
	}
	entries, _ := os.ReadDir(filepath.Join(f.cfg.Paths.LibraryDir, "Docs"))
	if len(entries) != 0 {
		t.Fatalf("library directory should be empty after rollback, found %d entries", len(entries))
	}
	assertPhases(t, f.phases(t, item.Fingerprint), txlog.PhaseBegun, txlog.PhaseAborted)
}

func TestOrganizeCrossDeviceKeepsTargetThatAppearsMidCopy(t *testing.T) {
	f := newFixture(t, testsupport.WithConflictPolicy(config.ConflictRename))
	organizer.ForceCrossDeviceRace(f.org, func(target string) {
		testsupport.WriteFile(t, target, "landed first")
	})
	item := f.ready(t, "report.pdf", "our report", "Docs")

	failed, err := f.org.Organize(context.Background(), item.Fingerprint)
	if err == nil {
		t.Fatal("expected move conflict")
	}
	if failed.Status != queue.StatusError || failed.ErrorKind != services.KindMoveConflict {
		t.Fatalf("unexpected failed item: %+v", failed)
	}
	target := filepath.Join(f.cfg.Paths.LibraryDir, "Docs", "report.pdf")
	if got := testsupport.ReadFile(t, target); got != "landed first" {
		t.Fatalf("existing target overwritten: %q", got)
	}
	if got := testsupport.ReadFile(t, item.SourcePath); got != "our report" {
		t.Fatalf("source changed: %q", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(target))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".part") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
	assertPhases(t, f.phases(t, item.Fingerprint),
		txlog.PhaseBegun, txlog.PhaseCopied, txlog.PhaseVerified, txlog.PhaseAborted)
}

func TestOrganizeMissingSourceIsTransient(t *testing.T) {
	f := newFixture(t, testsupport.WithMaxRetries(2))
	item := f.ready(t, "gone.txt", "soon gone", "Docs")
	if err := os.Remove(item.SourcePath); err != nil {
		t.Fatal(err)
	}

	failed, err := f.org.Organize(context.Background(), item.Fingerprint)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if failed.ErrorKind != services.KindIOTransient || failed.RetryCount != 1 || failed.NextAttemptAt == nil {
		t.Fatalf("expected scheduled transient retry, got %+v", failed)
	}
}

func TestOrganizeRequiresReadyItem(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(testsupport.InboxDir(f.cfg), "early.txt")
	testsupport.WriteFile(t, path, "not yet")
	item := testsupport.RegisterFile(t, f.store, path)

	if _, err := f.org.Organize(context.Background(), item.Fingerprint); err == nil {
		t.Fatal("expected invalid transition for a new item")
	}
	if got := testsupport.ReadFile(t, path); got != "not yet" {
		t.Fatalf("source touched: %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	if health := f.org.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy organizer, got %+v", health)
	}

	f.cfg.Paths.LibraryDir = filepath.Join(t.TempDir(), "missing")
	if health := f.org.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy organizer for missing library")
	}
}
