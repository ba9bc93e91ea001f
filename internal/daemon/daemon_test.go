package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shelver/internal/config"
	"shelver/internal/daemon"
	"shelver/internal/logging"
	"shelver/internal/queue"
	"shelver/internal/staging"
	"shelver/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("%s never appeared", path)
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if !status.Discovery.Ready {
		t.Fatalf("discovery not ready: %+v", status.Discovery)
	}
	if len(status.Preflight) == 0 {
		t.Fatal("expected preflight results")
	}
	for _, check := range status.Preflight {
		if !check.Passed {
			t.Fatalf("preflight %s failed: %s", check.Name, check.Detail)
		}
	}
	if !status.Database.IntegrityCheck {
		t.Fatalf("database health not ok: %+v", status.Database)
	}
	for name, health := range status.Workflow.StageHealth {
		if !health.Ready {
			t.Fatalf("stage %s not ready: %s", name, health.Detail)
		}
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		t.Fatalf("LockHeld: %v", err)
	}
	if held {
		t.Fatal("lock still held after stop")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	second := newDaemon(t, cfg)
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil || !held {
		t.Fatalf("expected lock held, got %v (%v)", held, err)
	}
}

func TestDaemonRejectsUnknownProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.Provider = "oracle"
	d := newDaemon(t, cfg)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil || held {
		t.Fatalf("lock should be released after failed start, held=%v err=%v", held, err)
	}
}

func TestDaemonShelvesDroppedFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCategories("Docs"))
	cfg.Classifier.Keywords = map[string][]string{"Docs": {"*.pdf"}}
	inbox := testsupport.InboxDir(cfg)

	// One file waits for the startup scan, the other arrives while running.
	early := filepath.Join(inbox, "tax-return.pdf")
	testsupport.WriteFile(t, early, "%PDF tax")

	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	nested := filepath.Join(inbox, "scans", "lease.pdf")
	testsupport.WriteFile(t, nested, "%PDF lease")

	waitForFile(t, filepath.Join(cfg.Paths.LibraryDir, "Docs", "tax-return.pdf"))
	waitForFile(t, filepath.Join(cfg.Paths.LibraryDir, "Docs", "lease.pdf"))

	status := d.Status(context.Background())
	if status.Workflow.QueueStats[queue.StatusMoved] != 2 {
		t.Fatalf("expected two moved items, got %v", status.Workflow.QueueStats)
	}
}

func TestDaemonRecoversInterruptedMoveOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := filepath.Join(testsupport.InboxDir(cfg), "stuck.txt")
	testsupport.WriteFile(t, source, "stuck in moving")
	item := testsupport.RegisterFile(t, store, source)
	testsupport.Advance(t, store, item.Fingerprint, queue.StatusProcessing, queue.StatusClassified, queue.StatusReadyToMove, queue.StatusMoving)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := d.Status(context.Background()).Recovery.Orphaned; got != 1 {
		t.Fatalf("expected one orphaned move, got %d", got)
	}
}

func TestDaemonSweepsStaleTempFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stale := staging.TempPath(filepath.Join(cfg.Paths.LibraryDir, "Docs", "lost.pdf"), "deadbeef")
	fresh := staging.TempPath(filepath.Join(cfg.Paths.LibraryDir, "Docs", "busy.pdf"), "cafebabe")
	testsupport.WriteFile(t, stale, "partial")
	testsupport.WriteFile(t, fresh, "partial")
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale temp should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("recent temp should survive: %v", err)
	}
}
