package organizer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"shelver/internal/config"
	"shelver/internal/organizer"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/staging"
	"shelver/internal/testsupport"
	"shelver/internal/txlog"
)

type interrupted struct {
	item   *queue.Item
	target string
	temp   string
	txID   string
}

// interruptAt simulates a crash after the journal reached the given phases.
// The temp copy is written when withTemp is set; partial truncates it.
func interruptAt(t *testing.T, f *fixture, name, content string, phases []txlog.Phase, withTemp, partial bool) interrupted {
	t.Helper()
	ctx := context.Background()
	item := f.ready(t, name, content, "Docs")
	testsupport.Advance(t, f.store, item.Fingerprint, queue.StatusMoving)

	target := filepath.Join(f.cfg.Paths.LibraryDir, "Docs", name)
	txID := txlog.NewTxID()
	temp := staging.TempPath(target, txID)
	if withTemp {
		data := content
		if partial {
			data = content[:len(content)/2]
		}
		testsupport.WriteFile(t, temp, data)
	}
	if err := f.journal.Begin(ctx, txID, item.Fingerprint, item.SourcePath, target, temp); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	for _, phase := range phases {
		if err := f.journal.Append(ctx, txID, phase); err != nil {
			t.Fatalf("Append %s failed: %v", phase, err)
		}
	}
	return interrupted{item: item, target: target, temp: temp, txID: txID}
}

func TestRecoverRollsForwardAfterVerifiedCopy(t *testing.T) {
	f := newFixture(t)
	crash := interruptAt(t, f, "ledger.csv", "a,b,c\n1,2,3\n", []txlog.Phase{txlog.PhaseCopied, txlog.PhaseVerified}, true, false)

	report, err := f.org.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report != (organizer.RecoveryReport{RolledForward: 1}) {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := testsupport.ReadFile(t, crash.target); got != "a,b,c\n1,2,3\n" {
		t.Fatalf("target content = %q", got)
	}
	assertMissing(t, crash.item.SourcePath)
	assertMissing(t, crash.temp)

	item, err := f.store.GetByFingerprint(context.Background(), crash.item.Fingerprint)
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != queue.StatusMoved || item.TargetPath != crash.target {
		t.Fatalf("unexpected item after roll forward: %+v", item)
	}
	assertPhases(t, f.phases(t, crash.item.Fingerprint),
		txlog.PhaseBegun, txlog.PhaseCopied, txlog.PhaseVerified, txlog.PhaseSourceRemoved, txlog.PhaseCommitted)
}

func TestRecoverRollsForwardAfterSourceRemoved(t *testing.T) {
	f := newFixture(t)
	crash := interruptAt(t, f, "notes.md", "# notes", []txlog.Phase{txlog.PhaseCopied, txlog.PhaseVerified, txlog.PhaseSourceRemoved}, true, false)
	if err := os.Remove(crash.item.SourcePath); err != nil {
		t.Fatal(err)
	}

	if _, err := f.org.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if got := testsupport.ReadFile(t, crash.target); got != "# notes" {
		t.Fatalf("target content = %q", got)
	}
	item, _ := f.store.GetByFingerprint(context.Background(), crash.item.Fingerprint)
	if item.Status != queue.StatusMoved {
		t.Fatalf("expected moved, got %s", item.Status)
	}
}

func TestRecoverKeepsUnrelatedFileAtTarget(t *testing.T) {
	for _, policy := range []string{config.ConflictSkip, config.ConflictRename} {
		t.Run(policy, func(t *testing.T) {
			f := newFixture(t, testsupport.WithConflictPolicy(policy))
			crash := interruptAt(t, f, "ledger.csv", "a,b,c\n1,2,3\n", []txlog.Phase{txlog.PhaseCopied, txlog.PhaseVerified}, true, false)
			testsupport.WriteFile(t, crash.target, "UNRELATED OPERATOR FILE\n")

			report, err := f.org.Recover(context.Background())
			if err != nil {
				t.Fatalf("Recover failed: %v", err)
			}
			if report != (organizer.RecoveryReport{RolledBack: 1}) {
				t.Fatalf("unexpected report: %+v", report)
			}
			if got := testsupport.ReadFile(t, crash.target); got != "UNRELATED OPERATOR FILE\n" {
				t.Fatalf("existing target overwritten: %q", got)
			}
			if got := testsupport.ReadFile(t, crash.item.SourcePath); got != "a,b,c\n1,2,3\n" {
				t.Fatalf("source changed: %q", got)
			}
			assertMissing(t, crash.temp)

			item, _ := f.store.GetByFingerprint(context.Background(), crash.item.Fingerprint)
			if item.Status != queue.StatusError || item.ErrorKind != services.KindMoveConflict {
				t.Fatalf("unexpected item: %+v", item)
			}
			phases := f.phases(t, crash.item.Fingerprint)
			if phases[len(phases)-1] != txlog.PhaseAborted {
				t.Fatalf("expected aborted to close the transaction, got %v", phases)
			}
		})
	}
}

func TestRecoverRestoresSourceWhenTargetOccupied(t *testing.T) {
	f := newFixture(t, testsupport.WithConflictPolicy(config.ConflictSkip))
	crash := interruptAt(t, f, "notes.md", "# notes", []txlog.Phase{txlog.PhaseCopied, txlog.PhaseVerified, txlog.PhaseSourceRemoved}, true, false)
	if err := os.Remove(crash.item.SourcePath); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteFile(t, crash.target, "someone else's notes")

	if _, err := f.org.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if got := testsupport.ReadFile(t, crash.target); got != "someone else's notes" {
		t.Fatalf("existing target overwritten: %q", got)
	}
	if got := testsupport.ReadFile(t, crash.item.SourcePath); got != "# notes" {
		t.Fatalf("source not restored: %q", got)
	}
	assertMissing(t, crash.temp)

	item, _ := f.store.GetByFingerprint(context.Background(), crash.item.Fingerprint)
	if item.Status != queue.StatusError || item.ErrorKind != services.KindMoveConflict {
		t.Fatalf("unexpected item: %+v", item)
	}
	if pending, _ := f.journal.Pending(context.Background()); len(pending) != 0 {
		t.Fatalf("transaction still pending: %+v", pending)
	}
}

func TestRecoverAcceptsIdenticalFileAtTarget(t *testing.T) {
	f := newFixture(t, testsupport.WithConflictPolicy(config.ConflictSkip))
	crash := interruptAt(t, f, "scan.pdf", "scanned page", []txlog.Phase{txlog.PhaseCopied, txlog.PhaseVerified}, true, false)
	testsupport.WriteFile(t, crash.target, "scanned page")

	report, err := f.org.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report.RolledForward != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	assertMissing(t, crash.temp)
	assertMissing(t, crash.item.SourcePath)
	item, _ := f.store.GetByFingerprint(context.Background(), crash.item.Fingerprint)
	if item.Status != queue.StatusMoved || item.TargetPath != crash.target {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestRecoverRollsBackPartialCopy(t *testing.T) {
	f := newFixture(t)
	crash := interruptAt(t, f, "video.mp4", "0123456789abcdef", []txlog.Phase{txlog.PhaseCopied}, true, true)

	report, err := f.org.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report != (organizer.RecoveryReport{RolledBack: 1}) {
		t.Fatalf("unexpected report: %+v", report)
	}
	assertMissing(t, crash.temp)
	assertMissing(t, crash.target)
	if got := testsupport.ReadFile(t, crash.item.SourcePath); got != "0123456789abcdef" {
		t.Fatalf("source changed: %q", got)
	}

	item, _ := f.store.GetByFingerprint(context.Background(), crash.item.Fingerprint)
	if item.Status != queue.StatusError || item.ErrorKind != services.KindIOTransient {
		t.Fatalf("unexpected item after rollback: %+v", item)
	}
	phases := f.phases(t, crash.item.Fingerprint)
	if phases[len(phases)-1] != txlog.PhaseAborted {
		t.Fatalf("expected aborted to close the transaction, got %v", phases)
	}
	if pending, _ := f.journal.Pending(context.Background()); len(pending) != 0 {
		t.Fatalf("transaction still pending: %+v", pending)
	}
}

func TestRecoverDetectsCompletedSameVolumeRename(t *testing.T) {
	f := newFixture(t)
	crash := interruptAt(t, f, "scan.pdf", "scanned page", nil, false, false)
	if err := os.MkdirAll(filepath.Dir(crash.target), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(crash.item.SourcePath, crash.target); err != nil {
		t.Fatal(err)
	}

	report, err := f.org.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report.RolledForward != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	item, _ := f.store.GetByFingerprint(context.Background(), crash.item.Fingerprint)
	if item.Status != queue.StatusMoved || item.TargetPath != crash.target {
		t.Fatalf("unexpected item: %+v", item)
	}
	assertPhases(t, f.phases(t, crash.item.Fingerprint), txlog.PhaseBegun, txlog.PhaseCommitted)
}

func TestRecoverSettlesMovingItemsWithoutOpenTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orphan := f.ready(t, "orphan.txt", "never journaled", "Docs")
	testsupport.Advance(t, f.store, orphan.Fingerprint, queue.StatusMoving)

	done := f.ready(t, "done.txt", "journaled and committed", "Docs")
	testsupport.Advance(t, f.store, done.Fingerprint, queue.StatusMoving)
	target := filepath.Join(f.cfg.Paths.LibraryDir, "Docs", "done.txt")
	testsupport.WriteFile(t, target, "journaled and committed")
	if err := os.Remove(done.SourcePath); err != nil {
		t.Fatal(err)
	}
	txID := txlog.NewTxID()
	if err := f.journal.Begin(ctx, txID, done.Fingerprint, done.SourcePath, target, ""); err != nil {
		t.Fatal(err)
	}
	if err := f.journal.Append(ctx, txID, txlog.PhaseCommitted); err != nil {
		t.Fatal(err)
	}

	report, err := f.org.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report != (organizer.RecoveryReport{RolledForward: 1, Orphaned: 1}) {
		t.Fatalf("unexpected report: %+v", report)
	}

	item, _ := f.store.GetByFingerprint(ctx, orphan.Fingerprint)
	if item.Status != queue.StatusError || item.ErrorKind != services.KindIOTransient {
		t.Fatalf("orphan not failed: %+v", item)
	}
	item, _ = f.store.GetByFingerprint(ctx, done.Fingerprint)
	if item.Status != queue.StatusMoved || item.TargetPath != target {
		t.Fatalf("committed item not marked moved: %+v", item)
	}
}

func TestRecoverIsNoopWhenNothingPending(t *testing.T) {
	f := newFixture(t)
	report, err := f.org.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if report != (organizer.RecoveryReport{}) {
		t.Fatalf("unexpected report: %+v", report)
	}
}
