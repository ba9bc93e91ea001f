package fingerprint_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"shelver/internal/fingerprint"
	"shelver/internal/services"
)

func TestFileIsIndependentOfPathAndName(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("shelver"), fingerprint.BufferSize/3)
	first := filepath.Join(dir, "Show.Name.S01E01.mkv")
	second := filepath.Join(dir, "nested", "Show.Name.S01E01.copy.mkv")
	if err := os.MkdirAll(filepath.Dir(second), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	a, err := fingerprint.File(context.Background(), first)
	if err != nil {
		t.Fatalf("File returned error: %v", err)
	}
	b, err := fingerprint.File(context.Background(), second)
	if err != nil {
		t.Fatalf("File returned error: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical digests, got %v and %v", a, b)
	}
	sum := sha256.Sum256(content)
	if a.Hex != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected digest %s", a.Hex)
	}
	if a.Size != int64(len(content)) {
		t.Fatalf("unexpected size %d", a.Size)
	}
	if len(a.Short()) != 12 {
		t.Fatalf("unexpected short form %q", a.Short())
	}
}

func TestFileMissingIsTransient(t *testing.T) {
	_, err := fingerprint.File(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, services.ErrIOTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestFileUnreadableIsPermission(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}
	path := filepath.Join(t.TempDir(), "locked")
	if err := os.WriteFile(path, []byte("x"), 0o000); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := fingerprint.File(context.Background(), path)
	if !errors.Is(err, services.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestReaderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fingerprint.Reader(ctx, bytes.NewReader([]byte("data")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
