package main

import (
	"os"
	"testing"

	"shelver/internal/queue"
	"shelver/internal/testsupport"
)

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	item := env.track(t, "a.txt", "a")
	testsupport.Advance(t, env.store, item.Fingerprint, queue.StatusProcessing)
	env.track(t, "b.txt", "b")

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, "Queue database")
	requireContains(t, out, "2 items")
	requireContains(t, out, "classifier")
	requireContains(t, out, "organizer")
	requireContains(t, out, "discovery")
	requireContains(t, out, "processing")
}

func TestStatusReportsMissingWatchRoot(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.RemoveAll(testsupport.InboxDir(env.cfg)); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "watch root unavailable")
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"stop"}, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
