package daemonctl_test

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"shelver/internal/config"
	"shelver/internal/daemonctl"
	"shelver/internal/daemonrun"
	"shelver/internal/testsupport"
)

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

// fakeDaemon holds the lock on behalf of a sleeping child process and
// releases it once the child exits.
func fakeDaemon(t *testing.T, cfg *config.Config, ignoreTerm bool) *exec.Cmd {
	t.Helper()
	script := "sleep 30"
	if ignoreTerm {
		script = "trap '' TERM; sleep 30"
	}
	child := exec.Command("sh", "-c", script)
	if err := child.Start(); err != nil {
		t.Skipf("cannot start child process: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}
	if err := os.WriteFile(daemonrun.PIDPath(cfg), []byte(strconv.Itoa(child.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	go func() {
		_ = child.Wait()
		_ = lock.Unlock()
	}()
	t.Cleanup(func() {
		_ = child.Process.Kill()
	})
	return child
}

func TestProcessInfoWithoutDaemon(t *testing.T) {
	cfg := newConfig(t)
	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil || running || pid != 0 {
		t.Fatalf("expected not running, got running=%v pid=%d err=%v", running, pid, err)
	}
	if _, err := daemonctl.StopAndTerminate(cfg, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if err := daemonctl.WaitForShutdown(cfg.LockPath(), time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestStopAndTerminateSignalsDaemon(t *testing.T) {
	cfg := newConfig(t)
	child := fakeDaemon(t, cfg, false)

	running, pid, err := daemonctl.ProcessInfo(cfg)
	if err != nil || !running || pid != child.Process.Pid {
		t.Fatalf("expected running pid %d, got running=%v pid=%d err=%v", child.Process.Pid, running, pid, err)
	}

	result, err := daemonctl.StopAndTerminate(cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if result.ForcedKill || result.PID != child.Process.Pid {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStopAndTerminateForceKillsStubbornDaemon(t *testing.T) {
	cfg := newConfig(t)
	child := fakeDaemon(t, cfg, true)
	// Let the shell install its trap before signalling.
	time.Sleep(200 * time.Millisecond)

	result, err := daemonctl.StopAndTerminate(cfg, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !result.ForcedKill || result.PID != child.Process.Pid {
		t.Fatalf("expected forced kill of %d, got %+v", child.Process.Pid, result)
	}
	if _, err := os.Stat(daemonrun.PIDPath(cfg)); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err=%v", err)
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	if _, err := daemonctl.ForceKillProcess("/nonexistent/shelver.pid", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := daemonctl.ForceKillProcess("/nonexistent/shelver.pid", 0); err == nil {
		t.Fatal("expected error without a pid")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if _, err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}
