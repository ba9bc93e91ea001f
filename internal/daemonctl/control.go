package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"shelver/internal/config"
	"shelver/internal/daemon"
	"shelver/internal/daemonrun"
)

const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning indicates no process holds the daemon lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch starts a detached "shelver run" process in its own session.
func Launch(executablePath string, opts LaunchOptions) (int, error) {
	if strings.TrimSpace(executablePath) == "" {
		return 0, fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if env := strings.TrimSpace(opts.EnvFile); env != "" {
		args = append(args, "--env-file", env)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	pid := proc.Process.Pid
	return pid, proc.Process.Release()
}

// ProcessInfo reports whether a daemon holds the lock and the pid it recorded.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil || !held {
		return false, 0, err
	}
	return true, daemonrun.ReadPID(cfg), nil
}

// EnsureStarted launches the daemon unless one is already running and waits
// for it to take the lock.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}

	launched, err := Launch(executablePath, opts)
	if err != nil {
		return StartResult{}, err
	}
	if err := waitForLock(cfg.LockPath(), true, waitTimeout); err != nil {
		return StartResult{}, fmt.Errorf("daemon failed to start (check %s): %w", cfg.LogPath(), err)
	}
	return StartResult{State: StartStateStarted, PID: launched}, nil
}

// WaitForShutdown waits until no process holds the daemon lock.
func WaitForShutdown(lockPath string, timeout time.Duration) error {
	if err := waitForLock(lockPath, false, timeout); err != nil {
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

func waitForLock(lockPath string, want bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		held, err := daemon.LockHeld(lockPath)
		if err != nil {
			return err
		}
		if held == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout after %s", timeout)
		}
		time.Sleep(pollInterval)
	}
}

// StopAndTerminate sends SIGTERM to the daemon and force-kills it if the
// lock is still held after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("daemon holds %s but recorded no pid in %s", cfg.LockPath(), daemonrun.PIDPath(cfg))
	}
	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, err
	}

	result := StopResult{PID: pid}
	if WaitForShutdown(cfg.LockPath(), gracePeriod) == nil {
		return result, nil
	}

	killed, err := ForceKillProcess(daemonrun.PIDPath(cfg), pid)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and removes its pid file.
func ForceKillProcess(pidPath string, pid int) (int, error) {
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return 0, err
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	return pid, nil
}

func signalProcess(pid int, sig syscall.Signal) error {
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(cfg, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}
	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}
