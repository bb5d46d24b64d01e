//go:build unix || linux || darwin

package utils

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// SetNewPG puts the child into its own process group so the whole tree can
// be signalled together and does not receive the keeper's terminal signals.
func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// ProcessAlive reports whether the pid still exists (signal 0 probe).
func ProcessAlive(pid int) bool {
	if err := syscall.Kill(pid, syscall.Signal(0)); err != nil {
		return false
	}
	return true
}

// SignalGroup sends sig to the process group led by pid, falling back to the
// single process when the group lookup fails.
func SignalGroup(pid int, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(pid)
	if err == nil {
		if err := syscall.Kill(-pgid, sig); err == nil {
			return nil
		}
	}
	return syscall.Kill(pid, sig)
}

/**
 * Terminate a process gracefully: SIGTERM first, SIGKILL after grace
 * @param {int} pid - Process ID to terminate
 * @param {time.Duration} grace - Bounded wait before escalating
 * @returns {error} Error when the process survived SIGKILL
 * @description
 * - Signals the whole process group of pid; only safe for children the
 *   keeper spawned into their own group via SetNewPG
 * - Polls with signal(0) every 100ms during the grace period
 */
func TerminateGracefully(pid int, grace time.Duration) error {
	return terminate(pid, grace, SignalGroup)
}

// TerminateProcess is TerminateGracefully restricted to the single pid. Used
// for processes the keeper did not spawn, whose group may contain unrelated
// members.
func TerminateProcess(pid int, grace time.Duration) error {
	return terminate(pid, grace, syscall.Kill)
}

func terminate(pid int, grace time.Duration, kill func(int, syscall.Signal) error) error {
	if !ProcessAlive(pid) {
		return nil
	}
	if err := kill(pid, syscall.SIGTERM); err == nil {
		deadline := time.Now().Add(grace)
		for time.Now().Before(deadline) {
			if !ProcessAlive(pid) {
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	if err := kill(pid, syscall.SIGKILL); err != nil && ProcessAlive(pid) {
		return err
	}
	// SIGKILL is not instantaneous; give the kernel a moment to reap.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if ProcessAlive(pid) {
		return os.ErrInvalid
	}
	return nil
}
