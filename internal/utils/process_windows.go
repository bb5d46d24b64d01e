//go:build windows

package utils

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// SetNewPG detaches the child into its own process group (Windows
// implementation).
func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

func ProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Windows; Signal(0) distinguishes.
	return proc.Signal(syscall.Signal(0)) == nil
}

func SignalGroup(pid int, _ syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

// TerminateGracefully has no SIGTERM equivalent here; kill directly.
func TerminateGracefully(pid int, grace time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Kill(); err != nil && ProcessAlive(pid) {
		return err
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// TerminateProcess matches TerminateGracefully here; process groups are not
// signalled on this platform either way.
func TerminateProcess(pid int, grace time.Duration) error {
	return TerminateGracefully(pid, grace)
}
