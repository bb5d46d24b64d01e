package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"stack-keeper/internal/logger"
	"stack-keeper/internal/models"
	"stack-keeper/internal/utils"
)

/**
 * ProcessInstance owns one child process of a supervised service
 * @property {string} Service - Log key and display name
 * @property {string} Command - Executable
 * @property {[]string} Args - Command arguments
 * @property {string} WorkDir - Working directory
 * @property {[]string} Env - Full child environment (already merged)
 * @description
 * - Starting attaches one reader goroutine per stdio pipe; every line is
 *   forwarded to the LogStore and never blocks the child
 * - A waiter goroutine records the exit status and fires the exit callback
 */
type ProcessInstance struct {
	Service string
	Command string
	Args    []string
	WorkDir string
	Env     []string

	store  *LogStore
	onExit func(info models.ExitInfo, expected bool)

	mutex    sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	stopping bool
	lastExit *models.ExitInfo
}

func NewProcessInstance(service, command string, args []string, store *LogStore) *ProcessInstance {
	return &ProcessInstance{
		Service: service,
		Command: command,
		Args:    args,
		store:   store,
	}
}

// SetExitCallback installs the hook invoked from the waiter goroutine after
// the process exits. expected is true when Terminate initiated the exit.
func (pi *ProcessInstance) SetExitCallback(cb func(info models.ExitInfo, expected bool)) {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	pi.onExit = cb
}

func (pi *ProcessInstance) Pid() int {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	if pi.cmd == nil || pi.cmd.Process == nil {
		return 0
	}
	return pi.cmd.Process.Pid
}

func (pi *ProcessInstance) Alive() bool {
	pi.mutex.Lock()
	done := pi.done
	pi.mutex.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (pi *ProcessInstance) LastExit() *models.ExitInfo {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	if pi.lastExit == nil {
		return nil
	}
	cp := *pi.lastExit
	return &cp
}

/**
 * Start the child process
 * @param {context.Context} ctx - Launch context
 * @returns {error} LaunchError when the command cannot be spawned
 * @description
 * - Spawns in its own process group with the prepared environment
 * - Attaches stdout/stderr line readers feeding the LogStore
 */
func (pi *ProcessInstance) Start(ctx context.Context) error {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.done != nil {
		select {
		case <-pi.done:
		default:
			return nil
		}
	}

	cmd := exec.CommandContext(ctx, pi.Command, pi.Args...)
	cmd.Dir = pi.WorkDir
	if len(pi.Env) > 0 {
		cmd.Env = pi.Env
	}
	utils.SetNewPG(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &LaunchError{Service: pi.Service, Reason: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &LaunchError{Service: pi.Service, Reason: err.Error()}
	}

	if err := cmd.Start(); err != nil {
		logger.Errorf("Failed to start process '%s': %v", pi.Service, err)
		return &LaunchError{Service: pi.Service, Reason: err.Error()}
	}

	pi.cmd = cmd
	pi.stopping = false
	pi.lastExit = nil
	pi.done = make(chan struct{})

	logger.Infof("Process '%s' started (PID: %d)", pi.Service, cmd.Process.Pid)
	pi.store.Append(pi.Service, models.LevelInfo, models.StreamSystem,
		fmt.Sprintf("[keeper] started (pid=%d)", cmd.Process.Pid))

	go pi.streamPipe(stdout, models.StreamStdout, models.LevelInfo)
	go pi.streamPipe(stderr, models.StreamStderr, models.LevelError)
	go pi.watchProcess(cmd, pi.done)
	return nil
}

// streamPipe forwards one pipe to the log store, line by line.
func (pi *ProcessInstance) streamPipe(pipe io.ReadCloser, stream, level string) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		pi.store.Append(pi.Service, level, stream, line)
	}
}

// watchProcess waits for exit, records the status and fires the callback.
func (pi *ProcessInstance) watchProcess(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	info := models.ExitInfo{Time: time.Now()}
	if err == nil {
		info.Code = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		info.Code = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			info.Signal = status.Signal().String()
		}
		info.Reason = exitErr.Error()
	} else {
		info.Code = -1
		info.Reason = err.Error()
	}

	pi.mutex.Lock()
	pi.lastExit = &info
	expected := pi.stopping
	cb := pi.onExit
	close(done)
	pi.mutex.Unlock()

	if expected {
		pi.store.Append(pi.Service, models.LevelInfo, models.StreamSystem, "[keeper] stopped")
	} else {
		pi.store.Append(pi.Service, models.LevelError, models.StreamSystem,
			fmt.Sprintf("[keeper] process exited unexpectedly (code=%d)", info.Code))
	}
	logger.Infof("Process '%s' exited (code=%d, expected=%v)", pi.Service, info.Code, expected)

	if cb != nil {
		cb(info, expected)
	}
}

/**
 * Terminate the child process
 * @param {time.Duration} grace - Bounded wait before SIGKILL escalation
 * @returns {error} Error when the process survived even SIGKILL
 * @description
 * - Sends SIGTERM to the process group, escalates after the grace period
 * - Blocks until the waiter goroutine observed the exit (or 2s past kill)
 */
func (pi *ProcessInstance) Terminate(grace time.Duration) error {
	pi.mutex.Lock()
	if pi.cmd == nil || pi.cmd.Process == nil {
		pi.mutex.Unlock()
		return nil
	}
	pi.stopping = true
	pid := pi.cmd.Process.Pid
	done := pi.done
	pi.mutex.Unlock()

	killErr := utils.TerminateGracefully(pid, grace)

	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			// Waiter did not observe the exit; the process is abandoned to
			// the OS and reported upward.
			if killErr == nil {
				killErr = os.ErrDeadlineExceeded
			}
		}
	}
	if killErr != nil {
		logger.Errorf("Failed to kill process '%s' (PID: %d): %v", pi.Service, pid, killErr)
		return fmt.Errorf("process [%s] (pid %d) did not exit: %w", pi.Service, pid, killErr)
	}
	return nil
}
