package services

import (
	"fmt"
	"strings"
)

// PortConflictError reports that a service's expected port is held by a
// process the keeper does not own. User-actionable; never auto-resolved.
type PortConflictError struct {
	Service string
	Port    int
	Pids    []int
}

func (e *PortConflictError) Error() string {
	ids := make([]string, len(e.Pids))
	for i, pid := range e.Pids {
		ids[i] = fmt.Sprintf("%d", pid)
	}
	return fmt.Sprintf("port %d required by [%s] is in use by PID(s): %s",
		e.Port, e.Service, strings.Join(ids, ", "))
}

// LaunchError covers command-not-found and immediate non-zero exits, with
// whatever early output the process managed to emit.
type LaunchError struct {
	Service string
	Reason  string
	Output  []string
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("service [%s] failed to launch: %s", e.Service, e.Reason)
	if len(e.Output) > 0 {
		msg += "; last output: " + strings.Join(e.Output, " | ")
	}
	return msg
}

// ProbeTimeoutError means the process stayed alive but never started
// listening within the probe window. Treated as crashed.
type ProbeTimeoutError struct {
	Service string
	Port    int
}

func (e *ProbeTimeoutError) Error() string {
	return fmt.Sprintf("service [%s] never started listening on port %d", e.Service, e.Port)
}
