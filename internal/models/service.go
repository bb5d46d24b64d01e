package models

import "time"

type RunStatus string

const (
	// Process spawned, liveness probe not yet passed.
	StatusStarting RunStatus = "starting"
	// Process alive and (if a port is declared) accepting connections.
	StatusRunning RunStatus = "running"
	// Process exited without being asked to stop.
	StatusCrashed RunStatus = "crashed"
	// Graceful termination in progress.
	StatusStopping RunStatus = "stopping"
	// Not running; either never started or stopped on request.
	StatusStopped RunStatus = "stopped"
)

/**
 * Service specification loaded from the stack manifest
 * @property {string} name - Unique service key
 * @property {string} label - Display label for UIs
 * @property {string} command - Executable to launch
 * @property {[]string} args - Command arguments
 * @property {string} workDir - Working directory the service runs in
 * @property {int} port - Expected listening port (0 = no port probe)
 * @property {bool} critical - Unexpected exit escalates to a stack-wide fault
 * @property {string} repo - Repository key whose checkout contains workDir
 * @property {WatchSpec} watch - Optional file-change restart rule
 */
type ServiceSpec struct {
	Name     string            `mapstructure:"name" json:"name"`
	Label    string            `mapstructure:"label" json:"label"`
	Command  string            `mapstructure:"command" json:"command"`
	Args     []string          `mapstructure:"args" json:"args,omitempty"`
	WorkDir  string            `mapstructure:"workdir" json:"workDir"`
	Port     int               `mapstructure:"port" json:"port"`
	Critical bool              `mapstructure:"critical" json:"critical"`
	Repo     string            `mapstructure:"repo" json:"repo,omitempty"`
	Env      map[string]string `mapstructure:"env" json:"env,omitempty"`
	Watch    *WatchSpec        `mapstructure:"watch" json:"watch,omitempty"`
}

// WatchSpec declares file patterns whose changes restart the service,
// debounced so a burst of writes triggers a single restart.
type WatchSpec struct {
	Globs    []string `mapstructure:"globs" json:"globs"`
	Debounce int      `mapstructure:"debounce" json:"debounce,omitempty"`
}

// ExitInfo records how the last process instance ended.
type ExitInfo struct {
	Code   int       `json:"code"`
	Signal string    `json:"signal,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Time   time.Time `json:"time"`
}

type ServiceDetail struct {
	Name      string      `json:"name"`
	Label     string      `json:"label"`
	Pid       int         `json:"pid"`
	Port      int         `json:"port"`
	Status    RunStatus   `json:"status"`
	Listening bool        `json:"listening"`
	Critical  bool        `json:"critical"`
	StartTime string      `json:"startTime,omitempty"`
	LastExit  *ExitInfo   `json:"lastExit,omitempty"`
	Spec      ServiceSpec `json:"spec"`
}

// PortConflictInfo names the processes blocking a service's port.
type PortConflictInfo struct {
	Port int   `json:"port"`
	Pids []int `json:"pids"`
}
