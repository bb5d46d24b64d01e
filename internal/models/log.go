package models

import "time"

// Log source streams. The supervisor itself writes under StreamSystem so the
// log view doubles as a lifecycle audit trail.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
	StreamSystem = "system"
)

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

/**
 * Single log line owned by a service's ring buffer
 * @property {int64} id - Per-service monotonically increasing id
 * @property {time.Time} time - Append timestamp
 * @property {string} level - Severity (info/warn/error)
 * @property {string} stream - Source stream (stdout/stderr/system)
 * @property {string} line - Text line, newline stripped
 */
type LogEntry struct {
	Service string    `json:"service"`
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Stream  string    `json:"stream"`
	Line    string    `json:"line"`
}

// LogPage is the response body of the log polling endpoint. Truncated tells
// reconnecting clients that entries between their cursor and MinID were
// evicted from the ring.
type LogPage struct {
	Service   string     `json:"service"`
	Entries   []LogEntry `json:"entries"`
	MinID     int64      `json:"minId"`
	MaxID     int64      `json:"maxId"`
	Truncated bool       `json:"truncated"`
}
