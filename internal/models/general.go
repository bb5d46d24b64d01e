package models

// ErrorResponse defines API error response format. Conflict is populated on
// port.conflict responses only.
type ErrorResponse struct {
	Code     string            `json:"code"`
	Error    string            `json:"error"`
	Conflict *PortConflictInfo `json:"conflict,omitempty"`
}

// Stable error codes carried on API failure responses.
const (
	CodePortConflict      = "port.conflict"
	CodeLaunchFailed      = "process.launch_failed"
	CodeProbeTimeout      = "process.probe_timeout"
	CodeServiceNotExist   = "service.notexist"
	CodeRepoNotExist      = "repo.notexist"
	CodeOperationRejected = "operation.rejected"
)
