package models

import "time"

/**
 * Repository specification loaded from the stack manifest
 * @property {string} name - Unique repository key
 * @property {string} path - Checkout path on disk
 * @property {string} remote - Remote name updates track (default "origin")
 */
type RepoSpec struct {
	Name   string `mapstructure:"name" json:"name"`
	Path   string `mapstructure:"path" json:"path"`
	Remote string `mapstructure:"remote" json:"remote,omitempty"`
}

// RepoState is the cached view of one managed checkout. Ahead/Behind are nil
// whenever the branch has no upstream; they are only computed against a
// successfully fetched remote-tracking ref.
type RepoState struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Branch      string    `json:"branch"`
	Detached    bool      `json:"detached"`
	Dirty       bool      `json:"dirty"`
	Commit      string    `json:"commit,omitempty"`
	Upstream    string    `json:"upstream,omitempty"`
	HasUpstream bool      `json:"hasUpstream"`
	Ahead       *int      `json:"ahead,omitempty"`
	Behind      *int      `json:"behind,omitempty"`
	RefreshedAt time.Time `json:"refreshedAt"`
	LastError   string    `json:"lastError,omitempty"`
}

type UpdateOutcomeKind string

const (
	UpdateApplied           UpdateOutcomeKind = "updated"
	UpdateSkippedDirty      UpdateOutcomeKind = "skipped_dirty"
	UpdateSkippedDetached   UpdateOutcomeKind = "skipped_detached"
	UpdateSkippedNoUpstream UpdateOutcomeKind = "skipped_no_upstream"
	UpdateFailed            UpdateOutcomeKind = "failed"
)

// UpdateOutcome is the result of a fast-forward update attempt. OldCommit and
// NewCommit are set only when Kind is UpdateApplied.
type UpdateOutcome struct {
	Repo      string            `json:"repo"`
	Kind      UpdateOutcomeKind `json:"kind"`
	OldCommit string            `json:"oldCommit,omitempty"`
	NewCommit string            `json:"newCommit,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// UpdateResponse is the body of the update endpoint: the git outcome plus the
// services the coordination layer restarted afterwards.
type UpdateResponse struct {
	Outcome   UpdateOutcome `json:"outcome"`
	Restarted []string      `json:"restarted"`
}
