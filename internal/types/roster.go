package types

import "time"

// RosterStatus is the scrape state of one roster entry.
type RosterStatus string

const (
	StatusPending    RosterStatus = "pending"
	StatusProcessing RosterStatus = "processing"
	StatusCompleted  RosterStatus = "completed"
	StatusError      RosterStatus = "error"
)

// Valid reports whether s is a known status.
func (s RosterStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Rank orders statuses for roster consumption: processing, error, pending, completed.
// An empty status counts as pending.
func (s RosterStatus) Rank() int {
	switch s {
	case StatusProcessing:
		return 0
	case StatusError:
		return 1
	case StatusPending, "":
		return 2
	default:
		return 3
	}
}

// RosterEntry is one author to scrape.
type RosterEntry struct {
	ID           uint         `json:"id"`
	Name         string       `json:"name"`
	ProfileURL   string       `json:"profile_url"`
	Source       Source       `json:"source"`
	Status       RosterStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ProgressEvent is the payload handed to progress reporters.
type ProgressEvent struct {
	RunID   string    `json:"run_id"`
	Source  Source    `json:"source"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	At      time.Time `json:"at"`
}

// Progress statuses.
const (
	ProgressStarted    = "started"
	ProgressProcessing = "processing"
	ProgressAuthorDone = "author_completed"
	ProgressAuthorFail = "author_error"
	ProgressCompleted  = "completed"
	ProgressFailed     = "failed"
	ProgressAborted    = "aborted"
)
