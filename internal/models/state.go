package models

import "time"

// UpdateStatus is the outcome of the most recent poll.
type UpdateStatus string

const (
	UpdateOK    UpdateStatus = "ok"
	UpdateError UpdateStatus = "error"
)

// Phase is where a coordinator currently sits in its poll cycle. Between
// polls it rests at idle, or at published once a poll has succeeded.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseParsing   Phase = "parsing"
	PhaseSelecting Phase = "selecting"
	PhasePublished Phase = "published"
	PhaseFailed    Phase = "failed"
)

// CoordinatorState is a point-in-time snapshot of one monitored region.
// LastMessage survives failed polls so consumers keep seeing the most recent
// good data alongside the error signal.
type CoordinatorState struct {
	LastMessage          *MessageRecord `json:"last_message,omitempty"`
	MatchesFilter        bool           `json:"matches_filter"`
	LastUpdateAttempt    *time.Time     `json:"last_update_attempt,omitempty"`
	LastUpdateStatus     UpdateStatus   `json:"last_update_status"`
	LastSuccessfulUpdate *time.Time     `json:"last_successful_update,omitempty"`
	ConsecutiveErrors    int            `json:"consecutive_errors"`
	LastError            string         `json:"last_error,omitempty"`
	Phase                Phase          `json:"phase"`
}
