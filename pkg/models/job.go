package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusTimedOut   = "timed_out"
	JobStatusCancelled  = "cancelled"
)

// TerminalStatus reports whether a job status admits no further transitions.
func TerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimedOut, JobStatusCancelled:
		return true
	}
	return false
}

// Job tracks a deep-research report job submitted to the insight engine.
// The API returns the record id on POST /api/v1/reports; clients poll
// GET /api/v1/reports/{id} until the status is terminal. RemoteJobID is the
// engine's opaque identifier, kept so a conversation can re-attach to a
// running job across restarts.
type Job struct {
	ID              uuid.UUID  `db:"id"               json:"id"`
	ConversationID  string     `db:"conversation_id"  json:"conversation_id"`
	RemoteJobID     *string    `db:"remote_job_id"    json:"remote_job_id,omitempty"`
	Status          string     `db:"status"           json:"status"`
	ProgressMessage *string    `db:"progress_message" json:"progress_message,omitempty"`
	ProgressPercent *float64   `db:"progress_percent" json:"progress_percent,omitempty"`
	ErrorMessage    *string    `db:"error_message"    json:"error_message,omitempty"`
	Result          *string    `db:"result"           json:"result,omitempty"`
	StartedAt       *time.Time `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at"     json:"completed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"       json:"updated_at"`
}
