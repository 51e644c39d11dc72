package types

import "time"

// SessionState is the lifecycle phase of a restore session.
type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionRunning   SessionState = "running"
	SessionCompleted SessionState = "completed"
	SessionCancelled SessionState = "cancelled"
	SessionFailed    SessionState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionFailed
}

// SessionSnapshot is a read-only copy of a restore session handed to controllers.
type SessionSnapshot struct {
	SessionId      string       `json:"sessionId"`
	State          SessionState `json:"state"`
	Source         string       `json:"source"`
	Target         string       `json:"target"`
	SourceBytes    uint64       `json:"sourceBytes"`
	TargetBytes    uint64       `json:"targetBytes"`
	CompletedBytes uint64       `json:"completedBytes"`
	BytesPerSec    uint64       `json:"bytesPerSec"`
	USecRemaining  uint64       `json:"usecRemaining"`
	ETAKnown       bool         `json:"etaKnown"`
	StartedAt      time.Time    `json:"startedAt"`
	EndedAt        time.Time    `json:"endedAt"`
	Error          string       `json:"error,omitempty"`
}

// RestoreRequest is the body of a start request.
type RestoreRequest struct {
	Source string `json:"source" binding:"required"`
	Target string `json:"target" binding:"required"`
	// Force skips the pre-flight warning (not the pre-flight errors).
	Force bool `json:"force,omitempty"`
}

// RestoreStartResponse is returned once a session is running.
type RestoreStartResponse struct {
	SessionId string `json:"sessionId"`
	Warning   string `json:"warning,omitempty"`
}

// PreflightResponse reports the size check for a source/target pair.
type PreflightResponse struct {
	SourceBytes uint64 `json:"sourceBytes"`
	TargetBytes uint64 `json:"targetBytes"`
	Ok          bool   `json:"ok"`
	Warning     string `json:"warning,omitempty"`
	Error       string `json:"error,omitempty"`
}
