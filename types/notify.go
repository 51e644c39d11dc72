package types

// Notification represents a notification message structure
type Notification struct {
	Type       string         `json:"type,omitempty"`       // Notification type, e.g. "restore_progress", "restore_end", etc.
	Title      string         `json:"title,omitempty"`      // Notification title
	Message    string         `json:"message,omitempty"`    // Notification message/content
	Data       map[string]any `json:"data,omitempty"`       // Additional data fields
	IsTextOnly bool           `json:"isTextOnly,omitempty"` // Indicates if this is plain text content
}

// Notification types emitted by a restore session.
const (
	NotifyRestoreStart     = "restore_start"
	NotifyRestoreProgress  = "restore_progress"
	NotifyRestoreEnd       = "restore_end"
	NotifyRestoreError     = "restore_error"
	NotifyRestoreCancelled = "restore_cancelled"
)
