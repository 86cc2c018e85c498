package types

const (
	NotifyTypeSessionNegotiated = "session_negotiated"
	NotifyTypeFileProgress      = "file_progress"
	NotifyTypeFileFinished      = "file_finished"
	NotifyTypeSessionTerminal   = "session_terminal"
	NotifyTypeSessionCanceled   = "session_canceled"
	NotifyTypeShowRequested     = "show_requested"
	NotifyTypeInfo              = "info"
)

// Notification represents a notification message structure
type Notification struct {
	Type       string         `json:"type,omitempty"`       // e.g. "session_negotiated", "file_progress"
	Title      string         `json:"title,omitempty"`      // Notification title
	Message    string         `json:"message,omitempty"`    // Notification message/content
	Data       map[string]any `json:"data,omitempty"`       // Additional data fields
	IsTextOnly bool           `json:"isTextOnly,omitempty"` // Indicates if this is plain text content
}
