package types

import "time"

// FileStatus is the per-file state inside a session.
type FileStatus string

const (
	FileStatusQueued   FileStatus = "queued"
	FileStatusSkipped  FileStatus = "skipped"
	FileStatusSending  FileStatus = "sending"
	FileStatusFinished FileStatus = "finished"
	FileStatusFailed   FileStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s FileStatus) Terminal() bool {
	return s == FileStatusSkipped || s == FileStatusFinished || s == FileStatusFailed
}

// CanMoveTo encodes queued -> sending -> finished|failed and queued -> skipped.
func (s FileStatus) CanMoveTo(next FileStatus) bool {
	switch s {
	case FileStatusQueued:
		return next == FileStatusSending || next == FileStatusSkipped
	case FileStatusSending:
		return next == FileStatusFinished || next == FileStatusFailed
	default:
		return false
	}
}

// SessionStatus is the state of a whole batch, on either side.
type SessionStatus string

const (
	SessionStatusWaiting            SessionStatus = "waiting"
	SessionStatusSending            SessionStatus = "sending"
	SessionStatusFinished           SessionStatus = "finished"
	SessionStatusFinishedWithErrors SessionStatus = "finishedWithErrors"
	SessionStatusDeclined           SessionStatus = "declined"
	SessionStatusRecipientBusy      SessionStatus = "recipientBusy"
	SessionStatusCanceledBySender   SessionStatus = "canceledBySender"
)

// Terminal reports whether the session reached an end state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusSending:
		return false
	default:
		return true
	}
}

// CanMoveTo allows waiting -> anything later, sending -> any terminal state, nothing out of a terminal state.
func (s SessionStatus) CanMoveTo(next SessionStatus) bool {
	switch s {
	case SessionStatusWaiting:
		return next != SessionStatusWaiting
	case SessionStatusSending:
		return next.Terminal()
	default:
		return false
	}
}

// ReceivingFileSnapshot is a read-only copy of a receiver file entry.
type ReceivingFileSnapshot struct {
	File           FileMetadata `json:"file"`
	Status         FileStatus   `json:"status"`
	TokenIssued    bool         `json:"tokenIssued"`
	DesiredName    string       `json:"desiredName,omitempty"`
	Path           string       `json:"path,omitempty"`
	SavedToGallery bool         `json:"savedToGallery"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
}

// ReceiveSessionSnapshot is a read-only copy of the receiver session.
type ReceiveSessionSnapshot struct {
	SessionId string                           `json:"sessionId"`
	Status    SessionStatus                    `json:"status"`
	Sender    Device                           `json:"sender"`
	Files     map[string]ReceivingFileSnapshot `json:"files"`
	DestDir   string                           `json:"destinationDirectory"`
	StartedAt *time.Time                       `json:"startedAt,omitempty"`
	EndedAt   *time.Time                       `json:"endedAt,omitempty"`
}

// SendingFileSnapshot is a read-only copy of a sender file entry.
type SendingFileSnapshot struct {
	File         FileMetadata `json:"file"`
	Status       FileStatus   `json:"status"`
	Token        string       `json:"-"`
	Source       string       `json:"source,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

// SendSessionSnapshot is a read-only copy of the sender session.
type SendSessionSnapshot struct {
	SessionId    string                         `json:"sessionId"`
	Status       SessionStatus                  `json:"status"`
	Target       Device                         `json:"target"`
	Order        []string                       `json:"order"`
	Files        map[string]SendingFileSnapshot `json:"files"`
	StartedAt    *time.Time                     `json:"startedAt,omitempty"`
	EndedAt      *time.Time                     `json:"endedAt,omitempty"`
	ErrorMessage string                         `json:"errorMessage,omitempty"`
}

// SessionUploadStats counts per-file outcomes of a session.
type SessionUploadStats struct {
	TotalFiles   int `json:"totalFiles"`
	SuccessFiles int `json:"successFiles"`
	FailedFiles  int `json:"failedFiles"`
	SkippedFiles int `json:"skippedFiles"`
}

func countFiles(stats *SessionUploadStats, status FileStatus) {
	switch status {
	case FileStatusFinished:
		stats.SuccessFiles++
	case FileStatusFailed:
		stats.FailedFiles++
	case FileStatusSkipped:
		stats.SkippedFiles++
	}
}

// Stats counts per-file outcomes.
func (s ReceiveSessionSnapshot) Stats() SessionUploadStats {
	stats := SessionUploadStats{TotalFiles: len(s.Files)}
	for _, f := range s.Files {
		countFiles(&stats, f.Status)
	}
	return stats
}

// Stats counts per-file outcomes.
func (s SendSessionSnapshot) Stats() SessionUploadStats {
	stats := SessionUploadStats{TotalFiles: len(s.Files)}
	for _, f := range s.Files {
		countFiles(&stats, f.Status)
	}
	return stats
}
