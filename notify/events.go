package notify

import (
	"fmt"

	"github.com/moyoez/localsend-session/types"
)

// SessionNegotiated asks the approval collaborator for a decision on an incoming batch.
func SessionNegotiated(snapshot types.ReceiveSessionSnapshot) *types.Notification {
	files := make([]types.FileMetadata, 0, len(snapshot.Files))
	textOnly := len(snapshot.Files) == 1
	for _, f := range snapshot.Files {
		files = append(files, f.File)
		if f.File.FileType != types.FileTypeText || f.File.Preview == "" {
			textOnly = false
		}
	}
	return &types.Notification{
		Type:       types.NotifyTypeSessionNegotiated,
		Title:      "Confirm Receive",
		Message:    fmt.Sprintf("Incoming files from %s", snapshot.Sender.Alias),
		IsTextOnly: textOnly,
		Data: map[string]any{
			"sessionId": snapshot.SessionId,
			"from":      snapshot.Sender.Alias,
			"ip":        snapshot.Sender.IP,
			"fileCount": len(files),
			"files":     files,
		},
	}
}

// FileProgress reports progress of one file. fraction is negative when the size is unknown.
func FileProgress(sessionId, fileId string, written int64, fraction float64) *types.Notification {
	return &types.Notification{
		Type: types.NotifyTypeFileProgress,
		Data: map[string]any{
			"sessionId": sessionId,
			"fileId":    fileId,
			"written":   written,
			"progress":  fraction,
		},
	}
}

// FileFinished reports a per-file terminal status.
func FileFinished(sessionId, fileId string, status types.FileStatus, errMsg string) *types.Notification {
	n := &types.Notification{
		Type:  types.NotifyTypeFileFinished,
		Title: "File " + string(status),
		Data: map[string]any{
			"sessionId": sessionId,
			"fileId":    fileId,
			"status":    status,
		},
	}
	if errMsg != "" {
		n.Message = errMsg
		n.Data["error"] = errMsg
	}
	return n
}

// SessionTerminal reports that a session reached an end state.
func SessionTerminal(sessionId string, status types.SessionStatus, stats types.SessionUploadStats, session any) *types.Notification {
	return &types.Notification{
		Type:    types.NotifyTypeSessionTerminal,
		Title:   "Transfer " + string(status),
		Message: fmt.Sprintf("%d/%d files received, %d failed", stats.SuccessFiles, stats.TotalFiles, stats.FailedFiles),
		Data: map[string]any{
			"sessionId": sessionId,
			"status":    status,
			"stats":     stats,
			"session":   session,
		},
	}
}

// SessionCanceled reports a session closed by either side before it finished.
func SessionCanceled(sessionId string, bySender bool) *types.Notification {
	msg := "Transfer was cancelled locally"
	if bySender {
		msg = "Transfer was cancelled by the sender"
	}
	return &types.Notification{
		Type:    types.NotifyTypeSessionCanceled,
		Title:   "Transfer Cancelled",
		Message: msg,
		Data: map[string]any{
			"sessionId": sessionId,
			"bySender":  bySender,
		},
	}
}

// ShowRequested asks the presentation layer to bring its window forward.
func ShowRequested(from string) *types.Notification {
	return &types.Notification{
		Type:  types.NotifyTypeShowRequested,
		Title: "Show",
		Data:  map[string]any{"from": from},
	}
}
