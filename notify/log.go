package notify

import (
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// LogObserver writes events to the default logger. Progress goes to debug.
type LogObserver struct{}

func (LogObserver) Notify(n *types.Notification) {
	switch n.Type {
	case types.NotifyTypeFileProgress:
		tool.DefaultLogger.Debugf("[Event] %s %v", n.Type, n.Data)
	default:
		tool.DefaultLogger.Infof("[Event] %s: %s %s", n.Type, n.Title, n.Message)
	}
}
