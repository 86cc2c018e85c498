package notifyhub

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

const writeWait = 5 * time.Second

// Hub holds WebSocket connections and broadcasts notifications to all clients.
// Implements notify.Observer.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*sync.Mutex
}

// New creates a new notify hub.
func New() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Register adds a WebSocket connection to the hub.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = &sync.Mutex{}
}

// Unregister removes a WebSocket connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// keepAlive pings conn until stop is closed, sharing the connection's write lock with Notify.
func (h *Hub) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		h.mu.RLock()
		mu, ok := h.conns[conn]
		h.mu.RUnlock()
		if !ok {
			return
		}
		mu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		mu.Unlock()
		if err != nil {
			return
		}
	}
}

// Notify sends the notification as JSON to all registered connections.
// gorilla connections allow one concurrent writer, hence the per-connection lock.
func (h *Hub) Notify(notification *types.Notification) {
	if notification == nil {
		return
	}
	payload, err := sonic.Marshal(notification)
	if err != nil {
		tool.DefaultLogger.Debugf("[NotifyHub] marshal %s: %v", notification.Type, err)
		return
	}

	h.mu.RLock()
	type target struct {
		conn *websocket.Conn
		mu   *sync.Mutex
	}
	targets := make([]target, 0, len(h.conns))
	for c, mu := range h.conns {
		targets = append(targets, target{c, mu})
	}
	h.mu.RUnlock()

	for _, t := range targets {
		t.mu.Lock()
		_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := t.conn.WriteMessage(websocket.TextMessage, payload)
		t.mu.Unlock()
		if err != nil {
			tool.DefaultLogger.Debugf("[NotifyHub] drop client: %v", err)
			h.Unregister(t.conn)
			_ = t.conn.Close()
		}
	}
}
