package notifyhub

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/moyoez/localsend-session/tool"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	// clients only send control frames
	maxClientMessage = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the route sits behind OnlyAllowLocal
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleNotifyWS upgrades to a websocket and streams session events until the client leaves.
// GET /api/self/v1/notify-ws
func HandleNotifyWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			tool.DefaultLogger.Debugf("[NotifyHub] upgrade from %s failed: %v", c.ClientIP(), err)
			return
		}
		defer func() {
			hub.Unregister(conn)
			_ = conn.Close()
		}()

		conn.SetReadLimit(maxClientMessage)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		hub.Register(conn)
		tool.DefaultLogger.Debugf("[NotifyHub] %s subscribed, %d clients", c.ClientIP(), hub.Len())

		stop := make(chan struct{})
		defer close(stop)
		go hub.keepAlive(conn, stop)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				tool.DefaultLogger.Debugf("[NotifyHub] %s left: %v", c.ClientIP(), err)
				return
			}
		}
	}
}
