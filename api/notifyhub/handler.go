package notifyhub

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/moyoez/imagerestore/tool"
)

var upgrader = websocket.Upgrader{
	// loopback only, enforced by OnlyAllowLocal
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleNotifyWS subscribes the caller to restore notifications. An optional
// sessionId query parameter narrows the stream to one session.
func HandleNotifyWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Query("sessionId")
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			tool.DefaultLogger.Debugf("[Notify] websocket upgrade failed: %v", err)
			return
		}
		hub.Register(conn, sessionId)
		defer func() {
			hub.Unregister(conn)
			_ = conn.Close()
		}()
		if sessionId != "" {
			tool.DefaultLogger.Debugf("[Notify] websocket subscriber for session %s", sessionId)
		} else {
			tool.DefaultLogger.Debugf("[Notify] websocket subscriber for all sessions")
		}

		// subscribers only listen; the read loop notices when they leave
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
