package notifyhub

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/types"
)

// WriteTimeout bounds one websocket write; a client slower than this is dropped.
var WriteTimeout = 2 * time.Second

// subscriber is one websocket client. A non-empty sessionId limits it to that
// session's notifications.
type subscriber struct {
	mu        sync.Mutex // gorilla allows one concurrent writer
	sessionId string
}

func (s *subscriber) wants(n *types.Notification) bool {
	if s.sessionId == "" {
		return true
	}
	id, _ := n.Data["sessionId"].(string)
	return id == s.sessionId
}

// Hub fans restore notifications out to websocket subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[*websocket.Conn]*subscriber
}

func New() *Hub {
	return &Hub{
		subs: make(map[*websocket.Conn]*subscriber),
	}
}

// Register subscribes conn to every session, or only to sessionId when set.
func (h *Hub) Register(conn *websocket.Conn, sessionId string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[conn] = &subscriber{sessionId: sessionId}
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, conn)
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast implements notify.Broadcaster. Subscribers whose write fails are
// closed and removed.
func (h *Hub) Broadcast(notification *types.Notification) {
	if notification == nil {
		return
	}
	payload, err := sonic.Marshal(notification)
	if err != nil {
		tool.DefaultLogger.Errorf("[Notify] failed to encode %s: %v", notification.Type, err)
		return
	}

	type target struct {
		conn *websocket.Conn
		sub  *subscriber
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.subs))
	for c, s := range h.subs {
		if s.wants(notification) {
			targets = append(targets, target{c, s})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		t.sub.mu.Lock()
		_ = t.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		err := t.conn.WriteMessage(websocket.TextMessage, payload)
		t.sub.mu.Unlock()
		if err != nil {
			tool.DefaultLogger.Debugf("[Notify] dropping websocket client %s: %v", t.conn.RemoteAddr(), err)
			h.Unregister(t.conn)
			_ = t.conn.Close()
		}
	}
}
