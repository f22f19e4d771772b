package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-sync/internal/observability"
)

const writeWait = 10 * time.Second

type client struct {
	conn    *websocket.Conn
	info    ConnInfo
	writeMu sync.Mutex
}

func (cl *client) write(payload []byte) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maps addressing keys to live connections. Direct clients are keyed by their client id,
// group clients by "<group>-<client>".
type Hub struct {
	clients map[string]*client
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// DirectKey is the registration key of a direct connection.
func DirectKey(clientID string) string {
	return clientID
}

// GroupKey is the registration key of a member's connection to a group.
func GroupKey(groupID, clientID string) string {
	return groupID + "-" + clientID
}

// Add registers conn under key. A previous connection under the same key is closed.
func (h *Hub) Add(key string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	prev := h.clients[key]
	h.clients[key] = &client{conn: conn, info: info}
	h.mu.Unlock()

	if prev != nil && prev.conn != nil && prev.conn != conn {
		log.Printf("relay replacing connection key=%s conn_id=%s", key, prev.info.ConnID)
		prev.conn.Close()
	}
}

// Remove unregisters conn if it is still the one registered under key.
func (h *Hub) Remove(key string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cl, ok := h.clients[key]; ok && cl.conn == conn {
		delete(h.clients, key)
	}
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Forward writes payload unchanged to every registered key in keys. Unknown keys are skipped;
// there is no buffering for absent recipients.
func (h *Hub) Forward(keys []string, payload []byte) int {
	delivered := 0
	for _, key := range keys {
		h.mu.RLock()
		cl := h.clients[key]
		h.mu.RUnlock()
		if cl == nil {
			continue
		}
		if err := cl.write(payload); err != nil {
			log.Printf("websocket write error key=%s: %v", key, err)
			cl.conn.Close()
			h.Remove(key, cl.conn)
			h.publishWSError(cl.info, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey(info.Kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload: observability.WSEventPayload(info.Kind, info.ResourceID, "ws_error", info.ConnID,
			time.Since(info.ConnectedAt).Milliseconds(), err.Error(), info.UserID, info.DeviceID, info.IP),
	}, headers)
	observability.IncWSEvent(info.Kind, "ws_error")
}

func wsRoutingKey(kind string) string {
	if kind == kindGroup {
		return "ws_events.groups"
	}
	return "ws_events.chats"
}
