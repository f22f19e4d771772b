package relay

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/auth"
	"chat-sync/internal/observability"
)

const (
	kindDirect = "chat"
	kindGroup  = "group"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler accepts streaming connections addressed by
// ?clientid=&targetid= (direct) or ?clientid=&members=<group>,<m1>,... (group).
type WebSocketHandler struct {
	hub    *Hub
	secret []byte
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(hub *Hub, secret []byte) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, secret: secret}
}

type route struct {
	kind       string
	key        string
	resourceID string
	targets    []string
}

func parseRoute(clientID, target, members string) (route, bool) {
	if target != "" {
		return route{kind: kindDirect, key: DirectKey(clientID), resourceID: target, targets: []string{DirectKey(target)}}, true
	}
	if members == "" {
		return route{}, false
	}
	parts := strings.Split(members, ",")
	groupID := strings.TrimSpace(parts[0])
	if groupID == "" {
		return route{}, false
	}
	r := route{kind: kindGroup, key: GroupKey(groupID, clientID), resourceID: groupID}
	for _, m := range parts[1:] {
		m = strings.TrimSpace(m)
		if m == "" || m == clientID {
			continue
		}
		r.targets = append(r.targets, GroupKey(groupID, m))
	}
	return r, true
}

// Handle upgrades the connection, registers it and relays its frames.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	clientParam := c.Query("clientid")
	clientID, err := strconv.ParseInt(clientParam, 10, 64)
	if err != nil || clientID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clientid"})
		return
	}
	rt, ok := parseRoute(clientParam, c.Query("targetid"), c.Query("members"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "targetid or members required"})
		return
	}

	ctx, span := otel.Tracer("chat-sync/relay").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if userID != clientID {
		c.JSON(http.StatusForbidden, gin.H{"error": "clientid does not match token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		Kind:        rt.kind,
		ResourceID:  rt.resourceID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.Add(rt.key, conn, info)

	observability.IncWSActive(rt.kind)
	observability.IncWSEvent(rt.kind, "ws_connect")
	h.publish(ctx, info, "ws_connect", "")

	// detached from the request so the read loop outlives the handler
	go h.serve(context.WithoutCancel(ctx), conn, rt, info)
}

func (h *WebSocketHandler) serve(ctx context.Context, conn *websocket.Conn, rt route, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.Remove(rt.key, conn)
		observability.DecWSActive(rt.kind)
		observability.IncWSEvent(rt.kind, "ws_disconnect")
		h.publish(ctx, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(rt.kind, "ws_error")
				h.publish(ctx, info, "ws_error", closeReason)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.hub.Forward(rt.targets, payload)
	}
}

func (h *WebSocketHandler) publish(ctx context.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, wsRoutingKey(info.Kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: observability.WSEventPayload(info.Kind, info.ResourceID, event, info.ConnID,
			time.Since(info.ConnectedAt).Milliseconds(), reason, info.UserID, info.DeviceID, info.IP),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func (h *WebSocketHandler) validateToken(header string) (int64, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return auth.ValidateToken(h.secret, parts[1])
	}
	return 0, auth.ErrInvalidToken
}
