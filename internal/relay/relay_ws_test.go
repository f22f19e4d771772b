package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/auth"
)

var testSecret = []byte("relay-secret")

func newRelayServer(t *testing.T) (*httptest.Server, *Hub) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	router := gin.New()
	router.GET("/ws", NewWebSocketHandler(hub, testSecret).Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, userID int64, query string) *websocket.Conn {
	token, err := auth.GenerateToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitRegistered(t *testing.T, hub *Hub, n int) {
	require.Eventually(t, func() bool { return hub.Len() == n }, 2*time.Second, 10*time.Millisecond)
}

func readWithin(t *testing.T, conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func requireSilent(t *testing.T, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestDirectFrameReachesTarget(t *testing.T) {
	srv, hub := newRelayServer(t)
	a := dial(t, srv, 1, "clientid=1&targetid=2")
	b := dial(t, srv, 2, "clientid=2&targetid=1")
	waitRegistered(t, hub, 2)

	frame := `{"sender_id":1,"receiver_id":2,"text":"hi","date":"2024-01-01T00:00:00Z"}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(frame)))
	require.Equal(t, frame, readWithin(t, b))
}

func TestGroupFrameFansOutToOtherMembers(t *testing.T) {
	srv, hub := newRelayServer(t)
	a := dial(t, srv, 1, "clientid=1&members=G,2,3")
	b := dial(t, srv, 2, "clientid=2&members=G,1,3")
	c := dial(t, srv, 3, "clientid=3&members=G,1,2")
	direct := dial(t, srv, 2, "clientid=2&targetid=1")
	waitRegistered(t, hub, 4)

	frame := `{"sender_id":1,"receiver_id":0,"text":"hello group","date":"2024-01-01T00:00:00Z"}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(frame)))

	require.Equal(t, frame, readWithin(t, b))
	require.Equal(t, frame, readWithin(t, c))
	requireSilent(t, a)
	requireSilent(t, direct)
}

func TestHandshakeRejections(t *testing.T) {
	srv, _ := newRelayServer(t)
	token, err := auth.GenerateToken(testSecret, 1, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		query  string
		header string
		status int
	}{
		{name: "missing clientid", query: "targetid=2", header: "Bearer " + token, status: http.StatusBadRequest},
		{name: "missing address", query: "clientid=1", header: "Bearer " + token, status: http.StatusBadRequest},
		{name: "missing token", query: "clientid=1&targetid=2", status: http.StatusUnauthorized},
		{name: "bad token", query: "clientid=1&targetid=2", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "subject mismatch", query: "clientid=9&targetid=2", header: "Bearer " + token, status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + tt.query
			_, resp, err := websocket.DefaultDialer.Dial(url, header)
			require.Error(t, err)
			require.NotNil(t, resp)
			require.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestTokenQueryParameterIsAccepted(t *testing.T) {
	srv, hub := newRelayServer(t)
	token, err := auth.GenerateToken(testSecret, 4, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?clientid=4&targetid=5&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitRegistered(t, hub, 1)
}
