package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
	"chat-sync/internal/session"
	"chat-sync/internal/transcript"
)

// peer is a websocket server the tests drive by hand.
type peer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
	header   chan http.Header
}

func newPeer(t *testing.T) *peer {
	p := &peer{
		conns:    make(chan *websocket.Conn, 1),
		received: make(chan []byte, 16),
		header:   make(chan http.Header, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.header <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p.received <- data
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *peer) endpoint() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/ws"
}

func dialPeer(t *testing.T, p *peer, store *transcript.Store) (*Session, *websocket.Conn) {
	return dialPeerAt(t, p, store, DirectAddress(p.endpoint(), 2, "5"))
}

func dialPeerAt(t *testing.T, p *peer, store *transcript.Store, addr Address) (*Session, *websocket.Conn) {
	dialer := NewDialer(session.Session{UserID: 2, Token: "tok"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := dialer.Dial(ctx, addr, store.ConversationID(), store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	select {
	case conn := <-p.conns:
		return s, conn
	case <-time.After(2 * time.Second):
		t.Fatal("peer never accepted connection")
		return nil, nil
	}
}

func TestMalformedFrameIsDroppedAndReaderContinues(t *testing.T) {
	p := newPeer(t)
	store := transcript.NewStore("5")
	s, conn := dialPeer(t, p, store)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":5,"text":"hi","date":"2024-01-01T00:00:00Z"}`)))

	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	msgs := store.Messages()
	require.Equal(t, "hi", msgs[0].Text)
	require.Equal(t, int64(5), msgs[0].SenderID)
	require.Equal(t, models.StateReceived, msgs[0].State)
	require.True(t, s.Ready())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":5,"text":"again","date":"2024-01-01T00:00:01Z"}`)))
	require.Eventually(t, func() bool { return store.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestInvalidFramesAreRejected(t *testing.T) {
	p := newPeer(t)
	store := transcript.NewStore("5")
	_, conn := dialPeer(t, p, store)

	bad := []string{
		`{"sender_id":5,"date":"2024-01-01T00:00:00Z"}`,
		`{"text":"no sender","date":"2024-01-01T00:00:00Z"}`,
		`{"sender_id":5,"text":"no date"}`,
		`{"type":"typing","sender_id":5,"text":"x","date":"2024-01-01T00:00:00Z"}`,
	}
	for _, frame := range bad {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","sender_id":5,"text":"ok","date":"2024-01-01T00:00:00Z"}`)))

	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "ok", store.Messages()[0].Text)
}

func TestSelfEchoIsSuppressed(t *testing.T) {
	p := newPeer(t)
	store := transcript.NewStore("5")
	_, conn := dialPeer(t, p, store)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":2,"text":"mine","date":"2024-01-01T00:00:00Z"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":5,"text":"theirs","date":"2024-01-01T00:00:01Z"}`)))

	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "theirs", store.Messages()[0].Text)
}

func TestDirectFramesFromOtherSendersAreDropped(t *testing.T) {
	p := newPeer(t)
	store := transcript.NewStore("5")
	_, conn := dialPeer(t, p, store)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":9,"receiver_id":2,"text":"from nine","date":"2024-01-01T00:00:00Z"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":5,"receiver_id":2,"text":"from five","date":"2024-01-01T00:00:01Z"}`)))

	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	msgs := store.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "from five", msgs[0].Text)
}

func TestGroupFramesForOtherGroupsAreDropped(t *testing.T) {
	p := newPeer(t)
	store := transcript.NewStore("77")
	_, conn := dialPeerAt(t, p, store, GroupAddress(p.endpoint(), 2, []string{"77", "5", "6"}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":5,"receiver_id":78,"text":"elsewhere","date":"2024-01-01T00:00:00Z"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":5,"receiver_id":77,"text":"here","date":"2024-01-01T00:00:01Z"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sender_id":6,"text":"unlabelled","date":"2024-01-01T00:00:02Z"}`)))

	require.Eventually(t, func() bool { return store.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	msgs := store.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "here", msgs[0].Text)
	require.Equal(t, "unlabelled", msgs[1].Text)
}

func TestAnnounceWritesFrameWithBearerToken(t *testing.T) {
	p := newPeer(t)
	s, _ := dialPeer(t, p, transcript.NewStore("5"))
	require.Equal(t, "Bearer tok", (<-p.header).Get("Authorization"))

	frame := models.Frame{Type: models.FrameTypeMessage, SenderID: 2, ReceiverID: 5, Text: "hey", Date: time.Now().UTC()}
	require.NoError(t, s.Announce(context.Background(), frame))

	select {
	case data := <-p.received:
		got, err := models.DecodeFrame(data)
		require.NoError(t, err)
		require.Equal(t, "hey", got.Text)
		require.Equal(t, int64(5), got.ReceiverID)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
}

func TestAnnounceAfterCloseIsSkipped(t *testing.T) {
	p := newPeer(t)
	s, _ := dialPeer(t, p, transcript.NewStore("5"))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.False(t, s.Ready())

	err := s.Announce(context.Background(), models.Frame{SenderID: 2, Text: "late", Date: time.Now()})
	require.ErrorIs(t, err, ErrNotReady)
}

func TestRemoteCloseMarksSessionNotReady(t *testing.T) {
	p := newPeer(t)
	s, conn := dialPeer(t, p, transcript.NewStore("5"))

	require.NoError(t, conn.Close())
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
	require.False(t, s.Ready())
}
