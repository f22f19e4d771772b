package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/session"
)

// ErrNotReady is returned by Announce when the connection is not open.
var ErrNotReady = errors.New("transport: connection not open")

const writeTimeout = 10 * time.Second

// Sink receives decoded frames. The transcript store satisfies it.
type Sink interface {
	AppendLive(msg models.Message)
}

// Dialer opens streaming connections on behalf of one session.
type Dialer struct {
	dialer  *websocket.Dialer
	session session.Session
}

// NewDialer constructs a Dialer. A nil dialer uses websocket.DefaultDialer.
func NewDialer(sess session.Session, dialer *websocket.Dialer) *Dialer {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Dialer{dialer: dialer, session: sess}
}

// Dial opens the connection for addr and starts delivering inbound frames of conversationID
// into sink.
func (d *Dialer) Dial(ctx context.Context, addr Address, conversationID string, sink Sink) (*Session, error) {
	target, err := addr.URL()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", d.session.Authorization())

	conn, resp, err := d.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", addr.Key(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", addr.Key(), err)
	}

	s := newSession(conn, addr, conversationID, d.session.UserID, sink)
	observability.IncTransportSessions()
	go s.readLoop()
	return s, nil
}

// Session is one open streaming connection bound to one conversation.
type Session struct {
	conn           *websocket.Conn
	addr           Address
	conversationID string
	localUserID    int64
	sink           Sink

	open      atomic.Bool
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, addr Address, conversationID string, localUserID int64, sink Sink) *Session {
	s := &Session{
		conn:           conn,
		addr:           addr,
		conversationID: conversationID,
		localUserID:    localUserID,
		sink:           sink,
		done:           make(chan struct{}),
	}
	s.open.Store(true)
	return s
}

// Address returns the address the session was opened with.
func (s *Session) Address() Address {
	return s.addr
}

// Ready reports whether announcements can be written.
func (s *Session) Ready() bool {
	return s != nil && s.open.Load()
}

// Done is closed once the read loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Announce writes one frame. It never blocks past ctx's deadline or writeTimeout.
func (s *Session) Announce(ctx context.Context, frame models.Frame) error {
	if !s.Ready() {
		return ErrNotReady
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("transport write error addr=%s: %v", s.addr.Key(), err)
		return fmt.Errorf("transport: write: %w", err)
	}
	observability.IncFrame("announced")
	return nil
}

// Close releases the connection. Safe to call more than once and from any exit path.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		s.open.Store(false)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
		<-s.done
		observability.DecTransportSessions()
	})
	return err
}

func (s *Session) readLoop() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.open.Swap(false) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("transport read error addr=%s: %v", s.addr.Key(), err)
			}
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame applies one inbound frame. A bad frame is dropped without affecting later ones.
func (s *Session) handleFrame(data []byte) {
	frame, err := models.DecodeFrame(data)
	if err != nil {
		observability.IncFrame("dropped")
		log.Printf("transport frame dropped conversation=%s: %v", s.conversationID, err)
		return
	}
	if frame.SenderID == s.localUserID {
		observability.IncFrame("self_echo")
		return
	}
	if !s.belongs(frame) {
		observability.IncFrame("foreign")
		log.Printf("transport frame foreign conversation=%s sender=%d receiver=%d", s.conversationID, frame.SenderID, frame.ReceiverID)
		return
	}
	s.sink.AppendLive(frame.ToMessage(s.conversationID, models.StateReceived))
	observability.IncFrame("applied")
}

// belongs reports whether frame is part of this session's conversation. Direct frames must come
// from the counterpart; group frames must name this group when they name one.
func (s *Session) belongs(frame models.Frame) bool {
	if s.addr.IsGroup() {
		return frame.ReceiverID == 0 || strconv.FormatInt(frame.ReceiverID, 10) == s.addr.Members[0]
	}
	return strconv.FormatInt(frame.SenderID, 10) == s.addr.TargetID
}
