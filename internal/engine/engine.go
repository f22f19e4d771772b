package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"chat-sync/internal/lifecycle"
	"chat-sync/internal/membership"
	"chat-sync/internal/models"
	"chat-sync/internal/session"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/transcript"
	"chat-sync/internal/transport"
)

var (
	// ErrNotOpen is returned by Send and Updates when no conversation is open.
	ErrNotOpen = errors.New("engine: no open conversation")
	// ErrInvalidConversation is returned by Open for ids the persistence API cannot address.
	ErrInvalidConversation = errors.New("engine: conversation id must be a positive integer")
)

// API is the persistence API the engine consumes.
type API interface {
	History(ctx context.Context, conv models.Conversation) ([]models.Frame, error)
	CreateMessage(ctx context.Context, conv models.Conversation, text string, postID int64) error
	GroupInfo(ctx context.Context, groupID string) (models.GroupInfo, error)
}

// Dialer opens transport sessions.
type Dialer interface {
	Dial(ctx context.Context, addr transport.Address, conversationID string, sink transport.Sink) (*transport.Session, error)
}

// Engine keeps the transcript of the currently open conversation in sync.
type Engine struct {
	session  session.Session
	api      API
	dialer   Dialer
	resolver *membership.Resolver
	endpoint string
	audit    *telemetry.AuditEmitter

	mu         sync.Mutex
	conv       models.Conversation
	store      *transcript.Store
	controller *lifecycle.Controller
	stream     *transport.Session
	pending    sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithAudit attaches an audit emitter to every conversation's send path.
func WithAudit(audit *telemetry.AuditEmitter) Option {
	return func(e *Engine) { e.audit = audit }
}

// New constructs an Engine. endpoint is the streaming connection URL, e.g. ws://host:5500/ws.
func New(sess session.Session, api API, dialer Dialer, endpoint string, opts ...Option) *Engine {
	e := &Engine{
		session:  sess,
		api:      api,
		dialer:   dialer,
		resolver: membership.NewResolver(api, sess),
		endpoint: endpoint,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open makes conv the current conversation. Any previous conversation is closed first. The
// returned error reports fetch, membership or dial failures; the conversation is open and
// usable regardless, with whatever parts succeeded.
func (e *Engine) Open(ctx context.Context, conv models.Conversation) error {
	if id, err := strconv.ParseInt(conv.ID, 10, 64); err != nil || id <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidConversation, conv.ID)
	}
	e.Close()

	store := transcript.NewStore(conv.ID)
	controller := lifecycle.NewController(conv, e.session, store, e.api,
		lifecycle.WithAnnouncer(e.announcerFor(store)),
		lifecycle.WithAudit(e.audit),
	)

	e.mu.Lock()
	e.conv = conv
	e.store = store
	e.controller = controller
	e.mu.Unlock()

	var errs []error
	if err := e.loadSnapshot(ctx, conv, store); err != nil {
		errs = append(errs, err)
	}

	addr, err := e.address(ctx, conv)
	if err != nil {
		log.Printf("transport not opened conversation=%s: %v", conv.ID, err)
		return errors.Join(append(errs, err)...)
	}

	stream, err := e.dialer.Dial(ctx, addr, conv.ID, store)
	if err != nil {
		log.Printf("transport not opened conversation=%s: %v", conv.ID, err)
		return errors.Join(append(errs, err)...)
	}

	e.mu.Lock()
	if e.store != store {
		// closed or switched while dialing
		e.mu.Unlock()
		_ = stream.Close()
		return errors.Join(errs...)
	}
	e.stream = stream
	e.mu.Unlock()

	log.Printf("conversation opened id=%s kind=%s addr=%s", conv.ID, conv.Kind, addr.Key())
	return errors.Join(errs...)
}

func (e *Engine) loadSnapshot(ctx context.Context, conv models.Conversation, store *transcript.Store) error {
	frames, err := e.api.History(ctx, conv)
	if err != nil {
		log.Printf("history fetch failed conversation=%s: %v", conv.ID, err)
		return err
	}
	msgs := make([]models.Message, 0, len(frames))
	for _, f := range frames {
		state := models.StateReceived
		if f.SenderID == e.session.UserID {
			state = models.StateSent
		}
		msgs = append(msgs, f.ToMessage(conv.ID, state))
	}
	store.AppendSnapshot(msgs)
	return nil
}

func (e *Engine) address(ctx context.Context, conv models.Conversation) (transport.Address, error) {
	if conv.Kind != models.KindGroup {
		return transport.DirectAddress(e.endpoint, e.session.UserID, conv.ID), nil
	}
	participants, err := e.resolver.Resolve(ctx, conv.ID)
	if err != nil {
		return transport.Address{}, err
	}
	return transport.GroupAddress(e.endpoint, e.session.UserID, participants), nil
}

// announcerFor returns the transport session lookup bound to one conversation's store, so a
// send completing after a switch never announces on another conversation's connection.
func (e *Engine) announcerFor(store *transcript.Store) func() lifecycle.Announcer {
	return func() lifecycle.Announcer {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.store != store || e.stream == nil {
			return nil
		}
		return e.stream
	}
}

// Send inserts the optimistic entry and returns it. Persistence and announcement finish in
// the background and are not cancelled by Close or by opening another conversation.
func (e *Engine) Send(ctx context.Context, text string) (models.Message, error) {
	return e.SendPost(ctx, text, 0)
}

// SendPost is Send for a shared post with an optional caption.
func (e *Engine) SendPost(ctx context.Context, text string, postID int64) (models.Message, error) {
	e.mu.Lock()
	controller := e.controller
	e.mu.Unlock()
	if controller == nil {
		return models.Message{}, ErrNotOpen
	}

	msg, err := controller.BeginPost(text, postID)
	if err != nil {
		return models.Message{}, err
	}

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		_, _ = controller.Complete(context.WithoutCancel(ctx), msg)
	}()
	return msg, nil
}

// Updates streams transcript updates of the open conversation in order. The channel closes
// when the conversation is closed or ctx ends; call again after reopening.
func (e *Engine) Updates(ctx context.Context) (<-chan transcript.Update, error) {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()
	if store == nil {
		return nil, ErrNotOpen
	}
	return store.Subscribe(ctx), nil
}

// Transcript returns the open conversation's messages in render order.
func (e *Engine) Transcript() []models.Message {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Messages()
}

// Conversation returns the open conversation.
func (e *Engine) Conversation() (models.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv, e.store != nil
}

// TransportReady reports whether the open conversation has a usable connection.
func (e *Engine) TransportReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream.Ready()
}

// Close releases the transport session and ends update streams. Safe to call repeatedly.
func (e *Engine) Close() error {
	e.mu.Lock()
	stream, store, conv := e.stream, e.store, e.conv
	e.stream, e.store, e.controller = nil, nil, nil
	e.conv = models.Conversation{}
	e.mu.Unlock()

	if store != nil {
		store.Close()
	}
	if stream == nil {
		return nil
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close transport of %s: %w", conv.ID, err)
	}
	return nil
}

// Wait blocks until every in-flight send has resolved.
func (e *Engine) Wait() {
	e.pending.Wait()
}
