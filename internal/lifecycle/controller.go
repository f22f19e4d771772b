package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/session"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/transcript"
)

// ErrEmptyMessage is returned when the text trims to nothing and no post is attached. Nothing
// is inserted.
var ErrEmptyMessage = errors.New("lifecycle: empty message")

// Persister stores a message through the create-message endpoint.
type Persister interface {
	CreateMessage(ctx context.Context, conv models.Conversation, text string, postID int64) error
}

// Announcer pushes a persisted message to the other participants.
type Announcer interface {
	Ready() bool
	Announce(ctx context.Context, frame models.Frame) error
}

// Transcript is the part of the transcript store the controller mutates.
type Transcript interface {
	BeginOptimistic(msg models.Message) error
	Resolve(tempID string, outcome transcript.Outcome) error
}

// Controller drives locally authored messages of one conversation through
// sending -> sent | failed.
type Controller struct {
	conv      models.Conversation
	session   session.Session
	store     Transcript
	persister Persister
	announcer func() Announcer
	audit     *telemetry.AuditEmitter
	now       func() time.Time
	newID     func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithAnnouncer sets the lookup for the conversation's current transport session. It is
// consulted after each successful persist, so a session opened later is still used.
func WithAnnouncer(lookup func() Announcer) Option {
	return func(c *Controller) { c.announcer = lookup }
}

// WithAudit emits one audit record per send outcome.
func WithAudit(audit *telemetry.AuditEmitter) Option {
	return func(c *Controller) { c.audit = audit }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator overrides temporary id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// NewController constructs a Controller for one open conversation.
func NewController(conv models.Conversation, sess session.Session, store Transcript, persister Persister, opts ...Option) *Controller {
	c := &Controller{
		conv:      conv,
		session:   sess,
		store:     store,
		persister: persister,
		announcer: func() Announcer { return nil },
		now:       time.Now,
		newID:     NewTempID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTempID returns a time-ordered id that is never reused within a process.
func NewTempID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "tmp-" + uuid.NewString()
	}
	return "tmp-" + id.String()
}

// Send inserts the optimistic entry, persists it and announces it on success.
func (c *Controller) Send(ctx context.Context, text string) (models.Message, error) {
	msg, err := c.Begin(text)
	if err != nil {
		return models.Message{}, err
	}
	msg.State, err = c.Complete(ctx, msg)
	return msg, err
}

// SendPost shares postID into the conversation with an optional caption.
func (c *Controller) SendPost(ctx context.Context, text string, postID int64) (models.Message, error) {
	msg, err := c.BeginPost(text, postID)
	if err != nil {
		return models.Message{}, err
	}
	msg.State, err = c.Complete(ctx, msg)
	return msg, err
}

// Begin validates the text and inserts the sending entry. It does no network I/O.
func (c *Controller) Begin(text string) (models.Message, error) {
	return c.BeginPost(text, 0)
}

// BeginPost is Begin for a message that may carry a shared post. At least one of text and
// postID must be set.
func (c *Controller) BeginPost(text string, postID int64) (models.Message, error) {
	text = strings.TrimSpace(text)
	if postID < 0 {
		postID = 0
	}
	if text == "" && postID == 0 {
		return models.Message{}, ErrEmptyMessage
	}

	msg := models.Message{
		ID:             c.newID(),
		ConversationID: c.conv.ID,
		SenderID:       c.session.UserID,
		SenderName:     c.session.Username,
		Text:           text,
		PostID:         postID,
		CreatedAt:      c.now().UTC(),
		State:          models.StateSending,
	}
	if err := c.store.BeginOptimistic(msg); err != nil {
		return models.Message{}, fmt.Errorf("begin optimistic: %w", err)
	}
	return msg, nil
}

// Complete persists msg and resolves its entry. A failed entry stays in the transcript and is
// never retried.
func (c *Controller) Complete(ctx context.Context, msg models.Message) (models.DeliveryState, error) {
	ctx, span := otel.Tracer("chat-sync/lifecycle").Start(ctx, "lifecycle.complete")
	defer span.End()
	span.SetAttributes(attribute.String("message.temp_id", msg.ID), attribute.String("conversation.id", c.conv.ID))

	if err := c.persister.CreateMessage(ctx, c.conv, msg.Text, msg.PostID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Printf("message send failed conversation=%s temp_id=%s: %v", c.conv.ID, msg.ID, err)
		if rerr := c.store.Resolve(msg.ID, transcript.Failed); rerr != nil {
			log.Printf("resolve failed temp_id=%s: %v", msg.ID, rerr)
		}
		observability.IncSend(string(models.StateFailed))
		c.emitAudit(ctx, "ERROR", "message send failed")
		return models.StateFailed, err
	}

	if err := c.store.Resolve(msg.ID, transcript.Confirmed); err != nil {
		log.Printf("resolve confirmed temp_id=%s: %v", msg.ID, err)
	}
	observability.IncSend(string(models.StateSent))
	c.emitAudit(ctx, "INFO", "message sent")

	if a := c.announcer(); a != nil && a.Ready() {
		if err := a.Announce(ctx, models.FrameFromMessage(msg, c.receiverID())); err != nil {
			log.Printf("announce skipped conversation=%s temp_id=%s: %v", c.conv.ID, msg.ID, err)
		}
	}
	return models.StateSent, nil
}

func (c *Controller) receiverID() int64 {
	id, err := strconv.ParseInt(c.conv.ID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (c *Controller) emitAudit(ctx context.Context, level, text string) {
	if c.audit == nil {
		return
	}
	userID := c.session.UserID
	c.audit.Emit(ctx, level, text, "", &userID)
}
