package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-sync/internal/models"
	"chat-sync/internal/session"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the history, create-message and group-info endpoints on behalf of one
// session.
type Client struct {
	baseURL string
	http    *http.Client
	session session.Session
}

// New constructs a Client. A nil httpClient gets a 10s timeout default.
func New(baseURL string, sess session.Session, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient, session: sess}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

type createMessageRequest struct {
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Text       string `json:"text,omitempty"`
	PostID     int64  `json:"post_id,omitempty"`
}

// History fetches the persisted messages of a conversation. Records that fail validation are
// dropped.
func (c *Client) History(ctx context.Context, conv models.Conversation) ([]models.Frame, error) {
	ctx, span := otel.Tracer("chat-sync/apiclient").Start(ctx, "apiclient.history")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conv.ID), attribute.String("conversation.kind", string(conv.Kind)))

	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/chat/"+conv.PathSegment()+"/"+conv.ID, nil, &raw); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	frames := make([]models.Frame, 0, len(raw))
	for _, r := range raw {
		f, err := models.DecodeFrame(r)
		if err != nil {
			log.Printf("history record dropped conversation=%s: %v", conv.ID, err)
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// CreateMessage persists a message authored by the session user.
func (c *Client) CreateMessage(ctx context.Context, conv models.Conversation, text string, postID int64) error {
	ctx, span := otel.Tracer("chat-sync/apiclient").Start(ctx, "apiclient.create_message")
	defer span.End()

	receiverID, err := strconv.ParseInt(conv.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("create message: invalid conversation id %q", conv.ID)
	}
	body := createMessageRequest{
		SenderID:   c.session.UserID,
		ReceiverID: receiverID,
		Text:       text,
		PostID:     postID,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/chat/"+conv.PathSegment()+"/"+conv.ID, body, nil); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// GroupInfo fetches the admin and members of a group.
func (c *Client) GroupInfo(ctx context.Context, groupID string) (models.GroupInfo, error) {
	ctx, span := otel.Tracer("chat-sync/apiclient").Start(ctx, "apiclient.group_info")
	defer span.End()

	var info models.GroupInfo
	if err := c.do(ctx, http.MethodGet, "/v1/groups/"+groupID+"/info", nil, &info); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.GroupInfo{}, fmt.Errorf("fetch group info: %w", err)
	}
	return info, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.session.Authorization())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
