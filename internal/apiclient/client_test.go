package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
	"chat-sync/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, session.Session{UserID: 3, Token: "tok"}, srv.Client())
}

func TestHistoryDropsInvalidRecords(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/user/42", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[
			{"id":1,"sender_id":3,"receiver_id":42,"text":"hi","date":"2024-01-01T00:00:00Z"},
			{"sender_id":0,"text":"broken","date":"2024-01-01T00:00:00Z"},
			{"sender_id":42,"post_id":8,"date":"2024-01-01T00:01:00Z"}
		]}`))
	})

	frames, err := client.History(context.Background(), models.Direct(42, "bob"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, int64(1), frames[0].ID)
	require.Equal(t, int64(8), frames[1].PostID)
}

func TestHistoryNullData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	})

	frames, err := client.History(context.Background(), models.Group("7", "team"))
	require.NoError(t, err)
	require.Empty(t, frames)
}

func TestCreateMessageSendsPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/group/7", r.URL.Path)
		var body createMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, createMessageRequest{SenderID: 3, ReceiverID: 7, Text: "yo"}, body)
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, client.CreateMessage(context.Background(), models.Group("7", "team"), "yo", 0))
}

func TestCreateMessageStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := client.CreateMessage(context.Background(), models.Direct(42, "bob"), "hello", 0)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestGroupInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/groups/G/info", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"admin":{"id":1,"username":"ann"},"members":[{"id":2,"username":"bo"}]}}`))
	})

	info, err := client.GroupInfo(context.Background(), "G")
	require.NoError(t, err)
	require.Equal(t, models.Member{ID: 1, Username: "ann"}, info.Admin)
	require.Len(t, info.Members, 1)
}
