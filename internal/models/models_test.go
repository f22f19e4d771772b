package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversationConstructors(t *testing.T) {
	direct := Direct(42, "bob")
	require.Equal(t, Conversation{ID: "42", Kind: KindDirect, CounterpartLabel: "bob"}, direct)
	require.Equal(t, "user", direct.PathSegment())

	group := Group("7", "team")
	require.Equal(t, Conversation{ID: "7", Kind: KindGroup, CounterpartLabel: "team"}, group)
	require.Equal(t, "group", group.PathSegment())
}

func TestDecodeFrameAcceptsPostWithoutText(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"sender_id":3,"receiver_id":7,"post_id":55,"date":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)

	msg := frame.ToMessage("7", StateReceived)
	require.Equal(t, int64(55), msg.PostID)
	require.Empty(t, msg.Text)
	require.True(t, msg.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	_, err = DecodeFrame([]byte(`{"sender_id":3,"date":"2024-01-01T00:00:00Z"}`))
	require.ErrorIs(t, err, ErrFrameContent)
}
