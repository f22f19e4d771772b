package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, "audit.chat", "chat-sync", "test")
	userID := int64(4)

	pub.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.Service == "chat-sync" &&
			env.Environment == "test" &&
			env.RequestID == "req-1" &&
			*env.UserID == 4 &&
			env.Payload == AuditPayload{Level: "ERROR", Text: "message send failed"}
	})).Return(errors.New("broker gone")).Once()

	emitter.Emit(context.Background(), "ERROR", "message send failed", "req-1", &userID)
	pub.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "", nil)
	})
}
