package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, channelKey string, senderID, receiverID int64, text string, postID int64) (models.StoredMessage, error) {
	args := m.Called(ctx, channelKey, senderID, receiverID, text, postID)
	var msg models.StoredMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.StoredMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, channelKey string) ([]models.StoredMessage, error) {
	args := m.Called(ctx, channelKey)
	var msgs []models.StoredMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.StoredMessage)
	}
	return msgs, args.Error(1)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int64, userID int64) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) GetGroupInfo(ctx context.Context, groupID int64) (models.GroupInfo, error) {
	args := m.Called(ctx, groupID)
	var info models.GroupInfo
	if val := args.Get(0); val != nil {
		info = val.(models.GroupInfo)
	}
	return info, args.Error(1)
}

type GroupInfoFetcherMock struct {
	mock.Mock
}

func (m *GroupInfoFetcherMock) GroupInfo(ctx context.Context, groupID string) (models.GroupInfo, error) {
	args := m.Called(ctx, groupID)
	var info models.GroupInfo
	if val := args.Get(0); val != nil {
		info = val.(models.GroupInfo)
	}
	return info, args.Error(1)
}

type PersisterMock struct {
	mock.Mock
}

func (m *PersisterMock) CreateMessage(ctx context.Context, conv models.Conversation, text string, postID int64) error {
	args := m.Called(ctx, conv, text, postID)
	return args.Error(0)
}

type AnnouncerMock struct {
	mock.Mock
}

func (m *AnnouncerMock) Ready() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *AnnouncerMock) Announce(ctx context.Context, frame models.Frame) error {
	args := m.Called(ctx, frame)
	return args.Error(0)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ interface {
	GroupInfo(context.Context, string) (models.GroupInfo, error)
} = (*GroupInfoFetcherMock)(nil)
var _ interface {
	CreateMessage(context.Context, models.Conversation, string, int64) error
} = (*PersisterMock)(nil)
var _ interface {
	Ready() bool
	Announce(context.Context, models.Frame) error
} = (*AnnouncerMock)(nil)
