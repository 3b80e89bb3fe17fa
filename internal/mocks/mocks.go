package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/attachments"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/storage"
)

// ConversationRepositoryMock mocks repositories.ConversationRepository.
type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetOrCreate(ctx context.Context, userA, userB int) (models.Conversation, bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(models.Conversation), args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).(models.Conversation), args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

// MessageRepositoryMock mocks repositories.MessageRepository.
type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, conversationID, senderID int, text string, att *attachments.Reference) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, text, att)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) List(ctx context.Context, conversationID, beforeID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, beforeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conversationID, readerID int) (int64, error) {
	args := m.Called(ctx, conversationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) CountUnread(ctx context.Context, conversationID, userID int) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) CountUnreadSent(ctx context.Context, conversationID, userID int) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

// UserRepositoryMock mocks repositories.UserRepository.
type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Get(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *UserRepositoryMock) BulkGet(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *UserRepositoryMock) TouchPresence(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetPresence(ctx context.Context, userID int) (models.Presence, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.Presence), args.Error(1)
}

// BlobStoreMock mocks storage.BlobStore.
type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Save(ctx context.Context, name string, data []byte) (string, error) {
	args := m.Called(ctx, name, data)
	return args.String(0), args.Error(1)
}

// RoomPublisherMock mocks room event fan-out.
type RoomPublisherMock struct {
	mock.Mock
}

func (m *RoomPublisherMock) Publish(ctx context.Context, ev models.RoomEvent) {
	m.Called(ctx, ev)
}

// AttachmentProcessorMock mocks the attachment pipeline.
type AttachmentProcessorMock struct {
	mock.Mock
}

func (m *AttachmentProcessorMock) Process(ctx context.Context, up attachments.Upload) (*attachments.Reference, error) {
	args := m.Called(ctx, up)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*attachments.Reference), args.Error(1)
}

var (
	_ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
	_ repositories.MessageRepository      = (*MessageRepositoryMock)(nil)
	_ repositories.UserRepository         = (*UserRepositoryMock)(nil)
	_ storage.BlobStore                   = (*BlobStoreMock)(nil)
)
