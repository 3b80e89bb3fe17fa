package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/attachments"
	"messaging-service/internal/handlers"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/serializers"
)

type messageFixture struct {
	router        *gin.Engine
	conversations *mocks.ConversationRepositoryMock
	messages      *mocks.MessageRepositoryMock
	users         *mocks.UserRepositoryMock
	pipeline      *mocks.AttachmentProcessorMock
	rooms         *mocks.RoomPublisherMock
}

func newMessageFixture(userID int) *messageFixture {
	gin.SetMode(gin.TestMode)

	f := &messageFixture{
		conversations: new(mocks.ConversationRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
		users:         new(mocks.UserRepositoryMock),
		pipeline:      new(mocks.AttachmentProcessorMock),
		rooms:         new(mocks.RoomPublisherMock),
	}
	f.rooms.On("Publish", mock.Anything, mock.Anything).Maybe()
	handler := handlers.NewMessageHandler(f.conversations, f.messages, f.users, f.pipeline, f.rooms)

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) { c.Set("userID", userID) })
	f.router.GET("/conversations/:conversation_id/messages", handler.GetMessages)
	f.router.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	f.router.POST("/conversations/:conversation_id/read", handler.MarkAllRead)
	return f
}

func (f *messageFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *messageFixture) memberOf(conversationID int) {
	f.conversations.On("Get", mock.Anything, conversationID).
		Return(fixtureConversation(conversationID, 1, 2), nil)
}

func TestGetMessagesPage(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	msgs := []models.Message{
		{ID: 12, ConversationID: 7, SenderID: 2, Text: "newer", CreatedAt: time.Now()},
		{ID: 11, ConversationID: 7, SenderID: 1, Text: "older", CreatedAt: time.Now()},
	}
	f.messages.On("List", mock.Anything, 7, 0, repositories.DefaultPageSize).Return(msgs, nil)
	f.users.On("BulkGet", mock.Anything, []int{2, 1}).
		Return([]models.User{fixtureUser(1, "alice"), fixtureUser(2, "bob")}, nil)

	w := f.do(http.MethodGet, "/conversations/7/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var views []serializers.MessageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "newer", views[0].Text)
	assert.Equal(t, 2, views[0].Sender.ID)
	assert.Equal(t, "older", views[1].Text)
}

func TestGetMessagesBeforeCursor(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	f.messages.On("List", mock.Anything, 7, 11, 5).Return([]models.Message{}, nil)
	f.users.On("BulkGet", mock.Anything, []int{}).Return([]models.User{}, nil)

	w := f.do(http.MethodGet, "/conversations/7/messages?before=11&page_size=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	f.messages.AssertExpectations(t)
}

func TestGetMessagesForbiddenForOutsider(t *testing.T) {
	f := newMessageFixture(9)
	f.memberOf(7)

	w := f.do(http.MethodGet, "/conversations/7/messages", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPostMessagePersistsAndReturnsView(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	stored := models.Message{ID: 42, ConversationID: 7, SenderID: 1, Text: "hi", CreatedAt: time.Now()}
	f.messages.On("Create", mock.Anything, 7, 1, "hi", (*attachments.Reference)(nil)).
		Return(stored, nil).Once()
	f.users.On("Get", mock.Anything, 1).Return(fixtureUser(1, "alice"), nil)

	w := f.do(http.MethodPost, "/conversations/7/messages", gin.H{"text": "hi"})
	require.Equal(t, http.StatusCreated, w.Code)

	var view serializers.MessageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, 42, view.ID)
	assert.Equal(t, "hi", view.Text)
	assert.False(t, view.IsRead)
	f.messages.AssertExpectations(t)
}

func TestPostMessageWithAttachment(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	ref := &attachments.Reference{
		URL:    "http://cdn/media/images/x_pic.png",
		Type:   attachments.TypeImage,
		Source: attachments.SourceMedia,
		Name:   "x_pic.png",
	}
	f.pipeline.On("Process", mock.Anything, attachments.Upload{
		Data:     "aGVsbG8=",
		FileName: "pic.png",
		TypeHint: "image",
	}).Return(ref, nil).Once()

	fileURL := ref.URL
	fileType := ref.Type
	stored := models.Message{
		ID: 43, ConversationID: 7, SenderID: 1,
		FileURL: &fileURL, FileType: &fileType, CreatedAt: time.Now(),
	}
	f.messages.On("Create", mock.Anything, 7, 1, "", ref).Return(stored, nil).Once()
	f.users.On("Get", mock.Anything, 1).Return(fixtureUser(1, "alice"), nil)

	w := f.do(http.MethodPost, "/conversations/7/messages", gin.H{
		"file_base64": "aGVsbG8=",
		"file_name":   "pic.png",
		"file_type":   "image",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var view serializers.MessageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.NotNil(t, view.Attachment)
	assert.Equal(t, attachments.TypeImage, view.Attachment.Type)
	f.pipeline.AssertExpectations(t)
}

func TestPostMessageEmptyBody(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	w := f.do(http.MethodPost, "/conversations/7/messages", gin.H{"text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageInvalidAttachment(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	f.pipeline.On("Process", mock.Anything, mock.Anything).
		Return(nil, attachments.ErrInvalidPayload).Once()

	w := f.do(http.MethodPost, "/conversations/7/messages", gin.H{"file_base64": "!!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageUploadFailure(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	f.pipeline.On("Process", mock.Anything, mock.Anything).
		Return(nil, attachments.ErrUploadFailed).Once()

	w := f.do(http.MethodPost, "/conversations/7/messages", gin.H{"file_base64": "aGVsbG8="})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkAllRead(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	f.messages.On("MarkRead", mock.Anything, 7, 1).Return(int64(3), nil).Once()

	w := f.do(http.MethodPost, "/conversations/7/read", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ConversationID int   `json:"conversation_id"`
		MarkedRead     int64 `json:"marked_read"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.ConversationID)
	assert.Equal(t, int64(3), resp.MarkedRead)
}

func TestMarkAllReadIdempotent(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	f.messages.On("MarkRead", mock.Anything, 7, 1).Return(int64(0), nil)

	w := f.do(http.MethodPost, "/conversations/7/read", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		MarkedRead int64 `json:"marked_read"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.MarkedRead)
}

func TestMarkAllReadBroadcastsWithNothingToFlip(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	// Rows already read: the receipt still goes out so a peer that missed
	// the first one can recover.
	f.messages.On("MarkRead", mock.Anything, 7, 1).Return(int64(0), nil)

	w := f.do(http.MethodPost, "/conversations/7/read", nil)
	require.Equal(t, http.StatusOK, w.Code)

	f.rooms.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev models.RoomEvent) bool {
		return ev.Kind == models.EventReadReceipt && ev.ConversationID == 7 && ev.UserID == 1
	}))
}

func TestPostMessagePublishesToRoom(t *testing.T) {
	f := newMessageFixture(1)
	f.memberOf(7)

	stored := models.Message{ID: 44, ConversationID: 7, SenderID: 1, Text: "yo", CreatedAt: time.Now()}
	f.messages.On("Create", mock.Anything, 7, 1, "yo", (*attachments.Reference)(nil)).
		Return(stored, nil).Once()
	f.users.On("Get", mock.Anything, 1).Return(fixtureUser(1, "alice"), nil)

	w := f.do(http.MethodPost, "/conversations/7/messages", gin.H{"text": "yo"})
	require.Equal(t, http.StatusCreated, w.Code)

	f.rooms.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev models.RoomEvent) bool {
		return ev.Kind == models.EventMessage && ev.ConversationID == 7 && ev.UserID == 1
	}))
}

func TestMessagesConversationNotFound(t *testing.T) {
	f := newMessageFixture(1)

	f.conversations.On("Get", mock.Anything, 7).
		Return(models.Conversation{}, repositories.ErrConversationNotFound)

	w := f.do(http.MethodGet, "/conversations/7/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
