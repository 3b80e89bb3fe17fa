package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"messaging-service/internal/attachments"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/serializers"
	"messaging-service/internal/ws"
)

// RoomPublisher fans a room event out to the conversation's live sessions.
type RoomPublisher interface {
	Publish(ctx context.Context, ev models.RoomEvent)
}

// MessageHandler serves message history and the REST send path. Messages
// sent over HTTP still fan out to live websocket sessions through the hub.
type MessageHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	pipeline      ws.AttachmentProcessor
	rooms         RoomPublisher
}

func NewMessageHandler(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	pipeline ws.AttachmentProcessor,
	rooms RoomPublisher,
) *MessageHandler {
	return &MessageHandler{
		conversations: conversations,
		messages:      messages,
		users:         users,
		pipeline:      pipeline,
		rooms:         rooms,
	}
}

// GetMessages returns a reverse-chronological page of messages. Pass
// before=<message_id> to page further back; page_size caps at 100.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()

	conversationID, ok := h.authorizedConversation(c)
	if !ok {
		return
	}

	beforeID, _ := strconv.Atoi(c.DefaultQuery("before", "0"))
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(repositories.DefaultPageSize)))
	if err != nil || pageSize <= 0 {
		pageSize = repositories.DefaultPageSize
	}

	msgs, err := h.messages.List(ctx, conversationID, beforeID, pageSize)
	if err != nil {
		log.Printf("messages: list for conversation %d: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := lo.Uniq(lo.Map(msgs, func(m models.Message, _ int) int { return m.SenderID }))
	senders, err := h.users.BulkGet(ctx, senderIDs)
	if err != nil {
		log.Printf("messages: load senders: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	sendersByID := lo.KeyBy(senders, func(u models.User) int { return u.ID })

	views := lo.Map(msgs, func(m models.Message, _ int) serializers.MessageView {
		return serializers.NewMessageView(m, sendersByID[m.SenderID])
	})

	c.JSON(http.StatusOK, views)
}

type postMessageRequest struct {
	Text       string `json:"text"`
	FileBase64 string `json:"file_base64"`
	FileName   string `json:"file_name"`
	FileType   string `json:"file_type"`
}

// PostMessage persists a message through the REST path and broadcasts it
// to the conversation's live sessions.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	conversationID, ok := h.authorizedConversation(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Text == "" && req.FileBase64 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must contain text or file"})
		return
	}

	var att *attachments.Reference
	if req.FileBase64 != "" {
		var err error
		att, err = h.pipeline.Process(ctx, attachments.Upload{
			Data:     req.FileBase64,
			FileName: req.FileName,
			TypeHint: req.FileType,
		})
		if err != nil {
			switch {
			case errors.Is(err, attachments.ErrInvalidPayload):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file data"})
			case errors.Is(err, attachments.ErrUploadFailed):
				c.JSON(http.StatusBadGateway, gin.H{"error": "file upload failed"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process file"})
			}
			return
		}
	}

	msg, err := h.messages.Create(ctx, conversationID, userID, req.Text, att)
	if err != nil {
		log.Printf("messages: create in conversation %d: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	sender, err := h.users.Get(ctx, userID)
	if err != nil {
		log.Printf("messages: load sender %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	view := serializers.NewMessageView(msg, sender)
	h.broadcast(c, conversationID, userID, view)
	c.JSON(http.StatusCreated, view)
}

// MarkAllRead marks every incoming message in the conversation as read and
// notifies the room. The receipt goes out even when nothing was flipped, so
// a peer that missed an earlier receipt can be caught up by a repeat call.
func (h *MessageHandler) MarkAllRead(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	conversationID, ok := h.authorizedConversation(c)
	if !ok {
		return
	}

	marked, err := h.messages.MarkRead(ctx, conversationID, userID)
	if err != nil {
		log.Printf("messages: mark read in conversation %d: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages as read"})
		return
	}

	payload, _ := json.Marshal(gin.H{
		"type":    models.EventReadReceipt,
		"user_id": userID,
	})
	h.rooms.Publish(ctx, models.RoomEvent{
		ConversationID: conversationID,
		Kind:           models.EventReadReceipt,
		UserID:         userID,
		Payload:        payload,
	})

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"marked_read":     marked,
	})
}

// authorizedConversation parses the path id and enforces membership. On
// failure the response has already been written.
func (h *MessageHandler) authorizedConversation(c *gin.Context) (int, bool) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}

	conv, err := h.conversations.Get(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return 0, false
		}
		log.Printf("messages: get conversation %d: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return 0, false
	}
	if !conv.HasParticipant(middleware.UserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
		return 0, false
	}
	return conversationID, true
}

func (h *MessageHandler) broadcast(c *gin.Context, conversationID, userID int, view serializers.MessageView) {
	payload, err := json.Marshal(view)
	if err != nil {
		log.Printf("messages: marshal broadcast for %d: %v", view.ID, err)
		return
	}
	h.rooms.Publish(c.Request.Context(), models.RoomEvent{
		ConversationID: conversationID,
		Kind:           models.EventMessage,
		UserID:         userID,
		Payload:        payload,
	})
}
