package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/serializers"
)

// ConversationHandler serves the conversation list and detail endpoints.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
}

func NewConversationHandler(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		users:         users,
	}
}

// ListConversations returns the caller's conversations, most recently
// active first, each with unread counters and the cached last message.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	convs, err := h.conversations.ListForUser(ctx, userID)
	if err != nil {
		log.Printf("conversations: list for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	participantIDs := lo.Uniq(lo.FlatMap(convs, func(conv models.Conversation, _ int) []int {
		return []int{conv.User1ID, conv.User2ID}
	}))
	usersByID, err := h.loadUsers(ctx, participantIDs)
	if err != nil {
		log.Printf("conversations: load participants: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	views := make([]serializers.ConversationView, 0, len(convs))
	for _, conv := range convs {
		view, err := h.conversationView(ctx, conv, userID, usersByID)
		if err != nil {
			log.Printf("conversations: build view for %d: %v", conv.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
			return
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, views)
}

type startConversationRequest struct {
	UserID int `json:"user_id" binding:"required"`
}

// StartConversation finds or creates the 1:1 thread with another user.
// 200 for an existing thread, 201 when this call created it.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	if _, err := h.users.Get(ctx, req.UserID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.Printf("conversations: lookup user %d: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start conversation"})
		return
	}

	conv, created, err := h.conversations.GetOrCreate(ctx, userID, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrSelfConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
			return
		}
		log.Printf("conversations: get or create for users %d/%d: %v", userID, req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start conversation"})
		return
	}

	usersByID, err := h.loadUsers(ctx, []int{conv.User1ID, conv.User2ID})
	if err != nil {
		log.Printf("conversations: load participants: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start conversation"})
		return
	}

	view, err := h.conversationView(ctx, conv, userID, usersByID)
	if err != nil {
		log.Printf("conversations: build view for %d: %v", conv.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start conversation"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, view)
}

// GetConversation returns one conversation the caller participates in.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	conv, err := h.conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		log.Printf("conversations: get %d: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
		return
	}

	usersByID, err := h.loadUsers(ctx, []int{conv.User1ID, conv.User2ID})
	if err != nil {
		log.Printf("conversations: load participants: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	view, err := h.conversationView(ctx, conv, userID, usersByID)
	if err != nil {
		log.Printf("conversations: build view for %d: %v", conv.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *ConversationHandler) loadUsers(ctx context.Context, ids []int) (map[int]models.User, error) {
	users, err := h.users.BulkGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(users, func(u models.User) int { return u.ID }), nil
}

func (h *ConversationHandler) conversationView(ctx context.Context, conv models.Conversation, userID int, usersByID map[int]models.User) (serializers.ConversationView, error) {
	view := serializers.ConversationView{
		ID:        conv.ID,
		User1:     serializers.NewUserSummary(usersByID[conv.User1ID]),
		User2:     serializers.NewUserSummary(usersByID[conv.User2ID]),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}

	unread, err := h.messages.CountUnread(ctx, conv.ID, userID)
	if err != nil {
		return serializers.ConversationView{}, err
	}
	view.UnreadCount = unread

	unreadSent, err := h.messages.CountUnreadSent(ctx, conv.ID, userID)
	if err != nil {
		return serializers.ConversationView{}, err
	}
	view.UnreadSentCount = unreadSent

	if conv.LastMessageID != nil {
		msg, err := h.messages.Get(ctx, *conv.LastMessageID)
		if err != nil {
			return serializers.ConversationView{}, err
		}
		sender, ok := usersByID[msg.SenderID]
		if !ok {
			loaded, err := h.users.Get(ctx, msg.SenderID)
			if err != nil {
				return serializers.ConversationView{}, err
			}
			sender = loaded
		}
		last := serializers.NewMessageView(msg, sender)
		view.LastMessage = &last
	}
	return view, nil
}
