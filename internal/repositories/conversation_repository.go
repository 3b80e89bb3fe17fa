package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	GetOrCreate(ctx context.Context, userA, userB int) (models.Conversation, bool, error)
	Get(ctx context.Context, conversationID int) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int) (bool, error)
	ListForUser(ctx context.Context, userID int) ([]models.Conversation, error)
}

// ConversationRepo is the sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, user1_id, user2_id, last_message_id, created_at, updated_at`

// normalizePair orders two participant ids canonically, lower id first.
func normalizePair(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// GetOrCreate returns the conversation between two users, creating it on
// first contact. Concurrent first-time calls from both participants collapse
// to a single row through the unique pair index: the losing insert turns
// into a read of the winner's row instead of an error.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, userA, userB int) (models.Conversation, bool, error) {
	if userA == userB {
		return models.Conversation{}, false, ErrSelfConversation
	}
	user1, user2 := normalizePair(userA, userB)

	var conv models.Conversation
	created := true
	err := r.db.GetContext(ctx, &conv,
		`INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
         ON CONFLICT (user1_id, user2_id) DO NOTHING
         RETURNING `+conversationColumns, user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		created = false
		err = r.db.GetContext(ctx, &conv,
			`SELECT `+conversationColumns+` FROM conversations WHERE user1_id=$1 AND user2_id=$2`,
			user1, user2)
	}
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, created, nil
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`,
		conversationID, userID)
	return exists, err
}

// ListForUser returns the user's conversations, most recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs,
		`SELECT `+conversationColumns+` FROM conversations
         WHERE user1_id=$1 OR user2_id=$1
         ORDER BY updated_at DESC`, userID)
	return convs, err
}
