package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/attachments"
	"messaging-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message must contain text or an attachment")
)

// Message listing defaults consumed by the history API.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, conversationID, senderID int, text string, att *attachments.Reference) (models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	List(ctx context.Context, conversationID, beforeID, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID int) (int64, error)
	CountUnread(ctx context.Context, conversationID, userID int) (int, error)
	CountUnreadSent(ctx context.Context, conversationID, userID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, text, file_url, file_type, file_source, file_name, is_read, read_at, created_at, updated_at`

// Create stores a message and refreshes the owning conversation's cached
// last-message pointer and updated_at in the same transaction. A message
// must carry text, an attachment, or both.
func (r *MessageRepo) Create(ctx context.Context, conversationID, senderID int, text string, att *attachments.Reference) (models.Message, error) {
	if text == "" && att == nil {
		return models.Message{}, ErrEmptyMessage
	}

	var fileURL, fileType, fileSource, fileName *string
	if att != nil {
		fileURL = &att.URL
		fileType = &att.Type
		fileSource = &att.Source
		fileName = &att.Name
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, text, file_url, file_type, file_source, file_name)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         RETURNING `+messageColumns,
		conversationID, senderID, text, fileURL, fileType, fileSource, fileName).
		StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_id=$1, updated_at=NOW() WHERE id=$2`,
		msg.ID, conversationID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// List returns a reverse-chronological page. A beforeID of zero starts at
// the newest message; otherwise only messages older than beforeID are
// returned, which keeps pages stable under concurrent inserts.
func (r *MessageRepo) List(ctx context.Context, conversationID, beforeID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var msgs []models.Message
	var err error
	if beforeID > 0 {
		err = r.db.SelectContext(ctx, &msgs,
			`SELECT `+messageColumns+` FROM messages
             WHERE conversation_id=$1 AND id < $2
             ORDER BY id DESC LIMIT $3`, conversationID, beforeID, limit)
	} else {
		err = r.db.SelectContext(ctx, &msgs,
			`SELECT `+messageColumns+` FROM messages
             WHERE conversation_id=$1
             ORDER BY id DESC LIMIT $2`, conversationID, limit)
	}
	return msgs, err
}

// MarkRead flips is_read and stamps read_at on every unread message in the
// conversation not authored by readerID. Idempotent: a second call finds
// nothing unread and reports zero rows.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read=TRUE, read_at=NOW(), updated_at=NOW()
         WHERE conversation_id=$1 AND sender_id<>$2 AND is_read=FALSE`,
		conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread counts messages the user has not read yet.
func (r *MessageRepo) CountUnread(ctx context.Context, conversationID, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE conversation_id=$1 AND sender_id<>$2 AND is_read=FALSE`,
		conversationID, userID)
	return count, err
}

// CountUnreadSent counts the user's own messages the other side has not
// read yet.
func (r *MessageRepo) CountUnreadSent(ctx context.Context, conversationID, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE conversation_id=$1 AND sender_id=$2 AND is_read=FALSE`,
		conversationID, userID)
	return count, err
}
