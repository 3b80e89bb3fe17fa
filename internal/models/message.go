package models

import "time"

// Message is one chat message. Messages are immutable after creation except
// for the read-flag transition: once is_read flips true, read_at is set and
// never cleared.
type Message struct {
	ID             int        `db:"id" json:"id"`
	ConversationID int        `db:"conversation_id" json:"conversation_id"`
	SenderID       int        `db:"sender_id" json:"sender_id"`
	Text           string     `db:"text" json:"text"`
	FileURL        *string    `db:"file_url" json:"file_url"`
	FileType       *string    `db:"file_type" json:"file_type"`
	FileSource     *string    `db:"file_source" json:"file_source,omitempty"`
	FileName       *string    `db:"file_name" json:"file_name,omitempty"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	ReadAt         *time.Time `db:"read_at" json:"read_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// HasAttachment reports whether the message carries a stored file reference.
func (m Message) HasAttachment() bool {
	return m.FileURL != nil
}
