package serializers

import (
	"time"

	"messaging-service/internal/models"
)

// OnlineWindow is how recent last_seen must be for a user to render as
// online. The stored is_online flag is a hint that is never demoted, so the
// window is what actually decides.
const OnlineWindow = 5 * time.Minute

// UserSummary is the profile shape embedded in message and conversation
// payloads.
type UserSummary struct {
	ID             int        `json:"id"`
	Username       string     `json:"username"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	ProfilePicture *string    `json:"profile_picture"`
	IsOnline       bool       `json:"is_online"`
	LastSeen       *time.Time `json:"last_seen"`
}

// AttachmentView is the stored-attachment descriptor on a message payload.
type AttachmentView struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Source string `json:"source"`
	Name   string `json:"name"`
}

// MessageView is the full message payload, shared by the websocket and the
// history API.
type MessageView struct {
	ID           int             `json:"id"`
	Conversation int             `json:"conversation"`
	Sender       UserSummary     `json:"sender"`
	Text         string          `json:"text"`
	FileURL      *string         `json:"file_url"`
	FileType     *string         `json:"file_type"`
	Attachment   *AttachmentView `json:"attachment"`
	IsRead       bool            `json:"is_read"`
	ReadAt       *time.Time      `json:"read_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ConversationView is the conversation payload for list and detail
// endpoints.
type ConversationView struct {
	ID              int          `json:"id"`
	User1           UserSummary  `json:"user1"`
	User2           UserSummary  `json:"user2"`
	LastMessage     *MessageView `json:"last_message"`
	UnreadCount     int          `json:"unread_count"`
	UnreadSentCount int          `json:"unread_sent_count"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// NewUserSummary renders a user with the freshness window applied.
func NewUserSummary(u models.User) UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		ProfilePicture: u.ProfilePicture,
		IsOnline:       isFresh(u.LastSeen, time.Now()),
		LastSeen:       u.LastSeen,
	}
}

// NewMessageView builds the full message payload.
func NewMessageView(m models.Message, sender models.User) MessageView {
	view := MessageView{
		ID:           m.ID,
		Conversation: m.ConversationID,
		Sender:       NewUserSummary(sender),
		Text:         m.Text,
		FileURL:      m.FileURL,
		FileType:     m.FileType,
		IsRead:       m.IsRead,
		ReadAt:       m.ReadAt,
		CreatedAt:    m.CreatedAt,
	}

	if m.HasAttachment() {
		att := &AttachmentView{URL: *m.FileURL}
		if m.FileType != nil {
			att.Type = *m.FileType
		}
		if m.FileSource != nil {
			att.Source = *m.FileSource
		}
		if m.FileName != nil {
			att.Name = *m.FileName
		}
		view.Attachment = att
	}
	return view
}

func isFresh(lastSeen *time.Time, now time.Time) bool {
	return lastSeen != nil && now.Sub(*lastSeen) <= OnlineWindow
}
