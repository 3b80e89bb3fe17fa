package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationParticipants(t *testing.T) {
	conv := Conversation{ID: 7, User1ID: 1, User2ID: 2}

	assert.True(t, conv.HasParticipant(1))
	assert.True(t, conv.HasParticipant(2))
	assert.False(t, conv.HasParticipant(3))

	assert.Equal(t, 2, conv.OtherUser(1))
	assert.Equal(t, 1, conv.OtherUser(2))
}
