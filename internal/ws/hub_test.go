package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case payload := <-c.send:
		return payload
	case <-time.After(time.Second):
		t.Fatal("expected a frame, got none")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("expected no frame, got %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToRoomMembers(t *testing.T) {
	hub := NewHub()
	alice := NewClient(nil, 1, 7)
	bob := NewClient(nil, 2, 7)
	stranger := NewClient(nil, 3, 8)
	hub.Join(alice)
	hub.Join(bob)
	hub.Join(stranger)

	hub.DeliverLocal(models.RoomEvent{
		ConversationID: 7,
		Kind:           models.EventMessage,
		UserID:         1,
		Payload:        []byte(`{"type":"message"}`),
	})

	// Message frames reach everyone in the room, sender included.
	assert.JSONEq(t, `{"type":"message"}`, string(receive(t, alice)))
	assert.JSONEq(t, `{"type":"message"}`, string(receive(t, bob)))
	assertNoFrame(t, stranger)
}

func TestHubFiltersTypingEcho(t *testing.T) {
	hub := NewHub()
	alice := NewClient(nil, 1, 7)
	bob := NewClient(nil, 2, 7)
	hub.Join(alice)
	hub.Join(bob)

	hub.DeliverLocal(models.RoomEvent{
		ConversationID: 7,
		Kind:           models.EventTyping,
		UserID:         1,
		Payload:        []byte(`{"type":"typing","user_id":1}`),
	})

	assertNoFrame(t, alice)
	assert.JSONEq(t, `{"type":"typing","user_id":1}`, string(receive(t, bob)))
}

func TestHubLeaveDropsEmptyRoom(t *testing.T) {
	hub := NewHub()
	alice := NewClient(nil, 1, 7)
	hub.Join(alice)
	hub.Leave(alice)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.rooms)
}

type captureBridge struct {
	events []models.RoomEvent
	err    error
}

func (b *captureBridge) Publish(_ context.Context, ev models.RoomEvent) error {
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, ev)
	return nil
}

func TestHubPublishPrefersBridge(t *testing.T) {
	hub := NewHub()
	bridge := &captureBridge{}
	hub.SetBridge(bridge)

	alice := NewClient(nil, 1, 7)
	hub.Join(alice)

	ev := models.RoomEvent{ConversationID: 7, Kind: models.EventMessage, UserID: 1, Payload: []byte(`{}`)}
	hub.Publish(context.Background(), ev)

	// The bridge is responsible for delivery, including back to this
	// instance, so nothing is delivered locally here.
	require.Len(t, bridge.events, 1)
	assert.Equal(t, 7, bridge.events[0].ConversationID)
	assertNoFrame(t, alice)
}

func TestHubPublishFallsBackWhenBridgeFails(t *testing.T) {
	hub := NewHub()
	hub.SetBridge(&captureBridge{err: assert.AnError})

	alice := NewClient(nil, 2, 7)
	hub.Join(alice)

	hub.Publish(context.Background(), models.RoomEvent{
		ConversationID: 7,
		Kind:           models.EventMessage,
		UserID:         1,
		Payload:        []byte(`{"type":"message"}`),
	})

	assert.JSONEq(t, `{"type":"message"}`, string(receive(t, alice)))
}
