package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	sendBufferSize = 64
)

// Client is one websocket connection joined to a conversation room.
type Client struct {
	ID             string
	UserID         int
	ConversationID int

	conn *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, userID, conversationID int) *Client {
	return &Client{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		done:           make(chan struct{}),
	}
}

// Start launches the write loop.
func (c *Client) Start() {
	go c.writeLoop()
}

// Deliver forwards a room event to this client. Typing and read receipt
// events are not echoed back to their originator.
func (c *Client) Deliver(ev models.RoomEvent) {
	if ev.UserID == c.UserID && (ev.Kind == models.EventTyping || ev.Kind == models.EventReadReceipt) {
		return
	}
	c.enqueue(ev.Payload)
}

// Send queues a raw frame addressed to this client only.
func (c *Client) Send(payload []byte) {
	c.enqueue(payload)
}

// SendJSON marshals v and queues it for this client only.
func (c *Client) SendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws client %s: marshal frame: %v", c.ID, err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		// Slow consumer, drop the connection rather than block the room.
		log.Printf("ws client %s: send buffer full, closing", c.ID)
		c.Close()
	}
}

// ReadMessage blocks for the next frame from the peer.
func (c *Client) ReadMessage() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Done is closed when the connection has been torn down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
