package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/attachments"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
	"messaging-service/internal/serializers"
)

// CredentialResolver turns a bearer token into an authenticated user id.
type CredentialResolver interface {
	Resolve(ctx context.Context, token string) (int, error)
}

// AttachmentProcessor stores an encoded upload and returns its reference.
type AttachmentProcessor interface {
	Process(ctx context.Context, up attachments.Upload) (*attachments.Reference, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ChatWebSocketHandler upgrades authenticated participants into live
// conversation sessions.
type ChatWebSocketHandler struct {
	hub           *Hub
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	resolver      CredentialResolver
	pipeline      AttachmentProcessor
	tracker       *presence.Tracker
}

func NewChatWebSocketHandler(
	hub *Hub,
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	resolver CredentialResolver,
	pipeline AttachmentProcessor,
	tracker *presence.Tracker,
) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		users:         users,
		resolver:      resolver,
		pipeline:      pipeline,
		tracker:       tracker,
	}
}

// inboundFrame is the union of every client-to-server frame shape.
type inboundFrame struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	FileBase64 string `json:"file_base64"`
	FileName   string `json:"file_name"`
	FileType   string `json:"file_type"`
}

// Handle authenticates the handshake, joins the room and runs the session.
// Authorization fails before the upgrade, so rejected clients see a plain
// HTTP status instead of a websocket close frame.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	tracer := otel.Tracer("messaging-service/ws")
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(attribute.Int("conversation.id", conversationID))

	userID, err := h.resolver.Resolve(ctx, bearerToken(c))
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
		return
	}
	span.SetAttributes(attribute.Int("user.id", userID))

	member, err := h.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		span.End()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		span.End()
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant of this conversation"})
		return
	}

	meta := observability.ExtractRequestMeta(c.Request)
	info := ConnInfo{
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.ClientIP,
		RequestID:   meta.RequestID,
		TraceID:     traceID(span),
		ConnectedAt: time.Now().UTC(),
	}
	span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade failed for user %d: %v", userID, err)
		return
	}

	client := NewClient(conn, userID, conversationID)
	info.ConnID = client.ID

	h.hub.Join(client)
	client.Start()
	observability.IncWSActive()
	observability.IncWSEvent(observability.WSEventConnect)
	publishLifecycle(observability.WSEventConnect, info)

	// The request context dies with the handler; the session needs its own.
	sessionCtx, cancel := context.WithCancel(context.Background())
	go func() {
		<-client.Done()
		cancel()
	}()

	if err := h.tracker.Touch(sessionCtx, userID); err != nil {
		log.Printf("ws: presence touch for user %d: %v", userID, err)
	}
	// Opening the conversation reads everything the other side sent.
	h.markRead(sessionCtx, client, false)

	go h.readLoop(sessionCtx, client, info)
}

func (h *ChatWebSocketHandler) readLoop(ctx context.Context, client *Client, info ConnInfo) {
	defer func() {
		h.hub.Leave(client)
		client.Close()
		observability.DecWSActive()
		observability.IncWSEvent(observability.WSEventDisconnect)
		publishLifecycle(observability.WSEventDisconnect, info)
	}()

	for {
		payload, err := client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: conn %s read error: %v", client.ID, err)
			}
			return
		}
		h.dispatch(ctx, client, payload)
	}
}

// dispatch routes one inbound frame. Malformed input is answered on this
// connection only and never ends the session.
func (h *ChatWebSocketHandler) dispatch(ctx context.Context, client *Client, payload []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		h.sendError(client, "invalid JSON format")
		return
	}

	if err := h.tracker.Touch(ctx, client.UserID); err != nil {
		log.Printf("ws: presence touch for user %d: %v", client.UserID, err)
	}

	switch frame.Type {
	case "typing":
		h.handleTyping(ctx, client)
	case "mark_read":
		h.markRead(ctx, client, true)
	default:
		h.handleMessage(ctx, client, frame)
	}
}

func (h *ChatWebSocketHandler) handleTyping(ctx context.Context, client *Client) {
	payload, _ := json.Marshal(gin.H{
		"type":    models.EventTyping,
		"user_id": client.UserID,
	})
	h.hub.Publish(ctx, models.RoomEvent{
		ConversationID: client.ConversationID,
		Kind:           models.EventTyping,
		UserID:         client.UserID,
		Payload:        payload,
	})
}

// markRead flips unread incoming messages and notifies the room. An
// explicit frame always broadcasts the receipt, even when the rows were
// already flipped, so a peer that missed an earlier receipt can still catch
// up by asking again. The silent path is the connect-time pass only.
func (h *ChatWebSocketHandler) markRead(ctx context.Context, client *Client, announce bool) {
	marked, err := h.messages.MarkRead(ctx, client.ConversationID, client.UserID)
	if err != nil {
		log.Printf("ws: mark read in conversation %d: %v", client.ConversationID, err)
		h.sendError(client, "failed to mark messages as read")
		return
	}
	if marked == 0 && !announce {
		return
	}

	payload, _ := json.Marshal(gin.H{
		"type":    models.EventReadReceipt,
		"user_id": client.UserID,
	})
	h.hub.Publish(ctx, models.RoomEvent{
		ConversationID: client.ConversationID,
		Kind:           models.EventReadReceipt,
		UserID:         client.UserID,
		Payload:        payload,
	})
}

func (h *ChatWebSocketHandler) handleMessage(ctx context.Context, client *Client, frame inboundFrame) {
	if frame.Text == "" && frame.FileBase64 == "" {
		h.sendError(client, "message must contain text or file")
		return
	}

	var att *attachments.Reference
	if frame.FileBase64 != "" {
		var err error
		att, err = h.pipeline.Process(ctx, attachments.Upload{
			Data:     frame.FileBase64,
			FileName: frame.FileName,
			TypeHint: frame.FileType,
		})
		if err != nil {
			observability.IncWSEvent(observability.WSEventError)
			h.sendError(client, attachmentErrorMessage(err))
			return
		}
	}

	msg, err := h.messages.Create(ctx, client.ConversationID, client.UserID, frame.Text, att)
	if err != nil {
		log.Printf("ws: persist message in conversation %d: %v", client.ConversationID, err)
		h.sendError(client, "failed to send message")
		return
	}

	sender, err := h.users.Get(ctx, client.UserID)
	if err != nil {
		log.Printf("ws: load sender %d: %v", client.UserID, err)
		h.sendError(client, "failed to send message")
		return
	}

	// Message frames carry the serialized message at the top level; only
	// typing, read_receipt and error frames have a type tag.
	view := serializers.NewMessageView(msg, sender)
	payload, err := json.Marshal(view)
	if err != nil {
		log.Printf("ws: marshal message %d: %v", msg.ID, err)
		return
	}

	h.hub.Publish(ctx, models.RoomEvent{
		ConversationID: client.ConversationID,
		Kind:           models.EventMessage,
		UserID:         client.UserID,
		Payload:        payload,
	})
}

// sendError reports a local failure to the offending connection only.
// Error frames carry a bare error key, no type tag.
func (h *ChatWebSocketHandler) sendError(client *Client, message string) {
	client.SendJSON(gin.H{"error": message})
}

func attachmentErrorMessage(err error) string {
	switch {
	case errors.Is(err, attachments.ErrInvalidPayload):
		return "invalid file data"
	case errors.Is(err, attachments.ErrUploadFailed):
		return "file upload failed"
	default:
		return "failed to process file"
	}
}

// bearerToken pulls the credential from the Authorization header, falling
// back to the token query parameter for browser websocket clients that
// cannot set headers.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

func traceID(span trace.Span) string {
	if sc := span.SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

func publishLifecycle(event string, info ConnInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	envelope := observability.EventEnvelope{
		EventType: "websocket",
		EventName: event,
		Payload:   info,
	}
	if err := observability.PublishEvent(ctx, "chat."+event, envelope, observability.BuildHeaders(info.RequestID, info.TraceID)); err != nil {
		log.Printf("ws: publish %s event: %v", event, err)
	}
}
