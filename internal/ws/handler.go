package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"realtime-service/internal/events"
	"realtime-service/internal/observability"
	"realtime-service/internal/presence"
	"realtime-service/internal/registry"
	"realtime-service/internal/rooms"
	"realtime-service/internal/typing"
)

const teardownTimeout = 5 * time.Second

// TokenVerifier validates a handshake token and returns the user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Publisher pushes hub-originated events back onto the durable bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Handler upgrades client connections and runs their command loops.
type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	registry   *registry.Registry
	presence   *presence.Tracker
	typing     *typing.Tracker
	rooms      *rooms.Manager
	limiter    *Limiter
	verifier   TokenVerifier
	publisher  Publisher
	upgrader   websocket.Upgrader
}

// NewHandler wires the handler.
func NewHandler(hub *Hub, dispatcher *Dispatcher, reg *registry.Registry, pres *presence.Tracker, typ *typing.Tracker, rm *rooms.Manager, limiter *Limiter, verifier TokenVerifier, publisher Publisher) *Handler {
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		registry:   reg,
		presence:   pres,
		typing:     typ,
		rooms:      rm,
		limiter:    limiter,
		verifier:   verifier,
		publisher:  publisher,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates, upgrades and registers a client connection.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("realtime-service/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	sock, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	userAgent := c.Request.UserAgent()
	conn := registry.Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		Meta: registry.TransportMeta{
			UserAgent: userAgent,
			IPAddress: observability.IPFromRequest(c.Request),
			Platform:  registry.DetectPlatform(userAgent),
			DeviceID:  observability.DeviceIDFromRequest(c.Request),
		},
		ConnectedAt: time.Now().UTC(),
	}

	// A store failure here fails the handshake; the client retries.
	if err := h.registry.Register(ctx, conn); err != nil {
		log.Printf("handshake register conn=%s request=%s: %v",
			conn.ID, observability.RequestIDFromRequest(c.Request), err)
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "registration failed"),
			time.Now().Add(writeWait))
		sock.Close()
		return
	}

	client := NewClient(conn, sock)
	h.hub.Add(client)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	log.Printf("client connected conn=%s user=%s platform=%s", conn.ID, userID, conn.Meta.Platform)

	go client.WritePump()
	_ = client.SendFrame("connected", gin.H{
		"connectionId": conn.ID,
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	})

	// Tell the user's other devices and watchers they came online.
	h.broadcastPresence(context.Background(), client, "")

	go h.readLoop(client)
}

func (h *Handler) readLoop(client *Client) {
	defer h.teardown(client)

	sock := client.ws
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		_ = sock.SetReadDeadline(time.Now().Add(pongWait))
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		h.registry.Refresh(ctx, client.Conn.UserID, client.Conn.ID)
		return nil
	})

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame command
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(client, "malformed command")
			continue
		}
		h.handleCommand(client, frame)
	}
}

func (h *Handler) teardown(client *Client) {
	client.Close()
	h.hub.Remove(client.Conn.ID)
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")

	// Teardown must finish even with a degraded store; everything below is
	// best-effort with the TTL window as the backstop.
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	h.registry.Unregister(ctx, client.Conn.UserID, client.Conn.ID)
	h.broadcastPresence(ctx, client, client.Conn.ID)
	log.Printf("client disconnected conn=%s user=%s", client.Conn.ID, client.Conn.UserID)
}

// Client command payloads.
type joinRoomData struct {
	RoomID      string `json:"roomId"`
	OtherUserID string `json:"otherUserId"`
}

type typingData struct {
	RoomID string `json:"roomId"`
}

type presenceData struct {
	Status       string `json:"status"`
	CustomStatus string `json:"customStatus"`
}

func (h *Handler) handleCommand(client *Client, frame command) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	observability.IncWSEvent(frame.Event)

	switch frame.Event {
	case "join_room":
		h.handleJoin(ctx, client, frame)
	case "leave_room":
		h.handleLeave(ctx, client, frame)
	case "typing_start":
		h.handleTyping(ctx, client, frame, true)
	case "typing_stop":
		h.handleTyping(ctx, client, frame, false)
	case "update_presence":
		h.handlePresence(ctx, client, frame)
	default:
		h.sendError(client, "unknown command "+frame.Event)
	}
}

func (h *Handler) handleJoin(ctx context.Context, client *Client, frame command) {
	if !h.limiter.Allow(ctx, client.Conn.UserID, "join_room") {
		h.sendError(client, "rate limited")
		return
	}

	room, err := h.roomFromData(client.Conn.UserID, frame)
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	if err := h.rooms.Join(ctx, client.Conn.UserID, client.Conn.ID, room); err != nil {
		log.Printf("join %s conn=%s: %v", room, client.Conn.ID, err)
		h.sendError(client, "failed to join room")
		return
	}

	_ = client.SendFrame("room_joined", gin.H{"roomId": room.String()})
	if room.Kind() == rooms.KindChannel {
		_, _ = h.dispatcher.BroadcastExcept(ctx, room, client.Conn.ID, events.OutUserJoinedChannel, gin.H{
			"userId":    client.Conn.UserID,
			"roomId":    room.String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func (h *Handler) handleLeave(ctx context.Context, client *Client, frame command) {
	room, err := h.roomFromData(client.Conn.UserID, frame)
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	if err := h.rooms.Leave(ctx, client.Conn.UserID, client.Conn.ID, room); err != nil {
		log.Printf("leave %s conn=%s: %v", room, client.Conn.ID, err)
		h.sendError(client, "failed to leave room")
		return
	}

	_ = client.SendFrame("room_left", gin.H{"roomId": room.String()})
	if room.Kind() == rooms.KindChannel {
		_, _ = h.dispatcher.BroadcastExcept(ctx, room, client.Conn.ID, events.OutUserLeftChannel, gin.H{
			"userId":    client.Conn.UserID,
			"roomId":    room.String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func (h *Handler) handleTyping(ctx context.Context, client *Client, frame command, start bool) {
	if !h.limiter.Allow(ctx, client.Conn.UserID, "typing") {
		h.sendError(client, "rate limited")
		return
	}

	var data typingData
	if err := json.Unmarshal(frame.Data, &data); err != nil || data.RoomID == "" {
		h.sendError(client, "roomId required")
		return
	}
	room, err := rooms.Parse(data.RoomID)
	if err != nil {
		h.sendError(client, "invalid room id")
		return
	}

	now := time.Now()
	event := "typing_stop"
	if start {
		event = "typing_start"
		err = h.typing.Start(ctx, room, client.Conn.UserID, now)
	} else {
		err = h.typing.Stop(ctx, room, client.Conn.UserID, now)
	}
	if err != nil {
		log.Printf("%s in %s user=%s: %v", event, room, client.Conn.UserID, err)
		return
	}

	_, _ = h.dispatcher.BroadcastExcept(ctx, room, client.Conn.ID, event, gin.H{
		"userId":    client.Conn.UserID,
		"roomId":    room.String(),
		"timestamp": now.UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) handlePresence(ctx context.Context, client *Client, frame command) {
	if !h.limiter.Allow(ctx, client.Conn.UserID, "presence") {
		h.sendError(client, "rate limited")
		return
	}

	var data presenceData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		h.sendError(client, "malformed presence update")
		return
	}

	rec, err := h.presence.SetStatus(ctx, client.Conn.UserID, presence.Status(data.Status), data.CustomStatus)
	if err != nil {
		h.sendError(client, "failed to update presence")
		return
	}

	_ = client.SendFrame("presence_updated", rec)
	h.broadcastPresence(ctx, client, client.Conn.ID)

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, events.KeyPresenceUpdated, gin.H{
			"userId":       rec.UserID,
			"status":       rec.Status,
			"customStatus": rec.CustomStatus,
		}); err != nil {
			log.Printf("publish presence update user=%s: %v", rec.UserID, err)
		}
	}
}

// broadcastPresence pushes the user's current presence to their personal
// room, excluding the originating connection when set.
func (h *Handler) broadcastPresence(ctx context.Context, client *Client, exceptConnID string) {
	rec, err := h.presence.Get(ctx, client.Conn.UserID)
	if err != nil {
		log.Printf("presence broadcast user=%s: %v", client.Conn.UserID, err)
		return
	}
	_, _ = h.dispatcher.BroadcastExcept(ctx, rooms.UserRoom(client.Conn.UserID), exceptConnID, events.OutPresenceUpdate, rec)
}

// roomFromData resolves the command's target room and rejects rooms the
// user has no business joining: someone else's personal room or a DM pair
// they are not part of. Channel permission checks stay with the service
// that owns channels.
func (h *Handler) roomFromData(userID string, frame command) (rooms.RoomID, error) {
	var data joinRoomData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return "", errInvalidRoom
	}

	if data.RoomID == "" && data.OtherUserID != "" {
		return rooms.DMRoom(userID, data.OtherUserID), nil
	}

	room, err := rooms.Parse(data.RoomID)
	if err != nil {
		return "", errInvalidRoom
	}
	switch room.Kind() {
	case rooms.KindUser:
		if room != rooms.UserRoom(userID) {
			return "", errRoomForbidden
		}
	case rooms.KindDM:
		if dmPeer(room, userID) == "" {
			return "", errRoomForbidden
		}
	}
	return room, nil
}

func (h *Handler) sendError(client *Client, message string) {
	_ = client.SendFrame("error", gin.H{"message": message})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		if token, ok := cutBearer(header); ok {
			return token
		}
	}
	return c.Query("token")
}
