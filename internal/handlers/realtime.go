package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/presence"
	"realtime-service/internal/registry"
	"realtime-service/internal/rooms"
	"realtime-service/internal/typing"
	"realtime-service/internal/ws"
)

// RealtimeHandler serves read-only hub queries: connection stats, presence
// and typing snapshots for clients that poll instead of listening on the
// socket.
type RealtimeHandler struct {
	registry *registry.Registry
	presence *presence.Tracker
	typing   *typing.Tracker
	hub      *ws.Hub
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(reg *registry.Registry, pres *presence.Tracker, typ *typing.Tracker, hub *ws.Hub) *RealtimeHandler {
	return &RealtimeHandler{registry: reg, presence: pres, typing: typ, hub: hub}
}

// GetStats reports live connection counts.
func (h *RealtimeHandler) GetStats(c *gin.Context) {
	online, err := h.registry.OnlineUsers(c.Request.Context())
	if err != nil {
		log.Printf("stats: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"local_connections":   h.hub.Count(),
		"unique_online_users": len(online),
		"timestamp":           time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// GetPresence returns a user's presence, offline when no record exists.
func (h *RealtimeHandler) GetPresence(c *gin.Context) {
	userID := c.Param("user_id")
	rec, err := h.presence.Get(c.Request.Context(), userID)
	if err != nil {
		log.Printf("get presence %s: %v", userID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state store unavailable"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetConnections returns a snapshot of a user's live connection ids.
func (h *RealtimeHandler) GetConnections(c *gin.Context) {
	userID := c.Param("user_id")
	conns, err := h.registry.ConnectionsFor(c.Request.Context(), userID)
	if err != nil {
		log.Printf("get connections %s: %v", userID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "connections": conns})
}

// GetTypers returns the users currently typing in a channel. This is the
// poll path; push delivery happens over the socket.
func (h *RealtimeHandler) GetTypers(c *gin.Context) {
	room, err := rooms.Parse(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	typers, err := h.typing.ActiveTypers(c.Request.Context(), room)
	if err != nil {
		log.Printf("get typers %s: %v", room, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": room.String(), "typing": typers})
}
