package registry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"realtime-service/internal/rooms"
	"realtime-service/internal/store"
)

// TransportMeta describes the transport a connection arrived on.
type TransportMeta struct {
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	Platform  string `json:"platform,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// Connection is a live client connection. One user may own many concurrent
// connections, one per device.
type Connection struct {
	ID          string        `json:"connection_id"`
	UserID      string        `json:"user_id"`
	Meta        TransportMeta `json:"meta"`
	ConnectedAt time.Time     `json:"connected_at"`
}

// PresenceNotifier receives connection-count transitions so presence can be
// derived from them.
type PresenceNotifier interface {
	HandleConnectionCount(ctx context.Context, userID string, active int64) error
}

// Registry tracks live connections in the shared state store and
// reverse-indexes user → connection set. Entries carry a renewable TTL so a
// crashed process's registrations self-expire.
type Registry struct {
	store    store.StateStore
	rooms    *rooms.Manager
	presence PresenceNotifier
	ttl      time.Duration
}

// NewRegistry builds a Registry.
func NewRegistry(st store.StateStore, rm *rooms.Manager, pn PresenceNotifier, ttl time.Duration) *Registry {
	return &Registry{store: st, rooms: rm, presence: pn, ttl: ttl}
}

// Register records a new connection. Idempotent per connection id. A store
// failure fails the handshake so the client retries it. The connection is
// always auto-joined to its personal room for targeted notifications.
func (r *Registry) Register(ctx context.Context, conn Connection) error {
	if err := r.store.SetAdd(ctx, store.ConnectionsKey(conn.UserID), r.ttl, conn.ID); err != nil {
		return fmt.Errorf("register %s: %w", conn.ID, err)
	}
	if err := r.store.SetAdd(ctx, store.OnlineUsersKey(), 0, conn.UserID); err != nil {
		return fmt.Errorf("register %s: online set: %w", conn.ID, err)
	}
	if err := r.rooms.Join(ctx, conn.UserID, conn.ID, rooms.UserRoom(conn.UserID)); err != nil {
		return fmt.Errorf("register %s: personal room: %w", conn.ID, err)
	}

	active, err := r.store.SetCount(ctx, store.ConnectionsKey(conn.UserID))
	if err != nil {
		return fmt.Errorf("register %s: count: %w", conn.ID, err)
	}
	if err := r.presence.HandleConnectionCount(ctx, conn.UserID, active); err != nil {
		return fmt.Errorf("register %s: presence: %w", conn.ID, err)
	}
	return nil
}

// Unregister removes a connection and leaves every room it was in. Best
// effort throughout: a degraded store must never block the transport's
// close path, so failures are logged and the TTL window bounds any ghost
// state left behind.
func (r *Registry) Unregister(ctx context.Context, userID, connID string) {
	if err := r.store.SetRemove(ctx, store.ConnectionsKey(userID), connID); err != nil {
		log.Printf("unregister %s: %v", connID, err)
	}

	r.rooms.LeaveAll(ctx, userID, connID)

	active, err := r.store.SetCount(ctx, store.ConnectionsKey(userID))
	if err != nil {
		log.Printf("unregister %s: count: %v", connID, err)
		return
	}
	if active == 0 {
		if err := r.store.SetRemove(ctx, store.OnlineUsersKey(), userID); err != nil {
			log.Printf("unregister %s: online set: %v", connID, err)
		}
	}
	if err := r.presence.HandleConnectionCount(ctx, userID, active); err != nil {
		log.Printf("unregister %s: presence: %v", connID, err)
	}
}

// ConnectionsFor returns a snapshot of a user's live connection ids.
// Callers must tolerate a few seconds of staleness.
func (r *Registry) ConnectionsFor(ctx context.Context, userID string) ([]string, error) {
	conns, err := r.store.SetMembers(ctx, store.ConnectionsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("connections for %s: %w", userID, err)
	}
	return conns, nil
}

// OnlineUsers returns the users with at least one registered connection.
func (r *Registry) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := r.store.SetMembers(ctx, store.OnlineUsersKey())
	if err != nil {
		return nil, fmt.Errorf("online users: %w", err)
	}
	return users, nil
}

// Refresh renews the TTL on a connection's registration and memberships.
// Called on client activity (pongs) so live connections outlast the window.
func (r *Registry) Refresh(ctx context.Context, userID, connID string) {
	if err := r.store.Expire(ctx, store.ConnectionsKey(userID), r.ttl); err != nil {
		log.Printf("refresh %s: %v", connID, err)
	}
	r.rooms.Refresh(ctx, connID)
}

// DetectPlatform classifies a connection by User-Agent.
func DetectPlatform(userAgent string) string {
	switch {
	case userAgent == "":
		return "unknown"
	case strings.Contains(userAgent, "Mobile"):
		return "mobile"
	case strings.Contains(userAgent, "Electron"):
		return "desktop"
	default:
		return "web"
	}
}
