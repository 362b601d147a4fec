package rooms

import (
	"context"
	"fmt"
	"log"
	"time"

	"realtime-service/internal/store"
)

// Manager maintains the many-to-many relation between connections and
// rooms in the shared state store. Both directions are indexed: room →
// member connections (for fan-out) and connection → rooms (for teardown).
type Manager struct {
	store store.StateStore
	ttl   time.Duration
}

// NewManager builds a Manager. ttl bounds how long a stale membership can
// outlive a crashed process.
func NewManager(st store.StateStore, ttl time.Duration) *Manager {
	return &Manager{store: st, ttl: ttl}
}

// Join subscribes a connection to a room, updating both indexes.
func (m *Manager) Join(ctx context.Context, userID, connID string, room RoomID) error {
	if err := m.store.SetAdd(ctx, store.RoomMembersKey(room.String()), m.ttl, connID); err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	if err := m.store.SetAdd(ctx, store.ConnRoomsKey(connID), m.ttl, room.String()); err != nil {
		return fmt.Errorf("join %s: index rooms of %s: %w", room, connID, err)
	}
	return nil
}

// Leave unsubscribes a connection from a room. Leaving a room the
// connection is not in is a no-op.
func (m *Manager) Leave(ctx context.Context, userID, connID string, room RoomID) error {
	if err := m.store.SetRemove(ctx, store.RoomMembersKey(room.String()), connID); err != nil {
		return fmt.Errorf("leave %s: %w", room, err)
	}
	if err := m.store.SetRemove(ctx, store.ConnRoomsKey(connID), room.String()); err != nil {
		return fmt.Errorf("leave %s: index rooms of %s: %w", room, connID, err)
	}
	return nil
}

// Members returns the connection ids currently subscribed to a room. The
// snapshot may be a few seconds stale; callers must re-fetch per broadcast.
func (m *Manager) Members(ctx context.Context, room RoomID) ([]string, error) {
	members, err := m.store.SetMembers(ctx, store.RoomMembersKey(room.String()))
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", room, err)
	}
	return members, nil
}

// RoomsOf returns every room a connection has joined.
func (m *Manager) RoomsOf(ctx context.Context, connID string) ([]RoomID, error) {
	raw, err := m.store.SetMembers(ctx, store.ConnRoomsKey(connID))
	if err != nil {
		return nil, fmt.Errorf("rooms of %s: %w", connID, err)
	}
	result := make([]RoomID, 0, len(raw))
	for _, r := range raw {
		result = append(result, RoomID(r))
	}
	return result, nil
}

// LeaveAll removes a disconnecting connection from every room it joined.
// Best-effort: individual failures are logged and skipped, since the TTL
// on the membership keys bounds how long a ghost member can survive.
func (m *Manager) LeaveAll(ctx context.Context, userID, connID string) {
	roomIDs, err := m.RoomsOf(ctx, connID)
	if err != nil {
		log.Printf("leave all: rooms of %s: %v", connID, err)
		return
	}
	for _, room := range roomIDs {
		if err := m.store.SetRemove(ctx, store.RoomMembersKey(room.String()), connID); err != nil {
			log.Printf("leave all: remove %s from %s: %v", connID, room, err)
		}
	}
	if err := m.store.Delete(ctx, store.ConnRoomsKey(connID)); err != nil {
		log.Printf("leave all: delete room index of %s: %v", connID, err)
	}
}

// Refresh extends the TTL on a connection's membership keys. Called on
// client activity so live memberships outlast idle periods.
func (m *Manager) Refresh(ctx context.Context, connID string) {
	roomIDs, err := m.RoomsOf(ctx, connID)
	if err != nil {
		log.Printf("refresh: rooms of %s: %v", connID, err)
		return
	}
	for _, room := range roomIDs {
		if err := m.store.Expire(ctx, store.RoomMembersKey(room.String()), m.ttl); err != nil {
			log.Printf("refresh: expire %s: %v", room, err)
		}
	}
	if err := m.store.Expire(ctx, store.ConnRoomsKey(connID), m.ttl); err != nil {
		log.Printf("refresh: expire room index of %s: %v", connID, err)
	}
}
