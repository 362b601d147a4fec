package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps transient shared-store failures (timeouts, lost
// connections). Callers on the registration path retry or fail the
// handshake; cleanup paths log and rely on TTL expiry.
var ErrUnavailable = errors.New("state store unavailable")

// StateStore is the shared cross-process state backend. All hub state that
// must be visible across connections (membership, presence, typing, rate
// counters) goes through this interface; nothing is cached in-process
// beyond a single call.
type StateStore interface {
	// SetAdd adds members to a set and refreshes its TTL.
	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	// SetRemove removes members from a set. Removing from a missing set is a no-op.
	SetRemove(ctx context.Context, key string, members ...string) error
	// SetMembers returns a snapshot of the set. A missing key yields an empty slice.
	SetMembers(ctx context.Context, key string) ([]string, error)
	// SetCount returns the cardinality of the set.
	SetCount(ctx context.Context, key string) (int64, error)

	// HashSet writes fields into a hash and refreshes its TTL.
	HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	// HashGet reads a single field. A missing field yields ("", nil).
	HashGet(ctx context.Context, key, field string) (string, error)
	// HashGetAll returns all fields of a hash. A missing key yields an empty map.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	// HashDelete removes fields from a hash.
	HashDelete(ctx context.Context, key string, fields ...string) error

	// Delete removes a key outright.
	Delete(ctx context.Context, key string) error
	// Expire refreshes a key's TTL without touching its value.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Increment atomically increments a counter, setting ttl when the
	// counter is created. Used for rate limits and analytics counters.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Key builders. Every key the hub writes is constructed here so the layout
// lives in one place.

// ConnectionsKey holds the set of live connection ids for a user.
func ConnectionsKey(userID string) string {
	return "connection:" + userID
}

// RoomMembersKey holds the set of connection ids subscribed to a room.
func RoomMembersKey(roomID string) string {
	return "room:" + roomID + ":members"
}

// ConnRoomsKey holds the set of rooms a connection has joined, for teardown.
func ConnRoomsKey(connID string) string {
	return "conn:" + connID + ":rooms"
}

// PresenceKey holds a user's presence hash.
func PresenceKey(userID string) string {
	return "presence:" + userID
}

// TypingKey holds the typing hash for a room (field per user).
func TypingKey(roomID string) string {
	return "typing:" + roomID
}

// OnlineUsersKey is the set of users with at least one live connection.
func OnlineUsersKey() string {
	return "users:online"
}

// RateLimitKey is the per-user per-action rate counter.
func RateLimitKey(userID, action string) string {
	return fmt.Sprintf("ratelimit:%s:%s", userID, action)
}

// AnalyticsKey is a daily event counter.
func AnalyticsKey(date, event string) string {
	return fmt.Sprintf("analytics:%s:%s", date, event)
}
