package typing

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"realtime-service/internal/rooms"
	"realtime-service/internal/store"
)

// DefaultWindow is how long a typing indicator stays active without a
// refresh.
const DefaultWindow = 7 * time.Second

// Tracker manages ephemeral per-room typing flags in the shared state
// store. There is no sweep loop: expiry comes from the store's TTL plus
// lazy filtering on read.
//
// Each room maps to a hash keyed by user id whose value is the start
// timestamp in unix milliseconds. Storing the timestamp lets Stop compare
// against the recorded Start, so a stale stop that arrives after a newer
// start does not clear the indicator.
type Tracker struct {
	store  store.StateStore
	window time.Duration
	now    func() time.Time
}

// NewTracker builds a Tracker. A non-positive window falls back to
// DefaultWindow.
func NewTracker(st store.StateStore, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{store: st, window: window, now: time.Now}
}

// Window reports the configured expiry window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Start upserts the typing flag for (room, user) and resets its TTL. at is
// the client-observed command time used for ordering against Stop.
func (t *Tracker) Start(ctx context.Context, room rooms.RoomID, userID string, at time.Time) error {
	stored, err := t.store.HashGet(ctx, store.TypingKey(room.String()), userID)
	if err != nil {
		return fmt.Errorf("typing start in %s: %w", room, err)
	}
	if prev, ok := parseMillis(stored); ok && prev > at.UnixMilli() {
		// A newer start is already recorded; keep it.
		return nil
	}

	fields := map[string]string{userID: strconv.FormatInt(at.UnixMilli(), 10)}
	if err := t.store.HashSet(ctx, store.TypingKey(room.String()), fields, t.window); err != nil {
		return fmt.Errorf("typing start in %s: %w", room, err)
	}
	return nil
}

// Stop clears the typing flag for (room, user) unless the recorded start is
// newer than the stop itself, in which case the stop is stale and ignored.
func (t *Tracker) Stop(ctx context.Context, room rooms.RoomID, userID string, at time.Time) error {
	stored, err := t.store.HashGet(ctx, store.TypingKey(room.String()), userID)
	if err != nil {
		return fmt.Errorf("typing stop in %s: %w", room, err)
	}
	if stored == "" {
		return nil
	}
	if start, ok := parseMillis(stored); ok && start > at.UnixMilli() {
		return nil
	}
	if err := t.store.HashDelete(ctx, store.TypingKey(room.String()), userID); err != nil {
		return fmt.Errorf("typing stop in %s: %w", room, err)
	}
	return nil
}

// ActiveTypers returns the users currently typing in a room, filtering out
// entries older than the window. The filter covers the gap between a
// member's logical expiry and the whole-key TTL.
func (t *Tracker) ActiveTypers(ctx context.Context, room rooms.RoomID) ([]string, error) {
	fields, err := t.store.HashGetAll(ctx, store.TypingKey(room.String()))
	if err != nil {
		return nil, fmt.Errorf("active typers in %s: %w", room, err)
	}

	cutoff := t.now().Add(-t.window).UnixMilli()
	users := make([]string, 0, len(fields))
	var expired []string
	for userID, raw := range fields {
		start, ok := parseMillis(raw)
		if !ok {
			expired = append(expired, userID)
			continue
		}
		if start < cutoff {
			expired = append(expired, userID)
			continue
		}
		users = append(users, userID)
	}

	if len(expired) > 0 {
		if err := t.store.HashDelete(ctx, store.TypingKey(room.String()), expired...); err != nil {
			log.Printf("typing: prune %s: %v", room, err)
		}
	}
	return users, nil
}

func parseMillis(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
