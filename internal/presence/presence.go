package presence

import (
	"context"
	"fmt"
	"time"

	"realtime-service/internal/store"
)

// Status is a user-level presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Record is a user's derived presence. Absence of a record in the store is
// equivalent to offline.
type Record struct {
	UserID       string    `json:"user_id"`
	Status       Status    `json:"status"`
	CustomStatus string    `json:"custom_status,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
}

const (
	fieldStatus   = "status"
	fieldCustom   = "custom_status"
	fieldLastSeen = "last_seen"
	fieldExplicit = "explicit"
)

// Tracker derives user presence from connection transitions and explicit
// status commands, all persisted in the shared state store.
type Tracker struct {
	store store.StateStore
	ttl   time.Duration
	now   func() time.Time
}

// NewTracker builds a Tracker with the given record TTL.
func NewTracker(st store.StateStore, ttl time.Duration) *Tracker {
	return &Tracker{store: st, ttl: ttl, now: time.Now}
}

// SetStatus applies a user-initiated status override. It persists until the
// user disconnects entirely or sets a new status.
func (t *Tracker) SetStatus(ctx context.Context, userID string, status Status, customStatus string) (Record, error) {
	if !status.Valid() {
		return Record{}, fmt.Errorf("set status for %s: unknown status %q", userID, status)
	}

	rec := Record{
		UserID:       userID,
		Status:       status,
		CustomStatus: customStatus,
		LastSeen:     t.now().UTC(),
	}
	fields := map[string]string{
		fieldStatus:   string(status),
		fieldCustom:   customStatus,
		fieldLastSeen: rec.LastSeen.Format(time.RFC3339Nano),
		fieldExplicit: "1",
	}
	if err := t.store.HashSet(ctx, store.PresenceKey(userID), fields, t.ttl); err != nil {
		return Record{}, fmt.Errorf("set status for %s: %w", userID, err)
	}
	return rec, nil
}

// HandleConnectionCount is the registry's hook for connection transitions.
// Going to zero connections always forces offline, overriding any explicit
// status: a user cannot appear online with no live connections. Gaining the
// first connection marks the user online unless an explicit non-offline
// override is already active.
func (t *Tracker) HandleConnectionCount(ctx context.Context, userID string, active int64) error {
	if active <= 0 {
		fields := map[string]string{
			fieldStatus:   string(StatusOffline),
			fieldLastSeen: t.now().UTC().Format(time.RFC3339Nano),
			fieldExplicit: "",
		}
		if err := t.store.HashSet(ctx, store.PresenceKey(userID), fields, t.ttl); err != nil {
			return fmt.Errorf("presence offline for %s: %w", userID, err)
		}
		return nil
	}

	explicit, err := t.store.HashGet(ctx, store.PresenceKey(userID), fieldExplicit)
	if err != nil {
		return fmt.Errorf("presence online for %s: %w", userID, err)
	}
	if explicit == "1" {
		current, err := t.store.HashGet(ctx, store.PresenceKey(userID), fieldStatus)
		if err != nil {
			return fmt.Errorf("presence online for %s: %w", userID, err)
		}
		if current != "" && Status(current) != StatusOffline {
			// Explicit away/busy set during the session survives reconnects.
			return t.store.Expire(ctx, store.PresenceKey(userID), t.ttl)
		}
	}

	fields := map[string]string{
		fieldStatus:   string(StatusOnline),
		fieldLastSeen: t.now().UTC().Format(time.RFC3339Nano),
		fieldExplicit: "",
	}
	if err := t.store.HashSet(ctx, store.PresenceKey(userID), fields, t.ttl); err != nil {
		return fmt.Errorf("presence online for %s: %w", userID, err)
	}
	return nil
}

// Get reads a user's presence, falling back to offline when no record
// exists or the record has expired.
func (t *Tracker) Get(ctx context.Context, userID string) (Record, error) {
	fields, err := t.store.HashGetAll(ctx, store.PresenceKey(userID))
	if err != nil {
		return Record{}, fmt.Errorf("get presence for %s: %w", userID, err)
	}
	if len(fields) == 0 || fields[fieldStatus] == "" {
		return Record{UserID: userID, Status: StatusOffline}, nil
	}

	rec := Record{
		UserID:       userID,
		Status:       Status(fields[fieldStatus]),
		CustomStatus: fields[fieldCustom],
	}
	if raw := fields[fieldLastSeen]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.LastSeen = ts
		}
	}
	return rec, nil
}
