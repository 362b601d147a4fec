package ws

import (
	"context"
	"log"
	"time"

	"realtime-service/internal/observability"
	"realtime-service/internal/store"
)

// Limit is a count-per-window rate limit.
type Limit struct {
	Count  int64
	Window time.Duration
}

// DefaultLimit applies to any action without a specific limit.
var DefaultLimit = Limit{Count: 10, Window: time.Minute}

// Limiter rate-limits client commands per user and action, backed by the
// shared store's atomic increment so the limit spans all of a user's
// devices and hub processes.
type Limiter struct {
	store  store.StateStore
	limits map[string]Limit
}

// NewLimiter builds a Limiter with per-action overrides.
func NewLimiter(st store.StateStore, limits map[string]Limit) *Limiter {
	return &Limiter{store: st, limits: limits}
}

// Allow reports whether a command is within limits. A degraded store never
// blocks a command: limiting is advisory, so errors log and allow.
func (l *Limiter) Allow(ctx context.Context, userID, action string) bool {
	limit, ok := l.limits[action]
	if !ok {
		limit = DefaultLimit
	}

	n, err := l.store.Increment(ctx, store.RateLimitKey(userID, action), limit.Window)
	if err != nil {
		log.Printf("rate limit %s/%s: %v", userID, action, err)
		return true
	}
	if n > limit.Count {
		observability.IncRateLimitRejection(action)
		return false
	}
	return true
}
