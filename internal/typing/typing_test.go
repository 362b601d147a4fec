package typing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/rooms"
	"realtime-service/internal/store"
)

func TestStartThenActive(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(store.NewMemory(), DefaultWindow)
	room := rooms.ChannelRoom("42")

	require.NoError(t, tr.Start(ctx, room, "alice", time.Now()))
	require.NoError(t, tr.Start(ctx, room, "bob", time.Now()))

	typers, err := tr.ActiveTypers(ctx, room)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, typers)
}

func TestStopClearsIndicator(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(store.NewMemory(), DefaultWindow)
	room := rooms.ChannelRoom("42")

	now := time.Now()
	require.NoError(t, tr.Start(ctx, room, "alice", now))
	require.NoError(t, tr.Stop(ctx, room, "alice", now.Add(time.Second)))

	typers, err := tr.ActiveTypers(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, typers)

	// Stopping a user who never started is a no-op.
	require.NoError(t, tr.Stop(ctx, room, "ghost", now))
}

func TestStaleStopDoesNotClearNewerStart(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(store.NewMemory(), DefaultWindow)
	room := rooms.ChannelRoom("42")

	now := time.Now()
	require.NoError(t, tr.Start(ctx, room, "alice", now))
	// A stop timestamped before the recorded start arrives out of order.
	require.NoError(t, tr.Stop(ctx, room, "alice", now.Add(-2*time.Second)))

	typers, err := tr.ActiveTypers(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, typers)
}

func TestIndicatorExpiresWithoutStop(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	tr := NewTracker(mem, DefaultWindow)
	room := rooms.ChannelRoom("42")

	// Started longer than a window ago and never refreshed.
	require.NoError(t, tr.Start(ctx, room, "alice", time.Now().Add(-DefaultWindow-time.Second)))
	require.NoError(t, tr.Start(ctx, room, "bob", time.Now()))

	typers, err := tr.ActiveTypers(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, typers, "expired indicator must be filtered out")

	// The expired field was pruned, not just filtered.
	raw, err := mem.HashGet(ctx, store.TypingKey(room.String()), "alice")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestWholeKeyExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Now()
	mem.Now = func() time.Time { return now }

	tr := NewTracker(mem, DefaultWindow)
	room := rooms.ChannelRoom("42")
	require.NoError(t, tr.Start(ctx, room, "alice", now))

	now = now.Add(DefaultWindow + time.Second)
	fields, err := mem.HashGetAll(ctx, store.TypingKey(room.String()))
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestRestartRefreshesWindow(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Now()
	mem.Now = func() time.Time { return now }

	tr := NewTracker(mem, DefaultWindow)
	room := rooms.ChannelRoom("42")
	require.NoError(t, tr.Start(ctx, room, "alice", now))

	// A refresh halfway through the window pushes the key TTL out again.
	now = now.Add(DefaultWindow / 2)
	require.NoError(t, tr.Start(ctx, room, "alice", now))

	now = now.Add(DefaultWindow - time.Second)
	fields, err := mem.HashGetAll(ctx, store.TypingKey(room.String()))
	require.NoError(t, err)
	assert.Contains(t, fields, "alice")
}
