package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/registry"
	"realtime-service/internal/rooms"
)

// staticResolver returns a fixed member list for every room.
type staticResolver struct {
	members []string
}

func (s staticResolver) Members(ctx context.Context, room rooms.RoomID) ([]string, error) {
	return s.members, nil
}

func newTestClient(connID, userID string) *Client {
	return NewClient(registry.Connection{ID: connID, UserID: userID}, nil)
}

func TestBroadcastDeliversToAllMembers(t *testing.T) {
	hub := NewHub()
	c1 := newTestClient("c1", "alice")
	c2 := newTestClient("c2", "bob")
	hub.Add(c1)
	hub.Add(c2)

	d := NewDispatcher(hub, staticResolver{members: []string{"c1", "c2"}}, 100*time.Millisecond)
	report, err := d.Broadcast(context.Background(), rooms.ChannelRoom("42"), "message:new", map[string]any{"id": "m1"})
	require.NoError(t, err)
	assert.Equal(t, DeliveryReport{Delivered: 2}, report)

	// Both queues hold the same encoded frame.
	assert.Len(t, c1.send, 1)
	assert.Len(t, c2.send, 1)
	assert.Equal(t, <-c1.send, <-c2.send)
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	hub := NewHub()
	c1 := newTestClient("c1", "alice")
	c2 := newTestClient("c2", "bob")
	hub.Add(c1)
	hub.Add(c2)

	d := NewDispatcher(hub, staticResolver{members: []string{"c1", "c2"}}, 100*time.Millisecond)
	report, err := d.BroadcastExcept(context.Background(), rooms.ChannelRoom("42"), "c1", "typing_start", nil)
	require.NoError(t, err)
	assert.Equal(t, DeliveryReport{Delivered: 1}, report)
	assert.Empty(t, c1.send)
	assert.Len(t, c2.send, 1)
}

func TestBroadcastSkipsForeignConnections(t *testing.T) {
	hub := NewHub()
	hub.Add(newTestClient("c1", "alice"))

	// "c2" belongs to another hub process; only the shared store knows it.
	d := NewDispatcher(hub, staticResolver{members: []string{"c1", "c2"}}, 100*time.Millisecond)
	report, err := d.Broadcast(context.Background(), rooms.ChannelRoom("42"), "message:new", nil)
	require.NoError(t, err)
	assert.Equal(t, DeliveryReport{Delivered: 1, Skipped: 1}, report)
}

func TestBroadcastIsolatesDeadConnection(t *testing.T) {
	hub := NewHub()
	healthy := newTestClient("c1", "alice")
	dead := newTestClient("c2", "bob")
	hub.Add(healthy)
	hub.Add(dead)

	// Nothing drains the dead client's queue; fill it so pushes block.
	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, dead.Send([]byte("{}"), time.Millisecond))
	}

	d := NewDispatcher(hub, staticResolver{members: []string{"c1", "c2"}}, 50*time.Millisecond)
	start := time.Now()
	report, err := d.Broadcast(context.Background(), rooms.ChannelRoom("42"), "message:new", nil)
	require.NoError(t, err)

	assert.Equal(t, DeliveryReport{Delivered: 1, Failed: 1}, report)
	assert.True(t, dead.Closed(), "failed push tears the connection down")
	assert.False(t, healthy.Closed())
	assert.Less(t, time.Since(start), time.Second, "one stuck socket must not stall the fan-out")
}
