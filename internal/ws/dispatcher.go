package ws

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"realtime-service/internal/observability"
	"realtime-service/internal/rooms"
)

// MembershipResolver resolves a room to its current member connections.
type MembershipResolver interface {
	Members(ctx context.Context, room rooms.RoomID) ([]string, error)
}

// DeliveryReport summarizes one broadcast fan-out.
type DeliveryReport struct {
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Dispatcher fans a payload out to every live connection in a room.
// Membership is re-resolved on every call; a snapshot is never reused
// across broadcasts. Pushes run concurrently with a bounded per-connection
// timeout so one slow socket cannot delay its siblings.
type Dispatcher struct {
	hub     *Hub
	members MembershipResolver
	timeout time.Duration
}

// NewDispatcher builds a Dispatcher. A non-positive timeout falls back to
// the default send timeout.
func NewDispatcher(hub *Hub, members MembershipResolver, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = sendTimeout
	}
	return &Dispatcher{hub: hub, members: members, timeout: timeout}
}

// Broadcast delivers an event to every member connection of a room.
func (d *Dispatcher) Broadcast(ctx context.Context, room rooms.RoomID, event string, payload any) (DeliveryReport, error) {
	return d.broadcast(ctx, room, "", event, payload)
}

// BroadcastExcept delivers to every member except one connection,
// typically the sender of a typing or presence command.
func (d *Dispatcher) BroadcastExcept(ctx context.Context, room rooms.RoomID, exceptConnID, event string, payload any) (DeliveryReport, error) {
	return d.broadcast(ctx, room, exceptConnID, event, payload)
}

func (d *Dispatcher) broadcast(ctx context.Context, room rooms.RoomID, exceptConnID, event string, payload any) (DeliveryReport, error) {
	start := time.Now()

	memberIDs, err := d.members.Members(ctx, room)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("broadcast %s to %s: %w", event, room, err)
	}

	encoded, err := EncodeFrame(event, payload)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("broadcast %s to %s: encode: %w", event, room, err)
	}

	var (
		mu     sync.Mutex
		report DeliveryReport
		wg     sync.WaitGroup
	)
	for _, connID := range memberIDs {
		if connID == exceptConnID {
			continue
		}
		client, ok := d.hub.Get(connID)
		if !ok || client.Closed() {
			// Owned by another process, or already torn down locally.
			// The membership TTL bounds how long the entry survives.
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(client *Client) {
			defer wg.Done()
			if err := client.Send(encoded, d.timeout); err != nil {
				log.Printf("broadcast %s to %s: push to %s failed: %v", event, room, client.Conn.ID, err)
				client.Close()
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			report.Delivered++
			mu.Unlock()
		}(client)
	}
	wg.Wait()

	observability.AddBroadcastOutcomes(report.Delivered, report.Skipped, report.Failed)
	observability.ObserveBroadcastDuration(room.Kind(), time.Since(start))
	return report, nil
}
