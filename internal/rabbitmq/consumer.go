package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"realtime-service/internal/events"
	"realtime-service/internal/observability"
	"realtime-service/internal/presence"
	"realtime-service/internal/rooms"
	"realtime-service/internal/store"
	"realtime-service/internal/ws"
)

const handleTimeout = 10 * time.Second

// Broadcaster fans a translated event out to a room's live connections.
type Broadcaster interface {
	Broadcast(ctx context.Context, room rooms.RoomID, event string, payload any) (ws.DeliveryReport, error)
}

// PresenceApplier lets bus-originated presence events update the tracker
// before they are re-broadcast.
type PresenceApplier interface {
	SetStatus(ctx context.Context, userID string, status presence.Status, customStatus string) (presence.Record, error)
}

// Consumer bridges the durable bus into per-connection delivery. Each
// delivery is decoded into its typed event, translated to room broadcasts
// and dispatched; only then is it acknowledged. A hard dispatch failure
// leaves the event unacknowledged for redelivery, but a partial
// per-connection failure does not, since the surviving connections were
// already served.
type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	translator  *events.Translator
	broadcaster Broadcaster
	presence    PresenceApplier
	store       store.StateStore
	done        chan struct{}
}

// Bindings for the realtime queue. The hash patterns cover the full
// entity-namespaced key space (message.channel.sent is three words, so a
// single-word wildcard would miss it).
var bindings = []string{"message.#", "user.presence.#", "user.status.#", "server.member.#"}

// NewConsumer connects, declares the topology and builds a Consumer.
func NewConsumer(amqpURL, exchange, queue string, broadcaster Broadcaster, pres PresenceApplier, st store.StateStore) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, key := range bindings {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("bind %s to %s: %w", queue, key, err)
		}
	}

	return &Consumer{
		conn:        conn,
		ch:          ch,
		queue:       queue,
		translator:  events.NewTranslator(),
		broadcaster: broadcaster,
		presence:    pres,
		store:       st,
		done:        make(chan struct{}),
	}, nil
}

// Start begins consuming with manual acknowledgment. Blocks until the
// delivery channel closes; run it in a goroutine.
func (c *Consumer) Start() error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	log.Printf("rabbitmq consumer started queue=%s", c.queue)
	for delivery := range deliveries {
		c.handle(delivery)
	}
	close(c.done)
	return nil
}

func (c *Consumer) handle(delivery amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	ctx, span := otel.Tracer("realtime-service/bridge").Start(ctx, "bus.handle",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	routingKey := delivery.RoutingKey
	ev, err := events.Decode(routingKey, delivery.Body)
	switch {
	case errors.Is(err, events.ErrUnknownRoutingKey):
		log.Printf("bus: unhandled routing key %s, dropping", routingKey)
		observability.IncBusEvent(routingKey, "unknown")
		_ = delivery.Ack(false)
		return
	case errors.Is(err, events.ErrMalformed):
		log.Printf("bus: malformed %s payload, dropping: %v", routingKey, err)
		observability.IncBusEvent(routingKey, "malformed")
		_ = delivery.Nack(false, false)
		return
	case err != nil:
		log.Printf("bus: decode %s: %v", routingKey, err)
		observability.IncBusEvent(routingKey, "malformed")
		_ = delivery.Nack(false, false)
		return
	}

	c.applySideEffects(ctx, ev)

	for _, b := range c.translator.Translate(ev) {
		report, err := c.broadcaster.Broadcast(ctx, b.Room, b.Event, b.Payload)
		if err != nil {
			// Membership could not be resolved; requeue the whole event.
			// Already-dispatched sibling broadcasts are redelivered too,
			// which at-least-once consumers must tolerate anyway.
			log.Printf("bus: dispatch %s to %s failed: %v", b.Event, b.Room, err)
			observability.IncBusEvent(routingKey, "requeued")
			_ = delivery.Nack(false, true)
			return
		}
		if report.Failed > 0 {
			// Dead sockets among many are not a reason to redeliver.
			log.Printf("bus: dispatch %s to %s partial: %+v", b.Event, b.Room, report)
		}
	}

	observability.IncBusEvent(routingKey, "dispatched")
	_ = delivery.Ack(false)
}

// applySideEffects updates hub-local state for events that are more than
// pure broadcasts, and bumps delivery analytics counters.
func (c *Consumer) applySideEffects(ctx context.Context, ev events.Event) {
	switch ev := ev.(type) {
	case events.PresenceUpdated:
		if _, err := c.presence.SetStatus(ctx, ev.UserID, presence.Status(ev.Status), ev.CustomStatus); err != nil {
			log.Printf("bus: apply presence update user=%s: %v", ev.UserID, err)
		}
	case events.StatusChanged:
		if _, err := c.presence.SetStatus(ctx, ev.UserID, presence.Status(ev.Status), ""); err != nil {
			log.Printf("bus: apply status change user=%s: %v", ev.UserID, err)
		}
	case events.ChannelMessageSent:
		c.countDelivery(ctx, "messages_delivered")
	case events.DMMessageSent:
		c.countDelivery(ctx, "dm_messages_delivered")
	}
}

func (c *Consumer) countDelivery(ctx context.Context, event string) {
	key := store.AnalyticsKey(time.Now().UTC().Format("2006-01-02"), event)
	if _, err := c.store.Increment(ctx, key, 7*24*time.Hour); err != nil {
		log.Printf("bus: analytics %s: %v", event, err)
	}
}

// Close shuts the consumer down and waits briefly for the delivery loop to
// drain.
func (c *Consumer) Close() error {
	if err := c.ch.Close(); err != nil {
		_ = c.conn.Close()
		return err
	}
	select {
	case <-c.done:
	case <-time.After(handleTimeout):
	}
	return c.conn.Close()
}
