package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Routing keys consumed from the durable bus. Keys are namespaced by
// entity; the exchange binds message.*, message.reaction.*, user.presence.*
// and server.member.*.
const (
	KeyChannelMessageSent    = "message.channel.sent"
	KeyChannelMessageUpdated = "message.channel.updated"
	KeyChannelMessageDeleted = "message.channel.deleted"
	KeyDMMessageSent         = "message.dm.sent"
	KeyDMMessageUpdated      = "message.dm.updated"
	KeyDMMessageDeleted      = "message.dm.deleted"
	KeyReactionAdded         = "message.reaction.added"
	KeyReactionRemoved       = "message.reaction.removed"
	KeyPresenceUpdated       = "user.presence.updated"
	KeyStatusChanged         = "user.status.changed"
	KeyServerMemberJoined    = "server.member.joined"
	KeyServerMemberLeft      = "server.member.left"
)

var (
	// ErrUnknownRoutingKey marks routing keys this hub does not handle.
	// The bridge logs and acks these rather than requeueing them forever.
	ErrUnknownRoutingKey = errors.New("unknown routing key")
	// ErrMalformed marks payloads that fail to parse or are missing the
	// identifiers needed to resolve a room. Dropped, never requeued.
	ErrMalformed = errors.New("malformed event")
)

// Event is the closed union of inbound bus events. One case per routing
// key, so the translation step matches exhaustively and a new event type
// shows up as a compile-time gap instead of a runtime default branch.
type Event interface {
	isEvent()
}

// ChannelMessage covers sent/updated/deleted channel message events.
type ChannelMessageSent struct {
	MessageID   string            `json:"messageId"`
	ChannelID   string            `json:"channelId"`
	ServerID    string            `json:"serverId"`
	AuthorID    string            `json:"authorId"`
	Content     string            `json:"content"`
	Mentions    []string          `json:"mentions,omitempty"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
	CreatedAt   string            `json:"createdAt,omitempty"`
}

type ChannelMessageUpdated struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	ServerID  string `json:"serverId"`
	AuthorID  string `json:"authorId"`
	Content   string `json:"content"`
}

type ChannelMessageDeleted struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	ServerID  string `json:"serverId"`
	AuthorID  string `json:"authorId"`
}

// DMMessage events carry both participants so the canonical DM room can be
// derived without a round-trip to the message service.
type DMMessageSent struct {
	MessageID   string            `json:"messageId"`
	SenderID    string            `json:"senderId"`
	ReceiverID  string            `json:"receiverId"`
	Content     string            `json:"content"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
	CreatedAt   string            `json:"createdAt,omitempty"`
}

type DMMessageUpdated struct {
	MessageID  string `json:"messageId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

type DMMessageDeleted struct {
	MessageID  string `json:"messageId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// Reaction events cover both channel and DM messages. For kind "dm" the
// payload carries the DM peer so the room resolves exactly like DM
// messages do.
type ReactionAdded struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId,omitempty"`
	ServerID  string `json:"serverId,omitempty"`
	UserID    string `json:"userId"`
	PeerID    string `json:"peerId,omitempty"`
	Emoji     string `json:"emoji"`
	Kind      string `json:"type"`
}

type ReactionRemoved struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId,omitempty"`
	ServerID  string `json:"serverId,omitempty"`
	UserID    string `json:"userId"`
	PeerID    string `json:"peerId,omitempty"`
	Emoji     string `json:"emoji"`
	Kind      string `json:"type"`
}

type PresenceUpdated struct {
	UserID       string `json:"userId"`
	Status       string `json:"status"`
	CustomStatus string `json:"customStatus,omitempty"`
}

type StatusChanged struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ServerMember events carry the server's channel ids denormalized so the
// hub can notify every affected channel room without querying the server
// service.
type ServerMemberJoined struct {
	ServerID   string          `json:"serverId"`
	UserID     string          `json:"userId"`
	ChannelIDs []string        `json:"channelIds,omitempty"`
	MemberInfo json.RawMessage `json:"memberInfo,omitempty"`
}

type ServerMemberLeft struct {
	ServerID   string   `json:"serverId"`
	UserID     string   `json:"userId"`
	ChannelIDs []string `json:"channelIds,omitempty"`
}

func (ChannelMessageSent) isEvent()    {}
func (ChannelMessageUpdated) isEvent() {}
func (ChannelMessageDeleted) isEvent() {}
func (DMMessageSent) isEvent()         {}
func (DMMessageUpdated) isEvent()      {}
func (DMMessageDeleted) isEvent()      {}
func (ReactionAdded) isEvent()         {}
func (ReactionRemoved) isEvent()       {}
func (PresenceUpdated) isEvent()       {}
func (StatusChanged) isEvent()         {}
func (ServerMemberJoined) isEvent()    {}
func (ServerMemberLeft) isEvent()      {}

// Decode parses a bus delivery into its typed event. Unknown routing keys
// return ErrUnknownRoutingKey; payloads missing required room identifiers
// return ErrMalformed.
func Decode(routingKey string, body []byte) (Event, error) {
	switch routingKey {
	case KeyChannelMessageSent:
		var ev ChannelMessageSent
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.MessageID, ev.ChannelID)
	case KeyChannelMessageUpdated:
		var ev ChannelMessageUpdated
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.MessageID, ev.ChannelID)
	case KeyChannelMessageDeleted:
		var ev ChannelMessageDeleted
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.MessageID, ev.ChannelID)
	case KeyDMMessageSent:
		var ev DMMessageSent
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.MessageID, ev.SenderID, ev.ReceiverID)
	case KeyDMMessageUpdated:
		var ev DMMessageUpdated
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.MessageID, ev.SenderID, ev.ReceiverID)
	case KeyDMMessageDeleted:
		var ev DMMessageDeleted
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.MessageID, ev.SenderID, ev.ReceiverID)
	case KeyReactionAdded:
		var ev ReactionAdded
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireReactionRoom(routingKey, ev.Kind, ev.ChannelID, ev.UserID, ev.PeerID, ev.MessageID)
	case KeyReactionRemoved:
		var ev ReactionRemoved
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireReactionRoom(routingKey, ev.Kind, ev.ChannelID, ev.UserID, ev.PeerID, ev.MessageID)
	case KeyPresenceUpdated:
		var ev PresenceUpdated
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.UserID, ev.Status)
	case KeyStatusChanged:
		var ev StatusChanged
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.UserID, ev.Status)
	case KeyServerMemberJoined:
		var ev ServerMemberJoined
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.ServerID, ev.UserID)
	case KeyServerMemberLeft:
		var ev ServerMemberLeft
		if err := unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, requireFields(routingKey, ev.ServerID, ev.UserID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoutingKey, routingKey)
	}
}

func unmarshal(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func requireFields(routingKey string, fields ...string) error {
	for _, f := range fields {
		if f == "" {
			return fmt.Errorf("%w: %s missing required field", ErrMalformed, routingKey)
		}
	}
	return nil
}

func requireReactionRoom(routingKey, kind, channelID, userID, peerID, messageID string) error {
	if messageID == "" || userID == "" {
		return fmt.Errorf("%w: %s missing required field", ErrMalformed, routingKey)
	}
	switch kind {
	case "channel":
		if channelID == "" {
			return fmt.Errorf("%w: %s missing channelId", ErrMalformed, routingKey)
		}
	case "dm":
		if peerID == "" {
			return fmt.Errorf("%w: %s missing peerId", ErrMalformed, routingKey)
		}
	default:
		return fmt.Errorf("%w: %s unknown reaction type %q", ErrMalformed, routingKey, kind)
	}
	return nil
}
