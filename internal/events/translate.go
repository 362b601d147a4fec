package events

import (
	"time"

	"realtime-service/internal/rooms"
)

// Outbound push event names.
const (
	OutMessageNew        = "message:new"
	OutMessageUpdated    = "message:updated"
	OutMessageDeleted    = "message:deleted"
	OutReactionUpdate    = "reaction:update"
	OutPresenceUpdate    = "presence_update"
	OutUserJoinedChannel = "user_joined_channel"
	OutUserLeftChannel   = "user_left_channel"
	OutMentionNotice     = "notification:mention"
	OutDMNotice          = "notification:dm"
)

// Broadcast is one room-scoped delivery produced by translation.
type Broadcast struct {
	Room    rooms.RoomID
	Event   string
	Payload map[string]any
}

// Translator maps each inbound event to its room-scoped broadcasts.
type Translator struct {
	now func() time.Time
}

// NewTranslator builds a Translator.
func NewTranslator() *Translator {
	return &Translator{now: time.Now}
}

// Translate expands an event into one or more broadcasts. A mention fans
// out additionally to each mentioned user's personal room; a DM send also
// notifies the receiver's personal room. DM reactions resolve their room
// exactly like DM messages.
func (t *Translator) Translate(ev Event) []Broadcast {
	ts := t.now().UTC().Format(time.RFC3339Nano)

	switch ev := ev.(type) {
	case ChannelMessageSent:
		createdAt := ev.CreatedAt
		if createdAt == "" {
			createdAt = ts
		}
		out := []Broadcast{{
			Room:  rooms.ChannelRoom(ev.ChannelID),
			Event: OutMessageNew,
			Payload: map[string]any{
				"id":          ev.MessageID,
				"channelId":   ev.ChannelID,
				"serverId":    ev.ServerID,
				"authorId":    ev.AuthorID,
				"content":     ev.Content,
				"attachments": ev.Attachments,
				"createdAt":   createdAt,
				"timestamp":   ts,
			},
		}}
		for _, mentioned := range ev.Mentions {
			out = append(out, Broadcast{
				Room:  rooms.UserRoom(mentioned),
				Event: OutMentionNotice,
				Payload: map[string]any{
					"authorId":  ev.AuthorID,
					"channelId": ev.ChannelID,
					"messageId": ev.MessageID,
					"timestamp": ts,
				},
			})
		}
		return out

	case ChannelMessageUpdated:
		return []Broadcast{{
			Room:  rooms.ChannelRoom(ev.ChannelID),
			Event: OutMessageUpdated,
			Payload: map[string]any{
				"id":        ev.MessageID,
				"channelId": ev.ChannelID,
				"content":   ev.Content,
				"isEdited":  true,
				"updatedAt": ts,
				"timestamp": ts,
			},
		}}

	case ChannelMessageDeleted:
		return []Broadcast{{
			Room:  rooms.ChannelRoom(ev.ChannelID),
			Event: OutMessageDeleted,
			Payload: map[string]any{
				"id":        ev.MessageID,
				"channelId": ev.ChannelID,
				"deletedAt": ts,
				"timestamp": ts,
			},
		}}

	case DMMessageSent:
		createdAt := ev.CreatedAt
		if createdAt == "" {
			createdAt = ts
		}
		return []Broadcast{
			{
				Room:  rooms.DMRoom(ev.SenderID, ev.ReceiverID),
				Event: OutMessageNew,
				Payload: map[string]any{
					"id":          ev.MessageID,
					"senderId":    ev.SenderID,
					"receiverId":  ev.ReceiverID,
					"content":     ev.Content,
					"attachments": ev.Attachments,
					"createdAt":   createdAt,
					"timestamp":   ts,
				},
			},
			{
				Room:  rooms.UserRoom(ev.ReceiverID),
				Event: OutDMNotice,
				Payload: map[string]any{
					"senderId":  ev.SenderID,
					"messageId": ev.MessageID,
					"timestamp": ts,
				},
			},
		}

	case DMMessageUpdated:
		return []Broadcast{{
			Room:  rooms.DMRoom(ev.SenderID, ev.ReceiverID),
			Event: OutMessageUpdated,
			Payload: map[string]any{
				"id":        ev.MessageID,
				"content":   ev.Content,
				"isEdited":  true,
				"updatedAt": ts,
				"timestamp": ts,
			},
		}}

	case DMMessageDeleted:
		return []Broadcast{{
			Room:  rooms.DMRoom(ev.SenderID, ev.ReceiverID),
			Event: OutMessageDeleted,
			Payload: map[string]any{
				"id":        ev.MessageID,
				"deletedAt": ts,
				"timestamp": ts,
			},
		}}

	case ReactionAdded:
		return []Broadcast{{
			Room:  reactionRoom(ev.Kind, ev.ChannelID, ev.UserID, ev.PeerID),
			Event: OutReactionUpdate,
			Payload: map[string]any{
				"action":    "added",
				"messageId": ev.MessageID,
				"userId":    ev.UserID,
				"emoji":     ev.Emoji,
				"timestamp": ts,
			},
		}}

	case ReactionRemoved:
		return []Broadcast{{
			Room:  reactionRoom(ev.Kind, ev.ChannelID, ev.UserID, ev.PeerID),
			Event: OutReactionUpdate,
			Payload: map[string]any{
				"action":    "removed",
				"messageId": ev.MessageID,
				"userId":    ev.UserID,
				"emoji":     ev.Emoji,
				"timestamp": ts,
			},
		}}

	case PresenceUpdated:
		return []Broadcast{{
			Room:  rooms.UserRoom(ev.UserID),
			Event: OutPresenceUpdate,
			Payload: map[string]any{
				"userId":       ev.UserID,
				"status":       ev.Status,
				"customStatus": ev.CustomStatus,
				"timestamp":    ts,
			},
		}}

	case StatusChanged:
		return []Broadcast{{
			Room:  rooms.UserRoom(ev.UserID),
			Event: OutPresenceUpdate,
			Payload: map[string]any{
				"userId":    ev.UserID,
				"status":    ev.Status,
				"timestamp": ts,
			},
		}}

	case ServerMemberJoined:
		out := make([]Broadcast, 0, len(ev.ChannelIDs))
		for _, channelID := range ev.ChannelIDs {
			out = append(out, Broadcast{
				Room:  rooms.ChannelRoom(channelID),
				Event: OutUserJoinedChannel,
				Payload: map[string]any{
					"userId":     ev.UserID,
					"serverId":   ev.ServerID,
					"channelId":  channelID,
					"memberInfo": ev.MemberInfo,
					"timestamp":  ts,
				},
			})
		}
		return out

	case ServerMemberLeft:
		out := make([]Broadcast, 0, len(ev.ChannelIDs))
		for _, channelID := range ev.ChannelIDs {
			out = append(out, Broadcast{
				Room:  rooms.ChannelRoom(channelID),
				Event: OutUserLeftChannel,
				Payload: map[string]any{
					"userId":    ev.UserID,
					"serverId":  ev.ServerID,
					"channelId": channelID,
					"timestamp": ts,
				},
			})
		}
		return out
	}

	return nil
}

func reactionRoom(kind, channelID, userID, peerID string) rooms.RoomID {
	if kind == "dm" {
		return rooms.DMRoom(userID, peerID)
	}
	return rooms.ChannelRoom(channelID)
}
