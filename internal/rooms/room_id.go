package rooms

import (
	"errors"
	"strings"
)

// RoomID is a logical broadcast scope: a channel, a DM pair, or a user's
// personal inbox. All construction goes through the functions below so the
// canonicalization rules (DM pair ordering in particular) live in one place.
type RoomID string

// Room kinds.
const (
	KindChannel = "channel"
	KindDM      = "dm"
	KindUser    = "user"
)

var ErrInvalidRoomID = errors.New("invalid room id")

// ChannelRoom is the broadcast scope for a channel.
func ChannelRoom(channelID string) RoomID {
	return RoomID(KindChannel + ":" + channelID)
}

// DMRoom is the broadcast scope for a direct-message pair. The pair is
// sorted so both participants derive the same room id.
func DMRoom(userA, userB string) RoomID {
	if userB < userA {
		userA, userB = userB, userA
	}
	return RoomID(KindDM + ":" + userA + "_" + userB)
}

// UserRoom is a user's personal room, auto-joined at connect time and used
// for targeted notifications (mentions, DM delivery).
func UserRoom(userID string) RoomID {
	return RoomID(KindUser + ":" + userID)
}

// Parse validates a client-supplied room id.
func Parse(raw string) (RoomID, error) {
	kind, rest, ok := strings.Cut(raw, ":")
	if !ok || rest == "" {
		return "", ErrInvalidRoomID
	}
	switch kind {
	case KindChannel, KindUser:
		return RoomID(raw), nil
	case KindDM:
		a, b, ok := strings.Cut(rest, "_")
		if !ok || a == "" || b == "" {
			return "", ErrInvalidRoomID
		}
		return DMRoom(a, b), nil
	default:
		return "", ErrInvalidRoomID
	}
}

// Kind reports the room's kind, or "" for a malformed id.
func (r RoomID) Kind() string {
	kind, _, ok := strings.Cut(string(r), ":")
	if !ok {
		return ""
	}
	return kind
}

func (r RoomID) String() string {
	return string(r)
}
