package ws

import (
	"encoding/json"
	"errors"
	"strings"

	"realtime-service/internal/rooms"
)

var (
	errInvalidRoom   = errors.New("invalid room")
	errRoomForbidden = errors.New("not authorized for room")
)

// command is an inbound client frame. Data stays raw until the command
// type is known.
type command struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// dmPeer returns the other participant of a DM room, or "" when the user
// is not part of the pair.
func dmPeer(room rooms.RoomID, userID string) string {
	rest, ok := strings.CutPrefix(room.String(), rooms.KindDM+":")
	if !ok {
		return ""
	}
	a, b, ok := strings.Cut(rest, "_")
	if !ok {
		return ""
	}
	switch userID {
	case a:
		return b
	case b:
		return a
	default:
		return ""
	}
}

func cutBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
