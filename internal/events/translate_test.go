package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/rooms"
)

func findBroadcast(t *testing.T, out []Broadcast, room rooms.RoomID, event string) Broadcast {
	t.Helper()
	for _, b := range out {
		if b.Room == room && b.Event == event {
			return b
		}
	}
	t.Fatalf("no %s broadcast for %s in %v", event, room, out)
	return Broadcast{}
}

func TestTranslateChannelMessageFansOutMentions(t *testing.T) {
	tr := NewTranslator()
	out := tr.Translate(ChannelMessageSent{
		MessageID: "m1",
		ChannelID: "42",
		ServerID:  "s1",
		AuthorID:  "alice",
		Content:   "hey @bob @carol",
		Mentions:  []string{"bob", "carol"},
	})

	require.Len(t, out, 3)

	msg := findBroadcast(t, out, rooms.ChannelRoom("42"), OutMessageNew)
	assert.Equal(t, "m1", msg.Payload["id"])
	assert.Equal(t, "alice", msg.Payload["authorId"])

	for _, mentioned := range []string{"bob", "carol"} {
		notice := findBroadcast(t, out, rooms.UserRoom(mentioned), OutMentionNotice)
		assert.Equal(t, "alice", notice.Payload["authorId"])
		assert.Equal(t, "m1", notice.Payload["messageId"])
	}
}

func TestTranslateDMMessageNotifiesReceiver(t *testing.T) {
	tr := NewTranslator()
	out := tr.Translate(DMMessageSent{
		MessageID:  "m1",
		SenderID:   "bob",
		ReceiverID: "alice",
		Content:    "hi",
	})

	require.Len(t, out, 2)

	// The DM room is canonical regardless of who sent the message.
	msg := findBroadcast(t, out, rooms.DMRoom("alice", "bob"), OutMessageNew)
	assert.Equal(t, "bob", msg.Payload["senderId"])

	notice := findBroadcast(t, out, rooms.UserRoom("alice"), OutDMNotice)
	assert.Equal(t, "bob", notice.Payload["senderId"])
}

func TestTranslateReactionsResolveRoomByKind(t *testing.T) {
	tr := NewTranslator()

	out := tr.Translate(ReactionAdded{
		MessageID: "m1", ChannelID: "42", UserID: "alice", Emoji: "👍", Kind: "channel",
	})
	require.Len(t, out, 1)
	assert.Equal(t, rooms.ChannelRoom("42"), out[0].Room)
	assert.Equal(t, "added", out[0].Payload["action"])

	out = tr.Translate(ReactionRemoved{
		MessageID: "m1", UserID: "alice", PeerID: "bob", Emoji: "👍", Kind: "dm",
	})
	require.Len(t, out, 1)
	assert.Equal(t, rooms.DMRoom("alice", "bob"), out[0].Room)
	assert.Equal(t, "removed", out[0].Payload["action"])
}

func TestTranslatePresenceTargetsPersonalRoom(t *testing.T) {
	tr := NewTranslator()

	out := tr.Translate(PresenceUpdated{UserID: "alice", Status: "away", CustomStatus: "lunch"})
	require.Len(t, out, 1)
	assert.Equal(t, rooms.UserRoom("alice"), out[0].Room)
	assert.Equal(t, OutPresenceUpdate, out[0].Event)
	assert.Equal(t, "away", out[0].Payload["status"])

	out = tr.Translate(StatusChanged{UserID: "alice", Status: "busy"})
	require.Len(t, out, 1)
	assert.Equal(t, rooms.UserRoom("alice"), out[0].Room)
	assert.Equal(t, OutPresenceUpdate, out[0].Event)
}

func TestTranslateServerMembershipPerChannel(t *testing.T) {
	tr := NewTranslator()

	out := tr.Translate(ServerMemberJoined{
		ServerID:   "s1",
		UserID:     "bob",
		ChannelIDs: []string{"1", "2"},
	})
	require.Len(t, out, 2)
	for _, channelID := range []string{"1", "2"} {
		b := findBroadcast(t, out, rooms.ChannelRoom(channelID), OutUserJoinedChannel)
		assert.Equal(t, "bob", b.Payload["userId"])
	}

	// No channels means nothing to announce.
	assert.Empty(t, tr.Translate(ServerMemberLeft{ServerID: "s1", UserID: "bob"}))
}
