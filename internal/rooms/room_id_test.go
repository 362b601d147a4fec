package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDMRoomCanonicalOrdering(t *testing.T) {
	assert.Equal(t, DMRoom("alice", "bob"), DMRoom("bob", "alice"))
	assert.Equal(t, "dm:alice_bob", DMRoom("bob", "alice").String())
}

func TestRoomConstructors(t *testing.T) {
	assert.Equal(t, "channel:42", ChannelRoom("42").String())
	assert.Equal(t, "user:u1", UserRoom("u1").String())
	assert.Equal(t, KindChannel, ChannelRoom("42").Kind())
	assert.Equal(t, KindDM, DMRoom("a", "b").Kind())
	assert.Equal(t, KindUser, UserRoom("u1").Kind())
}

func TestParse(t *testing.T) {
	room, err := Parse("channel:42")
	require.NoError(t, err)
	assert.Equal(t, ChannelRoom("42"), room)

	// A DM id supplied in the wrong order canonicalizes.
	room, err = Parse("dm:bob_alice")
	require.NoError(t, err)
	assert.Equal(t, DMRoom("alice", "bob"), room)

	for _, raw := range []string{"", "channel:", "42", "dm:alice", "dm:_", "server:1"} {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidRoomID, "raw=%q", raw)
	}
}
