package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/events"
	"realtime-service/internal/mocks"
	"realtime-service/internal/presence"
	"realtime-service/internal/registry"
	"realtime-service/internal/rooms"
	"realtime-service/internal/store"
	"realtime-service/internal/typing"
	"realtime-service/internal/ws"
)

// tokenAsUser treats the bearer token itself as the user id.
type tokenAsUser struct{}

func (tokenAsUser) Verify(token string) (string, error) {
	if token == "bad" {
		return "", errors.New("invalid token")
	}
	return token, nil
}

type handlerFixture struct {
	srv       *httptest.Server
	rooms     *rooms.Manager
	reg       *registry.Registry
	publisher *mocks.PublisherMock
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	rm := rooms.NewManager(st, time.Hour)
	pres := presence.NewTracker(st, time.Hour)
	reg := registry.NewRegistry(st, rm, pres, time.Hour)
	hub := ws.NewHub()
	dispatcher := ws.NewDispatcher(hub, rm, time.Second)
	limiter := ws.NewLimiter(st, map[string]ws.Limit{
		"join_room": {Count: 100, Window: time.Minute},
		"typing":    {Count: 100, Window: time.Minute},
		"presence":  {Count: 100, Window: time.Minute},
	})
	publisher := new(mocks.PublisherMock)
	handler := ws.NewHandler(hub, dispatcher, reg, pres, typing.NewTracker(st, 0), rm, limiter, tokenAsUser{}, publisher)

	router := gin.New()
	router.GET("/realtime", handler.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &handlerFixture{srv: srv, rooms: rm, reg: reg, publisher: publisher}
}

func (f *handlerFixture) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/realtime?token=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	encoded, err := ws.EncodeFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, encoded))
}

// readEvent reads frames off the socket until one matches the wanted
// event, skipping unrelated pushes that interleave with it.
func readEvent(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		if frame.Event != want {
			continue
		}
		var data map[string]any
		if len(frame.Data) > 0 && string(frame.Data) != "null" {
			require.NoError(t, json.Unmarshal(frame.Data, &data))
		}
		return data
	}
	t.Fatalf("no %s frame before deadline", want)
	return nil
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	f := newHandlerFixture(t)

	for _, token := range []string{"", "bad"} {
		url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/realtime"
		if token != "" {
			url += "?token=" + token
		}
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestConnectJoinBroadcastDisconnect(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	alice := f.dial(t, "alice")
	welcome := readEvent(t, alice, "connected")
	assert.NotEmpty(t, welcome["connectionId"])

	bob := f.dial(t, "bob")
	readEvent(t, bob, "connected")

	send(t, alice, "join_room", gin.H{"roomId": "channel:42"})
	assert.Equal(t, "channel:42", readEvent(t, alice, "room_joined")["roomId"])

	send(t, bob, "join_room", gin.H{"roomId": "channel:42"})
	assert.Equal(t, "channel:42", readEvent(t, bob, "room_joined")["roomId"])

	// Alice, already in the room, sees bob arrive.
	joined := readEvent(t, alice, "user_joined_channel")
	assert.Equal(t, "bob", joined["userId"])

	// Typing fans out to the room but never echoes to the sender.
	send(t, alice, "typing_start", gin.H{"roomId": "channel:42"})
	typingFrame := readEvent(t, bob, "typing_start")
	assert.Equal(t, "alice", typingFrame["userId"])
	assert.Equal(t, "channel:42", typingFrame["roomId"])

	// Disconnect cleans the shared membership up.
	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool {
		members, err := f.rooms.Members(ctx, rooms.ChannelRoom("42"))
		return err == nil && len(members) == 1
	}, 3*time.Second, 20*time.Millisecond, "membership must be removed on disconnect")

	require.Eventually(t, func() bool {
		online, err := f.reg.OnlineUsers(ctx)
		return err == nil && len(online) == 1 && online[0] == "bob"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestJoinRejectsForeignRooms(t *testing.T) {
	f := newHandlerFixture(t)

	alice := f.dial(t, "alice")
	readEvent(t, alice, "connected")

	// Someone else's personal room.
	send(t, alice, "join_room", gin.H{"roomId": "user:bob"})
	assert.Contains(t, readEvent(t, alice, "error")["message"], "not authorized")

	// A DM pair alice is not part of.
	send(t, alice, "join_room", gin.H{"roomId": "dm:bob_carol"})
	assert.Contains(t, readEvent(t, alice, "error")["message"], "not authorized")
}

func TestJoinDMByPeer(t *testing.T) {
	f := newHandlerFixture(t)

	alice := f.dial(t, "alice")
	readEvent(t, alice, "connected")

	send(t, alice, "join_room", gin.H{"otherUserId": "bob"})
	assert.Equal(t, "dm:alice_bob", readEvent(t, alice, "room_joined")["roomId"])
}

func TestUpdatePresencePublishesToBus(t *testing.T) {
	f := newHandlerFixture(t)
	published := make(chan struct{}, 1)
	f.publisher.On("Publish", mock.Anything, events.KeyPresenceUpdated, mock.Anything).
		Run(func(mock.Arguments) { published <- struct{}{} }).
		Return(nil).Once()

	alice := f.dial(t, "alice")
	readEvent(t, alice, "connected")

	send(t, alice, "update_presence", gin.H{"status": "away", "customStatus": "lunch"})
	ack := readEvent(t, alice, "presence_updated")
	assert.Equal(t, "away", ack["status"])
	assert.Equal(t, "lunch", ack["custom_status"])

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("presence update never reached the bus")
	}
}

func TestBroadcastFailsWhenMembershipUnavailable(t *testing.T) {
	members := new(mocks.MembershipResolverMock)
	members.On("Members", mock.Anything, rooms.ChannelRoom("42")).
		Return(nil, store.ErrUnavailable).Once()

	d := ws.NewDispatcher(ws.NewHub(), members, 0)
	_, err := d.Broadcast(context.Background(), rooms.ChannelRoom("42"), "message:new", nil)
	require.Error(t, err)
	members.AssertExpectations(t)
}

func TestUnknownCommandReportsError(t *testing.T) {
	f := newHandlerFixture(t)

	alice := f.dial(t, "alice")
	readEvent(t, alice, "connected")

	send(t, alice, "launch_rocket", nil)
	assert.Contains(t, readEvent(t, alice, "error")["message"], "unknown command")
}
