package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/presence"
	"realtime-service/internal/registry"
	"realtime-service/internal/rooms"
	"realtime-service/internal/store"
	"realtime-service/internal/typing"
	"realtime-service/internal/ws"
)

type fixture struct {
	router *gin.Engine
	store  *store.Memory
	reg    *registry.Registry
	pres   *presence.Tracker
	typ    *typing.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	rm := rooms.NewManager(st, time.Hour)
	pres := presence.NewTracker(st, time.Hour)
	reg := registry.NewRegistry(st, rm, pres, time.Hour)
	typ := typing.NewTracker(st, 0)
	h := NewRealtimeHandler(reg, pres, typ, ws.NewHub())

	router := gin.New()
	router.GET("/stats", h.GetStats)
	router.GET("/users/:user_id/presence", h.GetPresence)
	router.GET("/users/:user_id/connections", h.GetConnections)
	router.GET("/rooms/:room_id/typing", h.GetTypers)

	return &fixture{router: router, store: st, reg: reg, pres: pres, typ: typ}
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.Register(ctx, registry.Connection{ID: "c1", UserID: "alice"}))
	require.NoError(t, f.reg.Register(ctx, registry.Connection{ID: "c2", UserID: "alice"}))
	require.NoError(t, f.reg.Register(ctx, registry.Connection{ID: "c3", UserID: "bob"}))

	rec, body := f.get(t, "/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["unique_online_users"])
}

func TestGetPresence(t *testing.T) {
	f := newFixture(t)
	_, err := f.pres.SetStatus(context.Background(), "alice", presence.StatusAway, "lunch")
	require.NoError(t, err)

	rec, body := f.get(t, "/users/alice/presence")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "away", body["status"])
	assert.Equal(t, "lunch", body["custom_status"])

	// Unknown users read as offline rather than 404.
	rec, body = f.get(t, "/users/nobody/presence")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "offline", body["status"])
}

func TestGetConnections(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.Register(context.Background(), registry.Connection{ID: "c1", UserID: "alice"}))

	rec, body := f.get(t, "/users/alice/connections")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"c1"}, body["connections"])
}

func TestGetTypers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.typ.Start(context.Background(), rooms.ChannelRoom("42"), "alice", time.Now()))

	rec, body := f.get(t, "/rooms/channel:42/typing")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"alice"}, body["typing"])

	rec, _ = f.get(t, "/rooms/not-a-room/typing")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
