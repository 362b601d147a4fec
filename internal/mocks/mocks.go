package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"realtime-service/internal/presence"
	"realtime-service/internal/rooms"
	"realtime-service/internal/ws"
)

// StateStoreMock implements store.StateStore.
type StateStoreMock struct {
	mock.Mock
}

func (m *StateStoreMock) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	args := m.Called(ctx, key, ttl, members)
	return args.Error(0)
}

func (m *StateStoreMock) SetRemove(ctx context.Context, key string, members ...string) error {
	args := m.Called(ctx, key, members)
	return args.Error(0)
}

func (m *StateStoreMock) SetMembers(ctx context.Context, key string) ([]string, error) {
	args := m.Called(ctx, key)
	var members []string
	if val := args.Get(0); val != nil {
		members = val.([]string)
	}
	return members, args.Error(1)
}

func (m *StateStoreMock) SetCount(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StateStoreMock) HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	args := m.Called(ctx, key, fields, ttl)
	return args.Error(0)
}

func (m *StateStoreMock) HashGet(ctx context.Context, key, field string) (string, error) {
	args := m.Called(ctx, key, field)
	return args.String(0), args.Error(1)
}

func (m *StateStoreMock) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	args := m.Called(ctx, key)
	var fields map[string]string
	if val := args.Get(0); val != nil {
		fields = val.(map[string]string)
	}
	return fields, args.Error(1)
}

func (m *StateStoreMock) HashDelete(ctx context.Context, key string, fields ...string) error {
	args := m.Called(ctx, key, fields)
	return args.Error(0)
}

func (m *StateStoreMock) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *StateStoreMock) Expire(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}

func (m *StateStoreMock) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(int64), args.Error(1)
}

// PresenceNotifierMock implements registry.PresenceNotifier.
type PresenceNotifierMock struct {
	mock.Mock
}

func (m *PresenceNotifierMock) HandleConnectionCount(ctx context.Context, userID string, active int64) error {
	args := m.Called(ctx, userID, active)
	return args.Error(0)
}

// MembershipResolverMock implements ws.MembershipResolver.
type MembershipResolverMock struct {
	mock.Mock
}

func (m *MembershipResolverMock) Members(ctx context.Context, room rooms.RoomID) ([]string, error) {
	args := m.Called(ctx, room)
	var members []string
	if val := args.Get(0); val != nil {
		members = val.([]string)
	}
	return members, args.Error(1)
}

// PresenceApplierMock implements rabbitmq.PresenceApplier.
type PresenceApplierMock struct {
	mock.Mock
}

func (m *PresenceApplierMock) SetStatus(ctx context.Context, userID string, status presence.Status, customStatus string) (presence.Record, error) {
	args := m.Called(ctx, userID, status, customStatus)
	var rec presence.Record
	if val := args.Get(0); val != nil {
		rec = val.(presence.Record)
	}
	return rec, args.Error(1)
}

// BroadcasterMock implements rabbitmq.Broadcaster.
type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(ctx context.Context, room rooms.RoomID, event string, payload any) (ws.DeliveryReport, error) {
	args := m.Called(ctx, room, event, payload)
	var report ws.DeliveryReport
	if val := args.Get(0); val != nil {
		report = val.(ws.DeliveryReport)
	}
	return report, args.Error(1)
}
