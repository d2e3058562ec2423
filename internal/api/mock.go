package api

import (
	"context"

	"github.com/npezzotti/studychat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	return args.Get(0).([]types.Room), args.Error(1)
}
func (m *MockClient) CreateRoom(ctx context.Context, req types.CreateRoomRequest) (types.Room, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockClient) History(ctx context.Context, key types.RoomKey, before int64, limit int) ([]types.Message, error) {
	args := m.Called(ctx, key, before, limit)
	return args.Get(0).([]types.Message), args.Error(1)
}
func (m *MockClient) Pins(ctx context.Context, key types.RoomKey) ([]types.Message, error) {
	args := m.Called(ctx, key)
	return args.Get(0).([]types.Message), args.Error(1)
}
func (m *MockClient) EditMessage(ctx context.Context, id int64, text string) (types.Message, error) {
	args := m.Called(ctx, id, text)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockClient) DeleteMessage(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
