package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coloring-session/internal/domain"
	"coloring-session/internal/dto"
	"coloring-session/internal/service"
)

func TestCursorService_Publish(t *testing.T) {
	st := newTestStack(service.DefaultSettings())
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	st.stateRepo.On("SetCursor", mock.Anything, room.Code, mock.Anything).Return(nil)

	color := "#3498DB"
	err = st.cursors.Publish(ctx, room.Code, "participant-1", dto.CursorRequest{
		X: 0.25, Y: 0.75, IsDrawing: true, CurrentColor: &color,
	})

	require.NoError(t, err)
	st.stateRepo.AssertCalled(t, "SetCursor", ctx, room.Code, mock.MatchedBy(func(c domain.CursorPosition) bool {
		return c.ParticipantID == "participant-1" && c.X == 0.25 && c.Y == 0.75 && c.IsDrawing
	}))
	st.stateRepo.AssertCalled(t, "Publish", ctx, room.Code, mock.Anything)
}

func TestCursorService_Publish_UnknownRoom(t *testing.T) {
	st := newTestStack(service.DefaultSettings())

	err := st.cursors.Publish(context.Background(), "ZZZZZZ", "p1", dto.CursorRequest{X: 0.5, Y: 0.5})

	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
}

// 游标镜像写失败不报给客户端，下一条采样马上会覆盖
func TestCursorService_Publish_MirrorFailureTolerated(t *testing.T) {
	st := newTestStack(service.DefaultSettings())
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	st.stateRepo.On("SetCursor", mock.Anything, room.Code, mock.Anything).Return(errors.New("redis down"))

	err = st.cursors.Publish(ctx, room.Code, "p1", dto.CursorRequest{X: 0.1, Y: 0.2})

	assert.NoError(t, err)
}

func TestCursorService_Snapshot(t *testing.T) {
	st := newTestStack(service.DefaultSettings())
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	mirrored := map[string]domain.CursorPosition{
		"p1": {ParticipantID: "p1", X: 0.1, Y: 0.9, Timestamp: time.Now().UTC()},
	}
	st.stateRepo.On("GetCursors", mock.Anything, room.Code).Return(mirrored, nil).Once()

	cursors, err := st.cursors.Snapshot(ctx, room.Code)

	require.NoError(t, err)
	assert.Equal(t, mirrored, cursors)
}

func TestCursorService_Snapshot_UnknownRoom(t *testing.T) {
	st := newTestStack(service.DefaultSettings())

	_, err := st.cursors.Snapshot(context.Background(), "ZZZZZZ")

	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
}
