package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coloring-session/internal/domain"
	"coloring-session/internal/service"
)

func TestPresenceService_Admit_FirstParticipantBecomesHost(t *testing.T) {
	st := newTestStack(service.DefaultSettings())
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	first, err := st.presence.Admit(ctx, room.Code, "painter-one")
	require.NoError(t, err)
	second, err := st.presence.Admit(ctx, room.Code, "painter-two")
	require.NoError(t, err)

	assert.Equal(t, domain.RoleHost, first.Participant.Role, "首个参与者应成为房主")
	assert.Equal(t, domain.RoleGuest, second.Participant.Role, "后续参与者应为 guest")
	assert.Equal(t, domain.StateConnected, first.Participant.ConnectionState)
	assert.NotEmpty(t, first.Participant.ID)
	assert.NotEqual(t, first.Participant.ID, second.Participant.ID)

	// admit 返回全量状态：roster、操作日志和当前序号
	assert.Len(t, second.Roster, 2)
	assert.Empty(t, second.Operations)
	assert.Equal(t, uint64(0), second.CurrentSequence)

	// 首个参与者连接后房间进入 ACTIVE
	resolved, occupancy, err := st.registry.ResolveRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomActive, resolved.State)
	assert.Equal(t, first.Participant.ID, resolved.HostID)
	assert.Equal(t, 2, occupancy)
}

func TestPresenceService_Admit_UniqueColors(t *testing.T) {
	st := newTestStack(service.DefaultSettings())
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	colors := make(map[string]bool)
	for i := 0; i < 8; i++ {
		state, err := st.presence.Admit(ctx, room.Code, "painter")
		require.NoError(t, err)
		assert.False(t, colors[state.Participant.AssignedColor], "身份色 %s 不应重复分配", state.Participant.AssignedColor)
		colors[state.Participant.AssignedColor] = true
	}
}

func TestPresenceService_Admit_RoomFull(t *testing.T) {
	settings := service.DefaultSettings()
	settings.RoomCapacity = 2
	st := newTestStack(settings)
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	_, err = st.presence.Admit(ctx, room.Code, "one")
	require.NoError(t, err)
	_, err = st.presence.Admit(ctx, room.Code, "two")
	require.NoError(t, err)

	_, err = st.presence.Admit(ctx, room.Code, "three")
	assert.True(t, errors.Is(err, service.ErrRoomFull), "超过容量的加入应被拒绝")
}

func TestPresenceService_Admit_UnknownRoom(t *testing.T) {
	st := newTestStack(service.DefaultSettings())

	_, err := st.presence.Admit(context.Background(), "ZZZZZZ", "painter")

	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
}

func TestPresenceService_Reconnect(t *testing.T) {
	st := newTestStack(service.DefaultSettings())
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)
	state, err := st.presence.Admit(ctx, room.Code, "painter")
	require.NoError(t, err)

	// 断线进入宽限期
	st.presence.MarkPending(ctx, room.Code, state.Participant.ID)
	roster, err := st.presence.Roster(ctx, room.Code)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, domain.StateReconnecting, roster[0].ConnectionState, "断线后应进入 reconnecting 而不是被移除")

	// 宽限期内重连恢复在线
	p, err := st.presence.Reconnect(ctx, room.Code, state.Participant.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnected, p.ConnectionState)
	assert.Equal(t, state.Participant.ID, p.ID, "重连应保留原有身份")
}

func TestPresenceService_Reconnect_RemovedParticipant(t *testing.T) {
	st := newTestStack(service.DefaultSettings())
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	_, err = st.presence.Reconnect(ctx, room.Code, "no-such-participant", 0)

	assert.True(t, errors.Is(err, service.ErrParticipantNotFound), "已被移除的参与者必须重新 join")
}

func TestPresenceService_MarkPending_LastParticipant_RoomEntersGrace(t *testing.T) {
	st := newTestStack(service.DefaultSettings())
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)
	state, err := st.presence.Admit(ctx, room.Code, "painter")
	require.NoError(t, err)

	st.presence.MarkPending(ctx, room.Code, state.Participant.ID)

	resolved, _, err := st.registry.ResolveRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomEmptyGrace, resolved.State, "最后一个在线参与者断开后房间应进入 EMPTY_GRACE")

	// 宽限期内重连把房间拉回 ACTIVE
	_, err = st.presence.Reconnect(ctx, room.Code, state.Participant.ID, 0)
	require.NoError(t, err)
	resolved, _, err = st.registry.ResolveRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomActive, resolved.State)
}

func TestPresenceService_SweepHeartbeats_SilentConnectionsDegrade(t *testing.T) {
	settings := service.DefaultSettings()
	settings.HeartbeatTimeout = time.Nanosecond // 任何静默都超时
	settings.DisconnectGrace = time.Hour        // 但不会被移除
	st := newTestStack(settings)
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)
	state, err := st.presence.Admit(ctx, room.Code, "painter")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	pending, removed := st.presence.SweepHeartbeats(ctx)

	assert.Equal(t, 1, pending, "静默超过心跳超时的参与者应转入 reconnecting")
	assert.Equal(t, 0, removed)

	// 心跳让参与者恢复在线
	require.NoError(t, st.presence.Heartbeat(ctx, room.Code, state.Participant.ID))
	roster, err := st.presence.Roster(ctx, room.Code)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, domain.StateConnected, roster[0].ConnectionState)
}

func TestPresenceService_SweepHeartbeats_HostMigration(t *testing.T) {
	settings := service.DefaultSettings()
	settings.HeartbeatTimeout = 20 * time.Millisecond
	settings.DisconnectGrace = 40 * time.Millisecond
	st := newTestStack(settings)
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	host, err := st.presence.Admit(ctx, room.Code, "painter-host")
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond) // 房主心跳老化到超过宽限期
	guest, err := st.presence.Admit(ctx, room.Code, "painter-guest")
	require.NoError(t, err)

	_, removed := st.presence.SweepHeartbeats(ctx)

	assert.Equal(t, 1, removed, "静默超过宽限期的房主应被移除")
	roster, err := st.presence.Roster(ctx, room.Code)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, guest.Participant.ID, roster[0].ID)
	assert.Equal(t, domain.RoleHost, roster[0].Role, "房主被移除后应确定性地迁移给剩余参与者")

	resolved, _, err := st.registry.ResolveRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, guest.Participant.ID, resolved.HostID)

	// 被移除者的游标采样应被清掉
	st.stateRepo.AssertCalled(t, "ClearCursor", ctx, room.Code, host.Participant.ID)
}

func TestPresenceService_ColorRecycling(t *testing.T) {
	settings := service.DefaultSettings()
	settings.HeartbeatTimeout = time.Nanosecond
	settings.DisconnectGrace = time.Nanosecond // 扫描即移除
	st := newTestStack(settings)
	ctx := context.Background()
	room, err := st.registry.CreateRoom(ctx)
	require.NoError(t, err)

	first, err := st.presence.Admit(ctx, room.Code, "leaver")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, removed := st.presence.SweepHeartbeats(ctx)
	require.Equal(t, 1, removed)

	// 离开者的颜色被回收，下一个加入者拿到同一个颜色
	next, err := st.presence.Admit(ctx, room.Code, "joiner")
	require.NoError(t, err)
	assert.Equal(t, first.Participant.AssignedColor, next.Participant.AssignedColor)
}
