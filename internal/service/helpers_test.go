package service_test

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"coloring-session/internal/repository/mocks"
	"coloring-session/internal/service"
)

// mockEnqueuer 替代 asynq.Client 的投递面。
type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	var info *asynq.TaskInfo
	if args.Get(0) != nil {
		info = args.Get(0).(*asynq.TaskInfo)
	}
	return info, args.Error(1)
}

// testStack 把协作核心的全部服务和 Mock 依赖装配到一起。
// Mock 的默认预期是宽松的（.Maybe()），单个测试可以再叠加严格预期。
type testStack struct {
	store     *service.RoomStore
	roomRepo  *mocks.RoomRepository
	opRepo    *mocks.OperationRepository
	stateRepo *mocks.StateRepository
	enqueuer  *mockEnqueuer
	registry  *service.RegistryService
	presence  *service.PresenceService
	cursors   *service.CursorService
	oplog     *service.OpLogService
}

func newTestStack(settings service.Settings) *testStack {
	st := &testStack{
		store:     service.NewRoomStore(),
		roomRepo:  new(mocks.RoomRepository),
		opRepo:    new(mocks.OperationRepository),
		stateRepo: new(mocks.StateRepository),
		enqueuer:  new(mockEnqueuer),
	}

	st.roomRepo.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()
	st.roomRepo.On("MarkClosed", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	st.stateRepo.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	st.stateRepo.On("CleanupRoomState", mock.Anything, mock.Anything).Return(nil).Maybe()
	st.stateRepo.On("ClearCursor", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	st.enqueuer.On("EnqueueContext", mock.Anything, mock.Anything).Return(&asynq.TaskInfo{}, nil).Maybe()

	st.registry = service.NewRegistryService(st.store, st.roomRepo, st.stateRepo, settings)
	st.presence = service.NewPresenceService(st.store, st.stateRepo, settings)
	st.cursors = service.NewCursorService(st.store, st.stateRepo)
	st.oplog = service.NewOpLogService(st.store, st.stateRepo, st.opRepo, st.enqueuer, st.registry, st.presence, settings)
	return st
}
