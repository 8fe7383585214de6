package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coloring-session/internal/domain"
	httpHandler "coloring-session/internal/handler/http"
	"coloring-session/internal/repository/mocks"
	"coloring-session/internal/service"
)

type stubEnqueuer struct{}

func (stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

type handlerFixture struct {
	router   *gin.Engine
	registry *service.RegistryService
	opRepo   *mocks.OperationRepository
}

func newHandlerFixture() *handlerFixture {
	gin.SetMode(gin.TestMode)

	roomRepo := new(mocks.RoomRepository)
	opRepo := new(mocks.OperationRepository)
	stateRepo := new(mocks.StateRepository)
	roomRepo.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()
	roomRepo.On("MarkClosed", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	stateRepo.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	stateRepo.On("CleanupRoomState", mock.Anything, mock.Anything).Return(nil).Maybe()

	settings := service.DefaultSettings()
	store := service.NewRoomStore()
	registry := service.NewRegistryService(store, roomRepo, stateRepo, settings)
	presence := service.NewPresenceService(store, stateRepo, settings)
	cursors := service.NewCursorService(store, stateRepo)
	oplog := service.NewOpLogService(store, stateRepo, opRepo, stubEnqueuer{}, registry, presence, settings)

	handler := httpHandler.NewRoomHandler(registry, presence, oplog, cursors)
	router := gin.New()
	router.POST("/api/rooms", handler.CreateRoom)
	router.GET("/api/rooms/:code", handler.GetRoom)
	router.GET("/api/rooms/:code/roster", handler.GetRoster)
	router.GET("/api/rooms/:code/replay", handler.ReplayRoom)

	return &handlerFixture{router: router, registry: registry, opRepo: opRepo}
}

func TestRoomHandler_CreateRoom(t *testing.T) {
	f := newHandlerFixture()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/rooms", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Code, 6)
	assert.Equal(t, string(domain.RoomCreated), body.State)
}

func TestRoomHandler_GetRoom(t *testing.T) {
	f := newHandlerFixture()
	room, err := f.registry.CreateRoom(context.Background())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/rooms/"+room.Code, nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), room.Code)
	assert.Contains(t, w.Body.String(), "occupancy")
}

func TestRoomHandler_GetRoom_NotFound(t *testing.T) {
	f := newHandlerFixture()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/rooms/ZZZZZZ", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Room not found")
}

func TestRoomHandler_ReplayRoom(t *testing.T) {
	f := newHandlerFixture()

	ops := []domain.DrawingOperation{
		{RoomCode: "ABC234", Sequence: 1, AuthorID: "a", Kind: domain.OpStroke, Payload: json.RawMessage(`{}`)},
		{RoomCode: "ABC234", Sequence: 2, AuthorID: "b", Kind: domain.OpFill, Payload: json.RawMessage(`{}`)},
	}
	f.opRepo.On("FindByRoomCode", mock.Anything, "ABC234").Return(ops, nil).Once()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/rooms/abc234/replay", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
	f.opRepo.AssertExpectations(t)
}
