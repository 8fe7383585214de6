package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"coloring-session/internal/repository/mocks"
	"coloring-session/internal/service"
)

type nopEnqueuer struct{}

func (nopEnqueuer) EnqueueContext(_ context.Context, _ *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

// newHubForTest 装配一个带 mock 依赖的 Hub。
func newHubForTest(t *testing.T) (*Hub, *mocks.StateRepository) {
	t.Helper()

	roomRepo := new(mocks.RoomRepository)
	opRepo := new(mocks.OperationRepository)
	stateRepo := new(mocks.StateRepository)
	roomRepo.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()
	roomRepo.On("MarkClosed", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	stateRepo.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	stateRepo.On("CleanupRoomState", mock.Anything, mock.Anything).Return(nil).Maybe()
	stateRepo.On("ClearCursor", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	stateRepo.On("Unsubscribe", mock.Anything).Return(nil).Maybe()

	settings := service.DefaultSettings()
	store := service.NewRoomStore()
	registry := service.NewRegistryService(store, roomRepo, stateRepo, settings)
	presence := service.NewPresenceService(store, stateRepo, settings)
	cursors := service.NewCursorService(store, stateRepo)
	oplog := service.NewOpLogService(store, stateRepo, opRepo, nopEnqueuer{}, registry, presence, settings)

	return NewHub(presence, cursors, oplog, registry, stateRepo), stateRepo
}

// 房间广播和强制关房跑在不同 goroutine 上，
// 两者并发时不允许出现 send-on-closed-channel panic。
func TestHub_BroadcastDuringForceClose_NoPanic(t *testing.T) {
	h, _ := newHubForTest(t)
	payload := []byte(`{"type":"op","data":{}}`)

	for i := 0; i < 100; i++ {
		code := fmt.Sprintf("RACE%02d", i)
		clients := make(map[*Client]bool, 32)
		for j := 0; j < 32; j++ {
			clients[NewClient(h, nil, code, fmt.Sprintf("p-%d", j))] = true
		}
		h.roomsMu.Lock()
		h.rooms[code] = clients
		h.roomsMu.Unlock()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				h.broadcastLocal(code, payload)
			}
		}()
		go func() {
			defer wg.Done()
			h.ForceCloseRoom(code, "race check")
		}()
		wg.Wait()
	}

	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	assert.Empty(t, h.rooms, "强制关房后不应残留本地客户端")
}

// 广播和逐个注销并发时同样不能 panic，且注销后的客户端拒收新帧。
func TestHub_BroadcastDuringUnregister_NoPanic(t *testing.T) {
	h, _ := newHubForTest(t)
	payload := []byte(`{"type":"presence","data":{}}`)

	code := "UNREG1"
	all := make([]*Client, 0, 64)
	clients := make(map[*Client]bool, 64)
	for j := 0; j < 64; j++ {
		c := NewClient(h, nil, code, fmt.Sprintf("p-%d", j))
		clients[c] = true
		all = append(all, c)
	}
	h.roomsMu.Lock()
	h.rooms[code] = clients
	h.roomsMu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for k := 0; k < 200; k++ {
			h.broadcastLocal(code, payload)
		}
	}()
	go func() {
		defer wg.Done()
		for _, c := range all {
			h.unregisterClient(c)
		}
	}()
	wg.Wait()

	for _, c := range all {
		assert.False(t, c.TrySend(payload), "注销后的客户端不应再接收帧")
	}
}

// TrySend 与 closeSend 直接并发也必须安全，且都保持幂等语义。
func TestClient_TrySendConcurrentWithCloseSend(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := NewClient(nil, nil, "ABC234", "p-1")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for k := 0; k < 20; k++ {
				c.TrySend([]byte("x"))
			}
		}()
		go func() {
			defer wg.Done()
			c.closeSend()
			c.closeSend() // 再关一次也无害
		}()
		wg.Wait()
		assert.False(t, c.TrySend([]byte("x")))
	}
}
