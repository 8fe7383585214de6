package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"coloring-session/internal/domain"
	"coloring-session/internal/dto"
	"coloring-session/internal/repository"
)

// RoomClosedHandler 在房间被关闭（显式或回收）后调用。
// Session Coordinator 用它强制断开残留的连接。
type RoomClosedHandler func(code string, reason string)

// RegistryService 负责房间的创建、解析与销毁。
type RegistryService struct {
	store     *RoomStore
	roomRepo  repository.RoomRepository
	stateRepo repository.StateRepository
	settings  Settings

	handlersMu sync.Mutex
	onClosed   []RoomClosedHandler
}

// NewRegistryService 创建 RegistryService 实例。
func NewRegistryService(store *RoomStore, roomRepo repository.RoomRepository, stateRepo repository.StateRepository, settings Settings) *RegistryService {
	if store == nil || roomRepo == nil || stateRepo == nil {
		panic("all dependencies must be non-nil for RegistryService")
	}
	return &RegistryService{
		store:     store,
		roomRepo:  roomRepo,
		stateRepo: stateRepo,
		settings:  settings,
	}
}

// OnRoomClosed 注册房间关闭回调。
func (s *RegistryService) OnRoomClosed(fn RoomClosedHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onClosed = append(s.onClosed, fn)
}

// CreateRoom 创建一个新房间。
// 房主身份在其首次连接加入时确定（首个被 admit 的参与者成为 host）。
func (s *RegistryService) CreateRoom(ctx context.Context) (*domain.Room, error) {
	now := time.Now().UTC()

	// 生成房间码并占位。撞码（含冷却期内的码）换一个重试，
	// 码空间远大于活跃房间数，重试耗尽说明系统已经接近码空间容量。
	var lr *liveRoom
	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := randomCode(s.settings.CodeLength)
		if err != nil {
			logrus.WithError(err).Error("Failed to draw random room code")
			return nil, ErrInternalServer
		}
		candidate := newLiveRoom(code, now)
		if s.store.tryInsert(candidate, now) {
			lr = candidate
			break
		}
		logrus.WithField("code", code).Warnf("Room code collision, retrying (attempt %d)", attempt+1)
	}
	if lr == nil {
		logrus.Errorf("Failed to allocate a room code after %d attempts, %d rooms active", maxAttempts, s.store.Len())
		return nil, ErrCodeExhausted
	}

	roomCopy := lr.room
	if err := s.roomRepo.Save(ctx, &roomCopy); err != nil {
		// 留痕失败不拖垮会话本身，权威状态在内存里
		logrus.WithError(err).WithField("code", lr.room.Code).Error("Failed to persist room record")
	}

	logrus.WithField("code", lr.room.Code).Info("Room created")
	result := lr.room
	return &result, nil
}

// ResolveRoom 按房间码解析活跃房间，返回房间快照和当前占用人数。
func (s *RegistryService) ResolveRoom(ctx context.Context, code string) (*domain.Room, int, error) {
	lr, ok := s.store.get(domain.NormalizeCode(code))
	if !ok {
		return nil, 0, ErrRoomNotFound
	}

	lr.mu.Lock()
	room := lr.room
	lr.mu.Unlock()

	lr.rosterMu.RLock()
	occupancy := len(lr.participants)
	lr.rosterMu.RUnlock()

	return &room, occupancy, nil
}

// CloseRoom 立即关闭房间。
// requestedBy 非空时要求其为当前房主；空字符串表示系统发起（回收、容量故障）。
func (s *RegistryService) CloseRoom(ctx context.Context, code string, requestedBy string, reason string) error {
	normalized := domain.NormalizeCode(code)
	lr, ok := s.store.get(normalized)
	if !ok {
		return ErrRoomNotFound
	}
	logCtx := logrus.WithFields(logrus.Fields{"code": normalized, "reason": reason})

	lr.mu.Lock()
	if lr.room.Closed() {
		lr.mu.Unlock()
		return ErrRoomNotFound
	}
	if requestedBy != "" && lr.room.HostID != requestedBy {
		lr.mu.Unlock()
		return ErrNotHost
	}
	now := time.Now().UTC()
	lr.room.State = domain.RoomClosed
	lr.room.ClosedAt = &now
	finalSeq := lr.room.NextSequence
	lr.mu.Unlock()

	// 摘除后房间码进入冷却期，之后 Submit/Admit 一律 ErrRoomNotFound
	s.store.remove(normalized, now.Add(s.settings.CodeReuseCooldown))

	// 先广播关闭事件，让所有实例上的客户端都收到，再清理订阅
	payload := dto.MustMarshal(dto.TypeRoomClosed, dto.RoomClosed{Reason: reason})
	if err := s.stateRepo.Publish(ctx, normalized, payload); err != nil {
		logCtx.WithError(err).Error("Failed to publish room_closed event")
	}

	if err := s.roomRepo.MarkClosed(ctx, normalized, finalSeq, now); err != nil {
		logCtx.WithError(err).Error("Failed to mark room closed in database")
	}
	if err := s.stateRepo.CleanupRoomState(ctx, normalized); err != nil {
		logCtx.WithError(err).Error("Failed to cleanup room state in Redis")
	}

	s.handlersMu.Lock()
	handlers := append([]RoomClosedHandler(nil), s.onClosed...)
	s.handlersMu.Unlock()
	for _, fn := range handlers {
		fn(normalized, reason)
	}

	logCtx.Info("Room closed")
	return nil
}

// EvictIdleRooms 回收超过 TTL 的空房间，返回回收数量。
// 由周期任务驱动，覆盖两种情况：
//   - EMPTY_GRACE 且空置时长超过 EmptyRoomTTL；
//   - CREATED 但创建者一直没有连上来。
func (s *RegistryService) EvictIdleRooms(ctx context.Context) int {
	now := time.Now().UTC()
	evicted := 0
	for _, code := range s.store.codes() {
		lr, ok := s.store.get(code)
		if !ok {
			continue
		}
		lr.mu.Lock()
		expired := false
		switch lr.room.State {
		case domain.RoomEmptyGrace:
			expired = !lr.emptySince.IsZero() && now.Sub(lr.emptySince) > s.settings.EmptyRoomTTL
		case domain.RoomCreated:
			expired = now.Sub(lr.room.CreatedAt) > s.settings.EmptyRoomTTL
		}
		lr.mu.Unlock()

		if expired {
			if err := s.CloseRoom(ctx, code, "", "room idle timeout"); err == nil {
				evicted++
			}
		}
	}
	if evicted > 0 {
		logrus.WithField("count", evicted).Info("Idle rooms evicted")
	}
	return evicted
}

// randomCode 从固定字母表抽取一个房间码。
func randomCode(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	for i := range b {
		b[i] = domain.CodeAlphabet[int(b[i])%len(domain.CodeAlphabet)]
	}
	return string(b), nil
}
