package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"coloring-session/internal/domain"
	"coloring-session/internal/dto"
	"coloring-session/internal/repository"
)

// JoinState 是 admit 成功后发给新客户端的全量状态。
type JoinState struct {
	Participant     domain.Participant
	Roster          []*domain.Participant
	Operations      []domain.DrawingOperation
	CurrentSequence uint64
}

// PresenceService 管理房间 roster：准入、心跳、存活扫描和房主迁移。
type PresenceService struct {
	store     *RoomStore
	stateRepo repository.StateRepository
	settings  Settings
}

// NewPresenceService 创建 PresenceService 实例。
func NewPresenceService(store *RoomStore, stateRepo repository.StateRepository, settings Settings) *PresenceService {
	if store == nil || stateRepo == nil {
		panic("all dependencies must be non-nil for PresenceService")
	}
	return &PresenceService{store: store, stateRepo: stateRepo, settings: settings}
}

// Admit 将新参与者准入房间。
// 分配调色盘中下一个未占用的身份色（离开者的颜色会被回收）；
// roster 中当前无人持有 host 时，新参与者成为房主。
func (s *PresenceService) Admit(ctx context.Context, code string, displayName string) (*JoinState, error) {
	normalized := domain.NormalizeCode(code)
	lr, ok := s.store.get(normalized)
	if !ok {
		return nil, ErrRoomNotFound
	}
	logCtx := logrus.WithFields(logrus.Fields{"code": normalized, "display_name": displayName})

	now := time.Now().UTC()

	lr.mu.Lock()
	if lr.room.Closed() {
		lr.mu.Unlock()
		return nil, ErrRoomNotFound
	}

	lr.rosterMu.Lock()
	if len(lr.participants) >= s.settings.RoomCapacity {
		lr.rosterMu.Unlock()
		lr.mu.Unlock()
		logCtx.Warn("Admit rejected: room full")
		return nil, ErrRoomFull
	}

	p := &domain.Participant{
		ID:              uuid.NewString(),
		DisplayName:     displayName,
		AssignedColor:   nextFreeColor(lr.participants),
		Role:            domain.RoleGuest,
		ConnectionState: domain.StateConnected,
		JoinedAt:        now,
		LastHeartbeatAt: now,
	}
	if !hasHost(lr.participants) {
		p.Role = domain.RoleHost
		lr.room.HostID = p.ID
	}
	lr.participants[p.ID] = p

	// CREATED/EMPTY_GRACE -> ACTIVE
	if lr.room.State == domain.RoomCreated || lr.room.State == domain.RoomEmptyGrace {
		lr.room.State = domain.RoomActive
		lr.emptySince = time.Time{}
	}
	lr.room.LastActivityAt = now

	state := &JoinState{
		Participant:     *p,
		Roster:          lr.rosterSnapshotLocked(),
		Operations:      append([]domain.DrawingOperation(nil), lr.log...),
		CurrentSequence: lr.room.NextSequence,
	}
	hostID := lr.room.HostID
	lr.rosterMu.Unlock()
	lr.mu.Unlock()

	s.publishPresence(ctx, normalized, state.Roster, hostID)
	logCtx.WithFields(logrus.Fields{"participant_id": p.ID, "role": p.Role}).Info("Participant admitted")
	return state, nil
}

// Reconnect 将宽限期内的参与者恢复为在线。
// 参与者已被移出 roster 时返回 ErrParticipantNotFound，客户端必须重新 join。
func (s *PresenceService) Reconnect(ctx context.Context, code string, participantID string, lastSeen uint64) (*domain.Participant, error) {
	normalized := domain.NormalizeCode(code)
	lr, ok := s.store.get(normalized)
	if !ok {
		return nil, ErrRoomNotFound
	}

	now := time.Now().UTC()

	lr.mu.Lock()
	lr.rosterMu.Lock()
	p, exists := lr.participants[participantID]
	if !exists {
		lr.rosterMu.Unlock()
		lr.mu.Unlock()
		return nil, ErrParticipantNotFound
	}
	p.ConnectionState = domain.StateConnected
	p.LastHeartbeatAt = now
	if lastSeen > p.LastSeenSequence {
		p.LastSeenSequence = lastSeen
	}
	if lr.room.State == domain.RoomEmptyGrace {
		lr.room.State = domain.RoomActive
		lr.emptySince = time.Time{}
	}
	lr.room.LastActivityAt = now
	cp := *p
	roster := lr.rosterSnapshotLocked()
	hostID := lr.room.HostID
	lr.rosterMu.Unlock()
	lr.mu.Unlock()

	s.publishPresence(ctx, normalized, roster, hostID)
	logrus.WithFields(logrus.Fields{"code": normalized, "participant_id": participantID}).Info("Participant reconnected")
	return &cp, nil
}

// Heartbeat 刷新参与者的心跳时间戳。
// reconnecting 状态的参与者收到心跳即恢复在线。
func (s *PresenceService) Heartbeat(ctx context.Context, code string, participantID string) error {
	normalized := domain.NormalizeCode(code)
	lr, ok := s.store.get(normalized)
	if !ok {
		return ErrRoomNotFound
	}

	revived := false
	lr.rosterMu.Lock()
	p, exists := lr.participants[participantID]
	if !exists {
		lr.rosterMu.Unlock()
		return ErrParticipantNotFound
	}
	p.LastHeartbeatAt = time.Now().UTC()
	if p.ConnectionState == domain.StateReconnecting {
		p.ConnectionState = domain.StateConnected
		revived = true
	}
	var roster []*domain.Participant
	if revived {
		roster = lr.rosterSnapshotLocked()
	}
	lr.rosterMu.Unlock()

	if revived {
		lr.mu.Lock()
		if lr.room.State == domain.RoomEmptyGrace {
			lr.room.State = domain.RoomActive
			lr.emptySince = time.Time{}
		}
		hostID := lr.room.HostID
		lr.mu.Unlock()
		s.publishPresence(ctx, normalized, roster, hostID)
	}
	return nil
}

// MarkPending 在连接断开时将参与者转入 reconnecting 宽限期。
// 不立即移除：断线是一等状态，移除交给超时扫描。
func (s *PresenceService) MarkPending(ctx context.Context, code string, participantID string) {
	normalized := domain.NormalizeCode(code)
	lr, ok := s.store.get(normalized)
	if !ok {
		return
	}

	lr.mu.Lock()
	lr.rosterMu.Lock()
	p, exists := lr.participants[participantID]
	if !exists {
		lr.rosterMu.Unlock()
		lr.mu.Unlock()
		return
	}
	p.ConnectionState = domain.StateReconnecting
	roster := lr.rosterSnapshotLocked()
	hostID := lr.room.HostID
	if lr.room.State == domain.RoomActive && lr.connectedCountLocked() == 0 {
		lr.room.State = domain.RoomEmptyGrace
		lr.emptySince = time.Now().UTC()
	}
	lr.rosterMu.Unlock()
	lr.mu.Unlock()

	s.publishPresence(ctx, normalized, roster, hostID)
	logrus.WithFields(logrus.Fields{"code": normalized, "participant_id": participantID}).Info("Participant connection lost, grace period started")
}

// RecordSeen 记录参与者已确认的最高操作序号。
func (s *PresenceService) RecordSeen(code string, participantID string, sequence uint64) {
	lr, ok := s.store.get(domain.NormalizeCode(code))
	if !ok {
		return
	}
	lr.rosterMu.Lock()
	if p, exists := lr.participants[participantID]; exists && sequence > p.LastSeenSequence {
		p.LastSeenSequence = sequence
	}
	lr.rosterMu.Unlock()
}

// SweepHeartbeats 全局存活扫描，由周期任务驱动，
// 静默的死连接不需要客户端做任何事就会被检测出来：
//   - 静默超过 HeartbeatTimeout 的在线参与者转入 reconnecting；
//   - 静默超过 DisconnectGrace 的参与者移出 roster，房主被移除时确定性地迁移。
//
// 返回 (转入宽限, 被移除) 的参与者数。
func (s *PresenceService) SweepHeartbeats(ctx context.Context) (int, int) {
	now := time.Now().UTC()
	pending, removed := 0, 0

	for _, code := range s.store.codes() {
		lr, ok := s.store.get(code)
		if !ok {
			continue
		}

		changed := false
		hostRemoved := false
		var removedIDs []string

		lr.mu.Lock()
		lr.rosterMu.Lock()
		for id, p := range lr.participants {
			silent := now.Sub(p.LastHeartbeatAt)
			if silent > s.settings.DisconnectGrace {
				if p.Role == domain.RoleHost {
					hostRemoved = true
				}
				delete(lr.participants, id)
				removedIDs = append(removedIDs, id)
				removed++
				changed = true
				continue
			}
			if p.ConnectionState == domain.StateConnected && silent > s.settings.HeartbeatTimeout {
				p.ConnectionState = domain.StateReconnecting
				pending++
				changed = true
			}
		}

		if hostRemoved {
			if next := domain.NextHost(lr.rosterSnapshotLocked()); next != nil {
				lr.participants[next.ID].Role = domain.RoleHost
				lr.room.HostID = next.ID
				logrus.WithFields(logrus.Fields{"code": code, "new_host": next.ID}).Info("Host migrated")
			} else {
				lr.room.HostID = ""
			}
		}

		if lr.room.State == domain.RoomActive && lr.connectedCountLocked() == 0 {
			lr.room.State = domain.RoomEmptyGrace
			lr.emptySince = now
		}

		var roster []*domain.Participant
		hostID := lr.room.HostID
		if changed {
			roster = lr.rosterSnapshotLocked()
		}
		lr.rosterMu.Unlock()
		lr.mu.Unlock()

		for _, id := range removedIDs {
			if err := s.stateRepo.ClearCursor(ctx, code, id); err != nil {
				logrus.WithError(err).WithField("code", code).Warn("Failed to clear cursor of removed participant")
			}
		}
		if changed {
			s.publishPresence(ctx, code, roster, hostID)
		}
	}
	return pending, removed
}

// Roster 返回房间当前的 roster 快照。
func (s *PresenceService) Roster(ctx context.Context, code string) ([]*domain.Participant, error) {
	lr, ok := s.store.get(domain.NormalizeCode(code))
	if !ok {
		return nil, ErrRoomNotFound
	}
	return lr.rosterSnapshot(), nil
}

func (s *PresenceService) publishPresence(ctx context.Context, code string, roster []*domain.Participant, hostID string) {
	payload := dto.MustMarshal(dto.TypePresence, dto.Presence{Roster: roster, HostID: hostID})
	if err := s.stateRepo.Publish(ctx, code, payload); err != nil {
		logrus.WithError(err).WithField("code", code).Error("Failed to publish presence update")
	}
}

// nextFreeColor 返回调色盘中第一个未被占用的颜色。
// 全部占用时回落到按人数取模（容量通常不超过调色盘大小）。
func nextFreeColor(participants map[string]*domain.Participant) string {
	used := make(map[string]bool, len(participants))
	for _, p := range participants {
		used[p.AssignedColor] = true
	}
	for _, c := range domain.IdentityPalette {
		if !used[c] {
			return c
		}
	}
	return domain.IdentityPalette[len(participants)%len(domain.IdentityPalette)]
}

func hasHost(participants map[string]*domain.Participant) bool {
	for _, p := range participants {
		if p.Role == domain.RoleHost {
			return true
		}
	}
	return false
}
