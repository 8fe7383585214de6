package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"coloring-session/internal/domain"
	"coloring-session/internal/dto"
	"coloring-session/internal/repository"
)

// CursorService 是临时指针遥测的通道。
// 故意与操作日志分开：高频的指针采样如果挤进严格定序的日志，
// 会被同一个串行化瓶颈卡住，而丢几条采样对正确性毫无影响。
// 每参与者只存最新一条（last-write-wins），投递至多一次，
// 静默只代表"没变"，空闲淡出是客户端的展示层问题。
type CursorService struct {
	store     *RoomStore
	stateRepo repository.StateRepository
}

// NewCursorService 创建 CursorService 实例。
func NewCursorService(store *RoomStore, stateRepo repository.StateRepository) *CursorService {
	if store == nil || stateRepo == nil {
		panic("all dependencies must be non-nil for CursorService")
	}
	return &CursorService{store: store, stateRepo: stateRepo}
}

// Publish 记录某参与者的最新指针采样并广播。
// 整个路径不碰操作日志锁。
func (s *CursorService) Publish(ctx context.Context, code string, participantID string, req dto.CursorRequest) error {
	normalized := domain.NormalizeCode(code)
	if _, ok := s.store.get(normalized); !ok {
		return ErrRoomNotFound
	}

	cursor := domain.CursorPosition{
		ParticipantID: participantID,
		X:             req.X,
		Y:             req.Y,
		IsDrawing:     req.IsDrawing,
		CurrentColor:  req.CurrentColor,
		Timestamp:     time.Now().UTC(),
	}

	// 镜像和广播都是尽力而为：失败记日志但不报给客户端，
	// 下一条采样马上会覆盖掉这条
	if err := s.stateRepo.SetCursor(ctx, normalized, cursor); err != nil {
		logrus.WithError(err).WithField("code", normalized).Warn("Failed to mirror cursor sample")
	}
	payload := dto.MustMarshal(dto.TypeCursor, cursor)
	if err := s.stateRepo.Publish(ctx, normalized, payload); err != nil {
		logrus.WithError(err).WithField("code", normalized).Warn("Failed to publish cursor sample")
	}
	return nil
}

// Snapshot 返回房间内每个参与者的最新指针采样。
func (s *CursorService) Snapshot(ctx context.Context, code string) (map[string]domain.CursorPosition, error) {
	normalized := domain.NormalizeCode(code)
	if _, ok := s.store.get(normalized); !ok {
		return nil, ErrRoomNotFound
	}
	cursors, err := s.stateRepo.GetCursors(ctx, normalized)
	if err != nil {
		logrus.WithError(err).WithField("code", normalized).Error("Failed to read cursor snapshot")
		return nil, ErrInternalServer
	}
	return cursors, nil
}
