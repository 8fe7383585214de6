package repository

import (
	"context"
	"time"

	"coloring-session/internal/domain"
)

// RoomRepository 定义房间记录的持久化操作（权威状态在内存里，
// 这里只负责留痕：创建记录、关闭记录、历史查询）。
type RoomRepository interface {
	// Save 保存房间信息。已存在（基于 ID）则更新，否则创建。
	Save(ctx context.Context, room *domain.Room) error

	// FindByCode 按房间码查找最近一条房间记录。
	// 不存在时返回 repository.ErrRoomNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// MarkClosed 将房间记录置为 CLOSED 并落下最终序号。
	MarkClosed(ctx context.Context, code string, finalSequence uint64, closedAt time.Time) error
}
