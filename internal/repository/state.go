package repository

import (
	"context"

	"coloring-session/internal/domain"
)

// StateRepository 定义与房间实时状态相关的操作，由 Redis 实现。
// 这里承载两类东西：
//  1. 游标的 last-write-wins 镜像（供快照接口和跨实例读取）；
//  2. 按房间划分的 Pub/Sub 通道，Hub 靠它把已定序的操作和
//     presence 变更扇出到所有实例的本地客户端。
type StateRepository interface {
	// === Cursor mirror (ephemeral, LWW) ===

	// SetCursor 覆盖写入某参与者的最新指针采样。
	SetCursor(ctx context.Context, code string, cursor domain.CursorPosition) error

	// GetCursors 返回房间内每个参与者的最新指针采样。
	GetCursors(ctx context.Context, code string) (map[string]domain.CursorPosition, error)

	// ClearCursor 删除某参与者的指针采样（离开房间时调用）。
	ClearCursor(ctx context.Context, code string, participantID string) error

	// === Room lifecycle ===

	// CleanupRoomState 清理房间关闭后遗留的全部 Redis key。
	CleanupRoomState(ctx context.Context, code string) error

	// === PubSub fan-out ===

	// Publish 将一帧已序列化的消息发布到房间频道。
	Publish(ctx context.Context, code string, payload []byte) error

	// Subscribe 订阅房间频道，返回只读消息流。
	// 对同一房间重复订阅返回同一条流。
	Subscribe(ctx context.Context, code string) (<-chan []byte, error)

	// Unsubscribe 取消某房间的订阅并关闭其消息流。
	Unsubscribe(code string) error

	// StopAllSubscriptions 关闭全部订阅（进程退出时调用）。
	StopAllSubscriptions()
}
