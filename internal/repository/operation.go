package repository

import (
	"context"

	"coloring-session/internal/domain"
)

// OperationRepository 定义已定序操作的持久化存储。
// 写入走后台任务（不在提交热路径上），读取用于回放接口。
type OperationRepository interface {
	// SaveBatch 批量保存操作记录。依赖 (room_code, sequence) 唯一索引，
	// 重复投递同一条操作时应吞掉唯一约束冲突（任务会被重试）。
	SaveBatch(ctx context.Context, ops []domain.DrawingOperation) error

	// FindByRoomCode 按序号升序返回某房间的全部持久化操作。
	FindByRoomCode(ctx context.Context, code string) ([]domain.DrawingOperation, error)
}
