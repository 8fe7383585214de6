package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coloring-session/internal/domain"
)

// GormOperationRepository 是 OperationRepository 接口的 GORM/MySQL 实现。
// 操作日志在库里同样是只追加的：没有 Update/Delete 路径。
type GormOperationRepository struct {
	db *gorm.DB
}

// NewGormOperationRepository 创建 GormOperationRepository 实例。
func NewGormOperationRepository(db *gorm.DB) *GormOperationRepository {
	if db == nil {
		panic("gorm DB cannot be nil for GormOperationRepository")
	}
	return &GormOperationRepository{db: db}
}

// SaveBatch 批量保存操作记录。
// 落库任务可能被重试，(room_code, sequence) 撞唯一索引时按已写入处理。
func (r *GormOperationRepository) SaveBatch(ctx context.Context, ops []domain.DrawingOperation) error {
	if len(ops) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ops).Error
	if err != nil {
		return fmt.Errorf("gorm: failed to save operation batch (size %d): %w", len(ops), err)
	}
	return nil
}

// FindByRoomCode 按序号升序返回某房间的全部持久化操作。
func (r *GormOperationRepository) FindByRoomCode(ctx context.Context, code string) ([]domain.DrawingOperation, error) {
	var ops []domain.DrawingOperation
	err := r.db.WithContext(ctx).
		Where("room_code = ?", code).
		Order("sequence ASC").
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: failed to load operations for room %s: %w", code, err)
	}
	return ops, nil
}
