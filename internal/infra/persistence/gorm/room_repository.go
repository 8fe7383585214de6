package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"coloring-session/internal/domain"
	"coloring-session/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM/MySQL 实现。
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例。
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("gorm DB cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// Save 保存房间记录。
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Save(room).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: failed to save room %s: %w", room.Code, err)
	}
	return nil
}

// FindByCode 按房间码查找最近一条记录。
// 码冷却期后可复用，所以可能存在多条历史记录，取最新。
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).Order("id DESC").First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: failed to find room by code %s: %w", code, err)
	}
	return &room, nil
}

// MarkClosed 将最近一条房间记录置为 CLOSED。
func (r *GormRoomRepository) MarkClosed(ctx context.Context, code string, finalSequence uint64, closedAt time.Time) error {
	room, err := r.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"state":         domain.RoomClosed,
		"next_sequence": finalSequence,
		"closed_at":     closedAt,
	}
	if err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("id = ?", room.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("gorm: failed to mark room %s closed: %w", code, err)
	}
	return nil
}
