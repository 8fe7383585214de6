package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"coloring-session/internal/domain"
	"coloring-session/internal/repository"
	"coloring-session/internal/service"
	"coloring-session/internal/tasks"
)

// OperationPersistHandler 处理已定序操作的落库任务。
// 序号在内存里已经分配好，落库只是追加归档，失败可以安全重试。
type OperationPersistHandler struct {
	opRepo repository.OperationRepository
}

// NewOperationPersistHandler 创建 Handler 实例
func NewOperationPersistHandler(opRepo repository.OperationRepository) *OperationPersistHandler {
	return &OperationPersistHandler{opRepo: opRepo}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *OperationPersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	retryCount, _ := asynq.GetRetryCount(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     retryCount,
	})

	var payload tasks.OperationPersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	// SaveBatch 对 (room, sequence) 冲突不报错，重复投递是安全的
	if err := h.opRepo.SaveBatch(ctx, []domain.DrawingOperation{payload.Operation}); err != nil {
		logCtx.WithError(err).Errorf("Failed to persist operation seq %d for room %s",
			payload.Operation.Sequence, payload.Operation.RoomCode)
		return fmt.Errorf("failed to persist operation seq %d: %w", payload.Operation.Sequence, err)
	}

	logCtx.WithFields(logrus.Fields{
		"room":     payload.Operation.RoomCode,
		"sequence": payload.Operation.Sequence,
	}).Debug("Operation persisted")
	return nil
}

// PresenceSweepHandler 处理周期心跳扫描任务。
type PresenceSweepHandler struct {
	presence *service.PresenceService
}

func NewPresenceSweepHandler(presence *service.PresenceService) *PresenceSweepHandler {
	return &PresenceSweepHandler{presence: presence}
}

func (h *PresenceSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	pending, removed := h.presence.SweepHeartbeats(ctx)
	if pending > 0 || removed > 0 {
		logrus.WithFields(logrus.Fields{
			"task_type": t.Type(),
			"pending":   pending,
			"removed":   removed,
		}).Info("Presence sweep completed")
	}
	return nil
}

// RoomEvictionHandler 处理周期空房间回收任务。
type RoomEvictionHandler struct {
	registry *service.RegistryService
}

func NewRoomEvictionHandler(registry *service.RegistryService) *RoomEvictionHandler {
	return &RoomEvictionHandler{registry: registry}
}

func (h *RoomEvictionHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	evicted := h.registry.EvictIdleRooms(ctx)
	if evicted > 0 {
		logrus.WithFields(logrus.Fields{
			"task_type": t.Type(),
			"evicted":   evicted,
		}).Info("Idle rooms evicted")
	}
	return nil
}
