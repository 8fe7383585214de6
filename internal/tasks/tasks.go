package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"coloring-session/internal/domain"
)

// 任务类型常量
const (
	TypeOperationPersist = "operation:persist" // 已定序操作落库
	TypePresenceSweep    = "presence:sweep"    // 周期心跳扫描
	TypeRoomEviction     = "room:evict"        // 周期空房间回收
)

// OperationPersistPayload 定义操作落库任务的数据结构。
type OperationPersistPayload struct {
	Operation domain.DrawingOperation `json:"operation"`
}

// NewOperationPersistTask 创建一条操作落库任务。
func NewOperationPersistTask(op domain.DrawingOperation) (*asynq.Task, error) {
	payload, err := json.Marshal(OperationPersistPayload{Operation: op})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOperationPersist, payload), nil
}

// NewPresenceSweepTask 创建一条心跳扫描任务（无 payload）。
func NewPresenceSweepTask() *asynq.Task {
	return asynq.NewTask(TypePresenceSweep, nil)
}

// NewRoomEvictionTask 创建一条空房间回收任务（无 payload）。
func NewRoomEvictionTask() *asynq.Task {
	return asynq.NewTask(TypeRoomEviction, nil)
}
