package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"coloring-session/internal/domain"
	"coloring-session/internal/dto"
	"coloring-session/internal/repository"
	"coloring-session/internal/tasks"
)

// TaskEnqueuer 抽象出 asynq.Client 的投递面，测试时可替换。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// OpLogService 是收敛权威：为绘图操作分配严格递增、无空洞的序号。
// 冲突规则是统一的——按序号全序重放，重叠区域后分配的序号覆盖先分配的
// （物理涂色层语义：后涂的盖住先涂的），不重叠的笔画天然可交换。
// 因此任何设备按序号顺序重放日志都得到相同的画布。
type OpLogService struct {
	store     *RoomStore
	stateRepo repository.StateRepository
	opRepo    repository.OperationRepository
	enqueuer  TaskEnqueuer
	registry  *RegistryService
	presence  *PresenceService
	settings  Settings
}

// NewOpLogService 创建 OpLogService 实例。
func NewOpLogService(
	store *RoomStore,
	stateRepo repository.StateRepository,
	opRepo repository.OperationRepository,
	enqueuer TaskEnqueuer,
	registry *RegistryService,
	presence *PresenceService,
	settings Settings,
) *OpLogService {
	if store == nil || stateRepo == nil || opRepo == nil || enqueuer == nil || registry == nil || presence == nil {
		panic("all dependencies must be non-nil for OpLogService")
	}
	return &OpLogService{
		store:     store,
		stateRepo: stateRepo,
		opRepo:    opRepo,
		enqueuer:  enqueuer,
		registry:  registry,
		presence:  presence,
		settings:  settings,
	}
}

// Submit 为一条操作分配序号并追加进日志。
// 同一房间的提交被房间锁串行化（每房间单写者），不同房间完全并行。
// 返回已定序的操作，广播给包括作者在内的所有参与者，
// 作者用这份权威回声校正自己的乐观本地应用。
//
// 幂等：clientLocalId 已有序号时直接返回既有记录——客户端在网络结果
// 不明时会重试，绝不能因此产生重复日志项。
func (s *OpLogService) Submit(ctx context.Context, code string, authorID string, req dto.OpRequest) (*domain.DrawingOperation, error) {
	kind := domain.OperationKind(req.Kind)
	if !domain.ValidKind(kind) || req.ClientLocalID == "" || len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return nil, ErrInvalidOperation
	}

	normalized := domain.NormalizeCode(code)
	lr, ok := s.store.get(normalized)
	if !ok {
		return nil, ErrRoomNotFound
	}
	logCtx := logrus.WithFields(logrus.Fields{"code": normalized, "author_id": authorID})

	lr.mu.Lock()
	if lr.room.Closed() {
		lr.mu.Unlock()
		return nil, ErrRoomNotFound
	}

	// 幂等表命中：重复投递，返回已分配的那条
	if seq, dup := lr.byLocalID[req.ClientLocalID]; dup {
		op := lr.log[seq-1]
		lr.mu.Unlock()
		logCtx.WithFields(logrus.Fields{"sequence": seq, "client_local_id": req.ClientLocalID}).Debug("Duplicate submission, returning existing operation")
		return &op, nil
	}

	// 日志容量耗尽是房间级故障：该房间关闭，其他房间不受影响
	if len(lr.log) >= s.settings.MaxLogSize {
		lr.mu.Unlock()
		logCtx.Error("Operation log capacity exhausted, closing room")
		if err := s.registry.CloseRoom(ctx, normalized, "", "operation log capacity exhausted"); err != nil {
			logCtx.WithError(err).Error("Failed to close room after log capacity exhaustion")
		}
		return nil, ErrLogCapacity
	}

	now := time.Now().UTC()
	seq := lr.room.NextSequence + 1
	op := domain.DrawingOperation{
		RoomCode:      normalized,
		Sequence:      seq,
		AuthorID:      authorID,
		Kind:          kind,
		Payload:       append(json.RawMessage(nil), req.Payload...),
		ClientLocalID: req.ClientLocalID,
		CreatedAt:     now,
	}
	lr.log = append(lr.log, op)
	lr.byLocalID[req.ClientLocalID] = seq
	lr.room.NextSequence = seq
	lr.room.LastActivityAt = now
	lr.mu.Unlock()

	// 作者自己显然见过自己的操作
	s.presence.RecordSeen(normalized, authorID, seq)

	// 广播给房间内所有参与者（含作者）。广播失败不回滚：
	// 序号已是权威事实，掉线客户端靠 resync 补
	payload := dto.MustMarshal(dto.TypeOp, op)
	if err := s.stateRepo.Publish(ctx, normalized, payload); err != nil {
		logCtx.WithError(err).WithField("sequence", seq).Error("Failed to publish sequenced operation")
	}

	// 持久化走后台任务，不占提交热路径
	task, err := tasks.NewOperationPersistTask(op)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build operation persistence task")
	} else if _, err := s.enqueuer.EnqueueContext(ctx, task); err != nil {
		logCtx.WithError(err).WithField("sequence", seq).Error("Failed to enqueue operation persistence task")
	}

	logCtx.WithFields(logrus.Fields{"sequence": seq, "kind": kind}).Debug("Operation sequenced")
	return &op, nil
}

// OperationsSince 返回序号严格大于 lastSeen 的全部操作（升序、无空洞、无重复）。
// 区间超过 ResyncThreshold 时返回 ErrStaleResync，同时给出当前序号，
// 调用方应让客户端改请求全量画布快照后从当前序号继续。
func (s *OpLogService) OperationsSince(ctx context.Context, code string, lastSeen uint64) ([]domain.DrawingOperation, uint64, error) {
	lr, ok := s.store.get(domain.NormalizeCode(code))
	if !ok {
		return nil, 0, ErrRoomNotFound
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	current := lr.room.NextSequence
	if lastSeen > current {
		// 客户端声称见过未来的序号，按已全量同步处理
		lastSeen = current
	}
	if current-lastSeen > s.settings.ResyncThreshold {
		return nil, current, ErrStaleResync
	}
	// 日志无空洞，log[i].Sequence == i+1，直接切片
	ops := append([]domain.DrawingOperation(nil), lr.log[lastSeen:]...)
	return ops, current, nil
}

// Replay 从持久层读出房间的完整操作历史（包括已关闭的房间）。
func (s *OpLogService) Replay(ctx context.Context, code string) ([]domain.DrawingOperation, error) {
	ops, err := s.opRepo.FindByRoomCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		logrus.WithError(err).WithField("code", code).Error("Failed to load operation replay from database")
		return nil, ErrInternalServer
	}
	return ops, nil
}
