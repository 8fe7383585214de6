package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"coloring-session/internal/domain"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现。
// 承载游标的 LWW 镜像和按房间划分的 Pub/Sub 扇出通道。
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string

	subsMu sync.Mutex
	subs   map[string]*roomSubscription
}

type roomSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
}

// NewRedisStateRepository 创建 RedisStateRepository 实例。
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cs:" // coloring session
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
		subs:      make(map[string]*roomSubscription),
	}
}

// --- Key helpers ---

func (r *RedisStateRepository) cursorsKey(code string) string {
	return fmt.Sprintf("%sroom:%s:cursors", r.keyPrefix, code)
}

func (r *RedisStateRepository) channel(code string) string {
	return fmt.Sprintf("%sroom:%s:events", r.keyPrefix, code)
}

// --- Cursor mirror ---

// SetCursor 覆盖写入参与者的最新指针采样（Hash field 级 LWW）。
func (r *RedisStateRepository) SetCursor(ctx context.Context, code string, cursor domain.CursorPosition) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal cursor for room %s: %w", code, err)
	}
	if err := r.client.HSet(ctx, r.cursorsKey(code), cursor.ParticipantID, data).Err(); err != nil {
		return fmt.Errorf("redis: failed to set cursor for room %s: %w", code, err)
	}
	return nil
}

// GetCursors 返回房间内每个参与者的最新指针采样。
func (r *RedisStateRepository) GetCursors(ctx context.Context, code string) (map[string]domain.CursorPosition, error) {
	raw, err := r.client.HGetAll(ctx, r.cursorsKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get cursors for room %s: %w", code, err)
	}
	out := make(map[string]domain.CursorPosition, len(raw))
	for id, data := range raw {
		var cursor domain.CursorPosition
		if err := json.Unmarshal([]byte(data), &cursor); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"code": code, "participant_id": id}).Warn("Dropping unparsable cursor sample")
			continue
		}
		out[id] = cursor
	}
	return out, nil
}

// ClearCursor 删除某参与者的指针采样。
func (r *RedisStateRepository) ClearCursor(ctx context.Context, code string, participantID string) error {
	if err := r.client.HDel(ctx, r.cursorsKey(code), participantID).Err(); err != nil {
		return fmt.Errorf("redis: failed to clear cursor for room %s: %w", code, err)
	}
	return nil
}

// CleanupRoomState 删除房间关闭后遗留的全部 key。
func (r *RedisStateRepository) CleanupRoomState(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, r.cursorsKey(code)).Err(); err != nil {
		return fmt.Errorf("redis: failed to cleanup state for room %s: %w", code, err)
	}
	return nil
}

// --- PubSub fan-out ---

// Publish 将一帧消息发布到房间频道。
func (r *RedisStateRepository) Publish(ctx context.Context, code string, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel(code), payload).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish to room %s: %w", code, err)
	}
	return nil
}

// Subscribe 订阅房间频道。同一房间的重复订阅复用同一条流。
func (r *RedisStateRepository) Subscribe(ctx context.Context, code string) (<-chan []byte, error) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	if sub, ok := r.subs[code]; ok {
		return sub.out, nil
	}

	pubsub := r.client.Subscribe(ctx, r.channel(code))
	// 确认订阅建立，避免漏掉紧随其后的消息
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to room %s: %w", code, err)
	}

	sub := &roomSubscription{pubsub: pubsub, out: make(chan []byte, 256)}
	r.subs[code] = sub

	go func() {
		// pubsub 关闭时 Channel() 关闭，循环结束
		for msg := range pubsub.Channel() {
			select {
			case sub.out <- []byte(msg.Payload):
			default:
				logrus.WithField("code", code).Warn("Room subscription buffer full, dropping message")
			}
		}
		close(sub.out)
	}()

	return sub.out, nil
}

// Unsubscribe 取消房间订阅并关闭其消息流。
func (r *RedisStateRepository) Unsubscribe(code string) error {
	r.subsMu.Lock()
	sub, ok := r.subs[code]
	if ok {
		delete(r.subs, code)
	}
	r.subsMu.Unlock()
	if !ok {
		return nil
	}
	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("redis: failed to close subscription for room %s: %w", code, err)
	}
	return nil
}

// StopAllSubscriptions 关闭全部订阅，进程退出时调用。
func (r *RedisStateRepository) StopAllSubscriptions() {
	r.subsMu.Lock()
	subs := r.subs
	r.subs = make(map[string]*roomSubscription)
	r.subsMu.Unlock()
	for code, sub := range subs {
		if err := sub.pubsub.Close(); err != nil {
			logrus.WithError(err).WithField("code", code).Warn("Failed to close room subscription")
		}
	}
}
