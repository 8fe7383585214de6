package service

import (
	"sync"
	"time"

	"coloring-session/internal/domain"
)

// liveRoom 是一个活跃房间的权威内存状态。
// 两把锁分工明确：
//   - mu 串行化序号分配、日志追加和房间元数据变更（每房间单写者纪律），
//     不同房间的提交完全并行；
//   - rosterMu 保护 roster，presence 容忍竞态（last-write-wins），
//     单独成锁是为了心跳/roster 读写永远不排在操作日志锁后面。
//
// 锁序：两把都要时先 mu 后 rosterMu。
type liveRoom struct {
	mu         sync.Mutex
	room       domain.Room
	log        []domain.DrawingOperation // 只追加；log[i].Sequence == i+1
	byLocalID  map[string]uint64         // clientLocalId -> 已分配的序号（幂等表）
	emptySince time.Time                 // 进入 EMPTY_GRACE 的时刻

	rosterMu     sync.RWMutex
	participants map[string]*domain.Participant
}

func newLiveRoom(code string, now time.Time) *liveRoom {
	return &liveRoom{
		room: domain.Room{
			Code:           code,
			State:          domain.RoomCreated,
			CreatedAt:      now,
			LastActivityAt: now,
		},
		byLocalID:    make(map[string]uint64),
		participants: make(map[string]*domain.Participant),
	}
}

// rosterSnapshot 返回 roster 的拷贝，调用方无需持锁。
func (lr *liveRoom) rosterSnapshot() []*domain.Participant {
	lr.rosterMu.RLock()
	defer lr.rosterMu.RUnlock()
	return lr.rosterSnapshotLocked()
}

// rosterSnapshotLocked 要求调用方已持有 rosterMu。
func (lr *liveRoom) rosterSnapshotLocked() []*domain.Participant {
	out := make([]*domain.Participant, 0, len(lr.participants))
	for _, p := range lr.participants {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// connectedCountLocked 统计在线参与者数，要求已持有 rosterMu。
func (lr *liveRoom) connectedCountLocked() int {
	n := 0
	for _, p := range lr.participants {
		if p.ConnectionState == domain.StateConnected {
			n++
		}
	}
	return n
}

// RoomStore 持有全部活跃房间，外加关闭后处于冷却期的房间码。
// 冷却期内房间码不会被重新发放，避免旧客户端的迟到重连撞上新房间。
type RoomStore struct {
	mu       sync.RWMutex
	rooms    map[string]*liveRoom
	cooldown map[string]time.Time // code -> 可复用时间
}

// NewRoomStore 创建空的 RoomStore。
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:    make(map[string]*liveRoom),
		cooldown: make(map[string]time.Time),
	}
}

func (s *RoomStore) get(code string) (*liveRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lr, ok := s.rooms[code]
	return lr, ok
}

// tryInsert 在房间码未被占用（活跃或冷却中）时插入新房间。
// 返回 false 表示撞码，调用方应换一个码重试。
func (s *RoomStore) tryInsert(lr *liveRoom, now time.Time) bool {
	code := lr.room.Code
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, active := s.rooms[code]; active {
		return false
	}
	if until, cooling := s.cooldown[code]; cooling {
		if now.Before(until) {
			return false
		}
		delete(s.cooldown, code)
	}
	s.rooms[code] = lr
	return true
}

// remove 摘除房间并让其房间码进入冷却期。
func (s *RoomStore) remove(code string, reusableAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	s.cooldown[code] = reusableAt
	// 顺手清掉已过期的冷却记录，防止 map 无界增长
	now := time.Now()
	for c, until := range s.cooldown {
		if now.After(until) {
			delete(s.cooldown, c)
		}
	}
}

// codes 返回当前全部活跃房间码（周期扫描用）。
func (s *RoomStore) codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rooms))
	for c := range s.rooms {
		out = append(out, c)
	}
	return out
}

// Len 返回活跃房间数。
func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
