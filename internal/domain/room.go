package domain

import (
	"strings"
	"time"
)

// RoomState 表示房间生命周期状态机的状态。
// 转移规则:
//
//	CREATED -> ACTIVE        首个参与者连接
//	ACTIVE -> EMPTY_GRACE    最后一个在线参与者断开
//	EMPTY_GRACE -> ACTIVE    TTL 到期前有参与者重新加入
//	EMPTY_GRACE -> CLOSED    TTL 到期被回收
//	任意状态 -> CLOSED        房主显式关闭
type RoomState string

const (
	RoomCreated    RoomState = "CREATED"
	RoomActive     RoomState = "ACTIVE"
	RoomEmptyGrace RoomState = "EMPTY_GRACE"
	RoomClosed     RoomState = "CLOSED"
)

// Room 表示一个共享涂色会话。
// NextSequence 只增不减；操作日志由房间独占所有。
type Room struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	Code           string     `gorm:"uniqueIndex;size:16;not null" json:"code"` // 可分享的短房间码，输入不区分大小写
	HostID         string     `gorm:"size:64" json:"hostId"`                    // 当前房主的参与者 ID，roster 非空时必须恰好一人持有
	State          RoomState  `gorm:"size:16;not null" json:"state"`
	NextSequence   uint64     `gorm:"not null" json:"nextSequence"` // 已分配的最高序号（下一个操作拿 NextSequence+1）
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	LastActivityAt time.Time  `gorm:"index" json:"lastActivityAt"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
}

// Closed 判断房间是否已进入终止状态。
func (r *Room) Closed() bool {
	return r.State == RoomClosed
}

// CodeAlphabet 是房间码的取值字母表。
// 去掉了 0/O、1/I 这类肉眼易混的字符，方便口头/截图分享。
const CodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// NormalizeCode 将用户输入的房间码归一化：去空白并统一为大写。
// 展示侧固定使用大写形式。
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
