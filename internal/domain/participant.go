package domain

import "time"

// Role 表示参与者在房间内的角色。
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// ConnectionState 表示参与者连接的存活状态。
// 断线不是错误：先进入 reconnecting 宽限期，超过宽限期才从 roster 移除。
type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateDisconnected ConnectionState = "disconnected"
)

// Participant 表示房间内的一个参与者。
// 由 Presence 管理器在 admit 时创建，心跳/角色变更时修改，宽限期过后移除。
type Participant struct {
	ID               string          `json:"id"`
	DisplayName      string          `json:"displayName"`
	AssignedColor    string          `json:"assignedColor"` // 从固定调色盘分配，在线期间房间内唯一
	Role             Role            `json:"role"`
	ConnectionState  ConnectionState `json:"connectionState"`
	LastSeenSequence uint64          `json:"lastSeenSequence"` // 该参与者已确认的最高操作序号
	JoinedAt         time.Time       `json:"joinedAt"`
	LastHeartbeatAt  time.Time       `json:"-"`
}

// IdentityPalette 是参与者身份色的固定调色盘。
// 离开者的颜色会被回收复用，保证调色盘大小有界。
var IdentityPalette = []string{
	"#E74C3C", // red
	"#3498DB", // blue
	"#2ECC71", // green
	"#F39C12", // orange
	"#9B59B6", // purple
	"#1ABC9C", // teal
	"#E91E8C", // pink
	"#795548", // brown
	"#607D8B", // slate
	"#F1C40F", // yellow
}

// NextHost 从 roster 中确定性地选出下一任房主：
// 连接时间最长（JoinedAt 最早）的非断线 guest，平局时取参与者 ID 最小者。
// 纯函数：任何副本用同一份 roster 都会算出同一个结果，无需共识回合。
// 没有可提升的候选人时返回 nil。
func NextHost(roster []*Participant) *Participant {
	var candidate *Participant
	for _, p := range roster {
		if p == nil || p.Role == RoleHost || p.ConnectionState == StateDisconnected {
			continue
		}
		if candidate == nil {
			candidate = p
			continue
		}
		if p.JoinedAt.Before(candidate.JoinedAt) {
			candidate = p
		} else if p.JoinedAt.Equal(candidate.JoinedAt) && p.ID < candidate.ID {
			candidate = p
		}
	}
	return candidate
}
