package dto

import (
	"encoding/json"

	"coloring-session/internal/domain"
)

// 客户端与服务端之间的 WebSocket 消息统一走这个信封结构。
// Type 决定 Data 的具体形状。

// 入站消息类型
const (
	TypeJoin      = "join"
	TypeResume    = "resume"
	TypeOp        = "op"
	TypeCursor    = "cursor"
	TypeHeartbeat = "heartbeat"
	TypeCloseRoom = "close_room"
)

// 出站消息类型
const (
	TypeWelcome         = "welcome"
	TypePresence        = "presence"
	TypeResync          = "resync"
	TypeRequireSnapshot = "require_snapshot"
	TypeRoomClosed      = "room_closed"
	TypeError           = "error"
)

// Envelope 是所有 WebSocket 帧的外层结构。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinRequest 首帧：通过房间码加入。
type JoinRequest struct {
	Code        string `json:"code" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
}

// ResumeRequest 首帧：断线后恢复会话。
// ResumeToken 绑定 participantId 与房间码，防止恢复时冒用他人身份。
type ResumeRequest struct {
	Code             string `json:"code" binding:"required"`
	ParticipantID    string `json:"participantId" binding:"required"`
	ResumeToken      string `json:"resumeToken" binding:"required"`
	LastSeenSequence uint64 `json:"lastSeenSequence"`
}

// OpRequest 提交一条绘图操作。Payload 原样透传，核心不解释。
type OpRequest struct {
	Kind          string          `json:"kind" binding:"required,oneof=stroke fill undo"`
	Payload       json.RawMessage `json:"payload" binding:"required"`
	ClientLocalID string          `json:"clientLocalId" binding:"required"`
}

// CursorRequest 上报一条指针采样。
type CursorRequest struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	IsDrawing    bool    `json:"isDrawing"`
	CurrentColor *string `json:"currentColor,omitempty"`
}

// Welcome 加入成功后的全量状态快照。
type Welcome struct {
	ParticipantID    string                    `json:"participantId"`
	Role             domain.Role               `json:"role"`
	AssignedColor    string                    `json:"assignedColor"`
	Roster           []*domain.Participant     `json:"roster"`
	Operations       []domain.DrawingOperation `json:"operations"`
	CurrentSequence  uint64                    `json:"currentSequence"`
	ResumeToken      string                    `json:"resumeToken"`
	HeartbeatSeconds int                       `json:"heartbeatSeconds"` // 客户端应以此间隔发心跳
}

// Resync 恢复会话时补发的操作区间。
type Resync struct {
	Operations      []domain.DrawingOperation `json:"operations"`
	CurrentSequence uint64                    `json:"currentSequence"`
}

// RequireSnapshot 落后太多时要求客户端改走全量画布快照。
type RequireSnapshot struct {
	CurrentSequence uint64 `json:"currentSequence"`
}

// Presence 房间 roster 变更广播。
type Presence struct {
	Roster []*domain.Participant `json:"roster"`
	HostID string                `json:"hostId"`
}

// RoomClosed 房间关闭通知。
type RoomClosed struct {
	Reason string `json:"reason"`
}

// Error 发给单个客户端的错误帧。
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Marshal 将任意 payload 包进信封并序列化。
func Marshal(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}

// MustMarshal 同 Marshal，但序列化失败时 panic。
// 只用于全部字段可序列化的内部构造消息。
func MustMarshal(msgType string, payload interface{}) []byte {
	b, err := Marshal(msgType, payload)
	if err != nil {
		panic("dto: marshal failed for internally constructed message: " + err.Error())
	}
	return b
}
