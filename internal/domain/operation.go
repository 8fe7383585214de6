package domain

import (
	"encoding/json"
	"time"
)

// OperationKind 表示绘图操作的类型。
type OperationKind string

const (
	OpStroke OperationKind = "stroke"
	OpFill   OperationKind = "fill"
	// OpUndo 引用被撤销的序号，追加一条补偿记录而不是改写历史。
	OpUndo OperationKind = "undo"
)

// ValidKind 检查操作类型是否是已知类型。
func ValidKind(kind OperationKind) bool {
	switch kind {
	case OpStroke, OpFill, OpUndo:
		return true
	}
	return false
}

// DrawingOperation 是操作日志中的一条持久记录。
// Sequence 由房间的权威端分配，严格递增且无空洞；
// 一旦分配，该操作在日志中的位置不可变（日志只追加）。
// Payload 对核心而言是不透明的 JSON：核心只负责定序和重放，从不解释其内容。
type DrawingOperation struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	RoomCode      string          `gorm:"size:16;not null;uniqueIndex:idx_room_seq;index:idx_room_local,unique" json:"-"`
	Sequence      uint64          `gorm:"not null;uniqueIndex:idx_room_seq" json:"sequence"`
	AuthorID      string          `gorm:"size:64;index;not null" json:"authorId"`
	Kind          OperationKind   `gorm:"size:16;not null" json:"kind"`
	Payload       json.RawMessage `gorm:"type:json" json:"payload"`
	ClientLocalID string          `gorm:"size:64;not null;index:idx_room_local,unique" json:"clientLocalId"` // 客户端生成的幂等令牌
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"timestamp"`
}
