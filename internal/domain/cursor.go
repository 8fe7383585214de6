package domain

import "time"

// CursorPosition 是一条临时指针采样，不落盘、不定序。
// 每个参与者只保留最新一条（last-write-wins）；丢失中间采样只影响平滑度，
// 不影响正确性，平滑补偿由客户端插值处理。
type CursorPosition struct {
	ParticipantID string    `json:"participantId"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	IsDrawing     bool      `json:"isDrawing"`
	CurrentColor  *string   `json:"currentColor,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
