package service

import "time"

// Settings 汇总协作核心的策略常量。
// 这些都是实现层的可调参数，由 bootstrap 从环境变量填充。
type Settings struct {
	CodeLength        int           // 房间码长度
	RoomCapacity      int           // 单房间最大参与者数（含 reconnecting）
	HeartbeatTimeout  time.Duration // 心跳静默多久转入 reconnecting
	DisconnectGrace   time.Duration // 静默多久从 roster 移除
	EmptyRoomTTL      time.Duration // 空房间多久被回收
	CodeReuseCooldown time.Duration // 房间码关闭后多久可复用，挡住迟到的重连
	ResyncThreshold   uint64        // 补发区间超过该值时改走全量快照
	MaxLogSize        int           // 单房间操作日志上限，超过视为房间级故障
}

// DefaultSettings 返回默认策略值。
func DefaultSettings() Settings {
	return Settings{
		CodeLength:        6,
		RoomCapacity:      8,
		HeartbeatTimeout:  10 * time.Second,
		DisconnectGrace:   60 * time.Second,
		EmptyRoomTTL:      2 * time.Minute,
		CodeReuseCooldown: 30 * time.Second,
		ResyncThreshold:   500,
		MaxLogSize:        100000,
	}
}
