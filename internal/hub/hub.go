package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"coloring-session/internal/dto"
	"coloring-session/internal/repository"
	"coloring-session/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192 // 笔画 payload 比单点大，给足余量
)

// HubMessage 定义 Hub 内部通道传递的消息类型。
type HubMessage struct {
	Type    string  // "unregister", "frame"
	Client  *Client // 消息来源的客户端
	RawData []byte  // 仅 frame 使用：原始 WebSocket 帧
}

// Hub 是每个实例上的会话协调器：
// 维护按房间码组织的本地客户端集合，把入站帧分发到对应的核心服务，
// 并把房间频道（Redis Pub/Sub）上的广播扇出给本地客户端。
// 定序本身不在这里发生——那是操作日志服务的事。
type Hub struct {
	messageChan chan HubMessage

	roomsMu sync.RWMutex
	rooms   map[string]map[*Client]bool // roomCode -> clients

	presence  *service.PresenceService
	cursors   *service.CursorService
	oplog     *service.OpLogService
	registry  *service.RegistryService
	stateRepo repository.StateRepository
}

// NewHub 创建并返回 Hub 实例。
func NewHub(
	presence *service.PresenceService,
	cursors *service.CursorService,
	oplog *service.OpLogService,
	registry *service.RegistryService,
	stateRepo repository.StateRepository,
) *Hub {
	if presence == nil || cursors == nil || oplog == nil || registry == nil || stateRepo == nil {
		panic("all dependencies must be non-nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[string]map[*Client]bool),
		presence:    presence,
		cursors:     cursors,
		oplog:       oplog,
		registry:    registry,
		stateRepo:   stateRepo,
	}
}

// Run 启动 Hub 的主事件循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "unregister":
			h.unregisterClient(msg.Client)
		case "frame":
			// 帧处理不阻塞主循环；房间内的顺序由操作日志锁保证
			go h.handleFrame(msg)
		default:
			log.Warnf("Received unknown hub message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）。
// 返回 false 表示队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// Register 同步注册客户端：返回时客户端已在房间的本地集合里，
// 房间频道的订阅也已建立，之后定序的操作都会抵达该客户端。
func (h *Hub) Register(client *Client) {
	h.registerClient(client)
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	code := client.RoomCode()
	logCtx := logrus.WithFields(logrus.Fields{"code": code, "participant_id": client.ParticipantID()})

	h.roomsMu.Lock()
	first := false
	if _, ok := h.rooms[code]; !ok {
		h.rooms[code] = make(map[*Client]bool)
		first = true
	}
	h.rooms[code][client] = true
	h.roomsMu.Unlock()

	// 本实例首个进入该房间的客户端负责接通房间频道
	if first {
		ch, err := h.stateRepo.Subscribe(context.Background(), code)
		if err != nil {
			logCtx.WithError(err).Error("Failed to subscribe to room channel")
		} else {
			go h.relayLoop(code, ch)
		}
	}
	logCtx.Info("Client registered to hub")
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	code := client.RoomCode()
	logCtx := logrus.WithFields(logrus.Fields{"code": code, "participant_id": client.ParticipantID()})

	h.roomsMu.Lock()
	roomEmpty := false
	if clients, ok := h.rooms[code]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.closeSend()
			if len(clients) == 0 {
				delete(h.rooms, code)
				roomEmpty = true
			}
		}
	}
	h.roomsMu.Unlock()

	// 断线只是开始宽限期，移除交给心跳扫描
	h.presence.MarkPending(context.Background(), code, client.ParticipantID())

	if roomEmpty {
		if err := h.stateRepo.Unsubscribe(code); err != nil {
			logCtx.WithError(err).Warn("Failed to unsubscribe room channel")
		}
	}
	logCtx.Info("Client unregistered from hub")
}

// relayLoop 把房间频道上的广播搬给本地客户端，订阅关闭时退出。
func (h *Hub) relayLoop(code string, ch <-chan []byte) {
	for payload := range ch {
		h.broadcastLocal(code, payload)
	}
	logrus.WithField("code", code).Debug("Room relay loop exited")
}

// broadcastLocal 将一帧消息发给房间内的全部本地客户端。
// 非阻塞发送：慢客户端丢帧，由它自己的 resync 补救。
func (h *Hub) broadcastLocal(code string, payload []byte) {
	h.roomsMu.RLock()
	clients := make([]*Client, 0, len(h.rooms[code]))
	for c := range h.rooms[code] {
		clients = append(clients, c)
	}
	h.roomsMu.RUnlock()

	for _, c := range clients {
		if !c.TrySend(payload) {
			logrus.WithFields(logrus.Fields{"code": code, "participant_id": c.ParticipantID()}).Warn("Client send buffer full, dropping frame")
		}
	}
}

// handleFrame 解析并分发一帧客户端消息。
func (h *Hub) handleFrame(msg HubMessage) {
	ctx := context.Background()
	client := msg.Client
	logCtx := logrus.WithFields(logrus.Fields{
		"code":           client.RoomCode(),
		"participant_id": client.ParticipantID(),
	})

	var env dto.Envelope
	if err := json.Unmarshal(msg.RawData, &env); err != nil {
		logCtx.WithError(err).Warn("Failed to parse client frame")
		h.sendError(client, "bad_frame", "malformed message")
		return
	}

	switch env.Type {
	case dto.TypeOp:
		var req dto.OpRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			h.sendError(client, "bad_frame", "malformed op payload")
			return
		}
		// 提交失败必须让客户端知道：失败的 submit 绝不能被当成成功
		if _, err := h.oplog.Submit(ctx, client.RoomCode(), client.ParticipantID(), req); err != nil {
			logCtx.WithError(err).Warn("Operation submit rejected")
			h.sendError(client, errorCode(err), err.Error())
		}
	case dto.TypeCursor:
		var req dto.CursorRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return // 坏的游标帧直接丢，无损正确性
		}
		_ = h.cursors.Publish(ctx, client.RoomCode(), client.ParticipantID(), req)
	case dto.TypeHeartbeat:
		if err := h.presence.Heartbeat(ctx, client.RoomCode(), client.ParticipantID()); err != nil {
			h.sendError(client, errorCode(err), err.Error())
		}
	case dto.TypeCloseRoom:
		if err := h.registry.CloseRoom(ctx, client.RoomCode(), client.ParticipantID(), "closed by host"); err != nil {
			logCtx.WithError(err).Warn("Close room rejected")
			h.sendError(client, errorCode(err), err.Error())
		}
	default:
		logCtx.Warnf("Received unknown frame type: %s", env.Type)
	}
}

// ForceCloseRoom 在房间关闭后断开本实例上的残留连接。
// 由 Registry 的 RoomClosed 回调触发；关闭帧已通过房间频道广播过。
func (h *Hub) ForceCloseRoom(code string, reason string) {
	h.roomsMu.Lock()
	clients := h.rooms[code]
	delete(h.rooms, code)
	h.roomsMu.Unlock()

	for c := range clients {
		c.closeSend()
		c.CloseConn()
	}
	if err := h.stateRepo.Unsubscribe(code); err != nil {
		logrus.WithError(err).WithField("code", code).Warn("Failed to unsubscribe closed room channel")
	}
	logrus.WithFields(logrus.Fields{"code": code, "reason": reason, "clients": len(clients)}).Info("Room connections force-closed")
}

// StopAllSubscriptions 关闭全部房间订阅（进程退出时调用）。
func (h *Hub) StopAllSubscriptions() {
	h.stateRepo.StopAllSubscriptions()
}

func (h *Hub) sendError(client *Client, code string, message string) {
	payload := dto.MustMarshal(dto.TypeError, dto.Error{Code: code, Message: message})
	client.TrySend(payload)
}

// errorCode 将服务层错误映射为协议层错误码。
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, service.ErrRoomFull):
		return "room_full"
	case errors.Is(err, service.ErrParticipantNotFound):
		return "participant_not_found"
	case errors.Is(err, service.ErrNotHost):
		return "not_host"
	case errors.Is(err, service.ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, service.ErrStaleResync):
		return "stale_resync"
	case errors.Is(err, service.ErrLogCapacity):
		return "log_capacity"
	default:
		return "internal_error"
	}
}
