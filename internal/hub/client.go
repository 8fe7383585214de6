package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	roomCode      string
	participantID string

	// sendMu 同时护住 send 的关闭和向 send 的发送：
	// 广播方和关闭方在不同 goroutine，裸的 close(chan) 会让
	// 并发的 select-send 直接 panic。
	sendMu sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient 创建 Client 实例。
func NewClient(hub *Hub, conn *websocket.Conn, roomCode string, participantID string) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		roomCode:      roomCode,
		participantID: participantID,
		send:          make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) RoomCode() string      { return c.roomCode }
func (c *Client) ParticipantID() string { return c.participantID }

// TrySend 非阻塞地向客户端发送一帧，缓冲满或通道已关闭时返回 false。
func (c *Client) TrySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend 关闭发送通道，使 WritePump 退出。幂等。
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// CloseConn 直接关闭底层连接。
func (c *Client) CloseConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// ReadPump 将 WebSocket 帧泵入 Hub 的消息通道，在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	logCtx := logrus.WithFields(logrus.Fields{"code": c.roomCode, "participant_id": c.participantID})
	defer func() {
		unregister := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregister:
		case <-time.After(1 * time.Second):
			logCtx.Warn("Timeout sending unregister message to hub channel")
		}
		c.conn.Close()
		logCtx.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		frame := HubMessage{Type: "frame", Client: c, RawData: message}
		select {
		case c.hub.messageChan <- frame:
		default:
			// Hub 过载时丢帧；操作帧的丢失由客户端重试（幂等）兜底
			logCtx.Warn("Hub message channel full, dropping client frame")
		}
	}
}

// WritePump 将 send 通道里的帧写出到 WebSocket 连接，并定期发 Ping。
// 在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithFields(logrus.Fields{"code": c.roomCode, "participant_id": c.participantID})
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了 send 通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.Warn("Failed to send ping message")
				return
			}
		}
	}
}
