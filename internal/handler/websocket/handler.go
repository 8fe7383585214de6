package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"coloring-session/internal/domain"
	"coloring-session/internal/dto"
	"coloring-session/internal/hub"
	"coloring-session/internal/service"
)

// 首帧必须在这个窗口内到达，否则直接断开
const handshakeTimeout = 10 * time.Second

// WebSocketHandler 负责 WebSocket 升级和 join/resume 握手。
// 握手完成后连接移交给 Hub，由读写泵接管。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	registry *service.RegistryService
	presence *service.PresenceService
	oplog    *service.OpLogService
	tokens   *service.TokenService
	settings service.Settings
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
func NewWebSocketHandler(
	h *hub.Hub,
	registry *service.RegistryService,
	presence *service.PresenceService,
	oplog *service.OpLogService,
	tokens *service.TokenService,
	settings service.Settings,
) *WebSocketHandler {
	if h == nil || registry == nil || presence == nil || oplog == nil || tokens == nil {
		panic("all dependencies must be non-nil for WebSocketHandler")
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: 生产环境应校验 Origin 白名单
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:      h,
		registry: registry,
		presence: presence,
		oplog:    oplog,
		tokens:   tokens,
		settings: settings,
	}
}

// HandleConnection 处理 /ws/rooms/:code 的连接请求。
// 升级后客户端的首帧必须是 join 或 resume。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	logCtx := logrus.WithField("code", code)

	// 升级前先确认房间存在，让错误还能走 HTTP 返回
	if _, _, err := h.registry.ResolveRoom(c.Request.Context(), code); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写了 HTTP 错误响应，这里只记日志
		logCtx.WithError(err).Error("Failed to upgrade connection")
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		logCtx.WithError(err).Debug("Client disconnected before handshake frame")
		conn.Close()
		return
	}

	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.rejectAndClose(conn, "bad_frame", "malformed handshake frame")
		return
	}

	switch env.Type {
	case dto.TypeJoin:
		h.handleJoin(c, conn, code, env.Data, logCtx)
	case dto.TypeResume:
		h.handleResume(c, conn, code, env.Data, logCtx)
	default:
		h.rejectAndClose(conn, "bad_frame", "first frame must be join or resume")
	}
}

func (h *WebSocketHandler) handleJoin(c *gin.Context, conn *websocket.Conn, code string, data []byte, logCtx *logrus.Entry) {
	var req dto.JoinRequest
	if err := json.Unmarshal(data, &req); err != nil || req.DisplayName == "" {
		h.rejectAndClose(conn, "bad_frame", "join requires displayName")
		return
	}

	state, err := h.presence.Admit(c.Request.Context(), code, req.DisplayName)
	if err != nil {
		logCtx.WithError(err).Warn("Join rejected")
		h.rejectAndClose(conn, svcErrorCode(err), err.Error())
		return
	}

	token, err := h.tokens.Issue(code, state.Participant.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to issue resume token")
		h.rejectAndClose(conn, "internal_error", "failed to issue resume token")
		return
	}

	// 先注册进 Hub 再发快照：Register 返回时房间订阅已建立，
	// Admit 快照之后定序的操作要么被下面的补读并进 welcome，
	// 要么经房间频道送达，不会落进两者之间的缝里。
	// 补读和频道偶有重叠，客户端按序号去重即可。
	client := hub.NewClient(h.hub, conn, code, state.Participant.ID)
	h.hub.Register(client)

	if ops, current, opErr := h.oplog.OperationsSince(c.Request.Context(), code, state.CurrentSequence); opErr == nil && len(ops) > 0 {
		state.Operations = append(state.Operations, ops...)
		state.CurrentSequence = current
	}

	welcome := dto.Welcome{
		ParticipantID:    state.Participant.ID,
		Role:             state.Participant.Role,
		AssignedColor:    state.Participant.AssignedColor,
		Roster:           state.Roster,
		Operations:       state.Operations,
		CurrentSequence:  state.CurrentSequence,
		ResumeToken:      token,
		HeartbeatSeconds: int(h.settings.HeartbeatTimeout.Seconds() / 2),
	}
	if !h.writeFrame(conn, dto.TypeWelcome, welcome) {
		h.detach(client)
		return
	}

	client.Run()
	logCtx.WithField("participant_id", state.Participant.ID).Info("Client handed off to hub")
}

func (h *WebSocketHandler) handleResume(c *gin.Context, conn *websocket.Conn, code string, data []byte, logCtx *logrus.Entry) {
	var req dto.ResumeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.rejectAndClose(conn, "bad_frame", "malformed resume frame")
		return
	}

	participantID, err := h.tokens.Verify(req.ResumeToken, code)
	if err != nil || participantID != req.ParticipantID {
		h.rejectAndClose(conn, "invalid_resume_token", "resume token rejected")
		return
	}

	if _, err := h.presence.Reconnect(c.Request.Context(), code, participantID, req.LastSeenSequence); err != nil {
		logCtx.WithError(err).Warn("Resume rejected")
		h.rejectAndClose(conn, svcErrorCode(err), err.Error())
		return
	}

	// 与 join 同理：先注册建好订阅，再算补发区间
	client := hub.NewClient(h.hub, conn, code, participantID)
	h.hub.Register(client)

	ops, current, err := h.oplog.OperationsSince(c.Request.Context(), code, req.LastSeenSequence)
	if errors.Is(err, service.ErrStaleResync) {
		// 区间太大：让客户端去拿全量画布快照，之后从当前序号继续
		h.presence.RecordSeen(code, participantID, current)
		if !h.writeFrame(conn, dto.TypeRequireSnapshot, dto.RequireSnapshot{CurrentSequence: current}) {
			h.detach(client)
			return
		}
	} else if err != nil {
		h.rejectAndClose(conn, svcErrorCode(err), err.Error())
		h.detach(client)
		return
	} else {
		h.presence.RecordSeen(code, participantID, current)
		if !h.writeFrame(conn, dto.TypeResync, dto.Resync{Operations: ops, CurrentSequence: current}) {
			h.detach(client)
			return
		}
	}

	client.Run()
	logCtx.WithField("participant_id", participantID).Info("Client handed off to hub")
}

// detach 收尾一次失败的握手：从 Hub 注销客户端并断开连接。
func (h *WebSocketHandler) detach(client *hub.Client) {
	_ = h.hub.QueueMessage(hub.HubMessage{Type: "unregister", Client: client})
	client.CloseConn()
}

// writeFrame 在泵启动前直接写一帧（此时没有并发写入者）。
func (h *WebSocketHandler) writeFrame(conn *websocket.Conn, msgType string, payload interface{}) bool {
	data, err := dto.Marshal(msgType, payload)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal handshake frame")
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return true
}

func (h *WebSocketHandler) rejectAndClose(conn *websocket.Conn, code string, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	data, err := dto.Marshal(dto.TypeError, dto.Error{Code: code, Message: message})
	if err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	conn.Close()
}

// svcErrorCode 将服务层错误映射为协议层错误码。
func svcErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, service.ErrRoomFull):
		return "room_full"
	case errors.Is(err, service.ErrParticipantNotFound):
		return "participant_not_found"
	case errors.Is(err, service.ErrInvalidResumeToken):
		return "invalid_resume_token"
	case errors.Is(err, service.ErrStaleResync):
		return "stale_resync"
	default:
		return "internal_error"
	}
}
