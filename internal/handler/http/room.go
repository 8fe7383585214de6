package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"coloring-session/internal/domain"
	"coloring-session/internal/service"
)

// RoomHandler 处理房间相关的 HTTP 请求。
// 实时交互走 WebSocket，这里只覆盖创建、查询和回放。
type RoomHandler struct {
	registry *service.RegistryService
	presence *service.PresenceService
	oplog    *service.OpLogService
	cursors  *service.CursorService
}

func NewRoomHandler(
	registry *service.RegistryService,
	presence *service.PresenceService,
	oplog *service.OpLogService,
	cursors *service.CursorService,
) *RoomHandler {
	if registry == nil || presence == nil || oplog == nil || cursors == nil {
		panic("all services must be non-nil for RoomHandler")
	}
	return &RoomHandler{registry: registry, presence: presence, oplog: oplog, cursors: cursors}
}

// CreateRoom 创建新房间并返回邀请码。
// 第一个通过 WebSocket 加入的参与者自动成为主持人。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	room, err := h.registry.CreateRoom(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithField("code", room.Code).Info("Room created")
	c.JSON(http.StatusCreated, gin.H{
		"code":  room.Code,
		"state": room.State,
	})
}

// GetRoom 按邀请码查询房间状态和占用情况。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	room, occupancy, err := h.registry.ResolveRoom(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":      room.Code,
		"state":     room.State,
		"occupancy": occupancy,
		"sequence":  room.NextSequence,
	})
}

// GetRoster 返回当前在场参与者列表。
func (h *RoomHandler) GetRoster(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	roster, err := h.presence.Roster(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roster": roster})
}

// ReplayRoom 从持久化日志回放整个房间的操作序列。
// 主要给已关闭房间的归档查看用，活跃房间请走 resync。
func (h *RoomHandler) ReplayRoom(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	ops, err := h.oplog.Replay(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":       code,
		"operations": ops,
		"count":      len(ops),
	})
}

// GetCursors 返回房间内各参与者最后上报的光标位置。
func (h *RoomHandler) GetCursors(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	if _, _, err := h.registry.ResolveRoom(c.Request.Context(), code); err != nil {
		HandleServiceError(c, err)
		return
	}
	cursors, err := h.cursors.Snapshot(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cursors": cursors})
}
