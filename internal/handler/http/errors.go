package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"coloring-session/internal/service"
)

// HandleServiceError 将服务层错误翻译成 HTTP 状态码。
// 未识别的错误一律按 500 处理并记录日志。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		respondError(c, http.StatusNotFound, "Room not found")
	case errors.Is(err, service.ErrParticipantNotFound):
		respondError(c, http.StatusNotFound, "Participant not found")
	case errors.Is(err, service.ErrRoomFull):
		respondError(c, http.StatusConflict, "Room is full")
	case errors.Is(err, service.ErrNotHost):
		respondError(c, http.StatusForbidden, "Only the host can do that")
	case errors.Is(err, service.ErrCodeExhausted):
		respondError(c, http.StatusServiceUnavailable, "No room codes available, try again later")
	case errors.Is(err, service.ErrInvalidOperation):
		respondError(c, http.StatusBadRequest, "Invalid operation")
	default:
		logrus.WithFields(logrus.Fields{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		}).Error("Unhandled service error")
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
