package http

import "github.com/gin-gonic/gin"

// ErrorResponse 统一错误返回结构
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}
