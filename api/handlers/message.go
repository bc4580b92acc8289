// api/handlers/message.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smppgw/internal/dispatcher"
)

// MessageHandler 消息查询处理器
type MessageHandler struct {
	dispatcher *dispatcher.MessageDispatcher
}

// NewMessageHandler 创建消息查询处理器
func NewMessageHandler(d *dispatcher.MessageDispatcher) *MessageHandler {
	return &MessageHandler{dispatcher: d}
}

// GetMessage 按消息ID查询状态
func (h *MessageHandler) GetMessage(c *gin.Context) {
	if h.dispatcher == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "未启用消息分发"})
		return
	}
	info, err := h.dispatcher.Message(c.Param("id"))
	if errors.Is(err, dispatcher.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "消息不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}
