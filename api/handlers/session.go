// api/handlers/session.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smppgw/internal/protocol"
	"smppgw/internal/server"
	"smppgw/internal/session"
)

// SessionHandler 会话处理器
type SessionHandler struct {
	server  *server.Server
	timeout time.Duration
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(srv *server.Server) *SessionHandler {
	return &SessionHandler{server: srv, timeout: 10 * time.Second}
}

// ListSessions 列出所有会话，可按system_id过滤
func (h *SessionHandler) ListSessions(c *gin.Context) {
	systemID := c.Query("system_id")
	out := make([]session.Stats, 0)
	if h.server == nil {
		c.JSON(http.StatusOK, out)
		return
	}
	for _, ss := range h.server.SessionManager().List() {
		if systemID != "" && ss.SystemID() != systemID {
			continue
		}
		out = append(out, ss.Stats())
	}
	c.JSON(http.StatusOK, out)
}

// GetSession 获取会话详情
func (h *SessionHandler) GetSession(c *gin.Context) {
	ss, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ss.Stats())
}

// CloseSession 关闭会话，默认先发送unbind，unbind=false时直接断开
func (h *SessionHandler) CloseSession(c *gin.Context) {
	ss, ok := h.lookup(c)
	if !ok {
		return
	}
	unbind := c.DefaultQuery("unbind", "true") != "false"

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.server.SessionManager().CloseSession(ctx, ss.ID(), unbind); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "会话已关闭"})
}

// DeliverRequest 通过会话下发短信
type DeliverRequest struct {
	Source       string `json:"source_addr"`
	Dest         string `json:"destination_addr" binding:"required"`
	ShortMessage string `json:"short_message" binding:"required"`
	DataCoding   byte   `json:"data_coding"`
}

// Deliver 向会话发送deliver_sm并等待响应
func (h *SessionHandler) Deliver(c *gin.Context) {
	ss, ok := h.lookup(c)
	if !ok {
		return
	}

	var req DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dm := &protocol.DeliverSM{MessageFields: protocol.MessageFields{
		Source:       protocol.Address{TON: 1, NPI: 1, Addr: req.Source},
		Dest:         protocol.Address{TON: 1, NPI: 1, Addr: req.Dest},
		DataCoding:   req.DataCoding,
		ShortMessage: []byte(req.ShortMessage),
	}}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	resp, err := ss.DeliverSM(ctx, dm)
	if err != nil {
		c.JSON(deliverStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": resp.MessageID})
}

func (h *SessionHandler) lookup(c *gin.Context) (*server.ServerSession, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的会话ID"})
		return nil, false
	}
	if h.server == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return nil, false
	}
	ss, ok := h.server.SessionManager().Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return nil, false
	}
	return ss, true
}

func deliverStatus(err error) int {
	var ise *session.IllegalStateError
	var nre *session.NegativeResponseError
	switch {
	case errors.As(err, &ise):
		return http.StatusConflict
	case errors.As(err, &nre):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrResponseTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
