// api/handlers/trace.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smppgw/internal/tracer"
)

// TraceHandler 协议跟踪处理器
type TraceHandler struct {
	tracer *tracer.Tracer
}

// NewTraceHandler 创建协议跟踪处理器
func NewTraceHandler(t *tracer.Tracer) *TraceHandler {
	return &TraceHandler{tracer: t}
}

// traceEntry 返回给前端的条目，附带原始帧
type traceEntry struct {
	*tracer.Entry
	Raw string `json:"raw"`
}

func (h *TraceHandler) available(c *gin.Context) bool {
	if h.tracer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "未启用协议跟踪"})
		return false
	}
	return true
}

// GetSettings 当前跟踪设置和计数
func (h *TraceHandler) GetSettings(c *gin.Context) {
	if !h.available(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"settings": h.tracer.Settings(),
		"stats":    h.tracer.Stats(),
	})
}

// UpdateSettings 替换跟踪设置
func (h *TraceHandler) UpdateSettings(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var s tracer.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.tracer.Apply(s)
	c.JSON(http.StatusOK, h.tracer.Settings())
}

// AddNumber 添加跟踪号码
func (h *TraceHandler) AddNumber(c *gin.Context) {
	if !h.available(c) {
		return
	}
	h.tracer.AddNumber(c.Param("number"))
	c.JSON(http.StatusOK, h.tracer.Settings())
}

// RemoveNumber 移除跟踪号码
func (h *TraceHandler) RemoveNumber(c *gin.Context) {
	if !h.available(c) {
		return
	}
	if !h.tracer.RemoveNumber(c.Param("number")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "号码未在跟踪中"})
		return
	}
	c.JSON(http.StatusOK, h.tracer.Settings())
}

// ListLogs 查询跟踪记录。参数: number system_id sequence since(秒) limit offset
func (h *TraceHandler) ListLogs(c *gin.Context) {
	if !h.available(c) {
		return
	}

	opts := tracer.QueryOptions{
		Number:   c.Query("number"),
		SystemID: c.Query("system_id"),
		Limit:    100,
	}
	if v := c.Query("sequence"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的sequence"})
			return
		}
		opts.Sequence = uint32(seq)
	}
	if v := c.Query("since"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的since"})
			return
		}
		opts.Start = time.Now().Add(-time.Duration(secs) * time.Second)
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的limit"})
			return
		}
		opts.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的offset"})
			return
		}
		opts.Offset = n
	}

	entries := h.tracer.Query(opts)
	out := make([]traceEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, traceEntry{Entry: e, Raw: e.RawHex()})
	}
	c.JSON(http.StatusOK, gin.H{"total": len(out), "logs": out})
}

// ClearLogs 清空跟踪记录
func (h *TraceHandler) ClearLogs(c *gin.Context) {
	if !h.available(c) {
		return
	}
	h.tracer.Clear()
	c.Status(http.StatusNoContent)
}
