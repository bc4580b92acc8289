// api/handlers/account.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smppgw/internal/auth"
)

// AccountHandler ESME账户处理器
type AccountHandler struct {
	authenticator *auth.Authenticator
}

// NewAccountHandler 创建账户处理器
func NewAccountHandler(authenticator *auth.Authenticator) *AccountHandler {
	return &AccountHandler{authenticator: authenticator}
}

// AccountRequest 创建或更新账户的请求，密码只写不读
type AccountRequest struct {
	SystemID    string   `json:"system_id"`
	Password    string   `json:"password" binding:"required"`
	SystemType  string   `json:"system_type"`
	FlowControl int      `json:"flow_control" binding:"min=0"`
	MaxSessions int      `json:"max_sessions" binding:"min=0"`
	IPAddresses []string `json:"ip_addresses"`
}

// ListAccounts 列出所有账户
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, h.authenticator.Accounts())
}

// GetAccount 获取账户详情
func (h *AccountHandler) GetAccount(c *gin.Context) {
	acc, ok := h.authenticator.GetAccount(c.Param("system_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "账户不存在"})
		return
	}
	c.JSON(http.StatusOK, acc)
}

// CreateAccount 创建账户
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SystemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "system_id不能为空"})
		return
	}
	if _, exists := h.authenticator.GetAccount(req.SystemID); exists {
		c.JSON(http.StatusConflict, gin.H{"error": "账户已存在"})
		return
	}
	h.save(c, req, http.StatusCreated)
}

// UpdateAccount 更新账户
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.SystemID = c.Param("system_id")
	if _, exists := h.authenticator.GetAccount(req.SystemID); !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "账户不存在"})
		return
	}
	h.save(c, req, http.StatusOK)
}

// DeleteAccount 删除账户，已绑定的会话不受影响
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	err := h.authenticator.DeleteAccount(c.Request.Context(), c.Param("system_id"))
	if errors.Is(err, auth.ErrUnknownSystemID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "账户不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "账户已删除"})
}

func (h *AccountHandler) save(c *gin.Context, req AccountRequest, status int) {
	acc := &auth.Account{
		SystemID:    req.SystemID,
		Password:    req.Password,
		SystemType:  req.SystemType,
		FlowControl: req.FlowControl,
		MaxSessions: req.MaxSessions,
		IPAddresses: req.IPAddresses,
	}
	if err := h.authenticator.SaveAccount(c.Request.Context(), acc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(status, acc)
}

// WhitelistRequest 替换全局IP白名单
type WhitelistRequest struct {
	Entries []string `json:"entries"`
}

// GetWhitelist 获取全局IP白名单
func (h *AccountHandler) GetWhitelist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.authenticator.Whitelist().Entries()})
}

// ReplaceWhitelist 整体替换全局IP白名单，只影响之后的绑定
func (h *AccountHandler) ReplaceWhitelist(c *gin.Context) {
	var req WhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.authenticator.Whitelist().Replace(req.Entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": h.authenticator.Whitelist().Entries()})
}
