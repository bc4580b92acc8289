// api/handlers/auth.go
package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smppgw/api/middleware"
)

// User 管理接口用户
type User struct {
	Username string
	Password string
	Role     string
}

// AuthHandler 认证处理器
type AuthHandler struct {
	users map[string]User
	jwt   middleware.JWTConfig
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(users []User, jwt middleware.JWTConfig) *AuthHandler {
	h := &AuthHandler{users: make(map[string]User, len(users)), jwt: jwt}
	for _, u := range users {
		if u.Role == "" {
			u.Role = middleware.RoleViewer
		}
		h.users[u.Username] = u
	}
	return h
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验用户名密码并签发令牌
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := h.users[req.Username]
	if !ok || subtle.ConstantTimeCompare([]byte(user.Password), []byte(req.Password)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码错误"})
		return
	}

	token, err := middleware.GenerateToken(user.Username, user.Role, h.jwt.SecretKey, h.jwt.TokenExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成令牌失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"expire": time.Now().Add(h.jwt.TokenExpiry).Unix(),
		"user": gin.H{
			"username": user.Username,
			"role":     user.Role,
		},
	})
}

// Me 返回当前令牌对应的用户
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"username": c.GetString(middleware.ContextUsername),
		"role":     c.GetString(middleware.ContextRole),
	})
}
