// api/middleware/auth.go
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

// 管理用户角色
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// 上下文中的键
const (
	ContextUsername = "username"
	ContextRole     = "role"
)

// JWTConfig JWT配置
type JWTConfig struct {
	SecretKey     string
	TokenExpiry   time.Duration
	TokenLookup   string
	TokenHeadName string
}

// NewJWTConfig 使用给定密钥和有效期创建配置
func NewJWTConfig(secret string, expiry time.Duration) JWTConfig {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return JWTConfig{
		SecretKey:     secret,
		TokenExpiry:   expiry,
		TokenLookup:   "header: Authorization, query: token, cookie: jwt",
		TokenHeadName: "Bearer",
	}
}

// JWTAuth JWT认证中间件
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c, cfg.TokenLookup, cfg.TokenHeadName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未授权，需要登录"})
			return
		}

		claims, err := ValidateToken(token, cfg.SecretKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的令牌或令牌已过期"})
			return
		}

		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole 要求当前用户具有指定角色，必须放在JWTAuth之后
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "权限不足"})
	}
}

// JWTClaims JWT声明
type JWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

// 按lookup中的顺序提取token
func extractToken(c *gin.Context, lookup, headName string) string {
	for _, method := range strings.Split(lookup, ",") {
		parts := strings.Split(strings.TrimSpace(method), ":")
		if len(parts) != 2 {
			continue
		}

		source := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])

		switch source {
		case "header":
			token := c.GetHeader(key)
			if len(token) > len(headName) && strings.EqualFold(token[:len(headName)], headName) {
				return strings.TrimSpace(token[len(headName):])
			}
		case "query":
			if token := c.Query(key); token != "" {
				return token
			}
		case "cookie":
			if token, _ := c.Cookie(key); token != "" {
				return token
			}
		}
	}
	return ""
}

// ValidateToken 校验签名和有效期
func ValidateToken(tokenString, secret string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("不支持的签名算法")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// GenerateToken 生成JWT令牌
func GenerateToken(username, role, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Username: username,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(expiry).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    "smppgw",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
