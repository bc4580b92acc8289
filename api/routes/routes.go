// api/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smppgw/api/handlers"
	"smppgw/api/middleware"
)

// Handlers 路由使用的处理器集合
type Handlers struct {
	Auth     *handlers.AuthHandler
	Sessions *handlers.SessionHandler
	Accounts *handlers.AccountHandler
	Messages *handlers.MessageHandler
	Stats    *handlers.StatsHandler
	Trace    *handlers.TraceHandler
}

// SetupRoutes 设置路由
func SetupRoutes(engine *gin.Engine, h Handlers, jwt middleware.JWTConfig) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)

	authorized := api.Group("/")
	authorized.Use(middleware.JWTAuth(jwt))
	{
		authorized.GET("/auth/me", h.Auth.Me)

		// 只读接口对所有角色开放
		authorized.GET("/sessions", h.Sessions.ListSessions)
		authorized.GET("/sessions/:id", h.Sessions.GetSession)
		authorized.GET("/accounts", h.Accounts.ListAccounts)
		authorized.GET("/accounts/:system_id", h.Accounts.GetAccount)
		authorized.GET("/whitelist", h.Accounts.GetWhitelist)
		authorized.GET("/messages/:id", h.Messages.GetMessage)
		authorized.GET("/stats", h.Stats.GetStats)
		authorized.GET("/stats/realtime", h.Stats.GetRealtimeStats)
		authorized.GET("/trace", h.Trace.GetSettings)
		authorized.GET("/trace/logs", h.Trace.ListLogs)

		admin := authorized.Group("/")
		admin.Use(middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.DELETE("/sessions/:id", h.Sessions.CloseSession)
			admin.POST("/sessions/:id/deliver", h.Sessions.Deliver)

			admin.POST("/accounts", h.Accounts.CreateAccount)
			admin.PUT("/accounts/:system_id", h.Accounts.UpdateAccount)
			admin.DELETE("/accounts/:system_id", h.Accounts.DeleteAccount)

			admin.PUT("/whitelist", h.Accounts.ReplaceWhitelist)

			admin.PUT("/trace", h.Trace.UpdateSettings)
			admin.POST("/trace/numbers/:number", h.Trace.AddNumber)
			admin.DELETE("/trace/numbers/:number", h.Trace.RemoveNumber)
			admin.DELETE("/trace/logs", h.Trace.ClearLogs)
		}
	}
}
