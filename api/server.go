// api/server.go
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smppgw/api/handlers"
	"smppgw/api/middleware"
	"smppgw/api/routes"
	"smppgw/internal/auth"
	"smppgw/internal/config"
	"smppgw/internal/dispatcher"
	"smppgw/internal/metrics"
	"smppgw/internal/server"
	"smppgw/internal/tracer"
	"smppgw/pkg/logger"
)

// Server 管理接口HTTP服务器
type Server struct {
	config     config.AdminConfig
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	log        *logger.Logger
	done       chan struct{}
}

// Deps 管理接口依赖的组件，除Auth外都可以为nil
type Deps struct {
	SMSC       *server.Server
	Auth       *auth.Authenticator
	Dispatcher *dispatcher.MessageDispatcher
	Metrics    *metrics.Metrics
	Tracer     *tracer.Tracer
}

// NewServer 创建管理接口服务器
func NewServer(cfg config.AdminConfig, deps Deps) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log := logger.Named("admin")
	engine := gin.New()
	engine.Use(middleware.Logger(log))
	engine.Use(gin.Recovery())

	users := make([]handlers.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, handlers.User{Username: u.Username, Password: u.Password, Role: u.Role})
	}
	jwt := middleware.NewJWTConfig(cfg.JWTSecret, cfg.TokenTTL)

	routes.SetupRoutes(engine, routes.Handlers{
		Auth:     handlers.NewAuthHandler(users, jwt),
		Sessions: handlers.NewSessionHandler(deps.SMSC),
		Accounts: handlers.NewAccountHandler(deps.Auth),
		Messages: handlers.NewMessageHandler(deps.Dispatcher),
		Stats:    handlers.NewStatsHandler(deps.SMSC, deps.Dispatcher, deps.Metrics),
		Trace:    handlers.NewTraceHandler(deps.Tracer),
	}, jwt)

	return &Server{
		config: cfg,
		engine: engine,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Handler 返回路由，供测试直接使用
func (s *Server) Handler() http.Handler { return s.engine }

// Start 监听并在后台提供服务
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("管理接口异常退出: %v", err)
		}
	}()

	s.log.Info("管理接口监听于 %s", ln.Addr())
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	<-s.done
	return err
}
