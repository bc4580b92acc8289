// internal/server/server.go  SMSC服务端
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"smppgw/internal/metrics"
	"smppgw/internal/protocol"
	"smppgw/internal/session"
	"smppgw/pkg/logger"
)

// ServerConfig 服务器配置
type ServerConfig struct {
	ListenAddress  string        `yaml:"listen_address"`
	SystemID       string        `yaml:"system_id"`       // bind_resp和outbind中使用的本端系统ID
	MaxConnections int           `yaml:"max_connections"` // 0为不限制
	BindTimeout    time.Duration `yaml:"bind_timeout"`    // 连接建立后等待绑定的时间

	Session session.Config `yaml:"-"`
}

// BindHandler 决定是否接受绑定，返回ESME_ROK表示接受
type BindHandler interface {
	AuthorizeBind(req *session.BindRequest) protocol.CommandStatus
}

// BindHandlerFunc 函数形式的BindHandler
type BindHandlerFunc func(req *session.BindRequest) protocol.CommandStatus

func (f BindHandlerFunc) AuthorizeBind(req *session.BindRequest) protocol.CommandStatus {
	return f(req)
}

// Throttler 按系统ID限流
type Throttler interface {
	Allow(systemID string) bool
}

// Stats 服务器统计
type Stats struct {
	ListenAddress       string `json:"listen_address"`
	ActiveConnections   int64  `json:"active_connections"`
	TotalConnections    uint64 `json:"total_connections"`
	RejectedConnections uint64 `json:"rejected_connections"`
	BindTimeouts        uint64 `json:"bind_timeouts"`
	Sessions            int    `json:"sessions"`
}

// Server SMSC服务器
type Server struct {
	config     ServerConfig
	binds      BindHandler
	receiver   ServerMessageReceiver
	throttler  Throttler
	sessionMgr *SessionManager
	metrics    *metrics.Metrics
	log        *logger.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	stats struct {
		activeConnections   int64
		totalConnections    uint64
		rejectedConnections uint64
		bindTimeouts        uint64
	}

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewServer 创建新的服务器，binds为nil时接受所有绑定
func NewServer(config ServerConfig, binds BindHandler, receiver ServerMessageReceiver) *Server {
	config.Session.Role = session.RoleSMSC
	if config.Session.Metrics == nil {
		config.Session.Metrics = metrics.Default()
	}
	if config.ListenAddress == "" {
		config.ListenAddress = "0.0.0.0:2775"
	}
	if config.SystemID == "" {
		config.SystemID = "smppgw"
	}
	if config.BindTimeout <= 0 {
		config.BindTimeout = 30 * time.Second
	}

	s := &Server{
		config:     config,
		binds:      binds,
		receiver:   receiver,
		sessionMgr: NewSessionManager(),
		metrics:    config.Session.Metrics,
		log:        logger.Named("server"),
	}
	if s.receiver == nil {
		s.receiver = UnimplementedReceiver{}
	}
	return s
}

// SetThrottler 设置入站限流，需在Start之前调用
func (s *Server) SetThrottler(t Throttler) {
	s.throttler = t
}

// Start 开始监听
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.listener = listener
	s.log.Info("服务器监听于 %s", listener.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop 解绑并关闭所有会话后停止
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.listener != nil {
			s.listener.Close()
		}
		s.sessionMgr.CloseAll(context.Background(), true)
		s.wg.Wait()
		s.log.Info("服务器已停止")
	})
}

// SessionManager 会话管理器
func (s *Server) SessionManager() *SessionManager { return s.sessionMgr }

// Config 生效的配置
func (s *Server) Config() ServerConfig { return s.config }

// Stats 服务器统计
func (s *Server) Stats() Stats {
	st := Stats{
		ListenAddress:       s.config.ListenAddress,
		ActiveConnections:   atomic.LoadInt64(&s.stats.activeConnections),
		TotalConnections:    atomic.LoadUint64(&s.stats.totalConnections),
		RejectedConnections: atomic.LoadUint64(&s.stats.rejectedConnections),
		BindTimeouts:        atomic.LoadUint64(&s.stats.bindTimeouts),
		Sessions:            s.sessionMgr.Count(),
	}
	if addr := s.Addr(); addr != nil {
		st.ListenAddress = addr.String()
	}
	return st
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			s.log.Error("接受连接失败: %v", err)
			return
		}

		atomic.AddUint64(&s.stats.totalConnections, 1)
		if limit := s.config.MaxConnections; limit > 0 && atomic.LoadInt64(&s.stats.activeConnections) >= int64(limit) {
			atomic.AddUint64(&s.stats.rejectedConnections, 1)
			s.log.Warning("连接数已达上限%d，拒绝 %s", limit, conn.RemoteAddr())
			conn.Close()
			continue
		}

		atomic.AddInt64(&s.stats.activeConnections, 1)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// newSession 创建并登记会话
func (s *Server) newSession(conn net.Conn) *ServerSession {
	ss := &ServerSession{server: s}
	ss.Session = session.New(conn, s.config.Session, &requestHandler{server: s})
	s.sessionMgr.Add(ss)
	ss.Start()
	return ss
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		atomic.AddInt64(&s.stats.activeConnections, -1)
		s.wg.Done()
	}()

	ss := s.newSession(conn)
	if err := s.awaitBind(ss); err != nil {
		ss.Logger().Warning("绑定阶段结束: %v", err)
		ss.Close()
	}
	<-ss.Done()
	s.sessionMgr.Remove(ss.ID())
}

// awaitBind 在BindTimeout内等待一次成功的绑定，被拒绝的绑定可以重试
func (s *Server) awaitBind(ss *ServerSession) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.BindTimeout)
	defer cancel()

	for {
		req, err := ss.WaitForBind(ctx)
		if err != nil {
			if errors.Is(err, session.ErrBindTimeout) {
				atomic.AddUint64(&s.stats.bindTimeouts, 1)
			}
			return err
		}

		status := protocol.ESME_ROK
		if s.binds != nil {
			status = s.binds.AuthorizeBind(req)
		}
		if status == protocol.ESME_ROK {
			return req.Accept(s.config.SystemID)
		}
		if err := req.Reject(status); err != nil {
			return err
		}
	}
}

// Outbind 连接ESME并发送outbind，等待对方绑定成功后返回
func (s *Server) Outbind(ctx context.Context, addr, systemID, password string) (*ServerSession, error) {
	if s.ctx == nil {
		return nil, errors.New("服务器未启动")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("连接%s失败: %w", addr, err)
	}

	atomic.AddInt64(&s.stats.activeConnections, 1)
	ss := s.newSession(conn)
	release := func() {
		atomic.AddInt64(&s.stats.activeConnections, -1)
		s.sessionMgr.Remove(ss.ID())
	}

	if err := ss.Outbind(systemID, password); err != nil {
		ss.Close()
		release()
		return nil, err
	}
	if err := s.awaitBind(ss); err != nil {
		ss.Close()
		release()
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ss.Done()
		release()
	}()
	return ss, nil
}
