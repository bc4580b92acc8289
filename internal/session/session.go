// internal/session/session.go  SMPP会话
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"smppgw/internal/metrics"
	"smppgw/internal/protocol"
	"smppgw/pkg/logger"
)

// Config 会话配置
type Config struct {
	Role             Role
	InterfaceVersion protocol.InterfaceVersion // 本端支持的最高版本
	MaxFrameSize     uint32

	ProcessorDegree    int // 请求处理协程数
	ProcessorQueueSize int
	MaxPending         int // 未完成请求上限，0为不限制

	RequestTimeout time.Duration // 默认响应超时
	WriteTimeout   time.Duration
	DrainTimeout   time.Duration // 关闭时等待处理中请求的时间

	EnquireLinkInterval  time.Duration // 0表示不发送链路检测
	EnquireLinkTimeout   time.Duration
	MaxEnquireLinkMisses int

	CloseOnBindReject bool

	Metrics *metrics.Metrics
	Logger  *logger.Logger
	Tracer  Tracer // 可选
}

// Tracer 观察会话收发的PDU。在读写路径上同步调用，实现不能阻塞
type Tracer interface {
	TracePDU(s *Session, outgoing bool, p *protocol.PDU, raw []byte)
}

// DefaultConfig 默认配置
func DefaultConfig(role Role) Config {
	return Config{
		Role:                 role,
		InterfaceVersion:     protocol.IF_VERSION_34,
		MaxFrameSize:         protocol.DefaultMaxFrameSize,
		ProcessorDegree:      4,
		ProcessorQueueSize:   256,
		MaxPending:           1024,
		RequestTimeout:       10 * time.Second,
		WriteTimeout:         5 * time.Second,
		DrainTimeout:         5 * time.Second,
		EnquireLinkInterval:  30 * time.Second,
		EnquireLinkTimeout:   5 * time.Second,
		MaxEnquireLinkMisses: 2,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig(c.Role)
	if c.InterfaceVersion == 0 {
		c.InterfaceVersion = d.InterfaceVersion
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	if c.ProcessorDegree <= 0 {
		c.ProcessorDegree = d.ProcessorDegree
	}
	if c.ProcessorQueueSize <= 0 {
		c.ProcessorQueueSize = d.ProcessorQueueSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.EnquireLinkTimeout <= 0 {
		c.EnquireLinkTimeout = d.EnquireLinkTimeout
	}
	if c.MaxEnquireLinkMisses <= 0 {
		c.MaxEnquireLinkMisses = d.MaxEnquireLinkMisses
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Default()
	}
	if c.Logger == nil {
		c.Logger = logger.Named("session")
	}
}

// Handler 处理对端发来的业务请求，返回响应消息体。
// 返回nil消息体时使用空响应，返回错误时发送负响应。
// 不同请求可能被并发调用。
type Handler interface {
	HandleRequest(s *Session, req *protocol.PDU) (protocol.Body, error)
}

// HandlerFunc 函数形式的Handler
type HandlerFunc func(s *Session, req *protocol.PDU) (protocol.Body, error)

func (f HandlerFunc) HandleRequest(s *Session, req *protocol.PDU) (protocol.Body, error) {
	return f(s, req)
}

// Session 一条SMPP连接
type Session struct {
	id        uint64
	conn      net.Conn
	cfg       Config
	handler   Handler
	log       *logger.Logger
	metrics   *metrics.Metrics
	createdAt time.Time

	seq     *Sequence
	pending *PendingMap
	pool    *ProcessorPool
	state   stateMachine

	writeMu   sync.Mutex
	lastRead  int64
	lastWrite int64
	pdusIn    uint64
	pdusOut   uint64

	// 绑定结果，迁移到BOUND之前写入
	bindMu   sync.RWMutex
	systemID string
	bindType protocol.BindType
	version  protocol.InterfaceVersion

	binding   int32
	bindCh    chan *BindRequest
	outbindCh chan *protocol.Outbind

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	causeMu   sync.Mutex
	cause     error
	wg        sync.WaitGroup
}

var globalSessionID uint64

// New 创建会话，调用Start后开始读取
func New(conn net.Conn, cfg Config, handler Handler) *Session {
	cfg.applyDefaults()

	now := time.Now().UnixNano()
	s := &Session{
		id:        atomic.AddUint64(&globalSessionID, 1),
		conn:      conn,
		cfg:       cfg,
		handler:   handler,
		metrics:   cfg.Metrics,
		createdAt: time.Now(),
		seq:       NewSequence(1),
		pending:   NewPendingMap(cfg.MaxPending),
		lastRead:  now,
		lastWrite: now,
		bindCh:    make(chan *BindRequest, 1),
		outbindCh: make(chan *protocol.Outbind, 1),
		done:      make(chan struct{}),
	}
	s.log = cfg.Logger.Named(fmt.Sprintf("%s#%d", cfg.Logger.Name(), s.id))
	s.pool = NewProcessorPool(cfg.ProcessorDegree, cfg.ProcessorQueueSize, s.processRequest)
	s.state.addListener(StateListenerFunc(s.trackState))
	return s
}

// Start 启动读取循环和链路检测
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.metrics.ActiveSessions.Inc(1)
		s.log.Info("会话开始 role=%s remote=%s", s.cfg.Role, s.RemoteAddr())

		s.wg.Add(1)
		go s.readLoop()

		if s.cfg.EnquireLinkInterval > 0 {
			s.wg.Add(1)
			go s.keepaliveLoop()
		}
	})
}

// ID 会话ID
func (s *Session) ID() uint64 { return s.id }

// Role 本端角色
func (s *Session) Role() Role { return s.cfg.Role }

// State 当前状态
func (s *Session) State() State { return s.state.current() }

// Done 会话关闭后可读
func (s *Session) Done() <-chan struct{} { return s.done }

// Logger 会话日志器
func (s *Session) Logger() *logger.Logger { return s.log }

// RemoteAddr 对端地址
func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// SystemID 对端system_id。SMSC端为绑定请求中的值，ESME端为bind_resp中的值
func (s *Session) SystemID() string {
	s.bindMu.RLock()
	defer s.bindMu.RUnlock()
	return s.systemID
}

// BindType 绑定类型，未绑定时为0
func (s *Session) BindType() protocol.BindType {
	s.bindMu.RLock()
	defer s.bindMu.RUnlock()
	return s.bindType
}

// InterfaceVersion 协商后的版本，绑定前为0
func (s *Session) InterfaceVersion() protocol.InterfaceVersion {
	s.bindMu.RLock()
	defer s.bindMu.RUnlock()
	return s.version
}

// CloseCause 关闭原因，正常关闭时为nil
func (s *Session) CloseCause() error {
	s.causeMu.Lock()
	defer s.causeMu.Unlock()
	return s.cause
}

// AddStateListener 注册状态监听器，监听器内不能调用会触发状态迁移或同步写出PDU的方法
func (s *Session) AddStateListener(l StateListener) {
	s.state.addListener(l)
}

// LastActivity 最后一次收发时间
func (s *Session) LastActivity() time.Time {
	r := atomic.LoadInt64(&s.lastRead)
	w := atomic.LoadInt64(&s.lastWrite)
	if w > r {
		r = w
	}
	return time.Unix(0, r)
}

// IdleTime 距最后一次收发的时间
func (s *Session) IdleTime() time.Duration {
	return time.Since(s.LastActivity())
}

// Stats 会话统计
type Stats struct {
	ID               uint64    `json:"id"`
	Role             string    `json:"role"`
	State            string    `json:"state"`
	SystemID         string    `json:"system_id"`
	BindType         string    `json:"bind_type,omitempty"`
	InterfaceVersion string    `json:"interface_version,omitempty"`
	RemoteAddr       string    `json:"remote_addr"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
	PDUsIn           uint64    `json:"pdus_in"`
	PDUsOut          uint64    `json:"pdus_out"`
	Pending          int       `json:"pending"`
	Queued           int       `json:"queued"`
}

// Stats 获取会话统计
func (s *Session) Stats() Stats {
	st := Stats{
		ID:           s.id,
		Role:         s.cfg.Role.String(),
		State:        s.State().String(),
		SystemID:     s.SystemID(),
		RemoteAddr:   s.RemoteAddr(),
		CreatedAt:    s.createdAt,
		LastActivity: s.LastActivity(),
		PDUsIn:       atomic.LoadUint64(&s.pdusIn),
		PDUsOut:      atomic.LoadUint64(&s.pdusOut),
		Pending:      s.pending.Len(),
		Queued:       s.pool.Queued(),
	}
	if t := s.BindType(); t != 0 {
		st.BindType = t.String()
		st.InterfaceVersion = s.InterfaceVersion().String()
	}
	return st
}

// SendRequest 发送请求并等待响应，timeout<=0时使用配置的默认值。
// 没有响应的命令(outbind、alert_notification)写出后直接返回nil。
func (s *Session) SendRequest(ctx context.Context, req *protocol.PDU, timeout time.Duration) (*protocol.PDU, error) {
	if err := CheckOperation(s.cfg.Role, s.State(), req.Body.CommandID()); err != nil {
		return nil, err
	}
	return s.request(ctx, req, timeout)
}

// request 发送请求，不检查状态
func (s *Session) request(ctx context.Context, req *protocol.PDU, timeout time.Duration) (*protocol.PDU, error) {
	id := req.Body.CommandID()
	if !expectsResponse(id) {
		req.SequenceNumber = s.seq.Next()
		return nil, s.writePDU(req)
	}
	if timeout <= 0 {
		timeout = s.cfg.RequestTimeout
	}

	p, err := s.register(id.Response())
	if err != nil {
		return nil, err
	}
	req.SequenceNumber = p.Sequence

	start := time.Now()
	if err := s.writePDU(req); err != nil {
		s.pending.Remove(p.Sequence)
		return nil, err
	}

	resp, err := s.pending.Await(ctx, p, timeout)
	s.metrics.RequestTime.UpdateSince(start)

	var neg *NegativeResponseError
	switch {
	case errors.Is(err, ErrResponseTimeout):
		s.metrics.ResponseTimeouts.Inc(1)
		s.log.Warning("%s(seq=%d) 等待响应超时(%v)", id, p.Sequence, timeout)
	case errors.As(err, &neg):
		s.metrics.NegativeResponses.Inc(1)
	}
	return resp, err
}

// register 分配一个未被占用的序列号并登记
func (s *Session) register(expected protocol.CommandID) (*PendingResponse, error) {
	for i := 0; i < 16; i++ {
		p, err := s.pending.Register(s.seq.Next(), expected)
		if err != errSequenceInUse {
			return p, err
		}
	}
	return nil, ErrTooManyPending
}

func expectsResponse(id protocol.CommandID) bool {
	return id != protocol.ALERT_NOTIFICATION && id != protocol.OUTBIND
}

// Unbind 发送unbind并等待响应，不关闭连接
func (s *Session) Unbind(ctx context.Context) error {
	if _, err := s.state.transition(s, StateUnbound, isBound); err != nil {
		return err
	}
	_, err := s.request(ctx, protocol.NewRequest(0, &protocol.Unbind{}), 0)
	return err
}

// Close 等待处理中的请求后关闭连接
func (s *Session) Close() error {
	if s.State() == StateClosed {
		return nil
	}
	s.pool.Drain(s.cfg.DrainTimeout)
	s.closeWith(nil)
	return nil
}

// Wait 等待读取和链路检测协程退出
func (s *Session) Wait() {
	<-s.done
	s.wg.Wait()
}

// closeWith 关闭会话，cause为nil表示正常关闭
func (s *Session) closeWith(cause error) {
	s.closeOnce.Do(func() {
		s.causeMu.Lock()
		s.cause = cause
		s.causeMu.Unlock()

		s.state.transition(s, StateClosed, nil)
		close(s.done)
		s.conn.Close()
		s.pool.Close()

		pendingErr := ErrConnectionClosed
		if cause != nil {
			pendingErr = fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
			s.log.Warning("会话异常关闭: %v", cause)
		} else {
			s.log.Info("会话已关闭")
		}
		s.pending.CloseAll(pendingErr)
		s.metrics.ActiveSessions.Dec(1)
	})
}

// trackState 更新绑定会话计数
func (s *Session) trackState(_ *Session, newState, oldState State) {
	switch {
	case newState.IsBound() && !oldState.IsBound():
		s.metrics.BoundSessions.Inc(1)
	case oldState.IsBound() && !newState.IsBound():
		s.metrics.BoundSessions.Dec(1)
	}
	s.log.Debug("状态 %s -> %s", oldState, newState)
}

// writePDU 编码并写出，写入串行化。写失败会关闭会话
func (s *Session) writePDU(p *protocol.PDU) error {
	data, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	err = s.writeLocked(p, data)
	s.writeMu.Unlock()
	return s.wrote(p, data, err)
}

// writeLocked 调用方持有writeMu
func (s *Session) writeLocked(p *protocol.PDU, data []byte) error {
	if s.State() == StateClosed {
		return ErrConnectionClosed
	}
	// 先于写出记录
	if s.cfg.Tracer != nil {
		s.cfg.Tracer.TracePDU(s, true, p, data)
	}
	if s.cfg.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	_, err := s.conn.Write(data)
	return err
}

// wrote 在释放writeMu之后处理写出结果
func (s *Session) wrote(p *protocol.PDU, data []byte, err error) error {
	if err == ErrConnectionClosed {
		return err
	}
	if err != nil {
		s.closeWith(fmt.Errorf("写入%s失败: %w", p.CommandID, err))
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	atomic.StoreInt64(&s.lastWrite, time.Now().UnixNano())
	atomic.AddUint64(&s.pdusOut, 1)
	s.metrics.RecordOut(len(data))
	s.log.Debug("发送 %s", p)
	return nil
}

// respond 对请求写出响应
func (s *Session) respond(req *protocol.PDU, status protocol.CommandStatus, body protocol.Body) error {
	return s.writePDU(protocol.NewResponse(req, status, body))
}

// readLoop 单协程按到达顺序读取和分发PDU
func (s *Session) readLoop() {
	defer s.wg.Done()

	for {
		frame, err := protocol.ReadFrame(s.conn, s.cfg.MaxFrameSize)
		if err != nil {
			s.closeWith(s.readError(err))
			return
		}
		atomic.StoreInt64(&s.lastRead, time.Now().UnixNano())
		atomic.AddUint64(&s.pdusIn, 1)
		s.metrics.RecordIn(len(frame))

		pdu, err := protocol.Decode(frame, s.cfg.MaxFrameSize)
		if err != nil {
			s.metrics.FramingErrors.Inc(1)
			s.closeWith(err)
			return
		}
		s.log.Debug("收到 %s", pdu)
		if s.cfg.Tracer != nil {
			s.cfg.Tracer.TracePDU(s, false, pdu, frame)
		}

		s.dispatch(pdu)
	}
}

func (s *Session) readError(err error) error {
	if s.State() == StateClosed {
		return nil
	}
	if errors.Is(err, protocol.ErrFraming) {
		s.metrics.FramingErrors.Inc(1)
		return err
	}
	if errors.Is(err, io.EOF) {
		// 解绑完成后对端关闭连接属于正常结束
		if s.State() == StateUnbound {
			return nil
		}
		return fmt.Errorf("对端关闭连接: %w", err)
	}
	return fmt.Errorf("读取失败: %w", err)
}

// dispatch 对一个PDU分类处理
func (s *Session) dispatch(pdu *protocol.PDU) {
	if pdu.IsResponse() {
		s.dispatchResponse(pdu)
		return
	}

	switch body := pdu.Body.(type) {
	case *protocol.EnquireLink:
		s.respond(pdu, protocol.ESME_ROK, nil)
	case *protocol.Unbind:
		s.handleUnbind(pdu)
	case *protocol.Bind:
		s.handleBind(pdu, body)
	case *protocol.Outbind:
		s.handleOutbind(pdu, body)
	case *protocol.Unknown:
		s.log.Warning("未知命令 %s，回复generic_nack", pdu.Header)
		s.writePDU(protocol.NewGenericNack(pdu.SequenceNumber, protocol.ESME_RINVCMDID))
	default:
		peer := s.cfg.Role.Peer()
		if !CanOriginate(peer, pdu.CommandID) {
			s.log.Warning("%s不能发起%s", peer, pdu.Header)
			s.rejectRequest(pdu, protocol.ESME_RINVCMDID)
			return
		}
		if err := CheckOperation(peer, s.State(), pdu.CommandID); err != nil {
			s.log.Warning("拒绝请求 %s: %v", pdu.Header, err)
			s.rejectRequest(pdu, protocol.ESME_RINVBNDSTS)
			return
		}
		// 读取协程不能阻塞在处理池上，队列满时直接回复限流
		switch err := s.pool.TrySubmit(pdu); {
		case errors.Is(err, ErrPoolFull):
			s.metrics.Throttled.Inc(1)
			s.log.Warning("处理队列已满，限流 %s", pdu.Header)
			s.rejectRequest(pdu, protocol.ESME_RTHROTTLED)
		case err != nil:
			s.rejectRequest(pdu, protocol.ESME_RSYSERR)
		}
	}
}

// rejectRequest 写出负响应，无响应的命令只记录
func (s *Session) rejectRequest(req *protocol.PDU, status protocol.CommandStatus) {
	if !expectsResponse(req.CommandID) {
		return
	}
	s.respond(req, status, nil)
}

func (s *Session) dispatchResponse(pdu *protocol.PDU) {
	p := s.pending.take(pdu.SequenceNumber)
	if p == nil {
		s.metrics.UnsolicitedResponses.Inc(1)
		s.log.Warning("丢弃未匹配的响应 %s", pdu.Header)
		return
	}

	// 绑定成功要在唤醒调用方、读取下一个PDU之前进入BOUND状态
	if protocol.BindTypeOf(pdu.CommandID) != 0 && p.matches(pdu) {
		s.completeBind(pdu)
	}
	p.complete(pdu)
}

// processRequest 在处理池中执行
func (s *Session) processRequest(req *protocol.PDU) {
	body, err := s.invoke(req)

	if !expectsResponse(req.CommandID) {
		if err != nil {
			s.log.Warning("处理%s失败: %v", req.Header, err)
		}
		return
	}
	if err == nil && body != nil && body.CommandID() != req.CommandID.Response() {
		err = fmt.Errorf("响应类型%s与请求%s不匹配", body.CommandID(), req.CommandID)
	}
	if err != nil {
		s.metrics.HandlerErrors.Inc(1)
		status := StatusOf(err)
		s.log.Warning("处理%s失败，返回%s: %v", req.Header, status, err)
		s.respond(req, status, nil)
		return
	}
	s.respond(req, protocol.ESME_ROK, body)
}

// invoke 调用Handler，panic转换为系统错误
func (s *Session) invoke(req *protocol.PDU) (body protocol.Body, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("处理%s时崩溃: %v\n%s", req.Header, r, debug.Stack())
			body, err = nil, NewProcessRequestError(protocol.ESME_RSYSERR, fmt.Errorf("panic: %v", r))
		}
	}()
	if s.handler == nil {
		return nil, NewProcessRequestError(protocol.ESME_RINVCMDID, errors.New("未配置请求处理器"))
	}
	return s.handler.HandleRequest(s, req)
}

// handleUnbind 对端解绑：进入UNBOUND，等待处理中的请求，响应后关闭
func (s *Session) handleUnbind(req *protocol.PDU) {
	if _, err := s.state.transition(s, StateUnbound, isBound); err != nil {
		s.respond(req, protocol.ESME_RINVBNDSTS, nil)
		return
	}
	s.log.Info("收到unbind，等待处理中的请求")
	s.pool.Drain(s.cfg.DrainTimeout)
	s.respond(req, protocol.ESME_ROK, nil)
	s.closeWith(nil)
}
