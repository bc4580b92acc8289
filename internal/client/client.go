// internal/client/client.go  ESME客户端
package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"smppgw/internal/protocol"
	"smppgw/internal/session"
	"smppgw/pkg/logger"
)

// Config 客户端配置
type Config struct {
	Address      string  `yaml:"address"`
	SystemID     string  `yaml:"system_id"`
	Password     string  `yaml:"password"`
	SystemType   string  `yaml:"system_type"`
	BindType     string  `yaml:"bind_type"` // tx、rx或trx
	AddrTON      byte    `yaml:"addr_ton"`
	AddrNPI      byte    `yaml:"addr_npi"`
	AddressRange string  `yaml:"address_range"`
	SubmitRate   float64 `yaml:"submit_rate"` // 每秒提交上限，0为不限制

	DialTimeout       time.Duration `yaml:"dial_timeout"`
	BindTimeout       time.Duration `yaml:"bind_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffFactor     float64       `yaml:"backoff_factor"`

	Session session.Config `yaml:"-"`
}

// ParseBindType 解析配置中的绑定类型，空字符串按trx处理
func ParseBindType(s string) (protocol.BindType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trx", "transceiver":
		return protocol.BindTransceiver, nil
	case "tx", "transmitter":
		return protocol.BindTransmitter, nil
	case "rx", "receiver":
		return protocol.BindReceiver, nil
	}
	return 0, fmt.Errorf("无效的绑定类型 %q", s)
}

// BindParams 由配置生成绑定参数
func (c *Config) BindParams() (session.BindParams, error) {
	t, err := ParseBindType(c.BindType)
	if err != nil {
		return session.BindParams{}, err
	}
	return session.BindParams{
		Type:         t,
		SystemID:     c.SystemID,
		Password:     c.Password,
		SystemType:   c.SystemType,
		AddrTON:      c.AddrTON,
		AddrNPI:      c.AddrNPI,
		AddressRange: c.AddressRange,
	}, nil
}

func (c *Config) applyDefaults() {
	c.Session.Role = session.RoleESME
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.BindTimeout <= 0 {
		c.BindTimeout = 10 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = time.Second
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2
	}
}

// MessageReceiver 处理SMSC发来的消息。
// 返回*session.ProcessRequestError可以指定响应状态码。
type MessageReceiver interface {
	OnDeliverSM(c *Client, req *protocol.PDU, dm *protocol.DeliverSM) (*protocol.DeliverSMResp, error)
	OnDataSM(c *Client, req *protocol.PDU, dm *protocol.DataSM) (*protocol.DataSMResp, error)
	OnAlertNotification(c *Client, an *protocol.AlertNotification)
}

// NopReceiver 确认所有消息但不做处理
type NopReceiver struct{}

func (NopReceiver) OnDeliverSM(*Client, *protocol.PDU, *protocol.DeliverSM) (*protocol.DeliverSMResp, error) {
	return protocol.NewDeliverSMResp(""), nil
}

func (NopReceiver) OnDataSM(*Client, *protocol.PDU, *protocol.DataSM) (*protocol.DataSMResp, error) {
	return protocol.NewDataSMResp(""), nil
}

func (NopReceiver) OnAlertNotification(*Client, *protocol.AlertNotification) {}

// Stats 客户端统计
type Stats struct {
	Submitted uint64        `json:"submitted"`
	Failed    uint64        `json:"failed"`
	Received  uint64        `json:"received"`
	Session   session.Stats `json:"session"`
}

// Client 一个ESME到SMSC的连接
type Client struct {
	cfg      Config
	sess     *session.Session
	receiver MessageReceiver
	limiter  *rate.Limiter
	log      *logger.Logger

	stats struct {
		submitted uint64
		failed    uint64
		received  uint64
	}
}

// NewClient 在已建立的连接上创建客户端，状态为OPEN
func NewClient(conn net.Conn, cfg Config, receiver MessageReceiver) *Client {
	cfg.applyDefaults()
	if receiver == nil {
		receiver = NopReceiver{}
	}
	c := &Client{
		cfg:      cfg,
		receiver: receiver,
		log:      logger.Named("client"),
	}
	if cfg.SubmitRate > 0 {
		burst := int(math.Ceil(cfg.SubmitRate))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), burst)
	}
	c.sess = session.New(conn, cfg.Session, &clientHandler{c: c})
	c.sess.Start()
	return c
}

// Dial 建立TCP连接，不绑定
func Dial(ctx context.Context, addr string, cfg Config, receiver MessageReceiver) (*Client, error) {
	cfg.applyDefaults()
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("连接%s失败: %w", addr, err)
	}
	return NewClient(conn, cfg, receiver), nil
}

// Connect 连接并绑定，失败时按指数退避重试MaxRetries次
func Connect(ctx context.Context, cfg Config, receiver MessageReceiver) (*Client, error) {
	cfg.applyDefaults()
	log := logger.Named("client")

	var lastErr error
	for i := 0; i <= cfg.MaxRetries; i++ {
		if i > 0 {
			wait := time.Duration(float64(cfg.ReconnectInterval) * math.Pow(cfg.BackoffFactor, float64(i-1)))
			log.Info("尝试第%d次重连，等待%.2f秒", i, wait.Seconds())
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		c, err := Dial(ctx, cfg.Address, cfg, receiver)
		if err == nil {
			if err = c.Bind(ctx); err == nil {
				return c, nil
			}
			c.Close()
		}
		lastErr = err

		// 认证类错误重试无意义
		var neg *session.NegativeResponseError
		if errors.As(err, &neg) {
			return nil, err
		}
		log.Warning("连接SMSC失败: %v", err)
	}
	return nil, fmt.Errorf("超过最大重试次数: %w", lastErr)
}

// AcceptOutbind 在监听器上等待SMSC连接并发送outbind，收到后按配置绑定
func AcceptOutbind(ctx context.Context, ln net.Listener, cfg Config, receiver MessageReceiver) (*Client, error) {
	type accepted struct {
		conn net.Conn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- accepted{conn, err}
	}()

	var a accepted
	select {
	case a = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}

	c := NewClient(a.conn, cfg, receiver)
	ob, err := c.sess.WaitForOutbind(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.log.Info("收到来自 %s 的outbind(system_id=%s)", c.sess.RemoteAddr(), ob.SystemID)
	if err := c.Bind(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Bind 按配置绑定
func (c *Client) Bind(ctx context.Context) error {
	params, err := c.cfg.BindParams()
	if err != nil {
		return err
	}
	_, err = c.sess.Bind(ctx, params, c.cfg.BindTimeout)
	return err
}

// Session 底层会话
func (c *Client) Session() *session.Session { return c.sess }

// State 会话状态
func (c *Client) State() session.State { return c.sess.State() }

// Done 会话关闭时关闭
func (c *Client) Done() <-chan struct{} { return c.sess.Done() }

// AddStateListener 注册状态监听
func (c *Client) AddStateListener(l session.StateListener) { c.sess.AddStateListener(l) }

// Stats 客户端统计
func (c *Client) Stats() Stats {
	return Stats{
		Submitted: atomic.LoadUint64(&c.stats.submitted),
		Failed:    atomic.LoadUint64(&c.stats.failed),
		Received:  atomic.LoadUint64(&c.stats.received),
		Session:   c.sess.Stats(),
	}
}

// send 发送请求，提交类请求先经过限速
func (c *Client) send(ctx context.Context, body protocol.Body, tlvs []protocol.TLV, throttled bool) (*protocol.PDU, error) {
	if throttled && c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req := protocol.NewRequest(0, body)
	req.Optional = tlvs
	resp, err := c.sess.SendRequest(ctx, req, 0)
	if throttled {
		if err != nil {
			atomic.AddUint64(&c.stats.failed, 1)
		} else {
			atomic.AddUint64(&c.stats.submitted, 1)
		}
	}
	return resp, err
}

// SubmitSM 提交短信
func (c *Client) SubmitSM(ctx context.Context, sm *protocol.SubmitSM, tlvs ...protocol.TLV) (*protocol.SubmitSMResp, error) {
	resp, err := c.send(ctx, sm, tlvs, true)
	if err != nil {
		return nil, err
	}
	return resp.Body.(*protocol.SubmitSMResp), nil
}

// SubmitMulti 群发短信
func (c *Client) SubmitMulti(ctx context.Context, sm *protocol.SubmitMulti, tlvs ...protocol.TLV) (*protocol.SubmitMultiResp, error) {
	resp, err := c.send(ctx, sm, tlvs, true)
	if err != nil {
		return nil, err
	}
	return resp.Body.(*protocol.SubmitMultiResp), nil
}

// DataSM 发送data_sm
func (c *Client) DataSM(ctx context.Context, dm *protocol.DataSM, tlvs ...protocol.TLV) (*protocol.DataSMResp, error) {
	resp, err := c.send(ctx, dm, tlvs, true)
	if err != nil {
		return nil, err
	}
	return resp.Body.(*protocol.DataSMResp), nil
}

// QuerySM 查询短信状态
func (c *Client) QuerySM(ctx context.Context, q *protocol.QuerySM) (*protocol.QuerySMResp, error) {
	resp, err := c.send(ctx, q, nil, false)
	if err != nil {
		return nil, err
	}
	return resp.Body.(*protocol.QuerySMResp), nil
}

// CancelSM 取消短信
func (c *Client) CancelSM(ctx context.Context, cm *protocol.CancelSM) error {
	_, err := c.send(ctx, cm, nil, false)
	return err
}

// ReplaceSM 替换短信
func (c *Client) ReplaceSM(ctx context.Context, rm *protocol.ReplaceSM) error {
	_, err := c.send(ctx, rm, nil, false)
	return err
}

// EnquireLink 手动链路检测
func (c *Client) EnquireLink(ctx context.Context) error {
	_, err := c.send(ctx, &protocol.EnquireLink{}, nil, false)
	return err
}

// Unbind 解绑但不关闭连接，SMSC通常会随后断开
func (c *Client) Unbind(ctx context.Context) error {
	return c.sess.Unbind(ctx)
}

// UnbindAndClose 解绑后关闭，解绑失败也会关闭
func (c *Client) UnbindAndClose(ctx context.Context) error {
	var err error
	if c.sess.State().IsBound() {
		err = c.sess.Unbind(ctx)
	}
	c.sess.Close()
	return err
}

// Close 直接关闭连接
func (c *Client) Close() error {
	return c.sess.Close()
}

// clientHandler 把会话层的请求转给MessageReceiver
type clientHandler struct {
	c *Client
}

func (h *clientHandler) HandleRequest(_ *session.Session, req *protocol.PDU) (protocol.Body, error) {
	c := h.c
	atomic.AddUint64(&c.stats.received, 1)

	switch body := req.Body.(type) {
	case *protocol.DeliverSM:
		resp, err := c.receiver.OnDeliverSM(c, req, body)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	case *protocol.DataSM:
		resp, err := c.receiver.OnDataSM(c, req, body)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	case *protocol.AlertNotification:
		c.receiver.OnAlertNotification(c, body)
		return nil, nil
	}
	return nil, session.NewProcessRequestError(protocol.ESME_RINVCMDID, fmt.Errorf("客户端不处理%s", req.CommandID))
}
