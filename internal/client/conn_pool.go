// internal/client/conn_pool.go
// 多绑定连接池
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"smppgw/internal/protocol"
	"smppgw/pkg/logger"
)

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("连接池已关闭")

// ConnectionPool 同一账户的多个绑定，提交时轮询使用，断开的绑定在下次取用时重连
type ConnectionPool struct {
	cfg      Config
	receiver MessageReceiver
	log      *logger.Logger

	mu      sync.Mutex
	clients []*Client
	closed  bool
	next    uint32
}

// NewConnectionPool 建立size个绑定
func NewConnectionPool(ctx context.Context, cfg Config, size int, receiver MessageReceiver) (*ConnectionPool, error) {
	if size <= 0 {
		size = 1
	}
	p := &ConnectionPool{
		cfg:      cfg,
		receiver: receiver,
		log:      logger.Named("client"),
		clients:  make([]*Client, size),
	}
	for i := range p.clients {
		c, err := Connect(ctx, cfg, receiver)
		if err != nil {
			p.Close(ctx)
			return nil, fmt.Errorf("建立第%d个绑定失败: %w", i+1, err)
		}
		p.clients[i] = c
	}
	return p, nil
}

// Size 绑定数量
func (p *ConnectionPool) Size() int { return len(p.clients) }

// Get 轮询取一个已绑定的客户端，必要时重连
func (p *ConnectionPool) Get(ctx context.Context) (*Client, error) {
	i := int(atomic.AddUint32(&p.next, 1)-1) % len(p.clients)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	c := p.clients[i]
	if c != nil && c.State().IsTransmittable() {
		return c, nil
	}

	p.log.Warning("第%d个绑定不可用，重新连接", i+1)
	if c != nil {
		c.Close()
	}
	c, err := Connect(ctx, p.cfg, p.receiver)
	if err != nil {
		p.clients[i] = nil
		return nil, err
	}
	p.clients[i] = c
	return c, nil
}

// SubmitSM 用下一个绑定提交
func (p *ConnectionPool) SubmitSM(ctx context.Context, sm *protocol.SubmitSM, tlvs ...protocol.TLV) (*protocol.SubmitSMResp, error) {
	c, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.SubmitSM(ctx, sm, tlvs...)
}

// Stats 各绑定的统计
func (p *ConnectionPool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stats, 0, len(p.clients))
	for _, c := range p.clients {
		if c != nil {
			out = append(out, c.Stats())
		}
	}
	return out
}

// Close 解绑并关闭所有连接
func (p *ConnectionPool) Close(ctx context.Context) {
	p.mu.Lock()
	p.closed = true
	clients := p.clients
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		if c == nil {
			continue
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.UnbindAndClose(ctx)
		}(c)
	}
	wg.Wait()
}
