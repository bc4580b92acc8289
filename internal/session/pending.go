// internal/session/pending.go  请求响应关联
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smppgw/internal/protocol"
)

var errSequenceInUse = errors.New("序列号已在等待响应")

type result struct {
	pdu *protocol.PDU
	err error
}

// PendingResponse 一个等待响应的请求
type PendingResponse struct {
	Sequence  uint32
	Expected  protocol.CommandID
	CreatedAt time.Time
	done      chan result // 缓冲为1，只写一次
}

// PendingMap 按序列号等待响应的请求表
type PendingMap struct {
	mu      sync.Mutex
	entries map[uint32]*PendingResponse
	limit   int
	closed  error
}

// NewPendingMap 创建请求表，limit为0时不限制数量
func NewPendingMap(limit int) *PendingMap {
	return &PendingMap{
		entries: make(map[uint32]*PendingResponse),
		limit:   limit,
	}
}

// Register 登记请求，expected为期望的响应命令ID
func (m *PendingMap) Register(seq uint32, expected protocol.CommandID) (*PendingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed != nil {
		return nil, m.closed
	}
	if _, exists := m.entries[seq]; exists {
		return nil, errSequenceInUse
	}
	if m.limit > 0 && len(m.entries) >= m.limit {
		return nil, ErrTooManyPending
	}

	p := &PendingResponse{
		Sequence:  seq,
		Expected:  expected,
		CreatedAt: time.Now(),
		done:      make(chan result, 1),
	}
	m.entries[seq] = p
	return p, nil
}

// Contains 序列号是否仍在等待
func (m *PendingMap) Contains(seq uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[seq]
	return ok
}

// Await 等待响应，超时或ctx取消时移除登记
func (m *PendingMap) Await(ctx context.Context, p *PendingResponse, timeout time.Duration) (*protocol.PDU, error) {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case r := <-p.done:
		return r.pdu, r.err
	case <-timeoutC:
		return m.abandon(p, ErrResponseTimeout)
	case <-ctx.Done():
		return m.abandon(p, ctx.Err())
	}
}

// abandon 放弃等待，若响应恰好已经送达则仍返回该响应
func (m *PendingMap) abandon(p *PendingResponse, cause error) (*protocol.PDU, error) {
	m.mu.Lock()
	if cur, ok := m.entries[p.Sequence]; ok && cur == p {
		delete(m.entries, p.Sequence)
		m.mu.Unlock()
		return nil, cause
	}
	m.mu.Unlock()

	// Resolve已摘除该项，结果已经或即将写入通道
	r := <-p.done
	return r.pdu, r.err
}

// Resolve 用响应完成等待中的请求，无对应请求时返回false
func (m *PendingMap) Resolve(resp *protocol.PDU) bool {
	p := m.take(resp.SequenceNumber)
	if p == nil {
		return false
	}
	p.complete(resp)
	return true
}

// take 摘除并返回等待项
func (m *PendingMap) take(seq uint32) *PendingResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[seq]
	if !ok {
		return nil
	}
	delete(m.entries, seq)
	return p
}

// matches 响应是否是成功的期望响应
func (p *PendingResponse) matches(resp *protocol.PDU) bool {
	return resp.CommandID == p.Expected && resp.CommandStatus == protocol.ESME_ROK
}

func (p *PendingResponse) complete(resp *protocol.PDU) {
	var r result
	switch {
	case resp.CommandID == protocol.GENERIC_NACK:
		r = result{pdu: resp, err: &NegativeResponseError{Command: p.Expected, Status: resp.CommandStatus}}
	case resp.CommandID != p.Expected:
		r = result{pdu: resp, err: &InvalidResponseError{Sequence: p.Sequence, Expected: p.Expected, Got: resp.CommandID}}
	case resp.CommandStatus != protocol.ESME_ROK:
		r = result{pdu: resp, err: &NegativeResponseError{Command: resp.CommandID, Status: resp.CommandStatus}}
	default:
		r = result{pdu: resp}
	}
	p.done <- r
}

// Remove 移除登记并以取消错误结束等待
func (m *PendingMap) Remove(seq uint32) {
	m.mu.Lock()
	p, ok := m.entries[seq]
	delete(m.entries, seq)
	m.mu.Unlock()
	if ok {
		p.done <- result{err: fmt.Errorf("序列号%d的等待已取消", seq)}
	}
}

// CloseAll 以err结束所有等待，此后Register直接返回err
func (m *PendingMap) CloseAll(err error) {
	m.mu.Lock()
	if m.closed == nil {
		m.closed = err
	}
	entries := m.entries
	m.entries = make(map[uint32]*PendingResponse)
	m.mu.Unlock()

	for _, p := range entries {
		p.done <- result{err: err}
	}
}

// Len 等待中的请求数
func (m *PendingMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
