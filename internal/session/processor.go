// internal/session/processor.go  请求处理池
package session

import (
	"runtime/debug"
	"sync"
	"time"

	"smppgw/internal/protocol"
	"smppgw/pkg/logger"
)

// ProcessorPool 有界请求处理池，degree为1时严格按到达顺序处理
type ProcessorPool struct {
	tasks   chan *protocol.PDU
	process func(req *protocol.PDU)
	degree  int
	log     *logger.Logger

	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup // 已提交未完成，含排队中的请求
	workers  sync.WaitGroup
}

// NewProcessorPool 创建并启动处理池
func NewProcessorPool(degree, queueSize int, process func(req *protocol.PDU)) *ProcessorPool {
	if degree <= 0 {
		degree = 1
	}
	if queueSize <= 0 {
		queueSize = degree * 16
	}

	p := &ProcessorPool{
		tasks:   make(chan *protocol.PDU, queueSize),
		process: process,
		degree:  degree,
		log:     logger.Named("processor"),
		done:    make(chan struct{}),
	}

	for i := 0; i < degree; i++ {
		p.workers.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit 提交请求，队列满时阻塞，关闭后返回ErrPoolClosed
func (p *ProcessorPool) Submit(req *protocol.PDU) error {
	if !p.acquire() {
		return ErrPoolClosed
	}
	return p.enqueue(req, true)
}

// TrySubmit 非阻塞提交，队列满时返回ErrPoolFull
func (p *ProcessorPool) TrySubmit(req *protocol.PDU) error {
	if !p.acquire() {
		return ErrPoolClosed
	}
	return p.enqueue(req, false)
}

// enqueue 调用方已通过acquire计入inflight
func (p *ProcessorPool) enqueue(req *protocol.PDU, wait bool) error {
	if wait {
		select {
		case p.tasks <- req:
		case <-p.done:
			p.inflight.Done()
			return ErrPoolClosed
		}
	} else {
		select {
		case p.tasks <- req:
		case <-p.done:
			p.inflight.Done()
			return ErrPoolClosed
		default:
			p.inflight.Done()
			return ErrPoolFull
		}
	}
	p.discardIfClosed()
	return nil
}

func (p *ProcessorPool) acquire() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.inflight.Add(1)
	return true
}

// discardIfClosed 入队与Close并发时，Close的清理可能已经结束，由提交方清掉遗留请求
func (p *ProcessorPool) discardIfClosed() {
	select {
	case <-p.done:
		p.discardQueued()
	default:
	}
}

// Drain 停止接收新请求，等待已提交的请求处理完，超时返回false
func (p *ProcessorPool) Drain(timeout time.Duration) bool {
	p.markClosed()

	finished := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(finished)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-finished:
		return true
	case <-timer.C:
		p.log.Warning("等待处理中的请求超时(%v)，仍有请求未完成", timeout)
		return false
	}
}

// Close 停止处理池，丢弃排队中的请求，不等待正在执行的回调
func (p *ProcessorPool) Close() {
	p.markClosed()
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.discardQueued()
}

func (p *ProcessorPool) discardQueued() {
	for {
		select {
		case <-p.tasks:
			p.inflight.Done()
		default:
			return
		}
	}
}

// Wait 等待所有工作协程退出
func (p *ProcessorPool) Wait() {
	p.workers.Wait()
}

// Degree 工作协程数
func (p *ProcessorPool) Degree() int {
	return p.degree
}

// Queued 排队中的请求数
func (p *ProcessorPool) Queued() int {
	return len(p.tasks)
}

func (p *ProcessorPool) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *ProcessorPool) worker(id int) {
	defer p.workers.Done()

	for {
		select {
		case <-p.done:
			return
		case req := <-p.tasks:
			p.run(id, req)
		}
	}
}

func (p *ProcessorPool) run(id int, req *protocol.PDU) {
	defer p.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("工作协程%d处理%s时崩溃: %v\n%s", id, req.Header, r, debug.Stack())
		}
	}()
	p.process(req)
}
