// internal/server/session_manager.go
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"smppgw/pkg/logger"
)

// SessionManager 会话管理器
type SessionManager struct {
	sessions sync.Map
	log      *logger.Logger
}

// NewSessionManager 创建新的会话管理器
func NewSessionManager() *SessionManager {
	return &SessionManager{log: logger.Named("server")}
}

// Add 添加会话
func (m *SessionManager) Add(ss *ServerSession) {
	m.sessions.Store(ss.ID(), ss)
}

// Get 获取会话
func (m *SessionManager) Get(id uint64) (*ServerSession, bool) {
	value, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*ServerSession), true
}

// Remove 移除会话
func (m *SessionManager) Remove(id uint64) {
	m.sessions.Delete(id)
}

// Range 遍历所有会话
func (m *SessionManager) Range(f func(*ServerSession) bool) {
	m.sessions.Range(func(_, value interface{}) bool {
		return f(value.(*ServerSession))
	})
}

// Count 获取会话数量
func (m *SessionManager) Count() int {
	count := 0
	m.sessions.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// List 按会话ID排序的全部会话
func (m *SessionManager) List() []*ServerSession {
	var out []*ServerSession
	m.Range(func(ss *ServerSession) bool {
		out = append(out, ss)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// GetBySystemID 根据系统ID获取已绑定的会话
func (m *SessionManager) GetBySystemID(systemID string) []*ServerSession {
	var result []*ServerSession
	m.Range(func(ss *ServerSession) bool {
		if ss.State().IsBound() && ss.SystemID() == systemID {
			result = append(result, ss)
		}
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// CountBySystemID 某系统ID已绑定的会话数
func (m *SessionManager) CountBySystemID(systemID string) int {
	return len(m.GetBySystemID(systemID))
}

// Receivers 可以接收deliver_sm的会话(RX/TRX)
func (m *SessionManager) Receivers(systemID string) []*ServerSession {
	var out []*ServerSession
	for _, ss := range m.GetBySystemID(systemID) {
		if ss.State().IsReceivable() {
			out = append(out, ss)
		}
	}
	return out
}

// CloseSession 关闭指定的会话，unbind为true时先解绑
func (m *SessionManager) CloseSession(ctx context.Context, id uint64, unbind bool) error {
	ss, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("会话ID %d 不存在", id)
	}
	m.closeOne(ctx, ss, unbind)
	m.sessions.Delete(id)
	return nil
}

// CloseAll 关闭所有会话
func (m *SessionManager) CloseAll(ctx context.Context, unbind bool) {
	var wg sync.WaitGroup
	m.Range(func(ss *ServerSession) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.closeOne(ctx, ss, unbind)
		}()
		return true
	})
	wg.Wait()
}

func (m *SessionManager) closeOne(ctx context.Context, ss *ServerSession, unbind bool) {
	if unbind && ss.State().IsBound() {
		uctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := ss.Unbind(uctx); err != nil {
			m.log.Warning("会话%s解绑失败: %v", ss, err)
		}
		cancel()
	}
	ss.Close()
}
