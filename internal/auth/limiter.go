// internal/auth/limiter.go
package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter 按系统ID限流
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	enabled  bool
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		enabled:  true,
	}
}

// SetLimit 设置账户限流，rps<=0时取消限制
func (r *RateLimiter) SetLimit(systemID string, rps int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rps <= 0 {
		delete(r.limiters, systemID)
		return
	}
	if l, ok := r.limiters[systemID]; ok {
		l.SetLimit(rate.Limit(rps))
		l.SetBurst(rps)
		return
	}
	r.limiters[systemID] = rate.NewLimiter(rate.Limit(rps), rps)
}

// Remove 移除账户限流
func (r *RateLimiter) Remove(systemID string) {
	r.SetLimit(systemID, 0)
}

// Allow 是否允许本次请求，未配置限流的账户总是允许
func (r *RateLimiter) Allow(systemID string) bool {
	r.mu.RLock()
	enabled := r.enabled
	limiter, ok := r.limiters[systemID]
	r.mu.RUnlock()

	if !enabled || !ok {
		return true
	}
	return limiter.Allow()
}

// SetEnabled 设置启用状态
func (r *RateLimiter) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// IsEnabled 检查是否启用
func (r *RateLimiter) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}
