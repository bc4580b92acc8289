// internal/session/keepalive.go  链路检测
package session

import (
	"context"
	"fmt"
	"time"

	"smppgw/internal/protocol"
)

// keepaliveLoop 空闲超过间隔时发送enquire_link，连续失败达到上限后关闭会话
func (s *Session) keepaliveLoop() {
	defer s.wg.Done()

	interval := s.cfg.EnquireLinkInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	misses := 0
	for {
		select {
		case <-s.done:
			return
		case <-timer.C:
		}

		if idle := s.IdleTime(); idle < interval {
			timer.Reset(interval - idle)
			continue
		}

		_, err := s.request(context.Background(), protocol.NewRequest(0, &protocol.EnquireLink{}), s.cfg.EnquireLinkTimeout)
		if err == nil {
			misses = 0
			timer.Reset(interval)
			continue
		}

		select {
		case <-s.done:
			return
		default:
		}

		misses++
		s.metrics.KeepaliveFailures.Inc(1)
		s.log.Warning("链路检测失败 (%d/%d): %v", misses, s.cfg.MaxEnquireLinkMisses, err)
		if misses >= s.cfg.MaxEnquireLinkMisses {
			s.closeWith(fmt.Errorf("%w: 连续%d次无响应", ErrKeepaliveFailed, misses))
			return
		}
		timer.Reset(interval)
	}
}
