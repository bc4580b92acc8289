// internal/session/sequence.go
package session

import (
	"sync/atomic"

	"smppgw/internal/protocol"
)

// Sequence 序列号生成器，取值1..0x7FFFFFFF，越界后回到1
type Sequence struct {
	last uint32
}

// NewSequence 创建生成器，第一次Next返回start
func NewSequence(start uint32) *Sequence {
	if start == 0 || start > protocol.MaxSequenceNumber {
		start = 1
	}
	return &Sequence{last: start - 1}
}

// Next 获取下一个序列号
func (s *Sequence) Next() uint32 {
	for {
		old := atomic.LoadUint32(&s.last)
		next := old + 1
		if next > protocol.MaxSequenceNumber {
			next = 1
		}
		if atomic.CompareAndSwapUint32(&s.last, old, next) {
			return next
		}
	}
}
