// internal/tracer/storage.go
package tracer

import (
	"sync"
	"time"
)

// QueryOptions 查询条件，零值字段不参与过滤
type QueryOptions struct {
	Start    time.Time
	End      time.Time
	Number   string // 匹配源或目的号码
	SystemID string
	Sequence uint32
	Limit    int
	Offset   int
}

func (o QueryOptions) match(e *Entry) bool {
	if !o.Start.IsZero() && e.Time.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && e.Time.After(o.End) {
		return false
	}
	if o.Number != "" && e.Source != o.Number && e.Dest != o.Number {
		return false
	}
	if o.SystemID != "" && e.SystemID != o.SystemID {
		return false
	}
	if o.Sequence != 0 && e.Sequence != o.Sequence {
		return false
	}
	return true
}

// MemoryStorage 固定容量的环形缓冲，写满后覆盖最旧的条目
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []*Entry
	next    int
	full    bool
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStorage{entries: make([]*Entry, capacity)}
}

func (s *MemoryStorage) Store(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.next] = e
	s.next++
	if s.next == len(s.entries) {
		s.next = 0
		s.full = true
	}
}

// Len 当前保留的条数
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.entries)
	}
	return s.next
}

// Query 按时间倒序返回匹配的条目
func (s *MemoryStorage) Query(opts QueryOptions) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.next
	if s.full {
		n = len(s.entries)
	}

	var result []*Entry
	skipped := 0
	for i := 0; i < n; i++ {
		idx := (s.next - 1 - i + len(s.entries)) % len(s.entries)
		e := s.entries[idx]
		if !opts.match(e) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		result = append(result, e)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result
}

func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]*Entry, len(s.entries))
	s.next = 0
	s.full = false
}
