// internal/dispatcher/store.go
package dispatcher

import (
	"errors"
	"sync"
	"time"

	"smppgw/internal/protocol"
)

// 消息操作失败原因
var (
	ErrMessageNotFound = errors.New("消息不存在")
	ErrNotOwner        = errors.New("消息不属于该系统ID")
	ErrMessageFinal    = errors.New("消息已到终态")
	ErrMessageInFlight = errors.New("消息正在投递")
)

// Store 内存消息表
type Store struct {
	mu       sync.RWMutex
	messages map[string]*Message
}

// NewStore 创建消息表
func NewStore() *Store {
	return &Store{messages: make(map[string]*Message)}
}

// Put 保存消息
func (s *Store) Put(m *Message) {
	s.mu.Lock()
	s.messages[m.ID] = m
	s.mu.Unlock()
}

// Delete 删除消息
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.messages, id)
	s.mu.Unlock()
}

// Info 获取消息视图，systemID非空时校验归属
func (s *Store) Info(id, systemID string) (MessageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.lookup(id, systemID)
	if err != nil {
		return MessageInfo{}, err
	}
	return m.info(), nil
}

// Query 获取query_sm需要的字段
func (s *Store) Query(id, systemID string) (*protocol.QuerySMResp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.lookup(id, systemID)
	if err != nil {
		return nil, err
	}
	return &protocol.QuerySMResp{
		MessageID:    m.ID,
		FinalDate:    m.FinalDate(),
		MessageState: byte(m.State),
		ErrorCode:    m.ErrorCode,
	}, nil
}

// Cancel 将未投递的消息标记为DELETED
func (s *Store) Cancel(id, systemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.pendingLocked(id, systemID)
	if err != nil {
		return err
	}
	m.State = protocol.StateDeleted
	m.DoneDate = time.Now()
	return nil
}

// Replace 替换未投递消息的内容，registeredDelivery为0时保留原值
func (s *Store) Replace(id, systemID string, text []byte, registeredDelivery byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.pendingLocked(id, systemID)
	if err != nil {
		return err
	}
	m.Fields.ShortMessage = append([]byte(nil), text...)
	if registeredDelivery != 0 {
		m.Fields.RegisteredDelivery = registeredDelivery
	}
	return nil
}

// begin 工作线程取得消息的投递权，返回投递用的快照
func (s *Store) begin(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.Final() || m.inFlight {
		return Message{}, false
	}
	m.inFlight = true
	snapshot := *m
	snapshot.Dests = append([]protocol.Address(nil), m.Dests...)
	return snapshot, true
}

// finish 记录投递结果
func (s *Store) finish(id string, state protocol.MessageState, errCode byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.messages[id]; ok {
		m.inFlight = false
		m.State = state
		m.ErrorCode = errCode
		m.DoneDate = time.Now()
	}
}

// Expire 删除终态时间早于before的消息，返回删除数量
func (s *Store) Expire(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, m := range s.messages {
		if m.Final() && m.DoneDate.Before(before) {
			delete(s.messages, id)
			n++
		}
	}
	return n
}

// Len 消息总数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) lookup(id, systemID string) (*Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if systemID != "" && m.SystemID != systemID {
		return nil, ErrNotOwner
	}
	return m, nil
}

func (s *Store) pendingLocked(id, systemID string) (*Message, error) {
	m, err := s.lookup(id, systemID)
	if err != nil {
		return nil, err
	}
	if m.Final() {
		return nil, ErrMessageFinal
	}
	if m.inFlight {
		return nil, ErrMessageInFlight
	}
	return m, nil
}
