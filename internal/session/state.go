// internal/session/state.go  会话状态机
package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"smppgw/internal/protocol"
)

// State 会话状态
type State int32

const (
	StateOpen State = iota
	StateOutbound
	StateBoundTX
	StateBoundRX
	StateBoundTRX
	StateUnbound
	StateClosed
)

var stateNames = [...]string{"OPEN", "OUTBOUND", "BOUND_TX", "BOUND_RX", "BOUND_TRX", "UNBOUND", "CLOSED"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// IsBound 是否处于任一绑定状态
func (s State) IsBound() bool {
	return s == StateBoundTX || s == StateBoundRX || s == StateBoundTRX
}

// IsTransmittable ESME可以提交短信
func (s State) IsTransmittable() bool {
	return s == StateBoundTX || s == StateBoundTRX
}

// IsReceivable ESME可以接收短信
func (s State) IsReceivable() bool {
	return s == StateBoundRX || s == StateBoundTRX
}

// BoundState 绑定类型对应的状态
func BoundState(t protocol.BindType) State {
	switch t {
	case protocol.BindTransmitter:
		return StateBoundTX
	case protocol.BindReceiver:
		return StateBoundRX
	}
	return StateBoundTRX
}

// 合法的状态迁移
var transitions = map[State][]State{
	StateOpen:     {StateOutbound, StateBoundTX, StateBoundRX, StateBoundTRX, StateClosed},
	StateOutbound: {StateBoundTX, StateBoundRX, StateBoundTRX, StateClosed},
	StateBoundTX:  {StateUnbound, StateClosed},
	StateBoundRX:  {StateUnbound, StateClosed},
	StateBoundTRX: {StateUnbound, StateClosed},
	StateUnbound:  {StateClosed},
}

// CanTransition 判断迁移是否合法
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Role 会话一端的角色
type Role int

const (
	RoleESME Role = iota
	RoleSMSC
)

func (r Role) String() string {
	if r == RoleSMSC {
		return "SMSC"
	}
	return "ESME"
}

// Peer 对端角色
func (r Role) Peer() Role {
	if r == RoleSMSC {
		return RoleESME
	}
	return RoleSMSC
}

func isOpen(s State) bool          { return s == StateOpen }
func isBindable(s State) bool      { return s == StateOpen || s == StateOutbound }
func isLive(s State) bool          { return s != StateClosed }
func isTransmittable(s State) bool { return s.IsTransmittable() }
func isReceivable(s State) bool    { return s.IsReceivable() }
func isBound(s State) bool         { return s.IsBound() }

// originateRules 每种角色可以发起的请求及其所需状态
var originateRules = map[Role]map[protocol.CommandID]func(State) bool{
	RoleESME: {
		protocol.BIND_TRANSMITTER: isBindable,
		protocol.BIND_RECEIVER:    isBindable,
		protocol.BIND_TRANSCEIVER: isBindable,
		protocol.SUBMIT_SM:        isTransmittable,
		protocol.SUBMIT_MULTI:     isTransmittable,
		protocol.DATA_SM:          isTransmittable,
		protocol.QUERY_SM:         isTransmittable,
		protocol.CANCEL_SM:        isTransmittable,
		protocol.REPLACE_SM:       isTransmittable,
		protocol.UNBIND:           isBound,
		protocol.ENQUIRE_LINK:     isLive,
	},
	RoleSMSC: {
		protocol.OUTBIND:            isOpen,
		protocol.DELIVER_SM:         isReceivable,
		protocol.DATA_SM:            isReceivable,
		protocol.ALERT_NOTIFICATION: isReceivable,
		protocol.UNBIND:             isBound,
		protocol.ENQUIRE_LINK:       isLive,
	},
}

// CanOriginate originator这一角色是否可能发起请求id，与状态无关
func CanOriginate(originator Role, id protocol.CommandID) bool {
	if id.IsResponse() {
		return true
	}
	_, ok := originateRules[originator][id]
	return ok
}

// CheckOperation 检查originator在state下能否发起请求id
func CheckOperation(originator Role, state State, id protocol.CommandID) error {
	if id.IsResponse() {
		return nil
	}
	allowed, ok := originateRules[originator][id]
	if !ok || !allowed(state) {
		return &IllegalStateError{State: state, Command: id}
	}
	return nil
}

// StateListener 状态变化监听器
type StateListener interface {
	OnStateChange(s *Session, newState, oldState State)
}

// StateListenerFunc 函数形式的监听器
type StateListenerFunc func(s *Session, newState, oldState State)

func (f StateListenerFunc) OnStateChange(s *Session, newState, oldState State) {
	f(s, newState, oldState)
}

// stateMachine 状态与监听器，迁移在锁内按顺序通知监听器
type stateMachine struct {
	mu        sync.Mutex
	state     int32
	listeners []StateListener
}

func (m *stateMachine) current() State {
	return State(atomic.LoadInt32(&m.state))
}

func (m *stateMachine) addListener(l StateListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// transition 执行迁移并同步通知监听器，cond非空时要求当前状态满足cond。
// 监听器在迁移锁内执行，不能再触发迁移。
func (m *stateMachine) transition(s *Session, to State, cond func(State) bool) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current()
	if (cond != nil && !cond(from)) || !CanTransition(from, to) {
		return from, &IllegalStateError{State: from, Op: "迁移到" + to.String()}
	}
	atomic.StoreInt32(&m.state, int32(to))

	for _, l := range m.listeners {
		l.OnStateChange(s, to, from)
	}
	return from, nil
}
