// internal/session/bind.go  绑定与外绑定
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"smppgw/internal/protocol"
)

// BindRequest 待决定的绑定请求，Accept和Reject只能调用其中一个且只能调用一次
type BindRequest struct {
	Bind *protocol.Bind
	PDU  *protocol.PDU

	s       *Session
	decided int32
}

// Session 收到请求的会话
func (r *BindRequest) Session() *Session { return r.s }

// RemoteAddr 对端地址
func (r *BindRequest) RemoteAddr() string { return r.s.RemoteAddr() }

// Accept 接受绑定，使用本端配置的版本协商
func (r *BindRequest) Accept(systemID string) error {
	return r.AcceptWithVersion(systemID, r.s.cfg.InterfaceVersion)
}

// AcceptWithVersion 接受绑定，生效版本为min(对端版本, v)
func (r *BindRequest) AcceptWithVersion(systemID string, v protocol.InterfaceVersion) error {
	if err := r.decide(); err != nil {
		return err
	}
	defer atomic.StoreInt32(&r.s.binding, 0)

	s := r.s
	peer := r.Bind.InterfaceVersion
	negotiated := protocol.MinVersion(peer, v)
	target := BoundState(r.Bind.Type)

	resp := protocol.NewResponse(r.PDU, protocol.ESME_ROK, &protocol.BindResp{Type: r.Bind.Type, SystemID: systemID})
	// 3.3版本不支持可选参数
	if peer >= protocol.IF_VERSION_34 {
		resp.SetTLV(protocol.Uint8TLV(protocol.TagScInterfaceVersion, byte(v)))
	}
	data, err := protocol.Encode(resp)
	if err != nil {
		return err
	}

	s.bindMu.Lock()
	prev := s.bindType
	s.systemID, s.bindType, s.version = r.Bind.SystemID, r.Bind.Type, negotiated
	s.bindMu.Unlock()

	// 迁移和写出bind_resp在同一把写锁内，其他协程在绑定响应之前写不出PDU
	s.writeMu.Lock()
	if _, err := s.state.transition(s, target, isBindable); err != nil {
		s.writeMu.Unlock()
		s.bindMu.Lock()
		s.systemID, s.bindType, s.version = "", prev, 0
		s.bindMu.Unlock()
		s.respond(r.PDU, protocol.ESME_RINVBNDSTS, &protocol.BindResp{Type: r.Bind.Type})
		return err
	}
	err = s.writeLocked(resp, data)
	s.writeMu.Unlock()

	s.log.Info("接受绑定 system_id=%s type=%s version=%s", r.Bind.SystemID, r.Bind.Type, negotiated)
	return s.wrote(resp, data, err)
}

// Reject 拒绝绑定，会话保持OPEN，配置CloseOnBindReject时关闭
func (r *BindRequest) Reject(status protocol.CommandStatus) error {
	if status == protocol.ESME_ROK {
		return errors.New("拒绝绑定必须使用非零状态码")
	}
	if err := r.decide(); err != nil {
		return err
	}
	defer atomic.StoreInt32(&r.s.binding, 0)

	s := r.s
	s.metrics.BindRejects.Inc(1)
	s.log.Warning("拒绝绑定 system_id=%s: %s", r.Bind.SystemID, status)
	err := s.respond(r.PDU, status, &protocol.BindResp{Type: r.Bind.Type})
	if s.cfg.CloseOnBindReject {
		s.closeWith(fmt.Errorf("绑定被拒绝: %s", status))
	}
	return err
}

func (r *BindRequest) decide() error {
	if !atomic.CompareAndSwapInt32(&r.decided, 0, 1) {
		return &IllegalStateError{State: r.s.State(), Op: "重复处理绑定请求"}
	}
	return nil
}

// handleBind SMSC端收到绑定请求，交给WaitForBind的调用方决定
func (s *Session) handleBind(pdu *protocol.PDU, bind *protocol.Bind) {
	st := s.State()
	switch {
	case s.cfg.Role != RoleSMSC:
		s.respond(pdu, protocol.ESME_RINVBNDSTS, nil)
		return
	case st.IsBound() || st == StateUnbound:
		s.respond(pdu, protocol.ESME_RALYBND, nil)
		return
	case !isBindable(st):
		s.respond(pdu, protocol.ESME_RINVBNDSTS, nil)
		return
	}
	if !atomic.CompareAndSwapInt32(&s.binding, 0, 1) {
		s.respond(pdu, protocol.ESME_RINVBNDSTS, nil)
		return
	}

	req := &BindRequest{Bind: bind, PDU: pdu, s: s}
	select {
	case s.bindCh <- req:
	default:
		req.Reject(protocol.ESME_RBINDFAIL)
	}
}

// WaitForBind 等待对端的绑定请求
func (s *Session) WaitForBind(ctx context.Context) (*BindRequest, error) {
	select {
	case req := <-s.bindCh:
		return req, nil
	case <-s.done:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrBindTimeout
		}
		return nil, ctx.Err()
	}
}

// BindParams ESME绑定参数
type BindParams struct {
	Type         protocol.BindType
	SystemID     string
	Password     string
	SystemType   string
	AddrTON      byte
	AddrNPI      byte
	AddressRange string
}

// Bind ESME端发送绑定请求。失败时返回带状态码的NegativeResponseError，会话保持原状态
func (s *Session) Bind(ctx context.Context, p BindParams, timeout time.Duration) (*protocol.BindResp, error) {
	if p.Type == 0 {
		p.Type = protocol.BindTransceiver
	}
	req := protocol.NewRequest(0, &protocol.Bind{
		Type:             p.Type,
		SystemID:         p.SystemID,
		Password:         p.Password,
		SystemType:       p.SystemType,
		InterfaceVersion: s.cfg.InterfaceVersion,
		AddrTON:          p.AddrTON,
		AddrNPI:          p.AddrNPI,
		AddressRange:     p.AddressRange,
	})
	if s.cfg.Role != RoleESME {
		return nil, &IllegalStateError{State: s.State(), Command: req.CommandID}
	}

	resp, err := s.SendRequest(ctx, req, timeout)
	if err != nil {
		var neg *NegativeResponseError
		if errors.As(err, &neg) {
			s.log.Warning("绑定被拒绝: %s", neg.Status)
		}
		return nil, err
	}
	return resp.Body.(*protocol.BindResp), nil
}

// completeBind 在读取协程中处理成功的bind_resp
func (s *Session) completeBind(resp *protocol.PDU) {
	br := resp.Body.(*protocol.BindResp)

	// 没有sc_interface_version时按3.3处理
	peer := protocol.IF_VERSION_33
	if tlv, ok := resp.GetTLV(protocol.TagScInterfaceVersion); ok {
		if v, err := tlv.Uint8(); err == nil {
			peer = protocol.InterfaceVersion(v)
		}
	}
	negotiated := protocol.MinVersion(s.cfg.InterfaceVersion, peer)

	s.bindMu.Lock()
	s.systemID, s.bindType, s.version = br.SystemID, br.Type, negotiated
	s.bindMu.Unlock()

	if _, err := s.state.transition(s, BoundState(br.Type), isBindable); err != nil {
		s.log.Error("收到bind_resp但无法进入绑定状态: %v", err)
		return
	}
	s.log.Info("绑定成功 system_id=%s type=%s version=%s", br.SystemID, br.Type, negotiated)
}

// Outbind SMSC端发送outbind并进入OUTBOUND，随后用WaitForBind等待ESME绑定
func (s *Session) Outbind(systemID, password string) error {
	if s.cfg.Role != RoleSMSC {
		return &IllegalStateError{State: s.State(), Command: protocol.OUTBIND}
	}
	req := protocol.NewRequest(0, &protocol.Outbind{SystemID: systemID, Password: password})
	if _, err := s.SendRequest(context.Background(), req, 0); err != nil {
		return err
	}
	_, err := s.state.transition(s, StateOutbound, isOpen)
	return err
}

// handleOutbind ESME端收到outbind
func (s *Session) handleOutbind(pdu *protocol.PDU, ob *protocol.Outbind) {
	if s.cfg.Role != RoleESME {
		s.writePDU(protocol.NewGenericNack(pdu.SequenceNumber, protocol.ESME_RINVBNDSTS))
		return
	}
	if _, err := s.state.transition(s, StateOutbound, isOpen); err != nil {
		s.log.Warning("忽略outbind: %v", err)
		s.writePDU(protocol.NewGenericNack(pdu.SequenceNumber, protocol.ESME_RINVBNDSTS))
		return
	}
	s.log.Info("收到outbind system_id=%s", ob.SystemID)
	select {
	case s.outbindCh <- ob:
	default:
	}
}

// WaitForOutbind ESME端等待SMSC的outbind
func (s *Session) WaitForOutbind(ctx context.Context) (*protocol.Outbind, error) {
	select {
	case ob := <-s.outbindCh:
		return ob, nil
	case <-s.done:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
