// internal/server/handler.go
package server

import (
	"errors"
	"fmt"

	"smppgw/internal/protocol"
	"smppgw/internal/session"
)

// ServerMessageReceiver 处理ESME提交的请求。
// 返回*session.ProcessRequestError可以指定响应状态码，其它错误按ESME_RSYSERR响应。
type ServerMessageReceiver interface {
	OnSubmitSM(ss *ServerSession, req *protocol.PDU, sm *protocol.SubmitSM) (*protocol.SubmitSMResp, error)
	OnSubmitMulti(ss *ServerSession, req *protocol.PDU, sm *protocol.SubmitMulti) (*protocol.SubmitMultiResp, error)
	OnQuerySM(ss *ServerSession, req *protocol.PDU, q *protocol.QuerySM) (*protocol.QuerySMResp, error)
	OnCancelSM(ss *ServerSession, req *protocol.PDU, c *protocol.CancelSM) error
	OnReplaceSM(ss *ServerSession, req *protocol.PDU, r *protocol.ReplaceSM) error
	OnDataSM(ss *ServerSession, req *protocol.PDU, dm *protocol.DataSM) (*protocol.DataSMResp, error)
}

var errNotSupported = errors.New("不支持的操作")

// UnimplementedReceiver 所有操作都返回ESME_RINVCMDID，可嵌入后只实现需要的方法
type UnimplementedReceiver struct{}

func (UnimplementedReceiver) OnSubmitSM(*ServerSession, *protocol.PDU, *protocol.SubmitSM) (*protocol.SubmitSMResp, error) {
	return nil, session.NewProcessRequestError(protocol.ESME_RINVCMDID, errNotSupported)
}

func (UnimplementedReceiver) OnSubmitMulti(*ServerSession, *protocol.PDU, *protocol.SubmitMulti) (*protocol.SubmitMultiResp, error) {
	return nil, session.NewProcessRequestError(protocol.ESME_RINVCMDID, errNotSupported)
}

func (UnimplementedReceiver) OnQuerySM(*ServerSession, *protocol.PDU, *protocol.QuerySM) (*protocol.QuerySMResp, error) {
	return nil, session.NewProcessRequestError(protocol.ESME_RINVCMDID, errNotSupported)
}

func (UnimplementedReceiver) OnCancelSM(*ServerSession, *protocol.PDU, *protocol.CancelSM) error {
	return session.NewProcessRequestError(protocol.ESME_RINVCMDID, errNotSupported)
}

func (UnimplementedReceiver) OnReplaceSM(*ServerSession, *protocol.PDU, *protocol.ReplaceSM) error {
	return session.NewProcessRequestError(protocol.ESME_RINVCMDID, errNotSupported)
}

func (UnimplementedReceiver) OnDataSM(*ServerSession, *protocol.PDU, *protocol.DataSM) (*protocol.DataSMResp, error) {
	return nil, session.NewProcessRequestError(protocol.ESME_RINVCMDID, errNotSupported)
}

// requestHandler 把会话层的请求转给ServerMessageReceiver
type requestHandler struct {
	server *Server
}

func (h *requestHandler) HandleRequest(s *session.Session, req *protocol.PDU) (protocol.Body, error) {
	srv := h.server
	ss, ok := srv.sessionMgr.Get(s.ID())
	if !ok {
		return nil, session.NewProcessRequestError(protocol.ESME_RSYSERR, fmt.Errorf("会话#%d未登记", s.ID()))
	}

	switch req.CommandID {
	case protocol.SUBMIT_SM, protocol.SUBMIT_MULTI, protocol.DATA_SM:
		if srv.throttler != nil && !srv.throttler.Allow(s.SystemID()) {
			srv.metrics.Throttled.Inc(1)
			return nil, session.NewProcessRequestError(protocol.ESME_RTHROTTLED, fmt.Errorf("账户%s超过流量限制", s.SystemID()))
		}
	}

	r := srv.receiver
	switch body := req.Body.(type) {
	case *protocol.SubmitSM:
		resp, err := r.OnSubmitSM(ss, req, body)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	case *protocol.SubmitMulti:
		resp, err := r.OnSubmitMulti(ss, req, body)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	case *protocol.QuerySM:
		resp, err := r.OnQuerySM(ss, req, body)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	case *protocol.CancelSM:
		return nil, r.OnCancelSM(ss, req, body)
	case *protocol.ReplaceSM:
		return nil, r.OnReplaceSM(ss, req, body)
	case *protocol.DataSM:
		resp, err := r.OnDataSM(ss, req, body)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	}
	return nil, session.NewProcessRequestError(protocol.ESME_RINVCMDID, fmt.Errorf("服务端不处理%s", req.CommandID))
}
