// internal/server/session.go
package server

import (
	"context"
	"fmt"

	"smppgw/internal/protocol"
	"smppgw/internal/session"
)

// ServerSession 服务端的一条ESME连接
type ServerSession struct {
	*session.Session
	server *Server
}

// DeliverSM 向ESME投递短信或状态报告
func (ss *ServerSession) DeliverSM(ctx context.Context, sm *protocol.DeliverSM, tlvs ...protocol.TLV) (*protocol.DeliverSMResp, error) {
	req := protocol.NewRequest(0, sm)
	req.Optional = tlvs
	resp, err := ss.SendRequest(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body.(*protocol.DeliverSMResp), nil
}

// DataSM 向ESME发送data_sm
func (ss *ServerSession) DataSM(ctx context.Context, dm *protocol.DataSM, tlvs ...protocol.TLV) (*protocol.DataSMResp, error) {
	req := protocol.NewRequest(0, dm)
	req.Optional = tlvs
	resp, err := ss.SendRequest(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body.(*protocol.DataSMResp), nil
}

// AlertNotification 通知ESME终端已可达，没有响应
func (ss *ServerSession) AlertNotification(an *protocol.AlertNotification) error {
	_, err := ss.SendRequest(context.Background(), protocol.NewRequest(0, an), 0)
	return err
}

// String 用于日志
func (ss *ServerSession) String() string {
	return fmt.Sprintf("#%d(%s %s %s)", ss.ID(), ss.SystemID(), ss.RemoteAddr(), ss.State())
}
