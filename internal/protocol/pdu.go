// internal/protocol/pdu.go  PDU定义
package protocol

import (
	"fmt"
	"strings"
)

// Body 消息体，每种命令一个具体类型
type Body interface {
	CommandID() CommandID
	marshal(w *writer)
	unmarshal(r *reader) error
}

// PDU 协议数据单元
type PDU struct {
	Header
	Body     Body
	Optional []TLV
}

// bodyFactory 按命令ID创建空消息体，初始化后只读
var bodyFactory = map[CommandID]func() Body{
	GENERIC_NACK:          func() Body { return &GenericNack{} },
	BIND_RECEIVER:         func() Body { return &Bind{Type: BindReceiver} },
	BIND_RECEIVER_RESP:    func() Body { return &BindResp{Type: BindReceiver} },
	BIND_TRANSMITTER:      func() Body { return &Bind{Type: BindTransmitter} },
	BIND_TRANSMITTER_RESP: func() Body { return &BindResp{Type: BindTransmitter} },
	BIND_TRANSCEIVER:      func() Body { return &Bind{Type: BindTransceiver} },
	BIND_TRANSCEIVER_RESP: func() Body { return &BindResp{Type: BindTransceiver} },
	OUTBIND:               func() Body { return &Outbind{} },
	UNBIND:                func() Body { return &Unbind{} },
	UNBIND_RESP:           func() Body { return &UnbindResp{} },
	ENQUIRE_LINK:          func() Body { return &EnquireLink{} },
	ENQUIRE_LINK_RESP:     func() Body { return &EnquireLinkResp{} },
	SUBMIT_SM:             func() Body { return &SubmitSM{} },
	SUBMIT_SM_RESP:        func() Body { return &SubmitSMResp{} },
	DELIVER_SM:            func() Body { return &DeliverSM{} },
	DELIVER_SM_RESP:       func() Body { return &DeliverSMResp{} },
	DATA_SM:               func() Body { return &DataSM{} },
	DATA_SM_RESP:          func() Body { return &DataSMResp{} },
	QUERY_SM:              func() Body { return &QuerySM{} },
	QUERY_SM_RESP:         func() Body { return &QuerySMResp{} },
	CANCEL_SM:             func() Body { return &CancelSM{} },
	CANCEL_SM_RESP:        func() Body { return &CancelSMResp{} },
	REPLACE_SM:            func() Body { return &ReplaceSM{} },
	REPLACE_SM_RESP:       func() Body { return &ReplaceSMResp{} },
	SUBMIT_MULTI:          func() Body { return &SubmitMulti{} },
	SUBMIT_MULTI_RESP:     func() Body { return &SubmitMultiResp{} },
	ALERT_NOTIFICATION:    func() Body { return &AlertNotification{} },
}

// NewBody 创建命令对应的空消息体，未知命令返回Unknown
func NewBody(id CommandID) Body {
	if f, ok := bodyFactory[id]; ok {
		return f()
	}
	return &Unknown{ID: id}
}

// NewRequest 创建请求PDU
func NewRequest(seq uint32, body Body) *PDU {
	return &PDU{
		Header: Header{CommandID: body.CommandID(), SequenceNumber: seq},
		Body:   body,
	}
}

// NewResponse 创建对req的响应，body为nil时使用对应的空响应体
func NewResponse(req *PDU, status CommandStatus, body Body) *PDU {
	if body == nil {
		body = NewBody(req.CommandID.Response())
		if b, ok := body.(*BindResp); ok {
			b.Type = BindTypeOf(req.CommandID)
		}
	}
	return &PDU{
		Header: Header{
			CommandID:      body.CommandID(),
			CommandStatus:  status,
			SequenceNumber: req.SequenceNumber,
		},
		Body: body,
	}
}

// NewGenericNack 创建generic_nack
func NewGenericNack(seq uint32, status CommandStatus) *PDU {
	return &PDU{
		Header: Header{CommandID: GENERIC_NACK, CommandStatus: status, SequenceNumber: seq},
		Body:   &GenericNack{},
	}
}

// IsResponse 是否为响应PDU
func (p *PDU) IsResponse() bool {
	return p.CommandID.IsResponse()
}

// GetTLV 按标签查找可选参数
func (p *PDU) GetTLV(tag uint16) (TLV, bool) {
	for _, t := range p.Optional {
		if t.Tag == tag {
			return t, true
		}
	}
	return TLV{}, false
}

// SetTLV 设置可选参数，已存在时替换
func (p *PDU) SetTLV(t TLV) {
	for i := range p.Optional {
		if p.Optional[i].Tag == t.Tag {
			p.Optional[i] = t
			return
		}
	}
	p.Optional = append(p.Optional, t)
}

func (p *PDU) String() string {
	if len(p.Optional) == 0 {
		return p.Header.String()
	}
	parts := make([]string, 0, len(p.Optional))
	for _, t := range p.Optional {
		parts = append(parts, t.String())
	}
	return fmt.Sprintf("%s {%s}", p.Header.String(), strings.Join(parts, ", "))
}
