// internal/dispatcher/message.go
package dispatcher

import (
	"time"

	"smppgw/internal/protocol"
)

// finalDateLayout SMPP绝对时间格式，后缀固定为UTC
const finalDateLayout = "060102150405"

// Message 已受理的短消息，一条消息可以有多个目的地址(submit_multi)
type Message struct {
	ID         string
	SystemID   string // 提交方
	Fields     protocol.MessageFields
	Dests      []protocol.Address
	State      protocol.MessageState
	ErrorCode  byte
	SubmitDate time.Time
	DoneDate   time.Time

	inFlight bool
}

// MessageInfo 消息的只读视图，供管理接口输出
type MessageInfo struct {
	ID         string    `json:"id"`
	SystemID   string    `json:"system_id"`
	Source     string    `json:"source_addr"`
	Dests      []string  `json:"destinations"`
	State      string    `json:"state"`
	ErrorCode  byte      `json:"error_code"`
	SubmitDate time.Time `json:"submit_date"`
	DoneDate   time.Time `json:"done_date,omitempty"`
}

// Final 消息是否已到终态
func (m *Message) Final() bool {
	return m.State != protocol.StateEnroute && m.State != protocol.StateAccepted
}

// FinalDate query_sm_resp中的final_date，未到终态时为空
func (m *Message) FinalDate() string {
	if !m.Final() || m.DoneDate.IsZero() {
		return ""
	}
	return m.DoneDate.UTC().Format(finalDateLayout) + "000+"
}

// submitFor 还原发往dest的submit_sm，用于生成状态报告
func (m *Message) submitFor(dest protocol.Address) *protocol.SubmitSM {
	sm := &protocol.SubmitSM{MessageFields: m.Fields}
	sm.Dest = dest
	return sm
}

// deliverFor 生成投递给路由目标的deliver_sm
func (m *Message) deliverFor(dest protocol.Address) *protocol.DeliverSM {
	dm := &protocol.DeliverSM{MessageFields: m.Fields}
	dm.Dest = dest
	dm.ScheduleDeliveryTime = ""
	dm.ValidityPeriod = ""
	dm.RegisteredDelivery = protocol.RegisteredDeliveryNone
	return dm
}

func (m *Message) info() MessageInfo {
	dests := make([]string, 0, len(m.Dests))
	for _, d := range m.Dests {
		dests = append(dests, d.Addr)
	}
	return MessageInfo{
		ID:         m.ID,
		SystemID:   m.SystemID,
		Source:     m.Fields.Source.Addr,
		Dests:      dests,
		State:      m.State.String(),
		ErrorCode:  m.ErrorCode,
		SubmitDate: m.SubmitDate,
		DoneDate:   m.DoneDate,
	}
}
