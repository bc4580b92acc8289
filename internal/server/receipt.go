// internal/server/receipt.go
package server

import (
	"fmt"
	"time"

	"smppgw/internal/protocol"
)

const receiptTimeLayout = "0601021504"

// Receipt 状态报告内容
type Receipt struct {
	MessageID  string
	State      protocol.MessageState
	Err        int
	SubmitDate time.Time
	DoneDate   time.Time
}

// Text 按常见的SMSC格式生成回执正文
func (r Receipt) Text(original []byte) string {
	text := original
	if len(text) > 20 {
		text = text[:20]
	}
	return fmt.Sprintf("id:%s sub:001 dlvrd:%s submit date:%s done date:%s stat:%s err:%03d text:%s",
		r.MessageID, r.delivered(),
		r.SubmitDate.Format(receiptTimeLayout), r.DoneDate.Format(receiptTimeLayout),
		r.State, r.Err, text)
}

func (r Receipt) delivered() string {
	if r.State == protocol.StateDelivered {
		return "001"
	}
	return "000"
}

// NewDeliveryReceipt 根据原始提交生成状态报告，源和目的地址互换
func NewDeliveryReceipt(sm *protocol.SubmitSM, r Receipt) (*protocol.DeliverSM, []protocol.TLV) {
	dm := &protocol.DeliverSM{}
	dm.ServiceType = sm.ServiceType
	dm.Source = sm.Dest
	dm.Dest = sm.Source
	dm.ESMClass = protocol.ESMClassDeliveryReceipt
	dm.DataCoding = sm.DataCoding
	dm.ShortMessage = []byte(r.Text(sm.ShortMessage))

	tlvs := []protocol.TLV{
		protocol.CStringTLV(protocol.TagReceiptedMessageID, r.MessageID),
		protocol.Uint8TLV(protocol.TagMessageState, byte(r.State)),
	}
	return dm, tlvs
}

// WantsReceipt 提交时是否请求了该状态的回执
func WantsReceipt(registeredDelivery byte, state protocol.MessageState) bool {
	switch registeredDelivery & protocol.RegisteredDeliveryMask {
	case protocol.RegisteredDeliveryAlways:
		return true
	case protocol.RegisteredDeliveryFailure:
		return state != protocol.StateDelivered
	}
	return false
}
