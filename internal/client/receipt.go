// internal/client/receipt.go
package client

import (
	"strings"

	"smppgw/internal/protocol"
)

// IsDeliveryReceipt deliver_sm是否为状态报告
func IsDeliveryReceipt(dm *protocol.DeliverSM) bool {
	return dm.ESMClass&0x3C == protocol.ESMClassDeliveryReceipt
}

// ParseReceipt 解析"id:xxx sub:001 ... stat:DELIVRD err:000 text:..."格式的回执正文。
// text字段取到结尾，其余字段以空格分隔。
func ParseReceipt(text string) map[string]string {
	fields := make(map[string]string)
	if i := strings.Index(text, "text:"); i >= 0 {
		fields["text"] = text[i+len("text:"):]
		text = text[:i]
	}

	// "submit date"和"done date"中有空格
	text = strings.NewReplacer("submit date:", "submit_date:", "done date:", "done_date:").Replace(text)
	for _, tok := range strings.Fields(text) {
		k, v, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}
		fields[strings.ToLower(k)] = v
	}
	return fields
}

// ReceiptMessageID 状态报告对应的消息ID，优先使用receipted_message_id参数
func ReceiptMessageID(req *protocol.PDU) string {
	if tlv, ok := req.GetTLV(protocol.TagReceiptedMessageID); ok {
		return tlv.CString()
	}
	if dm, ok := req.Body.(*protocol.DeliverSM); ok {
		return ParseReceipt(string(dm.ShortMessage))["id"]
	}
	return ""
}
