// internal/protocol/tlv.go  可选参数
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// 常用可选参数标签
const (
	TagDestAddrSubunit          uint16 = 0x0005
	TagDestNetworkType          uint16 = 0x0006
	TagDestBearerType           uint16 = 0x0007
	TagDestTelematicsID         uint16 = 0x0008
	TagSourceAddrSubunit        uint16 = 0x000D
	TagSourceNetworkType        uint16 = 0x000E
	TagSourceBearerType         uint16 = 0x000F
	TagSourceTelematicsID       uint16 = 0x0010
	TagQosTimeToLive            uint16 = 0x0017
	TagPayloadType              uint16 = 0x0019
	TagAdditionalStatusInfoText uint16 = 0x001D
	TagReceiptedMessageID       uint16 = 0x001E
	TagMsMsgWaitFacilities      uint16 = 0x0030
	TagPrivacyIndicator         uint16 = 0x0201
	TagSourceSubaddress         uint16 = 0x0202
	TagDestSubaddress           uint16 = 0x0203
	TagUserMessageReference     uint16 = 0x0204
	TagUserResponseCode         uint16 = 0x0205
	TagSourcePort               uint16 = 0x020A
	TagDestinationPort          uint16 = 0x020B
	TagSarMsgRefNum             uint16 = 0x020C
	TagLanguageIndicator        uint16 = 0x020D
	TagSarTotalSegments         uint16 = 0x020E
	TagSarSegmentSeqnum         uint16 = 0x020F
	TagScInterfaceVersion       uint16 = 0x0210
	TagCallbackNumPresInd       uint16 = 0x0302
	TagCallbackNumAtag          uint16 = 0x0303
	TagNumberOfMessages         uint16 = 0x0304
	TagCallbackNum              uint16 = 0x0381
	TagDpfResult                uint16 = 0x0420
	TagSetDpf                   uint16 = 0x0421
	TagMsAvailabilityStatus     uint16 = 0x0422
	TagNetworkErrorCode         uint16 = 0x0423
	TagMessagePayload           uint16 = 0x0424
	TagDeliveryFailureReason    uint16 = 0x0425
	TagMoreMessagesToSend       uint16 = 0x0426
	TagMessageState             uint16 = 0x0427
	TagUssdServiceOp            uint16 = 0x0501
	TagDisplayTime              uint16 = 0x1201
	TagSmsSignal                uint16 = 0x1203
	TagMsValidity               uint16 = 0x1204
	TagAlertOnMessageDelivery   uint16 = 0x130C
	TagItsReplyType             uint16 = 0x1380
	TagItsSessionInfo           uint16 = 0x1383
)

// ValueKind 可选参数值的类型
type ValueKind int

const (
	KindOctets ValueKind = iota
	KindUint8
	KindUint16
	KindUint32
	KindCString
)

// TagInfo 已知标签的名称与取值类型
type TagInfo struct {
	Name string
	Kind ValueKind
}

// tagRegistry 初始化后只读
var tagRegistry = map[uint16]TagInfo{
	TagDestAddrSubunit:          {"dest_addr_subunit", KindUint8},
	TagDestNetworkType:          {"dest_network_type", KindUint8},
	TagDestBearerType:           {"dest_bearer_type", KindUint8},
	TagDestTelematicsID:         {"dest_telematics_id", KindUint16},
	TagSourceAddrSubunit:        {"source_addr_subunit", KindUint8},
	TagSourceNetworkType:        {"source_network_type", KindUint8},
	TagSourceBearerType:         {"source_bearer_type", KindUint8},
	TagSourceTelematicsID:       {"source_telematics_id", KindUint8},
	TagQosTimeToLive:            {"qos_time_to_live", KindUint32},
	TagPayloadType:              {"payload_type", KindUint8},
	TagAdditionalStatusInfoText: {"additional_status_info_text", KindCString},
	TagReceiptedMessageID:       {"receipted_message_id", KindCString},
	TagMsMsgWaitFacilities:      {"ms_msg_wait_facilities", KindUint8},
	TagPrivacyIndicator:         {"privacy_indicator", KindUint8},
	TagSourceSubaddress:         {"source_subaddress", KindOctets},
	TagDestSubaddress:           {"dest_subaddress", KindOctets},
	TagUserMessageReference:     {"user_message_reference", KindUint16},
	TagUserResponseCode:         {"user_response_code", KindUint8},
	TagSourcePort:               {"source_port", KindUint16},
	TagDestinationPort:          {"destination_port", KindUint16},
	TagSarMsgRefNum:             {"sar_msg_ref_num", KindUint16},
	TagLanguageIndicator:        {"language_indicator", KindUint8},
	TagSarTotalSegments:         {"sar_total_segments", KindUint8},
	TagSarSegmentSeqnum:         {"sar_segment_seqnum", KindUint8},
	TagScInterfaceVersion:       {"sc_interface_version", KindUint8},
	TagCallbackNumPresInd:       {"callback_num_pres_ind", KindUint8},
	TagCallbackNumAtag:          {"callback_num_atag", KindOctets},
	TagNumberOfMessages:         {"number_of_messages", KindUint8},
	TagCallbackNum:              {"callback_num", KindOctets},
	TagDpfResult:                {"dpf_result", KindUint8},
	TagSetDpf:                   {"set_dpf", KindUint8},
	TagMsAvailabilityStatus:     {"ms_availability_status", KindUint8},
	TagNetworkErrorCode:         {"network_error_code", KindOctets},
	TagMessagePayload:           {"message_payload", KindOctets},
	TagDeliveryFailureReason:    {"delivery_failure_reason", KindUint8},
	TagMoreMessagesToSend:       {"more_messages_to_send", KindUint8},
	TagMessageState:             {"message_state", KindUint8},
	TagUssdServiceOp:            {"ussd_service_op", KindUint8},
	TagDisplayTime:              {"display_time", KindUint8},
	TagSmsSignal:                {"sms_signal", KindUint16},
	TagMsValidity:               {"ms_validity", KindUint8},
	TagAlertOnMessageDelivery:   {"alert_on_message_delivery", KindOctets},
	TagItsReplyType:             {"its_reply_type", KindUint8},
	TagItsSessionInfo:           {"its_session_info", KindOctets},
}

// LookupTag 查询标签信息，未登记的标签按字节串处理
func LookupTag(tag uint16) (TagInfo, bool) {
	info, ok := tagRegistry[tag]
	return info, ok
}

// TLV 一个可选参数
type TLV struct {
	Tag   uint16
	Value []byte
}

// Uint8TLV 创建单字节可选参数
func Uint8TLV(tag uint16, v uint8) TLV {
	return TLV{Tag: tag, Value: []byte{v}}
}

// Uint16TLV 创建双字节可选参数
func Uint16TLV(tag uint16, v uint16) TLV {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return TLV{Tag: tag, Value: b}
}

// Uint32TLV 创建四字节可选参数
func Uint32TLV(tag uint16, v uint32) TLV {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return TLV{Tag: tag, Value: b}
}

// CStringTLV 创建空字节结尾的字符串参数
func CStringTLV(tag uint16, s string) TLV {
	return TLV{Tag: tag, Value: append([]byte(s), 0)}
}

func (t TLV) Uint8() (uint8, error) {
	if len(t.Value) != 1 {
		return 0, t.sizeError(1)
	}
	return t.Value[0], nil
}

func (t TLV) Uint16() (uint16, error) {
	if len(t.Value) != 2 {
		return 0, t.sizeError(2)
	}
	return binary.BigEndian.Uint16(t.Value), nil
}

func (t TLV) Uint32() (uint32, error) {
	if len(t.Value) != 4 {
		return 0, t.sizeError(4)
	}
	return binary.BigEndian.Uint32(t.Value), nil
}

// CString 去掉结尾空字节，缺少结尾时原样返回
func (t TLV) CString() string {
	if i := bytes.IndexByte(t.Value, 0); i >= 0 {
		return string(t.Value[:i])
	}
	return string(t.Value)
}

func (t TLV) sizeError(want int) error {
	return fmt.Errorf("可选参数%s长度为%d，期望%d", t.Name(), len(t.Value), want)
}

// Name 返回标签名称
func (t TLV) Name() string {
	if info, ok := tagRegistry[t.Tag]; ok {
		return info.Name
	}
	return fmt.Sprintf("0x%04X", t.Tag)
}

func (t TLV) String() string {
	info, ok := tagRegistry[t.Tag]
	if !ok {
		return fmt.Sprintf("%s=%X", t.Name(), t.Value)
	}
	switch info.Kind {
	case KindUint8, KindUint16, KindUint32:
		var v uint32
		for _, b := range t.Value {
			v = v<<8 | uint32(b)
		}
		return fmt.Sprintf("%s=%d", info.Name, v)
	case KindCString:
		return fmt.Sprintf("%s=%q", info.Name, t.CString())
	}
	return fmt.Sprintf("%s=%X", info.Name, t.Value)
}

func writeTLVs(w *writer, tlvs []TLV) {
	for _, t := range tlvs {
		if len(t.Value) > 0xFFFF {
			w.err = &EncodeError{Command: w.id, Field: t.Name(), Reason: "值超过65535字节"}
			return
		}
		w.uint16(t.Tag)
		w.uint16(uint16(len(t.Value)))
		w.octets(t.Value)
	}
}

func readTLVs(r *reader) ([]TLV, error) {
	var tlvs []TLV
	for r.remaining() > 0 {
		tag, err := r.uint16("tlv_tag")
		if err != nil {
			return nil, err
		}
		n, err := r.uint16("tlv_length")
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("tlv 0x%04X", tag)
		if info, ok := tagRegistry[tag]; ok {
			name = info.Name
		}
		value, err := r.octets(name, int(n))
		if err != nil {
			return nil, err
		}
		tlvs = append(tlvs, TLV{Tag: tag, Value: value})
	}
	return tlvs, nil
}
