// internal/protocol/constants.go  # 协议常量定义
package protocol

import "fmt"

// CommandID 命令ID，响应ID为请求ID加上最高位
type CommandID uint32

// Command IDs
const (
	GENERIC_NACK          CommandID = 0x80000000
	BIND_RECEIVER         CommandID = 0x00000001
	BIND_RECEIVER_RESP    CommandID = 0x80000001
	BIND_TRANSMITTER      CommandID = 0x00000002
	BIND_TRANSMITTER_RESP CommandID = 0x80000002
	QUERY_SM              CommandID = 0x00000003
	QUERY_SM_RESP         CommandID = 0x80000003
	SUBMIT_SM             CommandID = 0x00000004
	SUBMIT_SM_RESP        CommandID = 0x80000004
	DELIVER_SM            CommandID = 0x00000005
	DELIVER_SM_RESP       CommandID = 0x80000005
	UNBIND                CommandID = 0x00000006
	UNBIND_RESP           CommandID = 0x80000006
	REPLACE_SM            CommandID = 0x00000007
	REPLACE_SM_RESP       CommandID = 0x80000007
	CANCEL_SM             CommandID = 0x00000008
	CANCEL_SM_RESP        CommandID = 0x80000008
	BIND_TRANSCEIVER      CommandID = 0x00000009
	BIND_TRANSCEIVER_RESP CommandID = 0x80000009
	OUTBIND               CommandID = 0x0000000B
	ENQUIRE_LINK          CommandID = 0x00000015
	ENQUIRE_LINK_RESP     CommandID = 0x80000015
	SUBMIT_MULTI          CommandID = 0x00000021
	SUBMIT_MULTI_RESP     CommandID = 0x80000021
	ALERT_NOTIFICATION    CommandID = 0x00000102
	DATA_SM               CommandID = 0x00000103
	DATA_SM_RESP          CommandID = 0x80000103
)

// responseMask 响应命令ID的掩码
const responseMask CommandID = 0x80000000

var commandNames = map[CommandID]string{
	GENERIC_NACK:          "generic_nack",
	BIND_RECEIVER:         "bind_receiver",
	BIND_RECEIVER_RESP:    "bind_receiver_resp",
	BIND_TRANSMITTER:      "bind_transmitter",
	BIND_TRANSMITTER_RESP: "bind_transmitter_resp",
	QUERY_SM:              "query_sm",
	QUERY_SM_RESP:         "query_sm_resp",
	SUBMIT_SM:             "submit_sm",
	SUBMIT_SM_RESP:        "submit_sm_resp",
	DELIVER_SM:            "deliver_sm",
	DELIVER_SM_RESP:       "deliver_sm_resp",
	UNBIND:                "unbind",
	UNBIND_RESP:           "unbind_resp",
	REPLACE_SM:            "replace_sm",
	REPLACE_SM_RESP:       "replace_sm_resp",
	CANCEL_SM:             "cancel_sm",
	CANCEL_SM_RESP:        "cancel_sm_resp",
	BIND_TRANSCEIVER:      "bind_transceiver",
	BIND_TRANSCEIVER_RESP: "bind_transceiver_resp",
	OUTBIND:               "outbind",
	ENQUIRE_LINK:          "enquire_link",
	ENQUIRE_LINK_RESP:     "enquire_link_resp",
	SUBMIT_MULTI:          "submit_multi",
	SUBMIT_MULTI_RESP:     "submit_multi_resp",
	ALERT_NOTIFICATION:    "alert_notification",
	DATA_SM:               "data_sm",
	DATA_SM_RESP:          "data_sm_resp",
}

// String 返回命令名称
func (id CommandID) String() string {
	if name, ok := commandNames[id]; ok {
		return name
	}
	return fmt.Sprintf("command(0x%08X)", uint32(id))
}

// IsResponse 是否为响应命令
func (id CommandID) IsResponse() bool {
	return id&responseMask != 0
}

// Response 返回请求对应的响应命令ID
func (id CommandID) Response() CommandID {
	return id | responseMask
}

// Request 返回响应对应的请求命令ID
func (id CommandID) Request() CommandID {
	return id &^ responseMask
}

// IsKnown 是否为已知命令
func (id CommandID) IsKnown() bool {
	_, ok := commandNames[id]
	return ok
}

// CommandStatus 命令状态码
type CommandStatus uint32

// Command status codes
const (
	ESME_ROK              CommandStatus = 0x00000000 // No Error
	ESME_RINVMSGLEN       CommandStatus = 0x00000001 // Message Length is invalid
	ESME_RINVCMDLEN       CommandStatus = 0x00000002 // Command Length is invalid
	ESME_RINVCMDID        CommandStatus = 0x00000003 // Invalid Command ID
	ESME_RINVBNDSTS       CommandStatus = 0x00000004 // Incorrect BIND Status for given command
	ESME_RALYBND          CommandStatus = 0x00000005 // ESME Already in Bound State
	ESME_RINVPRTFLG       CommandStatus = 0x00000006 // Invalid Priority Flag
	ESME_RINVREGDLVFLG    CommandStatus = 0x00000007 // Invalid Registered Delivery Flag
	ESME_RSYSERR          CommandStatus = 0x00000008 // System Error
	ESME_RINVSRCADR       CommandStatus = 0x0000000A // Invalid Source Address
	ESME_RINVDSTADR       CommandStatus = 0x0000000B // Invalid Dest Addr
	ESME_RINVMSGID        CommandStatus = 0x0000000C // Message ID is invalid
	ESME_RBINDFAIL        CommandStatus = 0x0000000D // Bind Failed
	ESME_RINVPASWD        CommandStatus = 0x0000000E // Invalid Password
	ESME_RINVSYSID        CommandStatus = 0x0000000F // Invalid System ID
	ESME_RCANCELFAIL      CommandStatus = 0x00000011 // Cancel SM Failed
	ESME_RREPLACEFAIL     CommandStatus = 0x00000013 // Replace SM Failed
	ESME_RMSGQFUL         CommandStatus = 0x00000014 // Message Queue Full
	ESME_RINVSERTYP       CommandStatus = 0x00000015 // Invalid Service Type
	ESME_RINVNUMDESTS     CommandStatus = 0x00000033 // Invalid number of destinations
	ESME_RINVDLNAME       CommandStatus = 0x00000034 // Invalid Distribution List name
	ESME_RINVDESTFLAG     CommandStatus = 0x00000040 // Destination flag is invalid
	ESME_RINVSUBREP       CommandStatus = 0x00000042 // Invalid submit with replace request
	ESME_RINVESMCLASS     CommandStatus = 0x00000043 // Invalid esm_class field data
	ESME_RCNTSUBDL        CommandStatus = 0x00000044 // Cannot Submit to Distribution List
	ESME_RSUBMITFAIL      CommandStatus = 0x00000045 // submit_sm or submit_multi failed
	ESME_RINVSRCTON       CommandStatus = 0x00000048 // Invalid Source address TON
	ESME_RINVSRCNPI       CommandStatus = 0x00000049 // Invalid Source address NPI
	ESME_RINVDSTTON       CommandStatus = 0x00000050 // Invalid Destination address TON
	ESME_RINVDSTNPI       CommandStatus = 0x00000051 // Invalid Destination address NPI
	ESME_RINVSYSTYP       CommandStatus = 0x00000053 // Invalid system_type field
	ESME_RINVREPFLAG      CommandStatus = 0x00000054 // Invalid replace_if_present flag
	ESME_RINVNUMMSGS      CommandStatus = 0x00000055 // Invalid number of messages
	ESME_RTHROTTLED       CommandStatus = 0x00000058 // Throttling error
	ESME_RINVSCHED        CommandStatus = 0x00000061 // Invalid Scheduled Delivery Time
	ESME_RINVEXPIRY       CommandStatus = 0x00000062 // Invalid message validity period
	ESME_RINVDFTMSGID     CommandStatus = 0x00000063 // Predefined Message Invalid or Not Found
	ESME_RX_T_APPN        CommandStatus = 0x00000064 // ESME Receiver Temporary App Error Code
	ESME_RX_P_APPN        CommandStatus = 0x00000065 // ESME Receiver Permanent App Error Code
	ESME_RX_R_APPN        CommandStatus = 0x00000066 // ESME Receiver Reject Message Error Code
	ESME_RQUERYFAIL       CommandStatus = 0x00000067 // query_sm request failed
	ESME_RINVOPTPARSTREAM CommandStatus = 0x000000C0 // Error in the optional part of the PDU Body
	ESME_ROPTPARNOTALLWD  CommandStatus = 0x000000C1 // Optional Parameter not allowed
	ESME_RINVPARLEN       CommandStatus = 0x000000C2 // Invalid Parameter Length
	ESME_RMISSINGOPTPARAM CommandStatus = 0x000000C3 // Expected Optional Parameter missing
	ESME_RINVOPTPARAMVAL  CommandStatus = 0x000000C4 // Invalid Optional Parameter Value
	ESME_RDELIVERYFAILURE CommandStatus = 0x000000FE // Delivery Failure
	ESME_RUNKNOWNERR      CommandStatus = 0x000000FF // Unknown Error
)

var statusNames = map[CommandStatus]string{
	ESME_ROK:              "ESME_ROK",
	ESME_RINVMSGLEN:       "ESME_RINVMSGLEN",
	ESME_RINVCMDLEN:       "ESME_RINVCMDLEN",
	ESME_RINVCMDID:        "ESME_RINVCMDID",
	ESME_RINVBNDSTS:       "ESME_RINVBNDSTS",
	ESME_RALYBND:          "ESME_RALYBND",
	ESME_RINVPRTFLG:       "ESME_RINVPRTFLG",
	ESME_RINVREGDLVFLG:    "ESME_RINVREGDLVFLG",
	ESME_RSYSERR:          "ESME_RSYSERR",
	ESME_RINVSRCADR:       "ESME_RINVSRCADR",
	ESME_RINVDSTADR:       "ESME_RINVDSTADR",
	ESME_RINVMSGID:        "ESME_RINVMSGID",
	ESME_RBINDFAIL:        "ESME_RBINDFAIL",
	ESME_RINVPASWD:        "ESME_RINVPASWD",
	ESME_RINVSYSID:        "ESME_RINVSYSID",
	ESME_RCANCELFAIL:      "ESME_RCANCELFAIL",
	ESME_RREPLACEFAIL:     "ESME_RREPLACEFAIL",
	ESME_RMSGQFUL:         "ESME_RMSGQFUL",
	ESME_RINVSERTYP:       "ESME_RINVSERTYP",
	ESME_RINVNUMDESTS:     "ESME_RINVNUMDESTS",
	ESME_RINVDLNAME:       "ESME_RINVDLNAME",
	ESME_RINVDESTFLAG:     "ESME_RINVDESTFLAG",
	ESME_RINVSUBREP:       "ESME_RINVSUBREP",
	ESME_RINVESMCLASS:     "ESME_RINVESMCLASS",
	ESME_RCNTSUBDL:        "ESME_RCNTSUBDL",
	ESME_RSUBMITFAIL:      "ESME_RSUBMITFAIL",
	ESME_RINVSRCTON:       "ESME_RINVSRCTON",
	ESME_RINVSRCNPI:       "ESME_RINVSRCNPI",
	ESME_RINVDSTTON:       "ESME_RINVDSTTON",
	ESME_RINVDSTNPI:       "ESME_RINVDSTNPI",
	ESME_RINVSYSTYP:       "ESME_RINVSYSTYP",
	ESME_RINVREPFLAG:      "ESME_RINVREPFLAG",
	ESME_RINVNUMMSGS:      "ESME_RINVNUMMSGS",
	ESME_RTHROTTLED:       "ESME_RTHROTTLED",
	ESME_RINVSCHED:        "ESME_RINVSCHED",
	ESME_RINVEXPIRY:       "ESME_RINVEXPIRY",
	ESME_RINVDFTMSGID:     "ESME_RINVDFTMSGID",
	ESME_RX_T_APPN:        "ESME_RX_T_APPN",
	ESME_RX_P_APPN:        "ESME_RX_P_APPN",
	ESME_RX_R_APPN:        "ESME_RX_R_APPN",
	ESME_RQUERYFAIL:       "ESME_RQUERYFAIL",
	ESME_RINVOPTPARSTREAM: "ESME_RINVOPTPARSTREAM",
	ESME_ROPTPARNOTALLWD:  "ESME_ROPTPARNOTALLWD",
	ESME_RINVPARLEN:       "ESME_RINVPARLEN",
	ESME_RMISSINGOPTPARAM: "ESME_RMISSINGOPTPARAM",
	ESME_RINVOPTPARAMVAL:  "ESME_RINVOPTPARAMVAL",
	ESME_RDELIVERYFAILURE: "ESME_RDELIVERYFAILURE",
	ESME_RUNKNOWNERR:      "ESME_RUNKNOWNERR",
}

// String 返回状态码名称
func (s CommandStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(0x%08X)", uint32(s))
}

// InterfaceVersion 接口版本
type InterfaceVersion byte

// 接口版本常量
const (
	IF_VERSION_33 InterfaceVersion = 0x33
	IF_VERSION_34 InterfaceVersion = 0x34
	IF_VERSION_50 InterfaceVersion = 0x50
)

// String 返回版本号文本
func (v InterfaceVersion) String() string {
	return fmt.Sprintf("%d.%d", byte(v)>>4, byte(v)&0x0F)
}

// MinVersion 返回两个版本中较低的一个
func MinVersion(a, b InterfaceVersion) InterfaceVersion {
	if a < b {
		return a
	}
	return b
}

// BindType 绑定类型
type BindType byte

// 绑定类型常量
const (
	BindTransmitter BindType = iota + 1
	BindReceiver
	BindTransceiver
)

// CommandID 返回绑定请求的命令ID
func (t BindType) CommandID() CommandID {
	switch t {
	case BindTransmitter:
		return BIND_TRANSMITTER
	case BindReceiver:
		return BIND_RECEIVER
	case BindTransceiver:
		return BIND_TRANSCEIVER
	}
	return 0
}

// String 返回绑定类型名称
func (t BindType) String() string {
	switch t {
	case BindTransmitter:
		return "TX"
	case BindReceiver:
		return "RX"
	case BindTransceiver:
		return "TRX"
	}
	return fmt.Sprintf("BindType(%d)", byte(t))
}

// BindTypeOf 由命令ID得到绑定类型，非绑定命令返回0
func BindTypeOf(id CommandID) BindType {
	switch id.Request() {
	case BIND_TRANSMITTER:
		return BindTransmitter
	case BIND_RECEIVER:
		return BindReceiver
	case BIND_TRANSCEIVER:
		return BindTransceiver
	}
	return 0
}

// 帧长度限制
const (
	HeaderLength        = 16
	DefaultMaxFrameSize = 64 * 1024
)

// MaxSequenceNumber 序列号上限，最高位保留
const MaxSequenceNumber uint32 = 0x7FFFFFFF

// esm_class中的消息类型位
const (
	ESMClassDefault         byte = 0x00
	ESMClassDeliveryReceipt byte = 0x04
	ESMClassUDHI            byte = 0x40
)

// registered_delivery中的回执请求位
const (
	RegisteredDeliveryNone    byte = 0x00
	RegisteredDeliveryAlways  byte = 0x01
	RegisteredDeliveryFailure byte = 0x02
	RegisteredDeliveryMask    byte = 0x03
)

// MessageState query_sm_resp和message_state参数中的消息状态
type MessageState byte

const (
	StateEnroute       MessageState = 1
	StateDelivered     MessageState = 2
	StateExpired       MessageState = 3
	StateDeleted       MessageState = 4
	StateUndeliverable MessageState = 5
	StateAccepted      MessageState = 6
	StateUnknown       MessageState = 7
	StateRejected      MessageState = 8
)

var messageStateNames = map[MessageState]string{
	StateEnroute:       "ENROUTE",
	StateDelivered:     "DELIVRD",
	StateExpired:       "EXPIRED",
	StateDeleted:       "DELETED",
	StateUndeliverable: "UNDELIV",
	StateAccepted:      "ACCEPTD",
	StateUnknown:       "UNKNOWN",
	StateRejected:      "REJECTD",
}

// String 回执文本中使用的状态缩写
func (s MessageState) String() string {
	if name, ok := messageStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MessageState(%d)", byte(s))
}
