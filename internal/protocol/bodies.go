// internal/protocol/bodies.go  各命令的消息体
package protocol

// 字段最大长度，含结尾空字节
const (
	maxSystemID     = 16
	maxPassword     = 9
	maxSystemType   = 13
	maxAddressRange = 41
	maxServiceType  = 6
	maxAddr         = 21
	maxESMEAddr     = 65
	maxTime         = 17
	maxMessageID    = 65
	maxDLName       = 21
	maxShortMessage = 254
)

// Address 地址，带类型和编号计划
type Address struct {
	TON  byte
	NPI  byte
	Addr string
}

// Bind 绑定请求，按Type区分bind_transmitter/bind_receiver/bind_transceiver
type Bind struct {
	Type             BindType
	SystemID         string
	Password         string
	SystemType       string
	InterfaceVersion InterfaceVersion
	AddrTON          byte
	AddrNPI          byte
	AddressRange     string
}

func (b *Bind) CommandID() CommandID { return b.Type.CommandID() }

func (b *Bind) marshal(w *writer) {
	w.cstring("system_id", b.SystemID, maxSystemID)
	w.cstring("password", b.Password, maxPassword)
	w.cstring("system_type", b.SystemType, maxSystemType)
	w.byte(byte(b.InterfaceVersion))
	w.byte(b.AddrTON)
	w.byte(b.AddrNPI)
	w.cstring("address_range", b.AddressRange, maxAddressRange)
}

func (b *Bind) unmarshal(r *reader) (err error) {
	if b.SystemID, err = r.cstring("system_id", maxSystemID); err != nil {
		return err
	}
	if b.Password, err = r.cstring("password", maxPassword); err != nil {
		return err
	}
	if b.SystemType, err = r.cstring("system_type", maxSystemType); err != nil {
		return err
	}
	var v byte
	if v, err = r.byte("interface_version"); err != nil {
		return err
	}
	b.InterfaceVersion = InterfaceVersion(v)
	if b.AddrTON, err = r.byte("addr_ton"); err != nil {
		return err
	}
	if b.AddrNPI, err = r.byte("addr_npi"); err != nil {
		return err
	}
	b.AddressRange, err = r.cstring("address_range", maxAddressRange)
	return err
}

// BindResp 绑定响应
type BindResp struct {
	Type     BindType
	SystemID string
}

func (b *BindResp) CommandID() CommandID { return b.Type.CommandID().Response() }

func (b *BindResp) marshal(w *writer) {
	w.cstring("system_id", b.SystemID, maxSystemID)
}

func (b *BindResp) unmarshal(r *reader) (err error) {
	b.SystemID, err = r.cstring("system_id", maxSystemID)
	return err
}

// Outbind 短信中心发起的外绑定
type Outbind struct {
	SystemID string
	Password string
}

func (b *Outbind) CommandID() CommandID { return OUTBIND }

func (b *Outbind) marshal(w *writer) {
	w.cstring("system_id", b.SystemID, maxSystemID)
	w.cstring("password", b.Password, maxPassword)
}

func (b *Outbind) unmarshal(r *reader) (err error) {
	if b.SystemID, err = r.cstring("system_id", maxSystemID); err != nil {
		return err
	}
	b.Password, err = r.cstring("password", maxPassword)
	return err
}

// emptyBody 没有字段的消息体
type emptyBody struct{}

func (emptyBody) marshal(*writer)         {}
func (emptyBody) unmarshal(*reader) error { return nil }

type Unbind struct{ emptyBody }
type UnbindResp struct{ emptyBody }
type GenericNack struct{ emptyBody }
type EnquireLink struct{ emptyBody }
type EnquireLinkResp struct{ emptyBody }
type CancelSMResp struct{ emptyBody }
type ReplaceSMResp struct{ emptyBody }

func (*Unbind) CommandID() CommandID          { return UNBIND }
func (*UnbindResp) CommandID() CommandID      { return UNBIND_RESP }
func (*GenericNack) CommandID() CommandID     { return GENERIC_NACK }
func (*EnquireLink) CommandID() CommandID     { return ENQUIRE_LINK }
func (*EnquireLinkResp) CommandID() CommandID { return ENQUIRE_LINK_RESP }
func (*CancelSMResp) CommandID() CommandID    { return CANCEL_SM_RESP }
func (*ReplaceSMResp) CommandID() CommandID   { return REPLACE_SM_RESP }

// MessageFields submit_sm与deliver_sm共用的字段布局
type MessageFields struct {
	ServiceType          string
	Source               Address
	Dest                 Address
	ESMClass             byte
	ProtocolID           byte
	PriorityFlag         byte
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   byte
	ReplaceIfPresent     byte
	DataCoding           byte
	SMDefaultMsgID       byte
	ShortMessage         []byte
}

func (m *MessageFields) marshal(w *writer) {
	w.cstring("service_type", m.ServiceType, maxServiceType)
	w.address("source_addr", m.Source, maxAddr)
	w.address("destination_addr", m.Dest, maxAddr)
	w.byte(m.ESMClass)
	w.byte(m.ProtocolID)
	w.byte(m.PriorityFlag)
	w.cstring("schedule_delivery_time", m.ScheduleDeliveryTime, maxTime)
	w.cstring("validity_period", m.ValidityPeriod, maxTime)
	w.byte(m.RegisteredDelivery)
	w.byte(m.ReplaceIfPresent)
	w.byte(m.DataCoding)
	w.byte(m.SMDefaultMsgID)
	shortMessage(w, m.ShortMessage)
}

func (m *MessageFields) unmarshal(r *reader) (err error) {
	if m.ServiceType, err = r.cstring("service_type", maxServiceType); err != nil {
		return err
	}
	if m.Source, err = r.address("source_addr", maxAddr); err != nil {
		return err
	}
	if m.Dest, err = r.address("destination_addr", maxAddr); err != nil {
		return err
	}
	if m.ESMClass, err = r.byte("esm_class"); err != nil {
		return err
	}
	if m.ProtocolID, err = r.byte("protocol_id"); err != nil {
		return err
	}
	if m.PriorityFlag, err = r.byte("priority_flag"); err != nil {
		return err
	}
	if m.ScheduleDeliveryTime, err = r.cstring("schedule_delivery_time", maxTime); err != nil {
		return err
	}
	if m.ValidityPeriod, err = r.cstring("validity_period", maxTime); err != nil {
		return err
	}
	if m.RegisteredDelivery, err = r.byte("registered_delivery"); err != nil {
		return err
	}
	if m.ReplaceIfPresent, err = r.byte("replace_if_present_flag"); err != nil {
		return err
	}
	if m.DataCoding, err = r.byte("data_coding"); err != nil {
		return err
	}
	if m.SMDefaultMsgID, err = r.byte("sm_default_msg_id"); err != nil {
		return err
	}
	m.ShortMessage, err = readShortMessage(r)
	return err
}

// shortMessage 写入sm_length和short_message
func shortMessage(w *writer, sm []byte) {
	if w.err != nil {
		return
	}
	if len(sm) > maxShortMessage {
		w.err = &EncodeError{Command: w.id, Field: "short_message", Reason: "超过254字节，请改用message_payload"}
		return
	}
	w.byte(byte(len(sm)))
	w.octets(sm)
}

func readShortMessage(r *reader) ([]byte, error) {
	n, err := r.byte("sm_length")
	if err != nil {
		return nil, err
	}
	return r.octets("short_message", int(n))
}

// SubmitSM 提交短信
type SubmitSM struct{ MessageFields }

func (*SubmitSM) CommandID() CommandID { return SUBMIT_SM }

// DeliverSM 投递短信
type DeliverSM struct{ MessageFields }

func (*DeliverSM) CommandID() CommandID { return DELIVER_SM }

// messageIDBody 只有message_id字段的响应
type messageIDBody struct {
	MessageID string
}

func (b *messageIDBody) marshal(w *writer) {
	w.cstring("message_id", b.MessageID, maxMessageID)
}

func (b *messageIDBody) unmarshal(r *reader) (err error) {
	b.MessageID, err = r.cstring("message_id", maxMessageID)
	return err
}

type SubmitSMResp struct{ messageIDBody }
type DeliverSMResp struct{ messageIDBody }
type DataSMResp struct{ messageIDBody }

func (*SubmitSMResp) CommandID() CommandID  { return SUBMIT_SM_RESP }
func (*DeliverSMResp) CommandID() CommandID { return DELIVER_SM_RESP }
func (*DataSMResp) CommandID() CommandID    { return DATA_SM_RESP }

// NewSubmitSMResp 创建提交响应
func NewSubmitSMResp(messageID string) *SubmitSMResp {
	return &SubmitSMResp{messageIDBody{MessageID: messageID}}
}

// NewDeliverSMResp 创建投递响应
func NewDeliverSMResp(messageID string) *DeliverSMResp {
	return &DeliverSMResp{messageIDBody{MessageID: messageID}}
}

// NewDataSMResp 创建data_sm响应
func NewDataSMResp(messageID string) *DataSMResp {
	return &DataSMResp{messageIDBody{MessageID: messageID}}
}

// DataSM 数据短信，内容放在message_payload可选参数中
type DataSM struct {
	ServiceType        string
	Source             Address
	Dest               Address
	ESMClass           byte
	RegisteredDelivery byte
	DataCoding         byte
}

func (*DataSM) CommandID() CommandID { return DATA_SM }

func (b *DataSM) marshal(w *writer) {
	w.cstring("service_type", b.ServiceType, maxServiceType)
	w.address("source_addr", b.Source, maxESMEAddr)
	w.address("destination_addr", b.Dest, maxESMEAddr)
	w.byte(b.ESMClass)
	w.byte(b.RegisteredDelivery)
	w.byte(b.DataCoding)
}

func (b *DataSM) unmarshal(r *reader) (err error) {
	if b.ServiceType, err = r.cstring("service_type", maxServiceType); err != nil {
		return err
	}
	if b.Source, err = r.address("source_addr", maxESMEAddr); err != nil {
		return err
	}
	if b.Dest, err = r.address("destination_addr", maxESMEAddr); err != nil {
		return err
	}
	if b.ESMClass, err = r.byte("esm_class"); err != nil {
		return err
	}
	if b.RegisteredDelivery, err = r.byte("registered_delivery"); err != nil {
		return err
	}
	b.DataCoding, err = r.byte("data_coding")
	return err
}

// QuerySM 查询短信状态
type QuerySM struct {
	MessageID string
	Source    Address
}

func (*QuerySM) CommandID() CommandID { return QUERY_SM }

func (b *QuerySM) marshal(w *writer) {
	w.cstring("message_id", b.MessageID, maxMessageID)
	w.address("source_addr", b.Source, maxAddr)
}

func (b *QuerySM) unmarshal(r *reader) (err error) {
	if b.MessageID, err = r.cstring("message_id", maxMessageID); err != nil {
		return err
	}
	b.Source, err = r.address("source_addr", maxAddr)
	return err
}

// QuerySMResp 查询响应
type QuerySMResp struct {
	MessageID    string
	FinalDate    string
	MessageState byte
	ErrorCode    byte
}

func (*QuerySMResp) CommandID() CommandID { return QUERY_SM_RESP }

func (b *QuerySMResp) marshal(w *writer) {
	w.cstring("message_id", b.MessageID, maxMessageID)
	w.cstring("final_date", b.FinalDate, maxTime)
	w.byte(b.MessageState)
	w.byte(b.ErrorCode)
}

func (b *QuerySMResp) unmarshal(r *reader) (err error) {
	if b.MessageID, err = r.cstring("message_id", maxMessageID); err != nil {
		return err
	}
	if b.FinalDate, err = r.cstring("final_date", maxTime); err != nil {
		return err
	}
	if b.MessageState, err = r.byte("message_state"); err != nil {
		return err
	}
	b.ErrorCode, err = r.byte("error_code")
	return err
}

// CancelSM 取消短信
type CancelSM struct {
	ServiceType string
	MessageID   string
	Source      Address
	Dest        Address
}

func (*CancelSM) CommandID() CommandID { return CANCEL_SM }

func (b *CancelSM) marshal(w *writer) {
	w.cstring("service_type", b.ServiceType, maxServiceType)
	w.cstring("message_id", b.MessageID, maxMessageID)
	w.address("source_addr", b.Source, maxAddr)
	w.address("destination_addr", b.Dest, maxAddr)
}

func (b *CancelSM) unmarshal(r *reader) (err error) {
	if b.ServiceType, err = r.cstring("service_type", maxServiceType); err != nil {
		return err
	}
	if b.MessageID, err = r.cstring("message_id", maxMessageID); err != nil {
		return err
	}
	if b.Source, err = r.address("source_addr", maxAddr); err != nil {
		return err
	}
	b.Dest, err = r.address("destination_addr", maxAddr)
	return err
}

// ReplaceSM 替换短信
type ReplaceSM struct {
	MessageID            string
	Source               Address
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   byte
	SMDefaultMsgID       byte
	ShortMessage         []byte
}

func (*ReplaceSM) CommandID() CommandID { return REPLACE_SM }

func (b *ReplaceSM) marshal(w *writer) {
	w.cstring("message_id", b.MessageID, maxMessageID)
	w.address("source_addr", b.Source, maxAddr)
	w.cstring("schedule_delivery_time", b.ScheduleDeliveryTime, maxTime)
	w.cstring("validity_period", b.ValidityPeriod, maxTime)
	w.byte(b.RegisteredDelivery)
	w.byte(b.SMDefaultMsgID)
	shortMessage(w, b.ShortMessage)
}

func (b *ReplaceSM) unmarshal(r *reader) (err error) {
	if b.MessageID, err = r.cstring("message_id", maxMessageID); err != nil {
		return err
	}
	if b.Source, err = r.address("source_addr", maxAddr); err != nil {
		return err
	}
	if b.ScheduleDeliveryTime, err = r.cstring("schedule_delivery_time", maxTime); err != nil {
		return err
	}
	if b.ValidityPeriod, err = r.cstring("validity_period", maxTime); err != nil {
		return err
	}
	if b.RegisteredDelivery, err = r.byte("registered_delivery"); err != nil {
		return err
	}
	if b.SMDefaultMsgID, err = r.byte("sm_default_msg_id"); err != nil {
		return err
	}
	b.ShortMessage, err = readShortMessage(r)
	return err
}

// 目的地址类型
const (
	DestFlagSMEAddress       byte = 0x01
	DestFlagDistributionList byte = 0x02
)

// Destination submit_multi的单个目的地，Flag决定使用Address还是DLName
type Destination struct {
	Flag    byte
	Address Address
	DLName  string
}

// SubmitMulti 群发短信
type SubmitMulti struct {
	ServiceType          string
	Source               Address
	Dests                []Destination
	ESMClass             byte
	ProtocolID           byte
	PriorityFlag         byte
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   byte
	ReplaceIfPresent     byte
	DataCoding           byte
	SMDefaultMsgID       byte
	ShortMessage         []byte
}

func (*SubmitMulti) CommandID() CommandID { return SUBMIT_MULTI }

func (b *SubmitMulti) marshal(w *writer) {
	w.cstring("service_type", b.ServiceType, maxServiceType)
	w.address("source_addr", b.Source, maxAddr)
	if len(b.Dests) > 254 {
		w.err = &EncodeError{Command: SUBMIT_MULTI, Field: "number_of_dests", Reason: "超过254个目的地"}
		return
	}
	w.byte(byte(len(b.Dests)))
	for _, d := range b.Dests {
		w.byte(d.Flag)
		switch d.Flag {
		case DestFlagSMEAddress:
			w.address("destination_addr", d.Address, maxAddr)
		case DestFlagDistributionList:
			w.cstring("dl_name", d.DLName, maxDLName)
		default:
			w.err = &EncodeError{Command: SUBMIT_MULTI, Field: "dest_flag", Reason: "未知的目的地类型"}
			return
		}
	}
	w.byte(b.ESMClass)
	w.byte(b.ProtocolID)
	w.byte(b.PriorityFlag)
	w.cstring("schedule_delivery_time", b.ScheduleDeliveryTime, maxTime)
	w.cstring("validity_period", b.ValidityPeriod, maxTime)
	w.byte(b.RegisteredDelivery)
	w.byte(b.ReplaceIfPresent)
	w.byte(b.DataCoding)
	w.byte(b.SMDefaultMsgID)
	shortMessage(w, b.ShortMessage)
}

func (b *SubmitMulti) unmarshal(r *reader) (err error) {
	if b.ServiceType, err = r.cstring("service_type", maxServiceType); err != nil {
		return err
	}
	if b.Source, err = r.address("source_addr", maxAddr); err != nil {
		return err
	}
	n, err := r.byte("number_of_dests")
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		var d Destination
		if d.Flag, err = r.byte("dest_flag"); err != nil {
			return err
		}
		switch d.Flag {
		case DestFlagSMEAddress:
			d.Address, err = r.address("destination_addr", maxAddr)
		case DestFlagDistributionList:
			d.DLName, err = r.cstring("dl_name", maxDLName)
		default:
			err = &FramingError{Field: "dest_flag", Reason: "未知的目的地类型"}
		}
		if err != nil {
			return err
		}
		b.Dests = append(b.Dests, d)
	}
	if b.ESMClass, err = r.byte("esm_class"); err != nil {
		return err
	}
	if b.ProtocolID, err = r.byte("protocol_id"); err != nil {
		return err
	}
	if b.PriorityFlag, err = r.byte("priority_flag"); err != nil {
		return err
	}
	if b.ScheduleDeliveryTime, err = r.cstring("schedule_delivery_time", maxTime); err != nil {
		return err
	}
	if b.ValidityPeriod, err = r.cstring("validity_period", maxTime); err != nil {
		return err
	}
	if b.RegisteredDelivery, err = r.byte("registered_delivery"); err != nil {
		return err
	}
	if b.ReplaceIfPresent, err = r.byte("replace_if_present_flag"); err != nil {
		return err
	}
	if b.DataCoding, err = r.byte("data_coding"); err != nil {
		return err
	}
	if b.SMDefaultMsgID, err = r.byte("sm_default_msg_id"); err != nil {
		return err
	}
	b.ShortMessage, err = readShortMessage(r)
	return err
}

// UnsuccessSME submit_multi中投递失败的目的地
type UnsuccessSME struct {
	Address Address
	Status  CommandStatus
}

// SubmitMultiResp 群发响应
type SubmitMultiResp struct {
	MessageID string
	Unsuccess []UnsuccessSME
}

func (*SubmitMultiResp) CommandID() CommandID { return SUBMIT_MULTI_RESP }

func (b *SubmitMultiResp) marshal(w *writer) {
	w.cstring("message_id", b.MessageID, maxMessageID)
	if len(b.Unsuccess) > 254 {
		w.err = &EncodeError{Command: SUBMIT_MULTI_RESP, Field: "no_unsuccess", Reason: "超过254个"}
		return
	}
	w.byte(byte(len(b.Unsuccess)))
	for _, u := range b.Unsuccess {
		w.address("dest_addr", u.Address, maxAddr)
		w.uint16(uint16(uint32(u.Status) >> 16))
		w.uint16(uint16(u.Status))
	}
}

func (b *SubmitMultiResp) unmarshal(r *reader) (err error) {
	if b.MessageID, err = r.cstring("message_id", maxMessageID); err != nil {
		return err
	}
	// 部分实现在全部成功时省略no_unsuccess
	if r.remaining() == 0 {
		return nil
	}
	n, err := r.byte("no_unsuccess")
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		var u UnsuccessSME
		if u.Address, err = r.address("dest_addr", maxAddr); err != nil {
			return err
		}
		hi, err := r.uint16("error_status_code")
		if err != nil {
			return err
		}
		lo, err := r.uint16("error_status_code")
		if err != nil {
			return err
		}
		u.Status = CommandStatus(uint32(hi)<<16 | uint32(lo))
		b.Unsuccess = append(b.Unsuccess, u)
	}
	return nil
}

// AlertNotification 短信中心通知ESME某个终端已可达，无响应
type AlertNotification struct {
	Source Address
	ESME   Address
}

func (*AlertNotification) CommandID() CommandID { return ALERT_NOTIFICATION }

func (b *AlertNotification) marshal(w *writer) {
	w.address("source_addr", b.Source, maxESMEAddr)
	w.address("esme_addr", b.ESME, maxESMEAddr)
}

func (b *AlertNotification) unmarshal(r *reader) (err error) {
	if b.Source, err = r.address("source_addr", maxESMEAddr); err != nil {
		return err
	}
	b.ESME, err = r.address("esme_addr", maxESMEAddr)
	return err
}

// Unknown 未识别命令，保留原始消息体
type Unknown struct {
	ID   CommandID
	Data []byte
}

func (b *Unknown) CommandID() CommandID { return b.ID }

func (b *Unknown) marshal(w *writer) { w.octets(b.Data) }

func (b *Unknown) unmarshal(r *reader) error {
	b.Data = r.rest()
	return nil
}
