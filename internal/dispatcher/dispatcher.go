// internal/dispatcher/dispatcher.go  消息分发器
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smppgw/internal/protocol"
	"smppgw/internal/server"
	"smppgw/internal/session"
	"smppgw/pkg/logger"
)

// 超过此长度的正文通过message_payload投递
const maxShortMessage = 254

// Config 分发器配置
type Config struct {
	QueueSize      int           `yaml:"queue_size"`
	Workers        int           `yaml:"workers"`
	DeliveryDelay  time.Duration `yaml:"delivery_delay"`  // 受理后延迟投递，秒
	DeliverTimeout time.Duration `yaml:"deliver_timeout"` // 单次deliver_sm等待响应的时间，秒
	Retention      time.Duration `yaml:"retention"`       // 终态消息保留时间，秒
	Routes         []Route       `yaml:"routes"`
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 10 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = time.Hour
	}
}

// Sessions 按系统ID查找可接收消息的会话
type Sessions interface {
	Receivers(systemID string) []*server.ServerSession
}

// Stats 分发统计
type Stats struct {
	Accepted      uint64 `json:"accepted"`
	Delivered     uint64 `json:"delivered"`
	Undeliverable uint64 `json:"undeliverable"`
	Cancelled     uint64 `json:"cancelled"`
	Receipts      uint64 `json:"receipts"`
	ReceiptsLost  uint64 `json:"receipts_lost"`
	QueueSize     int    `json:"queue_size"`
	QueueCapacity int    `json:"queue_capacity"`
	Stored        int    `json:"stored"`
}

// MessageDispatcher 受理ESME提交的消息，按路由投递并回送状态报告。
// 实现server.ServerMessageReceiver。
type MessageDispatcher struct {
	config   Config
	store    *Store
	queue    *MessageQueue
	router   *Router
	sessions Sessions
	log      *logger.Logger

	nextID uint64
	rr     uint64

	stats struct {
		accepted      uint64
		delivered     uint64
		undeliverable uint64
		cancelled     uint64
		receipts      uint64
		receiptsLost  uint64
	}

	mu        sync.Mutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
}

var _ server.ServerMessageReceiver = (*MessageDispatcher)(nil)

// NewMessageDispatcher 创建新的消息分发器
func NewMessageDispatcher(config Config) *MessageDispatcher {
	config.applyDefaults()
	return &MessageDispatcher{
		config: config,
		store:  NewStore(),
		queue:  NewMessageQueue(config.QueueSize),
		router: NewRouter(config.Routes),
		log:    logger.Named("dispatcher"),
	}
}

// Start 启动工作线程，sessions用于查找投递目标
func (d *MessageDispatcher) Start(ctx context.Context, sessions Sessions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return nil
	}
	if sessions == nil {
		return errors.New("未指定会话来源")
	}

	d.sessions = sessions
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.isRunning = true

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.wg.Add(1)
	go d.expireLoop()

	d.log.Info("消息分发器已启动, 队列大小=%d, 工作线程数=%d, 路由数=%d",
		d.config.QueueSize, d.config.Workers, len(d.config.Routes))
	return nil
}

// Stop 停止分发器，队列中未投递的消息保持ENROUTE
func (d *MessageDispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return
	}
	d.cancel()
	d.wg.Wait()
	d.isRunning = false
	d.log.Info("消息分发器已停止")
}

// Message 查询消息，供管理接口使用
func (d *MessageDispatcher) Message(id string) (MessageInfo, error) {
	return d.store.Info(id, "")
}

// Stats 获取统计信息
func (d *MessageDispatcher) Stats() Stats {
	return Stats{
		Accepted:      atomic.LoadUint64(&d.stats.accepted),
		Delivered:     atomic.LoadUint64(&d.stats.delivered),
		Undeliverable: atomic.LoadUint64(&d.stats.undeliverable),
		Cancelled:     atomic.LoadUint64(&d.stats.cancelled),
		Receipts:      atomic.LoadUint64(&d.stats.receipts),
		ReceiptsLost:  atomic.LoadUint64(&d.stats.receiptsLost),
		QueueSize:     d.queue.Size(),
		QueueCapacity: d.queue.Capacity(),
		Stored:        d.store.Len(),
	}
}

// OnSubmitSM 受理submit_sm
func (d *MessageDispatcher) OnSubmitSM(ss *server.ServerSession, _ *protocol.PDU, sm *protocol.SubmitSM) (*protocol.SubmitSMResp, error) {
	if sm.Dest.Addr == "" {
		return nil, session.NewProcessRequestError(protocol.ESME_RINVDSTADR, errors.New("目的地址为空"))
	}
	id, err := d.accept(ss.SystemID(), sm.MessageFields, []protocol.Address{sm.Dest})
	if err != nil {
		return nil, err
	}
	return protocol.NewSubmitSMResp(id), nil
}

// OnSubmitMulti 受理submit_multi，不支持分发列表
func (d *MessageDispatcher) OnSubmitMulti(ss *server.ServerSession, _ *protocol.PDU, sm *protocol.SubmitMulti) (*protocol.SubmitMultiResp, error) {
	resp := &protocol.SubmitMultiResp{}
	var dests []protocol.Address
	for _, dst := range sm.Dests {
		switch {
		case dst.Flag != protocol.DestFlagSMEAddress:
			resp.Unsuccess = append(resp.Unsuccess, protocol.UnsuccessSME{Status: protocol.ESME_RCNTSUBDL})
		case dst.Address.Addr == "":
			resp.Unsuccess = append(resp.Unsuccess, protocol.UnsuccessSME{Address: dst.Address, Status: protocol.ESME_RINVDSTADR})
		default:
			dests = append(dests, dst.Address)
		}
	}
	if len(dests) == 0 {
		return nil, session.NewProcessRequestError(protocol.ESME_RINVNUMDESTS, errors.New("没有有效的目的地址"))
	}

	fields := protocol.MessageFields{
		ServiceType:          sm.ServiceType,
		Source:               sm.Source,
		ESMClass:             sm.ESMClass,
		ProtocolID:           sm.ProtocolID,
		PriorityFlag:         sm.PriorityFlag,
		ScheduleDeliveryTime: sm.ScheduleDeliveryTime,
		ValidityPeriod:       sm.ValidityPeriod,
		RegisteredDelivery:   sm.RegisteredDelivery,
		DataCoding:           sm.DataCoding,
		ShortMessage:         sm.ShortMessage,
	}
	id, err := d.accept(ss.SystemID(), fields, dests)
	if err != nil {
		return nil, err
	}
	resp.MessageID = id
	return resp, nil
}

// OnDataSM 受理data_sm，正文取message_payload
func (d *MessageDispatcher) OnDataSM(ss *server.ServerSession, req *protocol.PDU, dm *protocol.DataSM) (*protocol.DataSMResp, error) {
	if dm.Dest.Addr == "" {
		return nil, session.NewProcessRequestError(protocol.ESME_RINVDSTADR, errors.New("目的地址为空"))
	}
	var payload []byte
	if tlv, ok := req.GetTLV(protocol.TagMessagePayload); ok {
		payload = tlv.Value
	}
	fields := protocol.MessageFields{
		ServiceType:        dm.ServiceType,
		Source:             dm.Source,
		ESMClass:           dm.ESMClass,
		RegisteredDelivery: dm.RegisteredDelivery,
		DataCoding:         dm.DataCoding,
		ShortMessage:       payload,
	}
	id, err := d.accept(ss.SystemID(), fields, []protocol.Address{dm.Dest})
	if err != nil {
		return nil, err
	}
	return protocol.NewDataSMResp(id), nil
}

// OnQuerySM 查询消息状态
func (d *MessageDispatcher) OnQuerySM(ss *server.ServerSession, _ *protocol.PDU, q *protocol.QuerySM) (*protocol.QuerySMResp, error) {
	resp, err := d.store.Query(q.MessageID, ss.SystemID())
	if err != nil {
		return nil, session.NewProcessRequestError(protocol.ESME_RQUERYFAIL, err)
	}
	return resp, nil
}

// OnCancelSM 取消尚未投递的消息
func (d *MessageDispatcher) OnCancelSM(ss *server.ServerSession, _ *protocol.PDU, c *protocol.CancelSM) error {
	if c.MessageID == "" {
		return session.NewProcessRequestError(protocol.ESME_RCANCELFAIL, errors.New("不支持按地址批量取消"))
	}
	if err := d.store.Cancel(c.MessageID, ss.SystemID()); err != nil {
		return session.NewProcessRequestError(protocol.ESME_RCANCELFAIL, err)
	}
	atomic.AddUint64(&d.stats.cancelled, 1)
	d.log.Info("消息%s已被%s取消", c.MessageID, ss.SystemID())
	return nil
}

// OnReplaceSM 替换尚未投递的消息
func (d *MessageDispatcher) OnReplaceSM(ss *server.ServerSession, _ *protocol.PDU, r *protocol.ReplaceSM) error {
	if err := d.store.Replace(r.MessageID, ss.SystemID(), r.ShortMessage, r.RegisteredDelivery); err != nil {
		return session.NewProcessRequestError(protocol.ESME_RREPLACEFAIL, err)
	}
	return nil
}

// accept 保存并入队，队列满时返回ESME_RMSGQFUL
func (d *MessageDispatcher) accept(systemID string, fields protocol.MessageFields, dests []protocol.Address) (string, error) {
	fields.ShortMessage = append([]byte(nil), fields.ShortMessage...)
	m := &Message{
		ID:         fmt.Sprintf("%08X", atomic.AddUint64(&d.nextID, 1)),
		SystemID:   systemID,
		Fields:     fields,
		Dests:      dests,
		State:      protocol.StateEnroute,
		SubmitDate: time.Now(),
	}
	d.store.Put(m)
	if err := d.queue.Enqueue(m); err != nil {
		d.store.Delete(m.ID)
		return "", session.NewProcessRequestError(protocol.ESME_RMSGQFUL, err)
	}
	atomic.AddUint64(&d.stats.accepted, 1)
	return m.ID, nil
}

// worker 工作线程
func (d *MessageDispatcher) worker() {
	defer d.wg.Done()

	for {
		msg, err := d.queue.Dequeue(d.ctx)
		if err != nil {
			return
		}

		if delay := time.Until(msg.SubmitDate.Add(d.config.DeliveryDelay)); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-d.ctx.Done():
				timer.Stop()
				return
			}
		}

		d.process(msg.ID)
	}
}

// process 投递到所有目的地址，全部成功为DELIVERED，否则UNDELIVERABLE
func (d *MessageDispatcher) process(id string) {
	msg, ok := d.store.begin(id)
	if !ok {
		return
	}

	results := make([]protocol.MessageState, len(msg.Dests))
	final, errCode := protocol.StateDelivered, byte(0)
	for i, dest := range msg.Dests {
		results[i] = d.deliver(&msg, dest)
		if results[i] != protocol.StateDelivered {
			final, errCode = results[i], 1
		}
	}
	d.store.finish(id, final, errCode)

	if final == protocol.StateDelivered {
		atomic.AddUint64(&d.stats.delivered, 1)
	} else {
		atomic.AddUint64(&d.stats.undeliverable, 1)
	}
	d.log.Debug("消息%s投递完成: %s", id, final)

	done := time.Now()
	for i, dest := range msg.Dests {
		if server.WantsReceipt(msg.Fields.RegisteredDelivery, results[i]) {
			d.sendReceipt(&msg, dest, results[i], done)
		}
	}
}

// deliver 按路由投递到一个目的地址，没有路由的号码视为由网络直接送达
func (d *MessageDispatcher) deliver(msg *Message, dest protocol.Address) protocol.MessageState {
	systemID, routed := d.router.Match(dest.Addr)
	if !routed {
		return protocol.StateDelivered
	}

	ss := d.pick(systemID)
	if ss == nil {
		d.log.Warning("消息%s: 路由目标%s没有可用的接收会话", msg.ID, systemID)
		return protocol.StateUndeliverable
	}

	dm := msg.deliverFor(dest)
	var tlvs []protocol.TLV
	if len(dm.ShortMessage) > maxShortMessage {
		tlvs = append(tlvs, protocol.TLV{Tag: protocol.TagMessagePayload, Value: dm.ShortMessage})
		dm.ShortMessage = nil
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.config.DeliverTimeout)
	defer cancel()
	if _, err := ss.DeliverSM(ctx, dm, tlvs...); err != nil {
		d.log.Warning("消息%s投递到%s失败: %v", msg.ID, ss, err)
		return protocol.StateUndeliverable
	}
	return protocol.StateDelivered
}

// sendReceipt 状态报告发给提交方当前绑定的接收会话，没有则丢弃
func (d *MessageDispatcher) sendReceipt(msg *Message, dest protocol.Address, state protocol.MessageState, done time.Time) {
	ss := d.pick(msg.SystemID)
	if ss == nil {
		atomic.AddUint64(&d.stats.receiptsLost, 1)
		d.log.Warning("消息%s的状态报告无法投递: %s没有接收会话", msg.ID, msg.SystemID)
		return
	}

	dm, tlvs := server.NewDeliveryReceipt(msg.submitFor(dest), server.Receipt{
		MessageID:  msg.ID,
		State:      state,
		SubmitDate: msg.SubmitDate,
		DoneDate:   done,
	})

	ctx, cancel := context.WithTimeout(d.ctx, d.config.DeliverTimeout)
	defer cancel()
	if _, err := ss.DeliverSM(ctx, dm, tlvs...); err != nil {
		atomic.AddUint64(&d.stats.receiptsLost, 1)
		d.log.Warning("消息%s的状态报告发送失败: %v", msg.ID, err)
		return
	}
	atomic.AddUint64(&d.stats.receipts, 1)
}

// pick 轮询选择一个接收会话
func (d *MessageDispatcher) pick(systemID string) *server.ServerSession {
	receivers := d.sessions.Receivers(systemID)
	if len(receivers) == 0 {
		return nil
	}
	n := atomic.AddUint64(&d.rr, 1)
	return receivers[n%uint64(len(receivers))]
}

// expireLoop 定期清理终态消息
func (d *MessageDispatcher) expireLoop() {
	defer d.wg.Done()

	interval := d.config.Retention / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := d.store.Expire(time.Now().Add(-d.config.Retention)); n > 0 {
				d.log.Debug("清理了%d条过期消息", n)
			}
		case <-d.ctx.Done():
			return
		}
	}
}
