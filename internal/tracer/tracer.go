// internal/tracer/tracer.go
package tracer

import (
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"smppgw/internal/protocol"
	"smppgw/internal/session"
	"smppgw/pkg/logger"
)

// Direction 消息方向
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Entry 一条跟踪记录
type Entry struct {
	Time      time.Time `json:"time"`
	Direction Direction `json:"direction"`
	SessionID uint64    `json:"session_id"`
	SystemID  string    `json:"system_id"`
	Command   string    `json:"command"`
	Sequence  uint32    `json:"sequence"`
	Status    uint32    `json:"status"`
	Source    string    `json:"source_addr,omitempty"`
	Dest      string    `json:"dest_addr,omitempty"`
	Content   string    `json:"content,omitempty"`
	Raw       []byte    `json:"-"`
}

// RawHex 原始帧的十六进制
func (e *Entry) RawHex() string { return hex.EncodeToString(e.Raw) }

// Stats 跟踪计数
type Stats struct {
	Traced   uint64 `json:"traced"`
	Retained int    `json:"retained"`
}

// 号码过滤时记住已跟踪的请求，用于匹配不带号码的响应
type pendingKey struct {
	session  uint64
	sequence uint32
}

const (
	maxRelated = 4096
	relatedTTL = time.Minute
)

// Tracer 按号码跟踪会话收发的PDU，实现session.Tracer。
// 条目只保存在固定容量的内存环形缓冲中，同时输出到trace日志。
type Tracer struct {
	filter *filter
	recent *MemoryStorage
	log    *logger.Logger

	mu      sync.Mutex
	related map[pendingKey]time.Time

	traced uint64
}

var _ session.Tracer = (*Tracer)(nil)

// New 创建跟踪器
func New(cfg Config) *Tracer {
	return &Tracer{
		filter:  newFilter(cfg),
		recent:  NewMemoryStorage(cfg.MaxRecent),
		log:     logger.Named("trace"),
		related: make(map[pendingKey]time.Time),
	}
}

// TracePDU 在会话读写路径上调用
func (t *Tracer) TracePDU(s *session.Session, outgoing bool, p *protocol.PDU, raw []byte) {
	if !t.filter.isEnabled() {
		return
	}
	// 链路检测太多，不记录
	if p.CommandID == protocol.ENQUIRE_LINK || p.CommandID == protocol.ENQUIRE_LINK_RESP {
		return
	}

	var sessionID uint64
	var systemID string
	if s != nil {
		sessionID = s.ID()
		systemID = s.SystemID()
	}

	info := extract(p)
	if !t.selected(sessionID, p, info) {
		return
	}

	e := &Entry{
		Time:      time.Now(),
		Direction: DirectionIn,
		SessionID: sessionID,
		SystemID:  systemID,
		Command:   p.CommandID.String(),
		Sequence:  p.SequenceNumber,
		Status:    uint32(p.CommandStatus),
		Source:    info.source,
		Dest:      info.dest,
		Raw:       append([]byte(nil), raw...),
	}
	if outgoing {
		e.Direction = DirectionOut
	}
	if info.content != nil && t.filter.contentEnabled() {
		e.Content = DecodeContent(info.content, info.dataCoding, info.udhi)
	}
	t.record(e)
}

// selected 号码过滤时，请求按号码选择，响应跟随已选中的请求
func (t *Tracer) selected(sessionID uint64, p *protocol.PDU, info pduInfo) bool {
	if !t.filter.filtering() {
		return true
	}

	key := pendingKey{sessionID, p.SequenceNumber}
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.IsResponse() {
		if _, ok := t.related[key]; ok {
			delete(t.related, key)
			return true
		}
		return false
	}
	if !t.filter.match(info.source, info.dest) && !t.filter.match(info.dests...) {
		return false
	}

	if len(t.related) >= maxRelated {
		cutoff := time.Now().Add(-relatedTTL)
		for k, at := range t.related {
			if at.Before(cutoff) {
				delete(t.related, k)
			}
		}
	}
	if len(t.related) < maxRelated {
		t.related[key] = time.Now()
	}
	return true
}

func (t *Tracer) record(e *Entry) {
	atomic.AddUint64(&t.traced, 1)
	t.recent.Store(e)

	if e.Content != "" {
		t.log.Info("%s %s seq=%d sys=%s %s -> %s: %s",
			e.Direction, e.Command, e.Sequence, e.SystemID, e.Source, e.Dest, e.Content)
		return
	}
	t.log.Info("%s %s seq=%d sys=%s status=%#x %s -> %s",
		e.Direction, e.Command, e.Sequence, e.SystemID, e.Status, e.Source, e.Dest)
}

// Query 按条件查询，按时间倒序
func (t *Tracer) Query(opts QueryOptions) []*Entry {
	return t.recent.Query(opts)
}

// Recent 最近的n条
func (t *Tracer) Recent(n int) []*Entry {
	return t.recent.Query(QueryOptions{Limit: n})
}

// Clear 清空已记录的条目
func (t *Tracer) Clear() {
	t.recent.Clear()
}

// AddNumber 添加跟踪号码
func (t *Tracer) AddNumber(number string) {
	t.filter.addNumber(number)
	t.log.Info("添加跟踪号码: %s", number)
}

// RemoveNumber 移除跟踪号码
func (t *Tracer) RemoveNumber(number string) bool {
	ok := t.filter.removeNumber(number)
	if ok {
		t.log.Info("移除跟踪号码: %s", number)
	}
	return ok
}

// Settings 当前设置
func (t *Tracer) Settings() Settings { return t.filter.settings() }

// Apply 替换运行时设置
func (t *Tracer) Apply(s Settings) {
	t.filter.apply(s)
	t.log.Info("跟踪设置已更新: 启用=%v 解析内容=%v 号码=%v", s.Enabled, s.ParseContent, s.Numbers)
}

// Stats 跟踪计数
func (t *Tracer) Stats() Stats {
	return Stats{
		Traced:   atomic.LoadUint64(&t.traced),
		Retained: t.recent.Len(),
	}
}

// pduInfo 从消息体中取出的号码和内容
type pduInfo struct {
	source     string
	dest       string
	dests      []string
	content    []byte
	dataCoding byte
	udhi       bool
}

func extract(p *protocol.PDU) pduInfo {
	var info pduInfo
	switch b := p.Body.(type) {
	case *protocol.SubmitSM:
		info = messageInfo(&b.MessageFields)
	case *protocol.DeliverSM:
		info = messageInfo(&b.MessageFields)
	case *protocol.SubmitMulti:
		info.source = b.Source.Addr
		for _, d := range b.Dests {
			if d.Address.Addr != "" {
				info.dests = append(info.dests, d.Address.Addr)
			}
		}
		info.content = b.ShortMessage
		info.dataCoding = b.DataCoding
		info.udhi = b.ESMClass&protocol.ESMClassUDHI != 0
	case *protocol.DataSM:
		info.source = b.Source.Addr
		info.dest = b.Dest.Addr
		info.dataCoding = b.DataCoding
		info.udhi = b.ESMClass&protocol.ESMClassUDHI != 0
	case *protocol.ReplaceSM:
		info.source = b.Source.Addr
		info.content = b.ShortMessage
	case *protocol.QuerySM:
		info.source = b.Source.Addr
	case *protocol.CancelSM:
		info.source = b.Source.Addr
		info.dest = b.Dest.Addr
	case *protocol.AlertNotification:
		info.source = b.Source.Addr
		info.dest = b.ESME.Addr
	}

	// 长消息放在message_payload里
	if len(info.content) == 0 {
		if tlv, ok := p.GetTLV(protocol.TagMessagePayload); ok {
			info.content = tlv.Value
		}
	}
	return info
}

func messageInfo(m *protocol.MessageFields) pduInfo {
	return pduInfo{
		source:     m.Source.Addr,
		dest:       m.Dest.Addr,
		content:    m.ShortMessage,
		dataCoding: m.DataCoding,
		udhi:       m.ESMClass&protocol.ESMClassUDHI != 0,
	}
}
