// internal/metrics/metrics.go
package metrics

import (
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"smppgw/pkg/logger"
)

// Metrics SMPP会话指标收集器
type Metrics struct {
	Registry gometrics.Registry

	// 收发PDU总数与速率
	PDUsIn      gometrics.Counter
	PDUsOut     gometrics.Counter
	PDURateIn   gometrics.Meter
	PDURateOut  gometrics.Meter
	BytesIn     gometrics.Counter
	BytesOut    gometrics.Counter
	RequestTime gometrics.Timer

	// 异常情况
	ResponseTimeouts     gometrics.Counter
	NegativeResponses    gometrics.Counter
	UnsolicitedResponses gometrics.Counter
	FramingErrors        gometrics.Counter
	HandlerErrors        gometrics.Counter
	Throttled            gometrics.Counter
	KeepaliveFailures    gometrics.Counter

	// 会话
	ActiveSessions gometrics.Counter
	BoundSessions  gometrics.Counter
	BindRejects    gometrics.Counter

	StartTime time.Time
}

// 全局指标实例
var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// Default 获取全局指标实例
func Default() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = New(gometrics.NewRegistry())
	})
	return globalMetrics
}

// New 在registry上注册一组指标
func New(registry gometrics.Registry) *Metrics {
	m := &Metrics{
		Registry:             registry,
		PDUsIn:               gometrics.NewCounter(),
		PDUsOut:              gometrics.NewCounter(),
		PDURateIn:            gometrics.NewMeter(),
		PDURateOut:           gometrics.NewMeter(),
		BytesIn:              gometrics.NewCounter(),
		BytesOut:             gometrics.NewCounter(),
		RequestTime:          gometrics.NewTimer(),
		ResponseTimeouts:     gometrics.NewCounter(),
		NegativeResponses:    gometrics.NewCounter(),
		UnsolicitedResponses: gometrics.NewCounter(),
		FramingErrors:        gometrics.NewCounter(),
		HandlerErrors:        gometrics.NewCounter(),
		Throttled:            gometrics.NewCounter(),
		KeepaliveFailures:    gometrics.NewCounter(),
		ActiveSessions:       gometrics.NewCounter(),
		BoundSessions:        gometrics.NewCounter(),
		BindRejects:          gometrics.NewCounter(),
		StartTime:            time.Now(),
	}

	registry.Register("pdu.in.count", m.PDUsIn)
	registry.Register("pdu.out.count", m.PDUsOut)
	registry.Register("pdu.in.rate", m.PDURateIn)
	registry.Register("pdu.out.rate", m.PDURateOut)
	registry.Register("bytes.in", m.BytesIn)
	registry.Register("bytes.out", m.BytesOut)
	registry.Register("request.latency", m.RequestTime)
	registry.Register("response.timeouts", m.ResponseTimeouts)
	registry.Register("response.negative", m.NegativeResponses)
	registry.Register("response.unsolicited", m.UnsolicitedResponses)
	registry.Register("errors.framing", m.FramingErrors)
	registry.Register("errors.handler", m.HandlerErrors)
	registry.Register("requests.throttled", m.Throttled)
	registry.Register("keepalive.failures", m.KeepaliveFailures)
	registry.Register("sessions.active", m.ActiveSessions)
	registry.Register("sessions.bound", m.BoundSessions)
	registry.Register("bind.rejects", m.BindRejects)

	return m
}

// RecordIn 记录收到的PDU
func (m *Metrics) RecordIn(size int) {
	m.PDUsIn.Inc(1)
	m.PDURateIn.Mark(1)
	m.BytesIn.Inc(int64(size))
}

// RecordOut 记录发出的PDU
func (m *Metrics) RecordOut(size int) {
	m.PDUsOut.Inc(1)
	m.PDURateOut.Mark(1)
	m.BytesOut.Inc(int64(size))
}

// Snapshot 指标快照，供管理接口输出
type Snapshot struct {
	Uptime               string  `json:"uptime"`
	PDUsIn               int64   `json:"pdus_in"`
	PDUsOut              int64   `json:"pdus_out"`
	RateIn1m             float64 `json:"rate_in_1m"`
	RateOut1m            float64 `json:"rate_out_1m"`
	BytesIn              int64   `json:"bytes_in"`
	BytesOut             int64   `json:"bytes_out"`
	LatencyMeanMs        float64 `json:"latency_mean_ms"`
	LatencyP99Ms         float64 `json:"latency_p99_ms"`
	ResponseTimeouts     int64   `json:"response_timeouts"`
	NegativeResponses    int64   `json:"negative_responses"`
	UnsolicitedResponses int64   `json:"unsolicited_responses"`
	FramingErrors        int64   `json:"framing_errors"`
	HandlerErrors        int64   `json:"handler_errors"`
	Throttled            int64   `json:"throttled"`
	KeepaliveFailures    int64   `json:"keepalive_failures"`
	ActiveSessions       int64   `json:"active_sessions"`
	BoundSessions        int64   `json:"bound_sessions"`
	BindRejects          int64   `json:"bind_rejects"`
}

// Snapshot 获取当前指标
func (m *Metrics) Snapshot() Snapshot {
	latency := m.RequestTime.Snapshot()
	return Snapshot{
		Uptime:               time.Since(m.StartTime).Truncate(time.Second).String(),
		PDUsIn:               m.PDUsIn.Count(),
		PDUsOut:              m.PDUsOut.Count(),
		RateIn1m:             m.PDURateIn.Rate1(),
		RateOut1m:            m.PDURateOut.Rate1(),
		BytesIn:              m.BytesIn.Count(),
		BytesOut:             m.BytesOut.Count(),
		LatencyMeanMs:        latency.Mean() / float64(time.Millisecond),
		LatencyP99Ms:         latency.Percentile(0.99) / float64(time.Millisecond),
		ResponseTimeouts:     m.ResponseTimeouts.Count(),
		NegativeResponses:    m.NegativeResponses.Count(),
		UnsolicitedResponses: m.UnsolicitedResponses.Count(),
		FramingErrors:        m.FramingErrors.Count(),
		HandlerErrors:        m.HandlerErrors.Count(),
		Throttled:            m.Throttled.Count(),
		KeepaliveFailures:    m.KeepaliveFailures.Count(),
		ActiveSessions:       m.ActiveSessions.Count(),
		BoundSessions:        m.BoundSessions.Count(),
		BindRejects:          m.BindRejects.Count(),
	}
}

// StartReporter 启动指标报告器，stop关闭后退出
func (m *Metrics) StartReporter(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Log(logger.Named("metrics"))
			case <-stop:
				return
			}
		}
	}()
}

// Log 输出关键指标
func (m *Metrics) Log(log *logger.Logger) {
	s := m.Snapshot()
	log.Info("--- 会话指标 (运行时间: %s) ---", s.Uptime)
	log.Info("PDU 收: %d (%.2f/s), 发: %d (%.2f/s)", s.PDUsIn, s.RateIn1m, s.PDUsOut, s.RateOut1m)
	log.Info("请求平均延迟: %.2fms, 99分位: %.2fms", s.LatencyMeanMs, s.LatencyP99Ms)
	log.Info("响应超时: %d, 负响应: %d, 未匹配响应: %d, 帧错误: %d",
		s.ResponseTimeouts, s.NegativeResponses, s.UnsolicitedResponses, s.FramingErrors)
	log.Info("活跃会话: %d, 已绑定: %d, 绑定拒绝: %d, 限流: %d",
		s.ActiveSessions, s.BoundSessions, s.BindRejects, s.Throttled)
}
