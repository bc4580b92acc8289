// cmd/benchmark/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rcrowley/go-metrics"
	"golang.org/x/time/rate"

	"smppgw/internal/client"
	"smppgw/internal/protocol"
	"smppgw/internal/session"
	"smppgw/pkg/logger"
)

// 测试配置
type BenchmarkConfig struct {
	SMSCAddr string
	SystemID string
	Password string

	Connections    int
	Workers        int
	MessageRate    int
	TestDuration   time.Duration
	MessageSize    int
	TestType       string // submit或data
	WithReceipt    bool
	ReportInterval time.Duration
}

// 测试指标
type BenchmarkMetrics struct {
	SubmitCounter   metrics.Counter
	SubmitRate      metrics.Meter
	ReceiptCounter  metrics.Counter
	ReceiptRate     metrics.Meter
	ResponseLatency metrics.Timer
	ErrorCounter    metrics.Counter
	ThrottleCounter metrics.Counter
}

func NewBenchmarkMetrics() *BenchmarkMetrics {
	return &BenchmarkMetrics{
		SubmitCounter:   metrics.NewCounter(),
		SubmitRate:      metrics.NewMeter(),
		ReceiptCounter:  metrics.NewCounter(),
		ReceiptRate:     metrics.NewMeter(),
		ResponseLatency: metrics.NewTimer(),
		ErrorCounter:    metrics.NewCounter(),
		ThrottleCounter: metrics.NewCounter(),
	}
}

// receiptCounter 统计收到的状态报告
type receiptCounter struct {
	client.NopReceiver
	m *BenchmarkMetrics
}

func (r receiptCounter) OnDeliverSM(c *client.Client, req *protocol.PDU, dm *protocol.DeliverSM) (*protocol.DeliverSMResp, error) {
	if client.IsDeliveryReceipt(dm) {
		r.m.ReceiptCounter.Inc(1)
		r.m.ReceiptRate.Mark(1)
	}
	return r.NopReceiver.OnDeliverSM(c, req, dm)
}

func main() {
	cfg := parseFlags()
	logger.Init("smppgw_benchmark")

	m := NewBenchmarkMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessCfg := session.DefaultConfig(session.RoleESME)
	pool, err := client.NewConnectionPool(ctx, client.Config{
		Address:  cfg.SMSCAddr,
		SystemID: cfg.SystemID,
		Password: cfg.Password,
		BindType: "trx",
		Session:  sessCfg,
	}, cfg.Connections, receiptCounter{m: m})
	if err != nil {
		logger.Fatal("建立连接池失败: %v", err)
	}

	logger.Info("开始性能测试，类型=%s, 连接=%d, 并发=%d, 速率=%d msg/s, 持续=%s",
		cfg.TestType, cfg.Connections, cfg.Workers, cfg.MessageRate, cfg.TestDuration)

	stopReport := make(chan struct{})
	go reportMetrics(m, cfg.ReportInterval, stopReport)

	limit := rate.Inf
	if cfg.MessageRate > 0 {
		limit = rate.Limit(cfg.MessageRate)
	}
	limiter := rate.NewLimiter(limit, cfg.Workers)
	text := []byte(strings.Repeat("ABCDEFGHIJKLMNOPQRSTUVWXYZ", cfg.MessageSize/26+1)[:cfg.MessageSize])

	testCtx := ctx
	if cfg.TestDuration > 0 {
		var testCancel context.CancelFunc
		testCtx, testCancel = context.WithTimeout(ctx, cfg.TestDuration)
		defer testCancel()
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(testCtx, pool, limiter, cfg, m, text)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-testCtx.Done():
		logger.Info("测试时间到达 %s，正在停止测试...", cfg.TestDuration)
	case sig := <-sigCh:
		logger.Info("收到信号 %s，正在停止测试...", sig)
		cancel()
	}
	wg.Wait()

	// 给状态报告留出回送时间
	if cfg.WithReceipt {
		time.Sleep(2 * time.Second)
	}
	close(stopReport)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool.Close(closeCtx)
	closeCancel()

	printFinalResults(m)
	logger.Info("测试已完成")
}

func parseFlags() *BenchmarkConfig {
	cfg := &BenchmarkConfig{}

	flag.StringVar(&cfg.SMSCAddr, "addr", "localhost:2775", "SMSC服务器地址")
	flag.StringVar(&cfg.SystemID, "system", "esme1", "系统ID")
	flag.StringVar(&cfg.Password, "password", "secret1", "密码")
	flag.IntVar(&cfg.Connections, "conns", 4, "连接数")
	flag.IntVar(&cfg.Workers, "workers", 16, "并发提交数")
	flag.IntVar(&cfg.MessageRate, "rate", 100, "每秒消息数，0为不限制")
	flag.DurationVar(&cfg.TestDuration, "duration", 60*time.Second, "测试持续时间")
	flag.IntVar(&cfg.MessageSize, "size", 140, "消息大小(字节)")
	flag.StringVar(&cfg.TestType, "type", "submit", "测试类型: submit/data")
	flag.BoolVar(&cfg.WithReceipt, "receipt", true, "请求状态报告")
	flag.DurationVar(&cfg.ReportInterval, "interval", 5*time.Second, "报告间隔")
	flag.Parse()

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MessageSize <= 0 {
		cfg.MessageSize = 1
	}
	return cfg
}

func runWorker(ctx context.Context, pool *client.ConnectionPool, limiter *rate.Limiter, cfg *BenchmarkConfig, m *BenchmarkMetrics, text []byte) {
	var registered byte
	if cfg.WithReceipt {
		registered = protocol.RegisteredDeliveryAlways
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		start := time.Now()
		err := send(ctx, pool, cfg.TestType, registered, text)
		m.ResponseLatency.UpdateSince(start)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var neg *session.NegativeResponseError
			if errors.As(err, &neg) && neg.Status == protocol.ESME_RTHROTTLED {
				m.ThrottleCounter.Inc(1)
			}
			m.ErrorCounter.Inc(1)
			logger.Debug("发送失败: %v", err)
			continue
		}
		m.SubmitCounter.Inc(1)
		m.SubmitRate.Mark(1)
	}
}

func send(ctx context.Context, pool *client.ConnectionPool, testType string, registered byte, text []byte) error {
	src := protocol.Address{TON: 1, NPI: 1, Addr: "10086"}
	dst := protocol.Address{TON: 1, NPI: 1, Addr: "8613800000000"}

	if testType == "data" {
		c, err := pool.Get(ctx)
		if err != nil {
			return err
		}
		_, err = c.DataSM(ctx, &protocol.DataSM{
			Source:             src,
			Dest:               dst,
			RegisteredDelivery: registered,
		}, protocol.TLV{Tag: protocol.TagMessagePayload, Value: text})
		return err
	}

	sm := &protocol.SubmitSM{}
	sm.Source = src
	sm.Dest = dst
	sm.RegisteredDelivery = registered
	sm.ShortMessage = text
	if len(text) > 254 {
		sm.ShortMessage = nil
		_, err := pool.SubmitSM(ctx, sm, protocol.TLV{Tag: protocol.TagMessagePayload, Value: text})
		return err
	}
	_, err := pool.SubmitSM(ctx, sm)
	return err
}

func reportMetrics(m *BenchmarkMetrics, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printMetrics(m)
		case <-stop:
			return
		}
	}
}

func printMetrics(m *BenchmarkMetrics) {
	logger.Info("=== 性能测试指标 ===")
	logger.Info("发送总数: %d, 发送速率: %.2f msg/s", m.SubmitCounter.Count(), m.SubmitRate.Rate1())
	logger.Info("状态报告: %d, 速率: %.2f msg/s", m.ReceiptCounter.Count(), m.ReceiptRate.Rate1())
	logger.Info("平均延迟: %.2f ms, P95延迟: %.2f ms, P99延迟: %.2f ms",
		m.ResponseLatency.Mean()/float64(time.Millisecond),
		m.ResponseLatency.Percentile(0.95)/float64(time.Millisecond),
		m.ResponseLatency.Percentile(0.99)/float64(time.Millisecond))
	logger.Info("错误总数: %d, 其中限流: %d", m.ErrorCounter.Count(), m.ThrottleCounter.Count())
}

func printFinalResults(m *BenchmarkMetrics) {
	logger.Info("=== 测试最终结果 ===")

	total := m.SubmitCounter.Count()
	logger.Info("成功提交: %d", total)
	logger.Info("平均速率: %.2f msg/s", m.SubmitRate.RateMean())
	logger.Info("状态报告: %d", m.ReceiptCounter.Count())

	ms := float64(time.Millisecond)
	logger.Info("最小延迟: %.2f ms", float64(m.ResponseLatency.Min())/ms)
	logger.Info("最大延迟: %.2f ms", float64(m.ResponseLatency.Max())/ms)
	logger.Info("平均延迟: %.2f ms", m.ResponseLatency.Mean()/ms)
	ps := m.ResponseLatency.Percentiles([]float64{0.5, 0.9, 0.95, 0.99})
	logger.Info("P50/P90/P95/P99延迟: %.2f/%.2f/%.2f/%.2f ms", ps[0]/ms, ps[1]/ms, ps[2]/ms, ps[3]/ms)

	errs := m.ErrorCounter.Count()
	errorRate := float64(0)
	if total+errs > 0 {
		errorRate = float64(errs) / float64(total+errs) * 100
	}
	logger.Info("错误总数: %d, 错误率: %.2f%%, 限流: %d", errs, errorRate, m.ThrottleCounter.Count())
}
