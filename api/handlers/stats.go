// api/handlers/stats.go
package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"

	"smppgw/internal/dispatcher"
	"smppgw/internal/metrics"
	"smppgw/internal/server"
	"smppgw/pkg/logger"
)

// StatsHandler 统计信息处理器
type StatsHandler struct {
	server     *server.Server
	dispatcher *dispatcher.MessageDispatcher
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewStatsHandler 创建统计信息处理器
func NewStatsHandler(srv *server.Server, d *dispatcher.MessageDispatcher, m *metrics.Metrics) *StatsHandler {
	if m == nil {
		m = metrics.Default()
	}
	return &StatsHandler{server: srv, dispatcher: d, metrics: m, log: logger.Named("admin")}
}

// SystemStatus 系统状态
type SystemStatus struct {
	Server     server.Stats      `json:"server"`
	Dispatcher *dispatcher.Stats `json:"dispatcher,omitempty"`
	Metrics    metrics.Snapshot  `json:"metrics"`
	System     SystemUsage       `json:"system"`
	SystemTime string            `json:"system_time"`
}

// SystemUsage 主机和进程资源使用情况
type SystemUsage struct {
	Hostname   string  `json:"hostname"`
	Uptime     uint64  `json:"uptime_seconds"`
	CPUCores   int     `json:"cpu_cores"`
	CPUPercent float64 `json:"cpu_percent"`
	MemTotal   uint64  `json:"mem_total"`
	MemUsed    uint64  `json:"mem_used"`
	MemPercent float64 `json:"mem_percent"`
	ProcessRSS uint64  `json:"process_rss"`
	ProcessCPU float64 `json:"process_cpu_percent"`
	Goroutines int     `json:"goroutines"`
	HeapAlloc  uint64  `json:"heap_alloc"`
	NumGC      uint32  `json:"num_gc"`
}

// GetStats 获取完整统计信息
func (h *StatsHandler) GetStats(c *gin.Context) {
	status := SystemStatus{
		Metrics:    h.metrics.Snapshot(),
		System:     h.systemUsage(),
		SystemTime: time.Now().Format(time.RFC3339),
	}
	if h.server != nil {
		status.Server = h.server.Stats()
	}
	if h.dispatcher != nil {
		ds := h.dispatcher.Stats()
		status.Dispatcher = &ds
	}
	c.JSON(http.StatusOK, status)
}

// GetRealtimeStats 仪表盘轮询用的精简统计
func (h *StatsHandler) GetRealtimeStats(c *gin.Context) {
	snap := h.metrics.Snapshot()
	usage := h.systemUsage()

	stats := gin.H{
		"active_sessions":     snap.ActiveSessions,
		"bound_sessions":      snap.BoundSessions,
		"pdus_in_per_second":  snap.RateIn1m,
		"pdus_out_per_second": snap.RateOut1m,
		"latency_p99_ms":      snap.LatencyP99Ms,
		"cpu_usage":           usage.CPUPercent,
		"memory_usage":        usage.MemPercent,
	}
	if h.server != nil {
		stats["active_connections"] = h.server.Stats().ActiveConnections
	}
	c.JSON(http.StatusOK, stats)
}

// systemUsage 采集失败的项保持零值，只记录日志
func (h *StatsHandler) systemUsage() SystemUsage {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	u := SystemUsage{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		NumGC:      ms.NumGC,
	}

	if info, err := host.Info(); err == nil {
		u.Hostname = info.Hostname
		u.Uptime = info.Uptime
	} else {
		h.log.Debug("获取主机信息失败: %v", err)
	}

	// 间隔为0时与上次调用比较，不阻塞请求
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		u.CPUPercent = pct[0]
	} else if err != nil {
		h.log.Debug("获取CPU使用率失败: %v", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		u.MemTotal = vm.Total
		u.MemUsed = vm.Used
		u.MemPercent = vm.UsedPercent
	} else {
		h.log.Debug("获取内存使用率失败: %v", err)
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			u.ProcessRSS = mi.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			u.ProcessCPU = pct
		}
	}
	return u
}
