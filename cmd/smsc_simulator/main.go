// cmd/smsc_simulator/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"smppgw/internal/dispatcher"
	"smppgw/internal/server"
	"smppgw/internal/session"
	"smppgw/pkg/logger"
)

// routeFlags 可重复的 -route 前缀=系统ID
type routeFlags []dispatcher.Route

func (r *routeFlags) String() string {
	parts := make([]string, 0, len(*r))
	for _, rt := range *r {
		parts = append(parts, rt.Prefix+"="+rt.SystemID)
	}
	return strings.Join(parts, ",")
}

func (r *routeFlags) Set(v string) error {
	prefix, systemID, ok := strings.Cut(v, "=")
	if !ok || prefix == "" || systemID == "" {
		return fmt.Errorf("路由格式应为 前缀=系统ID: %q", v)
	}
	*r = append(*r, dispatcher.Route{Prefix: prefix, SystemID: systemID})
	return nil
}

func main() {
	listen := flag.String("listen", ":2775", "监听地址")
	systemID := flag.String("system-id", "smsc_sim", "本端系统ID")
	delay := flag.Duration("delay", time.Second, "模拟投递延迟")
	enquire := flag.Duration("enquire-link", 30*time.Second, "链路检测间隔，0为关闭")
	debug := flag.Bool("debug", false, "输出调试日志")
	var routes routeFlags
	flag.Var(&routes, "route", "路由规则 前缀=系统ID，可重复")
	flag.Parse()

	logger.Init("smsc_simulator")
	if *debug {
		logger.SetLevel(logger.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := dispatcher.NewMessageDispatcher(dispatcher.Config{
		DeliveryDelay: *delay,
		Routes:        routes,
	})

	sessCfg := session.DefaultConfig(session.RoleSMSC)
	sessCfg.EnquireLinkInterval = *enquire

	// 模拟器接受任意账户的绑定
	srv := server.NewServer(server.ServerConfig{
		ListenAddress: *listen,
		SystemID:      *systemID,
		BindTimeout:   30 * time.Second,
		Session:       sessCfg,
	}, nil, d)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("无法监听 %s: %v", *listen, err)
	}
	if err := d.Start(ctx, srv.SessionManager()); err != nil {
		logger.Fatal("启动消息分发器失败: %v", err)
	}
	logger.Info("SMSC模拟器正在监听 %s, 投递延迟 %s, 路由 [%s]", srv.Addr(), *delay, routes.String())

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-ticker.C:
			st := d.Stats()
			logger.Info("会话 %d, 已接收 %d, 已投递 %d, 投递失败 %d, 队列 %d",
				srv.SessionManager().Count(), st.Accepted, st.Delivered, st.Undeliverable, st.QueueSize)
		case <-sigCh:
			logger.Info("收到信号，正在关闭...")
			srv.Stop()
			d.Stop()
			return
		}
	}
}
