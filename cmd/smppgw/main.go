package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smppgw/api"
	"smppgw/internal/auth"
	"smppgw/internal/config"
	"smppgw/internal/database"
	"smppgw/internal/dispatcher"
	"smppgw/internal/metrics"
	"smppgw/internal/server"
	"smppgw/internal/tracer"
	"smppgw/pkg/logger"
)

func main() {
	configFile := flag.String("config", "configs/smppgw.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("加载配置文件失败: %v\n", err)
		os.Exit(1)
	}

	lc, err := cfg.Log.LoggerConfig()
	if err == nil {
		err = logger.InitWithConfig("smppgw", lc)
	}
	if err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.Info("SMPP网关启动中, 版本: %s", cfg.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 数据库可选，未启用时账户来自配置文件
	var dbManager *database.Manager
	var accountManager *auth.AccountManager
	authenticator := auth.NewAuthenticator(nil, cfg.Auth.IPWhitelist)
	if cfg.Database.Enabled {
		dbManager = database.NewManager(cfg.Database)
		if err := dbManager.Connect(ctx); err != nil {
			log.Fatal("连接数据库失败: %v", err)
		}
		defer dbManager.Close()

		if err := database.Migrate(ctx, dbManager.DB()); err != nil {
			log.Fatal("数据库迁移失败: %v", err)
		}

		authenticator = auth.NewAuthenticator(dbManager.DB(), cfg.Auth.IPWhitelist)
		accountManager = auth.NewAccountManager(authenticator, cfg.Auth.ReloadInterval)
	}

	for i := range cfg.Auth.Accounts {
		authenticator.RegisterAccount(&cfg.Auth.Accounts[i])
	}
	if err := authenticator.Whitelist().Replace(cfg.Auth.Whitelist); err != nil {
		log.Fatal("加载IP白名单失败: %v", err)
	}
	if accountManager != nil {
		if err := accountManager.Start(ctx); err != nil {
			log.Error("从数据库加载账户失败: %v", err)
		}
		defer accountManager.Stop()
	}

	m := metrics.Default()
	cfg.Server.Session.Metrics = m

	protoTracer := tracer.New(cfg.Trace)
	cfg.Server.Session.Tracer = protoTracer

	msgDispatcher := dispatcher.NewMessageDispatcher(cfg.Dispatch)

	var smsc *server.Server
	binds := auth.NewAuthBindHandler(authenticator, func(systemID string) int {
		return smsc.SessionManager().CountBySystemID(systemID)
	})
	smsc = server.NewServer(*cfg.Server, binds, msgDispatcher)
	smsc.SetThrottler(authenticator.Limiter())

	if err := smsc.Start(ctx); err != nil {
		log.Fatal("启动SMPP服务失败: %v", err)
	}
	if err := msgDispatcher.Start(ctx, smsc.SessionManager()); err != nil {
		log.Fatal("启动消息分发器失败: %v", err)
	}

	stopReporter := make(chan struct{})
	m.StartReporter(cfg.Metrics.ReportInterval, stopReporter)

	var admin *api.Server
	if cfg.Admin.Enabled {
		admin = api.NewServer(cfg.Admin, api.Deps{
			SMSC:       smsc,
			Auth:       authenticator,
			Dispatcher: msgDispatcher,
			Metrics:    m,
			Tracer:     protoTracer,
		})
		if err := admin.Start(); err != nil {
			log.Error("启动管理接口失败: %v", err)
			admin = nil
		}
	}

	log.Info("SMPP网关已启动, 监听地址: %s", smsc.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("接收到信号 %s，开始优雅关闭...", sig)

	if admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := admin.Stop(shutdownCtx); err != nil {
			log.Warning("关闭管理接口失败: %v", err)
		}
		shutdownCancel()
	}

	// 先解绑所有会话，再停止分发
	smsc.Stop()
	msgDispatcher.Stop()
	close(stopReporter)
	cancel()

	m.Log(logger.Named("metrics"))
	log.Info("SMPP网关已关闭")
}
