// cmd/smpp_client/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"smppgw/internal/client"
	"smppgw/internal/protocol"
	"smppgw/internal/session"
	"smppgw/pkg/logger"
)

// receiptPrinter 打印收到的状态报告和上行短信
type receiptPrinter struct {
	receipts int32
}

func (r *receiptPrinter) OnDeliverSM(_ *client.Client, req *protocol.PDU, dm *protocol.DeliverSM) (*protocol.DeliverSMResp, error) {
	if client.IsDeliveryReceipt(dm) {
		fields := client.ParseReceipt(string(dm.ShortMessage))
		logger.Info("状态报告: id=%s stat=%s err=%s done=%s",
			client.ReceiptMessageID(req), fields["stat"], fields["err"], fields["done_date"])
		atomic.AddInt32(&r.receipts, 1)
	} else {
		logger.Info("上行短信 %s -> %s: %s", dm.Source.Addr, dm.Dest.Addr, dm.ShortMessage)
	}
	return protocol.NewDeliverSMResp(""), nil
}

func (r *receiptPrinter) OnDataSM(_ *client.Client, _ *protocol.PDU, dm *protocol.DataSM) (*protocol.DataSMResp, error) {
	logger.Info("收到data_sm %s -> %s", dm.Source.Addr, dm.Dest.Addr)
	return protocol.NewDataSMResp(""), nil
}

func (r *receiptPrinter) OnAlertNotification(_ *client.Client, an *protocol.AlertNotification) {
	logger.Info("alert_notification: %s", an.ESME.Addr)
}

func main() {
	address := flag.String("address", "localhost:2775", "服务器地址")
	systemID := flag.String("system-id", "esme1", "系统ID")
	password := flag.String("password", "secret1", "密码")
	bindType := flag.String("bind", "trx", "绑定类型 tx/rx/trx")
	src := flag.String("src", "10086", "源号码")
	dst := flag.String("dst", "8613800000000", "目的号码")
	text := flag.String("text", "hello", "短信内容")
	count := flag.Int("count", 1, "提交条数，rx绑定时忽略")
	wait := flag.Duration("wait", 10*time.Second, "等待状态报告的时间")
	flag.Parse()

	logger.Init("smpp_client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := client.Config{
		Address:  *address,
		SystemID: *systemID,
		Password: *password,
		BindType: *bindType,
		Session:  session.DefaultConfig(session.RoleESME),
	}
	bt, err := client.ParseBindType(*bindType)
	if err != nil {
		logger.Fatal("%v", err)
	}

	logger.Info("正在连接到 %s...", *address)
	recv := &receiptPrinter{}
	c, err := client.Connect(ctx, cfg, recv)
	if err != nil {
		logger.Fatal("绑定失败: %v", err)
	}
	logger.Info("绑定成功！状态 %s", c.State())

	submitted := 0
	if bt != protocol.BindReceiver {
		for i := 0; i < *count; i++ {
			sm := &protocol.SubmitSM{}
			sm.Source = protocol.Address{TON: 1, NPI: 1, Addr: *src}
			sm.Dest = protocol.Address{TON: 1, NPI: 1, Addr: *dst}
			sm.RegisteredDelivery = protocol.RegisteredDeliveryAlways
			sm.ShortMessage = []byte(*text)

			resp, err := c.SubmitSM(ctx, sm)
			if err != nil {
				logger.Error("提交失败: %v", err)
				continue
			}
			submitted++
			logger.Info("提交成功, message_id=%s", resp.MessageID)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// rx绑定时一直等待到收到信号
	var timeout <-chan time.Time
	if submitted > 0 {
		timeout = time.After(*wait)
	}
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

loop:
	for {
		select {
		case <-sigCh:
			break loop
		case <-c.Done():
			logger.Warning("连接已被对端关闭")
			return
		case <-timeout:
			logger.Warning("等待状态报告超时")
			break loop
		case <-tick.C:
			if submitted > 0 && int(atomic.LoadInt32(&recv.receipts)) >= submitted {
				break loop
			}
		}
	}

	st := c.Stats()
	logger.Info("已提交 %d 条, 收到状态报告 %d 条, 统计 %+v", submitted, atomic.LoadInt32(&recv.receipts), st)

	unbindCtx, unbindCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer unbindCancel()
	if err := c.UnbindAndClose(unbindCtx); err != nil {
		logger.Warning("解绑失败: %v", err)
	}
}
