package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"smppgw/internal/metrics"
	"smppgw/internal/protocol"
	"smppgw/internal/session"
	"smppgw/pkg/logger"
)

func quietConfig(role session.Role) session.Config {
	cfg := session.DefaultConfig(role)
	cfg.EnquireLinkInterval = 0
	cfg.Metrics = metrics.New(gometrics.NewRegistry())
	cfg.Logger = logger.New("test", logger.CriticalLevel, io.Discard)
	return cfg
}

func startServer(t *testing.T, mod func(*ServerConfig), binds BindHandler, receiver ServerMessageReceiver) *Server {
	t.Helper()
	cfg := ServerConfig{
		ListenAddress: "127.0.0.1:0",
		SystemID:      "smsc",
		BindTimeout:   2 * time.Second,
		Session:       quietConfig(session.RoleSMSC),
	}
	if mod != nil {
		mod(&cfg)
	}
	srv := NewServer(cfg, binds, receiver)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func dialESME(t *testing.T, srv *Server, h session.Handler) *session.Session {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	esme := session.New(conn, quietConfig(session.RoleESME), h)
	esme.Start()
	t.Cleanup(func() { esme.Close() })
	return esme
}

func bindESME(t *testing.T, esme *session.Session, systemID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := esme.Bind(ctx, session.BindParams{Type: protocol.BindTransceiver, SystemID: systemID, Password: "pw"}, time.Second)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if resp.SystemID != "smsc" {
		t.Fatalf("bind_resp system_id = %q", resp.SystemID)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type recordingReceiver struct {
	UnimplementedReceiver
	mu      sync.Mutex
	submits []*protocol.SubmitSM
}

func (r *recordingReceiver) OnSubmitSM(_ *ServerSession, _ *protocol.PDU, sm *protocol.SubmitSM) (*protocol.SubmitSMResp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submits = append(r.submits, sm)
	if string(sm.ShortMessage) == "bad dest" {
		return nil, session.NewProcessRequestError(protocol.ESME_RINVDSTADR, errors.New("no route"))
	}
	return protocol.NewSubmitSMResp("msg-1"), nil
}

func submit(ctx context.Context, s *session.Session, text string) (*protocol.PDU, error) {
	sm := &protocol.SubmitSM{}
	sm.Source = protocol.Address{Addr: "1000"}
	sm.Dest = protocol.Address{Addr: "2000"}
	sm.ShortMessage = []byte(text)
	return s.SendRequest(ctx, protocol.NewRequest(0, sm), time.Second)
}

func TestServerBindAndSubmit(t *testing.T) {
	recv := &recordingReceiver{}
	srv := startServer(t, nil, nil, recv)
	esme := dialESME(t, srv, nil)
	bindESME(t, esme, "esme1")

	ctx := context.Background()
	resp, err := submit(ctx, esme, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if id := resp.Body.(*protocol.SubmitSMResp).MessageID; id != "msg-1" {
		t.Fatalf("message_id = %q", id)
	}

	_, err = submit(ctx, esme, "bad dest")
	var neg *session.NegativeResponseError
	if !errors.As(err, &neg) || neg.Status != protocol.ESME_RINVDSTADR {
		t.Fatalf("got %v", err)
	}

	sessions := srv.SessionManager().GetBySystemID("esme1")
	if len(sessions) != 1 || sessions[0].State() != session.StateBoundTRX {
		t.Fatalf("sessions = %v", sessions)
	}
	if n := srv.SessionManager().CountBySystemID("esme1"); n != 1 {
		t.Fatalf("CountBySystemID = %d", n)
	}
}

func TestServerDeliverSM(t *testing.T) {
	srv := startServer(t, nil, nil, nil)
	got := make(chan string, 1)
	esme := dialESME(t, srv, session.HandlerFunc(func(_ *session.Session, req *protocol.PDU) (protocol.Body, error) {
		got <- string(req.Body.(*protocol.DeliverSM).ShortMessage)
		return protocol.NewDeliverSMResp(""), nil
	}))
	bindESME(t, esme, "esme1")

	receivers := srv.SessionManager().Receivers("esme1")
	if len(receivers) != 1 {
		t.Fatalf("receivers = %d", len(receivers))
	}
	dm := &protocol.DeliverSM{}
	dm.ShortMessage = []byte("mo")
	if _, err := receivers[0].DeliverSM(context.Background(), dm); err != nil {
		t.Fatal(err)
	}
	if text := <-got; text != "mo" {
		t.Fatalf("delivered %q", text)
	}
}

func TestServerUnimplementedReceiver(t *testing.T) {
	srv := startServer(t, nil, nil, nil)
	esme := dialESME(t, srv, nil)
	bindESME(t, esme, "esme1")

	_, err := submit(context.Background(), esme, "x")
	var neg *session.NegativeResponseError
	if !errors.As(err, &neg) || neg.Status != protocol.ESME_RINVCMDID {
		t.Fatalf("got %v", err)
	}
}

func TestServerBindRejectThenRetry(t *testing.T) {
	var calls int32
	binds := BindHandlerFunc(func(req *session.BindRequest) protocol.CommandStatus {
		atomic.AddInt32(&calls, 1)
		if req.Bind.Password != "pw" {
			return protocol.ESME_RINVPASWD
		}
		return protocol.ESME_ROK
	})
	srv := startServer(t, nil, binds, nil)
	esme := dialESME(t, srv, nil)

	ctx := context.Background()
	_, err := esme.Bind(ctx, session.BindParams{SystemID: "esme1", Password: "wrong"}, time.Second)
	var neg *session.NegativeResponseError
	if !errors.As(err, &neg) || neg.Status != protocol.ESME_RINVPASWD {
		t.Fatalf("first bind: %v", err)
	}
	if esme.State() != session.StateOpen {
		t.Fatalf("state after reject = %s", esme.State())
	}

	bindESME(t, esme, "esme1")
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("bind handler called %d times", n)
	}
}

func TestServerBindTimeout(t *testing.T) {
	srv := startServer(t, func(c *ServerConfig) { c.BindTimeout = 50 * time.Millisecond }, nil, nil)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF after bind timeout, got %v", err)
	}
	waitFor(t, "bind timeout counter", func() bool { return srv.Stats().BindTimeouts == 1 })
	waitFor(t, "session removal", func() bool { return srv.SessionManager().Count() == 0 })
}

func TestServerMaxConnections(t *testing.T) {
	srv := startServer(t, func(c *ServerConfig) { c.MaxConnections = 1 }, nil, nil)
	first := dialESME(t, srv, nil)
	bindESME(t, first, "esme1")

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("second connection should be closed, got %v", err)
	}

	st := srv.Stats()
	if st.RejectedConnections != 1 || st.ActiveConnections != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func TestServerThrottle(t *testing.T) {
	srv := startServer(t, nil, nil, &recordingReceiver{})
	srv.SetThrottler(denyAll{})
	esme := dialESME(t, srv, nil)
	bindESME(t, esme, "esme1")

	_, err := submit(context.Background(), esme, "x")
	var neg *session.NegativeResponseError
	if !errors.As(err, &neg) || neg.Status != protocol.ESME_RTHROTTLED {
		t.Fatalf("got %v", err)
	}
	if n := srv.metrics.Throttled.Count(); n != 1 {
		t.Fatalf("throttled counter = %d", n)
	}
}

func TestServerStopUnbindsSessions(t *testing.T) {
	srv := startServer(t, nil, nil, nil)
	esme := dialESME(t, srv, nil)
	bindESME(t, esme, "esme1")

	srv.Stop()
	select {
	case <-esme.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("esme session not closed by server stop")
	}
	if err := esme.CloseCause(); err != nil {
		t.Fatalf("close cause = %v", err)
	}
	if n := srv.SessionManager().Count(); n != 0 {
		t.Fatalf("sessions after stop = %d", n)
	}
}

func TestServerCloseSession(t *testing.T) {
	srv := startServer(t, nil, nil, nil)
	esme := dialESME(t, srv, nil)
	bindESME(t, esme, "esme1")

	ss := srv.SessionManager().GetBySystemID("esme1")[0]
	if err := srv.SessionManager().CloseSession(context.Background(), ss.ID(), false); err != nil {
		t.Fatal(err)
	}
	if err := srv.SessionManager().CloseSession(context.Background(), ss.ID(), false); err == nil {
		t.Fatal("closing an unknown session should fail")
	}
	select {
	case <-esme.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("esme did not observe the close")
	}
}

func TestServerOutbind(t *testing.T) {
	srv := startServer(t, nil, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	esmeErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			esmeErr <- err
			return
		}
		esme := session.New(conn, quietConfig(session.RoleESME), nil)
		esme.Start()
		t.Cleanup(func() { esme.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ob, err := esme.WaitForOutbind(ctx)
		if err != nil {
			esmeErr <- err
			return
		}
		_, err = esme.Bind(ctx, session.BindParams{Type: protocol.BindReceiver, SystemID: ob.SystemID, Password: ob.Password}, time.Second)
		esmeErr <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ss, err := srv.Outbind(ctx, ln.Addr().String(), "esme9", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := <-esmeErr; err != nil {
		t.Fatalf("esme side: %v", err)
	}
	if ss.State() != session.StateBoundRX || ss.SystemID() != "esme9" {
		t.Fatalf("outbound session %s", ss)
	}
}

func TestDeliveryReceipt(t *testing.T) {
	sm := &protocol.SubmitSM{}
	sm.Source = protocol.Address{Addr: "1000"}
	sm.Dest = protocol.Address{Addr: "2000"}
	sm.ShortMessage = []byte("a fairly long message body here")

	at := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	dm, tlvs := NewDeliveryReceipt(sm, Receipt{MessageID: "42", State: protocol.StateDelivered, SubmitDate: at, DoneDate: at})

	want := "id:42 sub:001 dlvrd:001 submit date:2403051430 done date:2403051430 stat:DELIVRD err:000 text:a fairly long messag"
	if string(dm.ShortMessage) != want {
		t.Fatalf("receipt text\n got %q\nwant %q", dm.ShortMessage, want)
	}
	if dm.Source.Addr != "2000" || dm.Dest.Addr != "1000" || dm.ESMClass != protocol.ESMClassDeliveryReceipt {
		t.Fatalf("receipt header %+v", dm.MessageFields)
	}
	if tlvs[0].Tag != protocol.TagReceiptedMessageID || tlvs[0].CString() != "42" {
		t.Fatalf("receipted_message_id = %v", tlvs[0])
	}
	if st, _ := tlvs[1].Uint8(); st != byte(protocol.StateDelivered) {
		t.Fatalf("message_state = %d", st)
	}
}

func TestWantsReceipt(t *testing.T) {
	tests := []struct {
		reg   byte
		state protocol.MessageState
		want  bool
	}{
		{protocol.RegisteredDeliveryNone, protocol.StateDelivered, false},
		{protocol.RegisteredDeliveryAlways, protocol.StateDelivered, true},
		{protocol.RegisteredDeliveryFailure, protocol.StateDelivered, false},
		{protocol.RegisteredDeliveryFailure, protocol.StateUndeliverable, true},
		{0x11, protocol.StateExpired, true},
	}
	for _, tt := range tests {
		if got := WantsReceipt(tt.reg, tt.state); got != tt.want {
			t.Errorf("WantsReceipt(%#x, %s) = %v", tt.reg, tt.state, got)
		}
	}
}
