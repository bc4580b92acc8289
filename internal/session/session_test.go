package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"smppgw/internal/metrics"
	"smppgw/internal/protocol"
	"smppgw/pkg/logger"
)

func testConfig(role Role) Config {
	cfg := DefaultConfig(role)
	cfg.EnquireLinkInterval = 0
	cfg.RequestTimeout = 2 * time.Second
	cfg.DrainTimeout = time.Second
	cfg.Metrics = metrics.New(gometrics.NewRegistry())
	cfg.Logger = logger.New("test", logger.CriticalLevel, io.Discard)
	return cfg
}

// rawPeer 直接读写帧的对端
type rawPeer struct {
	t      *testing.T
	conn   net.Conn
	frames chan *protocol.PDU
}

func newRawPeer(t *testing.T, conn net.Conn) *rawPeer {
	p := &rawPeer{t: t, conn: conn, frames: make(chan *protocol.PDU, 64)}
	go func() {
		defer close(p.frames)
		for {
			frame, err := protocol.ReadFrame(conn, 0)
			if err != nil {
				return
			}
			pdu, err := protocol.Decode(frame, 0)
			if err != nil {
				return
			}
			p.frames <- pdu
		}
	}()
	return p
}

func (p *rawPeer) send(pdu *protocol.PDU) {
	p.t.Helper()
	if err := protocol.WriteFrame(p.conn, pdu); err != nil {
		p.t.Fatalf("raw write: %v", err)
	}
}

func (p *rawPeer) next() *protocol.PDU {
	p.t.Helper()
	select {
	case pdu, ok := <-p.frames:
		if !ok {
			p.t.Fatal("connection closed while waiting for a frame")
		}
		return pdu
	case <-time.After(2 * time.Second):
		p.t.Fatal("timed out waiting for a frame")
	}
	return nil
}

// startBoundSMSC 启动一个SMSC会话，对端为rawPeer，并完成收发器绑定
func startBoundSMSC(t *testing.T, cfg Config, h Handler) (*Session, *rawPeer) {
	t.Helper()
	a, b := net.Pipe()
	s := New(a, cfg, h)
	s.Start()
	t.Cleanup(func() { s.closeWith(nil); b.Close() })

	peer := newRawPeer(t, b)
	go func() {
		req, err := s.WaitForBind(context.Background())
		if err == nil {
			req.Accept("smsc")
		}
	}()
	peer.send(protocol.NewRequest(1, &protocol.Bind{
		Type: protocol.BindTransceiver, SystemID: "esme", Password: "pw", InterfaceVersion: protocol.IF_VERSION_34,
	}))
	if resp := peer.next(); resp.CommandID != protocol.BIND_TRANSCEIVER_RESP || resp.CommandStatus != protocol.ESME_ROK {
		t.Fatalf("unexpected bind response %v", resp)
	}
	return s, peer
}

func submit(seq uint32, text string) *protocol.PDU {
	return protocol.NewRequest(seq, &protocol.SubmitSM{MessageFields: protocol.MessageFields{
		Source:       protocol.Address{Addr: "100"},
		Dest:         protocol.Address{Addr: "200"},
		ShortMessage: []byte(text),
	}})
}

// pair 启动一对ESME/SMSC会话
func pair(t *testing.T, esmeCfg, smscCfg Config, esmeH, smscH Handler) (*Session, *Session) {
	t.Helper()
	a, b := net.Pipe()
	esme := New(a, esmeCfg, esmeH)
	smsc := New(b, smscCfg, smscH)
	esme.Start()
	smsc.Start()
	t.Cleanup(func() {
		esme.closeWith(nil)
		smsc.closeWith(nil)
	})
	return esme, smsc
}

func TestBindAccept(t *testing.T) {
	esme, smsc := pair(t, testConfig(RoleESME), testConfig(RoleSMSC), nil, nil)

	go func() {
		req, err := smsc.WaitForBind(context.Background())
		if err != nil {
			return
		}
		if req.Bind.SystemID != "test" || req.Bind.Password != "test" {
			req.Reject(protocol.ESME_RINVPASWD)
			return
		}
		req.Accept("sys")
	}()

	resp, err := esme.Bind(context.Background(), BindParams{
		Type: protocol.BindTransceiver, SystemID: "test", Password: "test",
	}, time.Second)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if resp.SystemID != "sys" {
		t.Errorf("system_id = %q, want sys", resp.SystemID)
	}
	if esme.State() != StateBoundTRX {
		t.Errorf("esme state = %s", esme.State())
	}
	if esme.InterfaceVersion() != protocol.IF_VERSION_34 {
		t.Errorf("negotiated version = %s", esme.InterfaceVersion())
	}

	deadline := time.Now().Add(time.Second)
	for smsc.State() != StateBoundTRX && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if smsc.State() != StateBoundTRX || smsc.SystemID() != "test" {
		t.Errorf("smsc state = %s system_id = %q", smsc.State(), smsc.SystemID())
	}
}

func TestBindReject(t *testing.T) {
	esme, smsc := pair(t, testConfig(RoleESME), testConfig(RoleSMSC), nil, nil)

	go func() {
		req, err := smsc.WaitForBind(context.Background())
		if err == nil {
			req.Reject(protocol.ESME_RINVPASWD)
			if err := req.Accept("late"); err == nil {
				t.Error("second decision must fail")
			}
		}
	}()

	_, err := esme.Bind(context.Background(), BindParams{
		Type: protocol.BindTransceiver, SystemID: "test", Password: "wrong",
	}, time.Second)

	var neg *NegativeResponseError
	if !errors.As(err, &neg) || neg.Status != protocol.ESME_RINVPASWD {
		t.Fatalf("expected ESME_RINVPASWD, got %v", err)
	}
	if esme.State() != StateOpen {
		t.Errorf("esme state = %s, want OPEN", esme.State())
	}
	if smsc.State() != StateOpen {
		t.Errorf("smsc state = %s, want OPEN", smsc.State())
	}
}

func TestVersionNegotiation33(t *testing.T) {
	esmeCfg := testConfig(RoleESME)
	esmeCfg.InterfaceVersion = protocol.IF_VERSION_33
	esme, smsc := pair(t, esmeCfg, testConfig(RoleSMSC), nil, nil)

	go func() {
		if req, err := smsc.WaitForBind(context.Background()); err == nil {
			req.Accept("sys")
		}
	}()
	if _, err := esme.Bind(context.Background(), BindParams{Type: protocol.BindTransmitter, SystemID: "a"}, time.Second); err != nil {
		t.Fatal(err)
	}
	if esme.InterfaceVersion() != protocol.IF_VERSION_33 {
		t.Errorf("esme version = %s", esme.InterfaceVersion())
	}
	if esme.State() != StateBoundTX {
		t.Errorf("state = %s", esme.State())
	}
}

func TestSubmitIllegalBeforeBind(t *testing.T) {
	esme, _ := pair(t, testConfig(RoleESME), testConfig(RoleSMSC), nil, nil)

	_, err := esme.SendRequest(context.Background(), submit(0, "hi"), time.Second)
	var ie *IllegalStateError
	if !errors.As(err, &ie) || ie.State != StateOpen {
		t.Fatalf("expected IllegalStateError in OPEN, got %v", err)
	}
}

func TestSubmitRoundTrip(t *testing.T) {
	handler := HandlerFunc(func(s *Session, req *protocol.PDU) (protocol.Body, error) {
		sm := req.Body.(*protocol.SubmitSM)
		if string(sm.ShortMessage) == "fail" {
			return nil, NewProcessRequestError(protocol.ESME_RINVDSTADR, errors.New("bad route"))
		}
		return protocol.NewSubmitSMResp("id-" + string(sm.ShortMessage)), nil
	})
	esme, smsc := pair(t, testConfig(RoleESME), testConfig(RoleSMSC), nil, handler)
	go func() {
		if req, err := smsc.WaitForBind(context.Background()); err == nil {
			req.Accept("sys")
		}
	}()
	if _, err := esme.Bind(context.Background(), BindParams{Type: protocol.BindTransmitter}, time.Second); err != nil {
		t.Fatal(err)
	}

	resp, err := esme.SendRequest(context.Background(), submit(0, "ok"), time.Second)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id := resp.Body.(*protocol.SubmitSMResp).MessageID; id != "id-ok" {
		t.Errorf("message_id = %q", id)
	}

	_, err = esme.SendRequest(context.Background(), submit(0, "fail"), time.Second)
	var neg *NegativeResponseError
	if !errors.As(err, &neg) || neg.Status != protocol.ESME_RINVDSTADR {
		t.Fatalf("expected ESME_RINVDSTADR, got %v", err)
	}
}

func TestResponseOrderSerialProcessor(t *testing.T) {
	cfg := testConfig(RoleSMSC)
	cfg.ProcessorDegree = 1
	handler := HandlerFunc(func(s *Session, req *protocol.PDU) (protocol.Body, error) {
		if string(req.Body.(*protocol.SubmitSM).ShortMessage) == "A" {
			time.Sleep(30 * time.Millisecond)
		}
		return nil, nil
	})
	_, peer := startBoundSMSC(t, cfg, handler)

	peer.send(submit(10, "A"))
	peer.send(submit(11, "B"))
	if r := peer.next(); r.SequenceNumber != 10 {
		t.Fatalf("first response seq = %d, want 10", r.SequenceNumber)
	}
	if r := peer.next(); r.SequenceNumber != 11 {
		t.Fatalf("second response seq = %d, want 11", r.SequenceNumber)
	}
}

func TestResponseOrderParallelProcessor(t *testing.T) {
	cfg := testConfig(RoleSMSC)
	cfg.ProcessorDegree = 4
	firstSeen := make(chan struct{})
	handler := HandlerFunc(func(s *Session, req *protocol.PDU) (protocol.Body, error) {
		text := string(req.Body.(*protocol.SubmitSM).ShortMessage)
		if text == "A" {
			<-firstSeen
		}
		return protocol.NewSubmitSMResp(text), nil
	})
	_, peer := startBoundSMSC(t, cfg, handler)

	peer.send(submit(20, "A"))
	peer.send(submit(21, "B"))

	first := peer.next()
	close(firstSeen)
	second := peer.next()
	if first.SequenceNumber != 21 || second.SequenceNumber != 20 {
		t.Fatalf("order = %d, %d; want 21, 20", first.SequenceNumber, second.SequenceNumber)
	}
	if first.Body.(*protocol.SubmitSMResp).MessageID != "B" || second.Body.(*protocol.SubmitSMResp).MessageID != "A" {
		t.Fatal("responses not matched to their own sequence numbers")
	}
}

func TestHandlerPanicBecomesSystemError(t *testing.T) {
	handler := HandlerFunc(func(s *Session, req *protocol.PDU) (protocol.Body, error) {
		panic("boom")
	})
	_, peer := startBoundSMSC(t, testConfig(RoleSMSC), handler)

	peer.send(submit(5, "x"))
	r := peer.next()
	if r.CommandID != protocol.SUBMIT_SM_RESP || r.CommandStatus != protocol.ESME_RSYSERR || r.SequenceNumber != 5 {
		t.Fatalf("unexpected response %v", r)
	}
}

func TestUnknownCommandGetsGenericNack(t *testing.T) {
	_, peer := startBoundSMSC(t, testConfig(RoleSMSC), nil)

	peer.send(&protocol.PDU{
		Header: protocol.Header{SequenceNumber: 33},
		Body:   &protocol.Unknown{ID: 0x00000999, Data: []byte{1}},
	})
	r := peer.next()
	if r.CommandID != protocol.GENERIC_NACK || r.CommandStatus != protocol.ESME_RINVCMDID || r.SequenceNumber != 33 {
		t.Fatalf("unexpected response %v", r)
	}
}

func TestInboundIllegalStateRejectedInline(t *testing.T) {
	a, b := net.Pipe()
	s := New(a, testConfig(RoleSMSC), HandlerFunc(func(*Session, *protocol.PDU) (protocol.Body, error) {
		t.Error("handler must not run before bind")
		return nil, nil
	}))
	s.Start()
	defer s.closeWith(nil)
	peer := newRawPeer(t, b)

	peer.send(submit(2, "early"))
	r := peer.next()
	if r.CommandID != protocol.SUBMIT_SM_RESP || r.CommandStatus != protocol.ESME_RINVBNDSTS {
		t.Fatalf("unexpected response %v", r)
	}
}

func TestRequestNeverSentByRoleGetsInvalidCommandID(t *testing.T) {
	_, peer := startBoundSMSC(t, testConfig(RoleSMSC), nil)

	// ESME不能发起deliver_sm
	peer.send(protocol.NewRequest(6, &protocol.DeliverSM{}))
	r := peer.next()
	if r.CommandID != protocol.DELIVER_SM_RESP || r.CommandStatus != protocol.ESME_RINVCMDID || r.SequenceNumber != 6 {
		t.Fatalf("unexpected response %v", r)
	}
}

func TestFullProcessorQueueDoesNotBlockReader(t *testing.T) {
	cfg := testConfig(RoleSMSC)
	cfg.ProcessorDegree = 1
	cfg.ProcessorQueueSize = 1
	release := make(chan struct{})
	defer close(release)
	handler := HandlerFunc(func(s *Session, req *protocol.PDU) (protocol.Body, error) {
		<-release
		return protocol.NewSubmitSMResp("m"), nil
	})
	s, peer := startBoundSMSC(t, cfg, handler)

	for seq := uint32(2); seq <= 4; seq++ {
		peer.send(submit(seq, "x"))
	}
	peer.send(protocol.NewRequest(5, &protocol.EnquireLink{}))

	throttled := 0
	for {
		r := peer.next()
		if r.CommandID == protocol.ENQUIRE_LINK_RESP {
			if r.SequenceNumber != 5 {
				t.Fatalf("enquire_link_resp seq = %d", r.SequenceNumber)
			}
			break
		}
		if r.CommandID != protocol.SUBMIT_SM_RESP || r.CommandStatus != protocol.ESME_RTHROTTLED {
			t.Fatalf("unexpected response %v", r)
		}
		throttled++
	}
	if throttled == 0 {
		t.Fatal("no request was throttled while the queue was full")
	}
	if n := s.metrics.Throttled.Count(); n != int64(throttled) {
		t.Errorf("throttled metric = %d, want %d", n, throttled)
	}
}

func TestBindRespPrecedesWritesFromListeners(t *testing.T) {
	a, b := net.Pipe()
	s := New(a, testConfig(RoleSMSC), nil)

	heldDuringBind := make(chan bool, 1)
	s.AddStateListener(StateListenerFunc(func(s *Session, newState, oldState State) {
		if !newState.IsBound() {
			return
		}
		held := !s.writeMu.TryLock()
		if !held {
			s.writeMu.Unlock()
		}
		heldDuringBind <- held
		// 绑定后立即下发的消息不能早于bind_resp
		go s.writePDU(protocol.NewRequest(100, &protocol.DeliverSM{}))
	}))
	s.Start()
	t.Cleanup(func() { s.closeWith(nil); b.Close() })
	peer := newRawPeer(t, b)

	go func() {
		if req, err := s.WaitForBind(context.Background()); err == nil {
			req.Accept("smsc")
		}
	}()
	peer.send(protocol.NewRequest(1, &protocol.Bind{
		Type: protocol.BindTransceiver, SystemID: "esme", InterfaceVersion: protocol.IF_VERSION_34,
	}))

	if r := peer.next(); r.CommandID != protocol.BIND_TRANSCEIVER_RESP {
		t.Fatalf("first frame %v, want bind_transceiver_resp", r)
	}
	if r := peer.next(); r.CommandID != protocol.DELIVER_SM || r.SequenceNumber != 100 {
		t.Fatalf("second frame %v", r)
	}
	if !<-heldDuringBind {
		t.Error("write lock not held across the bound transition")
	}
}

func TestEnquireLinkAnsweredInline(t *testing.T) {
	a, b := net.Pipe()
	s := New(a, testConfig(RoleSMSC), nil)
	s.Start()
	defer s.closeWith(nil)
	peer := newRawPeer(t, b)

	peer.send(protocol.NewRequest(9, &protocol.EnquireLink{}))
	r := peer.next()
	if r.CommandID != protocol.ENQUIRE_LINK_RESP || r.SequenceNumber != 9 {
		t.Fatalf("unexpected response %v", r)
	}
}

func TestFramingErrorClosesSession(t *testing.T) {
	a, b := net.Pipe()
	s := New(a, testConfig(RoleSMSC), nil)
	s.Start()

	var (
		mu     sync.Mutex
		closed bool
	)
	s.AddStateListener(StateListenerFunc(func(sess *Session, n, o State) {
		if n == StateClosed {
			mu.Lock()
			closed = sess.CloseCause() != nil
			mu.Unlock()
		}
	}))

	go io.Copy(io.Discard, b)
	// command_length 8, smaller than the header
	b.Write([]byte{0, 0, 0, 8, 0, 0, 0, 0x15, 0, 0, 0, 0, 0, 0, 0, 1})

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed on framing error")
	}
	if !errors.Is(s.CloseCause(), protocol.ErrFraming) {
		t.Fatalf("cause = %v", s.CloseCause())
	}
	mu.Lock()
	defer mu.Unlock()
	if !closed {
		t.Fatal("listener did not see the close cause")
	}
}

func TestKeepaliveSuccess(t *testing.T) {
	cfg := testConfig(RoleESME)
	cfg.EnquireLinkInterval = 40 * time.Millisecond
	cfg.EnquireLinkTimeout = 30 * time.Millisecond

	a, b := net.Pipe()
	s := New(a, cfg, nil)
	s.Start()
	defer s.closeWith(nil)
	peer := newRawPeer(t, b)

	for i := 0; i < 3; i++ {
		req := peer.next()
		if req.CommandID != protocol.ENQUIRE_LINK {
			t.Fatalf("expected enquire_link, got %v", req)
		}
		peer.send(protocol.NewResponse(req, protocol.ESME_ROK, nil))
	}
	if s.State() == StateClosed {
		t.Fatalf("session closed: %v", s.CloseCause())
	}
}

func TestKeepaliveTimeoutsCloseSession(t *testing.T) {
	cfg := testConfig(RoleESME)
	cfg.EnquireLinkInterval = 40 * time.Millisecond
	cfg.EnquireLinkTimeout = 30 * time.Millisecond
	cfg.MaxEnquireLinkMisses = 2

	a, b := net.Pipe()
	s := New(a, cfg, nil)
	s.Start()
	peer := newRawPeer(t, b)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not closed after missed keepalives")
	}
	if !errors.Is(s.CloseCause(), ErrKeepaliveFailed) {
		t.Fatalf("cause = %v", s.CloseCause())
	}

	n := 0
	for pdu := range peer.frames {
		if pdu.CommandID == protocol.ENQUIRE_LINK {
			n++
		}
	}
	if n != 2 {
		t.Errorf("sent %d enquire_link, want 2", n)
	}
}

func TestPeerUnbind(t *testing.T) {
	s, peer := startBoundSMSC(t, testConfig(RoleSMSC), nil)

	peer.send(protocol.NewRequest(40, &protocol.Unbind{}))
	r := peer.next()
	if r.CommandID != protocol.UNBIND_RESP || r.CommandStatus != protocol.ESME_ROK || r.SequenceNumber != 40 {
		t.Fatalf("unexpected response %v", r)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed after unbind")
	}
	if s.CloseCause() != nil {
		t.Errorf("graceful unbind recorded cause %v", s.CloseCause())
	}
}

func TestLocalUnbind(t *testing.T) {
	esme, smsc := pair(t, testConfig(RoleESME), testConfig(RoleSMSC), nil, nil)
	go func() {
		if req, err := smsc.WaitForBind(context.Background()); err == nil {
			req.Accept("sys")
		}
	}()
	if _, err := esme.Bind(context.Background(), BindParams{Type: protocol.BindTransceiver}, time.Second); err != nil {
		t.Fatal(err)
	}

	var states []State
	var mu sync.Mutex
	esme.AddStateListener(StateListenerFunc(func(_ *Session, n, _ State) {
		mu.Lock()
		states = append(states, n)
		mu.Unlock()
	}))

	if err := esme.Unbind(context.Background()); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	<-smsc.Done()
	esme.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != StateUnbound || states[1] != StateClosed {
		t.Fatalf("transitions = %v", states)
	}
	if esme.CloseCause() != nil {
		t.Errorf("cause = %v", esme.CloseCause())
	}
}

func TestCloseReleasesPendingCallers(t *testing.T) {
	a, b := net.Pipe()
	s := New(a, testConfig(RoleESME), nil)
	s.Start()
	newRawPeer(t, b)

	errc := make(chan error, 1)
	go func() {
		_, err := s.request(context.Background(), protocol.NewRequest(0, &protocol.EnquireLink{}), 5*time.Second)
		errc <- err
	}()

	deadline := time.Now().Add(time.Second)
	for s.pending.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending caller not released")
	}
}

func TestUnsolicitedResponseDiscarded(t *testing.T) {
	cfg := testConfig(RoleESME)
	a, b := net.Pipe()
	s := New(a, cfg, nil)
	s.Start()
	defer s.closeWith(nil)
	peer := newRawPeer(t, b)

	peer.send(&protocol.PDU{Header: protocol.Header{SequenceNumber: 77}, Body: &protocol.EnquireLinkResp{}})
	peer.send(protocol.NewRequest(78, &protocol.EnquireLink{}))
	peer.next()

	if n := cfg.Metrics.UnsolicitedResponses.Count(); n != 1 {
		t.Fatalf("unsolicited count = %d", n)
	}
	if s.State() == StateClosed {
		t.Fatal("unsolicited response must not close the session")
	}
}

func TestOutbind(t *testing.T) {
	esme, smsc := pair(t, testConfig(RoleESME), testConfig(RoleSMSC), nil, nil)

	if err := smsc.Outbind("smsc", "pw"); err != nil {
		t.Fatalf("Outbind: %v", err)
	}
	if smsc.State() != StateOutbound {
		t.Fatalf("smsc state = %s", smsc.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ob, err := esme.WaitForOutbind(ctx)
	if err != nil {
		t.Fatalf("WaitForOutbind: %v", err)
	}
	if ob.SystemID != "smsc" || esme.State() != StateOutbound {
		t.Fatalf("outbind %+v state %s", ob, esme.State())
	}

	go func() {
		if req, err := smsc.WaitForBind(ctx); err == nil {
			req.Accept("smsc")
		}
	}()
	if _, err := esme.Bind(ctx, BindParams{Type: protocol.BindReceiver, SystemID: "esme"}, time.Second); err != nil {
		t.Fatalf("Bind after outbind: %v", err)
	}
	if esme.State() != StateBoundRX {
		t.Fatalf("esme state = %s", esme.State())
	}
}

func TestWaitForBindTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	s := New(a, testConfig(RoleSMSC), nil)
	s.Start()
	defer s.closeWith(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.WaitForBind(ctx); !errors.Is(err, ErrBindTimeout) {
		t.Fatalf("expected ErrBindTimeout, got %v", err)
	}
}
