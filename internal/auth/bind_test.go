package auth

import (
	"context"
	"errors"
	"io"
	"net"
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

// bindThrough 让ESME向SMSC发起绑定，SMSC端由h决定
func bindThrough(t *testing.T, h *AuthBindHandler, systemID, password string) error {
	t.Helper()
	smscConn, esmeConn := net.Pipe()
	smsc := session.New(smscConn, quietConfig(session.RoleSMSC), nil)
	esme := session.New(esmeConn, quietConfig(session.RoleESME), nil)
	smsc.Start()
	esme.Start()
	t.Cleanup(func() {
		esme.Close()
		smsc.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		req, err := smsc.WaitForBind(ctx)
		if err != nil {
			return
		}
		if st := h.AuthorizeBind(req); st != protocol.ESME_ROK {
			req.Reject(st)
			return
		}
		req.Accept("smsc")
	}()

	_, err := esme.Bind(ctx, session.BindParams{
		Type:       protocol.BindTransceiver,
		SystemID:   systemID,
		Password:   password,
		SystemType: "VMA",
	}, time.Second)
	return err
}

func TestAuthBindHandler(t *testing.T) {
	a := newTestAuthenticator(false)
	a.RegisterAccount(&Account{SystemID: "typed", Password: "pw", SystemType: "OTHER"})
	a.RegisterAccount(&Account{SystemID: "single", Password: "pw", MaxSessions: 1})

	active := map[string]int{"single": 1}
	h := NewAuthBindHandler(a, func(id string) int { return active[id] })

	tests := []struct {
		systemID, password string
		status             protocol.CommandStatus
	}{
		{"esme1", "pw1", protocol.ESME_ROK},
		{"ghost", "pw1", protocol.ESME_RINVSYSID},
		{"esme1", "nope", protocol.ESME_RINVPASWD},
		{"esme2", "pw2", protocol.ESME_RBINDFAIL}, // net.Pipe没有IP
		{"typed", "pw", protocol.ESME_RINVSYSTYP},
		{"single", "pw", protocol.ESME_RBINDFAIL},
	}

	for _, tt := range tests {
		t.Run(tt.systemID+"/"+tt.password, func(t *testing.T) {
			err := bindThrough(t, h, tt.systemID, tt.password)
			if tt.status == protocol.ESME_ROK {
				if err != nil {
					t.Fatalf("bind failed: %v", err)
				}
				return
			}
			var neg *session.NegativeResponseError
			if !errors.As(err, &neg) || neg.Status != tt.status {
				t.Fatalf("got %v, want %s", err, tt.status)
			}
		})
	}
}
