package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"smppgw/internal/protocol"
	"smppgw/internal/session"
)

func TestParseSecondsAndSections(t *testing.T) {
	cfg, err := Parse([]byte(`
session:
  interface_version: 0x33
  request_timeout: 3
  enquire_link_interval: 15
  max_pending: 10
server:
  listen_address: 127.0.0.1:3000
  system_id: GW
  bind_timeout: 7
client:
  system_id: esme
  bind_type: tx
  reconnect_interval: 2
database:
  conn_max_lifetime: 60
metrics:
  report_interval: 30
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.BindTimeout != 7*time.Second || cfg.Server.SystemID != "GW" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Client.ReconnectInterval != 2*time.Second {
		t.Errorf("client.reconnect_interval = %v", cfg.Client.ReconnectInterval)
	}
	if cfg.Database.ConnMaxLifetime != time.Minute {
		t.Errorf("database.conn_max_lifetime = %v", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Metrics.ReportInterval != 30*time.Second {
		t.Errorf("metrics.report_interval = %v", cfg.Metrics.ReportInterval)
	}

	s := cfg.Server.Session
	if s.Role != session.RoleSMSC || s.InterfaceVersion != protocol.IF_VERSION_33 {
		t.Errorf("server session role/version = %s/%s", s.Role, s.InterfaceVersion)
	}
	if s.RequestTimeout != 3*time.Second || s.EnquireLinkInterval != 15*time.Second || s.MaxPending != 10 {
		t.Errorf("server session = %+v", s)
	}
	// 未配置的项保持会话默认值
	if s.WriteTimeout != 5*time.Second || s.ProcessorDegree != 4 {
		t.Errorf("defaults lost: %+v", s)
	}
	if cfg.Client.Session.Role != session.RoleESME {
		t.Errorf("client session role = %s", cfg.Client.Session.Role)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:2775" || cfg.Server.BindTimeout != 30*time.Second {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Database.Enabled || cfg.Database.Port != 3306 {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Admin.TokenTTL != 24*time.Hour || cfg.Auth.ReloadInterval != 5*time.Minute {
		t.Errorf("ttl defaults = %v %v", cfg.Admin.TokenTTL, cfg.Auth.ReloadInterval)
	}
	if cfg.Server.Session.EnquireLinkInterval != 30*time.Second {
		t.Errorf("keepalive default = %v", cfg.Server.Session.EnquireLinkInterval)
	}
	if cfg.Trace.Enabled || cfg.Trace.MaxRecent != 1000 {
		t.Errorf("trace defaults = %+v", cfg.Trace)
	}
}

func TestDisableEnquireLink(t *testing.T) {
	cfg, err := Parse([]byte("session:\n  disable_enquire_link: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Session.EnquireLinkInterval != 0 {
		t.Fatalf("keepalive still enabled: %v", cfg.Server.Session.EnquireLinkInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		yaml, field string
	}{
		{"log:\n  level: loud\n", "log.level"},
		{"log:\n  output: syslog\n", "log.output"},
		{"session:\n  interface_version: 0x50\n", "session.interface_version"},
		{"client:\n  bind_type: both\n", "client.bind_type"},
		{"admin:\n  enabled: true\n", "admin.jwt_secret"},
		{"auth:\n  whitelist: [10.0.0.0/33]\n", "auth.whitelist"},
		{"dispatcher:\n  routes:\n    - prefix: \"86\"\n", "dispatcher.routes[0]"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.yaml))
		if err == nil || !strings.Contains(err.Error(), tt.field) {
			t.Errorf("%q: got %v, want error on %s", tt.yaml, err, tt.field)
		}
	}
}

func TestLoadSampleConfig(t *testing.T) {
	_, file, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(file), "..", "..", "configs", "smppgw.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Auth.Accounts) != 2 || cfg.Auth.Accounts[1].MaxSessions != 2 {
		t.Fatalf("accounts = %+v", cfg.Auth.Accounts)
	}
	if cfg.Client.SubmitRate != 100 || cfg.Admin.TokenTTL != 24*time.Hour {
		t.Fatalf("client/admin = %+v %+v", cfg.Client, cfg.Admin)
	}
	if cfg.Dispatch.DeliveryDelay != time.Second || len(cfg.Dispatch.Routes) != 1 || cfg.Dispatch.Routes[0].SystemID != "esme2" {
		t.Fatalf("dispatcher = %+v", cfg.Dispatch)
	}
	lc, err := cfg.Log.LoggerConfig()
	if err != nil || lc.Output != "console" {
		t.Fatalf("LoggerConfig = %+v, %v", lc, err)
	}
}
