package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"smppgw/internal/protocol"
)

func newTestAuthenticator(whitelist bool) *Authenticator {
	a := NewAuthenticator(nil, whitelist)
	a.RegisterAccount(&Account{SystemID: "esme1", Password: "pw1"})
	a.RegisterAccount(&Account{SystemID: "esme2", Password: "pw2", IPAddresses: []string{"10.0.0.0/8", "192.168.1.5"}})
	return a
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuthenticator(false)

	tests := []struct {
		systemID, password, ip string
		want                   error
		status                 protocol.CommandStatus
	}{
		{"esme1", "pw1", "1.2.3.4", nil, protocol.ESME_ROK},
		{"nobody", "pw1", "1.2.3.4", ErrUnknownSystemID, protocol.ESME_RINVSYSID},
		{"esme1", "bad", "1.2.3.4", ErrInvalidPassword, protocol.ESME_RINVPASWD},
		{"esme2", "pw2", "10.1.2.3", nil, protocol.ESME_ROK},
		{"esme2", "pw2", "192.168.1.5", nil, protocol.ESME_ROK},
		{"esme2", "pw2", "192.168.1.6", ErrIPNotAllowed, protocol.ESME_RBINDFAIL},
		{"esme2", "pw2", "", ErrIPNotAllowed, protocol.ESME_RBINDFAIL},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%s", tt.systemID, tt.ip), func(t *testing.T) {
			_, err := a.Authenticate(tt.systemID, tt.password, net.ParseIP(tt.ip))
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if s := BindStatus(err); s != tt.status {
				t.Fatalf("BindStatus = %s, want %s", s, tt.status)
			}
		})
	}
}

func TestGlobalWhitelist(t *testing.T) {
	a := newTestAuthenticator(true)
	if _, err := a.Authenticate("esme1", "pw1", net.ParseIP("8.8.8.8")); err != nil {
		t.Fatalf("empty whitelist should allow all: %v", err)
	}

	if err := a.Whitelist().Add("172.16.0.0/12"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Authenticate("esme1", "pw1", net.ParseIP("8.8.8.8")); !errors.Is(err, ErrIPNotAllowed) {
		t.Fatalf("got %v", err)
	}
	if _, err := a.Authenticate("esme1", "pw1", net.ParseIP("172.20.1.1")); err != nil {
		t.Fatalf("got %v", err)
	}
}

func TestWhitelistEntries(t *testing.T) {
	w := NewIPWhitelist()
	if err := w.Add("not-an-ip"); err == nil {
		t.Fatal("invalid entry accepted")
	}
	if err := w.Replace([]string{"127.0.0.1", "::1", "10.0.0.0/8"}); err != nil {
		t.Fatal(err)
	}
	want := "[127.0.0.1/32 ::1/128 10.0.0.0/8]"
	if got := fmt.Sprint(w.Entries()); got != want {
		t.Fatalf("Entries = %s", got)
	}
	if !w.Check(net.ParseIP("10.9.9.9")) || w.Check(net.ParseIP("11.0.0.1")) {
		t.Fatal("Check mismatch")
	}
	w.Clear()
	if !w.Check(net.ParseIP("11.0.0.1")) {
		t.Fatal("cleared whitelist should allow all")
	}
}

func TestHostIP(t *testing.T) {
	if ip := hostIP("10.0.0.1:2775"); !ip.Equal(net.ParseIP("10.0.0.1")) {
		t.Fatalf("hostIP = %v", ip)
	}
	if ip := hostIP("[::1]:2775"); !ip.Equal(net.ParseIP("::1")) {
		t.Fatalf("hostIP = %v", ip)
	}
	if ip := hostIP("pipe"); ip != nil {
		t.Fatalf("hostIP = %v", ip)
	}
}

func TestRateLimiter(t *testing.T) {
	r := NewRateLimiter()
	if !r.Allow("free") {
		t.Fatal("account without limit must be allowed")
	}

	r.SetLimit("slow", 2)
	allowed := 0
	for i := 0; i < 10; i++ {
		if r.Allow("slow") {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed %d of 10 with burst 2", allowed)
	}

	r.SetEnabled(false)
	if !r.Allow("slow") {
		t.Fatal("disabled limiter must allow")
	}
	r.SetEnabled(true)
	r.Remove("slow")
	if !r.Allow("slow") {
		t.Fatal("removed limit must allow")
	}
}

func TestAccountsWithoutDatabase(t *testing.T) {
	a := newTestAuthenticator(false)
	ctx := context.Background()

	if err := a.LoadAccountsFromDB(ctx); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("LoadAccountsFromDB = %v", err)
	}

	if err := a.SaveAccount(ctx, &Account{SystemID: "esme0", Password: "x", FlowControl: 1}); err != nil {
		t.Fatal(err)
	}
	accs := a.Accounts()
	if len(accs) != 3 || accs[0].SystemID != "esme0" {
		t.Fatalf("Accounts = %v", accs)
	}
	if !a.Limiter().Allow("esme0") || a.Limiter().Allow("esme0") {
		t.Fatal("flow control not applied on save")
	}

	if err := a.DeleteAccount(ctx, "esme0"); err != nil {
		t.Fatal(err)
	}
	if err := a.DeleteAccount(ctx, "esme0"); !errors.Is(err, ErrUnknownSystemID) {
		t.Fatalf("second delete = %v", err)
	}
}
