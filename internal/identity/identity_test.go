package identity

import (
	"encoding/base64"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/IshaanNene/martstalk/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAcquireNoProviders(t *testing.T) {
	pool, err := NewPool(config.IdentityConfig{}, testLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if id := pool.Acquire(); id != nil {
		t.Errorf("expected nil identity from empty pool, got provider %q", id.Provider)
	}
	if pool.Enabled() {
		t.Error("empty pool reports Enabled")
	}
}

func TestAcquireSkipsDisabledProviders(t *testing.T) {
	cfg := config.IdentityConfig{
		Providers: []config.ProviderConfig{
			{Name: "off", Enabled: false, Endpoints: []string{"proxy-a:8080"}},
			{Name: "on", Enabled: true, Endpoints: []string{"proxy-b:8080"}},
		},
	}
	pool, err := NewPool(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	for i := 0; i < 50; i++ {
		id := pool.Acquire()
		if id == nil {
			t.Fatal("expected identity, got nil")
		}
		if id.Provider != "on" {
			t.Fatalf("acquired disabled provider %q", id.Provider)
		}
	}
}

func TestAcquireCoversAllEndpoints(t *testing.T) {
	cfg := config.IdentityConfig{
		Providers: []config.ProviderConfig{
			{
				Name:      "multi",
				Enabled:   true,
				Endpoints: []string{"ep-1:8080", "ep-2:8080", "ep-3:8080"},
			},
		},
	}
	pool, err := NewPool(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		seen[pool.Acquire().Endpoint.Host] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all 3 endpoints to be selected over 200 draws, got %d", len(seen))
	}
}

func TestBasicAuthHeaderRoundTrip(t *testing.T) {
	cfg := config.IdentityConfig{
		Providers: []config.ProviderConfig{
			{
				Name:      "auth",
				Enabled:   true,
				Endpoints: []string{"proxy:3128"},
				Username:  "cust-user",
				Password:  "s3cret",
			},
		},
	}
	pool, err := NewPool(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	id := pool.Acquire()
	if !strings.HasPrefix(id.AuthHeader, "Basic ") {
		t.Fatalf("auth header %q missing Basic prefix", id.AuthHeader)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(id.AuthHeader, "Basic "))
	if err != nil {
		t.Fatalf("decode auth header: %v", err)
	}
	if string(decoded) != "cust-user:s3cret" {
		t.Errorf("decoded credentials = %q, want %q", decoded, "cust-user:s3cret")
	}
}

func TestProxyProjectionsAgree(t *testing.T) {
	cfg := config.IdentityConfig{
		Providers: []config.ProviderConfig{
			{
				Name:      "p",
				Enabled:   true,
				Endpoints: []string{"http://gw.example.net:7777"},
				Username:  "u",
				Password:  "pw",
			},
		},
	}
	pool, err := NewPool(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	id := pool.Acquire()

	pu := id.ProxyURL()
	if pu.Host != "gw.example.net:7777" {
		t.Errorf("ProxyURL host = %q", pu.Host)
	}
	if pu.User == nil {
		t.Fatal("ProxyURL missing userinfo")
	}
	if pw, _ := pu.User.Password(); pu.User.Username() != "u" || pw != "pw" {
		t.Errorf("ProxyURL userinfo = %v", pu.User)
	}

	bp := id.BrowserProxy()
	if bp.Server != "http://gw.example.net:7777" {
		t.Errorf("BrowserProxy server = %q", bp.Server)
	}
	if bp.Username != "u" || bp.Password != "pw" {
		t.Errorf("BrowserProxy credentials = %q/%q", bp.Username, bp.Password)
	}
	// Both projections must point at the same endpoint.
	if !strings.Contains(bp.Server, pu.Host) {
		t.Errorf("projections disagree: %q vs %q", bp.Server, pu.Host)
	}
}

func TestTunnelHeaderRandomResolved(t *testing.T) {
	cfg := config.IdentityConfig{
		Providers: []config.ProviderConfig{
			{
				Name:      "tun",
				Enabled:   true,
				Endpoints: []string{"proxy:8080"},
				Headers:   map[string]string{TunnelHeader: "random"},
			},
		},
	}
	pool, err := NewPool(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	id := pool.Acquire()
	v := id.Headers[TunnelHeader]
	if v == "random" {
		t.Fatal("tunnel header literal 'random' was not resolved")
	}
	if _, err := strconv.Atoi(v); err != nil {
		t.Errorf("tunnel header %q is not numeric", v)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "bare host port", raw: "proxy.example.com:8080", want: "http://proxy.example.com:8080"},
		{name: "full url", raw: "http://proxy.example.com:8080", want: "http://proxy.example.com:8080"},
		{name: "credentials stripped", raw: "http://u:p@proxy.example.com:8080", want: "http://proxy.example.com:8080"},
		{name: "empty", raw: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := parseEndpoint(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint(%q): %v", tt.raw, err)
			}
			if u.String() != tt.want {
				t.Errorf("parseEndpoint(%q) = %q, want %q", tt.raw, u.String(), tt.want)
			}
		})
	}
}
