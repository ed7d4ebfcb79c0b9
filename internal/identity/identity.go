package identity

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/IshaanNene/martstalk/internal/config"
)

// TunnelHeader carries the session hint some proxy providers use to pin
// or rotate exit IPs. A configured value of "random" is resolved to a
// fresh numeric id on each Acquire.
const TunnelHeader = "Proxy-Tunnel"

// Fingerprint is the browser-side half of an identity: everything the
// rendered page can observe about the client.
type Fingerprint struct {
	UserAgent          string
	Locale             string
	Timezone           string
	DisableGeolocation bool
	ViewportWidth      int
	ViewportHeight     int
}

// BrowserProxy is the decomposed proxy form the browser context needs:
// server without embedded credentials, credentials separate.
type BrowserProxy struct {
	Server   string
	Username string
	Password string
}

// Identity binds one proxy endpoint to one fingerprint. Immutable after
// Acquire; all requests for a unit of work (a listing page, its details,
// their images) reuse the same Identity.
type Identity struct {
	Provider    string
	Endpoint    *url.URL
	Username    string
	Password    string
	AuthHeader  string // precomputed "Basic ..." value, empty without credentials
	Headers     map[string]string
	Fingerprint Fingerprint
}

// ProxyURL returns the endpoint in origin form with embedded userinfo,
// suitable for http.Transport.Proxy.
func (id *Identity) ProxyURL() *url.URL {
	u := *id.Endpoint
	if id.Username != "" {
		u.User = url.UserPassword(id.Username, id.Password)
	}
	return &u
}

// BrowserProxy returns the {server, username, password} projection for
// the browser context. Both projections resolve to the same endpoint.
func (id *Identity) BrowserProxy() BrowserProxy {
	return BrowserProxy{
		Server:   id.Endpoint.Scheme + "://" + id.Endpoint.Host,
		Username: id.Username,
		Password: id.Password,
	}
}

// ExtraHeaders returns the provider headers as an http.Header.
func (id *Identity) ExtraHeaders() http.Header {
	h := make(http.Header, len(id.Headers))
	for k, v := range id.Headers {
		h.Set(k, v)
	}
	return h
}

// poolProvider is a provider with endpoints parsed and auth precomputed.
type poolProvider struct {
	name       string
	endpoints  []*url.URL
	username   string
	password   string
	authHeader string
	headers    map[string]string
}

// Pool hands out identities for crawl work. Selection is uniform random
// over enabled providers, then uniform random over that provider's
// endpoints, so no endpoint accumulates a recognizable request pattern.
type Pool struct {
	providers   []poolProvider
	fingerprint config.IdentityConfig
	logger      *slog.Logger
}

// NewPool builds a Pool from configuration. Disabled providers are
// dropped; Basic auth headers are computed once here.
func NewPool(cfg config.IdentityConfig, logger *slog.Logger) (*Pool, error) {
	p := &Pool{
		fingerprint: cfg,
		logger:      logger.With("component", "identity_pool"),
	}

	for _, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}

		pp := poolProvider{
			name:     pc.Name,
			username: pc.Username,
			password: pc.Password,
			headers:  pc.Headers,
		}
		if pc.Username != "" {
			pp.authHeader = basicAuth(pc.Username, pc.Password)
		}

		for _, raw := range pc.Endpoints {
			ep, err := parseEndpoint(raw)
			if err != nil {
				return nil, fmt.Errorf("provider %s: endpoint %q: %w", pc.Name, raw, err)
			}
			pp.endpoints = append(pp.endpoints, ep)
		}
		p.providers = append(p.providers, pp)
	}

	p.logger.Info("identity pool ready",
		"providers", len(p.providers),
		"user_agents", len(cfg.UserAgents),
	)
	return p, nil
}

// Acquire returns a fresh identity, or nil when no provider is enabled.
// Callers treat nil as "proceed without proxy" and log it.
func (p *Pool) Acquire() *Identity {
	if len(p.providers) == 0 {
		return nil
	}

	prov := p.providers[rand.Intn(len(p.providers))]
	ep := prov.endpoints[rand.Intn(len(prov.endpoints))]

	headers := make(map[string]string, len(prov.headers))
	for k, v := range prov.headers {
		if strings.EqualFold(k, TunnelHeader) && strings.EqualFold(v, "random") {
			v = fmt.Sprintf("%d", rand.Intn(1_000_000))
		}
		headers[k] = v
	}

	id := &Identity{
		Provider:    prov.name,
		Endpoint:    ep,
		Username:    prov.username,
		Password:    prov.password,
		AuthHeader:  prov.authHeader,
		Headers:     headers,
		Fingerprint: p.newFingerprint(),
	}

	p.logger.Debug("identity acquired", "provider", id.Provider, "endpoint", ep.Host)
	return id
}

// Enabled reports whether the pool can hand out identities at all.
func (p *Pool) Enabled() bool { return len(p.providers) > 0 }

// newFingerprint assembles a fingerprint with a randomized User-Agent.
func (p *Pool) newFingerprint() Fingerprint {
	fp := Fingerprint{
		Locale:             p.fingerprint.Locale,
		Timezone:           p.fingerprint.Timezone,
		DisableGeolocation: p.fingerprint.DisableGeolocation,
		ViewportWidth:      p.fingerprint.ViewportWidth,
		ViewportHeight:     p.fingerprint.ViewportHeight,
	}
	if n := len(p.fingerprint.UserAgents); n > 0 {
		fp.UserAgent = p.fingerprint.UserAgents[rand.Intn(n)]
	}
	return fp
}

// basicAuth builds the Proxy-Authorization header value.
func basicAuth(username, password string) string {
	creds := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

// parseEndpoint accepts "host:port" or a full URL. Scheme defaults to
// http, which is how CONNECT-tunneling proxies are addressed.
func parseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty endpoint")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	// Credentials belong in the provider config, not the endpoint URL.
	u.User = nil
	return u, nil
}
