package provider

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Scope selects the key a Client authenticates with and the operations it
// may perform.
type Scope int

const (
	ScopeBrowser Scope = iota
	ScopeServer
	ScopeAdmin
)

func (s Scope) String() string {
	switch s {
	case ScopeBrowser:
		return "browser"
	case ScopeServer:
		return "server"
	case ScopeAdmin:
		return "admin"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

var (
	ErrMissingURL         = errors.New("provider url is not configured")
	ErrMissingAnonKey     = errors.New("provider anon key is not configured")
	ErrMissingServiceRole = errors.New("provider service role key is not configured")
	ErrScopeNotAllowed    = errors.New("operation not allowed for this client scope")
	ErrUnknownScope       = errors.New("unknown client scope")
)

const defaultTimeout = 10 * time.Second

// Config describes one identity-provider project.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	// HTTPClient is optional; a client with a 10s timeout is used otherwise.
	HTTPClient *http.Client
}

// Factory builds scope-bound clients for one project.
type Factory struct {
	base           string
	anonKey        string
	serviceRoleKey string
	hc             *http.Client
}

// NewFactory validates cfg. The service-role key is optional here and only
// checked when an admin client is requested.
func NewFactory(cfg Config) (*Factory, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid provider url %q", raw)
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, ErrMissingAnonKey
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	return &Factory{
		base:           strings.TrimRight(raw, "/") + "/auth/v1",
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
		hc:             hc,
	}, nil
}

// Client returns a client bound to scope.
func (f *Factory) Client(scope Scope) (*Client, error) {
	switch scope {
	case ScopeBrowser, ScopeServer:
		return &Client{scope: scope, base: f.base, apiKey: f.anonKey, hc: f.hc}, nil
	case ScopeAdmin:
		if f.serviceRoleKey == "" {
			return nil, ErrMissingServiceRole
		}
		return &Client{scope: scope, base: f.base, apiKey: f.serviceRoleKey, hc: f.hc}, nil
	default:
		return nil, ErrUnknownScope
	}
}

// Browser and Server never fail once the factory exists.
func (f *Factory) Browser() *Client {
	c, _ := f.Client(ScopeBrowser)
	return c
}

func (f *Factory) Server() *Client {
	c, _ := f.Client(ScopeServer)
	return c
}

func (f *Factory) Admin() (*Client, error) {
	return f.Client(ScopeAdmin)
}
