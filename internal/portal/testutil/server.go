package testutil

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/authclient"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/httpserver"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/loginflow"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/session"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*serverOptions)

type serverOptions struct {
	cfg          httpserver.Config
	authEndpoint string
}

// WithAuthenticator overrides the authenticator used by the login flow.
func WithAuthenticator(auth loginflow.Authenticator) ServerOption {
	return func(o *serverOptions) {
		o.cfg.Authenticator = auth
	}
}

// WithAuthEndpoint points a real auth client at endpoint, typically another
// httptest server standing in for the auth service.
func WithAuthEndpoint(endpoint string) ServerOption {
	return func(o *serverOptions) {
		o.authEndpoint = endpoint
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(o *serverOptions) {
		o.cfg.Logger = logger
	}
}

// WithClock fixes the server clock.
func WithClock(now func() time.Time) ServerOption {
	return func(o *serverOptions) {
		o.cfg.Now = now
	}
}

// WithConfig applies arbitrary changes to the server configuration.
func WithConfig(fn func(*httpserver.Config)) ServerOption {
	return func(o *serverOptions) {
		fn(&o.cfg)
	}
}

// NewServer constructs an httptest server running the portal HTTP stack with sensible defaults.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	o := serverOptions{
		cfg: httpserver.Config{
			Address:        ":0",
			Environment:    "test",
			CSRFCookieName: "csrf_token",
			CSRFHeaderName: "X-CSRF-Token",
			RedirectDelay:  loginflow.DefaultRedirectDelay,
			ToastTTL:       2 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.cfg.Sessions == nil {
		sessions, err := session.NewManager(session.Config{
			CookieName: "viadocs_session",
			HashKey:    []byte("0123456789abcdef0123456789abcdef"),
			BlockKey:   []byte("abcdefghijklmnopqrstuvwxyz012345"),
			Now:        o.cfg.Now,
		})
		if err != nil {
			t.Fatalf("session manager: %v", err)
		}
		o.cfg.Sessions = sessions
	}

	if o.cfg.Authenticator == nil {
		endpoint := o.authEndpoint
		if endpoint == "" {
			endpoint = authclient.DefaultEndpoint
		}
		client, err := authclient.NewClient(endpoint, authclient.WithTimeout(5*time.Second))
		if err != nil {
			t.Fatalf("auth client: %v", err)
		}
		o.cfg.Authenticator = client
	}

	srv := httpserver.New(o.cfg)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewBrowser returns a client with a cookie jar that does not follow redirects.
func NewBrowser(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
