package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	custommw "github.com/Santhosh-1218/VIADOCS/internal/portal/httpserver/middleware"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/loginflow"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/observability"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/templates/helpers"
	"github.com/Santhosh-1218/VIADOCS/public"
)

const (
	defaultLoginPath  = "/login"
	defaultSignupPath = "/signup"
	defaultForgotPath = "/forgot-password"
	defaultLogoutPath = "/logout"
	defaultViewTTL    = 30 * time.Minute
)

// Config holds runtime options for the portal HTTP server.
type Config struct {
	Address        string
	Environment    string
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider

	Authenticator loginflow.Authenticator
	Sessions      custommw.SessionStore

	LoginPath          string
	HomePath           string
	SignupPath         string
	ForgotPasswordPath string
	RedirectDelay      time.Duration
	ToastTTL           time.Duration
	// ViewTTL bounds how long an idle login view is kept server-side.
	ViewTTL time.Duration

	CSRFCookieName   string
	CSRFCookieSecure bool
	CSRFHeaderName   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Now func() time.Time
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) *http.Server {
	if cfg.Authenticator == nil {
		panic("httpserver: authenticator is required")
	}
	if cfg.Sessions == nil {
		panic("httpserver: session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.Trace(cfg.TracerProvider))
	router.Use(observability.RequestLogger(logger))
	router.Use(observability.Recovery(logger))
	router.Use(chimw.Timeout(60 * time.Second))

	assets, err := public.Handler()
	if err != nil {
		logger.Fatal("embed static", zap.Error(err))
	}
	router.Handle(public.URLPrefix+"*", assets)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	loginPath := firstNonEmpty(cfg.LoginPath, defaultLoginPath)
	homePath := firstNonEmpty(cfg.HomePath, loginflow.DefaultHomePath)
	redirectDelay := durationOr(cfg.RedirectDelay, loginflow.DefaultRedirectDelay)

	views := newFlowRegistry(flowRegistryConfig{
		TTL: durationOr(cfg.ViewTTL, defaultViewTTL),
		Now: now,
		Factory: func() (*loginflow.Flow, error) {
			return loginflow.New(loginflow.Dependencies{
				Authenticator: cfg.Authenticator,
				Tokens:        sessionTokens{checker: cfg.Sessions},
				Notifier:      requestNotifier{},
				Navigator:     requestNavigator{},
			},
				loginflow.WithHomePath(homePath),
				loginflow.WithRedirectDelay(redirectDelay),
				loginflow.WithLogger(logger.Named("loginflow")),
			)
		},
	})

	signupPath := firstNonEmpty(cfg.SignupPath, defaultSignupPath)
	forgotPath := firstNonEmpty(cfg.ForgotPasswordPath, defaultForgotPath)

	handlers := newAuthHandlers(authHandlerConfig{
		Views:              views,
		LoginPath:          loginPath,
		HomePath:           homePath,
		SignupPath:         signupPath,
		ForgotPasswordPath: forgotPath,
		LogoutPath:         defaultLogoutPath,
		ToastTTL:           durationOr(cfg.ToastTTL, 2*time.Second),
		Now:                now,
	})

	authCfg := custommw.AuthConfig{
		TokenKey:  loginflow.TokenKey,
		LoginPath: loginPath,
		HomePath:  homePath,
		Now:       now,
	}

	csrfCfg := custommw.CSRFConfig{
		CookieName: cfg.CSRFCookieName,
		CookiePath: "/",
		HeaderName: cfg.CSRFHeaderName,
		Secure:     cfg.CSRFCookieSecure,
	}

	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.Environment(cfg.Environment))
		r.Use(custommw.Session(cfg.Sessions))
		r.Use(custommw.CSRF(csrfCfg))

		homeRoute, homeLocal := localRoute(homePath)
		if !homeLocal || homeRoute != "/" {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, loginPath, http.StatusFound)
			})
		}
		r.With(custommw.RedirectAuthenticated(authCfg)).Get(loginPath, handlers.LoginForm)
		r.Post(loginPath, handlers.LoginSubmit)
		r.Post(loginPath+"/visibility", handlers.TogglePassword)
		for _, route := range destinationRoutes(signupPath, defaultSignupPath) {
			r.Get(route, handlers.Signup)
		}
		for _, route := range destinationRoutes(forgotPath, defaultForgotPath) {
			r.Get(route, handlers.ForgotPassword)
		}
		r.Post(defaultLogoutPath, handlers.Logout)

		// An off-site home is served elsewhere; the portal only sends users there.
		if homeLocal {
			r.Group(func(r chi.Router) {
				r.Use(custommw.RequireToken(authCfg))
				r.Get(homeRoute, handlers.Home)
			})
		}
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}
}

// localRoute returns the router pattern for a site-relative destination.
func localRoute(target string) (string, bool) {
	if helpers.IsExternal(target) {
		return "", false
	}
	return helpers.BuildURL(helpers.NormalizeRoute(target), ""), true
}

// destinationRoutes lists the paths a signup or reset handler answers on:
// the built-in path, which redirects when the destination moved, plus the
// configured destination when it is served here.
func destinationRoutes(target, builtin string) []string {
	routes := []string{builtin}
	if route, ok := localRoute(target); ok && route != builtin {
		routes = append(routes, route)
	}
	return routes
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
