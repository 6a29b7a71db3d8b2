package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/observability"
)

type csrfTokenKey struct{}

const (
	// CSRFFormField is the form field checked when the header is absent.
	CSRFFormField = "csrf_token"
	// CSRFHeader is the header htmx requests carry the token in.
	CSRFHeader = "X-CSRF-Token"

	csrfTokenBytes = 32
)

var errTokenSource = errors.New("csrf: random source unavailable")

// CSRFConfig controls cookie/header behaviour.
type CSRFConfig struct {
	CookieName string
	CookiePath string
	HeaderName string
	FormField  string
	MaxAge     time.Duration
	Secure     bool
}

func (cfg CSRFConfig) withDefaults() CSRFConfig {
	if cfg.CookieName == "" {
		cfg.CookieName = "viadocs_csrf"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = CSRFHeader
	}
	if cfg.FormField == "" {
		cfg.FormField = CSRFFormField
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	return cfg
}

// CSRF attaches double-submit cookie protection. Every response carries the
// token cookie; unsafe methods must echo its value in the header (htmx) or in
// the form field (plain form posts).
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())

			token, err := cfg.issue(w, r)
			if err != nil {
				logger.Error("csrf token generation failed", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if isUnsafeMethod(r.Method) {
				submitted, source := cfg.submitted(r)
				if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
					logger.Warn("csrf check failed",
						zap.String("source", source),
						zap.Bool("present", submitted != ""),
					)
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), csrfTokenKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFTokenFromContext returns the token issued for the current request (to embed in forms or meta tags).
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfTokenKey{}).(string)
	return token
}

// issue reuses the browser's token cookie or sets a new one.
func (cfg CSRFConfig) issue(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	raw := securecookie.GenerateRandomKey(csrfTokenBytes)
	if raw == nil {
		return "", errTokenSource
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     cfg.CookiePath,
		HttpOnly: true,
		Secure:   cfg.Secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(cfg.MaxAge.Seconds()),
	})
	return token, nil
}

func (cfg CSRFConfig) submitted(r *http.Request) (token, source string) {
	if v := r.Header.Get(cfg.HeaderName); v != "" {
		return v, "header"
	}
	return r.PostFormValue(cfg.FormField), "form"
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}
