package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/observability"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/tokeninfo"
)

type authContextKey string

const principalContextKey authContextKey = "auth.principal"

// Principal is the holder of the session token for this request.
type Principal struct {
	Token string
	Info  tokeninfo.Info
}

var (
	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("unauthorized")
)

// AuthError contains reason codes for failed authentication attempts.
type AuthError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError constructs an AuthError with the provided reason.
func NewAuthError(reason string, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

const (
	// ReasonMissingToken indicates a request without a stored token.
	ReasonMissingToken = "missing_token"
	// ReasonTokenInvalid indicates a malformed token.
	ReasonTokenInvalid = "token_invalid"
	// ReasonTokenExpired indicates the token declared an expiry that has passed.
	ReasonTokenExpired = "token_expired"
)

// AuthConfig configures RequireToken and RedirectAuthenticated.
type AuthConfig struct {
	// TokenKey is the session slot holding the auth token.
	TokenKey  string
	LoginPath string
	HomePath  string
	Now       func() time.Time
}

func (cfg AuthConfig) withDefaults() AuthConfig {
	if cfg.TokenKey == "" {
		cfg.TokenKey = "token"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.HomePath == "" {
		cfg.HomePath = "/home"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// RequireToken admits requests whose session holds a token and redirects the
// rest to the login page. Expired tokens are removed from the session.
func RequireToken(cfg AuthConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := resolvePrincipal(r.Context(), cfg)
			if err != nil {
				reason := ReasonTokenInvalid
				var authErr *AuthError
				if errors.As(err, &authErr) && authErr.Reason != "" {
					reason = authErr.Reason
				}
				observability.FromContext(r.Context()).Info("auth failure",
					zap.String("reason", reason),
					zap.Error(err),
				)
				if reason != ReasonMissingToken {
					clearToken(r.Context(), cfg.TokenKey)
				}
				handleUnauthorized(w, r, cfg.LoginPath, reason)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RedirectAuthenticated sends visitors who already hold a usable token to the
// home page instead of showing them the wrapped handler.
func RedirectAuthenticated(cfg AuthConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := resolvePrincipal(r.Context(), cfg); err == nil {
				Redirect(w, r, cfg.HomePath, http.StatusSeeOther, http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext retrieves the token holder if present.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(*Principal)
	return principal, ok && principal != nil
}

func resolvePrincipal(ctx context.Context, cfg AuthConfig) (*Principal, error) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}
	token, ok := sess.Value(cfg.TokenKey)
	if !ok || strings.TrimSpace(token) == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}

	info, err := tokeninfo.Inspect(token, cfg.Now())
	switch {
	case errors.Is(err, tokeninfo.ErrExpired):
		return nil, NewAuthError(ReasonTokenExpired, err)
	case err != nil:
		return nil, NewAuthError(ReasonTokenInvalid, err)
	}
	return &Principal{Token: token, Info: info}, nil
}

func handleUnauthorized(w http.ResponseWriter, r *http.Request, loginPath, reason string) {
	if reason == "" {
		reason = ReasonTokenInvalid
	}

	redirectURL := loginPath
	if reason == ReasonTokenExpired {
		if u, err := url.Parse(loginPath); err == nil {
			q := u.Query()
			q.Set("reason", "expired")
			u.RawQuery = q.Encode()
			redirectURL = u.String()
		}
	}

	Redirect(w, r, redirectURL, http.StatusFound, http.StatusUnauthorized)
}

func clearToken(ctx context.Context, key string) {
	if sess, ok := SessionFromContext(ctx); ok {
		sess.DeleteValue(key)
	}
}
