package httpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	custommw "github.com/Santhosh-1218/VIADOCS/internal/portal/httpserver/middleware"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/loginflow"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/observability"
	appsession "github.com/Santhosh-1218/VIADOCS/internal/portal/session"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/tokenstore"
)

var errNoSession = errors.New("httpserver: no session on request")

type effectsContextKey struct{}

// responseEffects collects what a login attempt asked the view to do, so the
// handler can translate it into headers and markup for this response.
type responseEffects struct {
	mu       sync.Mutex
	toasts   []loginflow.Toast
	navigate *navigation
}

type navigation struct {
	Destination string
	Delay       time.Duration
}

func withEffects(ctx context.Context) (context.Context, *responseEffects) {
	fx := &responseEffects{}
	return context.WithValue(ctx, effectsContextKey{}, fx), fx
}

func effectsFromContext(ctx context.Context) *responseEffects {
	fx, _ := ctx.Value(effectsContextKey{}).(*responseEffects)
	return fx
}

func (fx *responseEffects) Toasts() []loginflow.Toast {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return append([]loginflow.Toast(nil), fx.toasts...)
}

func (fx *responseEffects) Navigation() (navigation, bool) {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	if fx.navigate == nil {
		return navigation{}, false
	}
	return *fx.navigate, true
}

// requestNotifier queues toasts on the current response.
type requestNotifier struct{}

func (requestNotifier) Notify(ctx context.Context, toast loginflow.Toast) {
	fx := effectsFromContext(ctx)
	if fx == nil {
		observability.FromContext(ctx).Warn("toast dropped: no response effects", zap.String("message", toast.Message))
		return
	}
	fx.mu.Lock()
	fx.toasts = append(fx.toasts, toast)
	fx.mu.Unlock()
}

// requestNavigator records the pending navigation; the browser performs it.
type requestNavigator struct{}

func (requestNavigator) NavigateAfter(ctx context.Context, destination string, delay time.Duration) {
	fx := effectsFromContext(ctx)
	if fx == nil {
		observability.FromContext(ctx).Warn("navigation dropped: no response effects", zap.String("destination", destination))
		return
	}
	fx.mu.Lock()
	fx.navigate = &navigation{Destination: destination, Delay: delay}
	fx.mu.Unlock()
}

// sessionChecker confirms a session still fits in its cookie.
type sessionChecker interface {
	Check(*appsession.Session) error
}

// sessionTokens stores values in the session of the request carried by ctx.
// The cookie is written after the handler runs, so Set checks the encoding
// up front and reverts the value when the session would no longer fit.
type sessionTokens struct {
	checker sessionChecker
}

var _ tokenstore.Store = sessionTokens{}

func (t sessionTokens) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return tokenstore.ErrEmptyKey
	}
	sess, ok := custommw.SessionFromContext(ctx)
	if !ok {
		return errNoSession
	}
	previous, had := sess.Value(key)
	sess.SetValue(key, value)
	if t.checker == nil {
		return nil
	}
	if err := t.checker.Check(sess); err != nil {
		if had {
			sess.SetValue(key, previous)
		} else {
			sess.DeleteValue(key)
		}
		return fmt.Errorf("store %q in session: %w", key, err)
	}
	return nil
}

func (sessionTokens) Get(ctx context.Context, key string) (string, bool, error) {
	sess, ok := custommw.SessionFromContext(ctx)
	if !ok {
		return "", false, errNoSession
	}
	value, found := sess.Value(key)
	return value, found, nil
}

func (sessionTokens) Delete(ctx context.Context, key string) error {
	sess, ok := custommw.SessionFromContext(ctx)
	if !ok {
		return errNoSession
	}
	sess.DeleteValue(key)
	return nil
}
