package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/gorilla/schema"
	"go.uber.org/zap"

	custommw "github.com/Santhosh-1218/VIADOCS/internal/portal/httpserver/middleware"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/loginflow"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/observability"
	appsession "github.com/Santhosh-1218/VIADOCS/internal/portal/session"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/templates/auth"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/templates/helpers"
)

const (
	messageBadForm     = "We could not read the form. Please try again."
	messageInProgress  = "A sign in request is already in progress."
	messageSignedOut   = "You have been signed out."
	messageExpired     = "Your session has expired. Please sign in again."
	messageLoginNeeded = "Please sign in to continue."
)

type loginForm struct {
	View     string `schema:"view"`
	Email    string `schema:"email"`
	Password string `schema:"password"`
}

type authHandlerConfig struct {
	Views              *flowRegistry
	LoginPath          string
	HomePath           string
	SignupPath         string
	ForgotPasswordPath string
	LogoutPath         string
	ToastTTL           time.Duration
	Now                func() time.Time
}

type authHandlers struct {
	cfg     authHandlerConfig
	views   *flowRegistry
	decoder *schema.Decoder
}

func newAuthHandlers(cfg authHandlerConfig) *authHandlers {
	if cfg.Views == nil {
		panic("auth: view registry is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &authHandlers{
		cfg:     cfg,
		views:   cfg.Views,
		decoder: decoder,
	}
}

// LoginForm mounts a new view and renders the empty form.
func (h *authHandlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	viewID, flow, err := h.views.Mount(sess.ID())
	if err != nil {
		observability.FromContext(r.Context()).Error("mount login view failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data := h.loginPageData(r, viewID, flow)
	data.Notice = messageForQuery(r.URL.Query())
	data.Toasts = flashToasts(sess.ConsumeFlashes())
	h.render(w, r, auth.LoginPage(data), http.StatusOK)
}

// LoginSubmit runs one login attempt for the posted view.
func (h *authHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	form, viewID, flow, ok := h.resolveView(w, r)
	if !ok {
		return
	}
	// The browser resends the password with every post.
	defer flow.ClearPassword()
	flow.SetEmail(form.Email)
	flow.SetPassword(form.Password)

	ctx, fx := withEffects(r.Context())
	result, err := flow.Submit(ctx)
	switch {
	case errors.Is(err, loginflow.ErrSubmitInProgress):
		logger.Info("login submit rejected: already in flight", zap.String("view", viewID))
		if custommw.IsHTMXRequest(r.Context()) {
			custommw.SkipSwap(w)
		}
		http.Error(w, messageInProgress, http.StatusConflict)
		return
	case errors.Is(err, loginflow.ErrNavigatingAway):
		h.redirect(w, r, h.cfg.HomePath)
		return
	case err != nil:
		logger.Error("login submit failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger.Info("login attempt finished",
		zap.String("view", viewID),
		zap.String("outcome", result.Outcome.String()),
		zap.Int("upstream_status", result.Status),
	)

	data := h.loginPageData(r, viewID, flow)
	if nav, ok := fx.Navigation(); ok {
		data.Redirect = &auth.Redirect{URL: nav.Destination, Delay: nav.Delay}
		w.Header().Set("Refresh", fmt.Sprintf("%d; url=%s", helpers.RefreshSeconds(nav.Delay), nav.Destination))
	}

	if custommw.IsHTMXRequest(r.Context()) {
		h.triggerEffects(w, r, fx)
		h.render(w, r, auth.LoginForm(data), http.StatusOK)
		return
	}

	data.Toasts = toastsFrom(fx.Toasts())
	h.render(w, r, auth.LoginPage(data), statusForOutcome(result.Outcome))
}

// TogglePassword flips password visibility, keeping whatever was typed.
func (h *authHandlers) TogglePassword(w http.ResponseWriter, r *http.Request) {
	form, viewID, flow, ok := h.resolveView(w, r)
	if !ok {
		return
	}
	// The browser resends the password with every post.
	defer flow.ClearPassword()
	flow.SetEmail(form.Email)
	flow.SetPassword(form.Password)
	flow.TogglePasswordVisibility()

	data := h.loginPageData(r, viewID, flow)
	if custommw.IsHTMXRequest(r.Context()) {
		h.render(w, r, auth.LoginForm(data), http.StatusOK)
		return
	}
	h.render(w, r, auth.LoginPage(data), http.StatusOK)
}

// Logout clears the token slot and returns to the login page.
func (h *authHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := (sessionTokens{}).Delete(r.Context(), loginflow.TokenKey); err != nil {
		observability.FromContext(r.Context()).Warn("logout without session", zap.Error(err))
	}
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		sess.AddFlash(appsession.Flash{Message: messageSignedOut, Tone: string(loginflow.ToneInfo)})
	}
	h.redirect(w, r, h.cfg.LoginPath)
}

// Home renders the landing page for token holders.
func (h *authHandlers) Home(w http.ResponseWriter, r *http.Request) {
	principal, ok := custommw.PrincipalFromContext(r.Context())
	if !ok {
		h.redirect(w, r, h.cfg.LoginPath)
		return
	}

	data := auth.HomePageData{
		Chrome:     h.chrome(r, "Home"),
		Subject:    principal.Info.Subject,
		Email:      principal.Info.Email,
		ExpiresAt:  principal.Info.ExpiresAt,
		Opaque:     principal.Info.Opaque,
		Now:        h.cfg.Now(),
		LogoutPath: h.cfg.LogoutPath,
	}
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		data.Toasts = flashToasts(sess.ConsumeFlashes())
	}
	h.render(w, r, auth.HomePage(data), http.StatusOK)
}

// Signup sends the visitor to the sign up destination.
func (h *authHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	h.destination(w, r, h.cfg.SignupPath, auth.InfoPageData{
		Heading:  "Create an account",
		Message:  "Account registration is not available here yet.",
		BackText: "Back to sign in",
	})
}

// ForgotPassword sends the visitor to the password reset destination.
func (h *authHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.destination(w, r, h.cfg.ForgotPasswordPath, auth.InfoPageData{
		Heading:  "Reset your password",
		Message:  "Password reset is not available here yet.",
		BackText: "Back to sign in",
	})
}

func (h *authHandlers) destination(w http.ResponseWriter, r *http.Request, target string, placeholder auth.InfoPageData) {
	if route, ok := localRoute(target); !ok || route != helpers.NormalizeRoute(r.URL.Path) {
		h.redirect(w, r, target)
		return
	}
	placeholder.Chrome = h.chrome(r, placeholder.Heading)
	placeholder.BackPath = h.cfg.LoginPath
	h.render(w, r, auth.InfoPage(placeholder), http.StatusOK)
}

func (h *authHandlers) resolveView(w http.ResponseWriter, r *http.Request) (loginForm, string, *loginflow.Flow, bool) {
	logger := observability.FromContext(r.Context())

	var form loginForm
	if err := r.ParseForm(); err != nil {
		logger.Warn("parse login form failed", zap.Error(err))
		http.Error(w, messageBadForm, http.StatusBadRequest)
		return form, "", nil, false
	}
	if err := h.decoder.Decode(&form, r.PostForm); err != nil {
		logger.Warn("decode login form failed", zap.Error(err))
		http.Error(w, messageBadForm, http.StatusBadRequest)
		return form, "", nil, false
	}

	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return form, "", nil, false
	}

	viewID, flow, err := h.views.Resolve(sess.ID(), strings.TrimSpace(form.View))
	if err != nil {
		logger.Error("resolve login view failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return form, "", nil, false
	}
	return form, viewID, flow, true
}

func (h *authHandlers) loginPageData(r *http.Request, viewID string, flow *loginflow.Flow) auth.LoginPageData {
	form := flow.Form()
	return auth.LoginPageData{
		Chrome:             h.chrome(r, "Sign in"),
		ViewID:             viewID,
		Email:              form.Credentials.Email,
		Password:           form.Credentials.Password,
		PasswordVisible:    form.PasswordVisible,
		Submitting:         form.Submitting,
		NavigatingAway:     flow.State() == loginflow.NavigatingAway,
		LoginPath:          h.cfg.LoginPath,
		TogglePath:         h.cfg.LoginPath + "/visibility",
		SignupPath:         h.cfg.SignupPath,
		ForgotPasswordPath: h.cfg.ForgotPasswordPath,
	}
}

func (h *authHandlers) chrome(r *http.Request, title string) auth.Chrome {
	return auth.Chrome{
		Title:       title,
		Environment: custommw.EnvironmentFromContext(r.Context()),
		Production:  custommw.IsProduction(r.Context()),
		CSRFToken:   custommw.CSRFTokenFromContext(r.Context()),
		CSRFField:   custommw.CSRFFormField,
		ToastTTL:    h.cfg.ToastTTL,
	}
}

func (h *authHandlers) triggerEffects(w http.ResponseWriter, r *http.Request, fx *responseEffects) {
	logger := observability.FromContext(r.Context())
	for _, toast := range fx.Toasts() {
		if err := custommw.AddTrigger(w, "toast", toast); err != nil {
			logger.Warn("toast trigger failed", zap.Error(err))
		}
	}
	if nav, ok := fx.Navigation(); ok {
		payload := map[string]any{"url": nav.Destination, "delayMs": helpers.Milliseconds(nav.Delay)}
		if err := custommw.AddTrigger(w, "login:navigate", payload); err != nil {
			logger.Warn("navigate trigger failed", zap.Error(err))
		}
	}
}

func (h *authHandlers) render(w http.ResponseWriter, r *http.Request, component templ.Component, status int) {
	templ.Handler(component, templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *authHandlers) redirect(w http.ResponseWriter, r *http.Request, target string) {
	custommw.Redirect(w, r, target, http.StatusSeeOther, http.StatusNoContent)
}

func statusForOutcome(outcome loginflow.Outcome) int {
	switch outcome {
	case loginflow.OutcomeSucceeded:
		return http.StatusOK
	case loginflow.OutcomeRejected:
		return http.StatusUnauthorized
	case loginflow.OutcomeMalformedResponse, loginflow.OutcomeTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageForQuery(q url.Values) string {
	if q == nil {
		return ""
	}
	switch q.Get("reason") {
	case custommw.ReasonTokenExpired, "expired":
		return messageExpired
	case custommw.ReasonMissingToken:
		return messageLoginNeeded
	default:
		return ""
	}
}

func toastsFrom(toasts []loginflow.Toast) []auth.Toast {
	out := make([]auth.Toast, 0, len(toasts))
	for _, t := range toasts {
		out = append(out, auth.Toast{Message: t.Message, Tone: string(t.Tone)})
	}
	return out
}

func flashToasts(flashes []appsession.Flash) []auth.Toast {
	out := make([]auth.Toast, 0, len(flashes))
	for _, f := range flashes {
		out = append(out, auth.Toast{Message: f.Message, Tone: f.Tone})
	}
	return out
}
