// Package loginflow holds the state machine behind the login view: form
// state, a single-flight submit against the auth service, and the side
// effects of each outcome (token storage, notifications, delayed navigation).
package loginflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/authclient"
)

// TokenKey is the storage slot the auth token is written to.
const TokenKey = "token"

// User-facing messages.
const (
	MessageSuccess      = "Login successful! Redirecting..."
	MessageRejected     = "Invalid email or password"
	MessageUnexpected   = "Unexpected server response"
	MessageConnectivity = "Unable to connect to the server. Please try again."
	MessageStorage      = "Unable to save your session. Please try again."
)

const (
	// DefaultHomePath is where a successful login navigates to.
	DefaultHomePath = "/home"
	// DefaultRedirectDelay keeps the success notification visible before navigating.
	DefaultRedirectDelay = 1500 * time.Millisecond
)

var (
	// ErrSubmitInProgress is returned when Submit is re-entered while a request is in flight.
	ErrSubmitInProgress = errors.New("loginflow: submit already in progress")
	// ErrNavigatingAway is returned once a successful login has scheduled navigation.
	ErrNavigatingAway = errors.New("loginflow: view is navigating away")
	// ErrMissingDependency reports an incomplete Dependencies value.
	ErrMissingDependency = errors.New("loginflow: missing dependency")
)

// Credentials is the email/password pair held by the form.
type Credentials = authclient.Credentials

// Authenticator exchanges credentials for a session token.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (authclient.Session, error)
}

// TokenStore receives the token on success.
type TokenStore interface {
	Set(ctx context.Context, key, value string) error
}

// Notifier displays toasts.
type Notifier interface {
	Notify(ctx context.Context, toast Toast)
}

// Navigator moves the user to destination once delay has elapsed.
type Navigator interface {
	NavigateAfter(ctx context.Context, destination string, delay time.Duration)
}

// Dependencies are the collaborators of a Flow. All are required.
type Dependencies struct {
	Authenticator Authenticator
	Tokens        TokenStore
	Notifier      Notifier
	Navigator     Navigator
}

// FormState is the transient view state.
type FormState struct {
	Credentials     Credentials
	PasswordVisible bool
	Submitting      bool
}

// Flow is one mounted instance of the login view. It is safe for concurrent use.
type Flow struct {
	mu    sync.Mutex
	form  FormState
	state State

	deps   Dependencies
	home   string
	delay  time.Duration
	logger *zap.Logger
}

// Option customises a Flow.
type Option func(*Flow)

// WithHomePath overrides the post-login destination.
func WithHomePath(path string) Option {
	return func(f *Flow) {
		if strings.TrimSpace(path) != "" {
			f.home = path
		}
	}
}

// WithRedirectDelay overrides the delay before navigation. Negative values are ignored.
func WithRedirectDelay(delay time.Duration) Option {
	return func(f *Flow) {
		if delay >= 0 {
			f.delay = delay
		}
	}
}

// WithLogger attaches a logger for diagnostics that are never shown to users.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New mounts a view instance in state Idle with an empty form.
func New(deps Dependencies, opts ...Option) (*Flow, error) {
	var missing []string
	if deps.Authenticator == nil {
		missing = append(missing, "Authenticator")
	}
	if deps.Tokens == nil {
		missing = append(missing, "Tokens")
	}
	if deps.Notifier == nil {
		missing = append(missing, "Notifier")
	}
	if deps.Navigator == nil {
		missing = append(missing, "Navigator")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}

	f := &Flow{
		state:  Idle,
		deps:   deps,
		home:   DefaultHomePath,
		delay:  DefaultRedirectDelay,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// SetEmail records the email field. Ignored once navigating away.
func (f *Flow) SetEmail(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == NavigatingAway {
		return
	}
	f.form.Credentials.Email = email
}

// SetPassword records the password field. Ignored once navigating away.
func (f *Flow) SetPassword(password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == NavigatingAway {
		return
	}
	f.form.Credentials.Password = password
}

// ClearPassword drops the stored password, whatever the state. Hosts whose
// client keeps the typed value call it once a response has been rendered.
func (f *Flow) ClearPassword() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Credentials.Password = ""
}

// TogglePasswordVisibility flips whether the password is rendered in clear text.
func (f *Flow) TogglePasswordVisibility() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.PasswordVisible = !f.form.PasswordVisible
}

// Form returns a snapshot of the form state.
func (f *Flow) Form() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// State returns the current lifecycle state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit performs one login attempt with the current credentials.
//
// A non-nil error is only returned when no attempt was made (ErrSubmitInProgress,
// ErrNavigatingAway). The outcome of an attempt is reported in Result; every
// attempt has already notified the user by the time Submit returns.
func (f *Flow) Submit(ctx context.Context) (Result, error) {
	creds, err := f.begin()
	if err != nil {
		return Result{}, err
	}

	result := Result{Outcome: OutcomeTransportError}
	defer func() {
		f.finish(result.Outcome)
	}()

	result = f.attempt(ctx, creds)
	return result, nil
}

func (f *Flow) begin() (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.state == NavigatingAway:
		return Credentials{}, ErrNavigatingAway
	case f.form.Submitting:
		return Credentials{}, ErrSubmitInProgress
	}
	f.form.Submitting = true
	f.state = Submitting
	return f.form.Credentials, nil
}

func (f *Flow) finish(outcome Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Submitting = false
	if outcome == OutcomeSucceeded {
		f.state = NavigatingAway
		return
	}
	f.state = Idle
}

func (f *Flow) attempt(ctx context.Context, creds Credentials) Result {
	session, err := f.deps.Authenticator.Login(ctx, creds)
	if err != nil {
		result := classify(err)
		fields := []zap.Field{zap.String("outcome", result.Outcome.String()), zap.Error(err)}
		var rejected *authclient.RejectedError
		if errors.As(err, &rejected) {
			// An unreadable rejection still shows the default message.
			fields = append(fields, zap.Bool("unreadable_body", rejected.Malformed))
		}
		f.logger.Info("login attempt failed", fields...)
		f.deps.Notifier.Notify(ctx, Toast{Tone: ToneError, Message: result.Message})
		return result
	}

	if err := f.deps.Tokens.Set(ctx, TokenKey, session.Token); err != nil {
		f.logger.Error("store auth token failed", zap.Error(err))
		f.deps.Notifier.Notify(ctx, Toast{Tone: ToneError, Message: MessageStorage})
		return Result{Outcome: OutcomeStorageFailed, Message: MessageStorage, Err: err}
	}

	f.deps.Notifier.Notify(ctx, Toast{Tone: ToneSuccess, Message: MessageSuccess})
	f.deps.Navigator.NavigateAfter(ctx, f.home, f.delay)
	return Result{
		Outcome:     OutcomeSucceeded,
		Message:     MessageSuccess,
		Destination: f.home,
		Delay:       f.delay,
	}
}

func classify(err error) Result {
	var rejected *authclient.RejectedError
	if errors.As(err, &rejected) {
		message := rejected.Message
		if strings.TrimSpace(message) == "" {
			message = MessageRejected
		}
		return Result{Outcome: OutcomeRejected, Message: message, Status: rejected.Status, Err: err}
	}
	if errors.Is(err, authclient.ErrMalformedResponse) {
		return Result{Outcome: OutcomeMalformedResponse, Message: MessageUnexpected, Err: err}
	}
	return Result{Outcome: OutcomeTransportError, Message: MessageConnectivity, Err: err}
}
