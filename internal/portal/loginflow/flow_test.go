package loginflow_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/authclient"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/loginflow"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/tokenstore"
)

type stubAuthenticator struct {
	mu      sync.Mutex
	calls   []loginflow.Credentials
	session authclient.Session
	err     error
	// observe runs inside Login, before it returns.
	observe func()
	// release, when set, blocks Login until closed.
	release chan struct{}
	entered chan struct{}
}

func (s *stubAuthenticator) Login(_ context.Context, creds loginflow.Credentials) (authclient.Session, error) {
	s.mu.Lock()
	s.calls = append(s.calls, creds)
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.observe != nil {
		s.observe()
	}
	if s.release != nil {
		<-s.release
	}
	return s.session, s.err
}

func (s *stubAuthenticator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []loginflow.Toast
}

func (n *recordingNotifier) Notify(_ context.Context, toast loginflow.Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, toast)
}

func (n *recordingNotifier) Toasts() []loginflow.Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]loginflow.Toast(nil), n.toasts...)
}

type failingStore struct{}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

type fakeTimer struct {
	clock   *fakeClock
	due     time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) loginflow.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, due: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && !timer.due.After(c.now) {
			timer.fired = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()
	for _, timer := range due {
		timer.fn()
	}
}

type harness struct {
	flow       *loginflow.Flow
	auth       *stubAuthenticator
	tokens     *tokenstore.Memory
	notifier   *recordingNotifier
	clock      *fakeClock
	navigator  *loginflow.DelayedNavigator
	navigateMu sync.Mutex
	navigated  []string
}

func (h *harness) Navigated() []string {
	h.navigateMu.Lock()
	defer h.navigateMu.Unlock()
	return append([]string(nil), h.navigated...)
}

func newHarness(t *testing.T, auth *stubAuthenticator, opts ...loginflow.Option) *harness {
	t.Helper()

	h := &harness{
		auth:     auth,
		tokens:   tokenstore.NewMemory(),
		notifier: &recordingNotifier{},
		clock:    newFakeClock(),
	}
	h.navigator = &loginflow.DelayedNavigator{
		Clock: h.clock,
		Navigate: func(destination string) {
			h.navigateMu.Lock()
			defer h.navigateMu.Unlock()
			h.navigated = append(h.navigated, destination)
		},
	}

	flow, err := loginflow.New(loginflow.Dependencies{
		Authenticator: auth,
		Tokens:        h.tokens,
		Notifier:      h.notifier,
		Navigator:     h.navigator,
	}, opts...)
	require.NoError(t, err)
	h.flow = flow
	return h
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := loginflow.New(loginflow.Dependencies{})
	require.ErrorIs(t, err, loginflow.ErrMissingDependency)
	require.Contains(t, err.Error(), "Authenticator")
	require.Contains(t, err.Error(), "Navigator")
}

func TestNewFlowStartsIdleAndEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &stubAuthenticator{})
	require.Equal(t, loginflow.Idle, h.flow.State())
	require.Equal(t, loginflow.FormState{}, h.flow.Form())
}

func TestSubmitSuccessStoresTokenAndSchedulesNavigation(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{session: authclient.Session{Token: "abc"}}
	h := newHarness(t, auth)
	auth.observe = func() {
		form := h.flow.Form()
		require.True(t, form.Submitting, "submitting must be true while the request is in flight")
		require.Equal(t, loginflow.Submitting, h.flow.State())
	}

	h.flow.SetEmail("ada@example.com")
	h.flow.SetPassword("s3cret")

	result, err := h.flow.Submit(context.Background())
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.Equal(t, "/home", result.Destination)
	require.Equal(t, 1500*time.Millisecond, result.Delay)

	require.Equal(t, 1, auth.Calls())
	require.Equal(t, loginflow.Credentials{Email: "ada@example.com", Password: "s3cret"}, auth.calls[0])

	token, ok, err := h.tokens.Get(context.Background(), loginflow.TokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", token)

	require.Equal(t, []loginflow.Toast{{Tone: loginflow.ToneSuccess, Message: "Login successful! Redirecting..."}}, h.notifier.Toasts())
	require.False(t, h.flow.Form().Submitting)
	require.Equal(t, loginflow.NavigatingAway, h.flow.State())

	h.clock.Advance(1499 * time.Millisecond)
	require.Empty(t, h.Navigated(), "navigation must not fire before the delay")

	h.clock.Advance(time.Millisecond)
	require.Equal(t, []string{"/home"}, h.Navigated())
}

func TestSubmitRejectedUsesServerMessage(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{err: &authclient.RejectedError{Status: http.StatusUnauthorized, Message: "Bad creds"}}
	h := newHarness(t, auth)
	h.flow.SetEmail("ada@example.com")
	h.flow.SetPassword("wrong")

	result, err := h.flow.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, loginflow.OutcomeRejected, result.Outcome)
	require.Equal(t, http.StatusUnauthorized, result.Status)

	require.Equal(t, []loginflow.Toast{{Tone: loginflow.ToneError, Message: "Bad creds"}}, h.notifier.Toasts())
	require.False(t, h.flow.Form().Submitting)
	require.Equal(t, loginflow.Idle, h.flow.State())
	require.Zero(t, h.tokens.Writes())

	h.clock.Advance(time.Minute)
	require.Empty(t, h.Navigated())

	require.Equal(t, loginflow.Credentials{Email: "ada@example.com", Password: "wrong"}, h.flow.Form().Credentials,
		"form stays populated for correction")
}

func TestSubmitRejectedDefaultsMessage(t *testing.T) {
	t.Parallel()

	for _, rejected := range []*authclient.RejectedError{
		{Status: http.StatusUnauthorized, Malformed: true},
		{Status: http.StatusUnauthorized},
		{Status: http.StatusUnauthorized, Message: "   "},
	} {
		h := newHarness(t, &stubAuthenticator{err: rejected})
		result, err := h.flow.Submit(context.Background())
		require.NoError(t, err)
		require.Equal(t, "Invalid email or password", result.Message)
		require.Equal(t, []loginflow.Toast{{Tone: loginflow.ToneError, Message: "Invalid email or password"}}, h.notifier.Toasts())
	}
}

func TestSubmitLogsUnreadableRejection(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	h := newHarness(t, &stubAuthenticator{err: &authclient.RejectedError{Status: http.StatusInternalServerError, Malformed: true}},
		loginflow.WithLogger(zap.New(core)))

	result, err := h.flow.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, loginflow.OutcomeRejected, result.Outcome)

	entries := logs.FilterMessage("login attempt failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, true, entries[0].ContextMap()["unreadable_body"])
	require.Equal(t, "rejected", entries[0].ContextMap()["outcome"])
}

func TestSubmitTransportFailureShowsFixedMessage(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{err: &authclient.TransportError{Err: errors.New("dial tcp 127.0.0.1:5000: connect: connection refused")}}
	h := newHarness(t, auth)

	result, err := h.flow.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, loginflow.OutcomeTransportError, result.Outcome)
	require.Equal(t, []loginflow.Toast{{Tone: loginflow.ToneError, Message: "Unable to connect to the server. Please try again."}}, h.notifier.Toasts())
	require.NotContains(t, result.Message, "connection refused")
	require.False(t, h.flow.Form().Submitting)
	require.Equal(t, loginflow.Idle, h.flow.State())
}

func TestSubmitMissingTokenIsNotASuccess(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{err: errors.Join(authclient.ErrMalformedResponse, errors.New("status 200 without token"))}
	h := newHarness(t, auth)

	result, err := h.flow.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, loginflow.OutcomeMalformedResponse, result.Outcome)
	require.Equal(t, []loginflow.Toast{{Tone: loginflow.ToneError, Message: "Unexpected server response"}}, h.notifier.Toasts())
	require.Zero(t, h.tokens.Writes())
	h.clock.Advance(time.Minute)
	require.Empty(t, h.Navigated())
	require.Equal(t, loginflow.Idle, h.flow.State())
}

func TestSubmitStorageFailure(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	flow, err := loginflow.New(loginflow.Dependencies{
		Authenticator: &stubAuthenticator{session: authclient.Session{Token: "abc"}},
		Tokens:        failingStore{},
		Notifier:      notifier,
		Navigator:     &loginflow.DelayedNavigator{Clock: newFakeClock()},
	})
	require.NoError(t, err)

	result, err := flow.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, loginflow.OutcomeStorageFailed, result.Outcome)
	require.Equal(t, []loginflow.Toast{{Tone: loginflow.ToneError, Message: loginflow.MessageStorage}}, notifier.Toasts())
	require.Equal(t, loginflow.Idle, flow.State())
}

func TestSubmitReentryIssuesNoSecondRequest(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{
		session: authclient.Session{Token: "abc"},
		release: make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	h := newHarness(t, auth)

	type outcome struct {
		result loginflow.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.flow.Submit(context.Background())
		done <- outcome{result: result, err: err}
	}()

	<-auth.entered
	require.True(t, h.flow.Form().Submitting)

	_, err := h.flow.Submit(context.Background())
	require.ErrorIs(t, err, loginflow.ErrSubmitInProgress)
	require.Equal(t, 1, auth.Calls())

	close(auth.release)
	first := <-done
	require.NoError(t, first.err)
	require.True(t, first.result.Succeeded())
	require.Equal(t, 1, auth.Calls())
	require.False(t, h.flow.Form().Submitting)
}

func TestSubmitAfterSuccessIsRefused(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{session: authclient.Session{Token: "abc"}}
	h := newHarness(t, auth)

	_, err := h.flow.Submit(context.Background())
	require.NoError(t, err)

	_, err = h.flow.Submit(context.Background())
	require.ErrorIs(t, err, loginflow.ErrNavigatingAway)
	require.Equal(t, 1, auth.Calls())

	h.flow.SetEmail("changed@example.com")
	require.Empty(t, h.flow.Form().Credentials.Email)
}

func TestSubmitCanRetryAfterFailure(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{err: &authclient.RejectedError{Status: http.StatusUnauthorized}}
	h := newHarness(t, auth)

	_, err := h.flow.Submit(context.Background())
	require.NoError(t, err)

	auth.err = nil
	auth.session = authclient.Session{Token: "second"}
	result, err := h.flow.Submit(context.Background())
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.Equal(t, 2, auth.Calls())
}

func TestSubmitResetsSubmittingWhenAuthenticatorPanics(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{}
	h := newHarness(t, auth)
	auth.observe = func() { panic("boom") }

	require.Panics(t, func() {
		_, _ = h.flow.Submit(context.Background())
	})
	require.False(t, h.flow.Form().Submitting)
	require.Equal(t, loginflow.Idle, h.flow.State())
}

func TestTogglePasswordVisibilityTwiceRestoresState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &stubAuthenticator{})
	h.flow.SetPassword("hunter2")

	h.flow.TogglePasswordVisibility()
	require.True(t, h.flow.Form().PasswordVisible)
	h.flow.TogglePasswordVisibility()

	form := h.flow.Form()
	require.False(t, form.PasswordVisible)
	require.Equal(t, "hunter2", form.Credentials.Password)
}

func TestClearPasswordKeepsEmailInEveryState(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{session: authclient.Session{Token: "abc"}}
	h := newHarness(t, auth)
	h.flow.SetEmail("ada@example.com")
	h.flow.SetPassword("s3cret")

	_, err := h.flow.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, loginflow.NavigatingAway, h.flow.State())
	require.Equal(t, "s3cret", h.flow.Form().Credentials.Password)

	h.flow.ClearPassword()
	form := h.flow.Form()
	require.Empty(t, form.Credentials.Password)
	require.Equal(t, "ada@example.com", form.Credentials.Email)
	require.Equal(t, loginflow.Credentials{Email: "ada@example.com", Password: "s3cret"}, auth.calls[0])
}

func TestOptionsOverrideDestinationAndDelay(t *testing.T) {
	t.Parallel()

	auth := &stubAuthenticator{session: authclient.Session{Token: "abc"}}
	h := newHarness(t, auth, loginflow.WithHomePath("/dashboard"), loginflow.WithRedirectDelay(3*time.Second))

	result, err := h.flow.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/dashboard", result.Destination)

	h.clock.Advance(2 * time.Second)
	require.Empty(t, h.Navigated())
	h.clock.Advance(time.Second)
	require.Equal(t, []string{"/dashboard"}, h.Navigated())
}

func TestDelayedNavigatorCancel(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var navigated []string
	nav := &loginflow.DelayedNavigator{Clock: clock, Navigate: func(d string) { navigated = append(navigated, d) }}

	nav.NavigateAfter(context.Background(), "/home", time.Second)
	require.True(t, nav.Cancel())
	clock.Advance(2 * time.Second)
	require.Empty(t, navigated)
	require.False(t, nav.Cancel())
}
