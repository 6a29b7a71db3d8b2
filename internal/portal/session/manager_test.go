package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newTestManager(t *testing.T) (*Manager, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	mgr, err := NewManager(Config{
		CookieName:  "test_session",
		HashKey:     []byte("12345678901234567890123456789012"),
		BlockKey:    []byte("abcdefghijklmnopqrstuv0123456789"),
		IdleTimeout: 10 * time.Minute,
		Lifetime:    2 * time.Hour,
		Now:         clock.Now,
	})
	require.NoError(t, err)
	return mgr, clock
}

func saveCookie(t *testing.T, mgr *Manager, sess *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, mgr.Save(rec, sess))
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func loadWith(mgr *Manager, cookie *http.Cookie) (*Session, error) {
	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return mgr.Load(req)
}

func TestManagerRoundTrip(t *testing.T) {
	mgr, clock := newTestManager(t)

	sess, err := loadWith(mgr, nil)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID())
	require.True(t, sess.Dirty(), "a new session must be written out")

	sess.SetValue("token", "abc")
	sess.AddFlash(Flash{Message: "Signed out", Tone: "info"})
	cookie := saveCookie(t, mgr, sess)
	require.False(t, sess.Dirty())
	require.True(t, cookie.HttpOnly)
	require.Equal(t, "/", cookie.Path)
	require.Equal(t, int((2 * time.Hour).Seconds()), cookie.MaxAge)

	clock.now = clock.now.Add(5 * time.Minute)
	loaded, err := loadWith(mgr, cookie)
	require.NoError(t, err)
	require.Equal(t, sess.ID(), loaded.ID())
	token, ok := loaded.Value("token")
	require.True(t, ok)
	require.Equal(t, "abc", token)

	flashes := loaded.ConsumeFlashes()
	require.Equal(t, []Flash{{Message: "Signed out", Tone: "info"}}, flashes)
	require.Empty(t, loaded.ConsumeFlashes(), "flashes are delivered once")
}

func TestManagerIdleTimeout(t *testing.T) {
	mgr, clock := newTestManager(t)
	first := mgr.New()
	cookie := saveCookie(t, mgr, first)

	clock.now = clock.now.Add(20 * time.Minute)
	sess, err := loadWith(mgr, cookie)
	require.ErrorIs(t, err, ErrExpired)
	require.NotNil(t, sess, "a fresh session replaces the expired one")
	require.NotEqual(t, first.ID(), sess.ID())
}

func TestManagerActivityExtendsIdleWindow(t *testing.T) {
	mgr, clock := newTestManager(t)
	sess := mgr.New()
	cookie := saveCookie(t, mgr, sess)

	for i := 0; i < 3; i++ {
		clock.now = clock.now.Add(8 * time.Minute)
		loaded, err := loadWith(mgr, cookie)
		require.NoError(t, err)
		require.Equal(t, sess.ID(), loaded.ID())
		cookie = saveCookie(t, mgr, loaded)
	}
}

func TestManagerAbsoluteLifetime(t *testing.T) {
	mgr, clock := newTestManager(t)
	started := clock.now
	sess := mgr.New()
	cookie := saveCookie(t, mgr, sess)

	// Stay active so only the absolute limit can end the session.
	for {
		clock.now = clock.now.Add(9 * time.Minute)
		loaded, err := loadWith(mgr, cookie)
		if err != nil {
			require.ErrorIs(t, err, ErrExpired)
			break
		}
		cookie = saveCookie(t, mgr, loaded)
		require.LessOrEqual(t, clock.now.Sub(started), 2*time.Hour)
	}
	require.Greater(t, clock.now.Sub(started), 2*time.Hour)
}

func TestManagerRejectsForgedCookie(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := loadWith(mgr, &http.Cookie{Name: "test_session", Value: "forged"})
	require.ErrorIs(t, err, ErrInvalidCookie)
	require.NotNil(t, sess)
	_, ok := sess.Value("token")
	require.False(t, ok)
	require.True(t, sess.Dirty())
}

func TestSessionDirtyTracking(t *testing.T) {
	mgr, _ := newTestManager(t)
	sess := mgr.New()
	sess.dirty = false

	sess.DeleteValue("token")
	require.False(t, sess.Dirty(), "deleting a missing key is a no-op")

	sess.SetValue("token", "abc")
	require.True(t, sess.Dirty())
	sess.dirty = false
	sess.SetValue("token", "abc")
	require.False(t, sess.Dirty(), "unchanged value is a no-op")

	sess.DeleteValue("token")
	_, ok := sess.Value("token")
	require.False(t, ok)
	require.True(t, sess.Dirty())

	sess.dirty = false
	sess.AddFlash(Flash{})
	require.False(t, sess.Dirty(), "empty flashes are ignored")
}

func TestSessionKeepsNewestFlashes(t *testing.T) {
	mgr, _ := newTestManager(t)
	sess := mgr.New()

	for _, msg := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		sess.AddFlash(Flash{Message: msg, Tone: "info"})
	}
	flashes := sess.ConsumeFlashes()
	require.Len(t, flashes, maxFlashes)
	require.Equal(t, "3", flashes[0].Message)
	require.Equal(t, "7", flashes[maxFlashes-1].Message)
}

func TestNewManagerValidatesKeys(t *testing.T) {
	_, err := NewManager(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(Config{HashKey: []byte("k"), BlockKey: []byte("short")})
	require.ErrorIs(t, err, ErrInvalidConfig)

	mgr, err := NewManager(Config{HashKey: []byte("k")})
	require.NoError(t, err)
	require.Equal(t, defaultCookieName, mgr.cfg.CookieName)
}

func TestManagerCheckRejectsOversizedSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	sess := mgr.New()

	sess.SetValue("token", "abc")
	require.NoError(t, mgr.Check(sess))

	sess.SetValue("token", strings.Repeat("x", 4000))
	require.Error(t, mgr.Check(sess))

	rec := httptest.NewRecorder()
	require.Error(t, mgr.Save(rec, sess), "Save fails the same way Check does")
	require.Empty(t, rec.Result().Cookies())
}
