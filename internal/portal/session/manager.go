// Package session keeps per-browser portal state (the auth token slot and
// pending flashes) in a signed, encrypted cookie.
package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	defaultCookieName  = "viadocs_session"
	defaultLifetime    = 12 * time.Hour
	defaultIdleTimeout = 30 * time.Minute
	idBytes            = 24
)

var (
	// ErrExpired reports a stored session past its idle or absolute limit.
	ErrExpired = errors.New("session: expired")
	// ErrInvalidCookie reports a cookie that failed authentication or decoding.
	ErrInvalidCookie = errors.New("session: invalid cookie")
	// ErrInvalidConfig reports unusable manager options.
	ErrInvalidConfig = errors.New("session: invalid config")
)

// Config controls the session cookie.
type Config struct {
	CookieName string
	// HashKey signs the cookie; BlockKey (16, 24 or 32 bytes) encrypts it.
	HashKey  []byte
	BlockKey []byte
	Secure   bool

	// IdleTimeout ends a session not seen for that long; Lifetime caps its
	// total age regardless of activity.
	IdleTimeout time.Duration
	Lifetime    time.Duration
	Now         func() time.Time
}

// Manager loads and saves sessions.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
}

// NewManager validates cfg and fills in defaults.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	switch len(cfg.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}
	if cfg.CookieName == "" {
		cfg.CookieName = defaultCookieName
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.Lifetime.Seconds()))

	return &Manager{cfg: cfg, codec: codec}, nil
}

// Load returns the session carried by r. It always returns a usable
// session: when the stored one cannot be used a fresh session comes back
// together with the reason (ErrExpired or ErrInvalidCookie).
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.New(), nil
	}

	var st state
	if err := m.codec.Decode(m.cfg.CookieName, cookie.Value, &st); err != nil || st.ID == "" {
		return m.New(), ErrInvalidCookie
	}
	if m.expired(st, m.cfg.Now()) {
		return m.New(), ErrExpired
	}
	return &Session{st: st}, nil
}

// New starts an empty session. It is dirty so the first response sets the cookie.
func (m *Manager) New() *Session {
	now := m.cfg.Now().UTC()
	return &Session{
		st: state{
			ID:      newID(),
			Created: now,
			Seen:    now,
		},
		dirty: true,
	}
}

// Check reports whether sess can be written as a cookie, without writing it.
// Callers use it to learn about an oversized session while they can still
// undo the change.
func (m *Manager) Check(sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}
	if _, err := m.codec.Encode(m.cfg.CookieName, sess.st); err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	return nil
}

// Save writes sess to w. The cookie lives until the absolute lifetime ends;
// idle expiry is enforced on Load from the last-seen time.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}
	now := m.cfg.Now().UTC()
	sess.st.Seen = now

	encoded, err := m.codec.Encode(m.cfg.CookieName, sess.st)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}

	expires := sess.st.Created.Add(m.cfg.Lifetime)
	maxAge := int(expires.Sub(now).Round(time.Second).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	sess.dirty = false
	return nil
}

func (m *Manager) expired(st state, now time.Time) bool {
	now = now.UTC()
	if now.After(st.Created.Add(m.cfg.Lifetime)) {
		return true
	}
	seen := st.Seen
	if seen.IsZero() {
		seen = st.Created
	}
	return now.Sub(seen) > m.cfg.IdleTimeout
}

func newID() string {
	raw := securecookie.GenerateRandomKey(idBytes)
	if raw == nil {
		panic("session: random source unavailable")
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}
