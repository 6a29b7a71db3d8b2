package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/joho/godotenv"
)

const (
	defaultEnvFile            = ".env"
	defaultAddress            = ":8080"
	defaultEnvironment        = "development"
	defaultReadTimeout        = 10 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 60 * time.Second
	defaultAuthEndpoint       = "http://localhost:5000/api/auth/login"
	defaultAuthTimeout        = 10 * time.Second
	defaultRedirectDelay      = 1500 * time.Millisecond
	defaultToastTTL           = 2 * time.Second
	defaultHomePath           = "/home"
	defaultLoginPath          = "/login"
	defaultSignupPath         = "/signup"
	defaultForgotPasswordPath = "/forgot-password"
	defaultSessionCookie      = "viadocs_session"
	defaultSessionIdle        = 30 * time.Minute
	defaultSessionLifetime    = 12 * time.Hour
	defaultTokenFile          = "~/.viadocs/token.json"
	defaultLogLevel           = "info"
	minHashKeyLength          = 32
)

// Config captures runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Flow    FlowConfig
	Session SessionConfig
	CLI     CLIConfig
	Log     LogConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address      string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AuthConfig points at the remote auth service.
type AuthConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// FlowConfig tunes the login view.
type FlowConfig struct {
	RedirectDelay      time.Duration
	ToastTTL           time.Duration
	LoginPath          string
	HomePath           string
	SignupPath         string
	ForgotPasswordPath string
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName   string
	HashKey      []byte
	BlockKey     []byte
	CookieSecure bool
	IdleTimeout  time.Duration
	Lifetime     time.Duration
	// GeneratedKeys is set when no hash key was configured and one was generated.
	GeneratedKeys bool
}

// CLIConfig configures the terminal client.
type CLIConfig struct {
	TokenFile   string
	OpenBrowser bool
}

// LogConfig configures logging.
type LogConfig struct {
	Level string
}

// IsProduction reports whether the environment label is a production one.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Server.Environment) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	keyGenerator func(int) []byte
}

// WithEnvFile overrides the .env file path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles configuration from defaults, the .env file, the process
// environment and an optional explicit map, in increasing precedence.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		keyGenerator: randomKey,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string

	cfg := Config{
		Server: ServerConfig{
			Address:      stringWithDefault(lookup, "PORTAL_HTTP_ADDR", defaultAddress),
			Environment:  strings.ToLower(stringWithDefault(lookup, "PORTAL_ENVIRONMENT", defaultEnvironment)),
			ReadTimeout:  durationWithDefault(lookup, "PORTAL_HTTP_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "PORTAL_HTTP_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "PORTAL_HTTP_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Auth: AuthConfig{
			Endpoint: strings.TrimSpace(stringWithDefault(lookup, "PORTAL_AUTH_ENDPOINT", defaultAuthEndpoint)),
			Timeout:  durationWithDefault(lookup, "PORTAL_AUTH_TIMEOUT", defaultAuthTimeout),
		},
		Flow: FlowConfig{
			RedirectDelay:      durationWithDefault(lookup, "PORTAL_REDIRECT_DELAY", defaultRedirectDelay),
			ToastTTL:           durationWithDefault(lookup, "PORTAL_TOAST_TTL", defaultToastTTL),
			LoginPath:          stringWithDefault(lookup, "PORTAL_LOGIN_PATH", defaultLoginPath),
			HomePath:           stringWithDefault(lookup, "PORTAL_HOME_PATH", defaultHomePath),
			SignupPath:         stringWithDefault(lookup, "PORTAL_SIGNUP_PATH", defaultSignupPath),
			ForgotPasswordPath: stringWithDefault(lookup, "PORTAL_FORGOT_PASSWORD_PATH", defaultForgotPasswordPath),
		},
		Session: SessionConfig{
			CookieName:   stringWithDefault(lookup, "PORTAL_SESSION_COOKIE_NAME", defaultSessionCookie),
			CookieSecure: boolWithDefault(lookup, "PORTAL_SESSION_COOKIE_SECURE", false),
			IdleTimeout:  durationWithDefault(lookup, "PORTAL_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
			Lifetime:     durationWithDefault(lookup, "PORTAL_SESSION_LIFETIME", defaultSessionLifetime),
		},
		CLI: CLIConfig{
			TokenFile:   stringWithDefault(lookup, "PORTAL_TOKEN_FILE", defaultTokenFile),
			OpenBrowser: boolWithDefault(lookup, "PORTAL_OPEN_BROWSER", false),
		},
		Log: LogConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		},
	}

	hashKey, hashOK := keyWithDefault(lookup, "PORTAL_SESSION_HASH_KEY")
	blockKey, blockOK := keyWithDefault(lookup, "PORTAL_SESSION_BLOCK_KEY")
	if !hashOK {
		invalid = append(invalid, "Session.HashKey")
	}
	if !blockOK {
		invalid = append(invalid, "Session.BlockKey")
	}
	cfg.Session.HashKey = hashKey
	cfg.Session.BlockKey = blockKey
	if len(cfg.Session.HashKey) == 0 && !cfg.IsProduction() {
		cfg.Session.HashKey = options.keyGenerator(64)
		cfg.Session.BlockKey = options.keyGenerator(32)
		cfg.Session.GeneratedKeys = true
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if strings.TrimSpace(cfg.Server.Address) == "" {
		missing = append(missing, "Server.Address")
	}
	if !validEndpoint(cfg.Auth.Endpoint) {
		missing = append(missing, "Auth.Endpoint")
	}
	if cfg.Auth.Timeout <= 0 {
		missing = append(missing, "Auth.Timeout")
	}
	if cfg.Flow.RedirectDelay < 0 {
		missing = append(missing, "Flow.RedirectDelay")
	}
	if cfg.Flow.ToastTTL <= 0 {
		missing = append(missing, "Flow.ToastTTL")
	}
	if !strings.HasPrefix(cfg.Flow.LoginPath, "/") {
		missing = append(missing, "Flow.LoginPath")
	}
	if !validDestination(cfg.Flow.HomePath) {
		missing = append(missing, "Flow.HomePath")
	}
	if !validDestination(cfg.Flow.SignupPath) {
		missing = append(missing, "Flow.SignupPath")
	}
	if !validDestination(cfg.Flow.ForgotPasswordPath) {
		missing = append(missing, "Flow.ForgotPasswordPath")
	}
	if len(cfg.Session.HashKey) < minHashKeyLength {
		missing = append(missing, "Session.HashKey")
	}
	switch len(cfg.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		missing = append(missing, "Session.BlockKey")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: dedupe(missing)}
	}
	return nil
}

func validEndpoint(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// validDestination accepts a site-relative path or an absolute http(s) URL.
func validDestination(raw string) bool {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return true
	}
	return validEndpoint(raw)
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

// keyWithDefault decodes a key given as "base64:<data>" or as raw text.
// The second result is false when a base64 value fails to decode.
func keyWithDefault(lookup func(string) (string, bool), key string) ([]byte, bool) {
	value, ok := lookup(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return nil, true
	}
	if encoded, found := strings.CutPrefix(value, "base64:"); found {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, false
		}
		return decoded, true
	}
	return []byte(value), true
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func randomKey(length int) []byte {
	return securecookie.GenerateRandomKey(length)
}
