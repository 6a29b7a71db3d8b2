package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Auth.Endpoint != "http://localhost:5000/api/auth/login" {
		t.Errorf("unexpected default endpoint: %s", cfg.Auth.Endpoint)
	}
	if cfg.Flow.RedirectDelay != 1500*time.Millisecond {
		t.Errorf("unexpected redirect delay: %s", cfg.Flow.RedirectDelay)
	}
	if cfg.Flow.ToastTTL != 2*time.Second {
		t.Errorf("unexpected toast ttl: %s", cfg.Flow.ToastTTL)
	}
	if cfg.Flow.HomePath != "/home" || cfg.Flow.SignupPath != "/signup" || cfg.Flow.ForgotPasswordPath != "/forgot-password" {
		t.Errorf("unexpected destinations: %+v", cfg.Flow)
	}
	if !cfg.Session.GeneratedKeys || len(cfg.Session.HashKey) != 64 || len(cfg.Session.BlockKey) != 32 {
		t.Errorf("expected generated session keys in development, got %+v", cfg.Session)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.IsProduction() {
		t.Errorf("default environment should not be production")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"PORTAL_HTTP_ADDR":             ":9090",
		"PORTAL_ENVIRONMENT":           "Production",
		"PORTAL_AUTH_ENDPOINT":         "https://auth.viadocs.test/api/auth/login",
		"PORTAL_AUTH_TIMEOUT":          "3s",
		"PORTAL_REDIRECT_DELAY":        "2s",
		"PORTAL_HOME_PATH":             "/dashboard",
		"PORTAL_SIGNUP_PATH":           "https://viadocs.test/signup",
		"PORTAL_SESSION_HASH_KEY":      "0123456789abcdef0123456789abcdef",
		"PORTAL_SESSION_BLOCK_KEY":     "base64:MDEyMzQ1Njc4OWFiY2RlZg==",
		"PORTAL_SESSION_COOKIE_SECURE": "true",
		"LOG_LEVEL":                    "DEBUG",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("unexpected address: %s", cfg.Server.Address)
	}
	if !cfg.IsProduction() {
		t.Errorf("expected production environment")
	}
	if cfg.Auth.Endpoint != "https://auth.viadocs.test/api/auth/login" || cfg.Auth.Timeout != 3*time.Second {
		t.Errorf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Flow.RedirectDelay != 2*time.Second || cfg.Flow.HomePath != "/dashboard" {
		t.Errorf("unexpected flow config: %+v", cfg.Flow)
	}
	if cfg.Flow.SignupPath != "https://viadocs.test/signup" {
		t.Errorf("absolute signup destination should be kept, got %s", cfg.Flow.SignupPath)
	}
	if string(cfg.Session.BlockKey) != "0123456789abcdef" {
		t.Errorf("expected base64 block key to decode, got %q", cfg.Session.BlockKey)
	}
	if cfg.Session.GeneratedKeys {
		t.Errorf("configured keys must not be replaced")
	}
	if !cfg.Session.CookieSecure {
		t.Errorf("expected secure cookie")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected lower-cased log level, got %s", cfg.Log.Level)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"PORTAL_ENVIRONMENT":       "production",
		"PORTAL_AUTH_ENDPOINT":     "/api/auth/login",
		"PORTAL_HOME_PATH":         "//evil.example",
		"PORTAL_SESSION_BLOCK_KEY": "base64:!!!",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := map[string]bool{
		"Auth.Endpoint":    true,
		"Flow.HomePath":    true,
		"Session.HashKey":  true,
		"Session.BlockKey": true,
	}
	got := validationErr.Fields()
	if len(got) != len(want) {
		t.Fatalf("unexpected fields: %v", got)
	}
	for _, field := range got {
		if !want[field] {
			t.Errorf("unexpected invalid field %s", field)
		}
	}
}

func TestLoadReadsDotEnvWithLowestPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "PORTAL_AUTH_ENDPOINT=http://dotenv.test/login\nPORTAL_HTTP_ADDR=:7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"PORTAL_HTTP_ADDR": ":7100"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Auth.Endpoint != "http://dotenv.test/login" {
		t.Errorf("expected endpoint from .env, got %s", cfg.Auth.Endpoint)
	}
	if cfg.Server.Address != ":7100" {
		t.Errorf("explicit map should win over .env, got %s", cfg.Server.Address)
	}
}

func TestLoadIgnoresMissingDotEnv(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}
