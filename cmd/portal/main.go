package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/authclient"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/config"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/httpserver"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/observability"
	"github.com/Santhosh-1218/VIADOCS/internal/portal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Log.Level, observability.WithService("viadocs-portal"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	authClient, err := authclient.NewClient(cfg.Auth.Endpoint,
		authclient.WithTimeout(cfg.Auth.Timeout),
		authclient.WithTracerProvider(tp),
	)
	if err != nil {
		return fmt.Errorf("init auth client: %w", err)
	}

	if cfg.Session.GeneratedKeys {
		logger.Warn("session keys not configured; generated ephemeral keys, sessions will not survive a restart")
	}
	sessions, err := session.NewManager(session.Config{
		CookieName:  cfg.Session.CookieName,
		HashKey:     cfg.Session.HashKey,
		BlockKey:    cfg.Session.BlockKey,
		Secure:      cfg.Session.CookieSecure,
		IdleTimeout: cfg.Session.IdleTimeout,
		Lifetime:    cfg.Session.Lifetime,
	})
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}

	srv := httpserver.New(httpserver.Config{
		Address:            cfg.Server.Address,
		Environment:        cfg.Server.Environment,
		Logger:             logger,
		TracerProvider:     tp,
		Authenticator:      authClient,
		Sessions:           sessions,
		LoginPath:          cfg.Flow.LoginPath,
		HomePath:           cfg.Flow.HomePath,
		SignupPath:         cfg.Flow.SignupPath,
		ForgotPasswordPath: cfg.Flow.ForgotPasswordPath,
		RedirectDelay:      cfg.Flow.RedirectDelay,
		ToastTTL:           cfg.Flow.ToastTTL,
		CSRFCookieSecure:   cfg.Session.CookieSecure,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		IdleTimeout:        cfg.Server.IdleTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("portal listening",
		zap.String("addr", cfg.Server.Address),
		zap.String("environment", cfg.Server.Environment),
		zap.String("auth_endpoint", authClient.Endpoint()),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("portal stopped")
	return nil
}
