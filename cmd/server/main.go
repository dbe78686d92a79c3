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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	soauth "github.com/pilab-dev/shadow-oauth"
	ginapi "github.com/pilab-dev/shadow-oauth/api/gin"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/internal/backend"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/internal/server"
	"github.com/pilab-dev/shadow-oauth/internal/telemetry"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/pilab-dev/shadow-oauth/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	appLogger := log.NewZerologAdapter(log.ParseLevel(cfg.LogLevel), cfg.LogPretty)
	ctx := context.Background()

	appLogger.Info(ctx, "Starting shadow-oauth server...", log.Fields{
		"http_port":     cfg.HTTPPort,
		"store_backend": cfg.StoreBackend,
		"cache_backend": cfg.CacheBackend,
		"log_level":     cfg.LogLevel,
		"otel_service":  cfg.OtelServiceName,
	})

	lifetimes, err := cfg.Lifetimes()
	if err != nil {
		appLogger.Fatal(ctx, "Invalid credential lifetimes", err)
	}

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName, nil)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(registry)

	mp, err := telemetry.InitMeterProvider(registry)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err)
	}

	store, err := backend.Open(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open backend", err)
	}

	users := services.NewUserService(store.Users, auth.NewBcryptPasswordHasher(bcrypt.DefaultCost))

	oauthServer := soauth.NewServer(store.Credentials, users,
		soauth.WithLogger(appLogger),
		soauth.WithLifetimes(soauth.Lifetimes{
			Temporary:  lifetimes.Temporary,
			Authorised: lifetimes.Authorised,
			Token:      lifetimes.Token,
		}),
		soauth.WithObserver(soauth.NewLifecycleObserver(appLogger, audit.Default)),
	)

	checks := make(map[string]ginapi.HealthCheck, len(store.Checks))
	for name, check := range store.Checks {
		checks[name] = check
	}

	httpServer := server.NewHTTPServer(cfg, appLogger, ginapi.NewOAuth2API(oauthServer, appLogger), registry, checks)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	go soauth.NewCleaner(store.Credentials, cfg.CleanInterval, appLogger).Run(runCtx)

	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down server...", receivedSignal))
	stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}

	if err := store.Close(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Backend close error", err)
	}

	telemetry.Shutdown(shutdownCtx, appLogger, tp, mp)

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
