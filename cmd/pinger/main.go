package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"pinger/auth"
	"pinger/domain"
	grpcserver "pinger/infrastructure/grpc/server"
	httpserver "pinger/infrastructure/http/server"
	"pinger/infrastructure/storage"
	"pinger/infrastructure/ws"
	"pinger/internal"
	"pinger/moderation"
	"pinger/observability"
	"pinger/runtime"
	"pinger/runtime/workers"
	"pinger/services"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pinger terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run builds every component, serves until a signal or a fatal error, then shuts down in order.
// Returning instead of exiting lets the deferred cleanups run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	censorChar, err := internal.CharacterRune(config.CensorCharacter)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	gin.SetMode(config.GinMode)

	// 2. Offline queue storage (BadgerDB)
	db, err := storage.OpenBadger(config.BadgerFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Identity
	reserved, err := runtime.LoadReservedWords()
	if err != nil {
		return exitRuntime, fmt.Errorf("reserved words loading failed: %w", err)
	}
	moderator, err := moderation.NewModerator(reserved.Words, censorChar, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}
	logger.Debug("Reserved usernames loaded", "words", len(reserved.Words), "languages", reserved.Languages)
	signer, err := auth.NewSigner(config.JWTSecret)
	if err != nil {
		return exitConfig, err
	}
	if config.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, tokens will not survive a restart")
	}
	store := services.NewIdentityStore(logger, signer, moderator, config.TokenTTL, config.TokenUpgradeWindow)

	// 4. Core
	monitoring := observability.NewMonitoringManager(logger, config.MetricInterval)
	registry := runtime.NewRegistry(logger, store, config.EventBufferSize)
	queue := storage.NewPendingPingRepository(db, logger, monitoring, config.QueueCapPerIdentity, config.PingRetention)
	limiter := services.NewFixedWindowLimiter(config.RateLimitPerMinute, time.Minute)
	dispatcher := runtime.NewDispatcher(logger, registry, store, queue, limiter, monitoring, config.SinkTimeout)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errChan := make(chan error, 2)

	// 6. Background workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewPresenceFanout(logger, registry.Events(), config.SinkTimeout),
		workers.NewSessionSweeper(logger, store, limiter, config.CleanupInterval),
		monitoring,
	)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 7. gRPC health
	var health *grpcserver.HealthServer
	if config.GrpcHealthPort > 0 {
		address := fmt.Sprintf("%s:%d", config.Host, config.GrpcHealthPort)
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
		}
		health = grpcserver.NewHealthServer(logger)
		go func() {
			if err := health.Serve(ctx, listener); err != nil {
				errChan <- err
			}
		}()
	}

	// 8. HTTP API & WebSocket
	api := httpserver.NewServer(logger, store, registry, dispatcher, queue, monitoring, httpserver.Options{
		TokenTTL:           config.TokenTTL,
		ClientsRequireAuth: config.ClientsRequireAuth,
		Channel: ws.Options{
			BufferSize:   config.ConnectionBufferSize,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	})
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	if health != nil {
		health.SetServing(true)
	}

	// 9. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 10. Graceful Shutdown: stop accepting, close channels, then stop the workers
	logger.Info("Shutting down gracefully...")
	if health != nil {
		health.SetServing(false)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	closed := registry.CloseAll(domain.CloseServerShutdown, "server shutdown")
	logger.Info("Channels closed", "count", closed)
	stop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}
