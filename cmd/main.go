package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse/internal/app/registry"
	"pulse/internal/app/rooms"
	"pulse/internal/app/server"
	"pulse/internal/config"
	"pulse/internal/core/services"
	"pulse/internal/platform/logger"
	"pulse/internal/platform/metrics"
	"pulse/internal/platform/telemetry"
	"pulse/internal/plugins/postgres"
	redisPlugin "pulse/internal/plugins/redis"
	"pulse/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logger
	log := logger.NewLogger(cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", logging.Err(err))
		otelShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", logging.Err(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Infra
	pdb, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", logging.Err(err))
		return err
	}
	defer pdb.Close()
	log.Info("postgres connected")
	rdb, err := redisPlugin.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", slog.String("url", cfg.Redis.URL), logging.Err(err))
		return err
	}
	defer rdb.Close()
	log.Info("redis connected")

	// Adapters
	userRepo := postgres.NewUserRepository(pdb)
	chatRepo := postgres.NewChatRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	txManager := postgres.NewTxManager(pdb)
	mirror := redisPlugin.NewPresenceMirror(rdb)

	// Core Services
	hub := registry.NewRegistry()
	index := rooms.NewIndex(chatRepo)
	fanout := services.NewFanout(log, m)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	presenceSvc := services.NewPresenceService(log, hub, userRepo, mirror, fanout,
		cfg.Presence.HeartbeatInterval, cfg.Presence.TTL)
	typingSvc := services.NewTypingService(log, index, fanout, m, cfg.Realtime.TypingTTL)
	msgSvc := services.NewMessageService(log, index, chatRepo, msgRepo, txManager, typingSvc, fanout, m,
		cfg.Realtime.MaxContentLength)
	managerSvc := services.NewManagerService(log, tokenSvc, userRepo, chatRepo, hub, index,
		presenceSvc, typingSvc, msgSvc, fanout, m, cfg.Realtime.AuthTimeout)

	go presenceSvc.RunHeartbeat(ctx)

	// Server
	srv := server.NewServer(log, cfg, managerSvc, reg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", logging.Err(err))
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	// Graceful shutdown: stop accepting, then let the manager close every
	// live connection and drain background writes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logging.Err(err))
	}
	log.Info("closing live connections", slog.Int("count", hub.Len()))
	if err := managerSvc.Shutdown(shutdownCtx); err != nil {
		log.Error("manager shutdown failed", logging.Err(err))
		return err
	}
	log.Info("shutdown complete")
	return nil
}
