package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/martialartscode/pta-portal/backend/internal/auth"
	"github.com/martialartscode/pta-portal/backend/internal/config"
	"github.com/martialartscode/pta-portal/backend/internal/handler"
	chathandler "github.com/martialartscode/pta-portal/backend/internal/handler/chat"
	"github.com/martialartscode/pta-portal/backend/internal/middleware"
	"github.com/martialartscode/pta-portal/backend/internal/model/chat"
	"github.com/martialartscode/pta-portal/backend/internal/observability"
	"github.com/martialartscode/pta-portal/backend/internal/service/ai"
	chatservice "github.com/martialartscode/pta-portal/backend/internal/service/chat"
	"github.com/martialartscode/pta-portal/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	backend, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		RedisURL:    cfg.Storage.RedisURL,
		RedisPrefix: cfg.Storage.RedisPrefix,
		SQLitePath:  cfg.Storage.SQLitePath,
	})
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	writer := storage.NewWriter(backend, logger.With("component", "storage"), metrics)

	tokens := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	accounts := auth.NewAccounts(cfg.Auth.StaffAccounts, "")
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, staff login and the staff console are disabled")
	} else if accounts.Len() == 0 {
		logger.Warn("STAFF_ACCOUNTS is empty, only externally minted tokens can reach the staff console")
	}

	var composer chatservice.ReplyComposer
	if cfg.AI.AutoReply {
		if !cfg.AI.Enabled() {
			logger.Warn("AUTO_RESPONSE_AI set but Ark credentials are missing, using the configured away message")
		} else if c, err := ai.NewComposerFromConfig(ctx, cfg.AI, logger.With("component", "composer")); err != nil {
			logger.Warn("failed to initialize reply composer, using the configured away message", "error", err)
		} else {
			composer = c
			logger.Info("AI auto-reply composer enabled", "model", cfg.AI.Model)
		}
	}

	svc, err := chatservice.NewService(chatservice.Options{
		Persister:     writer,
		SettingsStore: backend,
		Defaults: chat.AutoResponse{
			Enabled:      cfg.Chat.AutoResponseEnabled,
			Message:      cfg.Chat.AutoResponseMessage,
			DelaySeconds: cfg.Chat.AutoResponseDelay,
		},
		Verifier:         tokens,
		Composer:         composer,
		Metrics:          metrics,
		Logger:           logger,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		SessionIdleTTL:   cfg.Chat.SessionIdleTTL,
		SweepInterval:    cfg.Chat.SweepInterval,
	})
	if err != nil {
		logger.Error("failed to create chat service", "error", err)
		os.Exit(1)
	}

	if _, err := svc.Restore(ctx, backend); err != nil {
		logger.Warn("failed to restore chat sessions, starting empty", "driver", cfg.Storage.Driver, "error", err)
	}
	svc.Start()

	origins := middleware.NewOrigins(cfg.Server.CORSOrigins, cfg.Server.Development())
	ws := chathandler.NewWebSocketHandler(svc, origins.CheckOrigin, cfg.Chat.SendBuffer, logger.With("component", "websocket"))

	router := handler.NewRouter(handler.Deps{
		Chat:      svc,
		WebSocket: ws,
		Staff:     tokens,
		Accounts:  accounts,
		Tokens:    tokens,
		Origins:   origins,
		Gatherer:  reg,
		Logger:    logger,
	})

	serveErr := startServer(ctx, cfg.Server, router, ws, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Close(shutdownCtx)
	if err := writer.Flush(shutdownCtx); err != nil {
		logger.Warn("failed to flush pending writes", "error", err)
	}
	writer.Close()
	if err := backend.Close(); err != nil {
		logger.Warn("failed to close storage", "error", err)
	}

	if serveErr != nil {
		logger.Error("server error", "error", serveErr)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, ws *chathandler.WebSocketHandler, logger *slog.Logger) error {
	addr, err := serverCfg.Addr()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// hijacked websocket connections are invisible to Shutdown
	srv.RegisterOnShutdown(ws.CloseAll)

	logger.Info("PTA backend listening", "addr", addr, "environment", serverCfg.Environment)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
