package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatline-app/chat-service/config"
	"github.com/chatline-app/chat-service/internal/postgres"
	"github.com/chatline-app/chat-service/internal/security"
	"github.com/chatline-app/chat-service/internal/service"
	httpx "github.com/chatline-app/chat-service/internal/transport/http"
	"github.com/chatline-app/chat-service/internal/transport/ws"
	"github.com/chatline-app/chat-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	userRepo := postgres.NewUserRepository(db.Pool)
	roomRepo := postgres.NewChatroomRepository(db.Pool)
	msgRepo := postgres.NewMessageRepository(db.Pool)

	// --- services ---
	jwt := security.NewJWTSigner([]byte(cfg.Auth.JWTSecret), cfg.Logging.Service, cfg.TokenTTL())
	authSvc := service.NewAuthService(userRepo, jwt, time.Now)
	roomSvc := service.NewChatroomService(roomRepo)
	msgSvc := service.NewMessageService(msgRepo, roomRepo, time.Now)

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, authSvc, roomSvc, msgSvc)
	wsServer.SetPingEvery(cfg.PingEvery())
	wsServer.SetSendBuffer(cfg.WS.SendBuffer)

	// --- HTTP ---
	handler := httpx.NewHandler(authSvc, roomSvc, msgSvc, wsServer, cfg.Client.PageSize)
	router := httpx.NewRouter(handler, authSvc, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
