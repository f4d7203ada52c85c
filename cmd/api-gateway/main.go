package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	gateway "github.com/radieske/dice-round-platform/internal/api-gateway"
	"github.com/radieske/dice-round-platform/internal/shared/auth"
	"github.com/radieske/dice-round-platform/internal/shared/config"
	"github.com/radieske/dice-round-platform/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "api-gateway"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		log.Fatal("JWT_SECRET not set", zap.Error(err))
	}
	gw, err := gateway.New(log, verifier, gateway.Targets{Game: cfg.GameURL, Wallet: cfg.WalletURL})
	if err != nil {
		log.Fatal("invalid upstream", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info("api-gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
}
