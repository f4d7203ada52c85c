package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/shared/config"
	"github.com/radieske/dice-round-platform/internal/shared/db"
	"github.com/radieske/dice-round-platform/internal/shared/logger"
	"github.com/radieske/dice-round-platform/internal/shared/metrics"
	whttp "github.com/radieske/dice-round-platform/internal/wallet-service/http"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
	wrepo "github.com/radieske/dice-round-platform/internal/wallet-service/repo"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "wallet-service"
	}

	// Inicializa logger estruturado
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("driver", cfg.StoreDriver))

	checks := map[string]metrics.HealthFunc{}

	// Store do ledger: Postgres (compartilhado com o game-service) ou memória
	var store ledger.Store
	if cfg.StoreDriver == "memory" {
		store = ledger.NewMemoryStore()
	} else {
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		defer pg.Close()
		if err := db.Migrate(pg); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		checks["postgres"] = pg.PingContext
		store = wrepo.NewPostgres(pg)
	}

	l := ledger.New(store, log.Named("ledger"))

	// Métricas Prometheus das mutações de saldo
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wallet_ledger_entries_total", Help: "lançamentos por tipo"}, []string{"kind"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wallet_ledger_rejections_total", Help: "mutações rejeitadas por motivo"}, []string{"reason"})
	prometheus.MustRegister(applied, rejected)
	l.OnApplied = func(k ledger.Kind) { applied.WithLabelValues(string(k)).Inc() }
	l.OnRejected = func(reason string) { rejected.WithLabelValues(reason).Inc() }

	api := whttp.NewServer(log, l)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, checks) // ex: 9098

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api srv", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("wallet-service stopped")
}
