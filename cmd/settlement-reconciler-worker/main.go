package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/dice"
	"github.com/radieske/dice-round-platform/internal/game-service/repo"
	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/internal/settlement-reconciler/consumer"
	"github.com/radieske/dice-round-platform/internal/shared/config"
	"github.com/radieske/dice-round-platform/internal/shared/db"
	"github.com/radieske/dice-round-platform/internal/shared/kafka"
	"github.com/radieske/dice-round-platform/internal/shared/logger"
	"github.com/radieske/dice-round-platform/internal/shared/metrics"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
	wrepo "github.com/radieske/dice-round-platform/internal/wallet-service/repo"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-reconciler-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres (ledger + rodadas)
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	rounds, err := repo.NewPostgres(pg)
	if err != nil {
		log.Fatal("round repo", zap.Error(err))
	}
	wallet := ledger.New(wrepo.NewPostgres(pg), log.Named("ledger"))
	engine := settlement.NewEngine(wallet, rounds, log.Named("settlement"))
	reconciler := settlement.NewReconciler(rounds, engine, dice.NewResolver(nil), log.Named("reconciler"))

	// Consumer group da DLQ; reenfileiramento usa o mesmo tópico
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicSettlementFailed, "settlement-reconciler")
	defer reader.Close()
	requeue := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicSettlementFailed)
	defer requeue.Close()

	// Métricas Prometheus para monitoramento da reconciliação
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconciler_messages_consumed_total", Help: "mensagens consumidas da DLQ"})
	reconciled := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconciler_rounds_reconciled_total", Help: "rodadas reconciliadas"})
	gaveUp := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconciler_rounds_abandoned_total", Help: "rodadas que esgotaram as tentativas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "reconciler_errors_total", Help: "erros por estágio"}, []string{"stage"})
	paid := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconciler_payout_cents_total", Help: "prêmios pagos na reconciliação (centavos)"})
	prometheus.MustRegister(consumed, reconciled, gaveUp, errorsBy, paid)
	engine.OnBetSettled = func(win bool, payout int64) {
		if win {
			paid.Add(float64(payout))
		}
	}

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Reconciler:  reconciler,
		MaxAttempts: 5,
		Backoff:     2 * time.Second,
		Requeue: func(ctx context.Context, ev events.SettlementFailed) error {
			return kafka.WriteJSON(ctx, requeue, ev.RoundID, ev)
		},
		OnConsumed:   consumed.Inc,
		OnReconciled: reconciled.Inc,
		OnGaveUp:     gaveUp.Inc,
		OnError:      func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, map[string]metrics.HealthFunc{
		"postgres": pg.PingContext,
	})
	defer metricsSrv.Close()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("settlement-reconciler started", zap.String("topic", cfg.TopicSettlementFailed))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("settlement-reconciler stopped")
}
