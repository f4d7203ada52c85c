package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/betting"
	"github.com/radieske/dice-round-platform/internal/game-service/broadcast"
	"github.com/radieske/dice-round-platform/internal/game-service/command"
	"github.com/radieske/dice-round-platform/internal/game-service/dice"
	ghttp "github.com/radieske/dice-round-platform/internal/game-service/http"
	gmetrics "github.com/radieske/dice-round-platform/internal/game-service/metrics"
	"github.com/radieske/dice-round-platform/internal/game-service/producer"
	"github.com/radieske/dice-round-platform/internal/game-service/repo"
	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/scheduler"
	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/internal/game-service/ws"
	sharedcache "github.com/radieske/dice-round-platform/internal/shared/cache"
	"github.com/radieske/dice-round-platform/internal/shared/config"
	"github.com/radieske/dice-round-platform/internal/shared/db"
	"github.com/radieske/dice-round-platform/internal/shared/logger"
	"github.com/radieske/dice-round-platform/internal/shared/metrics"
	whttp "github.com/radieske/dice-round-platform/internal/wallet-service/http"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
	wrepo "github.com/radieske/dice-round-platform/internal/wallet-service/repo"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

// eventSink publica os fatos duráveis (Kafka ou log)
type eventSink interface {
	scheduler.Notifier
	command.BetEvents
}

// roundFeed publica transições e devolve o snapshot para novos clientes
type roundFeed interface {
	broadcast.Publisher
	ws.SnapshotSource
}

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "game-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("driver", cfg.StoreDriver))

	mult, err := round.ParseMultiplier(cfg.Round.PayoutMultiplier)
	if err != nil {
		log.Fatal("invalid payout multiplier", zap.String("value", cfg.Round.PayoutMultiplier), zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	memory := cfg.StoreDriver == "memory"
	checks := map[string]metrics.HealthFunc{}

	// Persistência: ledger e rodadas no mesmo Postgres, ou tudo em memória
	var (
		ledgerStore ledger.Store
		rounds      repo.Repository
		pg          *sql.DB
	)
	if memory {
		ledgerStore = ledger.NewMemoryStore()
		rounds = repo.NewMemory()
	} else {
		pg, err = db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		defer pg.Close()
		if err := db.Migrate(pg); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		checks["postgres"] = pg.PingContext

		ledgerStore = wrepo.NewPostgres(pg)
		rounds, err = repo.NewPostgres(pg)
		if err != nil {
			log.Fatal("round repo", zap.Error(err))
		}
	}

	m := gmetrics.New(prometheus.DefaultRegisterer)

	wallet := ledger.New(ledgerStore, log.Named("ledger"))
	m.WireLedger(wallet)

	resolver := dice.NewResolver(nil)

	bets := betting.NewService(betting.NewArena(), wallet, rounds, log.Named("betting"))
	m.WireBetting(bets)

	engine := settlement.NewEngine(wallet, rounds, log.Named("settlement"))
	m.WireSettlement(engine)
	reconciler := settlement.NewReconciler(rounds, engine, resolver, log.Named("reconciler"))

	// Eventos duráveis
	var sink eventSink
	if memory {
		sink = producer.LogPublisher{Log: log.Named("events")}
	} else {
		kp := producer.NewKafkaPublisher(cfg.KafkaBrokers, cfg.TopicBetPlaced, cfg.TopicRoundSettled, cfg.TopicSettlementFailed)
		defer kp.Close()
		sink = kp
	}

	sched := scheduler.New(scheduler.Config{
		BettingWindow:    cfg.Round.BettingWindow,
		RollingDelay:     cfg.Round.RollingDelay,
		RevealWindow:     cfg.Round.RevealWindow,
		Tick:             cfg.Round.Tick,
		PayoutMultiplier: mult,
	}, rounds, bets, resolver, engine, reconciler, sink, log.Named("scheduler"))
	m.WireScheduler(sched)

	gw := command.NewGateway(bets, sched, resolver, wallet, reconciler, rounds, log.Named("command"))
	gw.BetEvents = sink

	// Broadcast: Redis pub/sub entre instâncias, ou direto no hub local
	var hub *ws.Hub
	deliver := func(env events.Envelope) { hub.Broadcast(env) }

	var (
		feed      roundFeed
		subscribe func()
	)
	if memory {
		feed = broadcast.NewLocal(deliver)
	} else {
		rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		feed = broadcast.NewRedisBroadcaster(rdb, cfg.RedisBroadcastChannel, 2*time.Minute)
		subscribe = func() {
			broadcast.StartRedisSubscriber(ctx, rdb, cfg.RedisBroadcastChannel, deliver, log.Named("subscriber"))
		}
	}
	gw.Broadcaster = feed

	hub = ws.NewHub(allowAnyOrigin, gw, feed, ghttp.CallerFrom, log.Named("ws"))
	hub.OnConnect = m.WSClients.Inc
	hub.OnDisconnect = m.WSClients.Dec
	if subscribe != nil {
		subscribe()
	}

	api := ghttp.NewServer(log, gw, hub.HandleWS)

	// Em memória o ledger só existe neste processo: a API de wallet sobe junto
	handler := api.Router()
	if memory {
		mux := http.NewServeMux()
		mux.Handle("/wallet/", whttp.NewServer(log.Named("wallet"), wallet).Router())
		mux.Handle("/", handler)
		handler = mux
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, checks)

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api srv", zap.Error(err))
			cancel()
		}
	}()

	// Broadcast roda até o scheduler fechar o canal de eventos
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		broadcast.Pump(context.WithoutCancel(ctx), sched.Events(), feed, log, m.BroadcastErrors.Inc)
	}()

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scheduler stopped with error", zap.Error(err))
	}
	<-pumped

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("game-service stopped")
}

// a origem é validada pelo api-gateway
func allowAnyOrigin(*http.Request) bool { return true }
