package consumer

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

// MessageReader é o subconjunto do kafka.Reader usado aqui
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, roundID string) (settlement.Report, error)
}

// Processor consome a DLQ de liquidação e reexecuta a rodada.
// Várias falhas da mesma rodada viram um único replay.
type Processor struct {
	Log        *zap.Logger
	Reader     MessageReader
	Reconciler Reconciler

	// Requeue devolve o evento à DLQ com Attempt+1; nil desativa novas tentativas
	Requeue     func(ctx context.Context, ev events.SettlementFailed) error
	MaxAttempts int
	Backoff     time.Duration

	OnConsumed   func()       // métricas (counter++)
	OnReconciled func()       // métricas
	OnGaveUp     func()       // métricas: precisa de intervenção manual
	OnError      func(string) // métricas por fase

	done *lru.Cache[string, time.Time] // rodadas já reconciliadas
}

// Run inicia o loop principal de consumo da DLQ
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.SettlementFailed
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.RoundID == "" {
			p.Log.Warn("invalid message", zap.Error(err))
			p.fail("decode")
			continue
		}

		p.Handle(ctx, ev)
	}
}

// Handle reconcilia a rodada do evento; falhas são reenfileiradas até MaxAttempts
func (p *Processor) Handle(ctx context.Context, ev events.SettlementFailed) {
	p.init()

	// evento anterior à última reconciliação bem-sucedida não tem mais nada a fazer
	if at, ok := p.done.Get(ev.RoundID); ok && !ev.Ts.After(at) {
		p.Log.Debug("round already reconciled", zap.String("roundId", ev.RoundID))
		return
	}

	started := time.Now().UTC()
	rep, err := p.Reconciler.Reconcile(ctx, ev.RoundID)
	if err == nil {
		p.done.Add(ev.RoundID, started)
		if p.OnReconciled != nil {
			p.OnReconciled()
		}
		p.Log.Info("round reconciled from dlq",
			zap.String("roundId", ev.RoundID),
			zap.Int("bets", rep.Bets),
			zap.Int64("paidOut", rep.PaidOut),
			zap.Int("attempt", ev.Attempt))
		return
	}

	p.Log.Warn("reconcile failed",
		zap.String("roundId", ev.RoundID),
		zap.Int("attempt", ev.Attempt),
		zap.Error(err))
	p.fail("reconcile")

	if p.Requeue == nil || ev.Attempt >= p.MaxAttempts {
		p.Log.Error("manual reconciliation required",
			zap.String("roundId", ev.RoundID),
			zap.String("reason", ev.Reason),
			zap.Error(err))
		if p.OnGaveUp != nil {
			p.OnGaveUp()
		}
		return
	}

	if p.Backoff > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Backoff * time.Duration(ev.Attempt)):
		}
	}
	next := ev
	next.Attempt++
	next.Reason = err.Error()
	next.Ts = time.Now().UTC()
	if err := p.Requeue(ctx, next); err != nil {
		p.Log.Error("requeue failed", zap.String("roundId", ev.RoundID), zap.Error(err))
		p.fail("requeue")
	}
}

func (p *Processor) init() {
	if p.done == nil {
		// só falha com tamanho <= 0
		p.done, _ = lru.New[string, time.Time](1024)
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
