package producer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/shared/kafka"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

// KafkaPublisher publica os fatos duráveis do jogo: apostas aceitas,
// rodadas liquidadas e falhas de liquidação (DLQ)
type KafkaPublisher struct {
	BetPlacedWriter    *kafka.Writer
	RoundSettledWriter *kafka.Writer
	DLQWriter          *kafka.Writer
}

func NewKafkaPublisher(brokers, topicBetPlaced, topicRoundSettled, topicDLQ string) *KafkaPublisher {
	return &KafkaPublisher{
		BetPlacedWriter:    kafka.NewWriter(brokers, topicBetPlaced),
		RoundSettledWriter: kafka.NewWriter(brokers, topicRoundSettled),
		DLQWriter:          kafka.NewWriter(brokers, topicDLQ),
	}
}

// BetPlaced usa o roundId como chave: apostas da mesma rodada ficam na mesma partição
func (p *KafkaPublisher) BetPlaced(ctx context.Context, e events.BetPlaced) error {
	if e.TsUnixMs == 0 {
		e.TsUnixMs = time.Now().UnixMilli()
	}
	return kafka.WriteJSON(ctx, p.BetPlacedWriter, e.RoundID, e)
}

func (p *KafkaPublisher) RoundSettled(ctx context.Context, e events.RoundSettled) error {
	return kafka.WriteJSON(ctx, p.RoundSettledWriter, e.RoundID, e)
}

func (p *KafkaPublisher) SettlementFailed(ctx context.Context, e events.SettlementFailed) error {
	return kafka.WriteJSON(ctx, p.DLQWriter, e.RoundID, e)
}

func (p *KafkaPublisher) Close() error {
	var first error
	for _, w := range []*kafka.Writer{p.BetPlacedWriter, p.RoundSettledWriter, p.DLQWriter} {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogPublisher só registra em log; usado sem Kafka (STORE_DRIVER=memory)
type LogPublisher struct{ Log *zap.Logger }

func (p LogPublisher) BetPlaced(_ context.Context, e events.BetPlaced) error {
	p.Log.Debug("bet placed event", zap.String("betId", e.BetID), zap.String("roundId", e.RoundID))
	return nil
}

func (p LogPublisher) RoundSettled(_ context.Context, e events.RoundSettled) error {
	p.Log.Info("round settled event",
		zap.String("roundId", e.RoundID),
		zap.Int("total", e.Total),
		zap.Int64("paidOut", e.PaidOutCents))
	return nil
}

func (p LogPublisher) SettlementFailed(_ context.Context, e events.SettlementFailed) error {
	p.Log.Error("settlement failed event",
		zap.String("roundId", e.RoundID),
		zap.String("betId", e.BetID),
		zap.String("reason", e.Reason))
	return nil
}
