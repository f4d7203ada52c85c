package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/radieske/dice-round-platform/internal/game-service/command"
	"github.com/radieske/dice-round-platform/internal/game-service/scheduler"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

var (
	_ scheduler.Notifier = (*KafkaPublisher)(nil)
	_ scheduler.Notifier = LogPublisher{}
	_ command.BetEvents  = (*KafkaPublisher)(nil)
	_ command.BetEvents  = LogPublisher{}
)

func TestNewKafkaPublisher_Topics(t *testing.T) {
	p := NewKafkaPublisher("localhost:9092", "bet_placed", "round_settled", "settlement_failed_dlq")
	assert.Equal(t, "bet_placed", p.BetPlacedWriter.Topic)
	assert.Equal(t, "round_settled", p.RoundSettledWriter.Topic)
	assert.Equal(t, "settlement_failed_dlq", p.DLQWriter.Topic)
	assert.NoError(t, p.Close())
}

func TestLogPublisher_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := LogPublisher{Log: zap.New(core)}

	assert.NoError(t, p.SettlementFailed(context.Background(), events.SettlementFailed{RoundID: "r1", BetID: "b1", Reason: "boom"}))

	entries := logs.FilterMessage("settlement failed event").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "r1", entries[0].ContextMap()["roundId"])
	}
}
