package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

// sliceReader entrega as mensagens e depois bloqueia até o ctx terminar
type sliceReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) == 0 {
		r.mu.Unlock()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	r.mu.Unlock()
	return m, nil
}

func (r *sliceReader) drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs) == 0
}

type stubReconciler struct {
	calls []string
	err   error
}

func (s *stubReconciler) Reconcile(_ context.Context, roundID string) (settlement.Report, error) {
	s.calls = append(s.calls, roundID)
	return settlement.Report{RoundID: roundID}, s.err
}

func message(t *testing.T, ev events.SettlementFailed) kafka.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(ev.RoundID), Value: b}
}

func runUntilDrained(t *testing.T, p *Processor, r *sliceReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	require.Eventually(t, func() bool { return r.drained() }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestProcessor_ReconcilesOncePerRound(t *testing.T) {
	ts := time.Now().UTC().Add(-time.Minute)
	r := &sliceReader{msgs: []kafka.Message{
		message(t, events.SettlementFailed{RoundID: "r1", BetID: "b1", Attempt: 1, Ts: ts}),
		message(t, events.SettlementFailed{RoundID: "r1", BetID: "b2", Attempt: 1, Ts: ts}),
		{Value: []byte("not json")},
		message(t, events.SettlementFailed{RoundID: "r2", Attempt: 1, Ts: ts}),
	}}
	rec := &stubReconciler{}
	stages := map[string]int{}
	p := &Processor{
		Log:        zap.NewNop(),
		Reader:     r,
		Reconciler: rec,
		OnError:    func(s string) { stages[s]++ },
	}

	runUntilDrained(t, p, r)

	assert.Equal(t, []string{"r1", "r2"}, rec.calls)
	assert.Equal(t, 1, stages["decode"])
}

func TestProcessor_RequeuesUntilMaxAttempts(t *testing.T) {
	rec := &stubReconciler{err: errors.New("wallet down")}
	var requeued []events.SettlementFailed
	gaveUp := 0
	p := &Processor{
		Log:         zap.NewNop(),
		Reconciler:  rec,
		MaxAttempts: 2,
		Requeue: func(_ context.Context, ev events.SettlementFailed) error {
			requeued = append(requeued, ev)
			return nil
		},
		OnGaveUp: func() { gaveUp++ },
	}
	p.Handle(context.Background(), events.SettlementFailed{RoundID: "r1", Attempt: 1})
	require.Len(t, requeued, 1)
	assert.Equal(t, 2, requeued[0].Attempt)
	assert.Equal(t, "wallet down", requeued[0].Reason)

	p.Handle(context.Background(), requeued[0])
	assert.Len(t, requeued, 1)
	assert.Equal(t, 1, gaveUp)
}
