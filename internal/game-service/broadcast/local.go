package broadcast

import (
	"context"
	"sync"

	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

// Local entrega direto ao sink, sem Redis (STORE_DRIVER=memory, uma instância só)
type Local struct {
	sink func(events.Envelope)

	mu   sync.Mutex
	last map[string]events.Envelope
}

func NewLocal(sink func(events.Envelope)) *Local {
	return &Local{sink: sink, last: make(map[string]events.Envelope)}
}

func (l *Local) Publish(_ context.Context, env events.Envelope) error {
	l.mu.Lock()
	if env.Type == events.TypeSessionStart {
		l.last = make(map[string]events.Envelope)
	}
	l.last[env.Type] = env
	l.mu.Unlock()

	if l.sink != nil {
		l.sink(env)
	}
	return nil
}

func (l *Local) Snapshot(_ context.Context) ([]events.Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Envelope, 0, len(l.last))
	for _, typ := range snapshotOrder {
		if env, ok := l.last[typ]; ok {
			out = append(out, env)
		}
	}
	return out, nil
}
