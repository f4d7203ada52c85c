package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

// snapshotKey guarda o último envelope de cada tipo da rodada corrente
const snapshotKey = "round:current"

// RedisBroadcaster publica envelopes no canal Pub/Sub e mantém o snapshot
// que novos clientes recebem ao conectar
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
	ttl     time.Duration
}

func NewRedisBroadcaster(r *redis.Client, channel string, ttl time.Duration) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel, ttl: ttl}
}

// Publish grava o snapshot e publica no canal. Um sessionStart zera o snapshot anterior.
func (b *RedisBroadcaster) Publish(ctx context.Context, env events.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	_, err = b.r.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if env.Type == events.TypeSessionStart {
			p.Del(ctx, snapshotKey)
		}
		p.HSet(ctx, snapshotKey, env.Type, payload)
		p.Expire(ctx, snapshotKey, b.ttl)
		p.Publish(ctx, b.channel, payload)
		return nil
	})
	return err
}

// Snapshot devolve o estado conhecido da rodada corrente, em ordem de ciclo
func (b *RedisBroadcaster) Snapshot(ctx context.Context) ([]events.Envelope, error) {
	raw, err := b.r.HGetAll(ctx, snapshotKey).Result()
	if err != nil {
		return nil, err
	}
	return orderSnapshot(raw), nil
}

// ordem em que um cliente novo deve receber o snapshot
var snapshotOrder = []string{
	events.TypeSessionStart,
	events.TypeBettingStats,
	events.TypeBettingClosed,
	events.TypeDiceRolled,
	events.TypeCountdown,
}

func orderSnapshot(raw map[string]string) []events.Envelope {
	out := make([]events.Envelope, 0, len(raw))
	for _, typ := range snapshotOrder {
		s, ok := raw[typ]
		if !ok {
			continue
		}
		var env events.Envelope
		if err := json.Unmarshal([]byte(s), &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}
