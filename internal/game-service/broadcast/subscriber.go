package broadcast

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de broadcast e entrega cada envelope ao sink
// (normalmente o hub WebSocket). Encerra a inscrição quando o ctx termina.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, sink func(events.Envelope), log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				var env events.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Warn("broadcast subscriber unmarshal", zap.Error(err))
					continue
				}
				sink(env)
			}
		}
	}()
}
