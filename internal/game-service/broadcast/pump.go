package broadcast

import (
	"context"

	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Pump repassa as transições do scheduler para o publisher até o canal fechar.
// Falha de publicação só é logada: o ciclo da rodada não depende do broadcast.
func Pump(ctx context.Context, in <-chan events.Envelope, pub Publisher, log *zap.Logger, onError func()) {
	for env := range in {
		if err := pub.Publish(ctx, env); err != nil {
			log.Warn("broadcast publish failed",
				zap.String("type", env.Type),
				zap.String("roundId", env.RoundID),
				zap.Error(err))
			if onError != nil {
				onError()
			}
		}
	}
}
