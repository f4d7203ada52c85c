package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_GameServiceDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "game-service")

	cfg := Load()

	assert.Equal(t, "8084", cfg.HTTPPort)
	assert.Equal(t, "9099", cfg.MetricsPort)
	assert.Equal(t, 45*time.Second, cfg.Round.BettingWindow)
	assert.Equal(t, 2*time.Second, cfg.Round.RollingDelay)
	assert.Equal(t, 15*time.Second, cfg.Round.RevealWindow)
	assert.Equal(t, "1.95", cfg.Round.PayoutMultiplier)
	assert.Equal(t, "bet_placed", cfg.TopicBetPlaced)
}

func TestLoad_RoundOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "game-service")
	t.Setenv("ROUND_BETTING_SECONDS", "30")
	t.Setenv("ROUND_TICK_MILLIS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.Round.BettingWindow)
	assert.Equal(t, time.Second, cfg.Round.Tick)
}
