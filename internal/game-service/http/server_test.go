package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/betting"
	"github.com/radieske/dice-round-platform/internal/game-service/command"
	"github.com/radieske/dice-round-platform/internal/game-service/dice"
	"github.com/radieske/dice-round-platform/internal/game-service/dto"
	"github.com/radieske/dice-round-platform/internal/game-service/repo"
	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/scheduler"
	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

type stubRounds struct{ settings scheduler.Settings }

func (*stubRounds) Current() scheduler.Snapshot {
	return scheduler.Snapshot{Round: round.Round{ID: "r1", Phase: round.PhaseBetting}, State: scheduler.StateBetting, RemainingTime: 30}
}

func (r *stubRounds) Settings() scheduler.Settings { return r.settings }

func (r *stubRounds) UpdateSettings(u scheduler.SettingsUpdate) (scheduler.Settings, error) {
	if u.PayoutMultiplier != nil && !u.PayoutMultiplier.GreaterThan(decimal.NewFromInt(1)) {
		return r.settings, scheduler.ErrInvalidSettings
	}
	if u.BettingWindow != nil {
		r.settings.BettingWindow = *u.BettingWindow
	}
	if u.PayoutMultiplier != nil {
		r.settings.PayoutMultiplier = *u.PayoutMultiplier
	}
	return r.settings, nil
}

type testServer struct {
	h          http.Handler
	ledger     *ledger.Ledger
	resolver   *dice.Resolver
	reconciler *settlement.Reconciler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()
	l := ledger.New(ledger.NewMemoryStore(), log)
	mem := repo.NewMemory()
	resolver := dice.NewResolver(func() int { return 6 })
	bets := betting.NewService(betting.NewArena(), l, mem, log)
	engine := settlement.NewEngine(l, mem, log)
	rec := settlement.NewReconciler(mem, engine, resolver, log)

	require.NoError(t, mem.CreateRound(ctx, round.Round{ID: "r1", Phase: round.PhaseBetting, PayoutMultiplier: decimal.RequireFromString("1.95"), CreatedAt: time.Now()}))
	bets.Open("r1")
	_, _ = l.OpenAccount(ctx, "alice")
	_, err := l.ApplyDelta(ctx, ledger.Mutation{AccountID: "alice", Amount: 500, Kind: ledger.KindDeposit})
	require.NoError(t, err)

	rounds := &stubRounds{settings: scheduler.Settings{BettingWindow: 45 * time.Second, PayoutMultiplier: decimal.RequireFromString("1.95")}}
	gw := command.NewGateway(bets, rounds, resolver, l, rec, mem, log)
	return &testServer{h: NewServer(log, gw, nil).Router(), ledger: l, resolver: resolver, reconciler: rec}
}

func (s *testServer) do(method, path, who, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if who != "" {
		req.Header.Set(HeaderBettorID, who)
	}
	if role != "" {
		req.Header.Set(HeaderRole, role)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func TestPlaceBet_AcceptedAndRejected(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/bets", "alice", "", dto.PlaceBetRequest{Option: "big", AmountCents: 100})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var acc command.BetAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, "r1", acc.AcceptedRoundID)
	assert.Equal(t, int64(400), acc.BalanceAfter)

	rec = s.do(http.MethodPost, "/bets", "alice", "", dto.PlaceBetRequest{Option: "small", AmountCents: 100})
	assert.Equal(t, http.StatusConflict, rec.Code)
	var er dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "conflicting_option", er.Reason)

	rec = s.do(http.MethodPost, "/bets", "alice", "", dto.PlaceBetRequest{Option: "even", AmountCents: 10000})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "insufficient_funds", er.Reason)

	rec = s.do(http.MethodPost, "/bets", "", "", dto.PlaceBetRequest{Option: "even", AmountCents: 10})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceBet_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/bets", "alice", "", dto.PlaceBetRequest{Option: "tai", AmountCents: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))
	assert.Contains(t, fields, "option")
	assert.Contains(t, fields, "amountcents")
}

func TestCurrentRoundAndStats(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/bets", "alice", "", dto.PlaceBetRequest{Option: "odd", AmountCents: 100})

	rec := s.do(http.MethodGet, "/rounds/current", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cur struct {
		Round         round.Round `json:"round"`
		State         string      `json:"state"`
		RemainingTime int         `json:"remainingTime"`
		BettingStats  round.Stats `json:"bettingStats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cur))
	assert.Equal(t, "r1", cur.Round.ID)
	assert.Equal(t, "betting", cur.State)
	assert.Equal(t, 30, cur.RemainingTime)
	assert.Equal(t, round.OptionStats{Count: 1, TotalAmount: 100}, cur.BettingStats[round.OptionOdd])

	rec = s.do(http.MethodGet, "/rounds/current/stats", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st round.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Len(t, st, 4)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/admin/override", "alice", "bettor", dto.OverrideRequest{Dice: [3]int{6, 6, 6}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/admin/override", "root", "admin", dto.OverrideRequest{Dice: [3]int{0, 6, 6}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/admin/override", "root", "admin", dto.OverrideRequest{Dice: [3]int{6, 6, 6}})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, s.resolver.Staged())

	rec = s.do(http.MethodPost, "/admin/accounts/alice/adjust", "root", "admin", dto.AdjustBalanceRequest{AmountCents: -100})
	require.Equal(t, http.StatusOK, rec.Code)
	var bal dto.BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.Equal(t, int64(400), bal.BalanceCents)

	rec = s.do(http.MethodPost, "/admin/accounts/ghost/adjust", "root", "admin", dto.AdjustBalanceRequest{AmountCents: 100})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/admin/accounts/alice/adjust", "root", "admin", dto.AdjustBalanceRequest{AmountCents: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplayAndHistory(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/bets", "alice", "", dto.PlaceBetRequest{Option: "big", AmountCents: 100})
	require.Equal(t, http.StatusCreated, rec.Code)

	// r1 é a rodada corrente em betting: replay recusado
	rec = s.do(http.MethodPost, "/admin/rounds/r1/replay", "root", "admin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/admin/rounds/nope/replay", "root", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/history/alice", "bob", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/history/alice?limit=abc", "alice", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/history/alice", "alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hr dto.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hr))
	assert.Empty(t, hr.Items)

	rec = s.do(http.MethodGet, "/history/alice/stats", "alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/rounds/recent", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestConfigRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/admin/config", "alice", "bettor", map[string]any{"payoutMultiplier": "5"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// papel admin sem identidade não passa
	rec = s.do(http.MethodPost, "/admin/config", "", "admin", map[string]any{"payoutMultiplier": "5"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/admin/config", "root", "admin", map[string]any{"bettingTimeSeconds": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/admin/config", "root", "admin", map[string]any{"payoutMultiplier": "0.5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var er dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "invalid_config", er.Reason)

	rec = s.do(http.MethodPost, "/admin/config", "root", "admin", map[string]any{"bettingTimeSeconds": 30, "payoutMultiplier": "2.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cfg dto.ConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 30, cfg.BettingTimeSeconds)
	assert.True(t, cfg.PayoutMultiplier.Equal(decimal.RequireFromString("2.5")))

	rec = s.do(http.MethodGet, "/admin/config", "root", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 30, cfg.BettingTimeSeconds)
}

func TestTopWinnersRoute(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/bets", "alice", "", dto.PlaceBetRequest{Option: "big", AmountCents: 100})
	require.Equal(t, http.StatusCreated, rec.Code)

	// dados fixos 6,6,6 -> BIG, alice ganha 95 líquidos
	_, err := s.reconciler.Reconcile(context.Background(), "r1")
	require.NoError(t, err)

	rec = s.do(http.MethodGet, "/history/top-winners", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var top []round.Winner
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 1)
	assert.Equal(t, round.Winner{BettorID: "alice", TotalGames: 1, Wins: 1, NetProfit: 95, BiggestWin: 95}, top[0])

	rec = s.do(http.MethodGet, "/history/top-winners?limit=0", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
