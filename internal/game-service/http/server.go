package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/command"
	"github.com/radieske/dice-round-platform/internal/game-service/dto"
	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/scheduler"
	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/internal/shared/auth"
	"github.com/radieske/dice-round-platform/internal/shared/validation"
)

// Headers preenchidos pelo api-gateway a partir do token verificado
const (
	HeaderBettorID = auth.HeaderBettorID
	HeaderRole     = auth.HeaderRole
)

// Commands é a fronteira de comandos exposta via HTTP
type Commands interface {
	PlaceBet(ctx context.Context, c command.Caller, option string, amount int64) (command.BetAccepted, error)
	CurrentRound() scheduler.Snapshot
	AggregateStats() round.Stats
	StageOverride(c command.Caller, d [3]int) error
	AdjustBalance(ctx context.Context, c command.Caller, accountID string, signedAmount int64, note string) (int64, error)
	ReplaySettlement(ctx context.Context, c command.Caller, roundID string) (settlement.Report, error)
	History(ctx context.Context, c command.Caller, bettorID string, limit int) ([]round.History, error)
	BettorStats(ctx context.Context, c command.Caller, bettorID string) (round.BettorStats, error)
	RecentRounds(ctx context.Context, limit int) ([]command.RoundSummary, error)
	TopWinners(ctx context.Context, limit int) ([]round.Winner, error)
	Settings() scheduler.Settings
	UpdateConfig(c command.Caller, u scheduler.SettingsUpdate) (scheduler.Settings, error)
}

// Server expõe a API HTTP do jogo
type Server struct {
	log  *zap.Logger
	cmds Commands
	ws   http.HandlerFunc
}

func NewServer(log *zap.Logger, cmds Commands, ws http.HandlerFunc) *Server {
	return &Server{log: log, cmds: cmds, ws: ws}
}

// CallerFrom lê a identidade autenticada dos headers
func CallerFrom(r *http.Request) command.Caller {
	id := auth.FromRequest(r)
	return command.Caller{ID: id.ID, Role: command.Role(id.Role)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/bets", s.placeBet)
	r.Get("/rounds/current", s.currentRound)
	r.Get("/rounds/current/stats", s.currentStats)
	r.Get("/rounds/recent", s.recentRounds)     // ?limit=20
	r.Get("/history/top-winners", s.topWinners) // ranking do dia, ?limit=10
	r.Get("/history/{bettorId}", s.history)     // ?limit=50
	r.Get("/history/{bettorId}/stats", s.bettorStats)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/override", s.stageOverride)
		r.Post("/accounts/{accountId}/adjust", s.adjustBalance)
		r.Post("/rounds/{roundId}/replay", s.replay)
		r.Get("/config", s.getConfig)
		r.Post("/config", s.updateConfig)
	})

	if s.ws != nil {
		r.Get("/ws", s.ws)
	}
	return r
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if err := validation.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, validation.Format(err))
		return
	}

	acc, err := s.cmds.PlaceBet(r.Context(), CallerFrom(r), req.Option, req.AmountCents)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) currentRound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.CurrentRoundResponse{
		Snapshot:     s.cmds.CurrentRound(),
		BettingStats: s.cmds.AggregateStats(),
	})
}

func (s *Server) currentStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cmds.AggregateStats())
}

func (s *Server) recentRounds(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 20)
	if !ok {
		return
	}
	rounds, err := s.cmds.RecentRounds(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rounds == nil {
		rounds = []command.RoundSummary{}
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) topWinners(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 10)
	if !ok {
		return
	}
	items, err := s.cmds.TopWinners(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []round.Winner{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 50)
	if !ok {
		return
	}
	id := chi.URLParam(r, "bettorId")
	items, err := s.cmds.History(r.Context(), CallerFrom(r), id, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []round.History{}
	}
	writeJSON(w, http.StatusOK, dto.HistoryResponse{BettorID: id, Items: items})
}

func (s *Server) bettorStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.cmds.BettorStats(r.Context(), CallerFrom(r), chi.URLParam(r, "bettorId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) stageOverride(w http.ResponseWriter, r *http.Request) {
	var req dto.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if err := s.cmds.StageOverride(CallerFrom(r), req.Dice); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"staged": true, "dice": req.Dice})
}

func (s *Server) adjustBalance(w http.ResponseWriter, r *http.Request) {
	var req dto.AdjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if err := validation.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, validation.Format(err))
		return
	}

	id := chi.URLParam(r, "accountId")
	bal, err := s.cmds.AdjustBalance(r.Context(), CallerFrom(r), id, req.AmountCents, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: id, BalanceCents: bal})
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if !CallerFrom(r).IsAdmin() {
		s.writeError(w, command.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, configResponse(s.cmds.Settings()))
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if err := validation.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, validation.Format(err))
		return
	}

	var u scheduler.SettingsUpdate
	if req.BettingTimeSeconds != nil {
		d := time.Duration(*req.BettingTimeSeconds) * time.Second
		u.BettingWindow = &d
	}
	u.PayoutMultiplier = req.PayoutMultiplier

	st, err := s.cmds.UpdateConfig(CallerFrom(r), u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse(st))
}

func configResponse(st scheduler.Settings) dto.ConfigResponse {
	return dto.ConfigResponse{
		BettingTimeSeconds: int(st.BettingWindow / time.Second),
		PayoutMultiplier:   st.PayoutMultiplier,
	}
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request) {
	rep, err := s.cmds.ReplaySettlement(r.Context(), CallerFrom(r), chi.URLParam(r, "roundId"))
	resp := dto.ReplayResponse{
		RoundID:      rep.RoundID,
		Bets:         rep.Bets,
		Winners:      rep.Winners,
		Skipped:      rep.Skipped,
		Failed:       rep.Failed(),
		PaidOutCents: rep.PaidOut,
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, settlement.ErrIncomplete):
		// parte foi liquidada; o resto continua pendente
		writeJSON(w, http.StatusAccepted, resp)
	default:
		s.writeError(w, err)
	}
}

// writeError responde com o motivo explícito; erros internos são logados e ficam genéricos
func (s *Server) writeError(w http.ResponseWriter, err error) {
	reason := command.Reason(err)
	status := http.StatusInternalServerError
	switch reason {
	case "invalid_option", "invalid_amount", "override_out_of_range", "invalid_config":
		status = http.StatusBadRequest
	case "invalid_phase", "conflicting_option", "insufficient_funds":
		status = http.StatusConflict
	case "not_found":
		status = http.StatusNotFound
	case "forbidden":
		status = http.StatusForbidden
	case "unauthenticated":
		status = http.StatusUnauthorized
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("game request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Reason: reason})
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 500 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
