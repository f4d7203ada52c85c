package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/shared/auth"
	"github.com/radieske/dice-round-platform/internal/shared/validation"
	"github.com/radieske/dice-round-platform/internal/wallet-service/dto"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

// Ledger define as operações de carteira usadas pelo handler HTTP
type Ledger interface {
	ApplyDelta(ctx context.Context, m ledger.Mutation) (ledger.Entry, error)
	OpenAccount(ctx context.Context, accountID string) (int64, error)
	Entries(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet)
type Server struct {
	log    *zap.Logger
	ledger Ledger
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, l Ledger) *Server { return &Server{log: log, ledger: l} }

// Router retorna as rotas da API de wallet
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.With(ownerOrPrivileged).Get("/wallet/{accountId}", s.getWallet)                    // saldo (cria conta zerada se não existir)
	r.With(ownerOrPrivileged).Get("/wallet/{accountId}/transactions", s.listTransactions) // ?limit=50

	// movimentações externas: só admin ou serviço interno (fluxo de pagamento)
	r.Group(func(r chi.Router) {
		r.Use(privileged)
		r.Post("/wallet/deposit", s.movement(ledger.KindDeposit))
		r.Post("/wallet/withdraw", s.movement(ledger.KindWithdraw))
	})
	return r
}

// ownerOrPrivileged: o apostador só enxerga a própria conta
func ownerOrPrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromRequest(r)
		switch {
		case id.ID == "":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "caller identity required"})
		case id.ID != chi.URLParam(r, "accountId") && !id.Privileged():
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "operation not allowed for caller"})
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func privileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromRequest(r)
		switch {
		case id.ID == "":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "caller identity required"})
		case !id.Privileged():
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "operation not allowed for caller"})
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// getWallet retorna (ou cria) a conta e o saldo
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountId")
	bal, err := s.ledger.OpenAccount(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{AccountID: id, BalanceCents: bal})
}

// listTransactions lista os lançamentos mais recentes da conta
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "accountId")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := s.ledger.Entries(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, dto.TransactionsResponse{AccountID: id, Transactions: entries})
}

// movement aplica depósito/saque; external_ref repetido devolve o saldo do lançamento original
func (s *Server) movement(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.MovementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
			return
		}
		if err := validation.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, validation.Format(err))
			return
		}

		ref := ""
		if req.ExternalRef != "" {
			ref = string(kind) + ":" + req.ExternalRef
		}
		e, err := s.ledger.ApplyDelta(r.Context(), ledger.Mutation{
			AccountID: req.AccountID,
			Amount:    req.AmountCents,
			Kind:      kind,
			Note:      req.Note,
			Ref:       ref,
		})
		if err != nil && !errors.Is(err, ledger.ErrDuplicateRef) {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.WalletResponse{AccountID: req.AccountID, BalanceCents: e.BalanceAfter})
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "insufficient funds"})
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
	default:
		s.log.Error("wallet request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
