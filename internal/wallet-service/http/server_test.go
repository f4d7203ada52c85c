package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/shared/auth"
	"github.com/radieske/dice-round-platform/internal/wallet-service/dto"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

var (
	anonymous = auth.Identity{}
	payments  = auth.Identity{ID: "payments", Role: auth.RoleService}
	root      = auth.Identity{ID: "root", Role: auth.RoleAdmin}
)

func newTestServer(t *testing.T) (*ledger.Ledger, http.Handler) {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore(), zap.NewNop())
	return l, NewServer(zap.NewNop(), l).Router()
}

func do(h http.Handler, who auth.Identity, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if who.ID != "" {
		auth.Set(req.Header, who)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetWallet_OpensAccount(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, auth.Identity{ID: "alice", Role: auth.RoleBettor}, http.MethodGet, "/wallet/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.WalletResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.AccountID)
	assert.Equal(t, int64(0), resp.BalanceCents)
}

func TestGetWallet_OwnerOnly(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, anonymous, http.MethodGet, "/wallet/alice", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, auth.Identity{ID: "mallory", Role: auth.RoleBettor}, http.MethodGet, "/wallet/alice/transactions", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, root, http.MethodGet, "/wallet/alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMovement_RequiresPrivilegedCaller(t *testing.T) {
	l, h := newTestServer(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "mallory")
	require.NoError(t, err)

	body := `{"accountId":"mallory","amount_cents":100000000}`
	rec := do(h, anonymous, http.MethodPost, "/wallet/deposit", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// apostador não credita a própria conta, nem com papel de bettor explícito
	rec = do(h, auth.Identity{ID: "mallory", Role: auth.RoleBettor}, http.MethodPost, "/wallet/deposit", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(h, auth.Identity{ID: "mallory", Role: auth.RoleBettor}, http.MethodPost, "/wallet/withdraw", `{"accountId":"mallory","amount_cents":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	bal, err := l.GetBalance(ctx, "mallory")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestDepositWithdraw(t *testing.T) {
	l, h := newTestServer(t)
	_, err := l.OpenAccount(context.Background(), "alice")
	require.NoError(t, err)

	rec := do(h, payments, http.MethodPost, "/wallet/deposit", `{"accountId":"alice","amount_cents":500,"external_ref":"dep-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// mesma external_ref não credita de novo
	rec = do(h, payments, http.MethodPost, "/wallet/deposit", `{"accountId":"alice","amount_cents":500,"external_ref":"dep-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, payments, http.MethodPost, "/wallet/withdraw", `{"accountId":"alice","amount_cents":600}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h, root, http.MethodPost, "/wallet/withdraw", `{"accountId":"alice","amount_cents":200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.WalletResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(300), resp.BalanceCents)
}

func TestDeposit_Validation(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, payments, http.MethodPost, "/wallet/deposit", `{"accountId":"","amount_cents":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "accountid")

	rec = do(h, payments, http.MethodPost, "/wallet/deposit", `{"accountId":"ghost","amount_cents":10}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTransactions(t *testing.T) {
	l, h := newTestServer(t)
	ctx := context.Background()
	bob := auth.Identity{ID: "bob", Role: auth.RoleBettor}
	_, _ = l.OpenAccount(ctx, "bob")
	_, _ = l.ApplyDelta(ctx, ledger.Mutation{AccountID: "bob", Amount: 100, Kind: ledger.KindDeposit})
	_, _ = l.ApplyDelta(ctx, ledger.Mutation{AccountID: "bob", Amount: 30, Kind: ledger.KindDebitBet})

	rec := do(h, bob, http.MethodGet, "/wallet/bob/transactions?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.TransactionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, ledger.KindDebitBet, resp.Transactions[0].Kind)

	rec = do(h, bob, http.MethodGet, "/wallet/bob/transactions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
