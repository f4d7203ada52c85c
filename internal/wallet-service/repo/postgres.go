package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

// Postgres implementa o ledger.Store em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// código de erro do postgres para violação de unicidade
const uniqueViolation = "23505"

// OpenAccount retorna o saldo de uma conta, criando-a com saldo zero se não existir
func (p *Postgres) OpenAccount(ctx context.Context, accountID string) (int64, error) {
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO accounts(id, balance_cents, version) VALUES($1,0,1) ON CONFLICT (id) DO NOTHING`,
		accountID); err != nil {
		return 0, err
	}
	return p.Balance(ctx, accountID)
}

// Balance lê o último saldo confirmado
func (p *Postgres) Balance(ctx context.Context, accountID string) (int64, error) {
	var bal int64
	err := p.db.QueryRowContext(ctx, `SELECT balance_cents FROM accounts WHERE id=$1`, accountID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrNotFound
	}
	return bal, err
}

// Apply atualiza o saldo e registra o lançamento na mesma transação
// Garante lock pessimista na linha da conta; a checagem de ref acontece já com o lock
func (p *Postgres) Apply(ctx context.Context, m ledger.Mutation, delta int64) (ledger.Entry, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer tx.Rollback()

	var before int64
	err = tx.QueryRowContext(ctx, `SELECT balance_cents FROM accounts WHERE id=$1 FOR UPDATE`, m.AccountID).Scan(&before)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, err
	}

	// Idempotência: mesmo (account, ref) devolve o lançamento original
	if m.Ref != "" {
		prev, err := scanEntry(tx.QueryRowContext(ctx, `
			SELECT id, account_id, kind, delta_cents, balance_before_cents, balance_after_cents, note, COALESCE(ref,''), created_at
			FROM ledger_entries WHERE account_id=$1 AND ref=$2`, m.AccountID, m.Ref))
		if err == nil {
			return prev, ledger.ErrDuplicateRef
		} else if !errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, err
		}
	}

	after, err := ledger.NextBalance(before, delta)
	if err != nil {
		return ledger.Entry{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE accounts SET balance_cents=$1, version = version + 1 WHERE id=$2`, after, m.AccountID); err != nil {
		return ledger.Entry{}, err
	}

	e := ledger.Entry{
		ID:            uuid.NewString(),
		AccountID:     m.AccountID,
		Kind:          m.Kind,
		Delta:         delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Note:          m.Note,
		Ref:           m.Ref,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries(id, account_id, kind, delta_cents, balance_before_cents, balance_after_cents, note, ref)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		e.ID, e.AccountID, string(e.Kind), e.Delta, e.BalanceBefore, e.BalanceAfter, e.Note, nullString(e.Ref),
	).Scan(&e.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ledger.Entry{}, ledger.ErrDuplicateRef
		}
		return ledger.Entry{}, err
	}

	if m.Attach != nil {
		if err := m.Attach(ctx, tx); err != nil {
			return ledger.Entry{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

// Entries retorna os lançamentos mais recentes primeiro
func (p *Postgres) Entries(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	if _, err := p.Balance(ctx, accountID); err != nil {
		return nil, err
	}

	q := `
		SELECT id, account_id, kind, delta_cents, balance_before_cents, balance_after_cents, note, COALESCE(ref,''), created_at
		FROM ledger_entries
		WHERE account_id=$1
		ORDER BY seq DESC`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (ledger.Entry, error) {
	var e ledger.Entry
	var kind string
	var created time.Time
	if err := s.Scan(&e.ID, &e.AccountID, &kind, &e.Delta, &e.BalanceBefore, &e.BalanceAfter, &e.Note, &e.Ref, &created); err != nil {
		return ledger.Entry{}, err
	}
	e.Kind = ledger.Kind(kind)
	e.CreatedAt = created.UTC()
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
