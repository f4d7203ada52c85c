package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

// tamanho do cache de rodadas já liquidadas (imutáveis)
const settledCacheSize = 512

// Postgres implementa o Repository em banco
type Postgres struct {
	db      *sql.DB
	settled *lru.Cache[string, round.Round]
}

func NewPostgres(db *sql.DB) (*Postgres, error) {
	c, err := lru.New[string, round.Round](settledCacheSize)
	if err != nil {
		return nil, err
	}
	return &Postgres{db: db, settled: c}, nil
}

const roundCols = `id, phase, dice, total_points, big_small_result, even_odd_result,
	betting_window_seconds, payout_multiplier, needs_reconciliation, created_at, completed_at`

func (p *Postgres) CreateRound(ctx context.Context, r round.Round) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rounds (id, phase, betting_window_seconds, payout_multiplier, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		r.ID, string(r.Phase), r.BettingWindowSeconds, r.PayoutMultiplier, r.CreatedAt)
	return err
}

// UpdatePhase nunca tira uma rodada de settled
func (p *Postgres) UpdatePhase(ctx context.Context, roundID string, phase round.Phase) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE rounds SET phase=$2 WHERE id=$1 AND phase <> 'settled'`, roundID, string(phase))
	return err
}

func (p *Postgres) GetRound(ctx context.Context, id string) (round.Round, error) {
	if r, ok := p.settled.Get(id); ok {
		return r, nil
	}
	r, err := scanRound(p.db.QueryRowContext(ctx, `SELECT `+roundCols+` FROM rounds WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return round.Round{}, round.ErrNotFound
	}
	if err != nil {
		return round.Round{}, err
	}
	p.remember(r)
	return r, nil
}

// UnsettledRounds lista rodadas interrompidas ou marcadas para reconciliação, mais antigas primeiro
func (p *Postgres) UnsettledRounds(ctx context.Context) ([]round.Round, error) {
	return p.queryRounds(ctx, `
		SELECT `+roundCols+` FROM rounds
		WHERE phase <> 'settled' OR needs_reconciliation
		ORDER BY created_at`)
}

func (p *Postgres) RecentRounds(ctx context.Context, limit int) ([]round.Round, error) {
	return p.queryRounds(ctx, `
		SELECT `+roundCols+` FROM rounds
		WHERE phase = 'settled'
		ORDER BY created_at DESC
		LIMIT $1`, limit)
}

// SaveResolution grava os dados uma única vez; se já existirem, devolve os gravados
func (p *Postgres) SaveResolution(ctx context.Context, roundID string, o round.Outcome, overridden bool) (round.Outcome, error) {
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO round_resolutions (round_id, dice, overridden)
		VALUES ($1,$2,$3)
		ON CONFLICT (round_id) DO NOTHING`,
		roundID, pq.Array(diceSlice(o.Dice)), overridden); err != nil {
		return round.Outcome{}, err
	}
	stored, err := p.Resolution(ctx, roundID)
	if err != nil {
		return round.Outcome{}, err
	}
	if stored == nil {
		return round.Outcome{}, round.ErrNotFound
	}
	return *stored, nil
}

func (p *Postgres) Resolution(ctx context.Context, roundID string) (*round.Outcome, error) {
	var dice pq.Int64Array
	err := p.db.QueryRowContext(ctx, `SELECT dice FROM round_resolutions WHERE round_id=$1`, roundID).Scan(&dice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o := round.NewOutcome(diceArray(dice))
	return &o, nil
}

// CompleteRound leva a rodada a settled. Campos de resultado só são gravados se ainda vazios.
func (p *Postgres) CompleteRound(ctx context.Context, roundID string, o *round.Outcome, needs bool, at time.Time) error {
	var dice, total, bigSmall, evenOdd any
	if o != nil {
		dice = pq.Array(diceSlice(o.Dice))
		total = o.Total
		bigSmall = string(o.BigSmall)
		evenOdd = string(o.EvenOdd)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE rounds SET
			phase = 'settled',
			dice = COALESCE(dice, $2),
			total_points = COALESCE(total_points, $3),
			big_small_result = COALESCE(big_small_result, $4),
			even_odd_result = COALESCE(even_odd_result, $5),
			needs_reconciliation = $6,
			completed_at = COALESCE(completed_at, $7)
		WHERE id = $1`,
		roundID, dice, total, bigSmall, evenOdd, needs, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return round.ErrNotFound
	}
	p.settled.Remove(roundID)
	return nil
}

// InsertBet roda dentro da transação do débito quando tx != nil
func (p *Postgres) InsertBet(ctx context.Context, tx ledger.Tx, b round.Bet) error {
	_, err := p.execer(tx).ExecContext(ctx, `
		INSERT INTO bets (id, round_id, bettor_id, option, amount_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.RoundID, b.BettorID, string(b.Option), b.Amount, b.CreatedAt)
	return err
}

// UnsettledBets retorna apostas da rodada ainda sem histórico
func (p *Postgres) UnsettledBets(ctx context.Context, roundID string) ([]round.Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT b.id, b.round_id, b.bettor_id, b.option, b.amount_cents, b.created_at
		FROM bets b
		LEFT JOIN bet_history h ON h.bet_id = b.id
		WHERE b.round_id = $1 AND h.bet_id IS NULL
		ORDER BY b.created_at`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []round.Bet
	for rows.Next() {
		var b round.Bet
		var opt string
		if err := rows.Scan(&b.ID, &b.RoundID, &b.BettorID, &opt, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Option = round.Option(opt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertHistory é idempotente por bet_id
func (p *Postgres) InsertHistory(ctx context.Context, tx ledger.Tx, h round.History) error {
	_, err := p.execer(tx).ExecContext(ctx, `
		INSERT INTO bet_history (bet_id, round_id, bettor_id, dice, total_points, big_small_result,
			even_odd_result, option, amount_cents, win_amount_cents, is_win, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (bet_id) DO NOTHING`,
		h.BetID, h.RoundID, h.BettorID, pq.Array(diceSlice(h.Outcome.Dice)), h.Outcome.Total,
		string(h.Outcome.BigSmall), string(h.Outcome.EvenOdd), string(h.Option),
		h.Amount, h.WinAmount, h.IsWin, h.CreatedAt)
	return err
}

func (p *Postgres) HistoryByBettor(ctx context.Context, bettorID string, limit int) ([]round.History, error) {
	q := `
		SELECT bet_id, round_id, bettor_id, dice, option, amount_cents, win_amount_cents, is_win, created_at
		FROM bet_history
		WHERE bettor_id = $1
		ORDER BY created_at DESC`
	args := []any{bettorID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []round.History
	for rows.Next() {
		var h round.History
		var dice pq.Int64Array
		var opt string
		if err := rows.Scan(&h.BetID, &h.RoundID, &h.BettorID, &dice, &opt, &h.Amount, &h.WinAmount, &h.IsWin, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Outcome = round.NewOutcome(diceArray(dice))
		h.Option = round.Option(opt)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *Postgres) BettorStats(ctx context.Context, bettorID string) (round.BettorStats, error) {
	var st round.BettorStats
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_win),
			COALESCE(SUM(amount_cents), 0),
			COALESCE(SUM(win_amount_cents), 0)
		FROM bet_history WHERE bettor_id = $1`, bettorID,
	).Scan(&st.TotalGames, &st.Wins, &st.TotalBet, &st.TotalWin)
	if err != nil {
		return round.BettorStats{}, err
	}
	st.Losses = st.TotalGames - st.Wins
	st.NetProfit = st.TotalWin - st.TotalBet
	return st, nil
}

// TopWinners: ranking de lucro líquido desde since
func (p *Postgres) TopWinners(ctx context.Context, since time.Time, limit int) ([]round.Winner, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT bettor_id,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_win),
			SUM(win_amount_cents - amount_cents) AS net_profit,
			MAX(win_amount_cents - amount_cents)
		FROM bet_history
		WHERE created_at >= $1
		GROUP BY bettor_id
		ORDER BY net_profit DESC, bettor_id
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []round.Winner
	for rows.Next() {
		var w round.Winner
		if err := rows.Scan(&w.BettorID, &w.TotalGames, &w.Wins, &w.NetProfit, &w.BiggestWin); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) execer(tx ledger.Tx) ledger.Tx {
	if tx != nil {
		return tx
	}
	return p.db
}

func (p *Postgres) queryRounds(ctx context.Context, q string, args ...any) ([]round.Round, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []round.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		p.remember(r)
		out = append(out, r)
	}
	return out, rows.Err()
}

// remember cacheia só rodadas finais
func (p *Postgres) remember(r round.Round) {
	if r.Phase == round.PhaseSettled && !r.NeedsReconciliation {
		p.settled.Add(r.ID, r)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(s scanner) (round.Round, error) {
	var (
		r         round.Round
		phase     string
		dice      pq.Int64Array
		total     sql.NullInt64
		bigSmall  sql.NullString
		evenOdd   sql.NullString
		mult      decimal.Decimal
		completed sql.NullTime
	)
	if err := s.Scan(&r.ID, &phase, &dice, &total, &bigSmall, &evenOdd,
		&r.BettingWindowSeconds, &mult, &r.NeedsReconciliation, &r.CreatedAt, &completed); err != nil {
		return round.Round{}, err
	}
	r.Phase = round.Phase(phase)
	r.PayoutMultiplier = mult
	if len(dice) == 3 {
		o := round.NewOutcome(diceArray(dice))
		r.Outcome = &o
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return r, nil
}

func diceSlice(d [3]int) []int64 {
	return []int64{int64(d[0]), int64(d[1]), int64(d[2])}
}

func diceArray(s pq.Int64Array) [3]int {
	var d [3]int
	for i := 0; i < len(d) && i < len(s); i++ {
		d[i] = int(s[i])
	}
	return d
}
