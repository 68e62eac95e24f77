/**
 * @description
 * PostgreSQL implementation of the lottery portion of the `Repository`
 * interface: per-mint pools and invoice entries. The two multi-row
 * operations, entry creation and settlement, run inside a database
 * transaction with the pool row locked so pool accounting stays consistent
 * under concurrent requests.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/offmylawn101/invoicenow/internal/domain"
)

const poolColumns = `id, token_mint, balance, house_edge_percent, min_reserve_percent,
	max_payout_percent, paused, created_at, updated_at`

const entryColumns = `id, invoice_id, client_wallet, invoice_amount, premium, pool_credit,
	risk_percent, entry_signature, outcome, payout, settled_at, created_at, updated_at`

func scanPool(row pgx.Row) (*domain.LotteryPool, error) {
	var p domain.LotteryPool
	err := row.Scan(
		&p.ID, &p.TokenMint, &p.Balance, &p.HouseEdgePercent, &p.MinReservePercent,
		&p.MaxPayoutPercent, &p.Paused, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanEntry(row pgx.Row) (*domain.LotteryEntry, error) {
	var e domain.LotteryEntry
	err := row.Scan(
		&e.ID, &e.InvoiceID, &e.ClientWallet, &e.InvoiceAmount, &e.Premium, &e.PoolCredit,
		&e.RiskPercent, &e.EntrySignature, &e.Outcome, &e.Payout, &e.SettledAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateLotteryPool inserts a new pool for a token mint.
func (r *PostgresRepository) CreateLotteryPool(ctx context.Context, pool *domain.LotteryPool) (*domain.LotteryPool, error) {
	query := `
		INSERT INTO lottery_pools (id, token_mint, balance, house_edge_percent, min_reserve_percent, max_payout_percent, paused)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + poolColumns
	stored, err := scanPool(r.db.QueryRow(ctx, query,
		pool.ID, pool.TokenMint, pool.Balance, pool.HouseEdgePercent,
		pool.MinReservePercent, pool.MaxPayoutPercent, pool.Paused,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPoolExists
		}
		return nil, err
	}
	return stored, nil
}

// GetLotteryPoolByMint retrieves the pool for a token mint.
func (r *PostgresRepository) GetLotteryPoolByMint(ctx context.Context, tokenMint string) (*domain.LotteryPool, error) {
	query := `SELECT ` + poolColumns + ` FROM lottery_pools WHERE token_mint = $1`
	pool, err := scanPool(r.db.QueryRow(ctx, query, tokenMint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return pool, nil
}

// ListLotteryPools returns every pool.
func (r *PostgresRepository) ListLotteryPools(ctx context.Context) ([]domain.LotteryPool, error) {
	rows, err := r.db.Query(ctx, `SELECT `+poolColumns+` FROM lottery_pools ORDER BY token_mint ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []domain.LotteryPool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *pool)
	}
	return pools, rows.Err()
}

// UpdateLotteryPool applies the non-nil fields of the payload to a pool.
func (r *PostgresRepository) UpdateLotteryPool(ctx context.Context, tokenMint string, payload domain.UpsertLotteryPoolPayload) (*domain.LotteryPool, error) {
	query := `
		UPDATE lottery_pools
		SET balance = COALESCE($2, balance),
		    house_edge_percent = COALESCE($3, house_edge_percent),
		    min_reserve_percent = COALESCE($4, min_reserve_percent),
		    max_payout_percent = COALESCE($5, max_payout_percent),
		    paused = COALESCE($6, paused),
		    updated_at = NOW()
		WHERE token_mint = $1
		RETURNING ` + poolColumns
	pool, err := scanPool(r.db.QueryRow(ctx, query, tokenMint,
		payload.Balance, payload.HouseEdgePercent, payload.MinReservePercent,
		payload.MaxPayoutPercent, payload.Paused,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return pool, nil
}

// SetLotteryPoolPaused flips the paused flag for a pool.
func (r *PostgresRepository) SetLotteryPoolPaused(ctx context.Context, tokenMint string, paused bool) (*domain.LotteryPool, error) {
	query := `UPDATE lottery_pools SET paused = $2, updated_at = NOW() WHERE token_mint = $1 RETURNING ` + poolColumns
	pool, err := scanPool(r.db.QueryRow(ctx, query, tokenMint, paused))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return pool, nil
}

// CreateLotteryEntryAtomic inserts a lottery entry, credits the pool with
// the entry's pool credit, and marks the invoice paid with the entry's
// transaction signature, all in one transaction. The pool row is locked
// first so concurrent entries serialize on the balance update, and the
// unique index on invoice_id enforces the one-entry-per-invoice invariant.
func (r *PostgresRepository) CreateLotteryEntryAtomic(ctx context.Context, entry *domain.LotteryEntry, tokenMint string) (*domain.LotteryEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the pool row and validate it accepts entries.
	var paused bool
	err = tx.QueryRow(ctx,
		`SELECT paused FROM lottery_pools WHERE token_mint = $1 FOR UPDATE`,
		tokenMint,
	).Scan(&paused)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("failed to lock lottery pool: %w", err)
	}
	if paused {
		return nil, ErrPoolPaused
	}

	// 2. Insert the entry.
	insertQuery := `
		INSERT INTO lottery_entries (
			id, invoice_id, client_wallet, invoice_amount, premium, pool_credit,
			risk_percent, entry_signature, outcome
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING ` + entryColumns
	stored, err := scanEntry(tx.QueryRow(ctx, insertQuery,
		entry.ID, entry.InvoiceID, entry.ClientWallet, entry.InvoiceAmount,
		entry.Premium, entry.PoolCredit, entry.RiskPercent, entry.EntrySignature,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateLotteryEntry
		}
		return nil, fmt.Errorf("failed to insert lottery entry: %w", err)
	}

	// 3. Mark the invoice paid with the entry's transaction signature. Doing
	// it in the same transaction leaves no window where the entry exists but
	// the invoice is still pending.
	tag, err := tx.Exec(ctx, `
		UPDATE invoices
		SET status = 'paid', paid_tx_signature = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'escrow_funded')`,
		entry.InvoiceID, entry.EntrySignature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInvoiceNotPayable
	}

	// 4. Credit the pool with the premium net of house edge.
	_, err = tx.Exec(ctx,
		`UPDATE lottery_pools SET balance = balance + $2, updated_at = NOW() WHERE token_mint = $1`,
		tokenMint, entry.PoolCredit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to credit lottery pool: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

// GetLotteryEntryByID retrieves a lottery entry by its ID.
func (r *PostgresRepository) GetLotteryEntryByID(ctx context.Context, id uuid.UUID) (*domain.LotteryEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM lottery_entries WHERE id = $1`
	entry, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// GetLotteryEntryByInvoiceID retrieves the entry attached to an invoice.
func (r *PostgresRepository) GetLotteryEntryByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*domain.LotteryEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM lottery_entries WHERE invoice_id = $1`
	entry, err := scanEntry(r.db.QueryRow(ctx, query, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// SettleLotteryEntryAtomic performs the settle-exactly-once operation. It
// locks the entry row; if the entry is already settled it returns the
// recorded outcome with no side effects. Otherwise it locks the pool, asks
// the decision function for the outcome, persists it, and debits the pool by
// the payout, all in one transaction.
func (r *PostgresRepository) SettleLotteryEntryAtomic(ctx context.Context, entryID uuid.UUID, decide SettlementFunc) (*domain.LotteryEntry, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the entry row. Settlement is the only path that locks both
	// rows, always entry first, so the two transactions cannot deadlock.
	entryQuery := `SELECT ` + entryColumns + `, (SELECT token_mint FROM invoices WHERE invoices.id = lottery_entries.invoice_id)
		FROM lottery_entries WHERE id = $1 FOR UPDATE`
	var entry domain.LotteryEntry
	var tokenMint string
	err = tx.QueryRow(ctx, entryQuery, entryID).Scan(
		&entry.ID, &entry.InvoiceID, &entry.ClientWallet, &entry.InvoiceAmount,
		&entry.Premium, &entry.PoolCredit, &entry.RiskPercent, &entry.EntrySignature,
		&entry.Outcome, &entry.Payout, &entry.SettledAt, &entry.CreatedAt, &entry.UpdatedAt,
		&tokenMint,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrEntryNotFound
		}
		return nil, false, fmt.Errorf("failed to lock lottery entry: %w", err)
	}

	// 2. Idempotency: a settled entry is returned as recorded.
	if entry.Settled() {
		return &entry, true, nil
	}

	// 3. Lock the pool and decide.
	poolQuery := `SELECT ` + poolColumns + ` FROM lottery_pools WHERE token_mint = $1 FOR UPDATE`
	pool, err := scanPool(tx.QueryRow(ctx, poolQuery, tokenMint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrPoolNotFound
		}
		return nil, false, fmt.Errorf("failed to lock lottery pool: %w", err)
	}

	outcome, payout := decide(pool, &entry)

	// 4. Persist the outcome.
	settled, err := scanEntry(tx.QueryRow(ctx, `
		UPDATE lottery_entries
		SET outcome = $2, payout = $3, settled_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+entryColumns, entryID, outcome, payout))
	if err != nil {
		return nil, false, fmt.Errorf("failed to record settlement: %w", err)
	}

	// 5. Debit the pool on a win.
	if payout > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE lottery_pools SET balance = balance - $2, updated_at = NOW() WHERE token_mint = $1`,
			tokenMint, payout,
		)
		if err != nil {
			return nil, false, fmt.Errorf("failed to debit lottery pool: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return settled, false, nil
}

// LotteryPoolActivity sums recorded pool credits and payouts for a mint.
func (r *PostgresRepository) LotteryPoolActivity(ctx context.Context, tokenMint string) (int64, int64, error) {
	query := `
		SELECT COALESCE(SUM(e.pool_credit), 0), COALESCE(SUM(e.payout), 0)
		FROM lottery_entries e
		JOIN invoices i ON i.id = e.invoice_id
		WHERE COALESCE(i.token_mint, '') = $1`
	var credits, payouts int64
	if err := r.db.QueryRow(ctx, query, tokenMint).Scan(&credits, &payouts); err != nil {
		return 0, 0, err
	}
	return credits, payouts, nil
}
