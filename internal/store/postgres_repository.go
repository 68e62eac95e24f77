/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for invoices and clients. It contains all the necessary SQL
 * queries to interact with the `invoices` and `clients` tables.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/offmylawn101/invoicenow/internal/domain"
)

var (
	ErrInvoiceNotFound       = errors.New("invoice not found")
	ErrInvoiceNotPending     = errors.New("invoice is not pending")
	ErrInvoiceNotPayable     = errors.New("invoice is not payable")
	ErrClientNotFound        = errors.New("client not found")
	ErrPoolNotFound          = errors.New("lottery pool not found")
	ErrPoolExists            = errors.New("lottery pool already exists")
	ErrPoolPaused            = errors.New("lottery pool is paused")
	ErrEntryNotFound         = errors.New("lottery entry not found")
	ErrDuplicateLotteryEntry = errors.New("invoice already has a lottery entry")
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface
// for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const invoiceColumns = `id, creator_wallet, client_id, client_email, client_wallet, amount,
	COALESCE(token_mint, '') AS token_mint, due_date, COALESCE(memo, '') AS memo, status,
	milestones, payment_reference, payment_link, paid_tx_signature, reminder_count,
	last_reminder_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	var milestonesJSON []byte
	err := row.Scan(
		&inv.ID, &inv.CreatorWallet, &inv.ClientID, &inv.ClientEmail, &inv.ClientWallet,
		&inv.Amount, &inv.TokenMint, &inv.DueDate, &inv.Memo, &inv.Status,
		&milestonesJSON, &inv.PaymentReference, &inv.PaymentLink, &inv.PaidTxSignature,
		&inv.ReminderCount, &inv.LastReminderAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(milestonesJSON) > 0 {
		if err := json.Unmarshal(milestonesJSON, &inv.Milestones); err != nil {
			return nil, fmt.Errorf("failed to decode invoice milestones: %w", err)
		}
	}
	return &inv, nil
}

// CreateInvoice inserts a new invoice and returns the stored row.
func (r *PostgresRepository) CreateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	milestonesJSON, err := json.Marshal(inv.Milestones)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invoice milestones: %w", err)
	}
	query := `
		INSERT INTO invoices (
			id, creator_wallet, client_id, client_email, client_wallet, amount,
			token_mint, due_date, memo, status, milestones, payment_reference, payment_link
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + invoiceColumns
	row := r.db.QueryRow(ctx, query,
		inv.ID, inv.CreatorWallet, inv.ClientID, inv.ClientEmail, inv.ClientWallet,
		inv.Amount, inv.TokenMint, inv.DueDate, inv.Memo, inv.Status,
		milestonesJSON, inv.PaymentReference, inv.PaymentLink,
	)
	return scanInvoice(row)
}

// ListInvoicesByCreator returns the creator's invoices, newest first.
func (r *PostgresRepository) ListInvoicesByCreator(ctx context.Context, creatorWallet string, opts domain.InvoiceListOptions) ([]domain.Invoice, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var conditions []string
	args := []interface{}{creatorWallet}
	conditions = append(conditions, "creator_wallet = $1")
	if opts.Status != "" {
		args = append(args, opts.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(memo ILIKE $%d OR COALESCE(client_email, '') ILIKE $%d)", len(args), len(args)))
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM invoices
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		invoiceColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// GetInvoiceByID retrieves a single invoice by its ID.
func (r *PostgresRepository) GetInvoiceByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

// GetInvoiceByReference retrieves an invoice by its unique payment reference.
func (r *PostgresRepository) GetInvoiceByReference(ctx context.Context, reference string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE payment_reference = $1`
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

// CancelInvoice moves a pending invoice to cancelled. Invoices are never
// hard-deleted.
func (r *PostgresRepository) CancelInvoice(ctx context.Context, id uuid.UUID, creatorWallet string) (*domain.Invoice, error) {
	query := `
		UPDATE invoices
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND creator_wallet = $2 AND status = 'pending'
		RETURNING ` + invoiceColumns
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id, creatorWallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish missing from non-pending for a useful API error.
			if _, getErr := r.GetInvoiceByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrInvoiceNotPending
		}
		return nil, err
	}
	return inv, nil
}

// MarkInvoicePaid transitions a payable invoice to paid and records the
// transaction signature. Marking an already-paid invoice with the same
// signature is a no-op so payment confirmation can be retried safely.
func (r *PostgresRepository) MarkInvoicePaid(ctx context.Context, id uuid.UUID, txSignature string) (*domain.Invoice, error) {
	query := `
		UPDATE invoices
		SET status = 'paid', paid_tx_signature = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'escrow_funded')
		RETURNING ` + invoiceColumns
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id, txSignature))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	existing, getErr := r.GetInvoiceByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status == domain.InvoiceStatusPaid && existing.PaidTxSignature != nil && *existing.PaidTxSignature == txSignature {
		return existing, nil
	}
	return nil, ErrInvoiceNotPayable
}

// UpdateInvoiceStatus is the admin escape hatch for forcing a status. It
// refuses to move a terminal invoice.
func (r *PostgresRepository) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status string, txSignature *string) (*domain.Invoice, error) {
	query := `
		UPDATE invoices
		SET status = $2,
		    paid_tx_signature = COALESCE($3, paid_tx_signature),
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('paid', 'cancelled')
		RETURNING ` + invoiceColumns
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id, status, txSignature))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetInvoiceByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrInvoiceNotPayable
		}
		return nil, err
	}
	return inv, nil
}

// FindReminderDueInvoices returns pending invoices whose due date has passed
// (or falls inside the lead window encoded in DueBefore) and that have not
// been reminded recently or too often.
func (r *PostgresRepository) FindReminderDueInvoices(ctx context.Context, opts ReminderScanOptions) ([]domain.Invoice, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status = 'pending'
		  AND due_date <= $1
		  AND reminder_count < $2
		  AND (last_reminder_at IS NULL OR last_reminder_at < $3)
		ORDER BY due_date ASC
		LIMIT $4`
	rows, err := r.db.Query(ctx, query, opts.DueBefore, opts.MaxReminders, opts.LastReminderBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// RecordInvoiceReminder bumps the reminder counter and timestamp.
func (r *PostgresRepository) RecordInvoiceReminder(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE invoices
		SET reminder_count = reminder_count + 1, last_reminder_at = NOW(), updated_at = NOW()
		WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// CreateClient inserts a new address-book client.
func (r *PostgresRepository) CreateClient(ctx context.Context, client *domain.Client) (*domain.Client, error) {
	query := `
		INSERT INTO clients (id, owner_wallet, name, email, wallet)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_wallet, name, email, wallet, created_at, updated_at`
	var stored domain.Client
	err := r.db.QueryRow(ctx, query, client.ID, client.OwnerWallet, client.Name, client.Email, client.Wallet).Scan(
		&stored.ID, &stored.OwnerWallet, &stored.Name, &stored.Email, &stored.Wallet,
		&stored.CreatedAt, &stored.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListClientsByOwner returns all clients owned by a wallet, by name.
func (r *PostgresRepository) ListClientsByOwner(ctx context.Context, ownerWallet string) ([]domain.Client, error) {
	query := `
		SELECT id, owner_wallet, name, email, wallet, created_at, updated_at
		FROM clients
		WHERE owner_wallet = $1
		ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, ownerWallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.OwnerWallet, &c.Name, &c.Email, &c.Wallet, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// GetClientByID retrieves one client scoped to its owner.
func (r *PostgresRepository) GetClientByID(ctx context.Context, id uuid.UUID, ownerWallet string) (*domain.Client, error) {
	query := `
		SELECT id, owner_wallet, name, email, wallet, created_at, updated_at
		FROM clients
		WHERE id = $1 AND owner_wallet = $2`
	var c domain.Client
	err := r.db.QueryRow(ctx, query, id, ownerWallet).Scan(
		&c.ID, &c.OwnerWallet, &c.Name, &c.Email, &c.Wallet, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpdateClient replaces a client's mutable fields.
func (r *PostgresRepository) UpdateClient(ctx context.Context, id uuid.UUID, ownerWallet string, payload domain.UpsertClientPayload) (*domain.Client, error) {
	query := `
		UPDATE clients
		SET name = $3, email = $4, wallet = $5, updated_at = NOW()
		WHERE id = $1 AND owner_wallet = $2
		RETURNING id, owner_wallet, name, email, wallet, created_at, updated_at`
	var c domain.Client
	err := r.db.QueryRow(ctx, query, id, ownerWallet, payload.Name, payload.Email, payload.Wallet).Scan(
		&c.ID, &c.OwnerWallet, &c.Name, &c.Email, &c.Wallet, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

// DeleteClient removes a client. Invoices keep their client_id reference
// nulled by the FK's ON DELETE SET NULL.
func (r *PostgresRepository) DeleteClient(ctx context.Context, id uuid.UUID, ownerWallet string) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1 AND owner_wallet = $2`, id, ownerWallet)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
