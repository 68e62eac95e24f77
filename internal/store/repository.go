/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the invoicing service. By
 * defining an interface, we decouple the application's business logic from
 * the specific database implementation (PostgreSQL), making the code more
 * modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/offmylawn101/invoicenow/internal/domain"
)

// SettlementFunc decides a lottery entry's outcome given the pool and entry
// rows locked inside the settlement transaction. It must be pure: the store
// applies whatever outcome and payout it returns.
type SettlementFunc func(pool *domain.LotteryPool, entry *domain.LotteryEntry) (outcome string, payout int64)

// ReminderScanOptions narrows the reminder scan to invoices actually worth
// chasing.
type ReminderScanOptions struct {
	DueBefore          int64     // unix seconds; invoices due before this moment
	LastReminderBefore time.Time // skip invoices reminded more recently
	MaxReminders       int       // skip invoices already at the reminder cap
	Limit              int
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Invoice methods
	CreateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error)
	ListInvoicesByCreator(ctx context.Context, creatorWallet string, opts domain.InvoiceListOptions) ([]domain.Invoice, error)
	GetInvoiceByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	GetInvoiceByReference(ctx context.Context, reference string) (*domain.Invoice, error)
	CancelInvoice(ctx context.Context, id uuid.UUID, creatorWallet string) (*domain.Invoice, error)
	MarkInvoicePaid(ctx context.Context, id uuid.UUID, txSignature string) (*domain.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status string, txSignature *string) (*domain.Invoice, error)
	FindReminderDueInvoices(ctx context.Context, opts ReminderScanOptions) ([]domain.Invoice, error)
	RecordInvoiceReminder(ctx context.Context, id uuid.UUID) error

	// Client methods
	CreateClient(ctx context.Context, client *domain.Client) (*domain.Client, error)
	ListClientsByOwner(ctx context.Context, ownerWallet string) ([]domain.Client, error)
	GetClientByID(ctx context.Context, id uuid.UUID, ownerWallet string) (*domain.Client, error)
	UpdateClient(ctx context.Context, id uuid.UUID, ownerWallet string, payload domain.UpsertClientPayload) (*domain.Client, error)
	DeleteClient(ctx context.Context, id uuid.UUID, ownerWallet string) (bool, error)

	// Lottery pool methods
	CreateLotteryPool(ctx context.Context, pool *domain.LotteryPool) (*domain.LotteryPool, error)
	GetLotteryPoolByMint(ctx context.Context, tokenMint string) (*domain.LotteryPool, error)
	ListLotteryPools(ctx context.Context) ([]domain.LotteryPool, error)
	UpdateLotteryPool(ctx context.Context, tokenMint string, payload domain.UpsertLotteryPoolPayload) (*domain.LotteryPool, error)
	SetLotteryPoolPaused(ctx context.Context, tokenMint string, paused bool) (*domain.LotteryPool, error)

	// Lottery entry methods
	CreateLotteryEntryAtomic(ctx context.Context, entry *domain.LotteryEntry, tokenMint string) (*domain.LotteryEntry, error)
	GetLotteryEntryByID(ctx context.Context, id uuid.UUID) (*domain.LotteryEntry, error)
	GetLotteryEntryByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*domain.LotteryEntry, error)
	// SettleLotteryEntryAtomic locks the entry and its pool, returns the
	// recorded entry untouched when it is already settled, and otherwise
	// applies the decision and adjusts the pool balance in one transaction.
	SettleLotteryEntryAtomic(ctx context.Context, entryID uuid.UUID, decide SettlementFunc) (entry *domain.LotteryEntry, alreadySettled bool, err error)
	// LotteryPoolActivity sums pool credits and payouts recorded for a mint,
	// used by the reconcile job to spot drift.
	LotteryPoolActivity(ctx context.Context, tokenMint string) (credits int64, payouts int64, err error)
}
