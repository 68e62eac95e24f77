/**
 * @description
 * This file defines the core invoicing domain models. These structs represent
 * the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the token's smallest unit (lamports for
 *   native SOL, base units for SPL tokens), which avoids floating-point
 *   inaccuracies with financial data.
 * - Wallet addresses and token mints are base58-encoded strings. An empty
 *   token mint means the invoice is denominated in native SOL.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Invoice statuses. Paid and cancelled are terminal.
const (
	InvoiceStatusPending      = "pending"
	InvoiceStatusPaid         = "paid"
	InvoiceStatusCancelled    = "cancelled"
	InvoiceStatusEscrowFunded = "escrow_funded"
)

// Invoice represents an invoice record in the database. It maps to the
// `invoices` table.
type Invoice struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	CreatorWallet    string     `json:"creator_wallet" db:"creator_wallet"`
	ClientID         *uuid.UUID `json:"client_id,omitempty" db:"client_id"`
	ClientEmail      *string    `json:"client_email,omitempty" db:"client_email"`
	ClientWallet     *string    `json:"client_wallet,omitempty" db:"client_wallet"`
	Amount           int64      `json:"amount" db:"amount"`
	TokenMint        string     `json:"token_mint" db:"token_mint"`
	DueDate          int64      `json:"due_date" db:"due_date"` // unix seconds
	Memo             string     `json:"memo" db:"memo"`
	Status           string     `json:"status" db:"status"`
	Milestones       Milestones `json:"milestones,omitempty" db:"milestones"`
	PaymentReference string     `json:"payment_reference" db:"payment_reference"`
	PaymentLink      string     `json:"payment_link" db:"payment_link"`
	PaidTxSignature  *string    `json:"paid_tx_signature,omitempty" db:"paid_tx_signature"`
	ReminderCount    int        `json:"reminder_count" db:"reminder_count"`
	LastReminderAt   *time.Time `json:"last_reminder_at,omitempty" db:"last_reminder_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Milestone is one deliverable line item on an invoice.
type Milestone struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// Milestones is stored as a JSONB column on the invoices table.
type Milestones []Milestone

// Total returns the sum of all milestone amounts.
func (m Milestones) Total() int64 {
	var total int64
	for _, ms := range m {
		total += ms.Amount
	}
	return total
}

// IsTerminal reports whether the invoice can no longer change status.
func (i *Invoice) IsTerminal() bool {
	return i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCancelled
}

// IsPayable reports whether a payment may still settle this invoice.
func (i *Invoice) IsPayable() bool {
	return i.Status == InvoiceStatusPending || i.Status == InvoiceStatusEscrowFunded
}

// CreateInvoicePayload defines the structure for creating a new invoice.
type CreateInvoicePayload struct {
	ClientID     *uuid.UUID `json:"client_id,omitempty"`
	ClientEmail  *string    `json:"client_email,omitempty"`
	ClientWallet *string    `json:"client_wallet,omitempty"`
	Amount       int64      `json:"amount" validate:"required,gt=0"`
	TokenMint    string     `json:"token_mint,omitempty"`
	DueDate      int64      `json:"due_date"`
	Memo         string     `json:"memo,omitempty"`
	Milestones   Milestones `json:"milestones,omitempty"`
}

// InvoiceListOptions controls pagination and filtering for creator-owned invoices.
type InvoiceListOptions struct {
	Limit  int
	Offset int
	Status string
	Search string
}

// UpdateInvoiceStatusPayload is the admin payload for forcing an invoice status.
type UpdateInvoiceStatusPayload struct {
	Status      string  `json:"status"`
	TxSignature *string `json:"tx_signature,omitempty"`
}

// VerifyPaymentPayload carries a transaction signature submitted by the payer
// after the wallet has signed and broadcast the payment.
type VerifyPaymentPayload struct {
	TxSignature string `json:"signature"`
}

// PaymentTransactionResponse is the Solana Pay transaction-request response:
// a base64-encoded unsigned transaction plus a human-readable message.
type PaymentTransactionResponse struct {
	Transaction string `json:"transaction"`
	Message     string `json:"message"`
}
