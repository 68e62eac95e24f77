/**
 * @description
 * Event payloads published to RabbitMQ for asynchronous processing by other
 * services (reminder delivery, analytics, webhooks).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceEvent is published on invoice lifecycle transitions
// (invoice.created, invoice.paid, invoice.cancelled).
type InvoiceEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	CreatorWallet string    `json:"creator_wallet"`
	Amount        int64     `json:"amount"`
	TokenMint     string    `json:"token_mint"`
	Status        string    `json:"status"`
	TxSignature   *string   `json:"tx_signature,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReminderDueEvent is published when the reminder scan finds an invoice that
// should be chased. A downstream notifier owns actual delivery.
type ReminderDueEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	CreatorWallet string    `json:"creator_wallet"`
	ClientEmail   *string   `json:"client_email,omitempty"`
	Amount        int64     `json:"amount"`
	TokenMint     string    `json:"token_mint"`
	DueDate       int64     `json:"due_date"`
	PaymentLink   string    `json:"payment_link"`
	ReminderCount int       `json:"reminder_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// LotteryEvent is published when an entry is created or settled
// (lottery.entry.created, lottery.settled.won, lottery.settled.lost).
type LotteryEvent struct {
	EntryID      uuid.UUID `json:"entry_id"`
	InvoiceID    uuid.UUID `json:"invoice_id"`
	ClientWallet string    `json:"client_wallet"`
	TokenMint    string    `json:"token_mint"`
	RiskPercent  int       `json:"risk_percent"`
	Premium      int64     `json:"premium"`
	Outcome      string    `json:"outcome,omitempty"`
	Payout       int64     `json:"payout,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PaymentConfirmedEvent is consumed from chain watchers; it reports a
// finalized transfer that referenced an invoice's payment reference.
type PaymentConfirmedEvent struct {
	InvoiceID   uuid.UUID `json:"invoice_id"`
	Reference   string    `json:"reference,omitempty"`
	TxSignature string    `json:"tx_signature"`
	TokenMint   string    `json:"token_mint"`
	Timestamp   time.Time `json:"timestamp"`
}
