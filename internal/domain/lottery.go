/**
 * @description
 * Domain models for the double-or-nothing lottery. A client paying an invoice
 * may opt in by paying a premium on top of the invoice amount; on settlement,
 * a single random draw refunds twice the invoice amount with probability
 * equal to the chosen risk percentage.
 *
 * @notes
 * - One lottery pool exists per token mint. Entries reference the pool
 *   indirectly through the invoice's mint.
 * - An invoice has at most one entry, and an entry settles at most once.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lottery entry outcomes.
const (
	LotteryOutcomePending = "pending"
	LotteryOutcomeWon     = "won"
	LotteryOutcomeLost    = "lost"
)

// LotteryPool holds the per-mint prize pool and its risk controls. It maps
// to the `lottery_pools` table.
type LotteryPool struct {
	ID                uuid.UUID `json:"id" db:"id"`
	TokenMint         string    `json:"token_mint" db:"token_mint"`
	Balance           int64     `json:"balance" db:"balance"`
	HouseEdgePercent  int       `json:"house_edge_percent" db:"house_edge_percent"`
	MinReservePercent int       `json:"min_reserve_percent" db:"min_reserve_percent"`
	MaxPayoutPercent  int       `json:"max_payout_percent" db:"max_payout_percent"`
	Paused            bool      `json:"paused" db:"paused"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// LotteryEntry represents a client's opt-in on a single invoice. It maps to
// the `lottery_entries` table. InvoiceAmount snapshots the invoice amount at
// entry time so settlement math is unaffected by later invoice edits.
type LotteryEntry struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	InvoiceID      uuid.UUID  `json:"invoice_id" db:"invoice_id"`
	ClientWallet   string     `json:"client_wallet" db:"client_wallet"`
	InvoiceAmount  int64      `json:"invoice_amount" db:"invoice_amount"`
	Premium        int64      `json:"premium" db:"premium"`
	PoolCredit     int64      `json:"pool_credit" db:"pool_credit"`
	RiskPercent    int        `json:"risk_percent" db:"risk_percent"`
	EntrySignature string     `json:"entry_signature" db:"entry_signature"`
	Outcome        string     `json:"outcome" db:"outcome"`
	Payout         int64      `json:"payout" db:"payout"`
	SettledAt      *time.Time `json:"settled_at,omitempty" db:"settled_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Settled reports whether the entry's outcome has been decided.
func (e *LotteryEntry) Settled() bool {
	return e.Outcome == LotteryOutcomeWon || e.Outcome == LotteryOutcomeLost
}

// CreateLotteryEntryPayload defines the opt-in request for an invoice.
type CreateLotteryEntryPayload struct {
	ClientWallet string `json:"client_wallet"`
	RiskPercent  int    `json:"risk_percent"`
	TxSignature  string `json:"signature"`
}

// LotteryQuote is the payment breakdown for a given invoice amount and risk.
type LotteryQuote struct {
	InvoiceAmount  int64   `json:"invoice_amount"`
	RiskPercent    int     `json:"risk_percent"`
	Payment        int64   `json:"payment"`
	Premium        int64   `json:"premium"`
	WinProbability float64 `json:"win_probability"`
	PotentialWin   int64   `json:"potential_win"`
}

// UpsertLotteryPoolPayload is the admin payload for creating or tuning a pool.
type UpsertLotteryPoolPayload struct {
	TokenMint         string `json:"token_mint"`
	Balance           *int64 `json:"balance,omitempty"`
	HouseEdgePercent  *int   `json:"house_edge_percent,omitempty"`
	MinReservePercent *int   `json:"min_reserve_percent,omitempty"`
	MaxPayoutPercent  *int   `json:"max_payout_percent,omitempty"`
	Paused            *bool  `json:"paused,omitempty"`
}
