/**
 * @description
 * This file contains the double-or-nothing lottery logic: premium quoting,
 * entry creation, and settlement. Settlement combines a pseudo-random draw
 * with the pool's risk controls and runs inside the repository's row-locked
 * transaction so concurrent settlements cannot overdraw a pool.
 *
 * Key features:
 * - Quote: payment = amount + amount * risk / 50, so a payer at the maximum
 *   50% risk pays 1.5x the invoice for a 50% shot at paying nothing.
 * - Entry: verifies the payer's on-chain transfer covers invoice + premium,
 *   credits the pool net of the house edge, and marks the invoice paid.
 * - Settlement: win probability is risk/100; a win pays out twice the invoice
 *   amount, capped by the pool's max payout and reserve floor. Any violated
 *   constraint resolves the entry as lost so the pool can never go negative.
 *
 * @dependencies
 * - math/rand, sync: For the seeded draw source.
 * - internal/domain, internal/store: Domain models and atomic persistence.
 * - pkg/rabbitmq, pkg/solana: Event publishing and payment verification.
 */

package app

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/offmylawn101/invoicenow/internal/domain"
	"github.com/offmylawn101/invoicenow/internal/store"
	"github.com/offmylawn101/invoicenow/pkg/rabbitmq"
	"github.com/offmylawn101/invoicenow/pkg/solana"
)

var (
	drawMu  sync.Mutex
	drawRNG = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// defaultDraw returns a uniform float64 in [0, 1). rand.Rand is not safe for
// concurrent use, so draws are serialized.
func defaultDraw() float64 {
	drawMu.Lock()
	defer drawMu.Unlock()
	return drawRNG.Float64()
}

// QuoteLottery computes the premium for an invoice amount at the given risk
// percent. The quote is deterministic; handlers expose it so the payment page
// can render the slider without a round trip per tick.
func (s *Service) QuoteLottery(amount int64, riskPercent int) (*domain.LotteryQuote, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if riskPercent < 0 || riskPercent > s.lottery.MaxRiskPercent {
		return nil, ErrInvalidRisk
	}
	payment := amount + amount*int64(riskPercent)/50
	return &domain.LotteryQuote{
		InvoiceAmount:  amount,
		RiskPercent:    riskPercent,
		Payment:        payment,
		Premium:        payment - amount,
		WinProbability: float64(riskPercent) / 100,
		PotentialWin:   2 * amount,
	}, nil
}

// CreateLotteryEntry opts a payer into the lottery for a pending invoice. The
// submitted transaction must transfer at least invoice amount plus premium to
// the invoice creator; on success the entry is recorded, the pool credited
// with the premium net of the house edge, and the invoice marked paid.
func (s *Service) CreateLotteryEntry(ctx context.Context, invoiceID uuid.UUID, payload domain.CreateLotteryEntryPayload) (*domain.LotteryEntry, error) {
	if err := s.consumeRateLimit(ctx, "lottery_entry", payload.ClientWallet, s.entryRateLimit); err != nil {
		return nil, err
	}

	inv, err := s.repo.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsPayable() {
		return nil, store.ErrInvoiceNotPayable
	}

	quote, err := s.QuoteLottery(inv.Amount, payload.RiskPercent)
	if err != nil {
		return nil, err
	}

	pool, err := s.repo.GetLotteryPoolByMint(ctx, inv.TokenMint)
	if err != nil {
		return nil, err
	}
	if pool.Paused {
		return nil, store.ErrPoolPaused
	}

	if _, err := s.chain.VerifyTransfer(ctx, solana.VerifyParams{
		Signature: payload.TxSignature,
		Recipient: inv.CreatorWallet,
		Reference: inv.PaymentReference,
		TokenMint: inv.TokenMint,
		MinAmount: quote.Payment,
	}); err != nil {
		log.Printf("level=warn component=app op=lottery_entry outcome=rejected invoice_id=%s signature=%s err=%v", inv.ID, payload.TxSignature, err)
		return nil, err
	}

	houseCut := quote.Premium * int64(pool.HouseEdgePercent) / 100
	entry := &domain.LotteryEntry{
		ID:             uuid.New(),
		InvoiceID:      inv.ID,
		ClientWallet:   payload.ClientWallet,
		InvoiceAmount:  inv.Amount,
		Premium:        quote.Premium,
		PoolCredit:     quote.Premium - houseCut,
		RiskPercent:    payload.RiskPercent,
		EntrySignature: payload.TxSignature,
		Outcome:        domain.LotteryOutcomePending,
	}

	// The entry insert, pool credit, and invoice transition commit together.
	stored, err := s.repo.CreateLotteryEntryAtomic(ctx, entry, inv.TokenMint)
	if err != nil {
		return nil, err
	}

	paid := *inv
	paid.Status = domain.InvoiceStatusPaid
	paid.PaidTxSignature = &payload.TxSignature

	s.publishLotteryEvent(ctx, rabbitmq.KeyLotteryEntryCreated, stored, inv.TokenMint)
	s.publishInvoiceEvent(ctx, rabbitmq.KeyInvoicePaid, &paid)
	return stored, nil
}

// GetLotteryEntry returns an entry by ID.
func (s *Service) GetLotteryEntry(ctx context.Context, id uuid.UUID) (*domain.LotteryEntry, error) {
	return s.repo.GetLotteryEntryByID(ctx, id)
}

// GetLotteryEntryForInvoice returns the entry attached to an invoice, if any.
func (s *Service) GetLotteryEntryForInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.LotteryEntry, error) {
	return s.repo.GetLotteryEntryByInvoiceID(ctx, invoiceID)
}

// SettleLotteryEntry resolves a pending entry. The draw and the constraint
// checks run inside the repository's locked transaction; settling an already
// settled entry returns the recorded outcome without a second draw.
func (s *Service) SettleLotteryEntry(ctx context.Context, entryID uuid.UUID, callerWallet string) (*domain.LotteryEntry, error) {
	if err := s.consumeRateLimit(ctx, "lottery_settle", callerWallet, s.settlementRateLimit); err != nil {
		return nil, err
	}

	var tokenMint string
	entry, alreadySettled, err := s.repo.SettleLotteryEntryAtomic(ctx, entryID, func(pool *domain.LotteryPool, e *domain.LotteryEntry) (string, int64) {
		tokenMint = pool.TokenMint
		return decideSettlement(pool, e, s.draw())
	})
	if err != nil {
		return nil, err
	}
	if alreadySettled {
		return entry, nil
	}

	key := rabbitmq.KeyLotterySettledLost
	if entry.Outcome == domain.LotteryOutcomeWon {
		key = rabbitmq.KeyLotterySettledWon
	}
	log.Printf("level=info component=app op=lottery_settle entry_id=%s outcome=%s payout=%d risk=%d", entry.ID, entry.Outcome, entry.Payout, entry.RiskPercent)
	s.publishLotteryEvent(ctx, key, entry, tokenMint)
	return entry, nil
}

// decideSettlement resolves one entry against its pool. roll is a uniform
// value in [0, 1). The pool's risk controls trump the draw: if a win would
// breach the payout cap or the reserve floor, or the pool is paused, the
// entry resolves as lost and the premium stays in the pool.
func decideSettlement(pool *domain.LotteryPool, entry *domain.LotteryEntry, roll float64) (string, int64) {
	if pool.Paused {
		return domain.LotteryOutcomeLost, 0
	}
	if roll*100 >= float64(entry.RiskPercent) {
		return domain.LotteryOutcomeLost, 0
	}

	payout := 2 * entry.InvoiceAmount
	maxPayout := pool.Balance * int64(pool.MaxPayoutPercent) / 100
	if payout > maxPayout {
		return domain.LotteryOutcomeLost, 0
	}
	reserveFloor := pool.Balance * int64(pool.MinReservePercent) / 100
	if pool.Balance-payout < reserveFloor {
		return domain.LotteryOutcomeLost, 0
	}
	return domain.LotteryOutcomeWon, payout
}

// CreateLotteryPool provisions a pool for a token mint, falling back to the
// configured defaults for any omitted risk control.
func (s *Service) CreateLotteryPool(ctx context.Context, payload domain.UpsertLotteryPoolPayload) (*domain.LotteryPool, error) {
	pool := &domain.LotteryPool{
		ID:                uuid.New(),
		TokenMint:         payload.TokenMint,
		HouseEdgePercent:  s.lottery.HouseEdgePercent,
		MinReservePercent: s.lottery.MinReservePercent,
		MaxPayoutPercent:  s.lottery.MaxPayoutPercent,
	}
	if payload.Balance != nil {
		if *payload.Balance < 0 {
			return nil, ErrInvalidAmount
		}
		pool.Balance = *payload.Balance
	}
	if payload.HouseEdgePercent != nil {
		pool.HouseEdgePercent = *payload.HouseEdgePercent
	}
	if payload.MinReservePercent != nil {
		pool.MinReservePercent = *payload.MinReservePercent
	}
	if payload.MaxPayoutPercent != nil {
		pool.MaxPayoutPercent = *payload.MaxPayoutPercent
	}
	if err := validatePoolControls(pool); err != nil {
		return nil, err
	}
	return s.repo.CreateLotteryPool(ctx, pool)
}

// ListLotteryPools returns all pools.
func (s *Service) ListLotteryPools(ctx context.Context) ([]domain.LotteryPool, error) {
	return s.repo.ListLotteryPools(ctx)
}

// GetLotteryPool returns the pool for a token mint.
func (s *Service) GetLotteryPool(ctx context.Context, tokenMint string) (*domain.LotteryPool, error) {
	return s.repo.GetLotteryPoolByMint(ctx, tokenMint)
}

// UpdateLotteryPool applies a partial update to a pool's risk controls.
func (s *Service) UpdateLotteryPool(ctx context.Context, tokenMint string, payload domain.UpsertLotteryPoolPayload) (*domain.LotteryPool, error) {
	proposed := &domain.LotteryPool{HouseEdgePercent: 0, MinReservePercent: 0, MaxPayoutPercent: 1}
	if payload.HouseEdgePercent != nil {
		proposed.HouseEdgePercent = *payload.HouseEdgePercent
	}
	if payload.MinReservePercent != nil {
		proposed.MinReservePercent = *payload.MinReservePercent
	}
	if payload.MaxPayoutPercent != nil {
		proposed.MaxPayoutPercent = *payload.MaxPayoutPercent
	}
	if err := validatePoolControls(proposed); err != nil {
		return nil, err
	}
	return s.repo.UpdateLotteryPool(ctx, tokenMint, payload)
}

// SetLotteryPoolPaused pauses or resumes a pool.
func (s *Service) SetLotteryPoolPaused(ctx context.Context, tokenMint string, paused bool) (*domain.LotteryPool, error) {
	pool, err := s.repo.SetLotteryPoolPaused(ctx, tokenMint, paused)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=app op=pool_pause token_mint=%s paused=%t", tokenMint, paused)
	return pool, nil
}

var errPoolControlsOutOfRange = errors.New("pool risk controls out of range")

func validatePoolControls(pool *domain.LotteryPool) error {
	if pool.HouseEdgePercent < 0 || pool.HouseEdgePercent > 100 {
		return errPoolControlsOutOfRange
	}
	if pool.MinReservePercent < 0 || pool.MinReservePercent > 100 {
		return errPoolControlsOutOfRange
	}
	if pool.MaxPayoutPercent <= 0 || pool.MaxPayoutPercent > 100 {
		return errPoolControlsOutOfRange
	}
	return nil
}

func (s *Service) publishLotteryEvent(ctx context.Context, routingKey string, entry *domain.LotteryEntry, tokenMint string) {
	event := domain.LotteryEvent{
		EntryID:      entry.ID,
		InvoiceID:    entry.InvoiceID,
		ClientWallet: entry.ClientWallet,
		TokenMint:    tokenMint,
		RiskPercent:  entry.RiskPercent,
		Premium:      entry.Premium,
		Outcome:      entry.Outcome,
		Payout:       entry.Payout,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s entry_id=%s err=%v", routingKey, entry.ID, err)
	}
}
