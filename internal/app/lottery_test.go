package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/offmylawn101/invoicenow/internal/domain"
	"github.com/offmylawn101/invoicenow/internal/store"
)

func TestQuoteLottery(t *testing.T) {
	tests := []struct {
		name        string
		amount      int64
		riskPercent int
		wantPayment int64
		wantPremium int64
		wantErr     error
	}{
		{
			name:        "zero risk pays face value",
			amount:      1000,
			riskPercent: 0,
			wantPayment: 1000,
			wantPremium: 0,
		},
		{
			name:        "max risk pays one and a half times",
			amount:      1000,
			riskPercent: 50,
			wantPayment: 1500,
			wantPremium: 500,
		},
		{
			name:        "quarter risk",
			amount:      1000,
			riskPercent: 25,
			wantPayment: 1250,
			wantPremium: 250,
		},
		{
			name:        "integer division floors the premium",
			amount:      7,
			riskPercent: 10,
			wantPayment: 8,
			wantPremium: 1,
		},
		{
			name:        "tiny amount at low risk rounds premium to zero",
			amount:      4,
			riskPercent: 10,
			wantPayment: 4,
			wantPremium: 0,
		},
		{
			name:        "risk above cap rejected",
			amount:      1000,
			riskPercent: 51,
			wantErr:     ErrInvalidRisk,
		},
		{
			name:        "negative risk rejected",
			amount:      1000,
			riskPercent: -1,
			wantErr:     ErrInvalidRisk,
		},
		{
			name:        "zero amount rejected",
			amount:      0,
			riskPercent: 10,
			wantErr:     ErrInvalidAmount,
		},
	}

	svc := newTestService(newFakeRepository(), &stubChain{}, &capturePublisher{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := svc.QuoteLottery(tt.amount, tt.riskPercent)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if quote.Payment != tt.wantPayment {
				t.Fatalf("expected payment %d, got %d", tt.wantPayment, quote.Payment)
			}
			if quote.Premium != tt.wantPremium {
				t.Fatalf("expected premium %d, got %d", tt.wantPremium, quote.Premium)
			}
			if quote.PotentialWin != 2*tt.amount {
				t.Fatalf("expected potential win %d, got %d", 2*tt.amount, quote.PotentialWin)
			}
		})
	}
}

func TestDecideSettlement(t *testing.T) {
	basePool := func() *domain.LotteryPool {
		return &domain.LotteryPool{
			Balance:           1_000_000,
			HouseEdgePercent:  5,
			MinReservePercent: 20,
			MaxPayoutPercent:  10,
		}
	}
	entry := func(invoiceAmount int64, risk int) *domain.LotteryEntry {
		return &domain.LotteryEntry{InvoiceAmount: invoiceAmount, RiskPercent: risk}
	}

	tests := []struct {
		name        string
		pool        *domain.LotteryPool
		entry       *domain.LotteryEntry
		roll        float64
		wantOutcome string
		wantPayout  int64
	}{
		{
			name:        "roll below risk wins double",
			pool:        basePool(),
			entry:       entry(10_000, 50),
			roll:        0.49,
			wantOutcome: domain.LotteryOutcomeWon,
			wantPayout:  20_000,
		},
		{
			name:        "roll at risk boundary loses",
			pool:        basePool(),
			entry:       entry(10_000, 50),
			roll:        0.50,
			wantOutcome: domain.LotteryOutcomeLost,
		},
		{
			name:        "zero risk never wins",
			pool:        basePool(),
			entry:       entry(10_000, 0),
			roll:        0.0,
			wantOutcome: domain.LotteryOutcomeLost,
		},
		{
			name:        "payout above cap resolves as lost",
			pool:        basePool(),
			entry:       entry(60_000, 50), // payout 120k > 10% of 1M
			roll:        0.01,
			wantOutcome: domain.LotteryOutcomeLost,
		},
		{
			name: "payout breaching reserve resolves as lost",
			pool: &domain.LotteryPool{
				Balance:           100_000,
				MinReservePercent: 95,
				MaxPayoutPercent:  100,
			},
			entry:       entry(5_000, 50), // payout 10k leaves 90k < 95k reserve
			roll:        0.01,
			wantOutcome: domain.LotteryOutcomeLost,
		},
		{
			name: "payout exactly at cap pays out",
			pool: &domain.LotteryPool{
				Balance:           1_000_000,
				MinReservePercent: 20,
				MaxPayoutPercent:  10,
			},
			entry:       entry(50_000, 50), // payout 100k == cap
			roll:        0.01,
			wantOutcome: domain.LotteryOutcomeWon,
			wantPayout:  100_000,
		},
		{
			name: "paused pool resolves as lost regardless of roll",
			pool: &domain.LotteryPool{
				Balance:           1_000_000,
				MinReservePercent: 20,
				MaxPayoutPercent:  10,
				Paused:            true,
			},
			entry:       entry(100, 50),
			roll:        0.0,
			wantOutcome: domain.LotteryOutcomeLost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, payout := decideSettlement(tt.pool, tt.entry, tt.roll)
			if outcome != tt.wantOutcome {
				t.Fatalf("expected outcome %q, got %q", tt.wantOutcome, outcome)
			}
			if payout != tt.wantPayout {
				t.Fatalf("expected payout %d, got %d", tt.wantPayout, payout)
			}
		})
	}
}

func seedPoolAndInvoice(t *testing.T, repo *fakeRepository, svc *Service, balance int64, amount int64) *domain.Invoice {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.CreateLotteryPool(ctx, &domain.LotteryPool{
		ID:                uuid.New(),
		TokenMint:         "",
		Balance:           balance,
		HouseEdgePercent:  5,
		MinReservePercent: 20,
		MaxPayoutPercent:  10,
	}); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	inv, err := svc.CreateInvoice(ctx, "CreatorWallet111", domain.CreateInvoicePayload{Amount: amount})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func TestCreateLotteryEntry(t *testing.T) {
	repo := newFakeRepository()
	chain := &stubChain{}
	publisher := &capturePublisher{}
	svc := newTestService(repo, chain, publisher)
	ctx := context.Background()

	inv := seedPoolAndInvoice(t, repo, svc, 1_000_000, 10_000)

	entry, err := svc.CreateLotteryEntry(ctx, inv.ID, domain.CreateLotteryEntryPayload{
		ClientWallet: "PayerWallet111",
		RiskPercent:  50,
		TxSignature:  "sig-entry",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Premium != 5000 {
		t.Fatalf("expected premium 5000, got %d", entry.Premium)
	}
	// 5% house edge on the 5000 premium leaves 4750 for the pool.
	if entry.PoolCredit != 4750 {
		t.Fatalf("expected pool credit 4750, got %d", entry.PoolCredit)
	}
	if entry.Outcome != domain.LotteryOutcomePending {
		t.Fatalf("expected pending outcome, got %q", entry.Outcome)
	}

	// The chain check must cover invoice amount plus premium.
	if len(chain.verified) != 1 || chain.verified[0].MinAmount != 15_000 {
		t.Fatalf("expected verify for 15000, got %+v", chain.verified)
	}

	pool, err := repo.GetLotteryPoolByMint(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.Balance != 1_004_750 {
		t.Fatalf("expected pool balance 1004750, got %d", pool.Balance)
	}

	paid, err := repo.GetInvoiceByID(ctx, inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paid.Status != domain.InvoiceStatusPaid {
		t.Fatalf("expected invoice paid, got %q", paid.Status)
	}
	// The transition rides inside the entry transaction, not a second write.
	if repo.markPaidCalls != 0 {
		t.Fatalf("expected no standalone paid transition, got %d", repo.markPaidCalls)
	}

	// A second entry on the same invoice is rejected: the invoice is paid.
	if _, err := svc.CreateLotteryEntry(ctx, inv.ID, domain.CreateLotteryEntryPayload{
		ClientWallet: "PayerWallet111",
		RiskPercent:  10,
		TxSignature:  "sig-entry-2",
	}); !errors.Is(err, store.ErrInvoiceNotPayable) {
		t.Fatalf("expected ErrInvoiceNotPayable, got %v", err)
	}

	keys := publisher.keys()
	want := []string{"invoice.created", "lottery.entry.created", "invoice.paid"}
	if len(keys) != len(want) {
		t.Fatalf("expected events %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, keys)
		}
	}
}

func TestCreateLotteryEntryRejectsPausedPool(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, &stubChain{}, &capturePublisher{})
	ctx := context.Background()

	inv := seedPoolAndInvoice(t, repo, svc, 1_000_000, 10_000)
	if _, err := repo.SetLotteryPoolPaused(ctx, "", true); err != nil {
		t.Fatalf("pause pool: %v", err)
	}

	if _, err := svc.CreateLotteryEntry(ctx, inv.ID, domain.CreateLotteryEntryPayload{
		ClientWallet: "PayerWallet111",
		RiskPercent:  25,
		TxSignature:  "sig-entry",
	}); !errors.Is(err, store.ErrPoolPaused) {
		t.Fatalf("expected ErrPoolPaused, got %v", err)
	}
}

func TestCreateLotteryEntryRejectsRiskAboveCap(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, &stubChain{}, &capturePublisher{})
	ctx := context.Background()

	inv := seedPoolAndInvoice(t, repo, svc, 1_000_000, 10_000)

	if _, err := svc.CreateLotteryEntry(ctx, inv.ID, domain.CreateLotteryEntryPayload{
		ClientWallet: "PayerWallet111",
		RiskPercent:  60,
		TxSignature:  "sig-entry",
	}); !errors.Is(err, ErrInvalidRisk) {
		t.Fatalf("expected ErrInvalidRisk, got %v", err)
	}
}

func TestSettleLotteryEntryWin(t *testing.T) {
	repo := newFakeRepository()
	publisher := &capturePublisher{}
	svc := newTestService(repo, &stubChain{}, publisher)
	svc.draw = func() float64 { return 0.1 } // below 50% risk: win
	ctx := context.Background()

	inv := seedPoolAndInvoice(t, repo, svc, 1_000_000, 10_000)
	entry, err := svc.CreateLotteryEntry(ctx, inv.ID, domain.CreateLotteryEntryPayload{
		ClientWallet: "PayerWallet111",
		RiskPercent:  50,
		TxSignature:  "sig-entry",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settled, err := svc.SettleLotteryEntry(ctx, entry.ID, "PayerWallet111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled.Outcome != domain.LotteryOutcomeWon {
		t.Fatalf("expected won, got %q", settled.Outcome)
	}
	if settled.Payout != 20_000 {
		t.Fatalf("expected payout 20000, got %d", settled.Payout)
	}
	if settled.SettledAt == nil {
		t.Fatal("expected settled_at to be set")
	}

	pool, err := repo.GetLotteryPoolByMint(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1_000_000 + 4750 credit - 20_000 payout
	if pool.Balance != 984_750 {
		t.Fatalf("expected pool balance 984750, got %d", pool.Balance)
	}

	keys := publisher.keys()
	if keys[len(keys)-1] != "lottery.settled.won" {
		t.Fatalf("expected lottery.settled.won event, got %v", keys)
	}
}

func TestSettleLotteryEntryIdempotent(t *testing.T) {
	repo := newFakeRepository()
	publisher := &capturePublisher{}
	svc := newTestService(repo, &stubChain{}, publisher)
	svc.draw = func() float64 { return 0.99 } // lose
	ctx := context.Background()

	inv := seedPoolAndInvoice(t, repo, svc, 1_000_000, 10_000)
	entry, err := svc.CreateLotteryEntry(ctx, inv.ID, domain.CreateLotteryEntryPayload{
		ClientWallet: "PayerWallet111",
		RiskPercent:  50,
		TxSignature:  "sig-entry",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := svc.SettleLotteryEntry(ctx, entry.ID, "PayerWallet111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Outcome != domain.LotteryOutcomeLost {
		t.Fatalf("expected lost, got %q", first.Outcome)
	}
	eventsAfterFirst := len(publisher.keys())

	// Second settlement returns the recorded outcome without a new draw.
	svc.draw = func() float64 { return 0.0 } // would win if redrawn
	second, err := svc.SettleLotteryEntry(ctx, entry.ID, "PayerWallet111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Outcome != domain.LotteryOutcomeLost {
		t.Fatalf("expected recorded lost outcome, got %q", second.Outcome)
	}
	if second.Payout != 0 {
		t.Fatalf("expected zero payout, got %d", second.Payout)
	}
	if len(publisher.keys()) != eventsAfterFirst {
		t.Fatal("expected no new events for an already settled entry")
	}
}

func TestSettleLotteryEntryNotFound(t *testing.T) {
	svc := newTestService(newFakeRepository(), &stubChain{}, &capturePublisher{})
	if _, err := svc.SettleLotteryEntry(context.Background(), uuid.New(), "PayerWallet111"); !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestCreateLotteryPoolDefaults(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, &stubChain{}, &capturePublisher{})
	ctx := context.Background()

	pool, err := svc.CreateLotteryPool(ctx, domain.UpsertLotteryPoolPayload{TokenMint: "MintA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.HouseEdgePercent != 5 || pool.MinReservePercent != 20 || pool.MaxPayoutPercent != 10 {
		t.Fatalf("expected configured defaults, got %+v", pool)
	}
	if pool.Balance != 0 {
		t.Fatalf("expected zero starting balance, got %d", pool.Balance)
	}

	// Explicit controls override the defaults.
	edge := 10
	balance := int64(500)
	custom, err := svc.CreateLotteryPool(ctx, domain.UpsertLotteryPoolPayload{
		TokenMint:        "MintB",
		Balance:          &balance,
		HouseEdgePercent: &edge,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if custom.HouseEdgePercent != 10 || custom.Balance != 500 {
		t.Fatalf("expected overrides applied, got %+v", custom)
	}

	bad := 150
	if _, err := svc.CreateLotteryPool(ctx, domain.UpsertLotteryPoolPayload{
		TokenMint:        "MintC",
		HouseEdgePercent: &bad,
	}); err == nil {
		t.Fatal("expected out-of-range controls to be rejected")
	}
}

type stubRateLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (l *stubRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

func TestCreateLotteryEntryRateLimited(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, &stubChain{}, &capturePublisher{})
	svc.ConfigureRateLimits(&stubRateLimiter{count: 11, retryAfter: 42}, 10, 10)
	ctx := context.Background()

	inv := seedPoolAndInvoice(t, repo, svc, 1_000_000, 10_000)

	_, err := svc.CreateLotteryEntry(ctx, inv.ID, domain.CreateLotteryEntryPayload{
		ClientWallet: "PayerWallet111",
		RiskPercent:  25,
		TxSignature:  "sig-entry",
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfterSeconds != 42 {
		t.Fatalf("expected retry-after 42, got %v", err)
	}
}

func TestCreateLotteryEntryLimiterFailsOpen(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, &stubChain{}, &capturePublisher{})
	svc.ConfigureRateLimits(&stubRateLimiter{err: errors.New("redis down")}, 10, 10)
	ctx := context.Background()

	inv := seedPoolAndInvoice(t, repo, svc, 1_000_000, 10_000)

	if _, err := svc.CreateLotteryEntry(ctx, inv.ID, domain.CreateLotteryEntryPayload{
		ClientWallet: "PayerWallet111",
		RiskPercent:  25,
		TxSignature:  "sig-entry",
	}); err != nil {
		t.Fatalf("expected entry to proceed when limiter is down, got %v", err)
	}
}
