/**
 * @description
 * This file contains the core business logic for the invoicing service. The
 * `Service` struct orchestrates invoice and client operations, coordinating
 * between the database repository, the Solana RPC client, and the message
 * broker.
 *
 * Key features:
 * - Invoice lifecycle: creation, listing, cancellation, payment verification.
 * - Client address-book CRUD scoped to the owning wallet.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/solana, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/offmylawn101/invoicenow/internal/domain"
	"github.com/offmylawn101/invoicenow/internal/store"
	"github.com/offmylawn101/invoicenow/pkg/rabbitmq"
	"github.com/offmylawn101/invoicenow/pkg/solana"
)

var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidDueDate         = errors.New("due date must be in the future")
	ErrMilestonesExceedAmount = errors.New("milestone total exceeds invoice amount")
	ErrInvalidRisk            = errors.New("risk percent out of range")
	ErrMissingSignature       = errors.New("transaction signature required")
	ErrClientNameRequired     = errors.New("client name required")
	ErrInvalidStatus          = errors.New("unknown invoice status")
	ErrRateLimited            = errors.New("rate limited")
)

// ChainVerifier is the subset of the Solana client used by the service. It
// is an interface so tests can substitute a stub.
type ChainVerifier interface {
	BuildPaymentTransaction(ctx context.Context, params solana.PaymentParams) (string, error)
	VerifyTransfer(ctx context.Context, params solana.VerifyParams) (int64, error)
	TokenDecimals(ctx context.Context, mint string) (uint8, error)
}

// LotteryConfig carries the pool risk-control defaults and the risk cap.
type LotteryConfig struct {
	HouseEdgePercent  int
	MinReservePercent int
	MaxPayoutPercent  int
	MaxRiskPercent    int
}

// Service provides the core business logic for invoicing and the lottery.
type Service struct {
	repo          store.Repository
	chain         ChainVerifier
	eventProducer rabbitmq.Publisher

	paymentLinkBaseURL string
	paymentLabel       string
	lottery            LotteryConfig

	// draw returns a uniform float64 in [0, 1); injectable for tests.
	draw func() float64
	// newReference generates a payment reference; injectable for tests.
	newReference func() string

	rateLimiter         RateLimiter
	entryRateLimit      int
	settlementRateLimit int
}

// NewService creates a new invoicing service instance.
func NewService(
	repo store.Repository,
	chain ChainVerifier,
	producer rabbitmq.Publisher,
	paymentLinkBaseURL string,
	paymentLabel string,
	lottery LotteryConfig,
) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	if lottery.MaxRiskPercent <= 0 || lottery.MaxRiskPercent > 50 {
		lottery.MaxRiskPercent = 50
	}
	return &Service{
		repo:               repo,
		chain:              chain,
		eventProducer:      producer,
		paymentLinkBaseURL: strings.TrimSuffix(paymentLinkBaseURL, "/"),
		paymentLabel:       paymentLabel,
		lottery:            lottery,
		draw:               defaultDraw,
		newReference:       solana.NewPaymentReference,
	}
}

// ConfigureRateLimits wires the distributed rate limiter for the lottery
// endpoints. A nil limiter disables limiting.
func (s *Service) ConfigureRateLimits(limiter RateLimiter, entryPerMinute, settlePerMinute int) {
	s.rateLimiter = limiter
	s.entryRateLimit = entryPerMinute
	s.settlementRateLimit = settlePerMinute
}

// CreateInvoice validates and stores a new invoice, generating its payment
// reference and shareable payment link.
func (s *Service) CreateInvoice(ctx context.Context, creatorWallet string, payload domain.CreateInvoicePayload) (*domain.Invoice, error) {
	if payload.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if payload.DueDate > 0 && payload.DueDate < time.Now().Unix() {
		return nil, ErrInvalidDueDate
	}
	if len(payload.Milestones) > 0 {
		for _, m := range payload.Milestones {
			if m.Amount <= 0 {
				return nil, ErrInvalidAmount
			}
		}
		if payload.Milestones.Total() > payload.Amount {
			return nil, ErrMilestonesExceedAmount
		}
	}

	id := uuid.New()
	inv := &domain.Invoice{
		ID:               id,
		CreatorWallet:    creatorWallet,
		ClientID:         payload.ClientID,
		ClientEmail:      payload.ClientEmail,
		ClientWallet:     payload.ClientWallet,
		Amount:           payload.Amount,
		TokenMint:        payload.TokenMint,
		DueDate:          payload.DueDate,
		Memo:             payload.Memo,
		Status:           domain.InvoiceStatusPending,
		Milestones:       payload.Milestones,
		PaymentReference: s.newReference(),
		PaymentLink:      fmt.Sprintf("%s/pay/%s", s.paymentLinkBaseURL, id),
	}

	stored, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	s.publishInvoiceEvent(ctx, rabbitmq.KeyInvoiceCreated, stored)
	return stored, nil
}

// ListInvoices returns the creator's invoices.
func (s *Service) ListInvoices(ctx context.Context, creatorWallet string, opts domain.InvoiceListOptions) ([]domain.Invoice, error) {
	return s.repo.ListInvoicesByCreator(ctx, creatorWallet, opts)
}

// GetInvoice returns a single invoice by ID. It is public: the payment page
// renders it for the payer.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	return s.repo.GetInvoiceByID(ctx, id)
}

// CancelInvoice cancels a pending invoice owned by the caller.
func (s *Service) CancelInvoice(ctx context.Context, id uuid.UUID, creatorWallet string) (*domain.Invoice, error) {
	inv, err := s.repo.CancelInvoice(ctx, id, creatorWallet)
	if err != nil {
		return nil, err
	}
	s.publishInvoiceEvent(ctx, rabbitmq.KeyInvoiceCancelled, inv)
	return inv, nil
}

// UpdateInvoiceStatus is the admin escape hatch for forcing a status.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, payload domain.UpdateInvoiceStatusPayload) (*domain.Invoice, error) {
	switch payload.Status {
	case domain.InvoiceStatusPending, domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled, domain.InvoiceStatusEscrowFunded:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, payload.Status)
	}
	return s.repo.UpdateInvoiceStatus(ctx, id, payload.Status, payload.TxSignature)
}

// BuildPaymentTransaction constructs the unsigned Solana Pay transaction for
// an invoice. When the invoice has a lottery entry the expected payment
// includes the premium.
func (s *Service) BuildPaymentTransaction(ctx context.Context, invoiceID uuid.UUID, payerWallet string) (*domain.PaymentTransactionResponse, error) {
	inv, err := s.repo.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsPayable() {
		return nil, store.ErrInvoiceNotPayable
	}

	expected, err := s.expectedPayment(ctx, inv)
	if err != nil {
		return nil, err
	}

	params, err := s.paymentParams(inv, payerWallet, expected)
	if err != nil {
		return nil, err
	}
	encoded, err := s.chain.BuildPaymentTransaction(ctx, params)
	if err != nil {
		return nil, err
	}

	return &domain.PaymentTransactionResponse{
		Transaction: encoded,
		Message:     fmt.Sprintf("%s: invoice %s", s.paymentLabel, inv.ID),
	}, nil
}

// PaymentURL renders the Solana Pay transfer-request URL for an invoice. The
// amount is the full expected payment, lottery premium included, so a wallet
// scanning the QR code prefills a transfer that verification will accept.
func (s *Service) PaymentURL(ctx context.Context, invoiceID uuid.UUID) (string, error) {
	inv, err := s.repo.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	expected, err := s.expectedPayment(ctx, inv)
	if err != nil {
		return "", err
	}
	decimals := solana.NativeSOLDecimals
	if inv.TokenMint != "" {
		decimals, err = s.chain.TokenDecimals(ctx, inv.TokenMint)
		if err != nil {
			return "", err
		}
	}
	return solana.PayURL(solana.PayURLParams{
		Recipient: inv.CreatorWallet,
		Amount:    solana.FormatTokenAmount(expected, decimals),
		TokenMint: inv.TokenMint,
		Reference: inv.PaymentReference,
		Memo:      inv.Memo,
		Label:     s.paymentLabel,
	}), nil
}

// VerifyInvoicePayment checks a submitted transaction signature against the
// invoice's expected payment and marks the invoice paid on success. Safe to
// retry: re-verifying a paid invoice with its recorded signature is a no-op.
func (s *Service) VerifyInvoicePayment(ctx context.Context, invoiceID uuid.UUID, txSignature string) (*domain.Invoice, error) {
	txSignature = strings.TrimSpace(txSignature)
	if txSignature == "" {
		return nil, ErrMissingSignature
	}

	inv, err := s.repo.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == domain.InvoiceStatusPaid {
		if inv.PaidTxSignature != nil && *inv.PaidTxSignature == txSignature {
			return inv, nil
		}
		return nil, store.ErrInvoiceNotPayable
	}
	if !inv.IsPayable() {
		return nil, store.ErrInvoiceNotPayable
	}

	expected, err := s.expectedPayment(ctx, inv)
	if err != nil {
		return nil, err
	}

	_, err = s.chain.VerifyTransfer(ctx, solana.VerifyParams{
		Signature: txSignature,
		Recipient: inv.CreatorWallet,
		Reference: inv.PaymentReference,
		TokenMint: inv.TokenMint,
		MinAmount: expected,
	})
	if err != nil {
		log.Printf("level=warn component=app op=verify_payment outcome=rejected invoice_id=%s signature=%s err=%v", inv.ID, txSignature, err)
		return nil, err
	}

	paid, err := s.repo.MarkInvoicePaid(ctx, inv.ID, txSignature)
	if err != nil {
		return nil, err
	}
	s.publishInvoiceEvent(ctx, rabbitmq.KeyInvoicePaid, paid)
	return paid, nil
}

// expectedPayment is the invoice amount plus the lottery premium when an
// entry exists.
func (s *Service) expectedPayment(ctx context.Context, inv *domain.Invoice) (int64, error) {
	entry, err := s.repo.GetLotteryEntryByInvoiceID(ctx, inv.ID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return inv.Amount, nil
		}
		return 0, err
	}
	return inv.Amount + entry.Premium, nil
}

func (s *Service) paymentParams(inv *domain.Invoice, payerWallet string, amount int64) (solana.PaymentParams, error) {
	payer, err := solanaKey(payerWallet)
	if err != nil {
		return solana.PaymentParams{}, fmt.Errorf("invalid payer wallet: %w", err)
	}
	recipient, err := solanaKey(inv.CreatorWallet)
	if err != nil {
		return solana.PaymentParams{}, fmt.Errorf("invalid creator wallet: %w", err)
	}
	reference, err := solanaKey(inv.PaymentReference)
	if err != nil {
		return solana.PaymentParams{}, fmt.Errorf("invalid payment reference: %w", err)
	}
	return solana.PaymentParams{
		Payer:     payer,
		Recipient: recipient,
		Reference: reference,
		Amount:    uint64(amount),
		TokenMint: inv.TokenMint,
		Memo:      inv.Memo,
	}, nil
}

// CreateClient stores a new address-book client.
func (s *Service) CreateClient(ctx context.Context, ownerWallet string, payload domain.UpsertClientPayload) (*domain.Client, error) {
	if strings.TrimSpace(payload.Name) == "" {
		return nil, ErrClientNameRequired
	}
	client := &domain.Client{
		ID:          uuid.New(),
		OwnerWallet: ownerWallet,
		Name:        strings.TrimSpace(payload.Name),
		Email:       payload.Email,
		Wallet:      payload.Wallet,
	}
	return s.repo.CreateClient(ctx, client)
}

// ListClients returns the owner's clients.
func (s *Service) ListClients(ctx context.Context, ownerWallet string) ([]domain.Client, error) {
	return s.repo.ListClientsByOwner(ctx, ownerWallet)
}

// GetClient returns one client scoped to its owner.
func (s *Service) GetClient(ctx context.Context, id uuid.UUID, ownerWallet string) (*domain.Client, error) {
	return s.repo.GetClientByID(ctx, id, ownerWallet)
}

// UpdateClient replaces a client's mutable fields.
func (s *Service) UpdateClient(ctx context.Context, id uuid.UUID, ownerWallet string, payload domain.UpsertClientPayload) (*domain.Client, error) {
	if strings.TrimSpace(payload.Name) == "" {
		return nil, ErrClientNameRequired
	}
	payload.Name = strings.TrimSpace(payload.Name)
	return s.repo.UpdateClient(ctx, id, ownerWallet, payload)
}

// DeleteClient removes a client from the owner's address book.
func (s *Service) DeleteClient(ctx context.Context, id uuid.UUID, ownerWallet string) error {
	deleted, err := s.repo.DeleteClient(ctx, id, ownerWallet)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrClientNotFound
	}
	return nil
}

func (s *Service) publishInvoiceEvent(ctx context.Context, routingKey string, inv *domain.Invoice) {
	event := domain.InvoiceEvent{
		InvoiceID:     inv.ID,
		CreatorWallet: inv.CreatorWallet,
		Amount:        inv.Amount,
		TokenMint:     inv.TokenMint,
		Status:        inv.Status,
		TxSignature:   inv.PaidTxSignature,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s invoice_id=%s err=%v", routingKey, inv.ID, err)
	}
}

func solanaKey(addr string) (solanago.PublicKey, error) {
	return solanago.PublicKeyFromBase58(strings.TrimSpace(addr))
}

func (s *Service) consumeRateLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.rateLimiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		// Fail open: a broken limiter must not block settlements.
		log.Printf("level=warn component=app msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > limit {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// RateLimitError reports a rejected request together with the seconds left
// in the current window. It unwraps to ErrRateLimited.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
