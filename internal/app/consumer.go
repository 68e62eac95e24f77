/**
 * @description
 * This file contains the RabbitMQ message handlers for the invoicing service.
 * Chain watchers publish `payment.confirmed.*` events when a finalized
 * transfer carrying an invoice's payment reference lands on-chain; handling
 * one marks the invoice paid without the payer having to submit the
 * signature through the HTTP API.
 *
 * @notes
 * - Handlers return true to acknowledge the message and false to have it
 *   requeued. Requeueing is reserved for transient failures; anything a
 *   redelivery cannot change (unknown invoices, verification verdicts on a
 *   finalized transaction) is acknowledged and dropped.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/offmylawn101/invoicenow/internal/domain"
	"github.com/offmylawn101/invoicenow/internal/store"
	"github.com/offmylawn101/invoicenow/pkg/solana"
)

const consumerHandlerTimeout = 30 * time.Second

// HandlePaymentConfirmed processes a payment.confirmed.* event from a chain
// watcher. The transfer is re-verified against the invoice before the status
// flips; a watcher cannot mark an invoice paid on its word alone.
func (s *Service) HandlePaymentConfirmed(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), consumerHandlerTimeout)
	defer cancel()

	var event domain.PaymentConfirmedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=consumer msg=\"failed to unmarshal payment confirmed event\" err=%v", err)
		return true // Malformed message, cannot be retried.
	}

	// Chain watchers track payment references, not invoice IDs; resolve the
	// invoice when the event carries only the reference.
	invoiceID := event.InvoiceID
	if invoiceID == uuid.Nil {
		inv, err := s.repo.GetInvoiceByReference(ctx, event.Reference)
		if err != nil {
			if errors.Is(err, store.ErrInvoiceNotFound) {
				log.Printf("level=warn component=consumer msg=\"payment confirmed for unknown reference\" reference=%s", event.Reference)
				return true
			}
			log.Printf("level=error component=consumer msg=\"failed to resolve payment reference\" reference=%s err=%v", event.Reference, err)
			return false
		}
		invoiceID = inv.ID
	}

	_, err := s.VerifyInvoicePayment(ctx, invoiceID, event.TxSignature)
	switch {
	case err == nil:
		log.Printf("level=info component=consumer op=payment_confirmed invoice_id=%s signature=%s", invoiceID, event.TxSignature)
		return true
	case errors.Is(err, store.ErrInvoiceNotFound):
		log.Printf("level=warn component=consumer msg=\"payment confirmed for unknown invoice\" invoice_id=%s", invoiceID)
		return true
	case errors.Is(err, store.ErrInvoiceNotPayable):
		// Already paid or cancelled; nothing to do.
		return true
	case errors.Is(err, solana.ErrTransactionFailed),
		errors.Is(err, solana.ErrReferenceNotFound),
		errors.Is(err, solana.ErrInsufficientAmount),
		errors.Is(err, solana.ErrNoTransferDetected):
		// A finalized transaction never changes; redelivery cannot turn this
		// verdict around, so the message is dropped.
		log.Printf("level=warn component=consumer msg=\"payment confirmation rejected on chain verification\" invoice_id=%s signature=%s err=%v", invoiceID, event.TxSignature, err)
		return true
	default:
		log.Printf("level=error component=consumer msg=\"failed to process payment confirmation\" invoice_id=%s err=%v", invoiceID, err)
		return false
	}
}

// ConsumerBindings returns the routing-key patterns this service consumes,
// mapped to their handlers.
func (s *Service) ConsumerBindings() map[string]func([]byte) bool {
	return map[string]func([]byte) bool{
		"payment.confirmed.*": s.HandlePaymentConfirmed,
	}
}
