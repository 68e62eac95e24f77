/**
 * @description
 * HTTP handlers for invoice management and the Solana Pay payment flow. The
 * invoice detail, payment transaction, and verification endpoints are public
 * so a payer can settle an invoice from the shared link without an account.
 */

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/offmylawn101/invoicenow/internal/domain"
)

// CreateInvoiceHandler handles POST /invoices.
func (h *Handlers) CreateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}

	var payload domain.CreateInvoicePayload
	if !h.decodeBody(w, r, &payload) {
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), wallet, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, inv)
}

// ListInvoicesHandler handles GET /invoices with optional status, search and
// pagination query parameters.
func (h *Handlers) ListInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}

	opts := domain.InvoiceListOptions{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		opts.Offset = offset
	}

	invoices, err := h.service.ListInvoices(r.Context(), wallet, opts)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	h.writeJSON(w, http.StatusOK, invoices)
}

// GetInvoiceHandler handles GET /invoices/{invoiceID}. Public: the payment
// page renders the invoice for the payer.
func (h *Handlers) GetInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "invoiceID")
	if !ok {
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}

// CancelInvoiceHandler handles POST /invoices/{invoiceID}/cancel.
func (h *Handlers) CancelInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "invoiceID")
	if !ok {
		return
	}

	inv, err := h.service.CancelInvoice(r.Context(), id, wallet)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}

type paymentTransactionRequest struct {
	Account string `json:"account"`
}

// PaymentTransactionHandler handles POST /invoices/{invoiceID}/transaction.
// It implements the Solana Pay transaction-request flow: the wallet POSTs its
// account and receives a base64 transaction to sign.
func (h *Handlers) PaymentTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "invoiceID")
	if !ok {
		return
	}

	var req paymentTransactionRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Account) == "" {
		h.writeError(w, http.StatusBadRequest, "Account required")
		return
	}

	resp, err := h.service.BuildPaymentTransaction(r.Context(), id, req.Account)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PaymentURLHandler handles GET /invoices/{invoiceID}/payment-url, returning
// the solana: transfer-request URL for QR rendering.
func (h *Handlers) PaymentURLHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "invoiceID")
	if !ok {
		return
	}

	payURL, err := h.service.PaymentURL(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": payURL})
}

// VerifyPaymentHandler handles POST /invoices/{invoiceID}/verify. The payer
// submits the broadcast transaction signature; the service checks it on-chain
// and marks the invoice paid.
func (h *Handlers) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "invoiceID")
	if !ok {
		return
	}

	var payload domain.VerifyPaymentPayload
	if !h.decodeBody(w, r, &payload) {
		return
	}

	inv, err := h.service.VerifyInvoicePayment(r.Context(), id, payload.TxSignature)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}

// AdminUpdateInvoiceStatusHandler handles PUT /admin/invoices/{invoiceID}/status.
func (h *Handlers) AdminUpdateInvoiceStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "invoiceID")
	if !ok {
		return
	}

	var payload domain.UpdateInvoiceStatusPayload
	if !h.decodeBody(w, r, &payload) {
		return
	}

	inv, err := h.service.UpdateInvoiceStatus(r.Context(), id, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}
