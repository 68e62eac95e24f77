/**
 * @description
 * HTTP handlers for the double-or-nothing lottery: quoting the premium for a
 * risk level, opting into the lottery while paying an invoice, settling an
 * entry, and the admin pool management surface.
 *
 * @notes
 * - Quote and pool lookup are public for the payment page. Entry and
 *   settlement require a wallet session: sign-in needs nothing beyond a
 *   wallet signature, and the authenticated wallet keys the rate limiter
 *   so callers cannot dodge it by varying a request field.
 */

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/offmylawn101/invoicenow/internal/domain"
)

// poolMintParam reads the tokenMint URL parameter. "native" addresses the
// SOL pool, stored with an empty mint.
func poolMintParam(r *http.Request) string {
	mint := chi.URLParam(r, "tokenMint")
	if mint == "native" {
		return ""
	}
	return mint
}

// LotteryQuoteHandler handles GET /lottery/quote?amount=&risk=.
func (h *Handlers) LotteryQuoteHandler(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	risk, err := strconv.Atoi(r.URL.Query().Get("risk"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid risk")
		return
	}

	quote, err := h.service.QuoteLottery(amount, risk)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// CreateLotteryEntryHandler handles POST /invoices/{invoiceID}/lottery.
func (h *Handlers) CreateLotteryEntryHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "invoiceID")
	if !ok {
		return
	}

	var payload domain.CreateLotteryEntryPayload
	if !h.decodeBody(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.TxSignature) == "" {
		h.writeError(w, http.StatusBadRequest, "Transaction signature required")
		return
	}
	// The entry is attributed to the session wallet, never a body field.
	payload.ClientWallet = wallet

	entry, err := h.service.CreateLotteryEntry(r.Context(), id, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// GetLotteryEntryHandler handles GET /lottery/entries/{entryID}.
func (h *Handlers) GetLotteryEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "entryID")
	if !ok {
		return
	}

	entry, err := h.service.GetLotteryEntry(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// SettleLotteryEntryHandler handles POST /lottery/entries/{entryID}/settle.
// Settlement is idempotent; repeating the call returns the recorded outcome.
// The rate limiter keys on the session wallet.
func (h *Handlers) SettleLotteryEntryHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "entryID")
	if !ok {
		return
	}

	entry, err := h.service.SettleLotteryEntry(r.Context(), id, wallet)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// GetLotteryPoolHandler handles GET /lottery/pools/{tokenMint}. The payment
// page uses it to show the terms and paused state for the invoice's mint.
func (h *Handlers) GetLotteryPoolHandler(w http.ResponseWriter, r *http.Request) {
	pool, err := h.service.GetLotteryPool(r.Context(), poolMintParam(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pool)
}

// AdminCreateLotteryPoolHandler handles POST /admin/lottery/pools.
func (h *Handlers) AdminCreateLotteryPoolHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.UpsertLotteryPoolPayload
	if !h.decodeBody(w, r, &payload) {
		return
	}

	pool, err := h.service.CreateLotteryPool(r.Context(), payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, pool)
}

// AdminListLotteryPoolsHandler handles GET /admin/lottery/pools.
func (h *Handlers) AdminListLotteryPoolsHandler(w http.ResponseWriter, r *http.Request) {
	pools, err := h.service.ListLotteryPools(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if pools == nil {
		pools = []domain.LotteryPool{}
	}
	h.writeJSON(w, http.StatusOK, pools)
}

// AdminUpdateLotteryPoolHandler handles PUT /admin/lottery/pools/{tokenMint}.
// The sentinel mint "native" addresses the SOL pool, whose mint is stored as
// the empty string.
func (h *Handlers) AdminUpdateLotteryPoolHandler(w http.ResponseWriter, r *http.Request) {
	tokenMint := poolMintParam(r)

	var payload domain.UpsertLotteryPoolPayload
	if !h.decodeBody(w, r, &payload) {
		return
	}

	pool, err := h.service.UpdateLotteryPool(r.Context(), tokenMint, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pool)
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

// AdminPauseLotteryPoolHandler handles PUT /admin/lottery/pools/{tokenMint}/pause.
func (h *Handlers) AdminPauseLotteryPoolHandler(w http.ResponseWriter, r *http.Request) {
	tokenMint := poolMintParam(r)

	var req pauseRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	pool, err := h.service.SetLotteryPoolPaused(r.Context(), tokenMint, req.Paused)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pool)
}
