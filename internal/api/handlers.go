/**
 * @description
 * This file contains the HTTP handler plumbing shared by the invoicing API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/store: For service logic and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/offmylawn101/invoicenow/internal/app"
	"github.com/offmylawn101/invoicenow/internal/store"
	"github.com/offmylawn101/invoicenow/pkg/solana"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service    *app.Service
	nonceStore NonceStore
	jwtSecret  string
	jwtTTL     time.Duration
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, nonceStore NonceStore, jwtSecret string, jwtTTL time.Duration) *Handlers {
	return &Handlers{
		service:    service,
		nonceStore: nonceStore,
		jwtSecret:  jwtSecret,
		jwtTTL:     jwtTTL,
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody parses a JSON request body into dst, rejecting unknown fields.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// pathUUID extracts and parses a UUID URL parameter, writing a 400 on failure.
func (h *Handlers) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// requireWallet pulls the authenticated wallet from the context.
func (h *Handlers) requireWallet(w http.ResponseWriter, r *http.Request) (string, bool) {
	wallet, ok := GetWallet(r.Context())
	if !ok || wallet == "" {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return "", false
	}
	return wallet, true
}

// handleServiceError maps service and store errors to HTTP responses.
func (h *Handlers) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvoiceNotFound),
		errors.Is(err, store.ErrClientNotFound),
		errors.Is(err, store.ErrPoolNotFound),
		errors.Is(err, store.ErrEntryNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvoiceNotPending),
		errors.Is(err, store.ErrInvoiceNotPayable),
		errors.Is(err, store.ErrPoolPaused),
		errors.Is(err, store.ErrDuplicateLotteryEntry),
		errors.Is(err, store.ErrPoolExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidDueDate),
		errors.Is(err, app.ErrMilestonesExceedAmount),
		errors.Is(err, app.ErrInvalidRisk),
		errors.Is(err, app.ErrMissingSignature),
		errors.Is(err, app.ErrClientNameRequired),
		errors.Is(err, app.ErrInvalidStatus):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		var rl *app.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		}
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, solana.ErrTransactionNotFound),
		errors.Is(err, solana.ErrTransactionFailed),
		errors.Is(err, solana.ErrReferenceNotFound),
		errors.Is(err, solana.ErrInsufficientAmount),
		errors.Is(err, solana.ErrNoTransferDetected):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
