package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/offmylawn101/invoicenow/internal/app"
	"github.com/offmylawn101/invoicenow/internal/store"
	"github.com/offmylawn101/invoicenow/pkg/solana"
)

func TestHandleServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invoice not found", store.ErrInvoiceNotFound, http.StatusNotFound},
		{"client not found", store.ErrClientNotFound, http.StatusNotFound},
		{"pool not found", store.ErrPoolNotFound, http.StatusNotFound},
		{"entry not found", store.ErrEntryNotFound, http.StatusNotFound},
		{"invoice not pending", store.ErrInvoiceNotPending, http.StatusConflict},
		{"invoice not payable", store.ErrInvoiceNotPayable, http.StatusConflict},
		{"pool paused", store.ErrPoolPaused, http.StatusConflict},
		{"duplicate entry", store.ErrDuplicateLotteryEntry, http.StatusConflict},
		{"pool exists", store.ErrPoolExists, http.StatusConflict},
		{"invalid amount", app.ErrInvalidAmount, http.StatusBadRequest},
		{"invalid risk", app.ErrInvalidRisk, http.StatusBadRequest},
		{"missing signature", app.ErrMissingSignature, http.StatusBadRequest},
		{"invalid status wrapped", fmt.Errorf("%w: %q", app.ErrInvalidStatus, "bogus"), http.StatusBadRequest},
		{"rate limited", &app.RateLimitError{RetryAfterSeconds: 30}, http.StatusTooManyRequests},
		{"transaction not found", solana.ErrTransactionNotFound, http.StatusUnprocessableEntity},
		{"insufficient amount", solana.ErrInsufficientAmount, http.StatusUnprocessableEntity},
		{"unknown error", errors.New("db on fire"), http.StatusInternalServerError},
	}

	h := &Handlers{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.handleServiceError(rec, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("expected a JSON error body, got %s", rec.Body.String())
			}
		})
	}
}

func TestHandleServiceErrorSetsRetryAfter(t *testing.T) {
	h := &Handlers{}
	rec := httptest.NewRecorder()
	h.handleServiceError(rec, &app.RateLimitError{RetryAfterSeconds: 42})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After 42, got %q", got)
	}
}

func TestLotteryEndpointsRequireWalletSession(t *testing.T) {
	router := Routes(newAuthHandlers(t), RouterConfig{JWTSecret: testJWTSecret})

	requests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/invoices/8a1f2e84-8f24-4b88-9c2e-37a1f5a3f9a1/lottery"},
		{http.MethodGet, "/api/v1/lottery/entries/8a1f2e84-8f24-4b88-9c2e-37a1f5a3f9a1"},
		{http.MethodPost, "/api/v1/lottery/entries/8a1f2e84-8f24-4b88-9c2e-37a1f5a3f9a1/settle"},
	}
	for _, tc := range requests {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 without a session, got %d", tc.method, tc.path, rec.Code)
		}
	}
}
