/**
 * @description
 * This file sets up the HTTP router for the invoicing service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies any necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser frontend.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the security settings the router needs.
type RouterConfig struct {
	JWTSecret          string
	InternalAPIKey     string
	CORSAllowedOrigins []string
}

// Routes creates and returns the router for the invoicing service.
func Routes(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints: sign-in and everything the payment page needs.
		r.Post("/auth/challenge", h.AuthChallengeHandler)
		r.Post("/auth/verify", h.AuthVerifyHandler)

		r.Get("/invoices/{invoiceID}", h.GetInvoiceHandler)
		r.Post("/invoices/{invoiceID}/transaction", h.PaymentTransactionHandler)
		r.Get("/invoices/{invoiceID}/payment-url", h.PaymentURLHandler)
		r.Post("/invoices/{invoiceID}/verify", h.VerifyPaymentHandler)

		r.Get("/lottery/quote", h.LotteryQuoteHandler)
		r.Get("/lottery/pools/{tokenMint}", h.GetLotteryPoolHandler)

		// Authenticated endpoints. The lottery entry and settlement routes
		// require the payer to sign in with their wallet so the rate limiter
		// keys on a subject the caller cannot forge.
		r.Group(func(r chi.Router) {
			r.Use(WalletAuthMiddleware(cfg.JWTSecret))

			r.Post("/invoices", h.CreateInvoiceHandler)
			r.Get("/invoices", h.ListInvoicesHandler)
			r.Post("/invoices/{invoiceID}/cancel", h.CancelInvoiceHandler)

			r.Post("/invoices/{invoiceID}/lottery", h.CreateLotteryEntryHandler)
			r.Get("/lottery/entries/{entryID}", h.GetLotteryEntryHandler)
			r.Post("/lottery/entries/{entryID}/settle", h.SettleLotteryEntryHandler)

			r.Post("/clients", h.CreateClientHandler)
			r.Get("/clients", h.ListClientsHandler)
			r.Get("/clients/{clientID}", h.GetClientHandler)
			r.Put("/clients/{clientID}", h.UpdateClientHandler)
			r.Delete("/clients/{clientID}", h.DeleteClientHandler)
		})

		// Admin endpoints guarded by the internal API key.
		r.Route("/admin", func(r chi.Router) {
			r.Use(InternalAPIKeyMiddleware(cfg.InternalAPIKey))

			r.Put("/invoices/{invoiceID}/status", h.AdminUpdateInvoiceStatusHandler)

			r.Post("/lottery/pools", h.AdminCreateLotteryPoolHandler)
			r.Get("/lottery/pools", h.AdminListLotteryPoolsHandler)
			r.Put("/lottery/pools/{tokenMint}", h.AdminUpdateLotteryPoolHandler)
			r.Put("/lottery/pools/{tokenMint}/pause", h.AdminPauseLotteryPoolHandler)
		})
	})

	return r
}
