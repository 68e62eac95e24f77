package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

const testJWTSecret = "test-secret"

func newAuthHandlers(t *testing.T) *Handlers {
	t.Helper()
	return NewHandlers(nil, NewMemoryNonceStore(time.Minute), testJWTSecret, time.Hour)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestSignInFlow(t *testing.T) {
	h := newAuthHandlers(t)
	wallet := solanago.NewWallet()
	address := wallet.PublicKey().String()

	rec := postJSON(t, h.AuthChallengeHandler, challengeRequest{Wallet: address})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from challenge, got %d: %s", rec.Code, rec.Body.String())
	}
	var challenge challengeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if challenge.Nonce == "" || challenge.Message == "" {
		t.Fatalf("expected nonce and message, got %+v", challenge)
	}

	signature, err := wallet.PrivateKey.Sign([]byte(challenge.Message))
	if err != nil {
		t.Fatalf("sign challenge: %v", err)
	}

	rec = postJSON(t, h.AuthVerifyHandler, verifyRequest{
		Wallet:    address,
		Nonce:     challenge.Nonce,
		Signature: signature.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from verify, got %d: %s", rec.Code, rec.Body.String())
	}
	var session sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.Token == "" || session.Wallet != address {
		t.Fatalf("expected session token for %s, got %+v", address, session)
	}

	// The issued token passes the auth middleware and carries the wallet.
	var gotWallet string
	protected := WalletAuthMiddleware(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotWallet, _ = GetWallet(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	authRec := httptest.NewRecorder()
	protected.ServeHTTP(authRec, req)
	if authRec.Code != http.StatusOK {
		t.Fatalf("expected 200 through middleware, got %d", authRec.Code)
	}
	if gotWallet != address {
		t.Fatalf("expected wallet %s in context, got %s", address, gotWallet)
	}
}

func TestSignInRejectsWrongKey(t *testing.T) {
	h := newAuthHandlers(t)
	wallet := solanago.NewWallet()
	imposter := solanago.NewWallet()
	address := wallet.PublicKey().String()

	rec := postJSON(t, h.AuthChallengeHandler, challengeRequest{Wallet: address})
	var challenge challengeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}

	// Signed by a different key.
	signature, err := imposter.PrivateKey.Sign([]byte(challenge.Message))
	if err != nil {
		t.Fatalf("sign challenge: %v", err)
	}

	rec = postJSON(t, h.AuthVerifyHandler, verifyRequest{
		Wallet:    address,
		Nonce:     challenge.Nonce,
		Signature: signature.String(),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged signature, got %d", rec.Code)
	}
}

func TestSignInNonceIsSingleUse(t *testing.T) {
	h := newAuthHandlers(t)
	wallet := solanago.NewWallet()
	address := wallet.PublicKey().String()

	rec := postJSON(t, h.AuthChallengeHandler, challengeRequest{Wallet: address})
	var challenge challengeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}

	signature, err := wallet.PrivateKey.Sign([]byte(challenge.Message))
	if err != nil {
		t.Fatalf("sign challenge: %v", err)
	}
	req := verifyRequest{Wallet: address, Nonce: challenge.Nonce, Signature: signature.String()}

	if rec := postJSON(t, h.AuthVerifyHandler, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on first verify, got %d", rec.Code)
	}
	if rec := postJSON(t, h.AuthVerifyHandler, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on replay, got %d", rec.Code)
	}
}

func TestSignInRejectsInvalidWallet(t *testing.T) {
	h := newAuthHandlers(t)
	rec := postJSON(t, h.AuthChallengeHandler, challengeRequest{Wallet: "not-a-wallet"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad wallet, got %d", rec.Code)
	}
}

func TestWalletAuthMiddlewareRejections(t *testing.T) {
	protected := WalletAuthMiddleware(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not.a.jwt", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	t.Run("token signed with wrong secret", func(t *testing.T) {
		token, err := IssueSessionToken("other-secret", "Wallet111", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := IssueSessionToken(testJWTSecret, "Wallet111", -time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestInternalAPIKeyMiddleware(t *testing.T) {
	protected := InternalAPIKeyMiddleware("admin-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(internalAPIKeyHeader, "wrong")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(internalAPIKeyHeader, "admin-key")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid key, got %d", rec.Code)
	}

	// An empty configured key disables the surface.
	disabled := InternalAPIKeyMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when disabled, got %d", rec.Code)
	}
}

func TestMemoryNonceStoreExpiry(t *testing.T) {
	store := NewMemoryNonceStore(time.Millisecond)
	nonce, err := store.Issue(context.Background(), "Wallet111")
	if err != nil {
		t.Fatalf("issue nonce: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	ok, err := store.Consume(context.Background(), "Wallet111", nonce)
	if err != nil {
		t.Fatalf("consume nonce: %v", err)
	}
	if ok {
		t.Fatal("expected expired nonce to be rejected")
	}
}
