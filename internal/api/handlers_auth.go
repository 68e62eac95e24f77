/**
 * @description
 * Sign-in-with-wallet handlers. A wallet proves ownership by signing a
 * server-issued challenge with its ed25519 key; on success the server issues
 * a short-lived session JWT carrying the wallet address as its subject.
 *
 * @notes
 * - Signatures are base58-encoded, matching what Solana wallet adapters
 *   produce from `signMessage`.
 * - Nonces are single-use: verification consumes the nonce whether or not
 *   the signature checks out.
 */

package api

import (
	"crypto/ed25519"
	"fmt"
	"log"
	"net/http"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
)

type challengeRequest struct {
	Wallet string `json:"wallet"`
}

type challengeResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

type verifyRequest struct {
	Wallet    string `json:"wallet"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

type sessionResponse struct {
	Token  string `json:"token"`
	Wallet string `json:"wallet"`
}

// challengeMessage renders the exact text the wallet must sign.
func challengeMessage(wallet, nonce string) string {
	return fmt.Sprintf("InvoiceNow sign-in\nWallet: %s\nNonce: %s", wallet, nonce)
}

// AuthChallengeHandler issues a sign-in nonce for a wallet.
func (h *Handlers) AuthChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	wallet := strings.TrimSpace(req.Wallet)
	if _, err := solanago.PublicKeyFromBase58(wallet); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid wallet address")
		return
	}

	nonce, err := h.nonceStore.Issue(r.Context(), wallet)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to issue auth nonce\" wallet=%s err=%v", wallet, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to issue challenge")
		return
	}

	h.writeJSON(w, http.StatusOK, challengeResponse{
		Nonce:   nonce,
		Message: challengeMessage(wallet, nonce),
	})
}

// AuthVerifyHandler checks the signed challenge and issues a session token.
func (h *Handlers) AuthVerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	wallet := strings.TrimSpace(req.Wallet)
	pubkey, err := solanago.PublicKeyFromBase58(wallet)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid wallet address")
		return
	}
	signature, err := solanago.SignatureFromBase58(strings.TrimSpace(req.Signature))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid signature encoding")
		return
	}

	valid, err := h.nonceStore.Consume(r.Context(), wallet, req.Nonce)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to consume auth nonce\" wallet=%s err=%v", wallet, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to verify challenge")
		return
	}
	if !valid {
		h.writeError(w, http.StatusUnauthorized, "Unknown or expired challenge")
		return
	}

	message := []byte(challengeMessage(wallet, req.Nonce))
	if !ed25519.Verify(ed25519.PublicKey(pubkey.Bytes()), message, signature[:]) {
		h.writeError(w, http.StatusUnauthorized, "Signature verification failed")
		return
	}

	token, err := IssueSessionToken(h.jwtSecret, wallet, h.jwtTTL)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to sign session token\" wallet=%s err=%v", wallet, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to create session")
		return
	}

	log.Printf("level=info component=api op=sign_in wallet=%s", wallet)
	h.writeJSON(w, http.StatusOK, sessionResponse{Token: token, Wallet: wallet})
}
