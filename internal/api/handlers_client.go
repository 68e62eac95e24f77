/**
 * @description
 * HTTP handlers for the creator's client address book. All endpoints require
 * authentication and operate only on clients owned by the caller's wallet.
 */

package api

import (
	"net/http"

	"github.com/offmylawn101/invoicenow/internal/domain"
)

// CreateClientHandler handles POST /clients.
func (h *Handlers) CreateClientHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}

	var payload domain.UpsertClientPayload
	if !h.decodeBody(w, r, &payload) {
		return
	}

	client, err := h.service.CreateClient(r.Context(), wallet, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, client)
}

// ListClientsHandler handles GET /clients.
func (h *Handlers) ListClientsHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}

	clients, err := h.service.ListClients(r.Context(), wallet)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if clients == nil {
		clients = []domain.Client{}
	}
	h.writeJSON(w, http.StatusOK, clients)
}

// GetClientHandler handles GET /clients/{clientID}.
func (h *Handlers) GetClientHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "clientID")
	if !ok {
		return
	}

	client, err := h.service.GetClient(r.Context(), id, wallet)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, client)
}

// UpdateClientHandler handles PUT /clients/{clientID}.
func (h *Handlers) UpdateClientHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "clientID")
	if !ok {
		return
	}

	var payload domain.UpsertClientPayload
	if !h.decodeBody(w, r, &payload) {
		return
	}

	client, err := h.service.UpdateClient(r.Context(), id, wallet, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, client)
}

// DeleteClientHandler handles DELETE /clients/{clientID}.
func (h *Handlers) DeleteClientHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.requireWallet(w, r)
	if !ok {
		return
	}
	id, ok := h.pathUUID(w, r, "clientID")
	if !ok {
		return
	}

	if err := h.service.DeleteClient(r.Context(), id, wallet); err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}
