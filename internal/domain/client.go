/**
 * @description
 * Domain models for the creator's client address book. Clients are plain
 * address-book rows; invoices reference them by optional client_id.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Client represents a client record owned by a creator wallet. It maps to
// the `clients` table.
type Client struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OwnerWallet string    `json:"owner_wallet" db:"owner_wallet"`
	Name        string    `json:"name" db:"name"`
	Email       *string   `json:"email,omitempty" db:"email"`
	Wallet      *string   `json:"wallet,omitempty" db:"wallet"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// UpsertClientPayload defines the structure for creating or updating a client.
type UpsertClientPayload struct {
	Name   string  `json:"name"`
	Email  *string `json:"email,omitempty"`
	Wallet *string `json:"wallet,omitempty"`
}
