/**
 * @description
 * This package wraps the Solana JSON-RPC node interactions needed by the
 * invoicing service: fetching a recent blockhash for transaction
 * construction and fetching finalized transactions for payment verification.
 *
 * @dependencies
 * - github.com/gagliardetto/solana-go: Solana SDK (keys, transactions).
 * - github.com/gagliardetto/solana-go/rpc: JSON-RPC client.
 */
package solana

import (
	"context"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client is a thin wrapper over the Solana RPC client.
type Client struct {
	rpc *rpc.Client
}

// NewClient creates a new Solana RPC client for the given endpoint.
func NewClient(endpoint string) *Client {
	return &Client{rpc: rpc.New(endpoint)}
}

// LatestBlockhash returns a finalized recent blockhash for transaction
// construction.
func (c *Client) LatestBlockhash(ctx context.Context) (solanago.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solanago.Hash{}, fmt.Errorf("failed to fetch latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// TokenDecimals returns the decimal count of an SPL token mint, used to
// render base-unit amounts in payment URLs.
func (c *Client) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	mintKey, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid token mint: %w", err)
	}
	out, err := c.rpc.GetTokenSupply(ctx, mintKey, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch token supply: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("empty token supply response for mint %s", mint)
	}
	return out.Value.Decimals, nil
}

// FetchTransaction fetches a finalized transaction by signature. The result
// carries the parsed message plus balance metadata used for verification.
func (c *Client) FetchTransaction(ctx context.Context, signature string) (*rpc.GetTransactionResult, error) {
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction signature: %w", err)
	}

	maxVersion := uint64(0)
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := c.rpc.GetTransaction(fetchCtx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solanago.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if out == nil {
		return nil, ErrTransactionNotFound
	}
	return out, nil
}
