/**
 * @description
 * Payment verification against a fetched Solana transaction. Verification
 * checks that the transaction succeeded, that the invoice's payment
 * reference appears among the transaction's account keys, and that the
 * amount actually transferred to the recipient covers the expected payment.
 *
 * Native SOL transfers are measured with pre/post lamport balances; SPL
 * token transfers with pre/post token balances for the recipient-owned
 * token account of the expected mint.
 */
package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionFailed   = errors.New("transaction failed on chain")
	ErrReferenceNotFound   = errors.New("payment reference not found in transaction")
	ErrInsufficientAmount  = errors.New("transferred amount below expected payment")
	ErrNoTransferDetected  = errors.New("no transfer to recipient detected")
)

// VerifyParams describes the expected payment to check a transaction against.
type VerifyParams struct {
	Signature string
	Recipient string
	Reference string
	TokenMint string // empty for native SOL
	MinAmount int64  // smallest token unit
}

// VerifyTransfer fetches the transaction and verifies it settles the
// expected payment. It returns the transferred amount on success.
func (c *Client) VerifyTransfer(ctx context.Context, params VerifyParams) (int64, error) {
	result, err := c.FetchTransaction(ctx, params.Signature)
	if err != nil {
		return 0, err
	}
	if result.Meta == nil {
		return 0, ErrTransactionNotFound
	}
	if result.Meta.Err != nil {
		return 0, ErrTransactionFailed
	}

	parsed, err := result.Transaction.GetTransaction()
	if err != nil {
		return 0, fmt.Errorf("failed to decode transaction: %w", err)
	}

	return CheckTransfer(parsed.Message.AccountKeys, result.Meta, params)
}

// CheckTransfer runs the verification rules against the account keys and
// balance metadata of an already-fetched transaction. It is split from
// VerifyTransfer so the rules can be tested without an RPC node.
func CheckTransfer(accountKeys []solanago.PublicKey, meta *rpc.TransactionMeta, params VerifyParams) (int64, error) {
	reference, err := solanago.PublicKeyFromBase58(params.Reference)
	if err != nil {
		return 0, fmt.Errorf("invalid payment reference: %w", err)
	}
	recipient, err := solanago.PublicKeyFromBase58(params.Recipient)
	if err != nil {
		return 0, fmt.Errorf("invalid recipient: %w", err)
	}

	if !containsKey(accountKeys, reference) {
		return 0, ErrReferenceNotFound
	}

	var transferred int64
	if params.TokenMint == "" {
		transferred, err = lamportDelta(accountKeys, meta, recipient)
	} else {
		transferred, err = tokenDelta(meta, recipient, params.TokenMint)
	}
	if err != nil {
		return 0, err
	}

	if transferred < params.MinAmount {
		return transferred, ErrInsufficientAmount
	}
	return transferred, nil
}

func containsKey(keys []solanago.PublicKey, want solanago.PublicKey) bool {
	for _, key := range keys {
		if key.Equals(want) {
			return true
		}
	}
	return false
}

// lamportDelta computes the recipient's lamport balance change.
func lamportDelta(accountKeys []solanago.PublicKey, meta *rpc.TransactionMeta, recipient solanago.PublicKey) (int64, error) {
	for i, key := range accountKeys {
		if !key.Equals(recipient) {
			continue
		}
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			return 0, ErrNoTransferDetected
		}
		delta := int64(meta.PostBalances[i]) - int64(meta.PreBalances[i])
		if delta <= 0 {
			return 0, ErrNoTransferDetected
		}
		return delta, nil
	}
	return 0, ErrNoTransferDetected
}

// tokenDelta computes the balance change of the recipient-owned token
// account for the expected mint.
func tokenDelta(meta *rpc.TransactionMeta, recipient solanago.PublicKey, mint string) (int64, error) {
	mintKey, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid token mint: %w", err)
	}

	post := findTokenBalance(meta.PostTokenBalances, recipient, mintKey)
	if post == nil {
		return 0, ErrNoTransferDetected
	}
	postAmount, err := parseRawAmount(post)
	if err != nil {
		return 0, err
	}

	var preAmount int64
	if pre := findTokenBalanceByIndex(meta.PreTokenBalances, post.AccountIndex); pre != nil {
		preAmount, err = parseRawAmount(pre)
		if err != nil {
			return 0, err
		}
	}

	delta := postAmount - preAmount
	if delta <= 0 {
		return 0, ErrNoTransferDetected
	}
	return delta, nil
}

func findTokenBalance(balances []rpc.TokenBalance, owner solanago.PublicKey, mint solanago.PublicKey) *rpc.TokenBalance {
	for i := range balances {
		b := &balances[i]
		if b.Owner == nil || !b.Owner.Equals(owner) {
			continue
		}
		if !b.Mint.Equals(mint) {
			continue
		}
		return b
	}
	return nil
}

func findTokenBalanceByIndex(balances []rpc.TokenBalance, index uint16) *rpc.TokenBalance {
	for i := range balances {
		if balances[i].AccountIndex == index {
			return &balances[i]
		}
	}
	return nil
}

func parseRawAmount(balance *rpc.TokenBalance) (int64, error) {
	if balance.UiTokenAmount == nil {
		return 0, ErrNoTransferDetected
	}
	amount, err := strconv.ParseInt(balance.UiTokenAmount.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", balance.UiTokenAmount.Amount, err)
	}
	return amount, nil
}
