/**
 * @description
 * Solana Pay support: building the unsigned payment transaction returned by
 * the transaction-request endpoint, and rendering the solana: payment URL
 * for QR codes and deep links.
 *
 * The payment reference (an ephemeral public key generated per invoice) is
 * attached to the transfer instruction as a non-signer, non-writable account
 * so the transaction can later be located and verified on chain.
 */
package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// NativeSOLDecimals is the decimal count of the native token (lamports per SOL).
const NativeSOLDecimals uint8 = 9

// PaymentParams describes one invoice payment to be constructed.
type PaymentParams struct {
	Payer     solanago.PublicKey
	Recipient solanago.PublicKey
	Reference solanago.PublicKey
	Amount    uint64 // smallest token unit
	TokenMint string // empty for native SOL
	Memo      string
}

// NewPaymentReference generates a fresh ephemeral public key used to tag and
// later locate an invoice's payment transaction.
func NewPaymentReference() string {
	return solanago.NewWallet().PublicKey().String()
}

// BuildPaymentTransaction constructs the unsigned payment transaction for an
// invoice and returns it base64-encoded, ready for a wallet adapter to sign
// (the Solana Pay transaction-request flow).
func (c *Client) BuildPaymentTransaction(ctx context.Context, params PaymentParams) (string, error) {
	transfer, err := buildTransferInstruction(params)
	if err != nil {
		return "", err
	}

	instructions := []solanago.Instruction{transfer}
	if params.Memo != "" {
		instructions = append(instructions, buildMemoInstruction(params.Memo, params.Payer))
	}

	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	tx, err := solanago.NewTransaction(
		instructions,
		blockhash,
		solanago.TransactionPayer(params.Payer),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build payment transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize payment transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// buildTransferInstruction creates the system-program transfer (native SOL)
// or SPL token transfer instruction, with the payment reference appended as
// a read-only account key.
func buildTransferInstruction(params PaymentParams) (solanago.Instruction, error) {
	var base solanago.Instruction
	if params.TokenMint == "" {
		base = system.NewTransferInstruction(params.Amount, params.Payer, params.Recipient).Build()
	} else {
		mint, err := solanago.PublicKeyFromBase58(params.TokenMint)
		if err != nil {
			return nil, fmt.Errorf("invalid token mint: %w", err)
		}
		source, _, err := solanago.FindAssociatedTokenAddress(params.Payer, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive payer token account: %w", err)
		}
		destination, _, err := solanago.FindAssociatedTokenAddress(params.Recipient, mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive recipient token account: %w", err)
		}
		base = token.NewTransferInstruction(params.Amount, source, destination, params.Payer, nil).Build()
	}

	return withReference(base, params.Reference)
}

// withReference rebuilds an instruction with the reference key appended as a
// non-signer, non-writable account.
func withReference(ix solanago.Instruction, reference solanago.PublicKey) (solanago.Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer instruction: %w", err)
	}
	accounts := append(solanago.AccountMetaSlice{}, ix.Accounts()...)
	accounts = append(accounts, &solanago.AccountMeta{PublicKey: reference})
	return solanago.NewInstruction(ix.ProgramID(), accounts, data), nil
}

// buildMemoInstruction creates a memo-program instruction carrying the
// invoice memo, signed by the payer.
func buildMemoInstruction(memo string, signer solanago.PublicKey) solanago.Instruction {
	return solanago.NewInstruction(
		solanago.MemoProgramID,
		solanago.AccountMetaSlice{
			{PublicKey: signer, IsSigner: true, IsWritable: false},
		},
		[]byte(memo),
	)
}

// PayURLParams describes a Solana Pay transfer-request URL.
type PayURLParams struct {
	Recipient string
	Amount    string // decimal display amount; callers format per mint decimals
	TokenMint string // empty for native SOL
	Reference string
	Memo      string
	Label     string
}

// FormatTokenAmount renders a base-unit amount as the decimal token amount
// the solana: URL scheme expects, with trailing zeros trimmed.
func FormatTokenAmount(amount int64, decimals uint8) string {
	if decimals == 0 {
		return strconv.FormatInt(amount, 10)
	}
	div := int64(1)
	for i := uint8(0); i < decimals; i++ {
		div *= 10
	}
	whole := amount / div
	frac := amount % div
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%0*d", int(decimals), frac), "0")
	return strconv.FormatInt(whole, 10) + "." + fracStr
}

// PayURL renders a solana: transfer-request URL per the Solana Pay spec.
func PayURL(params PayURLParams) string {
	values := url.Values{}
	if params.Amount != "" {
		values.Set("amount", params.Amount)
	}
	if params.TokenMint != "" {
		values.Set("spl-token", params.TokenMint)
	}
	if params.Reference != "" {
		values.Set("reference", params.Reference)
	}
	if params.Memo != "" {
		values.Set("memo", params.Memo)
	}
	if params.Label != "" {
		values.Set("label", params.Label)
	}

	var sb strings.Builder
	sb.WriteString("solana:")
	sb.WriteString(params.Recipient)
	if encoded := values.Encode(); encoded != "" {
		sb.WriteString("?")
		sb.WriteString(encoded)
	}
	return sb.String()
}
