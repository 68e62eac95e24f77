package solana

import (
	"errors"
	"strings"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func TestCheckTransfer_NativeSOL(t *testing.T) {
	recipient := solanago.NewWallet().PublicKey()
	payer := solanago.NewWallet().PublicKey()
	reference := solanago.NewWallet().PublicKey()

	keys := []solanago.PublicKey{payer, recipient, reference}
	meta := &rpc.TransactionMeta{
		PreBalances:  []uint64{10_000_000, 1_000_000, 0},
		PostBalances: []uint64{7_500_000, 3_400_000, 0},
	}

	amount, err := CheckTransfer(keys, meta, VerifyParams{
		Recipient: recipient.String(),
		Reference: reference.String(),
		MinAmount: 2_000_000,
	})
	if err != nil {
		t.Fatalf("CheckTransfer returned error: %v", err)
	}
	if amount != 2_400_000 {
		t.Fatalf("expected transferred amount 2400000, got %d", amount)
	}
}

func TestCheckTransfer_MissingReference(t *testing.T) {
	recipient := solanago.NewWallet().PublicKey()
	payer := solanago.NewWallet().PublicKey()
	reference := solanago.NewWallet().PublicKey()

	keys := []solanago.PublicKey{payer, recipient}
	meta := &rpc.TransactionMeta{
		PreBalances:  []uint64{10, 0},
		PostBalances: []uint64{5, 5},
	}

	_, err := CheckTransfer(keys, meta, VerifyParams{
		Recipient: recipient.String(),
		Reference: reference.String(),
		MinAmount: 1,
	})
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Fatalf("expected ErrReferenceNotFound, got %v", err)
	}
}

func TestCheckTransfer_InsufficientAmount(t *testing.T) {
	recipient := solanago.NewWallet().PublicKey()
	payer := solanago.NewWallet().PublicKey()
	reference := solanago.NewWallet().PublicKey()

	keys := []solanago.PublicKey{payer, recipient, reference}
	meta := &rpc.TransactionMeta{
		PreBalances:  []uint64{10_000, 0, 0},
		PostBalances: []uint64{9_500, 500, 0},
	}

	_, err := CheckTransfer(keys, meta, VerifyParams{
		Recipient: recipient.String(),
		Reference: reference.String(),
		MinAmount: 1_000,
	})
	if !errors.Is(err, ErrInsufficientAmount) {
		t.Fatalf("expected ErrInsufficientAmount, got %v", err)
	}
}

func TestCheckTransfer_SPLToken(t *testing.T) {
	recipient := solanago.NewWallet().PublicKey()
	payer := solanago.NewWallet().PublicKey()
	reference := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	keys := []solanago.PublicKey{payer, recipient, reference}
	meta := &rpc.TransactionMeta{
		PreTokenBalances: []rpc.TokenBalance{
			{
				AccountIndex:  4,
				Mint:          mint,
				Owner:         &recipient,
				UiTokenAmount: &rpc.UiTokenAmount{Amount: "100"},
			},
		},
		PostTokenBalances: []rpc.TokenBalance{
			{
				AccountIndex:  4,
				Mint:          mint,
				Owner:         &recipient,
				UiTokenAmount: &rpc.UiTokenAmount{Amount: "1100"},
			},
		},
	}

	amount, err := CheckTransfer(keys, meta, VerifyParams{
		Recipient: recipient.String(),
		Reference: reference.String(),
		TokenMint: mint.String(),
		MinAmount: 1_000,
	})
	if err != nil {
		t.Fatalf("CheckTransfer returned error: %v", err)
	}
	if amount != 1_000 {
		t.Fatalf("expected transferred amount 1000, got %d", amount)
	}
}

func TestCheckTransfer_SPLTokenNoRecipientAccount(t *testing.T) {
	recipient := solanago.NewWallet().PublicKey()
	other := solanago.NewWallet().PublicKey()
	reference := solanago.NewWallet().PublicKey()
	mint := solanago.NewWallet().PublicKey()

	keys := []solanago.PublicKey{other, reference}
	meta := &rpc.TransactionMeta{
		PostTokenBalances: []rpc.TokenBalance{
			{
				AccountIndex:  2,
				Mint:          mint,
				Owner:         &other,
				UiTokenAmount: &rpc.UiTokenAmount{Amount: "500"},
			},
		},
	}

	_, err := CheckTransfer(keys, meta, VerifyParams{
		Recipient: recipient.String(),
		Reference: reference.String(),
		TokenMint: mint.String(),
		MinAmount: 1,
	})
	if !errors.Is(err, ErrNoTransferDetected) {
		t.Fatalf("expected ErrNoTransferDetected, got %v", err)
	}
}

func TestPayURL(t *testing.T) {
	recipient := solanago.NewWallet().PublicKey().String()
	reference := solanago.NewWallet().PublicKey().String()
	mint := solanago.NewWallet().PublicKey().String()

	url := PayURL(PayURLParams{
		Recipient: recipient,
		Amount:    "1.5",
		TokenMint: mint,
		Reference: reference,
		Memo:      "INV-42",
		Label:     "InvoiceNow",
	})

	if !strings.HasPrefix(url, "solana:"+recipient+"?") {
		t.Fatalf("unexpected url prefix: %s", url)
	}
	for _, fragment := range []string{
		"amount=1.5",
		"spl-token=" + mint,
		"reference=" + reference,
		"memo=INV-42",
		"label=InvoiceNow",
	} {
		if !strings.Contains(url, fragment) {
			t.Fatalf("expected url to contain %q, got %s", fragment, url)
		}
	}
}

func TestFormatTokenAmount(t *testing.T) {
	tests := []struct {
		amount   int64
		decimals uint8
		want     string
	}{
		{1_500_000_000, 9, "1.5"},
		{2_000_000_000, 9, "2"},
		{1, 9, "0.000000001"},
		{1_230_000, 6, "1.23"},
		{15_000, 6, "0.015"},
		{10, 0, "10"},
		{0, 9, "0"},
	}
	for _, tc := range tests {
		if got := FormatTokenAmount(tc.amount, tc.decimals); got != tc.want {
			t.Errorf("FormatTokenAmount(%d, %d) = %q, want %q", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestPayURL_NativeSOLOmitsSPLToken(t *testing.T) {
	recipient := solanago.NewWallet().PublicKey().String()

	url := PayURL(PayURLParams{Recipient: recipient, Amount: "0.25"})
	if strings.Contains(url, "spl-token") {
		t.Fatalf("native SOL url must not carry spl-token: %s", url)
	}
}
