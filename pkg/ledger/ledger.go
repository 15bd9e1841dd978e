// Package ledger talks to the ledger testnet: account lookups, transaction
// submission with validation wait and faucet funding.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type (
	AccountInfo struct {
		Address  string
		Balance  decimal.Decimal // XRP
		Sequence uint32
	}

	// Tx is the minimal payment transaction the client builds.
	// Amount and Fee are in drops.
	Tx struct {
		TransactionType    string `json:"TransactionType"`
		Account            string `json:"Account"`
		Destination        string `json:"Destination"`
		Amount             string `json:"Amount"`
		Fee                string `json:"Fee,omitempty"`
		Sequence           uint32 `json:"Sequence,omitempty"`
		LastLedgerSequence uint32 `json:"LastLedgerSequence,omitempty"`
	}

	SignedTx struct {
		Blob string // binary codec, hex encoded
		Hash string
	}

	SubmitResult struct {
		Hash        string
		Code        string
		LedgerIndex uint32
	}

	// Client is the contract the signer and the wallet service need
	// from the ledger network.
	Client interface {
		AccountInfo(ctx context.Context, address string) (*AccountInfo, error)
		Autofill(ctx context.Context, tx *Tx) error
		SubmitAndWait(ctx context.Context, signed SignedTx) (*SubmitResult, error)
		Fund(ctx context.Context, address string, amount decimal.Decimal) error
	}
)

const (
	TxTypePayment = "Payment"
	ResultSuccess = "tesSUCCESS"
)

// Flatten returns tx in the field map form the binary codec encodes.
func (tx Tx) Flatten() map[string]any {
	ret := map[string]any{
		"TransactionType": tx.TransactionType,
		"Account":         tx.Account,
		"Destination":     tx.Destination,
		"Amount":          tx.Amount,
	}
	if tx.Fee != "" {
		ret["Fee"] = tx.Fee
	}
	if tx.Sequence != 0 {
		ret["Sequence"] = tx.Sequence
	}
	if tx.LastLedgerSequence != 0 {
		ret["LastLedgerSequence"] = tx.LastLedgerSequence
	}
	return ret
}

var ErrAccountNotFound = errors.New("account not found")

var dropsPerXRP = decimal.NewFromInt(1_000_000)

func XRPToDrops(xrp decimal.Decimal) string {
	return xrp.Mul(dropsPerXRP).Truncate(0).String()
}

func DropsToXRP(drops string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(drops)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Div(dropsPerXRP), nil
}
