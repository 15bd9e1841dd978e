// Package signer authorizes ledger payments either with a locally held key
// or by delegating to an external signer such as a browser extension.
package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/ledger"
	"github.com/xrpracing/racegarage/pkg/model"
)

type (
	Intent struct {
		Destination string
		Amount      decimal.Decimal // XRP
		Type        model.TxKind
	}

	Result struct {
		Hash string
		Code string
	}

	// Signer authorizes payment intents.
	// The operation is bounded only by ctx.
	Signer interface {
		Authorize(ctx context.Context, intent Intent) (*Result, error)
		Address() string
	}

	// Delegate is an external signer which autofills, signs and submits.
	Delegate interface {
		Installed(ctx context.Context) (bool, error)
		SignAndSubmit(ctx context.Context, tx ledger.Tx) (*Result, error)
	}

	// Source provides the credentials of a wallet session.
	Source interface {
		Address() string
		Seed() string
		ConnectionType() model.ConnectionType
	}
)

// New picks the signer variant matching the connection type of src.
func New(src Source, client ledger.Client, delegate Delegate) (Signer, error) {
	if src == nil || src.Address() == "" {
		return nil, errs.ErrNoWalletLoaded
	}
	switch src.ConnectionType() {
	case model.ConnectionExtension:
		return NewDelegatedSigner(src.Address(), delegate), nil
	case model.ConnectionCreated, model.ConnectionImported:
		if src.Seed() == "" || client == nil {
			return nil, errs.ErrSignerUnavailable
		}
		return NewDirectSigner(src.Seed(), client)
	default:
		return nil, fmt.Errorf("connection type %q: %w", src.ConnectionType(), errs.ErrSignerUnavailable)
	}
}

// Available reports whether s can currently authorize a payment.
func Available(ctx context.Context, s Signer) bool {
	switch v := s.(type) {
	case nil:
		return false
	case *DirectSigner:
		return v.w != nil
	case *DelegatedSigner:
		if v.delegate == nil {
			return false
		}
		ok, err := v.delegate.Installed(ctx)
		return err == nil && ok
	default:
		return true
	}
}

func buildPayment(account string, intent Intent) (ledger.Tx, error) {
	if intent.Destination == "" {
		return ledger.Tx{}, errors.New("payment without destination")
	}
	if !intent.Amount.IsPositive() {
		return ledger.Tx{}, fmt.Errorf("invalid payment amount %s", intent.Amount)
	}
	return ledger.Tx{
		TransactionType: ledger.TxTypePayment,
		Account:         account,
		Destination:     intent.Destination,
		Amount:          ledger.XRPToDrops(intent.Amount),
	}, nil
}

func checkResult(res *Result) (*Result, error) {
	if res.Code != ledger.ResultSuccess {
		return res, &errs.TxError{Code: res.Code, Hash: res.Hash}
	}
	return res, nil
}
