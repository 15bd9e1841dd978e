package signer

import (
	"context"
	"fmt"

	"github.com/xrpracing/racegarage/pkg/errs"
)

// DelegatedSigner forwards intents to an external delegate.
// There is no fallback to local keys.
type DelegatedSigner struct {
	address  string
	delegate Delegate
}

func NewDelegatedSigner(address string, delegate Delegate) *DelegatedSigner {
	return &DelegatedSigner{address: address, delegate: delegate}
}

func (s *DelegatedSigner) Address() string {
	return s.address
}

func (s *DelegatedSigner) Authorize(ctx context.Context, intent Intent) (*Result, error) {
	if s.delegate == nil {
		return nil, errs.ErrSignerUnavailable
	}
	installed, err := s.delegate.Installed(ctx)
	if err != nil {
		return nil, fmt.Errorf("delegate check: %w: %w", errs.ErrSignerUnavailable, err)
	}
	if !installed {
		return nil, errs.ErrSignerUnavailable
	}
	tx, err := buildPayment(s.address, intent)
	if err != nil {
		return nil, err
	}
	res, err := s.delegate.SignAndSubmit(ctx, tx)
	if err != nil {
		return nil, err
	}
	return checkResult(res)
}
