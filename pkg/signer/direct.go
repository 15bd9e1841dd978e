package signer

import (
	"context"
	"fmt"

	"github.com/Peersyst/xrpl-go/xrpl/wallet"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/ledger"
)

// DirectSigner signs with the key pair of a locally held seed.
type DirectSigner struct {
	w      *wallet.Wallet
	client ledger.Client
	l      *log.Logger
}

func NewDirectSigner(seed string, client ledger.Client) (*DirectSigner, error) {
	w, err := walletFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &DirectSigner{
		w:      w,
		client: client,
		l:      log.Default().Named("signer.direct"),
	}, nil
}

func (s *DirectSigner) Address() string {
	return string(s.w.ClassicAddress)
}

func (s *DirectSigner) Authorize(ctx context.Context, intent Intent) (*Result, error) {
	tx, err := buildPayment(s.Address(), intent)
	if err != nil {
		return nil, err
	}
	if err := s.client.Autofill(ctx, &tx); err != nil {
		return nil, fmt.Errorf("autofill: %w", err)
	}
	signed, err := s.sign(tx)
	if err != nil {
		return nil, err
	}
	s.l.Debug("submitting payment",
		log.String("destination", tx.Destination),
		log.String("drops", tx.Amount),
		log.String("hash", signed.Hash))
	res, err := s.client.SubmitAndWait(ctx, signed)
	if err != nil {
		return nil, err
	}
	return checkResult(&Result{Hash: res.Hash, Code: res.Code})
}

// sign produces the binary encoded, signed blob and its transaction hash.
func (s *DirectSigner) sign(tx ledger.Tx) (ledger.SignedTx, error) {
	blob, hash, err := s.w.Sign(tx.Flatten())
	if err != nil {
		return ledger.SignedTx{}, fmt.Errorf("sign payment: %w", err)
	}
	return ledger.SignedTx{Blob: blob, Hash: hash}, nil
}
