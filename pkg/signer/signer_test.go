//nolint:thelper,funlen // ok for tests
package signer

import (
	"context"
	"errors"
	"strings"
	"testing"

	binarycodec "github.com/Peersyst/xrpl-go/binary-codec"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/ledger"
	"github.com/xrpracing/racegarage/pkg/model"
)

type (
	fakeLedger struct {
		code      string
		submitErr error
		submitted []ledger.SignedTx
	}
	fakeDelegate struct {
		installed bool
		checkErr  error
		code      string
		err       error
		got       []ledger.Tx
	}
	fakeSource struct {
		addr, seed string
		ct         model.ConnectionType
	}
)

func (f *fakeLedger) AccountInfo(ctx context.Context, address string) (*ledger.AccountInfo, error) {
	return &ledger.AccountInfo{Address: address, Sequence: 1}, nil
}

func (f *fakeLedger) Autofill(ctx context.Context, tx *ledger.Tx) error {
	tx.Sequence = 5
	tx.Fee = "12"
	return nil
}

func (f *fakeLedger) SubmitAndWait(ctx context.Context, signed ledger.SignedTx) (*ledger.SubmitResult, error) {
	f.submitted = append(f.submitted, signed)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &ledger.SubmitResult{Hash: signed.Hash, Code: f.code}, nil
}

func (f *fakeLedger) Fund(ctx context.Context, address string, amount decimal.Decimal) error {
	return nil
}

func (d *fakeDelegate) Installed(ctx context.Context) (bool, error) {
	return d.installed, d.checkErr
}

func (d *fakeDelegate) SignAndSubmit(ctx context.Context, tx ledger.Tx) (*Result, error) {
	d.got = append(d.got, tx)
	if d.err != nil {
		return nil, d.err
	}
	return &Result{Hash: "H1", Code: d.code}, nil
}

func (s fakeSource) Address() string                      { return s.addr }
func (s fakeSource) Seed() string                         { return s.seed }
func (s fakeSource) ConnectionType() model.ConnectionType { return s.ct }

// genesis account of every ledger network
const dest = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"

func mustSeed(t *testing.T) string {
	seed, err := GenerateSeed()
	require.NoError(t, err)
	return seed
}

func TestKeys(t *testing.T) {
	seed := mustSeed(t)
	assert.True(t, ValidSeed(seed))
	assert.True(t, strings.HasPrefix(seed, "sEd"), seed)

	a1, err := AddressFromSeed(seed)
	require.NoError(t, err)
	a2, err := AddressFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "derivation must be deterministic")
	assert.True(t, ValidAddress(a1), a1)

	other, err := AddressFromSeed(mustSeed(t))
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)

	// seed as handed out by the testnet faucet
	addr, err := AddressFromSeed("sEdTM1uX8pu2do5XvTnutH6HsouMaM2")
	require.NoError(t, err)
	assert.True(t, ValidAddress(addr), addr)

	for _, bad := range []string{"", "x123", "sNOTASEED!", "sAAAA"} {
		assert.False(t, ValidSeed(bad), bad)
		_, err := AddressFromSeed(bad)
		assert.ErrorIs(t, err, ErrInvalidSeed)
	}
	assert.True(t, ValidAddress(dest))
	for _, bad := range []string{"", "rDest", "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTx"} {
		assert.False(t, ValidAddress(bad), bad)
	}
}

func TestNew(t *testing.T) {
	seed := mustSeed(t)
	addr, _ := AddressFromSeed(seed)
	client := &fakeLedger{}

	_, err := New(nil, client, nil)
	assert.ErrorIs(t, err, errs.ErrNoWalletLoaded)

	_, err = New(fakeSource{}, client, nil)
	assert.ErrorIs(t, err, errs.ErrNoWalletLoaded)

	s, err := New(fakeSource{addr: addr, seed: seed, ct: model.ConnectionImported}, client, nil)
	require.NoError(t, err)
	assert.IsType(t, &DirectSigner{}, s)
	assert.Equal(t, addr, s.Address())

	_, err = New(fakeSource{addr: addr, ct: model.ConnectionCreated}, client, nil)
	assert.ErrorIs(t, err, errs.ErrSignerUnavailable)

	s, err = New(fakeSource{addr: "rExt", ct: model.ConnectionExtension}, client, nil)
	require.NoError(t, err)
	assert.IsType(t, &DelegatedSigner{}, s)
	assert.False(t, Available(t.Context(), s))
}

func TestDirectSigner(t *testing.T) {
	intent := Intent{Destination: dest, Amount: decimal.NewFromInt(1), Type: model.TxTrain}
	tests := []struct {
		name    string
		ledger  *fakeLedger
		intent  Intent
		wantErr error
	}{
		{name: "success", ledger: &fakeLedger{code: ledger.ResultSuccess}, intent: intent},
		{name: "rejected code", ledger: &fakeLedger{code: "tecUNFUNDED_PAYMENT"}, intent: intent, wantErr: errs.ErrTransactionRejected},
		{name: "validation timeout", ledger: &fakeLedger{submitErr: errs.ErrValidationTimeout}, intent: intent, wantErr: errs.ErrValidationTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewDirectSigner(mustSeed(t), tt.ledger)
			require.NoError(t, err)
			assert.True(t, Available(t.Context(), s))
			res, err := s.Authorize(t.Context(), tt.intent)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ledger.ResultSuccess, res.Code)
			require.Len(t, tt.ledger.submitted, 1)
			assert.Equal(t, tt.ledger.submitted[0].Hash, res.Hash)
		})
	}
}

func TestDirectSignerSignature(t *testing.T) {
	l := &fakeLedger{code: ledger.ResultSuccess}
	s, err := NewDirectSigner(mustSeed(t), l)
	require.NoError(t, err)
	_, err = s.Authorize(t.Context(), Intent{Destination: dest, Amount: decimal.RequireFromString("0.5")})
	require.NoError(t, err)

	require.Len(t, l.submitted, 1)
	assert.Len(t, l.submitted[0].Hash, 64)
	tx, err := binarycodec.Decode(l.submitted[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, "Payment", tx["TransactionType"])
	assert.Equal(t, "500000", tx["Amount"])
	assert.Equal(t, s.Address(), tx["Account"])
	assert.Equal(t, dest, tx["Destination"])
	assert.EqualValues(t, 5, tx["Sequence"])
	assert.NotEmpty(t, tx["SigningPubKey"])
	assert.NotEmpty(t, tx["TxnSignature"])
}

func TestDirectSignerInvalidIntent(t *testing.T) {
	s, err := NewDirectSigner(mustSeed(t), &fakeLedger{code: ledger.ResultSuccess})
	require.NoError(t, err)
	_, err = s.Authorize(t.Context(), Intent{Destination: dest, Amount: decimal.Zero})
	assert.Error(t, err)
	_, err = s.Authorize(t.Context(), Intent{Amount: decimal.NewFromInt(1)})
	assert.Error(t, err)
}

func TestDelegatedSigner(t *testing.T) {
	intent := Intent{Destination: "rDest", Amount: decimal.NewFromInt(1)}
	declined := errs.ErrUserRejected
	tests := []struct {
		name     string
		delegate Delegate
		wantErr  error
	}{
		{name: "no delegate", delegate: nil, wantErr: errs.ErrSignerUnavailable},
		{name: "not installed", delegate: &fakeDelegate{}, wantErr: errs.ErrSignerUnavailable},
		{name: "check fails", delegate: &fakeDelegate{checkErr: errors.New("down")}, wantErr: errs.ErrSignerUnavailable},
		{name: "user declined", delegate: &fakeDelegate{installed: true, err: declined}, wantErr: errs.ErrUserRejected},
		{name: "rejected code", delegate: &fakeDelegate{installed: true, code: "tecNO_DST"}, wantErr: errs.ErrTransactionRejected},
		{name: "success", delegate: &fakeDelegate{installed: true, code: ledger.ResultSuccess}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewDelegatedSigner("rExt", tt.delegate)
			res, err := s.Authorize(t.Context(), intent)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "H1", res.Hash)
			d := tt.delegate.(*fakeDelegate)
			require.Len(t, d.got, 1)
			assert.Equal(t, "rExt", d.got[0].Account)
			assert.Equal(t, "1000000", d.got[0].Amount)
		})
	}
}
