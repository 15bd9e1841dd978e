//nolint:thelper,funlen // ok for tests
package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/wallet/journal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyIsIdempotent(t *testing.T) {
	m := NewMirror("rA")
	ctx := t.Context()
	ok, err := m.Apply(ctx, Entry{OpID: "f", Kind: model.TxFunding, Amount: dec("10")})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Apply(ctx, Entry{OpID: "t", Kind: model.TxTrain, Amount: dec("-1")})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Apply(ctx, Entry{OpID: "t", Kind: model.TxTrain, Amount: dec("-1")})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, m.Balance().Equal(dec("9")))
	assert.Equal(t, uint64(2), m.Version())
	txs := m.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, model.TxFunding, txs[0].Kind)
	assert.Equal(t, StatusConfirmed, txs[1].Status)

	_, err = m.Apply(ctx, Entry{Kind: model.TxTrain, Amount: dec("-1")})
	assert.ErrorIs(t, err, ErrNoOpID)
}

func TestConcurrentApply(t *testing.T) {
	m := NewMirror("rA")
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// every op id is applied twice
			op := []string{"a", "b", "c", "d", "e"}[i%5]
			_, _ = m.Apply(context.Background(), Entry{OpID: op, Kind: model.TxRacePrize, Amount: dec("1")})
		}()
	}
	wg.Wait()
	assert.True(t, m.Balance().Equal(dec("5")))
	assert.Len(t, m.Transactions(), 5)
}

func TestResync(t *testing.T) {
	m := NewMirror("rA")
	ctx := t.Context()
	_, _ = m.Apply(ctx, Entry{OpID: "f", Kind: model.TxFunding, Amount: dec("10")})

	bal, err := m.Resync(ctx, constBalance(dec("9.99")))
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("9.99")))
	assert.True(t, m.Balance().Equal(dec("9.99")))
}

func TestResyncDiscardsStaleRead(t *testing.T) {
	m := NewMirror("rA")
	ctx := t.Context()
	_, _ = m.Apply(ctx, Entry{OpID: "f", Kind: model.TxFunding, Amount: dec("10")})

	// a debit is confirmed while the balance read is in flight
	_, err := m.Resync(ctx, func(ctx context.Context) (decimal.Decimal, error) {
		_, err := m.Apply(ctx, Entry{OpID: "e", Kind: model.TxRaceEntry, Amount: dec("-1")})
		require.NoError(t, err)
		return dec("10"), nil
	})
	assert.ErrorIs(t, err, ErrStaleRead)
	assert.True(t, m.Balance().Equal(dec("9")), "stale read must not overwrite the debit")
}

func TestRestoreMirror(t *testing.T) {
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	defer j.Close()
	ctx := t.Context()

	m, err := RestoreMirror(ctx, "rA", WithJournal(j))
	require.NoError(t, err)
	_, _ = m.Apply(ctx, Entry{OpID: "f", Kind: model.TxFunding, Amount: dec("10")})
	_, _ = m.Apply(ctx, Entry{OpID: "c", Kind: model.TxCreateCar, Amount: dec("-1")})
	_, err = m.Resync(ctx, constBalance(dec("8.5")))
	require.NoError(t, err)
	_, _ = m.Apply(ctx, Entry{OpID: "s", Kind: model.TxSellRefund, Amount: dec("0.5")})

	restored, err := RestoreMirror(ctx, "rA", WithJournal(j))
	require.NoError(t, err)
	assert.True(t, restored.Balance().Equal(dec("9")), restored.Balance().String())
	assert.Len(t, restored.Transactions(), 3)

	ok, err := restored.Apply(ctx, Entry{OpID: "c", Kind: model.TxCreateCar, Amount: dec("-1")})
	require.NoError(t, err)
	assert.False(t, ok, "journaled op ids stay applied")
}
