//nolint:thelper,funlen // ok for tests
package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrpracing/racegarage/pkg/model"
)

func newStore(t *testing.T) *Store {
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(op string, kind model.TxKind, amount string) model.Transaction {
	return model.Transaction{
		OpID:      op,
		Kind:      kind,
		Amount:    decimal.RequireFromString(amount),
		Status:    "confirmed",
		Timestamp: time.Now(),
	}
}

func TestAppendAndLoad(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()
	require.NoError(t, s.Append(ctx, "rA", entry("op1", model.TxFunding, "10")))
	require.NoError(t, s.Append(ctx, "rA", entry("op2", model.TxTrain, "-1")))
	require.NoError(t, s.Append(ctx, "rB", entry("op1", model.TxFunding, "10")))

	err := s.Append(ctx, "rA", entry("op2", model.TxTrain, "-1"))
	assert.ErrorIs(t, err, ErrDuplicateOp)

	st, err := s.Load(ctx, "rA")
	require.NoError(t, err)
	assert.True(t, st.Balance.Equal(decimal.NewFromInt(9)), st.Balance.String())
	require.Len(t, st.Transactions, 2)
	assert.Equal(t, "op1", st.Transactions[0].OpID)
	assert.Equal(t, model.TxTrain, st.Transactions[1].Kind)
	assert.NotEmpty(t, st.Transactions[1].ID)
}

func TestBaseline(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()
	require.NoError(t, s.Append(ctx, "rA", entry("op1", model.TxFunding, "10")))
	require.NoError(t, s.Append(ctx, "rA", entry("op2", model.TxRaceEntry, "-1")))
	require.NoError(t, s.SetBaseline(ctx, "rA", decimal.RequireFromString("8.99")))
	require.NoError(t, s.Append(ctx, "rA", entry("op3", model.TxRacePrize, "100")))

	st, err := s.Load(ctx, "rA")
	require.NoError(t, err)
	assert.True(t, st.Balance.Equal(decimal.RequireFromString("108.99")), st.Balance.String())
	assert.Len(t, st.Transactions, 3)
}

func TestLoadUnknown(t *testing.T) {
	st, err := newStore(t).Load(t.Context(), "rNobody")
	require.NoError(t, err)
	assert.True(t, st.Balance.IsZero())
	assert.Empty(t, st.Transactions)
}

func TestForget(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()
	require.NoError(t, s.Append(ctx, "rA", entry("op1", model.TxFunding, "10")))
	require.NoError(t, s.Forget(ctx, "rA"))
	st, err := s.Load(ctx, "rA")
	require.NoError(t, err)
	assert.Empty(t, st.Transactions)
}

func TestSession(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()
	v, err := s.Get(ctx, "selected_car")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Set(ctx, "selected_car", "CAR-1"))
	require.NoError(t, s.Set(ctx, "selected_car", "CAR-2"))
	v, err = s.Get(ctx, "selected_car")
	require.NoError(t, err)
	assert.Equal(t, "CAR-2", v)

	require.NoError(t, s.Set(ctx, "selected_car", ""))
	v, err = s.Get(ctx, "selected_car")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(t.Context(), "rA", entry("op1", model.TxFunding, "10")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	st, err := s.Load(t.Context(), "rA")
	require.NoError(t, err)
	assert.True(t, st.Balance.Equal(decimal.NewFromInt(10)))
}
