// Package wallet holds the client side wallet session and its ledger mirror.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/wallet/journal"
)

type (
	// Entry is a confirmed balance effect. Amount is signed.
	Entry struct {
		OpID        string
		Kind        model.TxKind
		Amount      decimal.Decimal
		Destination string
		Hash        string
	}

	// Journal persists mirror entries.
	Journal interface {
		Append(ctx context.Context, address string, tx model.Transaction) error
		SetBaseline(ctx context.Context, address string, balance decimal.Decimal) error
		Load(ctx context.Context, address string) (*journal.State, error)
	}

	BalanceFunc func(ctx context.Context) (decimal.Decimal, error)

	// Mirror is the locally mirrored balance and transaction list of an
	// address. All updates go through Apply or Resync.
	Mirror struct {
		mu      sync.Mutex
		address string
		balance decimal.Decimal
		txs     []model.Transaction
		applied map[string]struct{}
		version uint64
		journal Journal
		l       *log.Logger
	}
	MirrorOption func(*Mirror)
)

const StatusConfirmed = "confirmed"

var (
	ErrStaleRead = errors.New("balance read is stale")
	ErrNoOpID    = errors.New("entry without operation id")
)

func NewOpID() string {
	return uuid.NewString()
}

func WithJournal(j Journal) MirrorOption {
	return func(m *Mirror) {
		m.journal = j
	}
}

func WithMirrorLogger(l *log.Logger) MirrorOption {
	return func(m *Mirror) {
		m.l = l
	}
}

func NewMirror(address string, opts ...MirrorOption) *Mirror {
	ret := &Mirror{
		address: address,
		balance: decimal.Zero,
		txs:     []model.Transaction{},
		applied: map[string]struct{}{},
		l:       log.Default().Named("wallet.mirror"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// RestoreMirror creates a mirror and replays the journal of address into it.
func RestoreMirror(ctx context.Context, address string, opts ...MirrorOption) (*Mirror, error) {
	m := NewMirror(address, opts...)
	if m.journal == nil {
		return m, nil
	}
	st, err := m.journal.Load(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("restore mirror: %w", err)
	}
	m.balance = st.Balance
	m.txs = st.Transactions
	for _, tx := range st.Transactions {
		m.applied[tx.OpID] = struct{}{}
	}
	m.l.Debug("mirror restored",
		log.String("address", address),
		log.String("balance", m.balance.String()),
		log.Int("transactions", len(m.txs)))
	return m, nil
}

func (m *Mirror) Address() string {
	return m.address
}

func (m *Mirror) Balance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

func (m *Mirror) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Transactions returns the recorded transactions, oldest first.
func (m *Mirror) Transactions() []model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.txs)
}

// Apply records a confirmed entry. Applying an op id a second time is a no-op
// and reports false.
func (m *Mirror) Apply(ctx context.Context, e Entry) (bool, error) {
	if e.OpID == "" {
		return false, ErrNoOpID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.applied[e.OpID]; ok {
		return false, nil
	}
	tx := model.Transaction{
		ID:          uuid.NewString(),
		OpID:        e.OpID,
		Kind:        e.Kind,
		Amount:      e.Amount,
		Destination: e.Destination,
		Status:      StatusConfirmed,
		Hash:        e.Hash,
		Timestamp:   time.Now(),
	}
	if m.journal != nil {
		if err := m.journal.Append(ctx, m.address, tx); err != nil {
			if errors.Is(err, journal.ErrDuplicateOp) {
				m.applied[e.OpID] = struct{}{}
				return false, nil
			}
			return false, err
		}
	}
	m.applied[e.OpID] = struct{}{}
	m.txs = append(m.txs, tx)
	m.balance = m.balance.Add(e.Amount)
	m.version++
	m.l.Debug("entry applied",
		log.String("op", e.OpID),
		log.String("kind", string(e.Kind)),
		log.String("amount", e.Amount.String()),
		log.String("balance", m.balance.String()))
	return true, nil
}

// Resync replaces the mirrored balance with an on-ledger read. The read is
// discarded with ErrStaleRead if any entry was applied while fetching.
func (m *Mirror) Resync(ctx context.Context, fetch BalanceFunc) (decimal.Decimal, error) {
	startVersion := m.Version()
	onLedger, err := fetch(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version != startVersion {
		m.l.Debug("discarding stale balance read",
			log.Uint64("readAt", startVersion), log.Uint64("current", m.version))
		return m.balance, ErrStaleRead
	}
	if !onLedger.Equal(m.balance) {
		m.l.Warn("on-ledger balance differs from game mirror",
			log.String("address", m.address),
			log.String("ledger", onLedger.String()),
			log.String("mirror", m.balance.String()))
	}
	if m.journal != nil {
		if err := m.journal.SetBaseline(ctx, m.address, onLedger); err != nil {
			return m.balance, err
		}
	}
	m.balance = onLedger
	m.version++
	return m.balance, nil
}
