package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/config"
	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/extension"
	"github.com/xrpracing/racegarage/pkg/ledger"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/signer"
)

type (
	// Extension is the delegated signer as seen by the wallet service.
	Extension interface {
		signer.Delegate
		Address(ctx context.Context) (*extension.AccountAddress, error)
		Network(ctx context.Context) (string, error)
	}

	SeedStore interface {
		Save(address, seed string) error
		Load(address string) (string, error)
		Delete(address string) error
	}

	// SessionStore keeps small key/value items between invocations.
	SessionStore interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key, value string) error
	}

	Service struct {
		client    ledger.Client
		ext       Extension
		journal   Journal
		seeds     SeedStore
		store     SessionStore
		econ      config.Economics
		l         *log.Logger
		mu        sync.Mutex
		session   *Session
		listeners []func(*Session)
	}
	ServiceOption func(*Service)
)

const (
	keyAddress    = "wallet.address"
	keyConnection = "wallet.connection"
)

var (
	ErrWrongNetwork   = errors.New("wallet extension is not connected to a test network")
	ErrInvalidAddress = errors.New("invalid destination address")
	ErrInvalidAmount  = errors.New("amount must be positive")
)

func WithExtension(ext Extension) ServiceOption {
	return func(s *Service) {
		s.ext = ext
	}
}

func WithServiceJournal(j Journal) ServiceOption {
	return func(s *Service) {
		s.journal = j
	}
}

func WithSeedStore(st SeedStore) ServiceOption {
	return func(s *Service) {
		s.seeds = st
	}
}

func WithSessionStore(st SessionStore) ServiceOption {
	return func(s *Service) {
		s.store = st
	}
}

func WithEconomics(e config.Economics) ServiceOption {
	return func(s *Service) {
		s.econ = e
	}
}

func WithServiceLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		s.l = l
	}
}

func NewService(client ledger.Client, opts ...ServiceOption) *Service {
	ret := &Service{
		client: client,
		econ:   config.DefaultEconomics(),
		l:      log.Default().Named("wallet"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// OnSessionChange registers fn to be called with the new session (nil on logout).
func (s *Service) OnSessionChange(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Session returns the current session or nil.
func (s *Service) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Signer returns the signer matching the current session.
func (s *Service) Signer() (signer.Signer, error) {
	sess := s.Session()
	if sess == nil {
		return nil, errs.ErrNoWalletLoaded
	}
	var delegate signer.Delegate
	if s.ext != nil {
		delegate = s.ext
	}
	return signer.New(sess, s.client, delegate)
}

// Create generates a new wallet and funds it from the faucet.
func (s *Service) Create(ctx context.Context) (*Session, error) {
	seed, err := signer.GenerateSeed()
	if err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	address, err := signer.AddressFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if err := s.client.Fund(ctx, address, s.econ.InitialFund); err != nil {
		return nil, fmt.Errorf("fund wallet: %w", err)
	}
	m, err := s.restoreMirror(ctx, address)
	if err != nil {
		return nil, err
	}
	if _, err := m.Apply(ctx, Entry{
		OpID:   "funding:" + address,
		Kind:   model.TxFunding,
		Amount: s.econ.InitialFund,
	}); err != nil {
		return nil, err
	}
	s.l.Info("wallet created", log.String("address", address))
	return s.activate(ctx, NewSession(address, seed, model.ConnectionCreated, m))
}

// Import opens the wallet of seed. Unknown accounts are funded first.
func (s *Service) Import(ctx context.Context, seed string) (*Session, error) {
	seed = strings.TrimSpace(seed)
	address, err := signer.AddressFromSeed(seed)
	if err != nil {
		return nil, err
	}
	m, err := s.restoreMirror(ctx, address)
	if err != nil {
		return nil, err
	}
	info, err := s.client.AccountInfo(ctx, address)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		if err := s.client.Fund(ctx, address, s.econ.InitialFund); err != nil {
			return nil, fmt.Errorf("fund wallet: %w", err)
		}
		if _, err := m.Apply(ctx, Entry{
			OpID:   "funding:" + address,
			Kind:   model.TxFunding,
			Amount: s.econ.InitialFund,
		}); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if _, err := m.Resync(ctx, constBalance(info.Balance)); err != nil {
			return nil, err
		}
	}
	s.l.Info("wallet imported", log.String("address", address))
	return s.activate(ctx, NewSession(address, seed, model.ConnectionImported, m))
}

// ConnectExtension connects the delegated signer. Only test networks are accepted.
func (s *Service) ConnectExtension(ctx context.Context) (*Session, error) {
	if s.ext == nil {
		return nil, errs.ErrSignerUnavailable
	}
	installed, err := s.ext.Installed(ctx)
	if err != nil {
		return nil, err
	}
	if !installed {
		return nil, fmt.Errorf("%w: %w", errs.ErrSignerUnavailable, extension.ErrNotInstalled)
	}
	acc, err := s.ext.Address(ctx)
	if err != nil {
		return nil, err
	}
	network, err := s.ext.Network(ctx)
	if err != nil {
		s.l.Warn("could not read extension network, assuming testnet", log.ErrorField(err))
		network = "testnet"
	}
	if !strings.Contains(strings.ToLower(network), "test") {
		return nil, fmt.Errorf("%w (currently on %s)", ErrWrongNetwork, network)
	}
	m, err := s.restoreMirror(ctx, acc.Address)
	if err != nil {
		return nil, err
	}
	balance := decimal.Zero
	info, err := s.client.AccountInfo(ctx, acc.Address)
	switch {
	case err == nil:
		balance = info.Balance
	case !errors.Is(err, ledger.ErrAccountNotFound):
		return nil, err
	}
	if _, err := m.Resync(ctx, constBalance(balance)); err != nil {
		return nil, err
	}
	s.l.Info("extension connected", log.String("address", acc.Address), log.String("network", network))
	return s.activate(ctx, NewSession(acc.Address, "", model.ConnectionExtension, m))
}

// Restore reopens the session remembered by a previous invocation.
// It returns errs.ErrNoWalletLoaded if there is none.
func (s *Service) Restore(ctx context.Context) (*Session, error) {
	if s.store == nil {
		return nil, errs.ErrNoWalletLoaded
	}
	address, err := s.store.Get(ctx, keyAddress)
	if err != nil {
		return nil, err
	}
	if address == "" {
		return nil, errs.ErrNoWalletLoaded
	}
	connStr, err := s.store.Get(ctx, keyConnection)
	if err != nil {
		return nil, err
	}
	conn := model.ConnectionType(connStr)
	seed := ""
	if conn != model.ConnectionExtension && s.seeds != nil {
		if seed, err = s.seeds.Load(address); err != nil {
			s.l.Warn("no seed available for remembered wallet",
				log.String("address", address), log.ErrorField(err))
		}
	}
	m, err := s.restoreMirror(ctx, address)
	if err != nil {
		return nil, err
	}
	sess := NewSession(address, seed, conn, m)
	s.setSession(sess)
	return sess, nil
}

// SendPayment sends a direct payment. The mirror is debited only after the
// ledger confirmed the transaction.
func (s *Service) SendPayment(
	ctx context.Context,
	destination string,
	amount decimal.Decimal,
) (*model.Transaction, error) {
	sess := s.Session()
	if sess == nil {
		return nil, errs.ErrNoWalletLoaded
	}
	if !signer.ValidAddress(destination) {
		return nil, fmt.Errorf("%s: %w", destination, ErrInvalidAddress)
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if sess.Mirror().Balance().LessThan(amount) {
		return nil, errs.ErrInsufficientBalance
	}
	sig, err := s.Signer()
	if err != nil {
		return nil, err
	}
	res, err := sig.Authorize(ctx, signer.Intent{Destination: destination, Amount: amount, Type: model.TxPayment})
	if err != nil {
		return nil, err
	}
	opID := "payment:" + res.Hash
	if _, err := sess.Mirror().Apply(ctx, Entry{
		OpID:        opID,
		Kind:        model.TxPayment,
		Amount:      amount.Neg(),
		Destination: destination,
		Hash:        res.Hash,
	}); err != nil {
		return nil, err
	}
	txs := sess.Mirror().Transactions()
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].OpID == opID {
			return &txs[i], nil
		}
	}
	return nil, fmt.Errorf("payment %s not recorded", res.Hash)
}

// RefreshBalance resyncs the mirror with the on-ledger balance.
func (s *Service) RefreshBalance(ctx context.Context) (decimal.Decimal, error) {
	sess := s.Session()
	if sess == nil {
		return decimal.Zero, errs.ErrNoWalletLoaded
	}
	return sess.Mirror().Resync(ctx, func(ctx context.Context) (decimal.Decimal, error) {
		info, err := s.client.AccountInfo(ctx, sess.Address())
		if err != nil {
			return decimal.Zero, err
		}
		return info.Balance, nil
	})
}

// Logout tears the session down and forgets the remembered wallet.
func (s *Service) Logout(ctx context.Context) error {
	sess := s.Session()
	if sess == nil {
		return nil
	}
	var errList []error
	if s.seeds != nil && sess.Seed() != "" {
		if err := s.seeds.Delete(sess.Address()); err != nil {
			errList = append(errList, err)
		}
	}
	if s.store != nil {
		errList = append(errList,
			s.store.Set(ctx, keyAddress, ""),
			s.store.Set(ctx, keyConnection, ""))
	}
	s.setSession(nil)
	s.l.Info("wallet disconnected", log.String("address", sess.Address()))
	return errors.Join(errList...)
}

func (s *Service) activate(ctx context.Context, sess *Session) (*Session, error) {
	if s.seeds != nil && sess.Seed() != "" {
		if err := s.seeds.Save(sess.Address(), sess.Seed()); err != nil {
			s.l.Warn("could not remember seed", log.ErrorField(err))
		}
	}
	if s.store != nil {
		if err := s.store.Set(ctx, keyAddress, sess.Address()); err != nil {
			return nil, err
		}
		if err := s.store.Set(ctx, keyConnection, string(sess.ConnectionType())); err != nil {
			return nil, err
		}
	}
	s.setSession(sess)
	return sess, nil
}

func (s *Service) setSession(sess *Session) {
	s.mu.Lock()
	s.session = sess
	listeners := append([]func(*Session){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(sess)
	}
}

func (s *Service) restoreMirror(ctx context.Context, address string) (*Mirror, error) {
	var opts []MirrorOption
	if s.journal != nil {
		opts = append(opts, WithJournal(s.journal))
	}
	return RestoreMirror(ctx, address, opts...)
}

func constBalance(b decimal.Decimal) BalanceFunc {
	return func(context.Context) (decimal.Decimal, error) {
		return b, nil
	}
}
