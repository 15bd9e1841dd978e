// Package lifecycle coordinates training, speed tests, races and garage
// operations of the selected car. Economic effects are taken from the backend
// only and applied to the wallet mirror after confirmation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/config"
	"github.com/xrpracing/racegarage/pkg/errs"
	"github.com/xrpracing/racegarage/pkg/gameapi"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/signer"
	"github.com/xrpracing/racegarage/pkg/simulation"
	"github.com/xrpracing/racegarage/pkg/utils/broadcast"
	"github.com/xrpracing/racegarage/pkg/utils/loadercache"
	"github.com/xrpracing/racegarage/pkg/wallet"
)

type (
	State string

	// GameAPI is the part of the game backend the controller uses.
	GameAPI interface {
		CreateCar(ctx context.Context, p gameapi.Player) (*gameapi.CreateCarResult, error)
		Garage(ctx context.Context, address string) ([]model.Car, error)
		Train(ctx context.Context, req gameapi.TrainRequest) (*gameapi.TrainResult, error)
		TestSpeed(ctx context.Context, carID, address string) (*model.SpeedReading, error)
		EnterRace(ctx context.Context, carID string, p gameapi.Player) (*gameapi.RaceResult, error)
		SellCar(ctx context.Context, carID, address string) (*gameapi.SellResult, error)
		LatestRace(ctx context.Context, address string) (*gameapi.RaceResult, error)
	}

	Wallet interface {
		Session() *wallet.Session
		Signer() (signer.Signer, error)
	}

	// Snapshot is a consistent copy of the controller state.
	Snapshot struct {
		State         State
		LastError     string
		SelectedCar   string
		TrainingCount int
		LastSpeedTest *model.SpeedReading
		LastRace      *RaceSummary
	}

	Controller struct {
		api       GameAPI
		wallet    Wallet
		econ      config.Economics
		field     config.Field
		pool      []config.Opponent
		store     wallet.SessionStore
		simOpts   []simulation.Option
		rng       *rand.Rand
		garage    loadercache.Cache[string, []model.Car]
		events    chan Event
		bc        broadcast.BroadcastServer[Event]
		emitMu    sync.RWMutex
		closed    bool
		l         *log.Logger
		mu        sync.Mutex
		inFlight  bool
		state     State
		lastErr   string
		selected  string
		selectFor string // address the selection belongs to
		training  int
		speeds    map[string]*model.SpeedReading
		lastSpeed *model.SpeedReading
		lastRace  *RaceSummary
	}
	Option func(*Controller)
)

const (
	StateIdle     State = "idle"
	StateTraining State = "training"
	StateTesting  State = "testing"
	StateRacing   State = "racing"
	StateComplete State = "complete"
	StateError    State = "error"
)

var ErrUnknownCar = errors.New("car is not in the garage")

func WithEconomics(e config.Economics) Option {
	return func(c *Controller) {
		c.econ = e
	}
}

func WithField(f config.Field) Option {
	return func(c *Controller) {
		c.field = f
	}
}

func WithOpponents(pool []config.Opponent) Option {
	return func(c *Controller) {
		c.pool = pool
	}
}

// WithSelectionStore remembers the selected car between invocations.
func WithSelectionStore(s wallet.SessionStore) Option {
	return func(c *Controller) {
		c.store = s
	}
}

func WithSimulationOptions(opts ...simulation.Option) Option {
	return func(c *Controller) {
		c.simOpts = append(c.simOpts, opts...)
	}
}

func WithRand(r *rand.Rand) Option {
	return func(c *Controller) {
		c.rng = r
	}
}

func WithGarageExpiration(d time.Duration) Option {
	return func(c *Controller) {
		c.garage = c.newGarageCache(d)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.l = l
	}
}

func NewController(api GameAPI, w Wallet, opts ...Option) *Controller {
	ret := &Controller{
		api:    api,
		wallet: w,
		econ:   config.DefaultEconomics(),
		field:  config.DefaultField(),
		pool:   config.DefaultOpponents(),
		state:  StateIdle,
		speeds: map[string]*model.SpeedReading{},
		events: make(chan Event),
		l:      log.Default().Named("lifecycle"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.garage == nil {
		ret.garage = ret.newGarageCache(time.Minute)
	}
	if ret.rng == nil {
		ret.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	ret.bc = broadcast.NewBroadcastServer("events", "lifecycle", ret.events)
	return ret
}

func (c *Controller) newGarageCache(expiration time.Duration) loadercache.Cache[string, []model.Car] {
	return loadercache.New(
		loadercache.WithExpiration[string, []model.Car](expiration),
		loadercache.WithLoader[string, []model.Car](
			func(ctx context.Context, address string) (*[]model.Car, error) {
				cars, err := c.api.Garage(ctx, address)
				if err != nil {
					return nil, err
				}
				return &cars, nil
			}),
	)
}

// Subscribe returns a channel receiving all controller events.
func (c *Controller) Subscribe() <-chan Event {
	return c.bc.Subscribe()
}

func (c *Controller) Unsubscribe(ch <-chan Event) {
	c.bc.CancelSubscription(ch)
}

// Close stops event delivery. Subscriber channels are closed.
func (c *Controller) Close() {
	c.emitMu.Lock()
	if c.closed {
		c.emitMu.Unlock()
		return
	}
	c.closed = true
	close(c.events)
	c.emitMu.Unlock()
	<-c.bc.Done()
}

func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:         c.state,
		LastError:     c.lastErr,
		SelectedCar:   c.selected,
		TrainingCount: c.training,
		LastSpeedTest: c.lastSpeed,
		LastRace:      c.lastRace,
	}
}

// SpeedOf returns the last speed reading of carID.
func (c *Controller) SpeedOf(carID string) *model.SpeedReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speeds[carID]
}

// begin claims the single operation slot. A claim while another operation
// is in flight fails with errs.ErrBusy and changes nothing.
func (c *Controller) begin(next State) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return errs.ErrBusy
	}
	c.inFlight = true
	if next != "" {
		c.state = next
		c.lastErr = ""
	}
	c.mu.Unlock()
	if next != "" {
		c.emit(Event{Kind: EventState, State: next}, false)
	}
	return nil
}

// finish releases the operation slot. A nil error moves to next, any error
// moves to the error state keeping selection and last results.
func (c *Controller) finish(next State, err error) error {
	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.state = StateError
		c.lastErr = errs.Message(err)
	} else if next != "" {
		c.state = next
		c.lastErr = ""
	}
	st, msg := c.state, c.lastErr
	c.mu.Unlock()
	if err != nil {
		c.l.Warn("operation failed", log.String("message", msg), log.ErrorField(err))
		c.emit(Event{Kind: EventState, State: st, Err: msg}, false)
		return err
	}
	if next != "" {
		c.emit(Event{Kind: EventState, State: st}, false)
	}
	return nil
}

// release frees the operation slot without touching the state.
func (c *Controller) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

type precondition int

const (
	needWallet precondition = 1 << iota
	needSigner
	needCar
)

type (
	opContext struct {
		session *wallet.Session
		signer  signer.Signer
		carID   string
	}

	// settlement is the payment outcome of a fee-bearing operation.
	settlement struct {
		confirmed   bool
		hash        string
		destination string
	}
)

func (o *opContext) player() gameapi.Player {
	return gameapi.Player{Address: o.session.Address(), Seed: o.session.Seed()}
}

// require checks the preconditions of an operation in the order the user has
// to fix them: wallet first, then signing, then car selection.
func (c *Controller) require(ctx context.Context, what precondition) (*opContext, error) {
	ret := &opContext{}
	if what&needWallet != 0 {
		ret.session = c.wallet.Session()
		if ret.session == nil {
			return nil, errs.ErrNoWalletLoaded
		}
	}
	if what&needSigner != 0 {
		s, err := c.wallet.Signer()
		if err != nil {
			return nil, err
		}
		if !signer.Available(ctx, s) {
			return nil, errs.ErrSignerUnavailable
		}
		ret.signer = s
	}
	if what&needCar != 0 {
		ret.carID = c.selectedCar(ctx, ret.session.Address())
		if ret.carID == "" {
			return nil, errs.ErrNoCarSelected
		}
	}
	return ret, nil
}

func (c *Controller) checkBalance(session *wallet.Session, fee decimal.Decimal) error {
	if session.Mirror().Balance().LessThan(fee) {
		return fmt.Errorf("need %s XRP: %w", fee, errs.ErrInsufficientBalance)
	}
	return nil
}

// authorize routes a payment descriptor through the signer. The returned
// hash is empty when no descriptor was given.
func (c *Controller) authorize(
	ctx context.Context,
	s signer.Signer,
	p *gameapi.PaymentDescriptor,
	kind model.TxKind,
) (string, error) {
	if p == nil {
		return "", nil
	}
	if s == nil {
		return "", errs.ErrSignerUnavailable
	}
	amount, err := p.AmountXRP()
	if err != nil {
		return "", fmt.Errorf("payment amount %q: %w", p.Amount, err)
	}
	res, err := s.Authorize(ctx, signer.Intent{Destination: p.Destination, Amount: amount, Type: kind})
	if err != nil {
		return "", err
	}
	return res.Hash, nil
}

// settle confirms the payment of a fee-bearing operation. A descriptor is
// routed through the signer. Without one the fee counts as paid only if the
// backend was given the seed of a self-custodied wallet and settled it
// itself.
func (c *Controller) settle(
	ctx context.Context,
	op *opContext,
	p *gameapi.PaymentDescriptor,
	kind model.TxKind,
) (settlement, error) {
	if p == nil {
		return settlement{confirmed: op.session.Seed() != ""}, nil
	}
	hash, err := c.authorize(ctx, op.signer, p, kind)
	if err != nil {
		return settlement{}, err
	}
	return settlement{confirmed: true, hash: hash, destination: p.Destination}, nil
}

// debit records fee for a confirmed settlement. Unconfirmed fees leave the
// mirror untouched.
func (c *Controller) debit(
	ctx context.Context,
	session *wallet.Session,
	st settlement,
	opID string,
	kind model.TxKind,
	fee decimal.Decimal,
) error {
	if !st.confirmed {
		c.l.Warn("no confirmed payment, fee not recorded",
			log.String("kind", string(kind)), log.String("opId", opID))
		return nil
	}
	return c.apply(ctx, session, wallet.Entry{
		OpID:        opID,
		Kind:        kind,
		Amount:      fee.Neg(),
		Destination: st.destination,
		Hash:        st.hash,
	})
}

func (c *Controller) apply(ctx context.Context, session *wallet.Session, e wallet.Entry) error {
	if _, err := session.Mirror().Apply(ctx, e); err != nil {
		return fmt.Errorf("record %s: %w", e.Kind, err)
	}
	c.emit(Event{Kind: EventBalance, Balance: session.Mirror().Balance().String()}, false)
	return nil
}

func (c *Controller) emit(ev Event, droppable bool) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.closed {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if droppable {
		select {
		case c.events <- ev:
		default:
		}
		return
	}
	c.events <- ev
}
