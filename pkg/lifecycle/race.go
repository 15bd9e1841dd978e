package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/gameapi"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/simulation"
	"github.com/xrpracing/racegarage/pkg/wallet"
)

type (
	RaceOptions struct {
		// View bounds the animation. Cancelling it stops frame scheduling
		// but the backend result is still awaited and applied.
		View     context.Context
		OnFrame  simulation.FrameFunc
		Headless bool
	}

	// RaceSummary is the post-race summary. Rank and winner come from the
	// backend outcome. Local is nil when the animation did not finish.
	RaceSummary struct {
		CarID     string             `json:"carId"`
		Backend   model.RaceOutcome  `json:"backend"`
		Local     *model.RaceOutcome `json:"local,omitempty"`
		Divergent bool               `json:"divergent"`
		Message   string             `json:"message,omitempty"`
		Prize     decimal.Decimal    `json:"prize"`
		Balance   decimal.Decimal    `json:"balance"`
		Racers    []simulation.Racer `json:"racers,omitempty"`
	}

	backendRace struct {
		res *gameapi.RaceResult
		st  settlement
		err error
	}
)

// EnterRace runs the local animation while the backend decides the race.
// Economic effects follow the backend result only.
func (c *Controller) EnterRace(ctx context.Context, opts RaceOptions) (*RaceSummary, error) {
	if err := c.begin(StateRacing); err != nil {
		return nil, err
	}
	res, err := c.race(ctx, opts)
	return res, c.finish(StateComplete, err)
}

//nolint:funlen // sequential steps
func (c *Controller) race(ctx context.Context, opts RaceOptions) (*RaceSummary, error) {
	op, err := c.require(ctx, needWallet|needSigner|needCar)
	if err != nil {
		return nil, err
	}
	if err = c.checkBalance(op.session, c.econ.EntryFee); err != nil {
		return nil, err
	}
	racers := simulation.GenerateField(
		simulation.Player{ID: op.carID, Speed: c.playerSpeed(op.carID)},
		c.pool, c.field, c.rng)
	engine, err := simulation.NewEngine(racers, c.simOpts...)
	if err != nil {
		return nil, fmt.Errorf("race field: %w", err)
	}

	done := make(chan backendRace, 1)
	// the backend call and its economic effects outlive a closed view
	bctx := context.WithoutCancel(ctx)
	go func() {
		var br backendRace
		br.res, br.err = c.api.EnterRace(bctx, op.carID, op.player())
		if br.err == nil {
			br.st, br.err = c.settle(bctx, op, br.res.Payment, model.TxRaceEntry)
		}
		done <- br
	}()

	local := c.animate(ctx, engine, opts)
	br := <-done
	if br.err != nil {
		return nil, fmt.Errorf("race %s: %w", op.carID, br.err)
	}

	outcome := br.res.RaceOutcome
	outcome.Source = model.OutcomeBackend
	err = c.debit(bctx, op.session, br.st, opID("race-entry", outcome.RaceID), model.TxRaceEntry, c.econ.EntryFee)
	if err != nil {
		return nil, err
	}
	prize := decimal.Zero
	if outcome.PrizeAwarded {
		prize = c.econ.PrizeAmount
		if err = c.apply(bctx, op.session, wallet.Entry{
			OpID:   opID("race-prize", outcome.RaceID),
			Kind:   model.TxRacePrize,
			Amount: prize,
		}); err != nil {
			return nil, err
		}
	}

	summary := &RaceSummary{
		CarID:   op.carID,
		Backend: outcome,
		Message: br.res.Message,
		Prize:   prize,
		Balance: op.session.Mirror().Balance(),
	}
	if local != nil {
		o := local.Outcome()
		summary.Local = &o
		summary.Racers = local.Racers
		summary.Divergent = o.PlayerWon() != outcome.PrizeAwarded
	}
	if summary.Divergent {
		c.l.Warn("local race result differs from backend",
			log.String("raceId", outcome.RaceID),
			log.Int("localRank", summary.Local.PlayerRank),
			log.Int("backendRank", outcome.PlayerRank),
			log.Bool("prizeAwarded", outcome.PrizeAwarded))
	}
	c.l.Info("race finished",
		log.String("raceId", outcome.RaceID),
		log.Int("rank", outcome.PlayerRank),
		log.Int("participants", outcome.Participants),
		log.Bool("prizeAwarded", outcome.PrizeAwarded))

	c.mu.Lock()
	c.lastRace = summary
	c.mu.Unlock()
	c.emit(Event{Kind: EventSummary, CarID: op.carID, Summary: summary}, false)
	return summary, nil
}

// animate drives the engine until the terminal ranking or until the view
// is closed. A closed view yields no local result.
func (c *Controller) animate(ctx context.Context, e *simulation.Engine, opts RaceOptions) *simulation.Result {
	onFrame := func(f simulation.Frame) {
		if opts.OnFrame != nil {
			opts.OnFrame(f)
		}
		c.emit(Event{Kind: EventFrame, State: StateRacing, Frame: &f}, true)
	}
	if opts.Headless {
		res := e.RunHeadless()
		onFrame(e.Frame())
		return res
	}
	view := opts.View
	if view == nil {
		view = ctx
	}
	res, err := e.Run(view, onFrame)
	if err != nil {
		c.l.Debug("race view closed before finish", log.ErrorField(err))
		return nil
	}
	return res
}

func (c *Controller) playerSpeed(carID string) *float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.speeds[carID]
	if !ok || r.Speed <= 0 {
		return nil
	}
	v := simulation.SpeedFromReading(r.Speed, c.field)
	return &v
}

// RefreshLatestRace loads the most recent backend race of the wallet.
// A wallet without races yields nil without error.
func (c *Controller) RefreshLatestRace(ctx context.Context) (*RaceSummary, error) {
	if err := c.begin(""); err != nil {
		return nil, err
	}
	defer c.release()
	session := c.wallet.Session()
	if session == nil {
		return nil, nil
	}
	res, err := c.api.LatestRace(ctx, session.Address())
	if err != nil {
		c.l.Debug("could not load latest race", log.ErrorField(err))
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	summary := &RaceSummary{
		CarID:   res.CarID,
		Backend: res.RaceOutcome,
		Message: res.Message,
		Balance: session.Mirror().Balance(),
	}
	if res.PrizeAwarded {
		summary.Prize = c.econ.PrizeAmount
	}
	c.mu.Lock()
	c.lastRace = summary
	c.mu.Unlock()
	c.emit(Event{Kind: EventSummary, CarID: res.CarID, Summary: summary}, false)
	return summary, nil
}
