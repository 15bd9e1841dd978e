// Package simulation runs the local race animation. It never talks to the
// backend; its ranking only drives what the user sees.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/xrpracing/racegarage/log"
	"github.com/xrpracing/racegarage/pkg/model"
)

type (
	Racer struct {
		ID         string  `json:"id"`
		Name       string  `json:"name"`
		Color      uint32  `json:"color"`
		Speed      float64 `json:"speed"`
		IsPlayer   bool    `json:"isPlayer"`
		Progress   float64 `json:"progress"`
		Finished   bool    `json:"finished"`
		FinishTime float64 `json:"finishTime"` // simulated seconds
		Rank       int     `json:"rank"`
	}

	Phase int

	Frame struct {
		Phase     Phase
		Countdown int     // remaining countdown ticks
		Elapsed   float64 // simulated seconds since start
		Racers    []Racer // snapshot in grid order
	}

	FrameFunc func(Frame)

	// Result is the terminal ranking. Racers are ordered by rank.
	Result struct {
		Racers  []Racer
		Elapsed float64
	}

	Engine struct {
		racers        []Racer
		phase         Phase
		countdown     int
		elapsed       float64
		forced        map[string]int // racer id -> order of forced finish
		trackLength   float64
		speedFactor   float64
		maxDuration   float64
		frameInterval time.Duration
		tick          time.Duration
		l             *log.Logger
	}
	Option func(*Engine)
)

const (
	PhaseCountdown Phase = iota
	PhaseRunning
	PhaseFinished
)

const (
	DefaultTrackLength   = 180.0
	DefaultSpeedFactor   = 12.0
	DefaultMaxDuration   = 30 * time.Second
	DefaultFrameInterval = time.Second / 60
	DefaultCountdown     = 3
	DefaultCountdownTick = time.Second
)

var (
	ErrNoRacers      = errors.New("race without racers")
	ErrPlayerCount   = errors.New("race needs exactly one player")
	ErrDuplicateID   = errors.New("duplicate racer id")
	ErrNotTerminated = errors.New("race has not finished")
)

func (p Phase) String() string {
	switch p {
	case PhaseCountdown:
		return "countdown"
	case PhaseRunning:
		return "running"
	case PhaseFinished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func WithTrackLength(l float64) Option {
	return func(e *Engine) {
		e.trackLength = l
	}
}

func WithSpeedFactor(k float64) Option {
	return func(e *Engine) {
		e.speedFactor = k
	}
}

func WithMaxDuration(d time.Duration) Option {
	return func(e *Engine) {
		e.maxDuration = d.Seconds()
	}
}

func WithFrameInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.frameInterval = d
	}
}

// WithCountdown sets the number of countdown ticks and their interval.
func WithCountdown(ticks int, interval time.Duration) Option {
	return func(e *Engine) {
		e.countdown = ticks
		e.tick = interval
	}
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// NewEngine validates the field and prepares a race in countdown phase.
// The order of racers is kept as grid order.
func NewEngine(racers []Racer, opts ...Option) (*Engine, error) {
	if len(racers) == 0 {
		return nil, ErrNoRacers
	}
	if lo.CountBy(racers, func(r Racer) bool { return r.IsPlayer }) != 1 {
		return nil, ErrPlayerCount
	}
	if dups := lo.FindDuplicatesBy(racers, func(r Racer) string { return r.ID }); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, dups[0].ID)
	}
	ret := &Engine{
		racers: lo.Map(racers, func(r Racer, _ int) Racer {
			return Racer{ID: r.ID, Name: r.Name, Color: r.Color, Speed: r.Speed, IsPlayer: r.IsPlayer}
		}),
		phase:         PhaseCountdown,
		countdown:     DefaultCountdown,
		forced:        map[string]int{},
		trackLength:   DefaultTrackLength,
		speedFactor:   DefaultSpeedFactor,
		maxDuration:   DefaultMaxDuration.Seconds(),
		frameInterval: DefaultFrameInterval,
		tick:          DefaultCountdownTick,
		l:             log.Default().Named("simulation"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.countdown <= 0 {
		ret.phase = PhaseRunning
	}
	return ret, nil
}

func (e *Engine) Phase() Phase {
	return e.phase
}

func (e *Engine) Frame() Frame {
	return Frame{
		Phase:     e.phase,
		Countdown: e.countdown,
		Elapsed:   e.elapsed,
		Racers:    slices.Clone(e.racers),
	}
}

// Run drives the race in real time: countdown ticks first, then one step per
// frame interval. Cancelling ctx stops scheduling frames and returns ctx.Err().
func (e *Engine) Run(ctx context.Context, fn FrameFunc) (*Result, error) {
	emit := func() {
		if fn != nil {
			fn(e.Frame())
		}
	}
	for e.phase == PhaseCountdown {
		emit()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.tick):
		}
		e.countdownTick()
	}
	emit()

	ticker := time.NewTicker(e.frameInterval)
	defer ticker.Stop()
	for e.phase != PhaseFinished {
		select {
		case <-ctx.Done():
			e.l.Debug("race view closed", log.Float("elapsed", e.elapsed))
			return nil, ctx.Err()
		case <-ticker.C:
		}
		e.Step(e.frameInterval)
		emit()
	}
	return e.Result()
}

// RunHeadless steps the same state machine without waiting.
func (e *Engine) RunHeadless() *Result {
	for e.phase == PhaseCountdown {
		e.countdownTick()
	}
	for e.phase != PhaseFinished {
		e.Step(e.frameInterval)
	}
	res, _ := e.Result()
	return res
}

func (e *Engine) countdownTick() {
	e.countdown--
	if e.countdown <= 0 {
		e.countdown = 0
		e.phase = PhaseRunning
	}
}

// Step advances the running race by dt of simulated time.
// Finished racers keep their state.
func (e *Engine) Step(dt time.Duration) {
	if e.phase != PhaseRunning {
		return
	}
	e.elapsed += dt.Seconds()
	for i := range e.racers {
		r := &e.racers[i]
		if r.Finished || r.Speed <= 0 {
			continue
		}
		dist := r.Speed * e.elapsed * e.speedFactor
		if dist < e.trackLength {
			r.Progress = dist
			continue
		}
		r.Progress = e.trackLength
		// a crossing after the bound is left to forceFinish
		if ft := e.trackLength / (r.Speed * e.speedFactor); ft <= e.maxDuration {
			r.Finished = true
			r.FinishTime = ft
		}
	}
	if e.elapsed >= e.maxDuration {
		e.forceFinish()
	}
	if lo.EveryBy(e.racers, func(r Racer) bool { return r.Finished }) {
		e.finish()
	}
}

// forceFinish ends the race for everyone still on track, faster racers first.
func (e *Engine) forceFinish() {
	pending := lo.Filter(e.racers, func(r Racer, _ int) bool { return !r.Finished })
	slices.SortStableFunc(pending, func(a, b Racer) int {
		switch {
		case a.Speed > b.Speed:
			return -1
		case a.Speed < b.Speed:
			return 1
		default:
			return 0
		}
	})
	for i, p := range pending {
		e.forced[p.ID] = i
	}
	for i := range e.racers {
		r := &e.racers[i]
		if !r.Finished {
			r.Finished = true
			r.FinishTime = e.maxDuration
		}
	}
	if len(pending) > 0 {
		e.l.Debug("race hit max duration",
			log.Int("forced", len(pending)), log.Float("maxDuration", e.maxDuration))
	}
}

func (e *Engine) finish() {
	order := make([]int, len(e.racers))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		ra, rb := e.racers[a], e.racers[b]
		if ra.FinishTime != rb.FinishTime {
			if ra.FinishTime < rb.FinishTime {
				return -1
			}
			return 1
		}
		fa, forcedA := e.forced[ra.ID]
		fb, forcedB := e.forced[rb.ID]
		switch {
		case forcedA && forcedB:
			return fa - fb
		case forcedA:
			return 1
		case forcedB:
			return -1
		default:
			return 0 // grid order
		}
	})
	for rank, idx := range order {
		e.racers[idx].Rank = rank + 1
	}
	e.phase = PhaseFinished
}

// Result returns the terminal ranking.
func (e *Engine) Result() (*Result, error) {
	if e.phase != PhaseFinished {
		return nil, ErrNotTerminated
	}
	racers := slices.Clone(e.racers)
	slices.SortFunc(racers, func(a, b Racer) int { return a.Rank - b.Rank })
	return &Result{Racers: racers, Elapsed: e.elapsed}, nil
}

// Ranking returns the racer ids in finishing order.
func (r *Result) Ranking() []string {
	return lo.Map(r.Racers, func(x Racer, _ int) string { return x.ID })
}

func (r *Result) Player() (Racer, bool) {
	return lo.Find(r.Racers, func(x Racer) bool { return x.IsPlayer })
}

// Outcome converts the result into a local race outcome.
// A local outcome never awards prizes.
func (r *Result) Outcome() model.RaceOutcome {
	ret := model.RaceOutcome{
		Source:       model.OutcomeLocal,
		Ranking:      r.Ranking(),
		Participants: len(r.Racers),
	}
	if len(r.Racers) > 0 {
		ret.WinnerID = r.Racers[0].ID
		ret.WinnerName = r.Racers[0].Name
	}
	if p, ok := r.Player(); ok {
		ret.PlayerRank = p.Rank
	}
	return ret
}
