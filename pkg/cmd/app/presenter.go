package app

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/xrpracing/racegarage/pkg/lifecycle"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/simulation"
)

const barWidth = 30

// Presenter renders lifecycle events and simulation frames as text.
type Presenter struct {
	mu            sync.Mutex
	w             io.Writer
	lastCountdown int
	lastDraw      time.Time
	drawEvery     time.Duration
	trackLength   float64
}

func NewPresenter(w io.Writer) *Presenter {
	return &Presenter{
		w:           w,
		drawEvery:   250 * time.Millisecond,
		trackLength: simulation.DefaultTrackLength,
	}
}

// Present subscribes a presenter to the controller events. Rendering stops
// when the app is closed.
func (a *App) Present(w io.Writer) *Presenter {
	p := NewPresenter(w)
	events := a.Controller.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			p.Handle(ev)
		}
	}()
	a.closers = append(a.closers, func() {
		a.Controller.Close()
		<-done
	})
	return p
}

// Handle renders side notes of an operation. Results are printed from the
// return values of the controller since slow subscribers may miss events.
func (p *Presenter) Handle(ev lifecycle.Event) {
	switch ev.Kind {
	case lifecycle.EventSelection:
		if ev.CarID != "" {
			p.printf("selected car %s\n", ev.CarID)
		}
	case lifecycle.EventState, lifecycle.EventFrame, lifecycle.EventGarage, lifecycle.EventBalance,
		lifecycle.EventSpeedTest, lifecycle.EventSummary:
	}
}

// Frame renders the countdown and a throttled progress view.
func (p *Presenter) Frame(f simulation.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch f.Phase {
	case simulation.PhaseCountdown:
		if f.Countdown != p.lastCountdown {
			p.lastCountdown = f.Countdown
			fmt.Fprintf(p.w, "%d...\n", f.Countdown)
		}
	case simulation.PhaseRunning:
		if p.lastCountdown != 0 {
			p.lastCountdown = 0
			fmt.Fprintln(p.w, "GO!")
		}
		if time.Since(p.lastDraw) < p.drawEvery {
			return
		}
		p.lastDraw = time.Now()
		p.drawRacers(f)
	case simulation.PhaseFinished:
		p.drawRacers(f)
	}
}

func (p *Presenter) drawRacers(f simulation.Frame) {
	fmt.Fprintf(p.w, "t=%5.2fs\n", f.Elapsed)
	for _, r := range f.Racers {
		filled := int(min(r.Progress/p.trackLength, 1) * barWidth)
		marker := lo.Ternary(r.IsPlayer, "*", " ")
		fmt.Fprintf(p.w, "%s %-14s |%s%s|\n", marker, r.Name,
			strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled))
	}
}

func (p *Presenter) SpeedTest(r *model.SpeedReading) {
	if r == nil {
		return
	}
	p.printf("car %s: %.1f km/h%s\n", r.CarID, r.Speed, lo.Ternary(r.Improved, " (improved)", ""))
	if r.Message != "" {
		p.printf("%s\n", r.Message)
	}
}

// Summary prints the backend result. The local animation result is only
// shown when it differs.
func (p *Presenter) Summary(s *lifecycle.RaceSummary) {
	if s == nil {
		return
	}
	b := s.Backend
	p.printf("race %s: rank %d of %d, winner %s\n", b.RaceID, b.PlayerRank, b.Participants, b.WinnerID)
	if b.PrizeAwarded {
		p.printf("prize awarded: %s XRP\n", s.Prize)
	}
	if s.Divergent && s.Local != nil {
		p.printf("note: the animation showed rank %d, the backend result counts\n", s.Local.PlayerRank)
	}
	if s.Message != "" {
		p.printf("%s\n", s.Message)
	}
	p.printf("balance: %s XRP\n", s.Balance)
}

func (p *Presenter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}
