//nolint:thelper // ok for tests
package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrpracing/racegarage/pkg/lifecycle"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/simulation"
)

func TestPresenterCountdown(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf)
	for _, c := range []int{3, 3, 2, 1} {
		p.Frame(simulation.Frame{Phase: simulation.PhaseCountdown, Countdown: c})
	}
	p.Frame(simulation.Frame{Phase: simulation.PhaseRunning, Racers: []simulation.Racer{
		{ID: "CAR-1", Name: "You", IsPlayer: true, Progress: 90},
	}})
	out := buf.String()
	assert.Contains(t, out, "3...\n2...\n1...\nGO!\n")
	assert.Contains(t, out, "* You")
	assert.Contains(t, out, "|"+string(bytes.Repeat([]byte("="), barWidth/2)))
}

func TestPresenterSummary(t *testing.T) {
	tests := []struct {
		name    string
		summary lifecycle.RaceSummary
		want    []string
		notWant []string
	}{
		{
			name: "prize",
			summary: lifecycle.RaceSummary{
				Backend: model.RaceOutcome{RaceID: "R1", PlayerRank: 1, Participants: 5, WinnerID: "CAR-1", PrizeAwarded: true},
				Prize:   decimal.NewFromInt(100),
				Balance: decimal.NewFromInt(109),
			},
			want:    []string{"rank 1 of 5", "prize awarded: 100 XRP", "balance: 109 XRP"},
			notWant: []string{"animation"},
		},
		{
			name: "divergent",
			summary: lifecycle.RaceSummary{
				Backend:   model.RaceOutcome{RaceID: "R2", PlayerRank: 2, Participants: 5, WinnerID: "CAR-9"},
				Local:     &model.RaceOutcome{PlayerRank: 1},
				Divergent: true,
				Balance:   decimal.NewFromInt(9),
			},
			want:    []string{"rank 2 of 5", "the animation showed rank 1"},
			notWant: []string{"prize awarded"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPresenter(&buf).Summary(&tt.summary)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestHandlePrintsOnlySideNotes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf)
	p.Handle(lifecycle.Event{Kind: lifecycle.EventSummary, Summary: &lifecycle.RaceSummary{
		Backend: model.RaceOutcome{RaceID: "R1", PlayerRank: 1, Participants: 5},
	}})
	p.Handle(lifecycle.Event{Kind: lifecycle.EventSpeedTest, SpeedTest: &model.SpeedReading{CarID: "CAR-1", Speed: 250}})
	assert.Empty(t, buf.String(), "results are printed from return values")

	p.Handle(lifecycle.Event{Kind: lifecycle.EventSelection, CarID: "CAR-2"})
	assert.Equal(t, "selected car CAR-2\n", buf.String())

	buf.Reset()
	p.SpeedTest(&model.SpeedReading{CarID: "CAR-1", Speed: 250, Improved: true})
	assert.Contains(t, buf.String(), "car CAR-1: 250.0 km/h (improved)")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err := expandHome("~/.rgc/journal.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".rgc/journal.db"), got)

	got, err = expandHome("/tmp/j.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/j.db", got)
}
