//nolint:thelper,funlen // ok for tests
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrpracing/racegarage/pkg/lifecycle"
	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/simulation"
)

type (
	msg struct {
		subject string
		data    []byte
	}
	fakeConn struct {
		mu      sync.Mutex
		msgs    []msg
		err     error
		flushed int
	}
)

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg{subj, data})
	return nil
}

func (f *fakeConn) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
	return nil
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		kind lifecycle.EventKind
		want string
	}{
		{"default", nil, lifecycle.EventSummary, "racegarage.summary.anonymous"},
		{"custom", []Option{WithSubject("games.rgc."), WithAddress("rABC")}, lifecycle.EventState, "games.rgc.state.rABC"},
		{"empty subject keeps default", []Option{WithSubject(""), WithAddress("rABC")}, lifecycle.EventBalance, "racegarage.balance.rABC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(&fakeConn{}, tt.opts...)
			assert.Equal(t, tt.want, p.Subject(tt.kind))
		})
	}
}

func TestRun(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, WithAddress("rABC"))
	events := make(chan lifecycle.Event, 4)
	events <- lifecycle.Event{Kind: lifecycle.EventState, State: lifecycle.StateRacing}
	events <- lifecycle.Event{Kind: lifecycle.EventFrame, Frame: &simulation.Frame{Elapsed: 1}}
	events <- lifecycle.Event{Kind: lifecycle.EventSummary, Summary: &lifecycle.RaceSummary{
		CarID:   "CAR-1",
		Backend: model.RaceOutcome{Source: model.OutcomeBackend, RaceID: "R1", PlayerRank: 2},
	}}
	close(events)

	p.Run(context.Background(), events)

	require.Len(t, conn.msgs, 2, "frames are skipped")
	assert.Equal(t, "racegarage.state.rABC", conn.msgs[0].subject)
	assert.Equal(t, "racegarage.summary.rABC", conn.msgs[1].subject)
	assert.Equal(t, 1, conn.flushed)

	var got lifecycle.Event
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &got))
	assert.Equal(t, "R1", got.Summary.Backend.RaceID)
	assert.Equal(t, 2, got.Summary.Backend.PlayerRank)
}

func TestRunWithFrames(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, WithFrames(true))
	events := make(chan lifecycle.Event, 1)
	events <- lifecycle.Event{Kind: lifecycle.EventFrame, Frame: &simulation.Frame{Elapsed: 1}}
	close(events)
	p.Run(context.Background(), events)
	assert.Len(t, conn.msgs, 1)
}

func TestRunContinuesOnError(t *testing.T) {
	conn := &fakeConn{err: errors.New("no responders")}
	p := NewPublisher(conn)
	events := make(chan lifecycle.Event, 2)
	events <- lifecycle.Event{Kind: lifecycle.EventState}
	events <- lifecycle.Event{Kind: lifecycle.EventState}
	close(events)
	p.Run(context.Background(), events)
	assert.Empty(t, conn.msgs)
	assert.Equal(t, 1, conn.flushed)
}

func TestRunStopsOnCancel(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx, make(chan lifecycle.Event))
	assert.Equal(t, 1, conn.flushed)
}
