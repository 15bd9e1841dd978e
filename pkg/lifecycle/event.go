package lifecycle

import (
	"time"

	"github.com/xrpracing/racegarage/pkg/model"
	"github.com/xrpracing/racegarage/pkg/simulation"
)

type EventKind string

const (
	EventState     EventKind = "state"
	EventFrame     EventKind = "frame"
	EventSummary   EventKind = "summary"
	EventSpeedTest EventKind = "speed_test"
	EventSelection EventKind = "selection"
	EventGarage    EventKind = "garage"
	EventBalance   EventKind = "balance"
)

// Event is emitted on every state transition, simulation frame and result.
type Event struct {
	Kind      EventKind           `json:"kind"`
	Time      time.Time           `json:"time"`
	State     State               `json:"state,omitempty"`
	Err       string              `json:"error,omitempty"`
	CarID     string              `json:"carId,omitempty"`
	Balance   string              `json:"balance,omitempty"`
	Frame     *simulation.Frame   `json:"frame,omitempty"`
	Summary   *RaceSummary        `json:"summary,omitempty"`
	SpeedTest *model.SpeedReading `json:"speedTest,omitempty"`
	Cars      []model.Car         `json:"cars,omitempty"`
}
