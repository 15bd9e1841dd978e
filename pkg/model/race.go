package model

type OutcomeSource string

const (
	OutcomeLocal   OutcomeSource = "local"
	OutcomeBackend OutcomeSource = "backend"
)

// RaceOutcome is a ranked race result from one of the two sources.
// Only an outcome with Source OutcomeBackend may carry economic weight.
type RaceOutcome struct {
	Source       OutcomeSource `json:"source"`
	RaceID       string        `json:"raceId,omitempty"`
	Ranking      []string      `json:"ranking,omitempty"`
	PlayerRank   int           `json:"playerRank"`
	WinnerID     string        `json:"winnerId"`
	WinnerName   string        `json:"winnerName,omitempty"`
	Participants int           `json:"participants"`
	PrizeAwarded bool          `json:"prizeAwarded"`
}

func (o *RaceOutcome) PlayerWon() bool {
	return o != nil && o.PlayerRank == 1
}
