package simulation

import (
	"fmt"
	"math/rand/v2"

	"github.com/xrpracing/racegarage/pkg/config"
)

// Player describes the user's car entering a race.
// Speed is in simulation units; nil means no speed reading exists.
type Player struct {
	ID    string
	Name  string
	Color uint32
	Speed *float64
}

const playerColor = 0xE10600

// GenerateField builds the racers of a local race: the player plus up to
// field.NumOpponents opponents drawn without replacement from pool.
// The returned order is the grid order used to break exact finish ties.
func GenerateField(player Player, pool []config.Opponent, field config.Field, rng *rand.Rand) []Racer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	speed := field.DefaultPlayerSpeed
	if player.Speed != nil {
		speed = *player.Speed
	}
	color := player.Color
	if color == 0 {
		color = playerColor
	}
	name := player.Name
	if name == "" {
		name = "You"
	}
	racers := []Racer{{
		ID:       player.ID,
		Name:     name,
		Color:    color,
		Speed:    speed,
		IsPlayer: true,
	}}

	n := min(field.NumOpponents, len(pool))
	band := field.OpponentSpeedMax - field.OpponentSpeedMin
	for i, idx := range rng.Perm(len(pool))[:n] {
		o := pool[idx]
		racers = append(racers, Racer{
			ID:    fmt.Sprintf("AI-%d", i+1),
			Name:  o.Name,
			Color: o.Color,
			Speed: field.OpponentSpeedMin + rng.Float64()*band,
		})
	}
	rng.Shuffle(len(racers), func(i, j int) {
		racers[i], racers[j] = racers[j], racers[i]
	})
	return racers
}

// SpeedFromReading converts a backend speed reading (km/h) to simulation units.
func SpeedFromReading(reading float64, field config.Field) float64 {
	if field.SpeedReadingScale <= 0 {
		return reading
	}
	return reading / field.SpeedReadingScale
}
