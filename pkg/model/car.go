package model

import "time"

// Car is the client-visible part of a car. The hidden attributes
// never leave the backend.
type Car struct {
	ID            string  `json:"car_id"`
	TrainingCount int     `json:"training_count"`
	CreatedAt     string  `json:"created_at"`
	LastTrained   *string `json:"last_trained,omitempty"`
}

// SpeedReading is the result of a speed test.
// Speed is reported by the backend in km/h.
type SpeedReading struct {
	CarID     string
	Speed     float64
	Improved  bool
	Message   string
	Timestamp time.Time
}

// TrainResult describes the car variant created by a training session.
type TrainResult struct {
	CarID             string
	PreviousCarID     string
	TrainingCount     int
	TrainedAttributes []string
	Speed             *float64
	Message           string
}
