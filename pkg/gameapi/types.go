package gameapi

import (
	"github.com/shopspring/decimal"

	"github.com/xrpracing/racegarage/pkg/ledger"
	"github.com/xrpracing/racegarage/pkg/model"
)

type (
	// PaymentDescriptor is attached by the backend when the client has to
	// authorize a payment itself. Amount is in drops.
	PaymentDescriptor struct {
		Destination string         `json:"destination"`
		Amount      string         `json:"amount"`
		TxJSON      map[string]any `json:"txJSON,omitempty"`
	}

	// Player is the wallet a payment-bearing request is made for. Seed is
	// only set for self-custodied wallets, the backend then settles the fee
	// on the ledger itself. Delegated wallets get a payment descriptor.
	Player struct {
		Address string
		Seed    string
	}

	CreateCarResult struct {
		Car     model.Car
		Payment *PaymentDescriptor
	}

	TrainRequest struct {
		Player
		CarID            string
		AttributeIndices []int // empty: train all
	}

	TrainResult struct {
		model.TrainResult
		Payment *PaymentDescriptor
	}

	RaceResult struct {
		model.RaceOutcome
		CarID   string
		Message string
		Payment *PaymentDescriptor
	}

	SellResult struct {
		Message string
		Refund  decimal.Decimal
	}

	Health struct {
		Status           string `json:"status"`
		Version          string `json:"version,omitempty"`
		Network          string `json:"network"`
		TestnetConnected bool   `json:"testnet_connected"`
		Ledger           *int64 `json:"ledger,omitempty"`
	}
)

// wire formats

type (
	carCreateRequest struct {
		WalletAddress string `json:"wallet_address"`
		WalletSeed    string `json:"wallet_seed,omitempty"`
	}
	carResponse struct {
		model.Car
		WalletAddress string             `json:"wallet_address"`
		Payment       *PaymentDescriptor `json:"payment,omitempty"`
	}
	garageResponse struct {
		WalletAddress string      `json:"wallet_address"`
		Cars          []model.Car `json:"cars"`
		TotalCars     int         `json:"total_cars"`
	}
	trainRequest struct {
		CarID            string `json:"car_id"`
		WalletAddress    string `json:"wallet_address"`
		WalletSeed       string `json:"wallet_seed,omitempty"`
		AttributeIndices []int  `json:"attribute_indices"`
	}
	trainResponse struct {
		Success           bool               `json:"success"`
		CarID             string             `json:"car_id"`
		TrainingCount     int                `json:"training_count"`
		Message           string             `json:"message"`
		TrainedAttributes []string           `json:"trained_attributes"`
		Speed             *float64           `json:"speed"`
		Payment           *PaymentDescriptor `json:"payment,omitempty"`
	}
	carRequest struct {
		CarID         string `json:"car_id"`
		WalletAddress string `json:"wallet_address"`
	}
	enterRequest struct {
		CarID         string `json:"car_id"`
		WalletAddress string `json:"wallet_address"`
		WalletSeed    string `json:"wallet_seed,omitempty"`
	}
	testSpeedResponse struct {
		Success  bool     `json:"success"`
		CarID    string   `json:"car_id"`
		Improved bool     `json:"improved"`
		Message  string   `json:"message"`
		Speed    *float64 `json:"speed"`
	}
	raceResponse struct {
		Success           bool               `json:"success"`
		RaceID            string             `json:"race_id"`
		CarID             string             `json:"car_id"`
		YourRank          int                `json:"your_rank"`
		WinnerCarID       string             `json:"winner_car_id"`
		TotalParticipants int                `json:"total_participants"`
		PrizeAwarded      bool               `json:"prize_awarded"`
		Message           string             `json:"message"`
		Payment           *PaymentDescriptor `json:"payment,omitempty"`
	}
	latestResponse struct {
		Race *raceResponse `json:"race"`
	}
	sellResponse struct {
		Success      bool            `json:"success"`
		Message      string          `json:"message"`
		RefundAmount decimal.Decimal `json:"refund_amount"`
	}
	errorResponse struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
)

// AmountXRP converts the descriptor amount to XRP.
func (p *PaymentDescriptor) AmountXRP() (decimal.Decimal, error) {
	return ledger.DropsToXRP(p.Amount)
}

func (r *raceResponse) result() *RaceResult {
	return &RaceResult{
		RaceOutcome: model.RaceOutcome{
			Source:       model.OutcomeBackend,
			RaceID:       r.RaceID,
			PlayerRank:   r.YourRank,
			WinnerID:     r.WinnerCarID,
			Participants: r.TotalParticipants,
			PrizeAwarded: r.PrizeAwarded,
		},
		CarID:   r.CarID,
		Message: r.Message,
		Payment: r.Payment,
	}
}
