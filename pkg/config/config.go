package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	BackendURL        string // base URL of the game backend
	APIPrefix         string // path prefix of the racing endpoints
	RequestTimeout    string // timeout for a single backend request
	LedgerURL         string // websocket URL of the ledger node
	FaucetURL         string // testnet faucet
	ValidationTimeout string // max wait for a submitted transaction to be validated
	ExtensionURL      string // URL of the delegated signer bridge
	JournalPath       string // path of the local sqlite journal
	KeyringService    string // service name used in the OS keyring
	SecretsFallback   string // file used when no OS keyring is available
	NatsURL           string // optional NATS server for publishing race outcomes
	NatsSubject       string // subject prefix for published outcomes
	MinBackendVersion string // minimum accepted backend version
	WaitForServices   string // duration to wait for the backend to be ready
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules
	EnableTelemetry   bool   // enable telemetry
	OpponentsFile     string // optional yaml file with the opponent pool
	NoAnimation       bool   // run the race simulation without real-time frames

	TrainFee     string
	EntryFee     string
	CreateFee    string
	PrizeAmount  string
	RefundAmount string
	InitialFund  string

	NumOpponents       int
	OpponentSpeedMin   float64
	OpponentSpeedMax   float64
	DefaultPlayerSpeed float64
	SpeedReadingScale  float64
)

// Economics holds the product constants of the game.
// Values come from flags, env or the config file.
type Economics struct {
	TrainFee     decimal.Decimal
	EntryFee     decimal.Decimal
	CreateFee    decimal.Decimal
	PrizeAmount  decimal.Decimal
	RefundAmount decimal.Decimal
	InitialFund  decimal.Decimal
}

func DefaultEconomics() Economics {
	return Economics{
		TrainFee:     decimal.NewFromInt(1),
		EntryFee:     decimal.NewFromInt(1),
		CreateFee:    decimal.NewFromInt(1),
		PrizeAmount:  decimal.NewFromInt(100),
		RefundAmount: decimal.RequireFromString("0.5"),
		InitialFund:  decimal.NewFromInt(10),
	}
}

// EconomicsFromFlags resolves the amounts given on the command line.
// Invalid values fall back to the defaults.
func EconomicsFromFlags() Economics {
	ret := DefaultEconomics()
	parse := func(s string, target *decimal.Decimal) {
		if d, err := decimal.NewFromString(s); err == nil && !d.IsNegative() {
			*target = d
		}
	}
	parse(TrainFee, &ret.TrainFee)
	parse(EntryFee, &ret.EntryFee)
	parse(CreateFee, &ret.CreateFee)
	parse(PrizeAmount, &ret.PrizeAmount)
	parse(RefundAmount, &ret.RefundAmount)
	parse(InitialFund, &ret.InitialFund)
	return ret
}

// Field holds the values used to build the local race field.
type Field struct {
	NumOpponents       int
	OpponentSpeedMin   float64
	OpponentSpeedMax   float64
	DefaultPlayerSpeed float64
	// backend speed readings (km/h) are divided by this value to get
	// simulation speed units
	SpeedReadingScale float64
}

func DefaultField() Field {
	return Field{
		NumOpponents:       4,
		OpponentSpeedMin:   2.8,
		OpponentSpeedMax:   4.2,
		DefaultPlayerSpeed: 3.0,
		SpeedReadingScale:  75,
	}
}

func FieldFromFlags() Field {
	ret := DefaultField()
	if NumOpponents >= 0 {
		ret.NumOpponents = NumOpponents
	}
	if OpponentSpeedMin > 0 && OpponentSpeedMax > OpponentSpeedMin {
		ret.OpponentSpeedMin = OpponentSpeedMin
		ret.OpponentSpeedMax = OpponentSpeedMax
	}
	if DefaultPlayerSpeed > 0 {
		ret.DefaultPlayerSpeed = DefaultPlayerSpeed
	}
	if SpeedReadingScale > 0 {
		ret.SpeedReadingScale = SpeedReadingScale
	}
	return ret
}

// ParseDuration returns the parsed duration or defaultVal if arg is not valid
func ParseDuration(arg string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(arg); err == nil && d > 0 {
		return d
	}
	return defaultVal
}
