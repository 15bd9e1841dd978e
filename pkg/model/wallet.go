package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	ConnectionType string
	TxKind         string
)

const (
	ConnectionCreated   ConnectionType = "created"
	ConnectionImported  ConnectionType = "imported"
	ConnectionExtension ConnectionType = "extension"
)

const (
	TxFunding    TxKind = "funding"
	TxPayment    TxKind = "payment"
	TxCreateCar  TxKind = "create_car"
	TxTrain      TxKind = "train"
	TxRaceEntry  TxKind = "race_entry"
	TxRacePrize  TxKind = "race_prize"
	TxSellRefund TxKind = "sell_refund"
)

// Transaction is an entry of the locally mirrored transaction list.
// Amount is signed: debits are negative.
type Transaction struct {
	ID          string          `json:"id"`
	OpID        string          `json:"opId"`
	Kind        TxKind          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination,omitempty"`
	Status      string          `json:"status"`
	Hash        string          `json:"hash,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}
