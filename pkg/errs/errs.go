// Package errs holds the error taxonomy shared by the signer, the game client,
// the wallet mirror and the lifecycle controller.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNoWalletLoaded      = errors.New("no wallet loaded")
	ErrNoCarSelected       = errors.New("no car selected")
	ErrSignerUnavailable   = errors.New("signer unavailable")
	ErrUserRejected        = errors.New("request rejected by user")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRequestTimeout      = errors.New("request timeout")
	ErrValidationTimeout   = errors.New("ledger validation timeout")
	ErrBusy                = errors.New("another operation is in progress")
	ErrHiddenDataLeak      = errors.New("response contains hidden car data")
)

// BackendError is a non-2xx answer of the game backend.
// Message is passed through verbatim.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend: HTTP %d: %s", e.StatusCode, e.Message)
}

// TxError carries the ledger result code of a rejected transaction.
type TxError struct {
	Code string
	Hash string
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Hash, e.Code)
}

func (e *TxError) Unwrap() error {
	return ErrTransactionRejected
}

// Message converts err into the text shown next to the triggering control.
func Message(err error) string {
	var be *BackendError
	var te *TxError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &be):
		return be.Message
	case errors.As(err, &te):
		return fmt.Sprintf("Transaction failed (%s)", te.Code)
	case errors.Is(err, ErrNoWalletLoaded):
		return "Connect a wallet first"
	case errors.Is(err, ErrNoCarSelected):
		return "No car selected"
	case errors.Is(err, ErrSignerUnavailable):
		return "No signing method available"
	case errors.Is(err, ErrUserRejected):
		return "Request was declined in the wallet"
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient balance"
	case errors.Is(err, ErrValidationTimeout):
		return "Transaction was not validated in time"
	case errors.Is(err, ErrRequestTimeout):
		return "Request timeout"
	case errors.Is(err, ErrBusy):
		return "Please wait for the current action to finish"
	case errors.Is(err, ErrHiddenDataLeak):
		return "Backend sent data it must not reveal"
	default:
		return err.Error()
	}
}
