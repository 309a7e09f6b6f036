package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by services; handlers map them to HTTP status
// codes, callers branch on them with errors.Is.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrTripNotSellable    = errors.New("trip is not open for sale")
	ErrSaleNotCancellable = errors.New("sale can no longer be cancelled")
	ErrAlreadySettled     = errors.New("payment entry already settled")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrTooManySeats       = errors.New("too many seats in one sale")
)

// SeatUnavailableError reports seats already sold on the trip. Permanent for
// this checkout: the buyer has to pick other seats.
type SeatUnavailableError struct {
	Seats []int
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %v", e.Seats)
}

// SeatLockedError reports seats whose locks are held by another in-flight
// checkout. Transient: the holds expire with the lock TTL, so retrying the
// same seats can succeed.
type SeatLockedError struct {
	Seats []int
}

func (e *SeatLockedError) Error() string {
	return fmt.Sprintf("seats held by another checkout: %v", e.Seats)
}

// AmountTooLowError surfaces a gateway minimum to the caller so the clerk
// can suggest a different payment channel. Minimum is pre-formatted in the
// sale's currency.
type AmountTooLowError struct {
	Currency string
	Minimum  string
}

func (e *AmountTooLowError) Error() string {
	return fmt.Sprintf("amount below gateway minimum of %s %s", e.Minimum, e.Currency)
}
