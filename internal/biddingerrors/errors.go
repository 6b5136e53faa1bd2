package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already exists")
	ErrConflict        = errors.New("concurrent update retries exhausted")
)

// business logic errors
var (
	ErrInvalidAuction = errors.New("invalid auction")
	ErrInvalidEndTime = errors.New("auction end time must be in the future")
	ErrInvalidBid     = errors.New("invalid bid")
	ErrBidTooLow      = errors.New("bid amount too low")
	ErrAuctionNotOpen = errors.New("auction is not open")
	ErrAuctionExpired = errors.New("auction has ended")
	ErrForbidden      = errors.New("not authorized to modify this auction")
)

// transport errors
var (
	ErrUnauthorized = errors.New("authentication required")
	ErrRateLimited  = errors.New("too many requests")
)

// BidTooLowError is returned when a bid does not exceed the current price.
// It matches ErrBidTooLow with errors.Is.
type BidTooLowError struct {
	CurrentPrice decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be higher than current price (%s)", e.CurrentPrice.String())
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}
