package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an auction
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Bid represents an accepted offer on an auction. Bids are immutable once accepted.
type Bid struct {
	BidID    string          `json:"bid_id"`
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Auction represents a single listing with a deadline and a competitive price
type Auction struct {
	AuctionID      string          `json:"auction_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	StartingPrice  decimal.Decimal `json:"starting_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	CreatedBy      string          `json:"created_by"`
	AuctionEndTime time.Time       `json:"auction_end_time"`
	Status         Status          `json:"status"`
	Bids           []Bid           `json:"bids"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Clone returns a copy of the auction that shares no bid storage with a
func (a Auction) Clone() Auction {
	c := a
	if a.Bids != nil {
		c.Bids = append(make([]Bid, 0, len(a.Bids)), a.Bids...)
	}
	return c
}

// LastBid returns the most recent accepted bid, if any
func (a Auction) LastBid() (Bid, bool) {
	if len(a.Bids) == 0 {
		return Bid{}, false
	}
	return a.Bids[len(a.Bids)-1], true
}

// NewAuction holds the caller-supplied fields of an auction to be created
type NewAuction struct {
	Title          string
	Description    string
	StartingPrice  decimal.Decimal
	AuctionEndTime time.Time
}

// AuctionPatch lists the fields an owner may change while the auction is open.
// Nil fields are left untouched.
type AuctionPatch struct {
	Title          *string
	Description    *string
	AuctionEndTime *time.Time
}

// Empty reports whether the patch changes nothing
func (p AuctionPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.AuctionEndTime == nil
}

// Outcome is the deterministic result of an auction
type Outcome struct {
	AuctionID  string          `json:"auction_id"`
	Status     Status          `json:"status"`
	Final      bool            `json:"final"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Winner     *Bid            `json:"winner,omitempty"`
}
