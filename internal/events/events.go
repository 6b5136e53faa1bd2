package events

import (
	"context"
	"errors"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

// Type names an auction event
type Type string

const (
	TypeBidPlaced        Type = "bid.placed"
	TypeAuctionClosed    Type = "auction.closed"
	TypeAuctionCancelled Type = "auction.cancelled"
	TypeAuctionUpdated   Type = "auction.updated"
	TypeAuctionDeleted   Type = "auction.deleted"
)

// Event is published after a change to an auction has been committed
type Event struct {
	EventID       string          `json:"event_id"`
	Type          Type            `json:"type"`
	AuctionID     string          `json:"auction_id"`
	Status        model.Status    `json:"status"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	Bid           *model.Bid      `json:"bid,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher delivers committed auction events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// BidPlaced builds the event for an accepted bid
func BidPlaced(a model.Auction, bid model.Bid, previous decimal.Decimal) Event {
	b := bid
	return Event{
		EventID:       utils.GenerateID(),
		Type:          TypeBidPlaced,
		AuctionID:     a.AuctionID,
		Status:        a.Status,
		CurrentPrice:  a.CurrentPrice,
		PreviousPrice: previous,
		Bid:           &b,
		OccurredAt:    bid.PlacedAt,
	}
}

// AuctionChanged builds a non-bid event for a
func AuctionChanged(t Type, a model.Auction, at time.Time) Event {
	return Event{
		EventID:       utils.GenerateID(),
		Type:          t,
		AuctionID:     a.AuctionID,
		Status:        a.Status,
		CurrentPrice:  a.CurrentPrice,
		PreviousPrice: a.CurrentPrice,
		OccurredAt:    at.UTC(),
	}
}

// Fanout publishes every event to all of its publishers
type Fanout []Publisher

// Publish delivers the event to each publisher and joins their errors
func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit publishes an event and logs delivery failures. The committed change is never rolled back.
func Emit(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		utils.Warn("events: failed to publish event", map[string]any{
			"event_id":   event.EventID,
			"type":       string(event.Type),
			"auction_id": event.AuctionID,
			"error":      err.Error(),
		})
	}
}
