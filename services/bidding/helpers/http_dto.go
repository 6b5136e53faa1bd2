package helpers

import (
	"time"

	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs.
// Amounts are accepted as JSON numbers or strings and always returned as strings.
type CreateAuctionRequest struct {
	Title          string           `json:"title" binding:"required"`
	Description    string           `json:"description" binding:"required"`
	StartingPrice  *decimal.Decimal `json:"starting_price" binding:"required"`
	AuctionEndTime *time.Time       `json:"auction_end_time" binding:"required"`
}

// ToModel converts the request into the lifecycle input
func (r CreateAuctionRequest) ToModel() model.NewAuction {
	return model.NewAuction{
		Title:          r.Title,
		Description:    r.Description,
		StartingPrice:  *r.StartingPrice,
		AuctionEndTime: *r.AuctionEndTime,
	}
}

// UpdateAuctionRequest lists the editable fields. Prices, status, owner and bids are not editable
// and are ignored if sent.
type UpdateAuctionRequest struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	AuctionEndTime *time.Time `json:"auction_end_time"`
}

func (r UpdateAuctionRequest) ToPatch() model.AuctionPatch {
	return model.AuctionPatch{
		Title:          r.Title,
		Description:    r.Description,
		AuctionEndTime: r.AuctionEndTime,
	}
}

type PlaceBidRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

type BidResponse struct {
	Auction model.Auction `json:"auction"`
	Bid     model.Bid     `json:"bid"`
}

type DeleteResponse struct {
	AuctionID string `json:"auction_id"`
}
