// Package lifecycle owns every state transition of an auction. The pure functions in this file
// are the only place where expiry, ownership and edit rules are decided; Manager applies them
// through the repository's atomic update primitive.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
)

// Expired reports whether an open auction has passed its deadline at now
func Expired(a models.Auction, now time.Time) bool {
	return a.Status == models.StatusOpen && now.After(a.AuctionEndTime)
}

// CheckAndCloseIfExpired returns a copy of a with status closed if it is open and past its
// end time, otherwise a unchanged. Calling it on an already closed auction is a no-op.
func CheckAndCloseIfExpired(a models.Auction, now time.Time) models.Auction {
	if !Expired(a, now) {
		return a
	}
	closed := a.Clone()
	closed.Status = models.StatusClosed
	return closed
}

// NewAuction validates the input and builds an open auction owned by ownerID
func NewAuction(in models.NewAuction, ownerID, id string, now time.Time) (models.Auction, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case ownerID == "":
		return models.Auction{}, fmt.Errorf("lifecycle: %w - missing owner", biddingerrors.ErrInvalidAuction)
	case title == "":
		return models.Auction{}, fmt.Errorf("lifecycle: %w - title is required", biddingerrors.ErrInvalidAuction)
	case strings.TrimSpace(in.Description) == "":
		return models.Auction{}, fmt.Errorf("lifecycle: %w - description is required", biddingerrors.ErrInvalidAuction)
	case !in.StartingPrice.IsPositive():
		return models.Auction{}, fmt.Errorf("lifecycle: %w - starting price must be positive", biddingerrors.ErrInvalidAuction)
	case in.AuctionEndTime.IsZero():
		return models.Auction{}, fmt.Errorf("lifecycle: %w - auction end time is required", biddingerrors.ErrInvalidAuction)
	case !in.AuctionEndTime.After(now):
		return models.Auction{}, fmt.Errorf("lifecycle: %w", biddingerrors.ErrInvalidEndTime)
	}

	return models.Auction{
		AuctionID:      id,
		Title:          title,
		Description:    in.Description,
		StartingPrice:  in.StartingPrice,
		CurrentPrice:   in.StartingPrice,
		CreatedBy:      ownerID,
		AuctionEndTime: in.AuctionEndTime.UTC(),
		Status:         models.StatusOpen,
		Bids:           []models.Bid{},
		CreatedAt:      now.UTC(),
	}, nil
}

// Authorize fails with ErrForbidden unless callerID owns the auction
func Authorize(a models.Auction, callerID string) error {
	if callerID == "" || a.CreatedBy != callerID {
		return fmt.Errorf("lifecycle: %w", biddingerrors.ErrForbidden)
	}
	return nil
}

// ApplyPatch applies the whitelisted fields of patch to a.
// The auction must be owned by callerID and still open after the expiry check.
func ApplyPatch(a models.Auction, patch models.AuctionPatch, callerID string, now time.Time) (models.Auction, error) {
	if err := Authorize(a, callerID); err != nil {
		return models.Auction{}, err
	}
	a = CheckAndCloseIfExpired(a, now)
	if a.Status != models.StatusOpen {
		return models.Auction{}, fmt.Errorf("lifecycle: %w - status is %s", biddingerrors.ErrAuctionNotOpen, a.Status)
	}

	next := a.Clone()
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.Auction{}, fmt.Errorf("lifecycle: %w - title cannot be empty", biddingerrors.ErrInvalidAuction)
		}
		next.Title = title
	}
	if patch.Description != nil {
		if strings.TrimSpace(*patch.Description) == "" {
			return models.Auction{}, fmt.Errorf("lifecycle: %w - description cannot be empty", biddingerrors.ErrInvalidAuction)
		}
		next.Description = *patch.Description
	}
	if patch.AuctionEndTime != nil {
		if !patch.AuctionEndTime.After(now) {
			return models.Auction{}, fmt.Errorf("lifecycle: %w", biddingerrors.ErrInvalidEndTime)
		}
		next.AuctionEndTime = patch.AuctionEndTime.UTC()
	}
	return next, nil
}

// Finish moves an open auction owned by callerID into the terminal status to
func Finish(a models.Auction, to models.Status, callerID string, now time.Time) (models.Auction, error) {
	if err := Authorize(a, callerID); err != nil {
		return models.Auction{}, err
	}
	a = CheckAndCloseIfExpired(a, now)
	if a.Status != models.StatusOpen {
		return models.Auction{}, fmt.Errorf("lifecycle: %w - status is %s", biddingerrors.ErrAuctionNotOpen, a.Status)
	}
	next := a.Clone()
	next.Status = to
	return next, nil
}
