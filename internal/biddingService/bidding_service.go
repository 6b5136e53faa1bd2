package bidding

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	"auction-engine/internal/lifecycle"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// AuctionReader loads an auction with the expiry check already applied
type AuctionReader interface {
	Get(ctx context.Context, auctionID string) (models.Auction, error)
}

// BiddingService accepts bids and computes auction outcomes
type BiddingService struct {
	repo      repository.AuctionRepository
	reader    AuctionReader
	clock     clockwork.Clock
	publisher events.Publisher
	metrics   *metrics.Metrics
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithPublisher sets the destination of bid events
func WithPublisher(p events.Publisher) Option {
	return func(s *BiddingService) { s.publisher = p }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BiddingService) { s.metrics = m }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionRepository, reader AuctionReader, clock clockwork.Clock, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:      repo,
		reader:    reader,
		clock:     clock,
		publisher: events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitBid validates and records a bid. The status check, the expiry check, the price
// comparison and the append all run inside one atomic update of the auction, so of two
// concurrent bids at most one can win against the same current price.
func (s *BiddingService) SubmitBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.Auction, models.Bid, error) {
	if err := validateBid(auctionID, bidderID); err != nil {
		s.metrics.ObserveBid(err)
		return models.Auction{}, models.Bid{}, err
	}

	var (
		bid      models.Bid
		previous decimal.Decimal
		expired  bool
	)
	committed, err := s.repo.AtomicUpdate(ctx, auctionID, func(current models.Auction) (models.Auction, error) {
		expired = false
		now := s.clock.Now().UTC()

		if current.Status != models.StatusOpen {
			return models.Auction{}, fmt.Errorf("service: %w - status is %s", biddingerrors.ErrAuctionNotOpen, current.Status)
		}
		if lifecycle.Expired(current, now) {
			// commit the close, the bid is rejected after the update
			expired = true
			return lifecycle.CheckAndCloseIfExpired(current, now), nil
		}
		// current price is always positive, so this also rejects zero and negative amounts
		if amount.LessThanOrEqual(current.CurrentPrice) {
			return models.Auction{}, &biddingerrors.BidTooLowError{CurrentPrice: current.CurrentPrice}
		}

		previous = current.CurrentPrice
		bid = models.Bid{
			BidID:    utils.GenerateID(),
			BidderID: bidderID,
			Amount:   amount,
			PlacedAt: now,
		}
		next := current.Clone()
		next.Bids = append(next.Bids, bid)
		next.CurrentPrice = amount
		return next, nil
	})
	if err != nil {
		err = fmt.Errorf("service: failed to record bid on auction %s by user %s: %w", auctionID, bidderID, err)
		s.metrics.ObserveBid(err)
		return models.Auction{}, models.Bid{}, err
	}

	if expired {
		s.metrics.ObserveTransition(committed.Status, metrics.ReasonLazy)
		events.Emit(ctx, s.publisher, events.AuctionChanged(events.TypeAuctionClosed, committed, s.clock.Now()))
		err := fmt.Errorf("service: %w - auction %s ended at %s", biddingerrors.ErrAuctionExpired, auctionID, committed.AuctionEndTime.Format("2006-01-02T15:04:05Z07:00"))
		s.metrics.ObserveBid(err)
		return models.Auction{}, models.Bid{}, err
	}

	s.metrics.ObserveBid(nil)
	events.Emit(ctx, s.publisher, events.BidPlaced(committed, bid, previous))
	utils.Debug("service: bid accepted", map[string]any{
		"auction_id": auctionID,
		"bid_id":     bid.BidID,
		"bidder_id":  bidderID,
		"amount":     amount.String(),
	})
	return committed, bid, nil
}

// validateBid checks the identifiers before the auction is loaded. The amount is judged
// against the auction itself, after the status and expiry checks.
func validateBid(auctionID, bidderID string) error {
	if auctionID == "" || bidderID == "" {
		return fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}
	return nil
}

// ListBids returns the bids of an auction in placement order
func (s *BiddingService) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	auction, err := s.reader.Get(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	if auction.Bids == nil {
		return []models.Bid{}, nil
	}
	return auction.Bids, nil
}

// GetOutcome reports the leading bid of an open auction or the result of a finished one
func (s *BiddingService) GetOutcome(ctx context.Context, auctionID string) (models.Outcome, error) {
	if auctionID == "" {
		return models.Outcome{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	auction, err := s.reader.Get(ctx, auctionID)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("service: failed to get outcome for auction %s: %w", auctionID, err)
	}
	return Outcome(auction), nil
}

// Outcome derives the result of an auction: the last accepted bid wins unless the auction was cancelled
func Outcome(a models.Auction) models.Outcome {
	outcome := models.Outcome{
		AuctionID:  a.AuctionID,
		Status:     a.Status,
		Final:      a.Status.Terminal(),
		FinalPrice: a.CurrentPrice,
	}
	if a.Status == models.StatusCancelled {
		return outcome
	}
	if last, ok := a.LastBid(); ok {
		outcome.Winner = &last
	}
	return outcome
}
