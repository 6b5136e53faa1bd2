package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/jonboulle/clockwork"
)

// Manager orchestrates auction creation, edits and status transitions.
// Every path runs the expiry check first and persists a lazy close through AtomicUpdate.
type Manager struct {
	repo      repository.AuctionRepository
	clock     clockwork.Clock
	publisher events.Publisher
	metrics   *metrics.Metrics
	newID     func() string
}

// Option configures a Manager
type Option func(*Manager)

// WithPublisher sets the destination of lifecycle events
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithMetrics sets the metrics recorder
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithIDGenerator overrides auction id generation
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a lifecycle manager over repo
func NewManager(repo repository.AuctionRepository, clock clockwork.Clock, opts ...Option) *Manager {
	m := &Manager{
		repo:      repo,
		clock:     clock,
		publisher: events.Nop{},
		newID:     utils.GenerateID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) now() time.Time {
	return m.clock.Now().UTC()
}

// Create validates the input and stores a new open auction owned by ownerID
func (m *Manager) Create(ctx context.Context, ownerID string, in models.NewAuction) (models.Auction, error) {
	auction, err := NewAuction(in, ownerID, m.newID(), m.now())
	if err != nil {
		return models.Auction{}, fmt.Errorf("manager: failed to create auction: %w", err)
	}
	if err := m.repo.Create(ctx, auction); err != nil {
		return models.Auction{}, fmt.Errorf("manager: failed to store auction %s: %w", auction.AuctionID, err)
	}

	m.metrics.ObserveCreated()
	utils.Info("manager: auction created", map[string]any{
		"auction_id": auction.AuctionID,
		"owner_id":   ownerID,
		"end_time":   auction.AuctionEndTime.Format(time.RFC3339),
	})
	return auction, nil
}

// Get returns the auction with its bids, closing it first if its deadline has passed
func (m *Manager) Get(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("manager: %w - empty auction ID", biddingerrors.ErrAuctionNotFound)
	}
	auction, err := m.repo.Get(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("manager: failed to get auction %s: %w", auctionID, err)
	}
	return m.observe(ctx, auction, metrics.ReasonLazy)
}

// List returns auctions newest first. A status filter is applied after the expiry check,
// so an expired auction is listed as closed and never as open. An unknown status matches nothing.
func (m *Manager) List(ctx context.Context, status *models.Status) ([]models.Auction, error) {
	if status != nil && !status.Valid() {
		return []models.Auction{}, nil
	}

	filter := repository.ListFilter{Status: status}
	if status != nil && *status == models.StatusClosed {
		// expired auctions may still be stored as open
		filter.Status = nil
	}
	stored, err := m.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to list auctions: %w", err)
	}

	auctions := make([]models.Auction, 0, len(stored))
	for _, a := range stored {
		a, err := m.observe(ctx, a, metrics.ReasonLazy)
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if status != nil && a.Status != *status {
			continue
		}
		auctions = append(auctions, a)
	}
	return auctions, nil
}

// Update applies the owner's patch while the auction is open
func (m *Manager) Update(ctx context.Context, auctionID, callerID string, patch models.AuctionPatch) (models.Auction, error) {
	var expired bool
	committed, err := m.repo.AtomicUpdate(ctx, auctionID, func(current models.Auction) (models.Auction, error) {
		expired = false
		if err := Authorize(current, callerID); err != nil {
			return models.Auction{}, err
		}
		now := m.now()
		if Expired(current, now) {
			expired = true
			return CheckAndCloseIfExpired(current, now), nil
		}
		return ApplyPatch(current, patch, callerID, now)
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("manager: failed to update auction %s: %w", auctionID, err)
	}
	if expired {
		m.transitioned(ctx, committed, metrics.ReasonLazy)
		return models.Auction{}, fmt.Errorf("manager: %w - auction %s has ended", biddingerrors.ErrAuctionNotOpen, auctionID)
	}

	events.Emit(ctx, m.publisher, events.AuctionChanged(events.TypeAuctionUpdated, committed, m.now()))
	utils.Info("manager: auction updated", map[string]any{"auction_id": auctionID, "owner_id": callerID})
	return committed, nil
}

// Delete removes the auction and all its bids. Only the owner may delete, in any status.
func (m *Manager) Delete(ctx context.Context, auctionID, callerID string) error {
	var deleted models.Auction
	err := m.repo.Delete(ctx, auctionID, func(current models.Auction) error {
		if err := Authorize(current, callerID); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return fmt.Errorf("manager: failed to delete auction %s: %w", auctionID, err)
	}

	events.Emit(ctx, m.publisher, events.AuctionChanged(events.TypeAuctionDeleted, deleted, m.now()))
	utils.Info("manager: auction deleted", map[string]any{
		"auction_id": auctionID,
		"owner_id":   callerID,
		"bids":       len(deleted.Bids),
	})
	return nil
}

// Close ends an open auction early on the owner's request
func (m *Manager) Close(ctx context.Context, auctionID, callerID string) (models.Auction, error) {
	return m.finish(ctx, auctionID, callerID, models.StatusClosed)
}

// Cancel withdraws an open auction; a cancelled auction has no winner
func (m *Manager) Cancel(ctx context.Context, auctionID, callerID string) (models.Auction, error) {
	return m.finish(ctx, auctionID, callerID, models.StatusCancelled)
}

func (m *Manager) finish(ctx context.Context, auctionID, callerID string, to models.Status) (models.Auction, error) {
	var expired bool
	committed, err := m.repo.AtomicUpdate(ctx, auctionID, func(current models.Auction) (models.Auction, error) {
		expired = false
		if err := Authorize(current, callerID); err != nil {
			return models.Auction{}, err
		}
		now := m.now()
		if Expired(current, now) {
			expired = true
			return CheckAndCloseIfExpired(current, now), nil
		}
		return Finish(current, to, callerID, now)
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("manager: failed to %s auction %s: %w", verb(to), auctionID, err)
	}
	if expired {
		m.transitioned(ctx, committed, metrics.ReasonLazy)
		return models.Auction{}, fmt.Errorf("manager: %w - auction %s has ended", biddingerrors.ErrAuctionNotOpen, auctionID)
	}

	m.transitioned(ctx, committed, metrics.ReasonOwner)
	return committed, nil
}

// SweepExpired closes every open auction whose deadline has passed and returns how many it closed
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	open := models.StatusOpen
	auctions, err := m.repo.List(ctx, repository.ListFilter{Status: &open})
	if err != nil {
		return 0, fmt.Errorf("manager: failed to list open auctions: %w", err)
	}

	closed := 0
	now := m.now()
	for _, a := range auctions {
		if !Expired(a, now) {
			continue
		}
		if _, ok, err := m.closeIfExpired(ctx, a.AuctionID, metrics.ReasonSweep); err != nil {
			if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
				continue
			}
			return closed, err
		} else if ok {
			closed++
		}
	}
	return closed, nil
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := m.SweepExpired(ctx)
			if err != nil {
				utils.Error("manager: sweep failed", map[string]any{"error": err.Error()})
				continue
			}
			if n > 0 {
				utils.Info("manager: sweep closed expired auctions", map[string]any{"closed": n})
			}
		}
	}
}

// observe applies the expiry check to a loaded auction and persists the close if needed.
// A failed persist still returns the closed view.
func (m *Manager) observe(ctx context.Context, a models.Auction, reason string) (models.Auction, error) {
	now := m.now()
	if !Expired(a, now) {
		return a, nil
	}

	committed, _, err := m.closeIfExpired(ctx, a.AuctionID, reason)
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return models.Auction{}, fmt.Errorf("manager: failed to get auction %s: %w", a.AuctionID, err)
	case err != nil:
		utils.Warn("manager: failed to persist lazy close", map[string]any{
			"auction_id": a.AuctionID,
			"error":      err.Error(),
		})
		return CheckAndCloseIfExpired(a, now), nil
	}
	return committed, nil
}

func (m *Manager) closeIfExpired(ctx context.Context, auctionID, reason string) (models.Auction, bool, error) {
	var closed bool
	committed, err := m.repo.AtomicUpdate(ctx, auctionID, func(current models.Auction) (models.Auction, error) {
		now := m.now()
		closed = Expired(current, now)
		return CheckAndCloseIfExpired(current, now), nil
	})
	if err != nil {
		return models.Auction{}, false, err
	}
	if closed {
		m.transitioned(ctx, committed, reason)
	}
	return committed, closed, nil
}

func (m *Manager) transitioned(ctx context.Context, a models.Auction, reason string) {
	m.metrics.ObserveTransition(a.Status, reason)

	eventType := events.TypeAuctionClosed
	if a.Status == models.StatusCancelled {
		eventType = events.TypeAuctionCancelled
	}
	events.Emit(ctx, m.publisher, events.AuctionChanged(eventType, a, m.now()))
	utils.Info("manager: auction status changed", map[string]any{
		"auction_id":    a.AuctionID,
		"status":        string(a.Status),
		"reason":        reason,
		"current_price": a.CurrentPrice.String(),
	})
}

func verb(to models.Status) string {
	if to == models.StatusCancelled {
		return "cancel"
	}
	return "close"
}
