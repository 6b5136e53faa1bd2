package repository

//go:generate mockgen -destination=mock_repository.go -package=repository auction-engine/internal/repository AuctionRepository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

// DefaultMaxRetries bounds optimistic commit attempts before ErrConflict is returned
const DefaultMaxRetries = 5

// MutateFunc receives a private copy of the stored auction and returns its new state.
// Returning an error aborts the update without writing anything.
type MutateFunc func(current model.Auction) (model.Auction, error)

// CheckFunc inspects an auction before it is deleted; an error vetoes the delete
type CheckFunc func(current model.Auction) error

// ListFilter narrows List results. A nil Status matches every auction.
type ListFilter struct {
	Status *model.Status
}

// AuctionRepository defines the auction storage interface for the bidding engine.
// Every write goes through AtomicUpdate or Delete so that no concurrent update is lost.
type AuctionRepository interface {
	Get(ctx context.Context, auctionID string) (model.Auction, error)
	List(ctx context.Context, filter ListFilter) ([]model.Auction, error)
	Create(ctx context.Context, auction model.Auction) error
	AtomicUpdate(ctx context.Context, auctionID string, fn MutateFunc) (model.Auction, error)
	Delete(ctx context.Context, auctionID string, check CheckFunc) error
}

type memoryRecord struct {
	auction model.Auction
	version uint64
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionRepository.
// Updates are optimistic: the mutate function runs outside the lock and the result is
// committed only if the record version is unchanged.
type MemoryRepo struct {
	mu         sync.RWMutex
	auctions   map[string]*memoryRecord // key: auctionID -> value: stored record
	maxRetries int
	// beforeCommit is a test hook that runs between mutate and commit
	beforeCommit func(auctionID string)
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:   make(map[string]*memoryRecord),
		maxRetries: DefaultMaxRetries,
	}
}

// WithMaxRetries sets the number of commit attempts made by AtomicUpdate
func (r *MemoryRepo) WithMaxRetries(n int) *MemoryRepo {
	if n > 0 {
		r.maxRetries = n
	}
	return r
}

// Get returns a copy of the stored auction
func (r *MemoryRepo) Get(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return rec.auction.Clone(), nil
}

// List returns matching auctions, newest created first
func (r *MemoryRepo) List(_ context.Context, filter ListFilter) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctions := make([]model.Auction, 0, len(r.auctions))
	for _, rec := range r.auctions {
		if filter.Status != nil && rec.auction.Status != *filter.Status {
			continue
		}
		auctions = append(auctions, rec.auction.Clone())
	}
	sortNewestFirst(auctions)
	return auctions, nil
}

// Create stores a new auction
func (r *MemoryRepo) Create(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.auctions[auction.AuctionID]; exists {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.AuctionID] = &memoryRecord{auction: auction.Clone()}
	return nil
}

// AtomicUpdate applies fn to the stored auction as if no other writer interleaved
func (r *MemoryRepo) AtomicUpdate(ctx context.Context, auctionID string, fn MutateFunc) (model.Auction, error) {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.Auction{}, err
		}

		r.mu.RLock()
		rec, ok := r.auctions[auctionID]
		var current model.Auction
		var version uint64
		if ok {
			current, version = rec.auction.Clone(), rec.version
		}
		r.mu.RUnlock()
		if !ok {
			return model.Auction{}, fmt.Errorf("update auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}

		next, err := fn(current)
		if err != nil {
			return model.Auction{}, err
		}

		if r.beforeCommit != nil {
			r.beforeCommit(auctionID)
		}

		r.mu.Lock()
		rec, ok = r.auctions[auctionID]
		switch {
		case !ok:
			r.mu.Unlock()
			return model.Auction{}, fmt.Errorf("update auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		case rec.version != version:
			r.mu.Unlock()
			continue
		}
		rec.auction = next.Clone()
		rec.version++
		r.mu.Unlock()
		return next, nil
	}
	return model.Auction{}, fmt.Errorf("update auction %s: %w", auctionID, biddingerrors.ErrConflict)
}

// Delete removes the auction together with its bids if check allows it
func (r *MemoryRepo) Delete(_ context.Context, auctionID string, check CheckFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("delete auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if check != nil {
		if err := check(rec.auction.Clone()); err != nil {
			return err
		}
	}
	delete(r.auctions, auctionID)
	return nil
}

// AddAuction stores an auction without validation. This method is intended for tests and seeding only.
func (r *MemoryRepo) AddAuction(auction model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.AuctionID] = &memoryRecord{auction: auction.Clone()}
}

func sortNewestFirst(auctions []model.Auction) {
	sort.SliceStable(auctions, func(i, j int) bool {
		if auctions[i].CreatedAt.Equal(auctions[j].CreatedAt) {
			return auctions[i].AuctionID > auctions[j].AuctionID
		}
		return auctions[i].CreatedAt.After(auctions[j].CreatedAt)
	})
}
