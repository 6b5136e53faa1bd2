package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, time.February, 10, 9, 30, 0, 0, time.UTC)

// Helper to create a new open auction
func newAuction(auctionID string, created time.Time) model.Auction {
	return model.Auction{
		AuctionID:      auctionID,
		Title:          fmt.Sprintf("%s title", auctionID),
		Description:    fmt.Sprintf("%s description", auctionID),
		StartingPrice:  decimal.RequireFromString("10.50"),
		CurrentPrice:   decimal.RequireFromString("10.50"),
		CreatedBy:      "owner",
		AuctionEndTime: created.Add(24 * time.Hour),
		Status:         model.StatusOpen,
		Bids:           []model.Bid{},
		CreatedAt:      created,
	}
}

// appendBid returns a mutate function that raises the price by one unit
func appendBid(bidID, bidderID string) MutateFunc {
	return func(current model.Auction) (model.Auction, error) {
		amount := current.CurrentPrice.Add(decimal.NewFromInt(1))
		current.Bids = append(current.Bids, model.Bid{
			BidID:    bidID,
			BidderID: bidderID,
			Amount:   amount,
			PlacedAt: baseTime.Add(time.Duration(len(current.Bids)) * time.Second),
		})
		current.CurrentPrice = amount
		return current, nil
	}
}

func requireSameAuction(t *testing.T, expected, actual model.Auction) {
	t.Helper()
	require.Equal(t, expected.AuctionID, actual.AuctionID)
	require.Equal(t, expected.Title, actual.Title)
	require.Equal(t, expected.Description, actual.Description)
	require.True(t, expected.StartingPrice.Equal(actual.StartingPrice), "starting price %s != %s", expected.StartingPrice, actual.StartingPrice)
	require.True(t, expected.CurrentPrice.Equal(actual.CurrentPrice), "current price %s != %s", expected.CurrentPrice, actual.CurrentPrice)
	require.Equal(t, expected.CreatedBy, actual.CreatedBy)
	require.True(t, expected.AuctionEndTime.Equal(actual.AuctionEndTime))
	require.True(t, expected.CreatedAt.Equal(actual.CreatedAt))
	require.Equal(t, expected.Status, actual.Status)
	require.NotNil(t, actual.Bids)
	require.Len(t, actual.Bids, len(expected.Bids))
	for i := range expected.Bids {
		require.Equal(t, expected.Bids[i].BidID, actual.Bids[i].BidID)
		require.Equal(t, expected.Bids[i].BidderID, actual.Bids[i].BidderID)
		require.True(t, expected.Bids[i].Amount.Equal(actual.Bids[i].Amount))
		require.True(t, expected.Bids[i].PlacedAt.Equal(actual.Bids[i].PlacedAt))
	}
}

// runRepositoryContract checks the behaviour every AuctionRepository implementation must share.
// newRepo must return an empty repository.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) AuctionRepository) {
	t.Run("create_and_get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		a := newAuction("a1", baseTime)

		require.NoError(t, repo.Create(ctx, a))

		got, err := repo.Get(ctx, "a1")
		require.NoError(t, err)
		requireSameAuction(t, a, got)

		err = repo.Create(ctx, a)
		require.ErrorIs(t, err, biddingerrors.ErrAuctionExists)

		_, err = repo.Get(ctx, "missing")
		require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
	})

	t.Run("list_newest_first_with_filter", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		older := newAuction("older", baseTime)
		newer := newAuction("newer", baseTime.Add(time.Minute))
		closed := newAuction("closed", baseTime.Add(2*time.Minute))
		closed.Status = model.StatusClosed
		for _, a := range []model.Auction{older, newer, closed} {
			require.NoError(t, repo.Create(ctx, a))
		}

		all, err := repo.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, "closed", all[0].AuctionID)
		require.Equal(t, "newer", all[1].AuctionID)
		require.Equal(t, "older", all[2].AuctionID)

		open := model.StatusOpen
		onlyOpen, err := repo.List(ctx, ListFilter{Status: &open})
		require.NoError(t, err)
		require.Len(t, onlyOpen, 2)
		for _, a := range onlyOpen {
			require.Equal(t, model.StatusOpen, a.Status)
		}
	})

	t.Run("list_empty", func(t *testing.T) {
		repo := newRepo(t)
		all, err := repo.List(context.Background(), ListFilter{})
		require.NoError(t, err)
		require.Empty(t, all)
	})

	t.Run("atomic_update_appends_bids", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newAuction("a1", baseTime)))

		updated, err := repo.AtomicUpdate(ctx, "a1", appendBid("b1", "user1"))
		require.NoError(t, err)
		require.True(t, decimal.RequireFromString("11.50").Equal(updated.CurrentPrice))

		_, err = repo.AtomicUpdate(ctx, "a1", appendBid("b2", "user2"))
		require.NoError(t, err)

		got, err := repo.Get(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, got.Bids, 2)
		require.Equal(t, "b1", got.Bids[0].BidID)
		require.Equal(t, "b2", got.Bids[1].BidID)
		require.True(t, decimal.RequireFromString("12.50").Equal(got.CurrentPrice))
	})

	t.Run("atomic_update_status_change", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newAuction("a1", baseTime)))

		_, err := repo.AtomicUpdate(ctx, "a1", func(current model.Auction) (model.Auction, error) {
			current.Status = model.StatusCancelled
			current.Title = "renamed"
			return current, nil
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, model.StatusCancelled, got.Status)
		require.Equal(t, "renamed", got.Title)
	})

	t.Run("atomic_update_error_aborts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newAuction("a1", baseTime)))

		veto := errors.New("rejected")
		_, err := repo.AtomicUpdate(ctx, "a1", func(current model.Auction) (model.Auction, error) {
			current.Status = model.StatusClosed
			return model.Auction{}, veto
		})
		require.ErrorIs(t, err, veto)

		got, err := repo.Get(ctx, "a1")
		require.NoError(t, err)
		require.Equal(t, model.StatusOpen, got.Status)

		_, err = repo.AtomicUpdate(ctx, "missing", appendBid("b1", "user1"))
		require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
	})

	t.Run("concurrent_atomic_updates_lose_nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newAuction("a1", baseTime)))

		const writers = 16
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = repo.AtomicUpdate(ctx, "a1", appendBid(fmt.Sprintf("b%02d", i), fmt.Sprintf("user%d", i)))
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}

		got, err := repo.Get(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, got.Bids, writers)
		require.True(t, decimal.RequireFromString("10.50").Add(decimal.NewFromInt(writers)).Equal(got.CurrentPrice))
		for i := 1; i < len(got.Bids); i++ {
			require.True(t, got.Bids[i].Amount.GreaterThan(got.Bids[i-1].Amount))
		}
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newAuction("a1", baseTime)))
		_, err := repo.AtomicUpdate(ctx, "a1", appendBid("b1", "user1"))
		require.NoError(t, err)

		veto := errors.New("not yours")
		err = repo.Delete(ctx, "a1", func(model.Auction) error { return veto })
		require.ErrorIs(t, err, veto)

		_, err = repo.Get(ctx, "a1")
		require.NoError(t, err)

		var seen model.Auction
		require.NoError(t, repo.Delete(ctx, "a1", func(current model.Auction) error {
			seen = current
			return nil
		}))
		require.Len(t, seen.Bids, 1)

		_, err = repo.Get(ctx, "a1")
		require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

		all, err := repo.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Empty(t, all)

		err = repo.Delete(ctx, "a1", nil)
		require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
	})
}
