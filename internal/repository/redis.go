package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	redisAuctionPrefix  = "auction:"
	redisCreatedIndex   = "auctions:by_created"
	redisListBatchLimit = 500
)

// RedisRepo stores auctions as JSON documents and serialises writers with WATCH/MULTI.
// A transaction aborted by a concurrent writer is retried up to maxRetries times.
type RedisRepo struct {
	client     redis.UniversalClient
	maxRetries int
}

// NewRedisRepo creates a Redis-backed repository
func NewRedisRepo(client redis.UniversalClient, maxRetries int) *RedisRepo {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RedisRepo{client: client, maxRetries: maxRetries}
}

func auctionKey(auctionID string) string {
	return redisAuctionPrefix + auctionID
}

// Get loads an auction document
func (r *RedisRepo) Get(ctx context.Context, auctionID string) (model.Auction, error) {
	raw, err := r.client.Get(ctx, auctionKey(auctionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return decodeAuction(raw)
}

// List walks the creation index newest first and loads documents in batches
func (r *RedisRepo) List(ctx context.Context, filter ListFilter) ([]model.Auction, error) {
	ids, err := r.client.ZRevRange(ctx, redisCreatedIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}

	auctions := make([]model.Auction, 0, len(ids))
	for start := 0; start < len(ids); start += redisListBatchLimit {
		end := min(start+redisListBatchLimit, len(ids))
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, auctionKey(id))
		}

		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("list auctions: %w", err)
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				// deleted between ZREVRANGE and MGET
				continue
			}
			a, err := decodeAuction([]byte(s))
			if err != nil {
				return nil, err
			}
			if filter.Status != nil && a.Status != *filter.Status {
				continue
			}
			auctions = append(auctions, a)
		}
	}
	return auctions, nil
}

// createdScore is the index score of a creation time. Microseconds stay exact in a float64
// score, nanoseconds since the epoch do not.
func createdScore(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// Create stores a new auction and indexes it by creation time
func (r *RedisRepo) Create(ctx context.Context, auction model.Auction) error {
	key := auctionKey(auction.AuctionID)
	data, err := json.Marshal(auction)
	if err != nil {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return biddingerrors.ErrAuctionExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, redisCreatedIndex, redis.Z{
				Score:  createdScore(auction.CreatedAt),
				Member: auction.AuctionID,
			})
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, err)
	}
	return nil
}

// AtomicUpdate runs fn inside an optimistic WATCH transaction on the auction key
func (r *RedisRepo) AtomicUpdate(ctx context.Context, auctionID string, fn MutateFunc) (model.Auction, error) {
	key := auctionKey(auctionID)
	var committed model.Auction

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return biddingerrors.ErrAuctionNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeAuction(raw)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			committed = next
		}
		return err
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return committed, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, biddingerrors.ErrAuctionNotFound):
			return model.Auction{}, fmt.Errorf("update auction %s: %w", auctionID, err)
		default:
			return model.Auction{}, err
		}
	}
	return model.Auction{}, fmt.Errorf("update auction %s: %w", auctionID, biddingerrors.ErrConflict)
}

// Delete removes the document and its index entry if check allows it
func (r *RedisRepo) Delete(ctx context.Context, auctionID string, check CheckFunc) error {
	key := auctionKey(auctionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return biddingerrors.ErrAuctionNotFound
		}
		if err != nil {
			return err
		}
		if check != nil {
			current, err := decodeAuction(raw)
			if err != nil {
				return err
			}
			if err := check(current); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, redisCreatedIndex, auctionID)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, biddingerrors.ErrAuctionNotFound):
			return fmt.Errorf("delete auction %s: %w", auctionID, err)
		default:
			return err
		}
	}
	return fmt.Errorf("delete auction %s: %w", auctionID, biddingerrors.ErrConflict)
}

func decodeAuction(raw []byte) (model.Auction, error) {
	var a model.Auction
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.Auction{}, fmt.Errorf("decode auction: %w", err)
	}
	if a.Bids == nil {
		a.Bids = []model.Bid{}
	}
	return a, nil
}
