package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const auctionColumns = `id, title, description, starting_price::text, current_price::text,
	created_by, auction_end_time, status, created_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepo stores auctions in Postgres. Writers take a row lock with SELECT ... FOR UPDATE,
// so a second bidder waits for the first commit and then sees the committed price.
type PostgresRepo struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewPostgresPool opens and pings a pgx connection pool
func NewPostgresPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresRepo creates a Postgres-backed repository
func NewPostgresRepo(pool *pgxpool.Pool, maxRetries int) *PostgresRepo {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &PostgresRepo{pool: pool, maxRetries: maxRetries}
}

// Get loads an auction with its bids
func (r *PostgresRepo) Get(ctx context.Context, auctionID string) (model.Auction, error) {
	a, err := loadAuction(ctx, r.pool, auctionID, false)
	if err != nil {
		return model.Auction{}, err
	}
	if a.Bids, err = loadBids(ctx, r.pool, auctionID); err != nil {
		return model.Auction{}, err
	}
	return a, nil
}

// List returns matching auctions newest first, bids populated
func (r *PostgresRepo) List(ctx context.Context, filter ListFilter) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	auctions, err := pgx.CollectRows(rows, scanAuction)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	if len(auctions) == 0 {
		return []model.Auction{}, nil
	}

	ids := make([]string, len(auctions))
	index := make(map[string]int, len(auctions))
	for i, a := range auctions {
		ids[i] = a.AuctionID
		index[a.AuctionID] = i
	}

	bidRows, err := r.pool.Query(ctx,
		`SELECT auction_id, id, bidder_id, amount::text, placed_at
		   FROM bids WHERE auction_id = ANY($1) ORDER BY auction_id, seq`, ids)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer bidRows.Close()

	for bidRows.Next() {
		var auctionID, amount string
		var b model.Bid
		if err := bidRows.Scan(&auctionID, &b.BidID, &b.BidderID, &amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse bid amount: %w", err)
		}
		b.PlacedAt = b.PlacedAt.UTC()
		i := index[auctionID]
		auctions[i].Bids = append(auctions[i].Bids, b)
	}
	if err := bidRows.Err(); err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return auctions, nil
}

// Create inserts a new auction
func (r *PostgresRepo) Create(ctx context.Context, auction model.Auction) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO auctions (id, title, description, starting_price, current_price,
			                       created_by, auction_end_time, status, created_at)
			 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9)`,
			auction.AuctionID, auction.Title, auction.Description,
			auction.StartingPrice.String(), auction.CurrentPrice.String(),
			auction.CreatedBy, auction.AuctionEndTime, string(auction.Status), auction.CreatedAt)
		if err != nil {
			return err
		}
		return insertBids(ctx, tx, auction.AuctionID, 0, auction.Bids)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	if err != nil {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, err)
	}
	return nil
}

// AtomicUpdate locks the auction row, applies fn and writes the result in one transaction
func (r *PostgresRepo) AtomicUpdate(ctx context.Context, auctionID string, fn MutateFunc) (model.Auction, error) {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		var committed model.Auction
		err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			current, err := loadAuction(ctx, tx, auctionID, true)
			if err != nil {
				return err
			}
			if current.Bids, err = loadBids(ctx, tx, auctionID); err != nil {
				return err
			}

			next, err := fn(current.Clone())
			if err != nil {
				return err
			}
			if len(next.Bids) < len(current.Bids) {
				return fmt.Errorf("update auction %s: bid history is append-only", auctionID)
			}

			_, err = tx.Exec(ctx,
				`UPDATE auctions
				    SET title = $2, description = $3, current_price = $4::numeric,
				        auction_end_time = $5, status = $6
				  WHERE id = $1`,
				auctionID, next.Title, next.Description, next.CurrentPrice.String(),
				next.AuctionEndTime, string(next.Status))
			if err != nil {
				return err
			}
			if err := insertBids(ctx, tx, auctionID, len(current.Bids), next.Bids[len(current.Bids):]); err != nil {
				return err
			}
			committed = next
			return nil
		})
		if err == nil {
			return committed, nil
		}
		if retryable(err) {
			continue
		}
		return model.Auction{}, err
	}
	return model.Auction{}, fmt.Errorf("update auction %s: %w", auctionID, biddingerrors.ErrConflict)
}

// Delete removes the auction; bids go with it through ON DELETE CASCADE
func (r *PostgresRepo) Delete(ctx context.Context, auctionID string, check CheckFunc) error {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			current, err := loadAuction(ctx, tx, auctionID, true)
			if err != nil {
				return err
			}
			if check != nil {
				if current.Bids, err = loadBids(ctx, tx, auctionID); err != nil {
					return err
				}
				if err := check(current); err != nil {
					return err
				}
			}
			_, err = tx.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, auctionID)
			return err
		})
		if err == nil {
			return nil
		}
		if retryable(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("delete auction %s: %w", auctionID, biddingerrors.ErrConflict)
}

func loadAuction(ctx context.Context, q querier, auctionID string, forUpdate bool) (model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAuction)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return a, nil
}

func loadBids(ctx context.Context, q querier, auctionID string) ([]model.Bid, error) {
	rows, err := q.Query(ctx,
		`SELECT id, bidder_id, amount::text, placed_at FROM bids WHERE auction_id = $1 ORDER BY seq`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	bids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Bid, error) {
		var b model.Bid
		var amount string
		if err := row.Scan(&b.BidID, &b.BidderID, &amount, &b.PlacedAt); err != nil {
			return model.Bid{}, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return model.Bid{}, err
		}
		b.Amount = d
		b.PlacedAt = b.PlacedAt.UTC()
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

func insertBids(ctx context.Context, tx pgx.Tx, auctionID string, firstSeq int, bids []model.Bid) error {
	for i, b := range bids {
		_, err := tx.Exec(ctx,
			`INSERT INTO bids (id, auction_id, seq, bidder_id, amount, placed_at)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
			b.BidID, auctionID, firstSeq+i, b.BidderID, b.Amount.String(), b.PlacedAt)
		if err != nil {
			return fmt.Errorf("insert bid %s: %w", b.BidID, err)
		}
	}
	return nil
}

func scanAuction(row pgx.CollectableRow) (model.Auction, error) {
	var a model.Auction
	var startingPrice, currentPrice, status string
	err := row.Scan(&a.AuctionID, &a.Title, &a.Description, &startingPrice, &currentPrice,
		&a.CreatedBy, &a.AuctionEndTime, &status, &a.CreatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	if a.StartingPrice, err = decimal.NewFromString(startingPrice); err != nil {
		return model.Auction{}, err
	}
	if a.CurrentPrice, err = decimal.NewFromString(currentPrice); err != nil {
		return model.Auction{}, err
	}
	a.Status = model.Status(status)
	a.AuctionEndTime = a.AuctionEndTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.Bids = []model.Bid{}
	return a, nil
}

// retryable reports serialization failures and deadlocks, which are safe to retry
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
