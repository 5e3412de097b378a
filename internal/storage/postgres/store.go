package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GoJackzi/zamauction/internal/model"
)

// Store provides Postgres persistence for snapshot history.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveSnapshot inserts one snapshot row plus its ledger rows.
func (s *Store) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var snapshotID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO snapshots (
			captured_at, partial, total_shielded, total_unshielded, tvs, total_bids, canceled_bids
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		snap.CapturedAt,
		snap.Partial,
		snap.Summary.TotalShielded,
		snap.Summary.TotalUnshielded,
		snap.Summary.TVS,
		snap.Summary.TotalBids,
		snap.Summary.CanceledBids,
	).Scan(&snapshotID)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, ledger := range snap.Users {
		batch.Queue(`
			INSERT INTO snapshot_ledgers (
				snapshot_id, address, total_deposited, total_withdrawn, net_balance,
				deposit_count, bid_count, avg_bid_price, estimated_qty
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			snapshotID,
			ledger.Address,
			ledger.TotalDeposited,
			ledger.TotalWithdrawn,
			ledger.NetBalance,
			ledger.DepositCount,
			ledger.BidCount,
			ledger.AvgBidPrice,
			ledger.EstimatedQty,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range snap.Users {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert ledger: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
