package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kslji/trackUserAddress/internal/domain/model"
)

type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

func (r *CheckpointRepo) Get(ctx context.Context, address string, category model.Category, direction model.Direction) (*model.SyncCheckpoint, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var c model.SyncCheckpoint
	err := r.db.QueryRowContext(ctx, `
		SELECT id, address, category, direction, last_block_processed, created_at, updated_at
		FROM sync_checkpoints
		WHERE address = $1 AND category = $2 AND direction = $3
	`, address, category, direction.CheckpointKey()).Scan(
		&c.ID, &c.Address, &c.Category, &c.Direction,
		&c.LastBlockProcessed, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &c, nil
}

// Upsert overwrites last_block_processed unconditionally; the last writer wins.
// Both is stored under its own row and never touches the From checkpoint.
func (r *CheckpointRepo) Upsert(ctx context.Context, address string, category model.Category, direction model.Direction, lastBlockProcessed int64) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_checkpoints (address, category, direction, last_block_processed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address, category, direction) DO UPDATE SET
			last_block_processed = EXCLUDED.last_block_processed,
			updated_at = now()
	`, address, category, direction, lastBlockProcessed)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}
