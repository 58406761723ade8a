package store

import (
	"context"

	"github.com/kslji/trackUserAddress/internal/domain/model"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

// CheckpointRepository persists the last processed block per sync key.
// Get normalizes direction with Direction.CheckpointKey; Upsert stores the
// direction as given.
type CheckpointRepository interface {
	Get(ctx context.Context, address string, category model.Category, direction model.Direction) (*model.SyncCheckpoint, error)
	Upsert(ctx context.Context, address string, category model.Category, direction model.Direction, lastBlockProcessed int64) error
}

// TransferRepository persists archived transfers, deduplicated by transaction hash.
type TransferRepository interface {
	// Query returns every record for address up to maxBlock. When category is
	// CategoryAll or direction is DirectionBoth no category/direction predicate
	// is applied.
	Query(ctx context.Context, address string, category model.Category, maxBlock int64, direction model.Direction) ([]model.TransferRecord, error)
	// UpsertBatch inserts or overwrites records keyed by TxHash.
	UpsertBatch(ctx context.Context, records []model.TransferRecord) error
}
