package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kslji/trackUserAddress/internal/domain/model"
)

const transferColumns = 6 // tx_hash, address, block_number, category, direction, metadata

type TransferRepo struct {
	db *DB
}

func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

// Query returns archived transfers for address up to maxBlock, oldest first.
func (r *TransferRepo) Query(ctx context.Context, address string, category model.Category, maxBlock int64, direction model.Direction) ([]model.TransferRecord, error) {
	query, args, err := buildTransferQuery(address, category, maxBlock, direction)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []model.TransferRecord
	for rows.Next() {
		var t model.TransferRecord
		if err := rows.Scan(
			&t.ID, &t.TxHash, &t.Address, &t.BlockNumber,
			&t.Category, &t.Direction, &t.Metadata,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("query transfers scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query transfers rows: %w", err)
	}
	return out, nil
}

// buildTransferQuery applies the wildcard rule: CategoryAll or DirectionBoth
// drops both the category and the direction predicate.
func buildTransferQuery(address string, category model.Category, maxBlock int64, direction model.Direction) (string, []interface{}, error) {
	const selectCols = `
		SELECT id, tx_hash, address, block_number, category, direction, metadata, created_at, updated_at
		FROM transfers`
	const order = `
		ORDER BY block_number ASC, tx_hash ASC`

	if direction.IsWildcard() || category.IsWildcard() {
		return selectCols + `
		WHERE address = $1 AND block_number <= $2` + order,
			[]interface{}{address, maxBlock}, nil
	}

	switch category {
	case model.CategoryERC20, model.CategoryERC721, model.CategoryExternal, model.CategoryInternal:
	default:
		return "", nil, model.ErrInvalidCategory
	}

	return selectCols + `
		WHERE address = $1 AND category = $2 AND block_number <= $3 AND direction = $4` + order,
		[]interface{}{address, category, maxBlock, direction.RecordKey()}, nil
}

// UpsertBatch writes records in one multi-VALUES INSERT ... ON CONFLICT (tx_hash).
// Repeated hashes within the batch keep their last occurrence.
func (r *TransferRepo) UpsertBatch(ctx context.Context, records []model.TransferRecord) error {
	records = dedupeByHash(records)
	if len(records) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(records)*transferColumns)
	valuesClauses := make([]string, 0, len(records))

	for i, t := range records {
		base := i * transferColumns
		valuesClauses = append(valuesClauses, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		metadata := t.Metadata
		if len(metadata) == 0 {
			metadata = json.RawMessage("{}")
		}
		args = append(args,
			t.TxHash, t.Address, t.BlockNumber,
			t.Category, t.Direction, []byte(metadata),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO transfers (tx_hash, address, block_number, category, direction, metadata)
		VALUES %s
		ON CONFLICT (tx_hash) DO UPDATE SET
			address = EXCLUDED.address,
			block_number = EXCLUDED.block_number,
			category = EXCLUDED.category,
			direction = EXCLUDED.direction,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, strings.Join(valuesClauses, ", "))

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("bulk upsert transfers: %w", err)
	}
	return nil
}

func dedupeByHash(records []model.TransferRecord) []model.TransferRecord {
	if len(records) < 2 {
		return records
	}
	last := make(map[string]int, len(records))
	for i, t := range records {
		last[t.TxHash] = i
	}
	if len(last) == len(records) {
		return records
	}
	out := make([]model.TransferRecord, 0, len(last))
	for i, t := range records {
		if last[t.TxHash] == i {
			out = append(out, t)
		}
	}
	return out
}
