package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncCheckpoint records the last block fully processed for one sync key.
type SyncCheckpoint struct {
	ID                 uuid.UUID `db:"id"`
	Address            string    `db:"address"`
	Category           Category  `db:"category"`
	Direction          Direction `db:"direction"`
	LastBlockProcessed int64     `db:"last_block_processed"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// Covers reports whether the checkpoint already spans block.
func (c *SyncCheckpoint) Covers(block int64) bool {
	return c != nil && c.LastBlockProcessed >= block
}
