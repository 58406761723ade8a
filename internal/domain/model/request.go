package model

import "errors"

// BlockLatest asks the orchestrator to resolve the upper bound from the chain head.
const BlockLatest int64 = -1

// ErrInvalidBlockRange is returned for a negative block bound other than BlockLatest.
var ErrInvalidBlockRange = errors.New("invalid block range")

// SyncRequest describes one synchronize call.
type SyncRequest struct {
	Address   string
	Category  Category
	Direction Direction
	FromBlock int64 // used only when no checkpoint exists; <0 means the configured default
	ToBlock   int64 // BlockLatest resolves from the chain head
	PageSize  int   // 0 means the configured default
}
