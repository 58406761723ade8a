package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransferRecord is one archived ledger transfer, unique by TxHash.
type TransferRecord struct {
	ID          uuid.UUID       `db:"id"`
	TxHash      string          `db:"tx_hash"`
	Address     string          `db:"address"`
	BlockNumber int64           `db:"block_number"`
	Category    Category        `db:"category"`
	Direction   Direction       `db:"direction"` // always a RecordKey value
	Metadata    json.RawMessage `db:"metadata"`  // full remote event
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Transfer is one element of a sync result: either an archived record or an
// event fetched during the current call.
type Transfer struct {
	Record *TransferRecord
	Event  *TransferEvent
}

// Hash returns the transaction hash of the transfer.
func (t Transfer) Hash() string {
	if t.Record != nil {
		return t.Record.TxHash
	}
	if t.Event != nil {
		return t.Event.Hash
	}
	return ""
}

// BlockNumber returns the block the transfer was included in, or -1 if it cannot be decoded.
func (t Transfer) BlockNumber() int64 {
	if t.Record != nil {
		return t.Record.BlockNumber
	}
	if t.Event != nil {
		n, err := t.Event.BlockNumber()
		if err != nil {
			return -1
		}
		return n
	}
	return -1
}

// Payload returns the remote event JSON backing the transfer.
func (t Transfer) Payload() json.RawMessage {
	if t.Record != nil {
		return t.Record.Metadata
	}
	if t.Event != nil {
		return t.Event.Raw()
	}
	return nil
}

// FromRecords wraps archived records as sync results.
func FromRecords(records []TransferRecord) []Transfer {
	out := make([]Transfer, len(records))
	for i := range records {
		out[i] = Transfer{Record: &records[i]}
	}
	return out
}
