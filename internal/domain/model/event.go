package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TransferEvent is a transfer as reported by the ledger collaborator.
// The decoded fields are a convenience view; Raw keeps the original payload.
type TransferEvent struct {
	Hash          string            `json:"hash"`
	BlockNum      string            `json:"blockNum"` // hex encoded
	UniqueID      string            `json:"uniqueId,omitempty"`
	Category      Category          `json:"category"`
	From          string            `json:"from"`
	To            string            `json:"to"`
	Value         *float64          `json:"value"`
	Asset         string            `json:"asset"`
	ERC721TokenID string            `json:"erc721TokenId,omitempty"`
	TokenID       string            `json:"tokenId,omitempty"`
	RawContract   *RawContract      `json:"rawContract,omitempty"`
	Metadata      *TransferMetadata `json:"metadata,omitempty"`

	raw json.RawMessage
}

type RawContract struct {
	Value   string `json:"value,omitempty"`
	Address string `json:"address,omitempty"`
	Decimal string `json:"decimal,omitempty"`
}

type TransferMetadata struct {
	BlockTimestamp string `json:"blockTimestamp,omitempty"`
}

type transferEventAlias TransferEvent

// UnmarshalJSON decodes the known fields and retains the full payload.
func (e *TransferEvent) UnmarshalJSON(data []byte) error {
	var decoded transferEventAlias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*e = TransferEvent(decoded)
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Raw returns the payload the event was decoded from, or a re-encoding of the
// decoded fields when the event was built in code.
func (e *TransferEvent) Raw() json.RawMessage {
	if len(e.raw) > 0 {
		return e.raw
	}
	encoded, err := json.Marshal(transferEventAlias(*e))
	if err != nil {
		return nil
	}
	return encoded
}

// BlockNumber decodes the hex block field.
func (e *TransferEvent) BlockNumber() (int64, error) {
	return ParseHexInt64(e.BlockNum)
}

// ParseHexInt64 parses a 0x-prefixed quantity. "0x" decodes to zero.
func ParseHexInt64(value string) (int64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 16, 63)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	return int64(parsed), nil
}

// FormatHexInt64 renders value as a 0x-prefixed quantity.
func FormatHexInt64(value int64) string {
	return fmt.Sprintf("0x%x", value)
}
