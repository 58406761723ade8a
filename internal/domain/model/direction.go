package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDirection is returned when a direction value is outside the supported set.
var ErrInvalidDirection = errors.New("invalid direction")

// Direction is the orientation of a transfer relative to the tracked address.
type Direction string

const (
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
	DirectionBoth Direction = "both"
)

// DefaultDirection is used when a caller does not name a direction.
const DefaultDirection = DirectionFrom

// AddressFilter selects which side of a transfer the ledger query matches on.
type AddressFilter string

const (
	FilterSender   AddressFilter = "sender"
	FilterReceiver AddressFilter = "receiver"
)

func (d Direction) String() string {
	return string(d)
}

func (d Direction) Valid() bool {
	switch d {
	case DirectionFrom, DirectionTo, DirectionBoth:
		return true
	}
	return false
}

// IsWildcard reports whether archive queries for d must skip the direction predicate.
func (d Direction) IsWildcard() bool {
	return d == DirectionBoth
}

// CheckpointKey is the direction whose checkpoint row a request reads.
// Both reads the From row. Writes always use d itself, so a receiver-only
// Both fetch never advances From coverage.
func (d Direction) CheckpointKey() Direction {
	if d == DirectionBoth {
		return DirectionFrom
	}
	return d
}

// RecordKey is the persisted direction for archived transfers.
// Both is fetched receiver-side, so its records are stored as To.
func (d Direction) RecordKey() Direction {
	if d == DirectionBoth {
		return DirectionTo
	}
	return d
}

// AddressFilter maps d onto the ledger query side. Both matches the receiver only.
func (d Direction) AddressFilter() AddressFilter {
	if d == DirectionFrom {
		return FilterSender
	}
	return FilterReceiver
}

// Directions lists every accepted direction value.
func Directions() []Direction {
	return []Direction{DirectionFrom, DirectionTo, DirectionBoth}
}

// ParseDirection maps a raw value onto a Direction. Empty input yields DefaultDirection.
func ParseDirection(raw string) (Direction, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return DefaultDirection, nil
	}
	d := Direction(v)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
	return d, nil
}
