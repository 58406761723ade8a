package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCategory is returned when a category value is outside the supported set.
var ErrInvalidCategory = errors.New("invalid category")

// Category classifies how an asset moved.
type Category string

const (
	CategoryERC20    Category = "erc20"
	CategoryERC721   Category = "erc721"
	CategoryExternal Category = "external"
	CategoryInternal Category = "internal"
	CategoryAll      Category = "all"
)

// DefaultCategory is used when a caller does not name a category.
const DefaultCategory = CategoryAll

// concreteCategories is the expansion of CategoryAll, in request order.
var concreteCategories = []Category{
	CategoryERC20,
	CategoryERC721,
	CategoryExternal,
	CategoryInternal,
}

func (c Category) String() string {
	return string(c)
}

// Valid reports whether c is one of the enumerated categories, including CategoryAll.
func (c Category) Valid() bool {
	switch c {
	case CategoryERC20, CategoryERC721, CategoryExternal, CategoryInternal, CategoryAll:
		return true
	}
	return false
}

// IsWildcard reports whether archive queries for c must skip the category predicate.
func (c Category) IsWildcard() bool {
	return c == CategoryAll
}

// Expand returns the concrete categories c stands for.
func (c Category) Expand() []Category {
	if c == CategoryAll {
		out := make([]Category, len(concreteCategories))
		copy(out, concreteCategories)
		return out
	}
	return []Category{c}
}

// Categories lists every accepted category value.
func Categories() []Category {
	return append(append([]Category(nil), concreteCategories...), CategoryAll)
}

// ParseCategory maps a raw value onto a Category. Empty input yields DefaultCategory.
func ParseCategory(raw string) (Category, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return DefaultCategory, nil
	}
	c := Category(v)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
	}
	return c, nil
}
