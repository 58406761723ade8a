package chain

import (
	"context"

	"github.com/kslji/trackUserAddress/internal/domain/model"
)

//go:generate mockgen -source=adapter.go -destination=mocks/mock_adapter.go -package=mocks

// LedgerFetcher gives paginated read access to the ledger's transfer events.
type LedgerFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// HeadSource reports the current chain head block number.
type HeadSource interface {
	GetHeadBlock(ctx context.Context) (int64, error)
}

// PageRequest selects one page of transfers in an inclusive block window.
type PageRequest struct {
	Address    string
	Filter     model.AddressFilter
	Categories []model.Category
	FromBlock  int64
	ToBlock    int64
	PageSize   int
	PageKey    string // empty on the first page
}

// Page is one page of transfers. An empty PageKey means no further pages.
type Page struct {
	Transfers []model.TransferEvent
	PageKey   string
}

// HasMore reports whether the ledger returned a continuation cursor.
func (p *Page) HasMore() bool {
	return p != nil && p.PageKey != ""
}
