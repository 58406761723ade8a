package alchemy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kslji/trackUserAddress/internal/chain"
	"github.com/kslji/trackUserAddress/internal/domain/model"
)

// GetHeadBlock returns the latest block number via eth_blockNumber.
func (c *Client) GetHeadBlock(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, fmt.Errorf("unmarshal block number: %w", err)
	}

	blockNumber, err := model.ParseHexInt64(hexNum)
	if err != nil {
		return 0, fmt.Errorf("parse block number: %w", err)
	}
	return blockNumber, nil
}

// FetchPage requests one page of asset transfers via alchemy_getAssetTransfers.
func (c *Client) FetchPage(ctx context.Context, req chain.PageRequest) (*chain.Page, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	result, err := c.call(ctx, "alchemy_getAssetTransfers", []interface{}{params})
	if err != nil {
		return nil, fmt.Errorf("alchemy_getAssetTransfers(%s): %w", req.Address, err)
	}

	var decoded AssetTransfersResult
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal asset transfers: %w", err)
	}

	c.logger.Debug("asset transfers page",
		"address", req.Address,
		"from_block", req.FromBlock,
		"to_block", req.ToBlock,
		"count", len(decoded.Transfers),
		"has_more", decoded.PageKey != "",
	)

	return &chain.Page{
		Transfers: decoded.Transfers,
		PageKey:   decoded.PageKey,
	}, nil
}

func (c *Client) buildParams(req chain.PageRequest) (AssetTransfersParams, error) {
	if req.FromBlock < 0 || req.ToBlock < 0 {
		return AssetTransfersParams{}, fmt.Errorf("block window [%d, %d] must be resolved before fetching", req.FromBlock, req.ToBlock)
	}
	if len(req.Categories) == 0 {
		return AssetTransfersParams{}, fmt.Errorf("at least one category is required")
	}
	for _, cat := range req.Categories {
		if cat.IsWildcard() || !cat.Valid() {
			return AssetTransfersParams{}, fmt.Errorf("%w: %q", model.ErrInvalidCategory, cat)
		}
	}

	params := AssetTransfersParams{
		FromBlock:    model.FormatHexInt64(req.FromBlock),
		ToBlock:      model.FormatHexInt64(req.ToBlock),
		Category:     req.Categories,
		WithMetadata: c.withMetadata,
		PageKey:      req.PageKey,
		Order:        "asc",
	}
	if req.PageSize > 0 {
		size := req.PageSize
		if size > maxPageSize {
			size = maxPageSize
		}
		params.MaxCount = model.FormatHexInt64(int64(size))
	}

	switch req.Filter {
	case model.FilterSender:
		params.FromAddress = req.Address
	case model.FilterReceiver:
		params.ToAddress = req.Address
	default:
		return AssetTransfersParams{}, fmt.Errorf("unknown address filter %q", req.Filter)
	}
	return params, nil
}
