package alchemy

import (
	"encoding/json"

	"github.com/kslji/trackUserAddress/internal/domain/model"
)

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// ServerSide reports whether the code is in the JSON-RPC server error range,
// i.e. the provider failed rather than the request being malformed.
func (e *RPCError) ServerSide() bool {
	return e.Code == -32603 || (e.Code <= -32000 && e.Code >= -32099)
}

// AssetTransfersParams is the single params object of alchemy_getAssetTransfers.
type AssetTransfersParams struct {
	FromBlock    string           `json:"fromBlock"`
	ToBlock      string           `json:"toBlock"`
	FromAddress  string           `json:"fromAddress,omitempty"`
	ToAddress    string           `json:"toAddress,omitempty"`
	Category     []model.Category `json:"category"`
	WithMetadata bool             `json:"withMetadata"`
	MaxCount     string           `json:"maxCount,omitempty"`
	PageKey      string           `json:"pageKey,omitempty"`
	Order        string           `json:"order,omitempty"`
}

type AssetTransfersResult struct {
	Transfers []model.TransferEvent `json:"transfers"`
	PageKey   string                `json:"pageKey,omitempty"`
}
