package alchemy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kslji/trackUserAddress/internal/chain/ratelimit"
	"github.com/kslji/trackUserAddress/internal/circuitbreaker"
	"github.com/kslji/trackUserAddress/internal/metrics"
)

const (
	providerName       = "alchemy"
	defaultHTTPTimeout = 30 * time.Second
	maxPageSize        = 1000
)

// Client talks JSON-RPC to an Alchemy endpoint. It implements
// chain.LedgerFetcher and chain.HeadSource. Calls are rate limited and
// guarded by a circuit breaker; failures are returned, never retried.
type Client struct {
	httpClient   *http.Client
	rpcURL       string
	requestID    atomic.Int64
	limiter      *ratelimit.Limiter
	breaker      *circuitbreaker.Breaker
	withMetadata bool
	logger       *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = ratelimit.NewLimiter(rps, burst, providerName)
	}
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithMetadata toggles withMetadata on asset transfer requests (block timestamps).
func WithMetadata(enabled bool) Option {
	return func(c *Client) {
		c.withMetadata = enabled
	}
}

func NewClient(rpcURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		rpcURL:       rpcURL,
		withMetadata: true,
		logger:       logger.With("component", "alchemy"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(circuitbreaker.Config{}, c.logger)
	}
	return c
}

// NewBreaker builds a breaker that only counts provider-side failures and
// mirrors its state into metrics.
func NewBreaker(cfg circuitbreaker.Config, logger *slog.Logger) *circuitbreaker.Breaker {
	cfg.IsFailure = isProviderFailure
	onChange := cfg.OnStateChange
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		metrics.RPCCircuitState.WithLabelValues(providerName).Set(float64(to))
		if logger != nil {
			logger.Warn("ledger circuit state changed", "from", from.String(), "to", to.String())
		}
		if onChange != nil {
			onChange(from, to)
		}
	}
	return circuitbreaker.New(cfg)
}

func isProviderFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.ServerSide()
	}
	return true
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		ratelimit.RecordRPCCall(providerName, method, err)
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var result json.RawMessage
	err := c.breaker.Execute(func() error {
		var callErr error
		result, callErr = c.do(ctx, method, params)
		return callErr
	})
	ratelimit.RecordRPCCall(providerName, method, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := Request{
		JSONRPC: "2.0",
		ID:      int(c.requestID.Add(1)),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}
