// Package chain implements the read-only log source against the tipping
// contract: full-history tip log queries, block timestamp resolution and the
// contract's lifetime counters, all over a rate-limited JSON-RPC connection.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tipping-analytics/internal/config"
	"tipping-analytics/internal/interfaces"
	"tipping-analytics/internal/models"
)

const tippingABIJSON = `[
	{"type":"event","name":"ETHTipped","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"message","type":"string","indexed":false}]},
	{"type":"event","name":"TokensTipped","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"message","type":"string","indexed":false}]},
	{"type":"function","name":"getTippingStats","stateMutability":"view","inputs":[],"outputs":[
		{"name":"_totalETHTipped","type":"uint256"},
		{"name":"_totalTokensTipped","type":"uint256"},
		{"name":"_totalTippers","type":"uint256"},
		{"name":"_totalTips","type":"uint256"},
		{"name":"_waifuAddress","type":"address"}]}
]`

var _ interfaces.LogSource = (*Client)(nil)

// Client reads tip events and block metadata from an EVM endpoint.
type Client struct {
	eth        *ethclient.Client
	contract   common.Address
	tipABI     abi.ABI
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     *zerolog.Logger
}

// CustomTransport adds API key authentication to HTTP requests
type CustomTransport struct {
	Base   http.RoundTripper
	ApiKey string
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	if t.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.ApiKey)
	}
	return t.Base.RoundTrip(req)
}

// NewClient dials the configured endpoint and prepares the tipping contract
// ABI for log decoding.
func NewClient(cfg config.ChainConfig, logger *zerolog.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.TippingContract) {
		return nil, fmt.Errorf("invalid tipping contract address: %s", cfg.TippingContract)
	}

	tipABI, err := abi.JSON(strings.NewReader(tippingABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse tipping ABI: %w", err)
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &CustomTransport{
			Base:   http.DefaultTransport,
			ApiKey: cfg.ApiKey,
		},
	}

	rpcClient, err := rpc.DialHTTPWithClient(cfg.RpcEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	// a zero retry budget would skip the query entirely
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		eth:        ethclient.NewClient(rpcClient),
		contract:   common.HexToAddress(cfg.TippingContract),
		tipABI:     tipABI,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		maxRetries: maxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}, nil
}

func (c *Client) eventFor(currency models.TipCurrency) (abi.Event, error) {
	name := "ETHTipped"
	if currency == models.CurrencyToken {
		name = "TokensTipped"
	}
	ev, ok := c.tipABI.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("unknown tip event %s", name)
	}
	return ev, nil
}

// FilterTips returns every tip of the given currency over the full history
// range. No chunking is done; cost grows with total event count.
func (c *Client) FilterTips(ctx context.Context, currency models.TipCurrency) ([]models.TipEvent, error) {
	return c.filterTips(ctx, currency, nil, nil)
}

// FilterTipsRange returns tips of the given currency within an inclusive
// block span.
func (c *Client) FilterTipsRange(ctx context.Context, currency models.TipCurrency, fromBlock, toBlock uint64) ([]models.TipEvent, error) {
	return c.filterTips(ctx, currency, new(big.Int).SetUint64(fromBlock), new(big.Int).SetUint64(toBlock))
}

func (c *Client) filterTips(ctx context.Context, currency models.TipCurrency, fromBlock, toBlock *big.Int) ([]models.TipEvent, error) {
	ev, err := c.eventFor(currency)
	if err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{ev.ID}},
		FromBlock: fromBlock,
		ToBlock:   toBlock,
	}

	var logs []types.Log
	err = c.withRetry(ctx, func() error {
		var ferr error
		logs, ferr = c.eth.FilterLogs(ctx, query)
		return ferr
	})
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("event", ev.Name).
			Msg("Tip log query failed")
		return nil, fmt.Errorf("filter %s logs: %w", ev.Name, err)
	}

	tips := make([]models.TipEvent, 0, len(logs))
	for _, lg := range logs {
		tip, ok := c.decodeTip(lg, currency, ev)
		if !ok {
			continue
		}
		tips = append(tips, tip)
	}
	return tips, nil
}

// decodeTip extracts a TipEvent from a raw log. Malformed records are dropped
// so one bad event cannot abort an otherwise healthy pass.
func (c *Client) decodeTip(lg types.Log, currency models.TipCurrency, ev abi.Event) (models.TipEvent, bool) {
	if len(lg.Topics) != 3 {
		c.logger.Debug().
			Str("event", ev.Name).
			Uint64("blockNumber", lg.BlockNumber).
			Int("topics", len(lg.Topics)).
			Msg("Skipping tip log with unexpected topic count")
		return models.TipEvent{}, false
	}

	values, err := ev.Inputs.NonIndexed().UnpackValues(lg.Data)
	if err != nil || len(values) != 2 {
		c.logger.Debug().
			Err(err).
			Str("event", ev.Name).
			Uint64("blockNumber", lg.BlockNumber).
			Msg("Skipping undecodable tip log")
		return models.TipEvent{}, false
	}

	amount, okAmount := values[0].(*big.Int)
	message, okMessage := values[1].(string)
	if !okAmount || !okMessage || amount == nil {
		c.logger.Debug().
			Str("event", ev.Name).
			Uint64("blockNumber", lg.BlockNumber).
			Msg("Skipping tip log with unexpected field types")
		return models.TipEvent{}, false
	}

	from := strings.ToLower(common.BytesToAddress(lg.Topics[1].Bytes()).Hex())

	return models.TipEvent{
		From:        from,
		Amount:      amount,
		Currency:    currency,
		Message:     message,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
	}, true
}

// BlockTimestamp resolves a block number to its header timestamp.
func (c *Client) BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	var header *types.Header
	err := c.withRetry(ctx, func() error {
		var herr error
		header, herr = c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		return herr
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("header for block %d: %w", blockNumber, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// BlockHead returns the latest block number.
func (c *Client) BlockHead(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.withRetry(ctx, func() error {
		var herr error
		head, herr = c.eth.BlockNumber(ctx)
		return herr
	})
	if err != nil {
		return 0, fmt.Errorf("block head: %w", err)
	}
	return head, nil
}

// TippingTotals reads the contract's lifetime counters via getTippingStats.
func (c *Client) TippingTotals(ctx context.Context) (*models.TippingTotals, error) {
	data, err := c.tipABI.Pack("getTippingStats")
	if err != nil {
		return nil, fmt.Errorf("pack getTippingStats: %w", err)
	}

	var out []byte
	err = c.withRetry(ctx, func() error {
		var cerr error
		out, cerr = c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("call getTippingStats: %w", err)
	}

	values, err := c.tipABI.Unpack("getTippingStats", out)
	if err != nil {
		return nil, fmt.Errorf("unpack getTippingStats: %w", err)
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("getTippingStats returned %d values, want 5", len(values))
	}

	nativeTipped, ok1 := values[0].(*big.Int)
	tokensTipped, ok2 := values[1].(*big.Int)
	totalTippers, ok3 := values[2].(*big.Int)
	totalTips, ok4 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("getTippingStats returned unexpected types")
	}

	return &models.TippingTotals{
		NativeTipped: nativeTipped,
		TokensTipped: tokensTipped,
		TotalTippers: totalTippers.Uint64(),
		TotalTips:    totalTips.Uint64(),
	}, nil
}

// withRetry waits for the rate limiter and runs fn up to maxRetries times.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var err error
	for i := 0; i < c.maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay)
		}
	}
	return err
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
