package interfaces

import (
	"context"
	"time"

	"tipping-analytics/internal/models"
)

// LogSource is the read-only chain boundary the aggregation core consumes.
// Implementations must fail loudly on transport errors rather than returning
// partial data.
type LogSource interface {
	// FilterTips returns every tip event of the given currency over the full
	// chain history (earliest to latest). Timestamps are left unresolved.
	FilterTips(ctx context.Context, currency models.TipCurrency) ([]models.TipEvent, error)

	// FilterTipsRange is FilterTips restricted to an inclusive block span.
	FilterTipsRange(ctx context.Context, currency models.TipCurrency, fromBlock, toBlock uint64) ([]models.TipEvent, error)

	// BlockTimestamp resolves a block number to its header timestamp.
	BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)

	// BlockHead returns the latest block number.
	BlockHead(ctx context.Context) (uint64, error)
}

// TipEmitter publishes observed tip events downstream.
type TipEmitter interface {
	EmitTip(event models.TipEvent) error
}
