// Package aggregator rebuilds per-tipper aggregates from the raw tip event
// history on every call. Nothing is cached or persisted here; each pass is
// independently re-derivable from the chain.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tipping-analytics/internal/config"
	"tipping-analytics/internal/interfaces"
	"tipping-analytics/internal/models"
)

// ErrSourceUnavailable wraps any transport failure from the log source. A
// pass is all-or-nothing: callers must treat this as "data unavailable", not
// as an empty result.
var ErrSourceUnavailable = errors.New("log source unavailable")

const nativeDecimals = 18

// Aggregator computes leaderboards and recent-activity feeds from tip event
// logs. All configuration is injected; there is no ambient contract state.
type Aggregator struct {
	source        interfaces.LogSource
	tokenDecimals int32
	tokenRate     decimal.Decimal
	tsConcurrency int
	logger        *zerolog.Logger
}

func New(source interfaces.LogSource, cfg config.AggregatorConfig, logger *zerolog.Logger) *Aggregator {
	tsConcurrency := cfg.TimestampConcurrency
	if tsConcurrency < 1 {
		tsConcurrency = 1
	}
	return &Aggregator{
		source:        source,
		tokenDecimals: cfg.TokenDecimals,
		tokenRate:     cfg.TokenRate,
		tsConcurrency: tsConcurrency,
		logger:        logger,
	}
}

// fetchAll issues the two full-history queries concurrently and merges the
// results only after both complete.
func (a *Aggregator) fetchAll(ctx context.Context) ([]models.TipEvent, error) {
	var nativeTips, tokenTips []models.TipEvent

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nativeTips, err = a.source.FilterTips(gctx, models.CurrencyNative)
		return err
	})
	g.Go(func() error {
		var err error
		tokenTips, err = a.source.FilterTips(gctx, models.CurrencyToken)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	merged := make([]models.TipEvent, 0, len(nativeTips)+len(tokenTips))
	merged = append(merged, nativeTips...)
	merged = append(merged, tokenTips...)
	return merged, nil
}

// TopTippers replays the full tip history and returns at most topN tippers
// ordered by ranking value. An empty history yields an empty slice, not an
// error.
func (a *Aggregator) TopTippers(ctx context.Context, topN int) ([]models.TipperStats, error) {
	if topN <= 0 {
		topN = 5
	}

	tips, err := a.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	byAddress := make(map[string]*models.TipperStats)
	for _, tip := range tips {
		a.accumulate(byAddress, tip)
	}

	ranked := make([]models.TipperStats, 0, len(byAddress))
	for _, stats := range byAddress {
		stats.RankingValue = a.rankingValue(stats)
		// Exact-zero totals never make the board.
		if stats.RankingValue.IsZero() {
			continue
		}
		ranked = append(ranked, *stats)
	}

	// Ties order by address so repeated passes agree regardless of query
	// result ordering.
	sort.Slice(ranked, func(i, j int) bool {
		cmp := ranked[i].RankingValue.Cmp(ranked[j].RankingValue)
		if cmp != 0 {
			return cmp > 0
		}
		return ranked[i].Address < ranked[j].Address
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	a.logger.Debug().
		Int("events", len(tips)).
		Int("tippers", len(ranked)).
		Msg("Computed top tippers")

	return ranked, nil
}

// RecentTips replays the full tip history, resolves every event's block
// timestamp, and returns at most limit events newest-first by block number.
func (a *Aggregator) RecentTips(ctx context.Context, limit int) ([]models.TipEvent, error) {
	if limit <= 0 {
		limit = 5
	}

	tips, err := a.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.resolveTimestamps(ctx, tips); err != nil {
		return nil, err
	}

	// Block number is the canonical order; header timestamps can lag and are
	// display-only.
	sort.Slice(tips, func(i, j int) bool {
		if tips[i].BlockNumber != tips[j].BlockNumber {
			return tips[i].BlockNumber > tips[j].BlockNumber
		}
		if tips[i].Currency != tips[j].Currency {
			return tips[i].Currency == models.CurrencyNative
		}
		return tips[i].From < tips[j].From
	})

	if len(tips) > limit {
		tips = tips[:limit]
	}
	return tips, nil
}

// TipperStats replays the history for a single address: totals, tip count
// and the time of the most recent tip.
func (a *Aggregator) TipperStats(ctx context.Context, address string) (*models.TipperStats, error) {
	address = strings.ToLower(address)

	tips, err := a.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	byAddress := make(map[string]*models.TipperStats)
	for _, tip := range tips {
		if strings.ToLower(tip.From) != address {
			continue
		}
		a.accumulate(byAddress, tip)
	}

	stats, ok := byAddress[address]
	if !ok {
		stats = &models.TipperStats{
			Address:     address,
			NativeTotal: new(big.Int),
			TokenTotal:  new(big.Int),
		}
	}
	stats.RankingValue = a.rankingValue(stats)

	if stats.LastTipBlock > 0 {
		ts, err := a.source.BlockTimestamp(ctx, stats.LastTipBlock)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		stats.LastTip = ts
	}
	return stats, nil
}

// accumulate folds one event into the per-address aggregates, dropping
// records missing required fields.
func (a *Aggregator) accumulate(byAddress map[string]*models.TipperStats, tip models.TipEvent) {
	if tip.From == "" || tip.Amount == nil {
		a.logger.Debug().
			Uint64("blockNumber", tip.BlockNumber).
			Str("currency", tip.Currency.String()).
			Msg("Dropping tip event with missing fields")
		return
	}

	addr := strings.ToLower(tip.From)
	stats, ok := byAddress[addr]
	if !ok {
		stats = &models.TipperStats{
			Address:     addr,
			NativeTotal: new(big.Int),
			TokenTotal:  new(big.Int),
		}
		byAddress[addr] = stats
	}

	switch tip.Currency {
	case models.CurrencyNative:
		stats.NativeTotal.Add(stats.NativeTotal, tip.Amount)
	case models.CurrencyToken:
		stats.TokenTotal.Add(stats.TokenTotal, tip.Amount)
	default:
		return
	}

	stats.TipCount++
	if tip.BlockNumber > stats.LastTipBlock {
		stats.LastTipBlock = tip.BlockNumber
	}
}

// rankingValue folds both totals into one comparable scalar: the native
// total plus the token total scaled by the configured conversion rate. It is
// a sort key, never a price.
func (a *Aggregator) rankingValue(stats *models.TipperStats) decimal.Decimal {
	native := decimal.NewFromBigInt(stats.NativeTotal, -nativeDecimals)
	token := decimal.NewFromBigInt(stats.TokenTotal, -a.tokenDecimals).Mul(a.tokenRate)
	return native.Add(token)
}

// resolveTimestamps fills every event's Timestamp with bounded fan-out. The
// sort that follows needs all of them, so any failure aborts the pass.
func (a *Aggregator) resolveTimestamps(ctx context.Context, tips []models.TipEvent) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.tsConcurrency)

	for i := range tips {
		i := i // per-iteration copy; required under Go <1.22 loop semantics
		g.Go(func() error {
			ts, err := a.source.BlockTimestamp(gctx, tips[i].BlockNumber)
			if err != nil {
				return err
			}
			tips[i].Timestamp = ts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return nil
}
