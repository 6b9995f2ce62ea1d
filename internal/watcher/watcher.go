// Package watcher tails the chain for new tip events and pushes them to an
// emitter. It is the live counterpart of the full-history aggregation: only
// blocks past the last seen head are queried.
package watcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tipping-analytics/internal/interfaces"
	"tipping-analytics/internal/models"
)

type Watcher struct {
	source    interfaces.LogSource
	emitter   interfaces.TipEmitter
	interval  time.Duration
	logger    *zerolog.Logger
	lastBlock uint64
	primed    bool
}

func New(source interfaces.LogSource, emitter interfaces.TipEmitter, interval time.Duration, logger *zerolog.Logger) *Watcher {
	return &Watcher{
		source:   source,
		emitter:  emitter,
		interval: interval,
		logger:   logger,
	}
}

// Run polls for new blocks until the context is cancelled. Events already in
// history when the watcher starts are not replayed.
func (w *Watcher) Run(ctx context.Context) {
	head, err := w.source.BlockHead(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to get initial block head, will prime on first poll")
	} else {
		w.lastBlock = head
		w.primed = true
	}

	w.logger.Info().
		Uint64("blockNumber", w.lastBlock).
		Msg("Starting tip watcher")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Tip watcher shutting down")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	head, err := w.source.BlockHead(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to get current block head")
		return
	}
	// the first reachable head marks where history ends, nothing before
	// it is replayed
	if !w.primed {
		w.lastBlock = head
		w.primed = true
		return
	}
	if head <= w.lastBlock {
		return
	}

	from, to := w.lastBlock+1, head
	for _, currency := range []models.TipCurrency{models.CurrencyNative, models.CurrencyToken} {
		tips, err := w.source.FilterTipsRange(ctx, currency, from, to)
		if err != nil {
			w.logger.Error().
				Err(err).
				Str("currency", currency.String()).
				Uint64("fromBlock", from).
				Uint64("toBlock", to).
				Msg("Failed to query new tip logs")
			// leave lastBlock untouched so the span is retried next tick
			return
		}
		for _, tip := range tips {
			if err := w.emitter.EmitTip(tip); err != nil {
				w.logger.Error().
					Err(err).
					Str("from", tip.From).
					Uint64("blockNumber", tip.BlockNumber).
					Msg("Error emitting tip event")
			}
		}
	}

	w.lastBlock = head
}
