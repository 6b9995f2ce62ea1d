package emitters

import (
	"tipping-analytics/internal/format"
	"tipping-analytics/internal/interfaces"
	"tipping-analytics/internal/logger"
	"tipping-analytics/internal/models"
)

// PrintEmitter logs every observed tip and forwards it to the wrapped
// emitter, if any. Useful when Kafka is disabled.
type PrintEmitter struct {
	WrappedEmitter interfaces.TipEmitter
}

func (p *PrintEmitter) EmitTip(event models.TipEvent) error {
	logger.GetLogger().Info().
		Str("from", format.ShortenAddress(event.From)).
		Str("amount", event.Amount.String()).
		Str("currency", event.Currency.String()).
		Uint64("blockNumber", event.BlockNumber).
		Str("txHash", event.TxHash).
		Msg("Observed tip")

	if event.HasCustomMessage() {
		logger.GetLogger().Info().
			Str("from", format.ShortenAddress(event.From)).
			Str("message", event.Message).
			Msg("Tip message")
	}

	if p.WrappedEmitter != nil {
		return p.WrappedEmitter.EmitTip(event)
	}
	return nil
}
