package models

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// TipCurrency identifies which of the two tip denominations an event used.
type TipCurrency string

const (
	CurrencyNative TipCurrency = "native"
	CurrencyToken  TipCurrency = "token"
)

func (c TipCurrency) String() string {
	return string(c)
}

// DefaultTipMessage is the placeholder the tipping contract fills in when the
// sender did not write a message. Display layers treat it as empty.
const DefaultTipMessage = "Thanks for the great stream!"

// TipEvent is one decoded tip log record.
//
// BlockNumber is the canonical recency order. Timestamp is resolved
// separately from the block header and is informational only; it must never
// be used as a sort key.
type TipEvent struct {
	From        string      `json:"from"`
	Amount      *big.Int    `json:"amount"`
	Currency    TipCurrency `json:"currency"`
	Message     string      `json:"message"`
	BlockNumber uint64      `json:"block_number"`
	TxHash      string      `json:"tx_hash"`
	Timestamp   time.Time   `json:"timestamp"`
}

// HasCustomMessage reports whether the tip carries a message worth showing.
func (t TipEvent) HasCustomMessage() bool {
	return t.Message != "" && t.Message != DefaultTipMessage
}

// TipperStats aggregates every observed tip from one address. It is rebuilt
// from the event history on each pass and never persisted.
//
// RankingValue is a display-ranking heuristic (native total plus token total
// scaled by a configured rate); it is not a price.
type TipperStats struct {
	Address      string          `json:"address"`
	NativeTotal  *big.Int        `json:"native_total"`
	TokenTotal   *big.Int        `json:"token_total"`
	RankingValue decimal.Decimal `json:"ranking_value"`
	TipCount     int             `json:"tip_count"`
	LastTipBlock uint64          `json:"last_tip_block"`
	LastTip      time.Time       `json:"last_tip,omitzero"`
}

// TippingTotals mirrors the tipping contract's lifetime counters.
type TippingTotals struct {
	NativeTipped *big.Int `json:"native_tipped"`
	TokensTipped *big.Int `json:"tokens_tipped"`
	TotalTippers uint64   `json:"total_tippers"`
	TotalTips    uint64   `json:"total_tips"`
}
