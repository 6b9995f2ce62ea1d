package aggregator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipping-analytics/internal/config"
	"tipping-analytics/internal/models"
)

// mockSource is an in-memory LogSource with controllable failures.
type mockSource struct {
	mu         sync.Mutex
	nativeTips []models.TipEvent
	tokenTips  []models.TipEvent
	nativeErr  error
	tokenErr   error
	tsErr      error
	tsCalls    int
}

func (m *mockSource) FilterTips(_ context.Context, currency models.TipCurrency) ([]models.TipEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if currency == models.CurrencyNative {
		if m.nativeErr != nil {
			return nil, m.nativeErr
		}
		return append([]models.TipEvent(nil), m.nativeTips...), nil
	}
	if m.tokenErr != nil {
		return nil, m.tokenErr
	}
	return append([]models.TipEvent(nil), m.tokenTips...), nil
}

func (m *mockSource) FilterTipsRange(ctx context.Context, currency models.TipCurrency, fromBlock, toBlock uint64) ([]models.TipEvent, error) {
	all, err := m.FilterTips(ctx, currency)
	if err != nil {
		return nil, err
	}
	var out []models.TipEvent
	for _, tip := range all {
		if tip.BlockNumber >= fromBlock && tip.BlockNumber <= toBlock {
			out = append(out, tip)
		}
	}
	return out, nil
}

func (m *mockSource) BlockTimestamp(_ context.Context, blockNumber uint64) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tsCalls++
	if m.tsErr != nil {
		return time.Time{}, m.tsErr
	}
	return time.Unix(1700000000+int64(blockNumber), 0).UTC(), nil
}

func (m *mockSource) BlockHead(_ context.Context) (uint64, error) {
	return 100, nil
}

func testConfig() config.AggregatorConfig {
	return config.AggregatorConfig{
		TokenDecimals:        18,
		TokenSymbol:          "WAIFU",
		TokenRate:            decimal.RequireFromString("0.001"),
		LeaderboardSize:      5,
		RecentTipsSize:       5,
		TimestampConcurrency: 4,
	}
}

func newTestAggregator(source *mockSource) *Aggregator {
	logger := zerolog.New(nil)
	return New(source, testConfig(), &logger)
}

func units(n int64) *big.Int {
	// n whole units at 18 decimals
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func tip(from string, amount *big.Int, currency models.TipCurrency, block uint64) models.TipEvent {
	return models.TipEvent{
		From:        from,
		Amount:      amount,
		Currency:    currency,
		Message:     models.DefaultTipMessage,
		BlockNumber: block,
	}
}

func TestTopTippersMergesBothCurrencies(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{tip("0xaaa1", units(1), models.CurrencyNative, 10)},
		tokenTips:  []models.TipEvent{tip("0xaaa1", units(500), models.CurrencyToken, 11)},
	}
	agg := newTestAggregator(source)

	tippers, err := agg.TopTippers(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tippers, 1)

	got := tippers[0]
	assert.Equal(t, "0xaaa1", got.Address)
	assert.Equal(t, units(1), got.NativeTotal)
	assert.Equal(t, units(500), got.TokenTotal)
	// 1.0 native + 500 tokens * 0.001
	assert.True(t, got.RankingValue.Equal(decimal.RequireFromString("1.5")),
		"ranking value = %s", got.RankingValue)
	assert.Equal(t, 2, got.TipCount)
	assert.Equal(t, uint64(11), got.LastTipBlock)
}

func TestTopTippersRankingOrder(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{
			tip("0xbbb2", units(1), models.CurrencyNative, 10),
			tip("0xaaa1", units(2), models.CurrencyNative, 11),
			tip("0xccc3", units(3), models.CurrencyNative, 12),
		},
	}
	agg := newTestAggregator(source)

	tippers, err := agg.TopTippers(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tippers, 3)
	assert.Equal(t, "0xccc3", tippers[0].Address)
	assert.Equal(t, "0xaaa1", tippers[1].Address)
	assert.Equal(t, "0xbbb2", tippers[2].Address)
}

func TestTopTippersTieBreaksByAddress(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{
			tip("0xccc3", units(1), models.CurrencyNative, 10),
			tip("0xaaa1", units(1), models.CurrencyNative, 11),
		},
	}
	agg := newTestAggregator(source)

	tippers, err := agg.TopTippers(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tippers, 2)
	assert.Equal(t, "0xaaa1", tippers[0].Address)
	assert.Equal(t, "0xccc3", tippers[1].Address)
}

func TestTopTippersFiltersZeroTotals(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{
			tip("0xaaa1", big.NewInt(0), models.CurrencyNative, 10),
			tip("0xbbb2", units(1), models.CurrencyNative, 11),
		},
		tokenTips: []models.TipEvent{
			tip("0xaaa1", big.NewInt(0), models.CurrencyToken, 12),
		},
	}
	agg := newTestAggregator(source)

	tippers, err := agg.TopTippers(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tippers, 1)
	assert.Equal(t, "0xbbb2", tippers[0].Address)
}

func TestTopTippersTruncatesToTopN(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{
			tip("0xaaa1", units(1), models.CurrencyNative, 10),
			tip("0xbbb2", units(2), models.CurrencyNative, 11),
			tip("0xccc3", units(3), models.CurrencyNative, 12),
		},
	}
	agg := newTestAggregator(source)

	tippers, err := agg.TopTippers(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, tippers, 2)
	assert.Equal(t, "0xccc3", tippers[0].Address)

	tippers, err = agg.TopTippers(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, tippers, 3)
}

func TestTopTippersIsDeterministic(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{
			tip("0xbbb2", units(2), models.CurrencyNative, 10),
			tip("0xaaa1", units(1), models.CurrencyNative, 11),
		},
		tokenTips: []models.TipEvent{
			tip("0xaaa1", units(100), models.CurrencyToken, 12),
		},
	}
	agg := newTestAggregator(source)

	first, err := agg.TopTippers(context.Background(), 5)
	require.NoError(t, err)
	second, err := agg.TopTippers(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTopTippersEmptyHistory(t *testing.T) {
	agg := newTestAggregator(&mockSource{})

	tippers, err := agg.TopTippers(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, tippers)
	assert.Empty(t, tippers)
}

func TestTopTippersFailsWholePassOnQueryError(t *testing.T) {
	source := &mockSource{
		nativeErr: errors.New("connection refused"),
		tokenTips: []models.TipEvent{tip("0xaaa1", units(500), models.CurrencyToken, 11)},
	}
	agg := newTestAggregator(source)

	tippers, err := agg.TopTippers(context.Background(), 5)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Nil(t, tippers, "token data must never be partially surfaced")
}

func TestTopTippersDropsMalformedRecords(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{
			{From: "", Amount: units(5), Currency: models.CurrencyNative, BlockNumber: 9},
			{From: "0xaaa1", Amount: nil, Currency: models.CurrencyNative, BlockNumber: 10},
			tip("0xbbb2", units(1), models.CurrencyNative, 11),
		},
	}
	agg := newTestAggregator(source)

	tippers, err := agg.TopTippers(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tippers, 1)
	assert.Equal(t, "0xbbb2", tippers[0].Address)
}

func TestRecentTipsOrderedByBlockNumber(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{
			tip("0xaaa1", units(1), models.CurrencyNative, 10),
			tip("0xbbb2", units(1), models.CurrencyNative, 12),
		},
		tokenTips: []models.TipEvent{
			tip("0xccc3", units(100), models.CurrencyToken, 11),
		},
	}
	agg := newTestAggregator(source)

	tips, err := agg.RecentTips(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tips, 3)
	assert.Equal(t, uint64(12), tips[0].BlockNumber)
	assert.Equal(t, uint64(11), tips[1].BlockNumber)
	assert.Equal(t, uint64(10), tips[2].BlockNumber)

	for _, got := range tips {
		assert.Equal(t, time.Unix(1700000000+int64(got.BlockNumber), 0).UTC(), got.Timestamp)
	}
}

func TestRecentTipsEqualBlockTieBreak(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{tip("0xbbb2", units(1), models.CurrencyNative, 10)},
		tokenTips:  []models.TipEvent{tip("0xaaa1", units(100), models.CurrencyToken, 10)},
	}
	agg := newTestAggregator(source)

	tips, err := agg.RecentTips(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tips, 2)
	assert.Equal(t, models.CurrencyNative, tips[0].Currency)
	assert.Equal(t, models.CurrencyToken, tips[1].Currency)
}

func TestRecentTipsTruncates(t *testing.T) {
	source := &mockSource{}
	for i := uint64(1); i <= 8; i++ {
		source.nativeTips = append(source.nativeTips, tip("0xaaa1", units(1), models.CurrencyNative, i))
	}
	agg := newTestAggregator(source)

	tips, err := agg.RecentTips(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tips, 5)
	assert.Equal(t, uint64(8), tips[0].BlockNumber)
	assert.Equal(t, uint64(4), tips[4].BlockNumber)
}

func TestRecentTipsEmptyHistory(t *testing.T) {
	agg := newTestAggregator(&mockSource{})

	tips, err := agg.RecentTips(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, tips)
	assert.Empty(t, tips)
}

func TestRecentTipsFailsOnTimestampError(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{tip("0xaaa1", units(1), models.CurrencyNative, 10)},
		tsErr:      errors.New("rate limited"),
	}
	agg := newTestAggregator(source)

	tips, err := agg.RecentTips(context.Background(), 5)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Nil(t, tips)
}

func TestRecentTipsFailsOnQueryError(t *testing.T) {
	source := &mockSource{tokenErr: errors.New("boom")}
	agg := newTestAggregator(source)

	_, err := agg.RecentTips(context.Background(), 5)
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestTipperStatsSingleAddress(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{
			tip("0xAAA1", units(1), models.CurrencyNative, 10),
			tip("0xbbb2", units(7), models.CurrencyNative, 11),
		},
		tokenTips: []models.TipEvent{
			tip("0xaaa1", units(200), models.CurrencyToken, 15),
		},
	}
	agg := newTestAggregator(source)

	stats, err := agg.TipperStats(context.Background(), "0xAAA1")
	require.NoError(t, err)
	assert.Equal(t, "0xaaa1", stats.Address)
	assert.Equal(t, units(1), stats.NativeTotal)
	assert.Equal(t, units(200), stats.TokenTotal)
	assert.Equal(t, 2, stats.TipCount)
	assert.Equal(t, uint64(15), stats.LastTipBlock)
	assert.Equal(t, time.Unix(1700000015, 0).UTC(), stats.LastTip)
}

func TestTipperStatsUnknownAddress(t *testing.T) {
	source := &mockSource{
		nativeTips: []models.TipEvent{tip("0xbbb2", units(1), models.CurrencyNative, 10)},
	}
	agg := newTestAggregator(source)

	stats, err := agg.TipperStats(context.Background(), "0xaaa1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TipCount)
	assert.True(t, stats.RankingValue.IsZero())
	assert.True(t, stats.LastTip.IsZero())
}
