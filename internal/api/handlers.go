// Package api exposes the aggregation results over HTTP. Responses carry
// both raw integer amounts and display-formatted fields so clients do not
// need their own fixed-point math.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tipping-analytics/internal/aggregator"
	"tipping-analytics/internal/cache"
	"tipping-analytics/internal/config"
	"tipping-analytics/internal/format"
	"tipping-analytics/internal/health"
	"tipping-analytics/internal/models"
	"tipping-analytics/internal/validation"
)

const nativeDecimals = 18

// Service is the aggregation surface the handlers consume.
type Service interface {
	TopTippers(ctx context.Context, topN int) ([]models.TipperStats, error)
	RecentTips(ctx context.Context, limit int) ([]models.TipEvent, error)
	TipperStats(ctx context.Context, address string) (*models.TipperStats, error)
}

// TotalsSource reads the tipping contract's lifetime counters.
type TotalsSource interface {
	TippingTotals(ctx context.Context) (*models.TippingTotals, error)
}

type Handler struct {
	Service Service
	Totals  TotalsSource
	Cache   cache.Cache
	Cfg     config.AggregatorConfig
	Logger  *zerolog.Logger
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health/live", health.LivenessHandler)
	mux.HandleFunc("/health/ready", health.ReadinessHandler)
	mux.HandleFunc("/leaderboard", h.Leaderboard)
	mux.HandleFunc("/tips/recent", h.RecentTips)
	mux.HandleFunc("/stats", h.Stats)
	mux.HandleFunc("/tippers/", h.tipperSubroutes)
}

type leaderboardEntry struct {
	Rank           int    `json:"rank"`
	Address        string `json:"address"`
	DisplayAddress string `json:"display_address"`
	NativeTipped   string `json:"native_tipped"`
	NativeDisplay  string `json:"native_display"`
	TokenTipped    string `json:"token_tipped"`
	TokenDisplay   string `json:"token_display"`
	RankingValue   string `json:"ranking_value"`
	TipCount       int    `json:"tip_count"`
}

func (h *Handler) leaderboardEntry(rank int, stats models.TipperStats) leaderboardEntry {
	return leaderboardEntry{
		Rank:           rank,
		Address:        stats.Address,
		DisplayAddress: format.ShortenAddress(stats.Address),
		NativeTipped:   stats.NativeTotal.String(),
		NativeDisplay:  format.FormatFixed(stats.NativeTotal, nativeDecimals, 3),
		TokenTipped:    stats.TokenTotal.String(),
		TokenDisplay:   format.FormatScaledAmount(stats.TokenTotal, h.Cfg.TokenDecimals, 2),
		RankingValue:   stats.RankingValue.StringFixed(3),
		TipCount:       stats.TipCount,
	}
}

// Leaderboard handles GET /leaderboard?limit=N, cache-aside when a cache is
// wired. A cache failure degrades to a fresh aggregation, never to an error.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r, h.Cfg.LeaderboardSize)

	var tippers []models.TipperStats
	if h.Cache != nil {
		if cached, ok, err := h.Cache.GetLeaderboard(ctx, limit); err == nil && ok {
			tippers = cached
		}
	}

	if tippers == nil {
		fresh, err := h.Service.TopTippers(ctx, limit)
		if err != nil {
			h.aggregationError(w, err)
			return
		}
		tippers = fresh
		if h.Cache != nil {
			if err := h.Cache.SetLeaderboard(ctx, tippers, limit); err != nil {
				h.Logger.Warn().Err(err).Msg("Failed to refresh leaderboard cache")
			}
		}
	}

	entries := make([]leaderboardEntry, 0, len(tippers))
	for i, stats := range tippers {
		entries = append(entries, h.leaderboardEntry(i+1, stats))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tippers": entries,
		"symbol":  h.Cfg.TokenSymbol,
	})
}

type recentTipEntry struct {
	From        string `json:"from"`
	DisplayFrom string `json:"display_from"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	Display     string `json:"display"`
	Message     string `json:"message,omitempty"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   int64  `json:"timestamp"`
	TimeAgo     string `json:"time_ago"`
}

// RecentTips handles GET /tips/recent?limit=N.
func (h *Handler) RecentTips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r, h.Cfg.RecentTipsSize)

	tips, err := h.Service.RecentTips(ctx, limit)
	if err != nil {
		h.aggregationError(w, err)
		return
	}

	// one sample of now per render pass keeps the time-ago buckets coherent
	now := time.Now()
	entries := make([]recentTipEntry, 0, len(tips))
	for _, tip := range tips {
		entry := recentTipEntry{
			From:        tip.From,
			DisplayFrom: format.ShortenAddress(tip.From),
			Currency:    tip.Currency.String(),
			Amount:      tip.Amount.String(),
			BlockNumber: tip.BlockNumber,
			Timestamp:   tip.Timestamp.Unix(),
			TimeAgo:     format.RelativeTime(now, tip.Timestamp),
		}
		if tip.Currency == models.CurrencyNative {
			entry.Display = format.FormatFixed(tip.Amount, nativeDecimals, 3)
		} else {
			entry.Display = format.FormatScaledAmount(tip.Amount, h.Cfg.TokenDecimals, 2)
		}
		if tip.HasCustomMessage() {
			entry.Message = tip.Message
		}
		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tips":   entries,
		"symbol": h.Cfg.TokenSymbol,
	})
}

// Stats handles GET /stats with the contract's own lifetime counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Totals.TippingTotals(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to read tipping totals")
		httpError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"native_tipped":  totals.NativeTipped.String(),
		"native_display": format.FormatFixed(totals.NativeTipped, nativeDecimals, 3),
		"tokens_tipped":  totals.TokensTipped.String(),
		"tokens_display": format.FormatScaledAmount(totals.TokensTipped, h.Cfg.TokenDecimals, 2),
		"total_tippers":  totals.TotalTippers,
		"total_tips":     totals.TotalTips,
		"symbol":         h.Cfg.TokenSymbol,
	})
}

func (h *Handler) tipperSubroutes(w http.ResponseWriter, r *http.Request) {
	// Expect: /tippers/{address}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 2 && parts[0] == "tippers" {
		h.TipperStats(w, r, parts[1])
		return
	}
	http.NotFound(w, r)
}

// TipperStats handles GET /tippers/{address}.
func (h *Handler) TipperStats(w http.ResponseWriter, r *http.Request, address string) {
	if err := validation.ValidateAddress(address); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := h.Service.TipperStats(r.Context(), address)
	if err != nil {
		h.aggregationError(w, err)
		return
	}

	resp := map[string]any{
		"address":        stats.Address,
		"native_tipped":  stats.NativeTotal.String(),
		"native_display": format.FormatFixed(stats.NativeTotal, nativeDecimals, 3),
		"token_tipped":   stats.TokenTotal.String(),
		"token_display":  format.FormatScaledAmount(stats.TokenTotal, h.Cfg.TokenDecimals, 2),
		"tip_count":      stats.TipCount,
		"has_tipped":     stats.TipCount > 0,
		"symbol":         h.Cfg.TokenSymbol,
	}
	if stats.TipCount > 0 {
		resp["last_tip_block"] = stats.LastTipBlock
		resp["last_tip"] = stats.LastTip.Unix()
		resp["last_tip_ago"] = format.RelativeTime(time.Now(), stats.LastTip)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) aggregationError(w http.ResponseWriter, err error) {
	h.Logger.Error().Err(err).Msg("Aggregation pass failed")
	if errors.Is(err, aggregator.ErrSourceUnavailable) {
		httpError(w, http.StatusBadGateway, err)
		return
	}
	httpError(w, http.StatusInternalServerError, err)
}

func parseLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > 100 {
		n = 100
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
