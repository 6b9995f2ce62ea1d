package cache

import (
	"context"

	"tipping-analytics/internal/models"
)

// Cache is an expiring read-through store for the leaderboard. It is an
// optimization only: implementations signal a miss rather than an error when
// nothing usable is stored, and callers fall back to a fresh aggregation.
//
// SetLeaderboard records the limit the board was populated for; a stored
// board truncated to a smaller limit must not serve a wider request, so
// GetLeaderboard misses in that case.
type Cache interface {
	GetLeaderboard(ctx context.Context, limit int) ([]models.TipperStats, bool, error)
	SetLeaderboard(ctx context.Context, entries []models.TipperStats, populatedFor int) error
}
