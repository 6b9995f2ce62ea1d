package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"tipping-analytics/internal/interfaces"
	"tipping-analytics/internal/logger"
)

type ChainStatus struct {
	LastBlock uint64    `json:"last_block"`
	CheckedAt time.Time `json:"checked_at"`
}

var (
	isReady     int32
	chainStatus *ChainStatus
	statusMutex sync.RWMutex
)

func SetReady(ready bool) {
	if ready {
		atomic.StoreInt32(&isReady, 1)
	} else {
		atomic.StoreInt32(&isReady, 0)
	}
}

func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	statusMutex.RLock()
	defer statusMutex.RUnlock()

	if chainStatus == nil || atomic.LoadInt32(&isReady) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready"))

		return
	}

	response := map[string]interface{}{
		"status": "Ready",
		"chain":  chainStatus,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// RegisterSource polls the log source's block head so readiness reflects a
// live chain connection.
func RegisterSource(ctx context.Context, source interfaces.LogSource) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				head, err := source.BlockHead(ctx)
				if err != nil {
					logger.GetLogger().Error().
						Err(err).
						Msg("Error getting latest block head")
				} else {
					updateChainStatus(head)
				}
				time.Sleep(10 * time.Second)
			}
		}
	}()
}

func updateChainStatus(lastBlock uint64) {
	statusMutex.Lock()
	defer statusMutex.Unlock()
	chainStatus = &ChainStatus{
		LastBlock: lastBlock,
		CheckedAt: time.Now().UTC(),
	}
}
