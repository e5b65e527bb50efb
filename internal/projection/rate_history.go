// Package projection maintains queryable read models derived from pool
// state. Projections are observational: they can lag and be rebuilt without
// touching the pool itself.
package projection

import (
	"math/big"
	"sync"
)

// RateSample is one observation of a reserve's rate state.
type RateSample struct {
	Asset     string   `json:"asset"`
	Timestamp int64    `json:"timestamp"`

	LiquidityRate  *big.Int `json:"liquidity_rate"`
	BorrowRate     *big.Int `json:"borrow_rate"`
	LiquidityIndex *big.Int `json:"liquidity_index"`
	BorrowIndex    *big.Int `json:"borrow_index"`
}

// RateHistory keeps the most recent rate samples per asset in a bounded
// ring, newest last.
type RateHistory struct {
	mu      sync.RWMutex
	limit   int
	byAsset map[string][]RateSample
}

func NewRateHistory(limit int) *RateHistory {
	if limit <= 0 {
		limit = 1024
	}
	return &RateHistory{limit: limit, byAsset: make(map[string][]RateSample)}
}

// Add appends a sample, evicting the oldest once the per-asset limit is hit.
// Consecutive samples with the same timestamp collapse to the latest one.
func (h *RateHistory) Add(s RateSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	samples := h.byAsset[s.Asset]
	if n := len(samples); n > 0 && samples[n-1].Timestamp == s.Timestamp {
		samples[n-1] = s
		return
	}
	samples = append(samples, s)
	if len(samples) > h.limit {
		samples = samples[len(samples)-h.limit:]
	}
	h.byAsset[s.Asset] = samples
}

// Query returns up to limit samples for an asset, newest first.
func (h *RateHistory) Query(asset string, limit int) []RateSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	samples := h.byAsset[asset]
	if limit <= 0 || limit > len(samples) {
		limit = len(samples)
	}
	out := make([]RateSample, 0, limit)
	for i := len(samples) - 1; i >= len(samples)-limit; i-- {
		out = append(out, samples[i])
	}
	return out
}
