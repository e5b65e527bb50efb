package projection

import (
	"context"
	"time"

	"LeverPool/internal/observability"
	"LeverPool/internal/pool"

	"github.com/rs/zerolog"
)

// Worker samples every reserve's rate state on a fixed interval and feeds
// the rate history. A missed tick costs one sample, nothing more; the full
// series can always be re-derived from the event log.
type Worker struct {
	pool     *pool.Pool
	history  *RateHistory
	interval time.Duration
	log      zerolog.Logger
}

func NewWorker(p *pool.Pool, history *RateHistory, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Worker{
		pool:     p,
		history:  history,
		interval: interval,
		log:      observability.NewLogger("projection"),
	}
}

// Run samples until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *Worker) sample() {
	for _, v := range w.pool.ReserveViews() {
		w.history.Add(RateSample{
			Asset:          v.Asset,
			Timestamp:      v.LastUpdateTimestamp,
			LiquidityRate:  v.CurrentLiquidityRate,
			BorrowRate:     v.CurrentBorrowRate,
			LiquidityIndex: v.LiquidityIndex,
			BorrowIndex:    v.VariableBorrowIndex,
		})
	}
	w.log.Debug().Msg("reserve rates sampled")
}
