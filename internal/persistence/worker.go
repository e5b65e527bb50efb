package persistence

import (
	"context"
	"time"

	"LeverPool/internal/event"
	"LeverPool/internal/observability"

	"github.com/rs/zerolog"
)

// Worker drains emitted events into the Postgres event log. It implements
// event.Emitter so the pool can fan out to it directly; Emit never blocks
// the operation that produced the event. Batches flush when full or when
// the flush interval elapses, and a failed flush retries with exponential
// backoff rather than dropping the batch.
type Worker struct {
	writer    *EventLogWriter
	ch        chan event.Record
	batchSize int
	interval  time.Duration
	log       zerolog.Logger
	metrics   *observability.Metrics

	lastSeq uint64
}

func NewWorker(writer *EventLogWriter, batchSize int, interval time.Duration, metrics *observability.Metrics) *Worker {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Worker{
		writer:    writer,
		ch:        make(chan event.Record, 4096),
		batchSize: batchSize,
		interval:  interval,
		log:       observability.NewLogger("persistence"),
		metrics:   metrics,
	}
}

// Emit queues a record for persistence. When the queue is full the record is
// dropped with a warning; the event log is an observer, not the system of
// record.
func (w *Worker) Emit(rec event.Record) {
	select {
	case w.ch <- rec:
	default:
		w.log.Warn().Uint64("sequence", rec.Sequence).Msg("persist queue full, dropping event")
		if w.metrics != nil {
			w.metrics.PublishDrops.Inc()
		}
	}
}

// Run drains the queue until ctx is cancelled, then flushes what remains.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]EventRow, 0, w.batchSize)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drainInto(&batch)
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Int("events", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case rec := <-w.ch:
			w.checkSequence(rec.Sequence)
			row, err := RowFromRecord(rec)
			if err != nil {
				w.log.Error().Err(err).Msg("unmarshalable event, skipping")
				continue
			}
			batch = append(batch, row)
			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("batch flush abandoned")
				}
				batch = batch[:0]
				timer.Reset(w.interval)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("interval flush abandoned")
				}
				batch = batch[:0]
			}
			timer.Reset(w.interval)
		}
	}
}

// checkSequence flags gaps in the emitted stream. A gap means an event was
// dropped upstream; the log stays append-only either way.
func (w *Worker) checkSequence(seq uint64) {
	if w.lastSeq != 0 && seq != w.lastSeq+1 {
		w.log.Warn().Uint64("expected", w.lastSeq+1).Uint64("got", seq).Msg("event sequence gap")
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("sequence_gap").Inc()
		}
	}
	if seq > w.lastSeq {
		w.lastSeq = seq
	}
}

func (w *Worker) drainInto(batch *[]EventRow) {
	for {
		select {
		case rec := <-w.ch:
			row, err := RowFromRecord(rec)
			if err != nil {
				continue
			}
			*batch = append(*batch, row)
		default:
			return
		}
	}
}

func (w *Worker) flushWithRetry(ctx context.Context, batch []EventRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("events", len(batch)).Msg("retrying event log flush")
			select {
			case <-ctx.Done():
				// One last try with a fresh context so shutdown does not
				// lose the batch.
				return w.flush(context.Background(), batch)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, batch); err == nil {
			return nil
		} else if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []EventRow) error {
	if err := w.writer.WriteBatch(ctx, batch); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.PersistEventsWritten.Add(float64(len(batch)))
		w.metrics.PersistBatchSize.Observe(float64(len(batch)))
		w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].Sequence))
	}
	w.log.Debug().Int("events", len(batch)).Msg("event batch persisted")
	return nil
}
