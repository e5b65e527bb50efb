// Package persistence writes the pool's event stream to Postgres. The event
// log is an append-only audit trail: writes are batched, idempotent on the
// pool sequence, and never part of an operation's critical path.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"LeverPool/internal/event"
)

// EventRow is one row of event_log.events.
type EventRow struct {
	Sequence   uint64
	EventID    string
	EventType  string
	User       string
	Asset      string
	Payload    []byte
	OccurredAt time.Time
}

// RowFromRecord flattens an event record into its storage row. The full
// record rides along as the JSON payload; the flattened columns exist for
// indexing.
func RowFromRecord(rec event.Record) (EventRow, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return EventRow{}, fmt.Errorf("persistence: marshal event %d: %w", rec.Sequence, err)
	}
	return EventRow{
		Sequence:   rec.Sequence,
		EventID:    rec.ID.String(),
		EventType:  string(rec.Type),
		User:       rec.User,
		Asset:      rec.Asset,
		Payload:    payload,
		OccurredAt: time.Unix(rec.Timestamp, 0).UTC(),
	}, nil
}

// EventLogWriter batch-inserts event rows. Multi-row INSERT with ON CONFLICT
// DO NOTHING keeps replays idempotent on the pool sequence.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteBatch inserts a batch of rows in one statement. Rows whose sequence
// already exists are skipped.
func (w *EventLogWriter) WriteBatch(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_id, event_type, user_id, asset, payload, occurred_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*7)
	for i, r := range rows {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			int64(r.Sequence), r.EventID, r.EventType, r.User, r.Asset,
			r.Payload, r.OccurredAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest sequence in the log, zero when empty.
// The service uses it on startup to resume event numbering after a restart.
func (w *EventLogWriter) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}
