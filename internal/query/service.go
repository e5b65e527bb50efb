// Package query serves read-only views of the pool: reserve snapshots,
// account risk data, positions, sampled rate history and the recent event
// stream. Every response carries the pool sequence it was read at so
// clients can reason about freshness.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"LeverPool/internal/event"
	"LeverPool/internal/pool"
	"LeverPool/internal/projection"
)

// ErrNoEventLog is returned by event-history queries when the service runs
// without Postgres.
var ErrNoEventLog = errors.New("query: event log not configured")

type Service struct {
	pool    *pool.Pool
	history *projection.RateHistory
	recent  *event.Buffer
	db      *sql.DB // optional, nil without Postgres
}

// NewService wires the read side. history, recent and db may each be nil;
// the corresponding queries then return empty results or ErrNoEventLog.
func NewService(p *pool.Pool, history *projection.RateHistory, recent *event.Buffer, db *sql.DB) *Service {
	return &Service{pool: p, history: history, recent: recent, db: db}
}

func (s *Service) Reserves() *ReservesResponse {
	return &ReservesResponse{
		Reserves:     s.pool.ReserveViews(),
		AsOfSequence: s.pool.Sequence(),
	}
}

func (s *Service) Reserve(asset string) (*ReserveResponse, error) {
	v, err := s.pool.ReserveView(asset)
	if err != nil {
		return nil, err
	}
	return &ReserveResponse{Reserve: v, AsOfSequence: s.pool.Sequence()}, nil
}

func (s *Service) Account(user string) (*AccountResponse, error) {
	v, err := s.pool.AccountView(user)
	if err != nil {
		return nil, err
	}
	return &AccountResponse{Account: v, AsOfSequence: s.pool.Sequence()}, nil
}

func (s *Service) Position(id uint64) (*PositionResponse, error) {
	v, err := s.pool.PositionView(id)
	if err != nil {
		return nil, err
	}
	return &PositionResponse{Position: v, AsOfSequence: s.pool.Sequence()}, nil
}

func (s *Service) TraderPositions(trader string) (*PositionsResponse, error) {
	views, err := s.pool.TraderPositionViews(trader)
	if err != nil {
		return nil, err
	}
	return &PositionsResponse{
		Trader:       trader,
		Positions:    views,
		AsOfSequence: s.pool.Sequence(),
	}, nil
}

func (s *Service) RateHistory(asset string, limit int) *RateHistoryResponse {
	resp := &RateHistoryResponse{Asset: asset}
	if s.history != nil {
		resp.Samples = s.history.Query(asset, limit)
	}
	return resp
}

// RecentEvents returns the newest in-memory events, newest first.
func (s *Service) RecentEvents(limit int) *EventsResponse {
	resp := &EventsResponse{AsOfSequence: s.pool.Sequence()}
	if s.recent == nil {
		return resp
	}
	records := s.recent.Records()
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	for i := len(records) - 1; i >= len(records)-limit; i-- {
		resp.Events = append(resp.Events, records[i])
	}
	return resp
}

// EventHistory pages the persisted event log for one user, newest first.
// beforeSequence of zero starts at the top of the log.
func (s *Service) EventHistory(ctx context.Context, user string, limit int, beforeSequence uint64) (*EventsResponse, error) {
	if s.db == nil {
		return nil, ErrNoEventLog
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := `SELECT payload FROM event_log.events WHERE user_id = $1`
	args := []any{user}
	if beforeSequence > 0 {
		q += ` AND sequence < $2`
		args = append(args, int64(beforeSequence))
	}
	q += fmt.Sprintf(` ORDER BY sequence DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: event history for %s: %w", user, err)
	}
	defer rows.Close()

	resp := &EventsResponse{AsOfSequence: s.pool.Sequence()}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec event.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("query: corrupt event payload: %w", err)
		}
		resp.Events = append(resp.Events, rec)
	}
	return resp, rows.Err()
}
