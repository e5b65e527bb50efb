package query

import (
	"LeverPool/internal/event"
	"LeverPool/internal/pool"
	"LeverPool/internal/projection"
)

// ReservesResponse lists every reserve with a freshness marker.
type ReservesResponse struct {
	Reserves     []*pool.ReserveView `json:"reserves"`
	AsOfSequence uint64              `json:"as_of_sequence"`
}

// ReserveResponse is one reserve snapshot.
type ReserveResponse struct {
	Reserve      *pool.ReserveView `json:"reserve"`
	AsOfSequence uint64            `json:"as_of_sequence"`
}

// AccountResponse is one user's aggregated risk state.
type AccountResponse struct {
	Account      *pool.AccountView `json:"account"`
	AsOfSequence uint64            `json:"as_of_sequence"`
}

// PositionResponse is one position snapshot.
type PositionResponse struct {
	Position     *pool.PositionView `json:"position"`
	AsOfSequence uint64             `json:"as_of_sequence"`
}

// PositionsResponse lists a trader's positions, open and terminal.
type PositionsResponse struct {
	Trader       string               `json:"trader"`
	Positions    []*pool.PositionView `json:"positions"`
	AsOfSequence uint64               `json:"as_of_sequence"`
}

// RateHistoryResponse is a reserve's sampled rate series, newest first.
type RateHistoryResponse struct {
	Asset   string                  `json:"asset"`
	Samples []projection.RateSample `json:"samples"`
}

// EventsResponse is a slice of the event stream, newest first.
type EventsResponse struct {
	Events       []event.Record `json:"events"`
	AsOfSequence uint64         `json:"as_of_sequence"`
}
