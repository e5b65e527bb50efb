// Package event defines the records the pool emits for off-system observers
// and the fan-out plumbing that carries them to NATS and the event log.
// Events are observational: they are never part of core control flow, and a
// failed delivery never voids the operation that produced it.
package event

import (
	"sync"

	"github.com/google/uuid"
)

// Type discriminates event payloads.
type Type string

const (
	TypeSupply             Type = "supply"
	TypeWithdraw           Type = "withdraw"
	TypeBorrow             Type = "borrow"
	TypeRepay              Type = "repay"
	TypeCollateralEnabled  Type = "collateral_enabled"
	TypeCollateralDisabled Type = "collateral_disabled"
	TypePositionOpened     Type = "position_opened"
	TypePositionClosed     Type = "position_closed"
	TypeLiquidationCall    Type = "liquidation_call"
	TypePositionLiquidated Type = "position_liquidated"
)

// Record is one emitted event. Numeric amounts are decimal strings since
// balances exceed int64 range. Sequence is the pool-assigned monotonic
// ordering key and the idempotency key for downstream sinks.
type Record struct {
	Sequence  uint64    `json:"sequence"`
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Timestamp int64     `json:"timestamp"`

	User       string `json:"user,omitempty"`
	OnBehalfOf string `json:"on_behalf_of,omitempty"`
	Asset      string `json:"asset,omitempty"`
	Amount     string `json:"amount,omitempty"`

	CollateralAsset string  `json:"collateral_asset,omitempty"`
	ShortAsset      string  `json:"short_asset,omitempty"`
	LongAsset       string  `json:"long_asset,omitempty"`
	PositionID      *uint64 `json:"position_id,omitempty"`
	LeverageBps     uint64  `json:"leverage_bps,omitempty"`

	Liquidator       string `json:"liquidator,omitempty"`
	DebtAsset        string `json:"debt_asset,omitempty"`
	CoveredDebt      string `json:"covered_debt,omitempty"`
	SeizedCollateral string `json:"seized_collateral,omitempty"`

	PnL    string `json:"pnl,omitempty"`
	Payout string `json:"payout,omitempty"`
}

// Emitter receives committed events. Implementations must not block the
// calling operation.
type Emitter interface {
	Emit(Record)
}

// Discard drops every event, for wiring the pool without observers.
type Discard struct{}

func (Discard) Emit(Record) {}

// Fanout delivers each event to every registered emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(rec Record) {
	for _, e := range f {
		e.Emit(rec)
	}
}

// Buffer keeps the most recent events in memory for tests and the query
// service's recent-activity view. Emit runs inside pool operations while
// Records serves reader goroutines, so access is lock-guarded.
type Buffer struct {
	mu      sync.RWMutex
	limit   int
	records []Record
}

func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = 256
	}
	return &Buffer{limit: limit}
}

func (b *Buffer) Emit(rec Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
	if len(b.records) > b.limit {
		b.records = b.records[len(b.records)-b.limit:]
	}
}

// Records returns a copy of the buffered events, oldest first.
func (b *Buffer) Records() []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}
