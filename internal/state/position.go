package state

import (
	"fmt"
	"math/big"
)

// PositionStatus is the leveraged-position lifecycle state. Closed and
// Liquidated are terminal and mutually exclusive.
type PositionStatus uint8

const (
	PositionOpen PositionStatus = iota
	PositionClosed
	PositionLiquidated
)

func (s PositionStatus) String() string {
	switch s {
	case PositionOpen:
		return "Open"
	case PositionClosed:
		return "Closed"
	case PositionLiquidated:
		return "Liquidated"
	default:
		return fmt.Sprintf("PositionStatus(%d)", uint8(s))
	}
}

// CanTransitionTo defines the allowed lifecycle edges.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	switch s {
	case PositionOpen:
		return next == PositionClosed || next == PositionLiquidated
	default:
		return false
	}
}

// Position is one leveraged trade: collateral pulled from the trader, a short
// borrow swapped into long holdings, custodied by the vault until close or
// liquidation. Amounts are in each asset's native decimals.
type Position struct {
	ID     uint64
	Trader string

	CollateralAsset string
	ShortAsset      string
	LongAsset       string

	CollateralAmount *big.Int
	ShortAmount      *big.Int
	LongAmount       *big.Int

	// CollateralValueAtOpen is the oracle valuation (wad) of the collateral
	// at open time, the baseline for PnL.
	CollateralValueAtOpen *big.Int

	// LiquidationThresholdBps is captured at open time so later parameter
	// changes do not retroactively move the liquidation boundary.
	LiquidationThresholdBps uint64
	LeverageBps             uint64

	Status   PositionStatus
	OpenedAt int64
	ClosedAt int64
}

func (p *Position) IsOpen() bool { return p.Status == PositionOpen }

// Transition moves the position to a terminal state, enforcing the lifecycle
// exactly once.
func (p *Position) Transition(next PositionStatus, at int64) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("position %d: invalid transition %s -> %s", p.ID, p.Status, next)
	}
	p.Status = next
	p.ClosedAt = at
	return nil
}
