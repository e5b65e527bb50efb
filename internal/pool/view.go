package pool

import (
	"fmt"
	"math/big"

	"LeverPool/internal/risk"
	"LeverPool/internal/state"
)

// ReserveView is a read-only snapshot of one reserve, safe to hand across
// the API boundary.
type ReserveView struct {
	Asset string `json:"asset"`
	ID    uint8  `json:"id"`

	LiquidityIndex       *big.Int `json:"liquidity_index"`
	VariableBorrowIndex  *big.Int `json:"variable_borrow_index"`
	CurrentLiquidityRate *big.Int `json:"current_liquidity_rate"`
	CurrentBorrowRate    *big.Int `json:"current_borrow_rate"`
	LastUpdateTimestamp  int64    `json:"last_update_timestamp"`

	AvailableLiquidity *big.Int `json:"available_liquidity"`
	TotalDebt          *big.Int `json:"total_debt"`

	LTVBps                  uint64 `json:"ltv_bps"`
	LiquidationThresholdBps uint64 `json:"liquidation_threshold_bps"`
	LiquidationBonusBps     uint64 `json:"liquidation_bonus_bps"`
	Decimals                uint8  `json:"decimals"`
	Active                  bool   `json:"active"`
	Frozen                  bool   `json:"frozen"`
	BorrowingEnabled        bool   `json:"borrowing_enabled"`
}

// AccountView is a read-only snapshot of one user's aggregated risk state.
type AccountView struct {
	User string `json:"user"`

	TotalCollateralValue  *big.Int `json:"total_collateral_value"`
	TotalDebtValue        *big.Int `json:"total_debt_value"`
	AvailableBorrowsValue *big.Int `json:"available_borrows_value"`

	LTVBps                  uint64 `json:"ltv_bps"`
	LiquidationThresholdBps uint64 `json:"liquidation_threshold_bps"`

	HealthFactor *big.Int `json:"health_factor"`
}

// PositionView is a read-only snapshot of one position, with its current
// health factor and unrealized PnL attached. Health and PnL are omitted for
// terminal positions.
type PositionView struct {
	ID     uint64 `json:"id"`
	Trader string `json:"trader"`

	CollateralAsset string `json:"collateral_asset"`
	ShortAsset      string `json:"short_asset"`
	LongAsset       string `json:"long_asset"`

	CollateralAmount *big.Int `json:"collateral_amount"`
	ShortAmount      *big.Int `json:"short_amount"`
	LongAmount       *big.Int `json:"long_amount"`

	LeverageBps             uint64 `json:"leverage_bps"`
	LiquidationThresholdBps uint64 `json:"liquidation_threshold_bps"`

	Status   string `json:"status"`
	OpenedAt int64  `json:"opened_at"`
	ClosedAt int64  `json:"closed_at,omitempty"`

	HealthFactor *big.Int `json:"health_factor,omitempty"`
	PnL          *big.Int `json:"pnl,omitempty"`
}

// ReserveView snapshots one reserve.
func (p *Pool) ReserveView(asset string) (*ReserveView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.reserveByAsset(asset)
	if err != nil {
		return nil, err
	}
	return &ReserveView{
		Asset:                   r.Asset,
		ID:                      r.ID,
		LiquidityIndex:          new(big.Int).Set(r.LiquidityIndex),
		VariableBorrowIndex:     new(big.Int).Set(r.VariableBorrowIndex),
		CurrentLiquidityRate:    new(big.Int).Set(r.CurrentLiquidityRate),
		CurrentBorrowRate:       new(big.Int).Set(r.CurrentBorrowRate),
		LastUpdateTimestamp:     r.LastUpdateTimestamp,
		AvailableLiquidity:      r.ReceiptToken.UnderlyingBalance(),
		TotalDebt:               r.DebtToken.TotalSupply(),
		LTVBps:                  r.Config.LTVBps,
		LiquidationThresholdBps: r.Config.LiquidationThresholdBps,
		LiquidationBonusBps:     r.Config.LiquidationBonusBps,
		Decimals:                r.Config.Decimals,
		Active:                  r.Config.Active,
		Frozen:                  r.Config.Frozen,
		BorrowingEnabled:        r.Config.BorrowingEnabled,
	}, nil
}

// ReserveViews snapshots every reserve in registration order.
func (p *Pool) ReserveViews() []*ReserveView {
	p.mu.Lock()
	assets := make([]string, len(p.reserves))
	for i, r := range p.reserves {
		assets[i] = r.Asset
	}
	p.mu.Unlock()

	out := make([]*ReserveView, 0, len(assets))
	for _, a := range assets {
		v, err := p.ReserveView(a)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// AccountView snapshots one user's aggregated risk state. A user the pool
// has never seen gets an empty account with an infinite health factor.
func (p *Pool) AccountView(user string) (*AccountView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, ok := p.users.Peek(user)
	if !ok || cfg.IsEmpty() {
		return &AccountView{
			User:                  user,
			TotalCollateralValue:  new(big.Int),
			TotalDebtValue:        new(big.Int),
			AvailableBorrowsValue: new(big.Int),
			HealthFactor:          risk.MaxHealthFactor(),
		}, nil
	}

	acct, err := p.risk.CalculateUserAccountData(user, cfg)
	if err != nil {
		return nil, err
	}
	return &AccountView{
		User:                    user,
		TotalCollateralValue:    acct.TotalCollateralValue,
		TotalDebtValue:          acct.TotalDebtValue,
		AvailableBorrowsValue:   acct.AvailableBorrowsValue,
		LTVBps:                  acct.LTVBps,
		LiquidationThresholdBps: acct.LiquidationThresholdBps,
		HealthFactor:            acct.HealthFactor,
	}, nil
}

// PositionView snapshots one position.
func (p *Pool) PositionView(id uint64) (*PositionView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions.Get(id)
	if !ok {
		return nil, fmt.Errorf("position %d not found", id)
	}
	return p.positionView(pos)
}

// TraderPositionViews snapshots every position a trader has ever opened.
func (p *Pool) TraderPositionViews(trader string) ([]*PositionView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := p.positions.TraderPositions(trader)
	out := make([]*PositionView, 0, len(positions))
	for _, pos := range positions {
		v, err := p.positionView(pos)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *Pool) positionView(pos *state.Position) (*PositionView, error) {
	v := &PositionView{
		ID:                      pos.ID,
		Trader:                  pos.Trader,
		CollateralAsset:         pos.CollateralAsset,
		ShortAsset:              pos.ShortAsset,
		LongAsset:               pos.LongAsset,
		CollateralAmount:        new(big.Int).Set(pos.CollateralAmount),
		ShortAmount:             new(big.Int).Set(pos.ShortAmount),
		LongAmount:              new(big.Int).Set(pos.LongAmount),
		LeverageBps:             pos.LeverageBps,
		LiquidationThresholdBps: pos.LiquidationThresholdBps,
		Status:                  pos.Status.String(),
		OpenedAt:                pos.OpenedAt,
		ClosedAt:                pos.ClosedAt,
	}
	if !pos.IsOpen() {
		return v, nil
	}

	hf, err := p.risk.PositionHealthFactor(pos, pos.LiquidationThresholdBps)
	if err != nil {
		return nil, err
	}
	pnl, err := p.risk.PositionPnL(pos)
	if err != nil {
		return nil, err
	}
	v.HealthFactor = hf
	v.PnL = pnl
	return v, nil
}
