package pool

import (
	"fmt"
	"math/big"
	"time"

	"LeverPool/internal/event"
	"LeverPool/internal/state"
	"LeverPool/internal/validation"
	"LeverPool/internal/wadray"
)

// OpenPosition opens a leveraged trade: collateral is pulled from the trader
// into the vault, the short asset is borrowed against the vault for a
// notional of collateral × leverage, and the proceeds are swapped into the
// long asset. minLongOut is the trader's slippage bound on that swap.
func (p *Pool) OpenPosition(trader, collateralAsset, shortAsset, longAsset string, collateralAmount *big.Int, leverageBps uint64, minLongOut *big.Int) (pos *state.Position, err error) {
	start := time.Now()
	defer func() { p.observeOperation("open_position", start, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	collRes, err := p.reserveByAsset(collateralAsset)
	if err != nil {
		return nil, err
	}
	shortRes, err := p.reserveByAsset(shortAsset)
	if err != nil {
		return nil, err
	}
	longRes, err := p.reserveByAsset(longAsset)
	if err != nil {
		return nil, err
	}

	if collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return nil, validation.ErrInvalidAmount
	}
	if err = validation.ValidateOpenPosition(collRes, shortRes, longRes, leverageBps, p.maxLeverageBps); err != nil {
		return nil, err
	}

	notional := wadray.PercentMul(collateralAmount, leverageBps)
	shortAmount, err := p.risk.CalculateAmountToShort(notional, collateralAsset, shortAsset)
	if err != nil {
		return nil, err
	}
	if shortAmount.Sign() == 0 {
		return nil, fmt.Errorf("notional too small to short %s: %w", shortAsset, validation.ErrInvalidAmount)
	}
	collateralValue, err := p.priceValue(collRes, collateralAmount)
	if err != nil {
		return nil, err
	}

	now := p.clock()
	vaultAddr := p.vault.Address()

	if err = p.vault.Pull(collateralAsset, trader, collateralAmount); err != nil {
		return nil, err
	}

	if err = shortRes.UpdateState(now); err != nil {
		return nil, err
	}
	first, err := shortRes.DebtToken.Mint(trader, vaultAddr, shortAmount, shortRes.VariableBorrowIndex)
	if err != nil {
		return nil, err
	}
	if first {
		p.users.Get(vaultAddr).SetBorrowing(shortRes.ID, true)
	}
	if err = shortRes.UpdateInterestRates(new(big.Int), shortAmount); err != nil {
		return nil, err
	}
	if err = shortRes.ReceiptToken.TransferUnderlyingTo(vaultAddr, shortAmount); err != nil {
		return nil, err
	}

	_, longOut, err := p.swap.SwapExactInput(shortAsset, longAsset, shortAmount, minLongOut, vaultAddr)
	if err != nil {
		return nil, err
	}

	// The tighter of the two exposure thresholds governs the position for
	// its whole life.
	thresholdBps := collRes.Config.LiquidationThresholdBps
	if longRes.Config.LiquidationThresholdBps < thresholdBps {
		thresholdBps = longRes.Config.LiquidationThresholdBps
	}

	pos = &state.Position{
		Trader:                  trader,
		CollateralAsset:         collateralAsset,
		ShortAsset:              shortAsset,
		LongAsset:               longAsset,
		CollateralAmount:        new(big.Int).Set(collateralAmount),
		ShortAmount:             shortAmount,
		LongAmount:              longOut,
		CollateralValueAtOpen:   collateralValue,
		LiquidationThresholdBps: thresholdBps,
		LeverageBps:             leverageBps,
		Status:                  state.PositionOpen,
		OpenedAt:                now,
	}
	id := p.positions.Append(pos)

	p.emit(event.Record{
		Type: event.TypePositionOpened, Timestamp: now,
		User: trader, PositionID: &id, LeverageBps: leverageBps,
		CollateralAsset: collateralAsset, ShortAsset: shortAsset, LongAsset: longAsset,
		Amount: collateralAmount.String(),
	})
	if p.metrics != nil {
		p.metrics.PositionsOpened.Inc()
	}
	p.observeReserveRates(shortRes)

	p.log.Info().Str("trader", trader).Uint64("position_id", id).
		Uint64("leverage_bps", leverageBps).Str("short", shortAsset).Str("long", longAsset).
		Msg("position opened")
	return pos, nil
}

// ClosePosition unwinds an open position owned by the caller: long holdings
// are swapped back to the short asset to cover the debt, a surplus is
// converted to the collateral asset, a shortfall is covered by selling
// collateral. The remaining collateral-denominated payout goes to `to` (the
// caller when empty). minShortOut and minCollateralOut bound the two swap
// legs independently. Returns the payout and the reported PnL (wad).
func (p *Pool) ClosePosition(caller string, id uint64, to string, minShortOut, minCollateralOut *big.Int) (payout, pnl *big.Int, err error) {
	start := time.Now()
	defer func() { p.observeOperation("close_position", start, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("position %d not found: %w", id, validation.ErrPositionInvalid)
	}
	if err = validation.ValidateClosePosition(pos, caller); err != nil {
		return nil, nil, err
	}
	if to == "" {
		to = caller
	}

	shortRes, err := p.reserveByAsset(pos.ShortAsset)
	if err != nil {
		return nil, nil, err
	}

	pnl, err = p.risk.PositionPnL(pos)
	if err != nil {
		return nil, nil, err
	}

	vaultAddr := p.vault.Address()
	owed := pos.ShortAmount

	_, shortOut, err := p.swap.SwapExactInput(pos.LongAsset, pos.ShortAsset, pos.LongAmount, minShortOut, vaultAddr)
	if err != nil {
		return nil, nil, err
	}

	payout = new(big.Int).Set(pos.CollateralAmount)
	switch shortOut.Cmp(owed) {
	case 1:
		// Surplus proceeds become extra collateral-denominated payout.
		surplus := new(big.Int).Sub(shortOut, owed)
		_, extraOut, serr := p.swap.SwapExactInput(pos.ShortAsset, pos.CollateralAsset, surplus, minCollateralOut, vaultAddr)
		if serr != nil {
			err = serr
			return nil, nil, err
		}
		payout.Add(payout, extraOut)
	case -1:
		// Shortfall is covered out of the collateral.
		need := new(big.Int).Sub(owed, shortOut)
		usedIn, _, serr := p.swap.SwapForExactOutput(pos.CollateralAsset, pos.ShortAsset, need, payout, vaultAddr)
		if serr != nil {
			err = serr
			return nil, nil, err
		}
		payout.Sub(payout, usedIn)
	}

	now := p.clock()
	if err = shortRes.UpdateState(now); err != nil {
		return nil, nil, err
	}
	if err = shortRes.DebtToken.Burn(vaultAddr, owed, shortRes.VariableBorrowIndex); err != nil {
		return nil, nil, err
	}
	if shortRes.DebtToken.BalanceOf(vaultAddr).Sign() == 0 {
		p.users.Get(vaultAddr).SetBorrowing(shortRes.ID, false)
	}
	if err = shortRes.UpdateInterestRates(owed, new(big.Int)); err != nil {
		return nil, nil, err
	}
	if err = shortRes.ReceiptToken.PullUnderlying(vaultAddr, owed); err != nil {
		return nil, nil, err
	}
	if err = shortRes.ReceiptToken.HandleRepayment(vaultAddr, owed); err != nil {
		return nil, nil, err
	}

	if err = pos.Transition(state.PositionClosed, now); err != nil {
		return nil, nil, err
	}

	if payout.Sign() > 0 {
		if err = p.vault.Pay(pos.CollateralAsset, to, payout); err != nil {
			return nil, nil, err
		}
	}

	p.emit(event.Record{
		Type: event.TypePositionClosed, Timestamp: now,
		User: caller, PositionID: &id,
		CollateralAsset: pos.CollateralAsset, ShortAsset: pos.ShortAsset, LongAsset: pos.LongAsset,
		PnL: pnl.String(), Payout: payout.String(),
	})
	if p.metrics != nil {
		p.metrics.PositionsClosed.WithLabelValues("closed").Inc()
	}
	p.observeReserveRates(shortRes)

	p.log.Info().Str("trader", caller).Uint64("position_id", id).
		Str("payout", payout.String()).Str("pnl", pnl.String()).Msg("position closed")
	return payout, pnl, nil
}
