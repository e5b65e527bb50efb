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

// LiquidationCall repays part of an unhealthy account's debt in exchange for
// a bonus-priced slice of its collateral. A single call covers at most the
// close factor (half) of the target's debt in the selected asset. The
// liquidator receives collateral as underlying when receiveUnderlying is
// set, otherwise as receipt tokens. Returns the debt actually covered and
// the collateral seized.
func (p *Pool) LiquidationCall(liquidator, collateralAsset, debtAsset, target string, debtToCover *big.Int, receiveUnderlying bool) (covered, seized *big.Int, err error) {
	start := time.Now()
	defer func() { p.observeOperation("liquidation_call", start, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	collRes, err := p.reserveByAsset(collateralAsset)
	if err != nil {
		return nil, nil, err
	}
	debtRes, err := p.reserveByAsset(debtAsset)
	if err != nil {
		return nil, nil, err
	}
	if target == p.vault.Address() {
		return nil, nil, fmt.Errorf("account %s is the margin vault: %w", target, validation.ErrPositionInvalid)
	}
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, nil, validation.ErrInvalidAmount
	}

	cfg := p.users.Get(target)
	acct, err := p.risk.CalculateUserAccountData(target, cfg)
	if err != nil {
		return nil, nil, err
	}
	userDebt := debtRes.DebtToken.BalanceOf(target)

	code, verr := validation.ValidateLiquidationCall(collRes, debtRes, acct.HealthFactor, cfg.UsingAsCollateral(collRes.ID), userDebt)
	if verr != nil {
		p.log.Debug().Str("target", target).Str("code", code.String()).Msg("liquidation call rejected")
		err = verr
		return nil, nil, err
	}

	maxLiquidatable := wadray.PercentMul(userDebt, CloseFactorBps)
	covered = wadray.Min(debtToCover, maxLiquidatable)

	collPrice, err := p.oracle.GetAssetPrice(collateralAsset)
	if err != nil {
		return nil, nil, err
	}
	debtPrice, err := p.oracle.GetAssetPrice(debtAsset)
	if err != nil {
		return nil, nil, err
	}
	if collPrice.Sign() == 0 {
		return nil, nil, fmt.Errorf("zero price for %s: %w", collateralAsset, wadray.ErrDivisionByZero)
	}

	bonus := new(big.Int).SetUint64(collRes.Config.LiquidationBonusBps)

	// base collateral = covered debt revalued into the collateral asset;
	// seized = base × bonus (10500 bps means seize 105%).
	base := new(big.Int).Mul(covered, debtPrice)
	base.Mul(base, collRes.Unit())
	base.Quo(base, new(big.Int).Mul(collPrice, debtRes.Unit()))
	seized = wadray.PercentMul(base, collRes.Config.LiquidationBonusBps)

	targetCollateral := collRes.ReceiptToken.BalanceOf(target)
	if seized.Cmp(targetCollateral) > 0 {
		// Cap the seizure and back-solve the debt it pays for, rounding
		// the covered debt down so the liquidator is never over-charged.
		seized = new(big.Int).Set(targetCollateral)
		covered = new(big.Int).Mul(seized, collPrice)
		covered.Mul(covered, debtRes.Unit())
		covered.Mul(covered, wadray.PercentageFactor())
		covered.Quo(covered, new(big.Int).Mul(new(big.Int).Mul(debtPrice, collRes.Unit()), bonus))
		if p.metrics != nil {
			p.metrics.LiquidationSeizedCaps.Inc()
		}
	}
	if covered.Sign() == 0 || seized.Sign() == 0 {
		return nil, nil, fmt.Errorf("liquidation of %s rounds to nothing: %w", target, validation.ErrInvalidAmount)
	}

	if receiveUnderlying && collRes.ReceiptToken.UnderlyingBalance().Cmp(seized) < 0 {
		return nil, nil, fmt.Errorf("collateral %s: %w", collateralAsset, validation.ErrInsufficientReserveLiquidity)
	}

	now := p.clock()
	if err = debtRes.UpdateState(now); err != nil {
		return nil, nil, err
	}
	if err = debtRes.DebtToken.Burn(target, covered, debtRes.VariableBorrowIndex); err != nil {
		return nil, nil, err
	}
	if debtRes.DebtToken.BalanceOf(target).Sign() == 0 {
		cfg.SetBorrowing(debtRes.ID, false)
	}
	if err = debtRes.UpdateInterestRates(covered, new(big.Int)); err != nil {
		return nil, nil, err
	}

	if receiveUnderlying {
		if err = collRes.UpdateState(now); err != nil {
			return nil, nil, err
		}
		if err = collRes.UpdateInterestRates(new(big.Int), seized); err != nil {
			return nil, nil, err
		}
		if err = collRes.ReceiptToken.Burn(target, liquidator, seized, collRes.LiquidityIndex); err != nil {
			return nil, nil, err
		}
	} else {
		liquidatorHadBalance := collRes.ReceiptToken.BalanceOf(liquidator).Sign() > 0
		if err = collRes.ReceiptToken.TransferOnLiquidation(target, liquidator, seized); err != nil {
			return nil, nil, err
		}
		if !liquidatorHadBalance {
			p.users.Get(liquidator).SetUsingAsCollateral(collRes.ID, true)
			p.emit(event.Record{Type: event.TypeCollateralEnabled, Timestamp: now, User: liquidator, Asset: collateralAsset})
		}
	}

	if collRes.ReceiptToken.BalanceOf(target).Sign() == 0 && cfg.UsingAsCollateral(collRes.ID) {
		cfg.SetUsingAsCollateral(collRes.ID, false)
		p.emit(event.Record{Type: event.TypeCollateralDisabled, Timestamp: now, User: target, Asset: collateralAsset})
	}

	if err = debtRes.ReceiptToken.PullUnderlying(liquidator, covered); err != nil {
		return nil, nil, err
	}
	if err = debtRes.ReceiptToken.HandleRepayment(liquidator, covered); err != nil {
		return nil, nil, err
	}

	p.emit(event.Record{
		Type: event.TypeLiquidationCall, Timestamp: now,
		User: target, Liquidator: liquidator,
		CollateralAsset: collateralAsset, DebtAsset: debtAsset,
		CoveredDebt: covered.String(), SeizedCollateral: seized.String(),
	})
	if p.metrics != nil {
		p.metrics.LiquidationsExecuted.WithLabelValues("account").Inc()
	}
	p.observeReserveRates(debtRes)

	p.log.Info().Str("target", target).Str("liquidator", liquidator).
		Str("covered", covered.String()).Str("seized", seized.String()).Msg("account liquidated")
	return covered, seized, nil
}

// LiquidatePosition force-closes an unhealthy leveraged position: the
// liquidator repays the position's short debt in full and receives the
// vault's long and collateral holdings of the position in return.
func (p *Pool) LiquidatePosition(liquidator string, id uint64) (err error) {
	start := time.Now()
	defer func() { p.observeOperation("liquidate_position", start, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions.Get(id)
	if !ok {
		return fmt.Errorf("position %d not found: %w", id, validation.ErrPositionInvalid)
	}

	hf, err := p.risk.PositionHealthFactor(pos, pos.LiquidationThresholdBps)
	if err != nil {
		return err
	}
	if err = validation.ValidateLiquidatePosition(pos, hf); err != nil {
		return err
	}

	shortRes, err := p.reserveByAsset(pos.ShortAsset)
	if err != nil {
		return err
	}

	pnl, err := p.risk.PositionPnL(pos)
	if err != nil {
		return err
	}

	vaultAddr := p.vault.Address()
	owed := pos.ShortAmount

	now := p.clock()
	if err = shortRes.UpdateState(now); err != nil {
		return err
	}
	if err = shortRes.DebtToken.Burn(vaultAddr, owed, shortRes.VariableBorrowIndex); err != nil {
		return err
	}
	if shortRes.DebtToken.BalanceOf(vaultAddr).Sign() == 0 {
		p.users.Get(vaultAddr).SetBorrowing(shortRes.ID, false)
	}
	if err = shortRes.UpdateInterestRates(owed, new(big.Int)); err != nil {
		return err
	}
	if err = shortRes.ReceiptToken.PullUnderlying(liquidator, owed); err != nil {
		return err
	}
	if err = shortRes.ReceiptToken.HandleRepayment(liquidator, owed); err != nil {
		return err
	}

	if err = pos.Transition(state.PositionLiquidated, now); err != nil {
		return err
	}

	if pos.LongAmount.Sign() > 0 {
		if err = p.vault.Pay(pos.LongAsset, liquidator, pos.LongAmount); err != nil {
			return err
		}
	}
	if pos.CollateralAmount.Sign() > 0 {
		if err = p.vault.Pay(pos.CollateralAsset, liquidator, pos.CollateralAmount); err != nil {
			return err
		}
	}

	p.emit(event.Record{
		Type: event.TypePositionLiquidated, Timestamp: now,
		User: pos.Trader, Liquidator: liquidator, PositionID: &id,
		CollateralAsset: pos.CollateralAsset, ShortAsset: pos.ShortAsset, LongAsset: pos.LongAsset,
		DebtAsset: pos.ShortAsset, CoveredDebt: owed.String(),
		SeizedCollateral: pos.CollateralAmount.String(), PnL: pnl.String(),
	})
	if p.metrics != nil {
		p.metrics.PositionsClosed.WithLabelValues("liquidated").Inc()
		p.metrics.LiquidationsExecuted.WithLabelValues("position").Inc()
	}
	p.observeReserveRates(shortRes)

	p.log.Info().Str("liquidator", liquidator).Uint64("position_id", id).
		Str("covered", owed.String()).Msg("position liquidated")
	return nil
}
