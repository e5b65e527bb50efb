// Package validation holds the pure precondition checks run before any
// state-changing pool operation. Every check either passes or returns a
// structured error kind; nothing here mutates state, so a failed check
// guarantees the operation aborts with no partial effects.
package validation

import (
	"fmt"
	"math/big"

	"LeverPool/internal/reserve"
	"LeverPool/internal/risk"
	"LeverPool/internal/state"
	"LeverPool/internal/wadray"
)

// RateMode selects the interest model of a borrow. The stable mode survives
// only as a rejected legacy input.
type RateMode uint8

const (
	RateModeNone RateMode = iota
	RateModeStable
	RateModeVariable
)

func (m RateMode) String() string {
	switch m {
	case RateModeNone:
		return "none"
	case RateModeStable:
		return "stable"
	case RateModeVariable:
		return "variable"
	default:
		return fmt.Sprintf("RateMode(%d)", uint8(m))
	}
}

// ValidateSupply gates new deposits.
func ValidateSupply(r *reserve.Reserve, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !r.Config.Active {
		return fmt.Errorf("supply %s: %w", r.Asset, ErrReserveInactive)
	}
	if r.Config.Frozen {
		return fmt.Errorf("supply %s: %w", r.Asset, ErrReserveFrozen)
	}
	return nil
}

// ValidateWithdraw gates withdrawals. decreaseAllowed is the risk engine's
// verdict on the simulated post-withdrawal account.
func ValidateWithdraw(r *reserve.Reserve, amount, userBalance *big.Int, decreaseAllowed bool) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(userBalance) > 0 {
		return fmt.Errorf("withdraw %s: %w", r.Asset, ErrInsufficientBalance)
	}
	if !r.Config.Active {
		return fmt.Errorf("withdraw %s: %w", r.Asset, ErrReserveInactive)
	}
	if !decreaseAllowed {
		return fmt.Errorf("withdraw %s: %w", r.Asset, ErrTransferNotAllowed)
	}
	return nil
}

// ValidateBorrow gates new debt. amountValue is the oracle valuation (wad) of
// the requested amount; acct is the borrower's pre-borrow account data.
func ValidateBorrow(r *reserve.Reserve, mode RateMode, amount, amountValue *big.Int, acct *risk.AccountData) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !r.Config.Active {
		return fmt.Errorf("borrow %s: %w", r.Asset, ErrReserveInactive)
	}
	if r.Config.Frozen {
		return fmt.Errorf("borrow %s: %w", r.Asset, ErrReserveFrozen)
	}
	if !r.Config.BorrowingEnabled {
		return fmt.Errorf("borrow %s: %w", r.Asset, ErrBorrowingDisabled)
	}
	if mode != RateModeVariable {
		return fmt.Errorf("borrow %s with %s mode: %w", r.Asset, mode, ErrInvalidRateMode)
	}
	if acct.TotalCollateralValue.Sign() == 0 {
		return fmt.Errorf("borrow %s: %w", r.Asset, ErrInsufficientCollateral)
	}
	if acct.HealthFactor.Cmp(risk.HealthFactorLiquidationThreshold()) <= 0 {
		return fmt.Errorf("borrow %s: %w", r.Asset, ErrHealthFactorTooLow)
	}
	if acct.LTVBps == 0 {
		return fmt.Errorf("borrow %s: %w", r.Asset, ErrInsufficientCollateral)
	}

	needed, err := wadray.PercentDiv(new(big.Int).Add(acct.TotalDebtValue, amountValue), acct.LTVBps)
	if err != nil {
		return err
	}
	if needed.Cmp(acct.TotalCollateralValue) > 0 {
		return fmt.Errorf("borrow %s: need %s collateral, have %s: %w",
			r.Asset, needed, acct.TotalCollateralValue, ErrInsufficientCollateral)
	}
	return nil
}

// ValidateRepay gates debt repayment. repayAll marks the sentinel "repay
// everything" request, which only the debtor may use on their own debt.
func ValidateRepay(r *reserve.Reserve, amount *big.Int, repayAll, selfRepay bool, debt *big.Int) error {
	if !repayAll && (amount == nil || amount.Sign() <= 0) {
		return ErrInvalidAmount
	}
	if !r.Config.Active {
		return fmt.Errorf("repay %s: %w", r.Asset, ErrReserveInactive)
	}
	if debt.Sign() == 0 {
		return fmt.Errorf("repay %s: %w", r.Asset, ErrNoDebtOfSelectedType)
	}
	if repayAll && !selfRepay {
		return fmt.Errorf("repay %s: %w", r.Asset, ErrUnauthorizedRepayOnBehalf)
	}
	return nil
}

// ValidateOpenPosition gates leveraged opens: distinct short/long assets,
// leverage inside (1x, max], and all three reserves usable for their margin
// role.
func ValidateOpenPosition(collateralRes, shortRes, longRes *reserve.Reserve, leverageBps, maxLeverageBps uint64) error {
	if shortRes.Asset == longRes.Asset {
		return fmt.Errorf("short and long asset are both %s: %w", shortRes.Asset, ErrPositionInvalid)
	}
	if leverageBps <= 10_000 || leverageBps > maxLeverageBps {
		return fmt.Errorf("leverage %d bps outside (10000, %d]: %w", leverageBps, maxLeverageBps, ErrPositionInvalid)
	}

	for _, r := range []*reserve.Reserve{collateralRes, shortRes, longRes} {
		if !r.Config.Active {
			return fmt.Errorf("open position on %s: %w", r.Asset, ErrReserveInactive)
		}
		if r.Config.Frozen {
			return fmt.Errorf("open position on %s: %w", r.Asset, ErrReserveFrozen)
		}
		if !r.PositionConfig.Active {
			return fmt.Errorf("open position on %s: margin use disabled: %w", r.Asset, ErrPositionInvalid)
		}
	}

	if !collateralRes.PositionConfig.CollateralEnabled {
		return fmt.Errorf("collateral %s: %w", collateralRes.Asset, ErrCollateralNotEligible)
	}
	if !shortRes.PositionConfig.ShortEnabled {
		return fmt.Errorf("shorting %s disabled: %w", shortRes.Asset, ErrPositionInvalid)
	}
	if !shortRes.Config.BorrowingEnabled {
		return fmt.Errorf("shorting %s: %w", shortRes.Asset, ErrBorrowingDisabled)
	}
	if !longRes.PositionConfig.LongEnabled {
		return fmt.Errorf("going long %s disabled: %w", longRes.Asset, ErrPositionInvalid)
	}
	return nil
}

// ValidateClosePosition gates voluntary closes.
func ValidateClosePosition(p *state.Position, caller string) error {
	if p.Trader != caller {
		return fmt.Errorf("position %d belongs to %s: %w", p.ID, p.Trader, ErrPositionNotOwned)
	}
	if !p.IsOpen() {
		return fmt.Errorf("position %d is %s: %w", p.ID, p.Status, ErrPositionNotOpen)
	}
	return nil
}

// ValidateLiquidatePosition gates position force-closes.
func ValidateLiquidatePosition(p *state.Position, healthFactor *big.Int) error {
	if !p.IsOpen() {
		return fmt.Errorf("position %d is %s: %w", p.ID, p.Status, ErrPositionNotOpen)
	}
	if healthFactor.Cmp(risk.HealthFactorLiquidationThreshold()) >= 0 {
		return fmt.Errorf("position %d health factor %s: %w", p.ID, healthFactor, ErrPositionHealthy)
	}
	return nil
}

// LiquidationCode is the outer code of a whole-account liquidation check.
// The caller receives (code, reason) and decides whether to abort.
type LiquidationCode uint8

const (
	LiquidationOK LiquidationCode = iota
	LiquidationInactiveReserve
	LiquidationHealthNotBelowThreshold
	LiquidationCollateralCannotBeLiquidated
	LiquidationNoDebt
)

func (c LiquidationCode) String() string {
	switch c {
	case LiquidationOK:
		return "ok"
	case LiquidationInactiveReserve:
		return "inactive_reserve"
	case LiquidationHealthNotBelowThreshold:
		return "health_not_below_threshold"
	case LiquidationCollateralCannotBeLiquidated:
		return "collateral_cannot_be_liquidated"
	case LiquidationNoDebt:
		return "no_debt"
	default:
		return fmt.Sprintf("LiquidationCode(%d)", uint8(c))
	}
}

// ValidateLiquidationCall checks a whole-account liquidation. It returns a
// (code, reason) pair instead of a bare error so callers can distinguish
// parameter problems from unexpected state.
func ValidateLiquidationCall(collateralRes, debtRes *reserve.Reserve, healthFactor *big.Int, usedAsCollateral bool, userDebt *big.Int) (LiquidationCode, error) {
	if !collateralRes.Config.Active || !debtRes.Config.Active {
		return LiquidationInactiveReserve, fmt.Errorf("liquidate %s/%s: %w", collateralRes.Asset, debtRes.Asset, ErrReserveInactive)
	}
	if healthFactor.Cmp(risk.HealthFactorLiquidationThreshold()) >= 0 {
		return LiquidationHealthNotBelowThreshold, fmt.Errorf("health factor %s: %w", healthFactor, ErrPositionHealthy)
	}
	if collateralRes.Config.LiquidationThresholdBps == 0 || !usedAsCollateral {
		return LiquidationCollateralCannotBeLiquidated, fmt.Errorf("collateral %s: %w", collateralRes.Asset, ErrCollateralNotEligible)
	}
	if userDebt.Sign() == 0 {
		return LiquidationNoDebt, fmt.Errorf("debt asset %s: %w", debtRes.Asset, ErrNoDebtToLiquidate)
	}
	return LiquidationOK, nil
}
