package validation

import "errors"

// Sentinel error kinds surfaced by the precondition checks. Callers branch
// with errors.Is; the wrapped message carries the asset or position context.
var (
	ErrInvalidAmount             = errors.New("amount must be greater than zero")
	ErrReserveInactive           = errors.New("reserve is not active")
	ErrReserveFrozen             = errors.New("reserve is frozen")
	ErrInsufficientBalance       = errors.New("amount exceeds user balance")
	ErrTransferNotAllowed        = errors.New("decrease would leave the account undercollateralized")
	ErrBorrowingDisabled         = errors.New("borrowing is not enabled on this reserve")
	ErrInvalidRateMode           = errors.New("unsupported interest rate mode")
	ErrInsufficientCollateral    = errors.New("collateral cannot cover the requested debt")
	ErrHealthFactorTooLow        = errors.New("health factor at or below the liquidation threshold")
	ErrNoDebtOfSelectedType      = errors.New("no outstanding debt of the selected type")
	ErrUnauthorizedRepayOnBehalf = errors.New("repay-all on behalf of another address is not allowed")

	ErrPositionInvalid  = errors.New("position parameters are invalid")
	ErrPositionNotOpen  = errors.New("position is not open")
	ErrPositionNotOwned = errors.New("caller does not own the position")
	ErrPositionHealthy  = errors.New("health factor above the liquidation threshold")

	ErrCollateralNotEligible        = errors.New("collateral is not eligible")
	ErrNoDebtToLiquidate            = errors.New("target has no debt in the selected asset")
	ErrInsufficientReserveLiquidity = errors.New("reserve lacks available underlying liquidity")
)
