package validation

import (
	"errors"
	"math/big"
	"testing"

	"LeverPool/internal/reserve"
	"LeverPool/internal/risk"
	"LeverPool/internal/state"
	"LeverPool/internal/wadray"
)

func wadAmount(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wadray.Wad())
}

func activeReserve(asset string) *reserve.Reserve {
	return &reserve.Reserve{
		Asset: asset,
		Config: reserve.Config{
			LTVBps:                  6_000,
			LiquidationThresholdBps: 6_500,
			Decimals:                18,
			Active:                  true,
			BorrowingEnabled:        true,
		},
		PositionConfig: reserve.PositionConfig{
			Active:            true,
			CollateralEnabled: true,
			LongEnabled:       true,
			ShortEnabled:      true,
		},
	}
}

func TestValidateSupply(t *testing.T) {
	r := activeReserve("USDC")

	if err := ValidateSupply(r, wadAmount(1)); err != nil {
		t.Fatalf("valid supply rejected: %v", err)
	}
	if err := ValidateSupply(r, new(big.Int)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}

	r.Config.Active = false
	if err := ValidateSupply(r, wadAmount(1)); !errors.Is(err, ErrReserveInactive) {
		t.Fatalf("inactive reserve: got %v", err)
	}

	r.Config.Active = true
	r.Config.Frozen = true
	if err := ValidateSupply(r, wadAmount(1)); !errors.Is(err, ErrReserveFrozen) {
		t.Fatalf("frozen reserve: got %v", err)
	}
}

func TestValidateWithdraw(t *testing.T) {
	r := activeReserve("USDC")
	balance := wadAmount(100)

	if err := ValidateWithdraw(r, wadAmount(50), balance, true); err != nil {
		t.Fatalf("valid withdraw rejected: %v", err)
	}
	if err := ValidateWithdraw(r, wadAmount(101), balance, true); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw: got %v", err)
	}
	if err := ValidateWithdraw(r, wadAmount(50), balance, false); !errors.Is(err, ErrTransferNotAllowed) {
		t.Fatalf("health-violating withdraw: got %v", err)
	}

	// Frozen reserves still allow withdrawals.
	r.Config.Frozen = true
	if err := ValidateWithdraw(r, wadAmount(50), balance, true); err != nil {
		t.Fatalf("withdraw from frozen reserve rejected: %v", err)
	}
}

func healthyAccount() *risk.AccountData {
	hf, _ := risk.HealthFactorFromValues(wadAmount(100), 6_500, wadAmount(50))
	return &risk.AccountData{
		TotalCollateralValue: wadAmount(100),
		TotalDebtValue:       wadAmount(50),
		LTVBps:               6_000,
		HealthFactor:         hf,
	}
}

func TestValidateBorrow(t *testing.T) {
	r := activeReserve("DEBT")
	acct := healthyAccount()

	// Scenario: 50 debt + 20 more against 100 collateral at 60% LTV needs
	// 116.67 collateral.
	err := ValidateBorrow(r, RateModeVariable, wadAmount(20), wadAmount(20), acct)
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("over-LTV borrow: got %v", err)
	}

	// 50 + 10 needs exactly 100: allowed.
	if err := ValidateBorrow(r, RateModeVariable, wadAmount(10), wadAmount(10), acct); err != nil {
		t.Fatalf("valid borrow rejected: %v", err)
	}

	if err := ValidateBorrow(r, RateModeStable, wadAmount(10), wadAmount(10), acct); !errors.Is(err, ErrInvalidRateMode) {
		t.Fatalf("stable mode: got %v", err)
	}
	if err := ValidateBorrow(r, RateModeVariable, new(big.Int), new(big.Int), acct); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}

	noCollateral := &risk.AccountData{
		TotalCollateralValue: new(big.Int),
		TotalDebtValue:       new(big.Int),
		HealthFactor:         risk.MaxHealthFactor(),
	}
	if err := ValidateBorrow(r, RateModeVariable, wadAmount(1), wadAmount(1), noCollateral); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("no collateral: got %v", err)
	}

	unhealthy := healthyAccount()
	unhealthy.HealthFactor = new(big.Int).Sub(risk.HealthFactorLiquidationThreshold(), big.NewInt(1))
	if err := ValidateBorrow(r, RateModeVariable, wadAmount(1), wadAmount(1), unhealthy); !errors.Is(err, ErrHealthFactorTooLow) {
		t.Fatalf("unhealthy account: got %v", err)
	}

	r.Config.BorrowingEnabled = false
	if err := ValidateBorrow(r, RateModeVariable, wadAmount(1), wadAmount(1), acct); !errors.Is(err, ErrBorrowingDisabled) {
		t.Fatalf("borrowing disabled: got %v", err)
	}
}

func TestValidateRepay(t *testing.T) {
	r := activeReserve("DEBT")
	debt := wadAmount(50)

	if err := ValidateRepay(r, wadAmount(10), false, false, debt); err != nil {
		t.Fatalf("valid repay rejected: %v", err)
	}
	if err := ValidateRepay(r, new(big.Int), false, true, debt); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if err := ValidateRepay(r, wadAmount(10), false, true, new(big.Int)); !errors.Is(err, ErrNoDebtOfSelectedType) {
		t.Fatalf("no debt: got %v", err)
	}
	if err := ValidateRepay(r, nil, true, false, debt); !errors.Is(err, ErrUnauthorizedRepayOnBehalf) {
		t.Fatalf("repay-all on behalf: got %v", err)
	}
	if err := ValidateRepay(r, nil, true, true, debt); err != nil {
		t.Fatalf("self repay-all rejected: %v", err)
	}
}

func TestValidateOpenPosition(t *testing.T) {
	coll := activeReserve("USDC")
	short := activeReserve("USDT")
	long := activeReserve("WETH")
	const maxLeverage = 50_000

	if err := ValidateOpenPosition(coll, short, long, 30_000, maxLeverage); err != nil {
		t.Fatalf("valid open rejected: %v", err)
	}

	if err := ValidateOpenPosition(coll, short, short, 30_000, maxLeverage); !errors.Is(err, ErrPositionInvalid) {
		t.Fatalf("same short/long: got %v", err)
	}
	if err := ValidateOpenPosition(coll, short, long, 10_000, maxLeverage); !errors.Is(err, ErrPositionInvalid) {
		t.Fatalf("1x leverage: got %v", err)
	}
	if err := ValidateOpenPosition(coll, short, long, maxLeverage+1, maxLeverage); !errors.Is(err, ErrPositionInvalid) {
		t.Fatalf("above-max leverage: got %v", err)
	}

	short.Config.Frozen = true
	if err := ValidateOpenPosition(coll, short, long, 30_000, maxLeverage); !errors.Is(err, ErrReserveFrozen) {
		t.Fatalf("frozen short reserve: got %v", err)
	}
	short.Config.Frozen = false

	coll.PositionConfig.CollateralEnabled = false
	if err := ValidateOpenPosition(coll, short, long, 30_000, maxLeverage); !errors.Is(err, ErrCollateralNotEligible) {
		t.Fatalf("collateral disabled: got %v", err)
	}
	coll.PositionConfig.CollateralEnabled = true

	short.Config.BorrowingEnabled = false
	if err := ValidateOpenPosition(coll, short, long, 30_000, maxLeverage); !errors.Is(err, ErrBorrowingDisabled) {
		t.Fatalf("short borrowing disabled: got %v", err)
	}
}

func TestValidateClosePosition(t *testing.T) {
	p := &state.Position{ID: 7, Trader: "alice", Status: state.PositionOpen}

	if err := ValidateClosePosition(p, "alice"); err != nil {
		t.Fatalf("owner close rejected: %v", err)
	}
	if err := ValidateClosePosition(p, "mallory"); !errors.Is(err, ErrPositionNotOwned) {
		t.Fatalf("foreign close: got %v", err)
	}

	p.Status = state.PositionClosed
	if err := ValidateClosePosition(p, "alice"); !errors.Is(err, ErrPositionNotOpen) {
		t.Fatalf("double close: got %v", err)
	}
}

func TestValidateLiquidatePosition(t *testing.T) {
	p := &state.Position{ID: 3, Trader: "alice", Status: state.PositionOpen}
	below := new(big.Int).Sub(risk.HealthFactorLiquidationThreshold(), big.NewInt(1))

	if err := ValidateLiquidatePosition(p, below); err != nil {
		t.Fatalf("unhealthy position rejected: %v", err)
	}
	if err := ValidateLiquidatePosition(p, risk.HealthFactorLiquidationThreshold()); !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("boundary health factor: got %v", err)
	}

	p.Status = state.PositionLiquidated
	if err := ValidateLiquidatePosition(p, below); !errors.Is(err, ErrPositionNotOpen) {
		t.Fatalf("double liquidation: got %v", err)
	}
}

func TestValidateLiquidationCall(t *testing.T) {
	coll := activeReserve("USDC")
	debtRes := activeReserve("USDT")
	below := new(big.Int).Sub(risk.HealthFactorLiquidationThreshold(), big.NewInt(1))

	code, err := ValidateLiquidationCall(coll, debtRes, below, true, wadAmount(50))
	if code != LiquidationOK || err != nil {
		t.Fatalf("valid call: code=%s err=%v", code, err)
	}

	code, err = ValidateLiquidationCall(coll, debtRes, risk.HealthFactorLiquidationThreshold(), true, wadAmount(50))
	if code != LiquidationHealthNotBelowThreshold || !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("healthy target: code=%s err=%v", code, err)
	}

	code, err = ValidateLiquidationCall(coll, debtRes, below, false, wadAmount(50))
	if code != LiquidationCollateralCannotBeLiquidated || !errors.Is(err, ErrCollateralNotEligible) {
		t.Fatalf("unused collateral: code=%s err=%v", code, err)
	}

	code, err = ValidateLiquidationCall(coll, debtRes, below, true, new(big.Int))
	if code != LiquidationNoDebt || !errors.Is(err, ErrNoDebtToLiquidate) {
		t.Fatalf("no debt: code=%s err=%v", code, err)
	}

	debtRes.Config.Active = false
	code, err = ValidateLiquidationCall(coll, debtRes, below, true, wadAmount(50))
	if code != LiquidationInactiveReserve || !errors.Is(err, ErrReserveInactive) {
		t.Fatalf("inactive reserve: code=%s err=%v", code, err)
	}
}
