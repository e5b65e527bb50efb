// Package risk aggregates a user's cross-asset collateral and debt into the
// figures every mutating operation is gated on: total values, weighted
// loan-to-value and liquidation threshold, and the health factor. It also
// prices leveraged positions (PnL, position health).
//
// Valuations are wad-scaled in the oracle's common unit; health factors are
// ray-scaled with 1.0 ray as the liquidation boundary.
package risk

import (
	"fmt"
	"math/big"

	"LeverPool/internal/capability"
	"LeverPool/internal/reserve"
	"LeverPool/internal/state"
	"LeverPool/internal/wadray"
)

// HealthFactorLiquidationThreshold is the boundary below which an account or
// position becomes liquidatable: exactly 1.0 in ray.
func HealthFactorLiquidationThreshold() *big.Int { return wadray.Ray() }

var maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// MaxHealthFactor is the "infinite" health factor reported for a zero-debt
// account.
func MaxHealthFactor() *big.Int { return new(big.Int).Set(maxHealthFactor) }

// ReserveSource is the view of the reserve arena the engine needs.
type ReserveSource interface {
	ReserveByAsset(asset string) (*reserve.Reserve, bool)
	Reserves() []*reserve.Reserve
}

type Engine struct {
	reserves ReserveSource
	oracle   capability.PriceOracle
}

func NewEngine(reserves ReserveSource, oracle capability.PriceOracle) *Engine {
	return &Engine{reserves: reserves, oracle: oracle}
}

// AccountData is the aggregated risk view of one user.
type AccountData struct {
	TotalCollateralValue  *big.Int // wad
	TotalDebtValue        *big.Int // wad
	AvailableBorrowsValue *big.Int // wad

	LTVBps                  uint64 // collateral-value-weighted average
	LiquidationThresholdBps uint64 // collateral-value-weighted average

	HealthFactor *big.Int // ray
}

// CalculateUserAccountData walks every reserve the user participates in and
// accumulates collateral and debt valuations.
func (e *Engine) CalculateUserAccountData(user string, cfg *state.UserConfiguration) (*AccountData, error) {
	totalCollateral := new(big.Int)
	totalDebt := new(big.Int)
	ltvAcc := new(big.Int)
	thresholdAcc := new(big.Int)

	for _, r := range e.reserves.Reserves() {
		usingCollateral := cfg.UsingAsCollateral(r.ID)
		borrowing := cfg.Borrowing(r.ID)
		if !usingCollateral && !borrowing {
			continue
		}

		price, err := e.oracle.GetAssetPrice(r.Asset)
		if err != nil {
			return nil, fmt.Errorf("risk: pricing %s: %w", r.Asset, err)
		}
		unit := r.Unit()

		if usingCollateral {
			balance := r.ReceiptToken.BalanceOf(user)
			if balance.Sign() > 0 {
				v := assetValue(balance, price, unit)
				totalCollateral.Add(totalCollateral, v)
				ltvAcc.Add(ltvAcc, new(big.Int).Mul(v, new(big.Int).SetUint64(r.Config.LTVBps)))
				thresholdAcc.Add(thresholdAcc, new(big.Int).Mul(v, new(big.Int).SetUint64(r.Config.LiquidationThresholdBps)))
			}
		}

		if borrowing {
			debt := r.DebtToken.BalanceOf(user)
			if debt.Sign() > 0 {
				totalDebt.Add(totalDebt, assetValue(debt, price, unit))
			}
		}
	}

	var ltvBps, thresholdBps uint64
	if totalCollateral.Sign() > 0 {
		ltvBps = new(big.Int).Quo(ltvAcc, totalCollateral).Uint64()
		thresholdBps = new(big.Int).Quo(thresholdAcc, totalCollateral).Uint64()
	}

	hf, err := HealthFactorFromValues(totalCollateral, thresholdBps, totalDebt)
	if err != nil {
		return nil, err
	}

	return &AccountData{
		TotalCollateralValue:    totalCollateral,
		TotalDebtValue:          totalDebt,
		AvailableBorrowsValue:   CalculateAvailableBorrows(totalCollateral, totalDebt, ltvBps),
		LTVBps:                  ltvBps,
		LiquidationThresholdBps: thresholdBps,
		HealthFactor:            hf,
	}, nil
}

// HealthFactorFromValues computes (collateral × threshold) / debt in ray.
// Zero debt yields MaxHealthFactor; division by zero never happens.
func HealthFactorFromValues(collateralValue *big.Int, thresholdBps uint64, debtValue *big.Int) (*big.Int, error) {
	if debtValue.Sign() == 0 {
		return MaxHealthFactor(), nil
	}
	hfWad, err := wadray.WadDiv(wadray.PercentMul(collateralValue, thresholdBps), debtValue)
	if err != nil {
		return nil, err
	}
	return wadray.WadToRay(hfWad), nil
}

// CalculateAvailableBorrows returns (collateral × LTV) − debt, floored at
// zero, in wad.
func CalculateAvailableBorrows(collateralValue, debtValue *big.Int, ltvBps uint64) *big.Int {
	out := wadray.PercentMul(collateralValue, ltvBps)
	out.Sub(out, debtValue)
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

// BalanceDecreaseAllowed simulates removing `amount` of `r`'s asset from the
// user's collateral and reports whether the account would stay at or above
// the liquidation boundary. Assets not contributing to collateral are always
// removable.
func (e *Engine) BalanceDecreaseAllowed(r *reserve.Reserve, user string, amount *big.Int, cfg *state.UserConfiguration) (bool, error) {
	if r.Config.LiquidationThresholdBps == 0 || !cfg.UsingAsCollateral(r.ID) {
		return true, nil
	}

	data, err := e.CalculateUserAccountData(user, cfg)
	if err != nil {
		return false, err
	}
	if data.TotalDebtValue.Sign() == 0 {
		return true, nil
	}

	price, err := e.oracle.GetAssetPrice(r.Asset)
	if err != nil {
		return false, fmt.Errorf("risk: pricing %s: %w", r.Asset, err)
	}
	amountValue := assetValue(amount, price, r.Unit())

	collateralAfter := new(big.Int).Sub(data.TotalCollateralValue, amountValue)
	if collateralAfter.Sign() <= 0 {
		return false, nil
	}

	// Re-derive the weighted threshold with the removed value excluded.
	weighted := new(big.Int).Mul(data.TotalCollateralValue, new(big.Int).SetUint64(data.LiquidationThresholdBps))
	weighted.Sub(weighted, new(big.Int).Mul(amountValue, new(big.Int).SetUint64(r.Config.LiquidationThresholdBps)))
	if weighted.Sign() < 0 {
		return false, nil
	}
	thresholdAfter := new(big.Int).Quo(weighted, collateralAfter).Uint64()

	hfAfter, err := HealthFactorFromValues(collateralAfter, thresholdAfter, data.TotalDebtValue)
	if err != nil {
		return false, err
	}
	return hfAfter.Cmp(HealthFactorLiquidationThreshold()) >= 0, nil
}

// CalculateAmountToShort converts an amount of the collateral asset into the
// short-asset amount of equal oracle value, adjusting for decimals.
func (e *Engine) CalculateAmountToShort(amount *big.Int, collateralAsset, shortAsset string) (*big.Int, error) {
	cr, ok := e.reserves.ReserveByAsset(collateralAsset)
	if !ok {
		return nil, fmt.Errorf("risk: unknown reserve %s", collateralAsset)
	}
	sr, ok := e.reserves.ReserveByAsset(shortAsset)
	if !ok {
		return nil, fmt.Errorf("risk: unknown reserve %s", shortAsset)
	}

	collateralPrice, err := e.oracle.GetAssetPrice(collateralAsset)
	if err != nil {
		return nil, fmt.Errorf("risk: pricing %s: %w", collateralAsset, err)
	}
	shortPrice, err := e.oracle.GetAssetPrice(shortAsset)
	if err != nil {
		return nil, fmt.Errorf("risk: pricing %s: %w", shortAsset, err)
	}
	if shortPrice.Sign() == 0 {
		return nil, fmt.Errorf("risk: zero price for %s: %w", shortAsset, wadray.ErrDivisionByZero)
	}

	v := assetValue(amount, collateralPrice, cr.Unit())
	out := new(big.Int).Mul(v, sr.Unit())
	return out.Quo(out, shortPrice), nil
}

// PositionPnL returns the signed unrealized profit of a position in wad:
// (long value + collateral value) − short debt value − collateral value at
// open.
func (e *Engine) PositionPnL(p *state.Position) (*big.Int, error) {
	longVal, collVal, shortVal, err := e.positionValues(p)
	if err != nil {
		return nil, err
	}
	pnl := new(big.Int).Add(longVal, collVal)
	pnl.Sub(pnl, shortVal)
	return pnl.Sub(pnl, p.CollateralValueAtOpen), nil
}

// PositionHealthFactor is (long value + collateral value) × threshold /
// short debt value in ray, with the same infinite-when-zero-debt rule as the
// account health factor.
func (e *Engine) PositionHealthFactor(p *state.Position, thresholdBps uint64) (*big.Int, error) {
	longVal, collVal, shortVal, err := e.positionValues(p)
	if err != nil {
		return nil, err
	}
	return HealthFactorFromValues(new(big.Int).Add(longVal, collVal), thresholdBps, shortVal)
}

func (e *Engine) positionValues(p *state.Position) (longVal, collVal, shortVal *big.Int, err error) {
	longVal, err = e.valueOf(p.LongAsset, p.LongAmount)
	if err != nil {
		return nil, nil, nil, err
	}
	collVal, err = e.valueOf(p.CollateralAsset, p.CollateralAmount)
	if err != nil {
		return nil, nil, nil, err
	}
	shortVal, err = e.valueOf(p.ShortAsset, p.ShortAmount)
	if err != nil {
		return nil, nil, nil, err
	}
	return longVal, collVal, shortVal, nil
}

func (e *Engine) valueOf(asset string, amount *big.Int) (*big.Int, error) {
	r, ok := e.reserves.ReserveByAsset(asset)
	if !ok {
		return nil, fmt.Errorf("risk: unknown reserve %s", asset)
	}
	price, err := e.oracle.GetAssetPrice(asset)
	if err != nil {
		return nil, fmt.Errorf("risk: pricing %s: %w", asset, err)
	}
	return assetValue(amount, price, r.Unit()), nil
}

// assetValue converts a native-decimals amount to a wad valuation.
func assetValue(amount, price, unit *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, price)
	return out.Quo(out, unit)
}
