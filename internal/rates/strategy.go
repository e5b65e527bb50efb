// Package rates computes reserve interest rates from utilization. The default
// strategy is a two-slope curve kinked at an optimal utilization point: below
// the kink the borrow rate climbs gently, above it the second slope makes
// idle-liquidity exhaustion expensive.
package rates

import (
	"fmt"
	"math/big"

	"LeverPool/internal/wadray"
)

// Strategy matches the rate-strategy capability consumed by reserves. All
// rates are ray-scaled and annualized.
type Strategy interface {
	// CalculateInterestRates derives the liquidity and borrow rates from the
	// reserve's available liquidity and total outstanding debt. The reserve
	// factor (basis points) is carved out of depositor yield as protocol
	// revenue.
	CalculateInterestRates(availableLiquidity, totalDebt *big.Int, reserveFactorBps uint64) (liquidityRate, borrowRate *big.Int, err error)
}

// DefaultStrategy is the kinked two-slope curve.
type DefaultStrategy struct {
	optimalUtilization *big.Int // ray
	excessUtilization  *big.Int // ray - optimal
	baseBorrowRate     *big.Int // ray
	slope1             *big.Int // ray
	slope2             *big.Int // ray
}

// NewDefaultStrategy validates the curve parameters. The optimal utilization
// must sit strictly inside (0, 1) so both curve segments are well defined.
func NewDefaultStrategy(optimalUtilization, baseBorrowRate, slope1, slope2 *big.Int) (*DefaultStrategy, error) {
	if optimalUtilization.Sign() <= 0 || optimalUtilization.Cmp(wadray.Ray()) >= 0 {
		return nil, fmt.Errorf("rates: optimal utilization %s outside (0, 1) ray", optimalUtilization)
	}
	for name, v := range map[string]*big.Int{"base rate": baseBorrowRate, "slope1": slope1, "slope2": slope2} {
		if v.Sign() < 0 {
			return nil, fmt.Errorf("rates: negative %s", name)
		}
	}
	return &DefaultStrategy{
		optimalUtilization: new(big.Int).Set(optimalUtilization),
		excessUtilization:  new(big.Int).Sub(wadray.Ray(), optimalUtilization),
		baseBorrowRate:     new(big.Int).Set(baseBorrowRate),
		slope1:             new(big.Int).Set(slope1),
		slope2:             new(big.Int).Set(slope2),
	}, nil
}

func (s *DefaultStrategy) CalculateInterestRates(availableLiquidity, totalDebt *big.Int, reserveFactorBps uint64) (*big.Int, *big.Int, error) {
	if reserveFactorBps > 10_000 {
		return nil, nil, fmt.Errorf("rates: reserve factor %d above 100%%", reserveFactorBps)
	}

	if totalDebt.Sign() == 0 {
		return new(big.Int), new(big.Int).Set(s.baseBorrowRate), nil
	}

	utilization, err := wadray.RayDiv(totalDebt, new(big.Int).Add(availableLiquidity, totalDebt))
	if err != nil {
		return nil, nil, err
	}

	borrowRate := new(big.Int).Set(s.baseBorrowRate)
	if utilization.Cmp(s.optimalUtilization) <= 0 {
		ratio, err := wadray.RayDiv(utilization, s.optimalUtilization)
		if err != nil {
			return nil, nil, err
		}
		borrowRate.Add(borrowRate, wadray.RayMul(s.slope1, ratio))
	} else {
		excessRatio, err := wadray.RayDiv(new(big.Int).Sub(utilization, s.optimalUtilization), s.excessUtilization)
		if err != nil {
			return nil, nil, err
		}
		borrowRate.Add(borrowRate, s.slope1)
		borrowRate.Add(borrowRate, wadray.RayMul(s.slope2, excessRatio))
	}

	// Depositors earn the borrow rate weighted by utilization, minus the
	// protocol's cut.
	liquidityRate := wadray.RayMul(borrowRate, utilization)
	liquidityRate = wadray.PercentMul(liquidityRate, 10_000-reserveFactorBps)

	return liquidityRate, borrowRate, nil
}
