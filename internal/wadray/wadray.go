// Package wadray implements the fixed-point arithmetic used across the pool:
// wad (18 decimals) for prices and valuations, ray (27 decimals) for interest
// rates and cumulative indices, and basis-point percentage math (10000 = 100%).
//
// All amounts are *big.Int, so results are always representable; the only
// arithmetic failure mode is division by zero. Multiply and divide round
// half-up, matching the index bookkeeping the rest of the pool assumes.
package wadray

import (
	"errors"
	"math/big"
)

var (
	wad     = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	halfWad = new(big.Int).Quo(wad, big.NewInt(2))

	ray     = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	halfRay = new(big.Int).Quo(ray, big.NewInt(2))

	// ray = wad * 1e9
	wadRayRatio     = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)
	halfWadRayRatio = new(big.Int).Quo(wadRayRatio, big.NewInt(2))

	percentageFactor = big.NewInt(10_000)
	halfPercentage   = big.NewInt(5_000)
)

// ErrDivisionByZero is returned by the divide operations when the divisor is
// zero. Callers are expected to guard the zero-debt case before dividing.
var ErrDivisionByZero = errors.New("wadray: division by zero")

// Wad returns 1e18 as a fresh value.
func Wad() *big.Int { return new(big.Int).Set(wad) }

// Ray returns 1e27 as a fresh value.
func Ray() *big.Int { return new(big.Int).Set(ray) }

// HalfRay returns 5e26 as a fresh value.
func HalfRay() *big.Int { return new(big.Int).Set(halfRay) }

// PercentageFactor returns the basis-point denominator, 10000.
func PercentageFactor() *big.Int { return new(big.Int).Set(percentageFactor) }

// WadMul multiplies two wad values, rounding half-up.
func WadMul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	out.Add(out, halfWad)
	return out.Quo(out, wad)
}

// WadDiv divides wad a by wad b, rounding half-up.
func WadDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	out := new(big.Int).Mul(a, wad)
	out.Add(out, new(big.Int).Quo(b, big.NewInt(2)))
	return out.Quo(out, b), nil
}

// RayMul multiplies two ray values, rounding half-up.
func RayMul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	out.Add(out, halfRay)
	return out.Quo(out, ray)
}

// RayDiv divides ray a by ray b, rounding half-up.
func RayDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	out := new(big.Int).Mul(a, ray)
	out.Add(out, new(big.Int).Quo(b, big.NewInt(2)))
	return out.Quo(out, b), nil
}

// RayToWad converts a ray value to wad, rounding half-up on the dropped
// 9 digits.
func RayToWad(a *big.Int) *big.Int {
	out := new(big.Int).Add(a, halfWadRayRatio)
	return out.Quo(out, wadRayRatio)
}

// WadToRay converts a wad value to ray. The conversion is exact.
func WadToRay(a *big.Int) *big.Int {
	return new(big.Int).Mul(a, wadRayRatio)
}

// PercentMul applies a basis-point percentage to a value, rounding half-up.
// PercentMul(x, 10000) == x.
func PercentMul(value *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(value, new(big.Int).SetUint64(bps))
	out.Add(out, halfPercentage)
	return out.Quo(out, percentageFactor)
}

// PercentDiv divides a value by a basis-point percentage, rounding half-up.
// PercentDiv(x, 10000) == x.
func PercentDiv(value *big.Int, bps uint64) (*big.Int, error) {
	if bps == 0 {
		return nil, ErrDivisionByZero
	}
	d := new(big.Int).SetUint64(bps)
	out := new(big.Int).Mul(value, percentageFactor)
	out.Add(out, new(big.Int).Quo(d, big.NewInt(2)))
	return out.Quo(out, d), nil
}

// Min returns the smaller of a and b as a fresh value.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
