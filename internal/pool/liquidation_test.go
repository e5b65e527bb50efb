package pool

import (
	"errors"
	"math/big"
	"testing"

	"LeverPool/internal/event"
	"LeverPool/internal/state"
	"LeverPool/internal/validation"
)

// setupUnderwaterAccount gives alice 100 DAI of collateral and 50 USDT of
// debt, then crashes DAI to $0.60 so her health factor lands at
// 60 × 0.75 / 50 = 0.9.
func setupUnderwaterAccount(t *testing.T, f *fixture) {
	t.Helper()
	f.supply("alice", assetDAI, wad(100))
	f.supply("lp", assetUSDT, usdt(1_000))
	if err := f.pool.Borrow("alice", assetUSDT, usdt(50), validation.RateModeVariable); err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	f.now += 60
	f.oracle.SetPrice(assetDAI, new(big.Int).Mul(big.NewInt(6), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)))
}

func TestLiquidationCallHealthyAccountRejected(t *testing.T) {
	f := newFixture(t)

	f.supply("alice", assetDAI, wad(100))
	f.supply("lp", assetUSDT, usdt(1_000))
	if err := f.pool.Borrow("alice", assetUSDT, usdt(50), validation.RateModeVariable); err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	f.fund(assetUSDT, "liq", usdt(100))
	_, _, err := f.pool.LiquidationCall("liq", assetDAI, assetUSDT, "alice", usdt(25), false)
	if !errors.Is(err, validation.ErrPositionHealthy) {
		t.Fatalf("err = %v, want ErrPositionHealthy", err)
	}
}

func TestLiquidationCallCloseFactorAndBonus(t *testing.T) {
	f := newFixture(t)
	setupUnderwaterAccount(t, f)

	f.fund(assetUSDT, "liq", usdt(100))
	covered, seized, err := f.pool.LiquidationCall("liq", assetDAI, assetUSDT, "alice", MaxInput, false)
	if err != nil {
		t.Fatalf("LiquidationCall: %v", err)
	}

	// Close factor caps coverage at half the debt: 25 USDT. At $0.60 that
	// repurchases 25/0.6 DAI, grossed up by the 105% bonus: 43.75 DAI.
	if covered.Cmp(usdt(25)) != 0 {
		t.Fatalf("covered %s, want 25 USDT", covered)
	}
	wantSeized := new(big.Int).Mul(big.NewInt(4_375), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	if seized.Cmp(wantSeized) != 0 {
		t.Fatalf("seized %s, want 43.75 DAI", seized)
	}

	// Receipt tokens moved to the liquidator, whose collateral flag is now
	// set; alice keeps the remainder.
	rDAI, _ := f.pool.ReserveByAsset(assetDAI)
	if got := rDAI.ReceiptToken.BalanceOf("liq"); got.Cmp(wantSeized) != 0 {
		t.Fatalf("liquidator receipt balance %s, want %s", got, wantSeized)
	}
	wantRemainder := new(big.Int).Sub(wad(100), wantSeized)
	if got := rDAI.ReceiptToken.BalanceOf("alice"); got.Cmp(wantRemainder) != 0 {
		t.Fatalf("alice receipt balance %s, want %s", got, wantRemainder)
	}

	rUSDT, _ := f.pool.ReserveByAsset(assetUSDT)
	if got := rUSDT.DebtToken.BalanceOf("alice"); got.Cmp(usdt(25)) != 0 {
		t.Fatalf("alice debt %s, want 25 USDT", got)
	}
	if got := f.ledger.Balance(assetUSDT, "liq"); got.Cmp(usdt(75)) != 0 {
		t.Fatalf("liquidator left with %s USDT, want 75", got)
	}

	types := f.eventTypes()
	sawEnable, sawCall := false, false
	for _, ty := range types {
		if ty == event.TypeCollateralEnabled {
			sawEnable = true
		}
		if ty == event.TypeLiquidationCall {
			sawCall = true
		}
	}
	if !sawEnable || !sawCall {
		t.Fatalf("missing liquidation events in %v", types)
	}
}

func TestLiquidationCallReceiveUnderlying(t *testing.T) {
	f := newFixture(t)
	setupUnderwaterAccount(t, f)

	f.fund(assetUSDT, "liq", usdt(100))
	_, seized, err := f.pool.LiquidationCall("liq", assetDAI, assetUSDT, "alice", usdt(25), true)
	if err != nil {
		t.Fatalf("LiquidationCall: %v", err)
	}
	if got := f.ledger.Balance(assetDAI, "liq"); got.Cmp(seized) != 0 {
		t.Fatalf("liquidator holds %s DAI underlying, want %s", got, seized)
	}

	// The underlying left the reserve.
	view, err := f.pool.ReserveView(assetDAI)
	if err != nil {
		t.Fatalf("ReserveView: %v", err)
	}
	want := new(big.Int).Sub(wad(100), seized)
	if view.AvailableLiquidity.Cmp(want) != 0 {
		t.Fatalf("reserve liquidity %s, want %s", view.AvailableLiquidity, want)
	}
}

func TestLiquidationCallInsufficientReserveLiquidity(t *testing.T) {
	f := newFixture(t)
	setupUnderwaterAccount(t, f)

	// Drain the DAI reserve: a whale with USDT collateral borrows 90 of the
	// 100 DAI, leaving less than the 43.75 the liquidator would seize.
	f.supply("whale", assetUSDT, usdt(500))
	if err := f.pool.Borrow("whale", assetDAI, wad(90), validation.RateModeVariable); err != nil {
		t.Fatalf("whale borrow: %v", err)
	}

	f.fund(assetUSDT, "liq", usdt(100))
	_, _, err := f.pool.LiquidationCall("liq", assetDAI, assetUSDT, "alice", MaxInput, true)
	if !errors.Is(err, validation.ErrInsufficientReserveLiquidity) {
		t.Fatalf("err = %v, want ErrInsufficientReserveLiquidity", err)
	}

	// Receipt-token settlement is still possible.
	if _, _, err := f.pool.LiquidationCall("liq", assetDAI, assetUSDT, "alice", MaxInput, false); err != nil {
		t.Fatalf("receipt-token liquidation: %v", err)
	}
}

func TestLiquidationCallSeizureCap(t *testing.T) {
	f := newFixture(t)

	// Bob's collateral is small: 10 DAI against 6 USDT of debt. A crash to
	// $0.10 leaves 1.0 of collateral value under 6 of debt.
	f.supply("bob", assetDAI, wad(10))
	f.supply("lp", assetUSDT, usdt(1_000))
	if err := f.pool.Borrow("bob", assetUSDT, usdt(6), validation.RateModeVariable); err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	f.now += 60
	f.oracle.SetPrice(assetDAI, new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))

	f.fund(assetUSDT, "liq", usdt(100))
	covered, seized, err := f.pool.LiquidationCall("liq", assetDAI, assetUSDT, "bob", usdt(3), false)
	if err != nil {
		t.Fatalf("LiquidationCall: %v", err)
	}

	// 3 USDT would repurchase 31.5 DAI with the bonus, far above bob's 10:
	// the seizure caps at the full balance and the covered debt back-solves
	// to floor(10 × 0.10 / 1.05) = 0.952380 USDT.
	if seized.Cmp(wad(10)) != 0 {
		t.Fatalf("seized %s, want all 10 DAI", seized)
	}
	if covered.Cmp(big.NewInt(952_380)) != 0 {
		t.Fatalf("covered %s, want 952380 (0.95238 USDT)", covered)
	}

	// The cap emptied bob's collateral, clearing his flag.
	sawDisable := false
	for _, rec := range f.events.Records() {
		if rec.Type == event.TypeCollateralDisabled && rec.User == "bob" {
			sawDisable = true
		}
	}
	if !sawDisable {
		t.Fatal("full seizure did not clear the collateral flag")
	}
}

func TestLiquidationCallVaultProtected(t *testing.T) {
	f := newFixture(t)

	f.fund(assetUSDT, "liq", usdt(100))
	_, _, err := f.pool.LiquidationCall("liq", assetDAI, assetUSDT, vaultAddr, usdt(25), false)
	if !errors.Is(err, validation.ErrPositionInvalid) {
		t.Fatalf("err = %v, want ErrPositionInvalid", err)
	}
}

func TestLiquidatePositionHealthyRejected(t *testing.T) {
	f := newFixture(t)

	pos := openStandardPosition(t, f, "tina")

	f.fund(assetUSDT, "liq", usdt(5_000))
	err := f.pool.LiquidatePosition("liq", pos.ID)
	if !errors.Is(err, validation.ErrPositionHealthy) {
		t.Fatalf("err = %v, want ErrPositionHealthy", err)
	}
}

func TestLiquidatePosition(t *testing.T) {
	f := newFixture(t)

	pos := openStandardPosition(t, f, "tina")

	// WETH at 1800 puts the position at (1800 + 1000) × 0.7 / 2000 = 0.98.
	f.now += 60
	f.oracle.SetPrice(assetWETH, wad(1_800))

	f.fund(assetUSDT, "liq", usdt(5_000))
	if err := f.pool.LiquidatePosition("liq", pos.ID); err != nil {
		t.Fatalf("LiquidatePosition: %v", err)
	}

	if pos.Status != state.PositionLiquidated {
		t.Fatalf("status %s, want Liquidated", pos.Status)
	}

	// The liquidator repaid the 2000 USDT debt and took the whole position.
	if got := f.ledger.Balance(assetUSDT, "liq"); got.Cmp(usdt(3_000)) != 0 {
		t.Fatalf("liquidator USDT %s, want 3000", got)
	}
	if got := f.ledger.Balance(assetWETH, "liq"); got.Cmp(wad(1)) != 0 {
		t.Fatalf("liquidator WETH %s, want 1", got)
	}
	if got := f.ledger.Balance(assetDAI, "liq"); got.Cmp(wad(1_000)) != 0 {
		t.Fatalf("liquidator DAI %s, want 1000", got)
	}

	r, _ := f.pool.ReserveByAsset(assetUSDT)
	if got := r.DebtToken.BalanceOf(vaultAddr); got.Sign() != 0 {
		t.Fatalf("vault still owes %s USDT", got)
	}

	last := f.lastEvent()
	if last.Type != event.TypePositionLiquidated || last.Liquidator != "liq" {
		t.Fatalf("unexpected last event %+v", last)
	}

	// Terminal: neither a second liquidation nor a close can touch it.
	if err := f.pool.LiquidatePosition("liq", pos.ID); !errors.Is(err, validation.ErrPositionNotOpen) {
		t.Fatalf("double liquidation err = %v, want ErrPositionNotOpen", err)
	}
	if _, _, err := f.pool.ClosePosition("tina", pos.ID, "", nil, nil); !errors.Is(err, validation.ErrPositionNotOpen) {
		t.Fatalf("close after liquidation err = %v, want ErrPositionNotOpen", err)
	}
}
