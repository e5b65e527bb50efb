package risk

import (
	"math/big"
	"testing"

	"LeverPool/internal/capability"
	"LeverPool/internal/reserve"
	"LeverPool/internal/state"
	"LeverPool/internal/wadray"
)

type reserveSet struct {
	list    []*reserve.Reserve
	byAsset map[string]*reserve.Reserve
}

func (s *reserveSet) ReserveByAsset(asset string) (*reserve.Reserve, bool) {
	r, ok := s.byAsset[asset]
	return r, ok
}

func (s *reserveSet) Reserves() []*reserve.Reserve { return s.list }

type fixture struct {
	set    *reserveSet
	oracle *capability.MemOracle
	ledger *capability.Ledger
	engine *Engine
	users  *state.UserRegistry
}

func wadAmount(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wadray.Wad())
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		set:    &reserveSet{byAsset: make(map[string]*reserve.Reserve)},
		oracle: capability.NewMemOracle(),
		ledger: capability.NewLedger(),
		users:  state.NewUserRegistry(),
	}
	f.engine = NewEngine(f.set, f.oracle)
	return f
}

func (f *fixture) addReserve(t *testing.T, asset string, decimals uint8, cfg reserve.Config) *reserve.Reserve {
	t.Helper()
	cfg.Decimals = decimals
	cfg.Active = true
	receipt := capability.NewMemReceiptToken(f.ledger, asset, "recv:"+asset)
	debt := capability.NewMemDebtToken(asset)
	r := reserve.New(uint8(len(f.set.list)), asset, cfg, reserve.PositionConfig{}, receipt, debt, nil)
	f.set.list = append(f.set.list, r)
	f.set.byAsset[asset] = r
	return r
}

func (f *fixture) supply(t *testing.T, r *reserve.Reserve, user string, amount *big.Int) {
	t.Helper()
	if _, err := r.ReceiptToken.Mint(user, amount, wadray.Ray()); err != nil {
		t.Fatalf("mint receipt: %v", err)
	}
	f.users.Get(user).SetUsingAsCollateral(r.ID, true)
}

func (f *fixture) borrow(t *testing.T, r *reserve.Reserve, user string, amount *big.Int) {
	t.Helper()
	if _, err := r.DebtToken.Mint("pool", user, amount, wadray.Ray()); err != nil {
		t.Fatalf("mint debt: %v", err)
	}
	f.users.Get(user).SetBorrowing(r.ID, true)
}

func scenarioFixture(t *testing.T) (*fixture, *reserve.Reserve, *reserve.Reserve) {
	f := newFixture(t)
	coll := f.addReserve(t, "COLL", 18, reserve.Config{
		LTVBps: 6_000, LiquidationThresholdBps: 6_500, LiquidationBonusBps: 10_500,
	})
	debt := f.addReserve(t, "DEBT", 18, reserve.Config{
		LTVBps: 7_000, LiquidationThresholdBps: 7_500, LiquidationBonusBps: 10_500, BorrowingEnabled: true,
	})
	f.oracle.SetPrice("COLL", wadray.Wad())
	f.oracle.SetPrice("DEBT", wadray.Wad())
	return f, coll, debt
}

func TestAccountDataHundredCollateralFiftyDebt(t *testing.T) {
	f, coll, debt := scenarioFixture(t)
	f.supply(t, coll, "alice", wadAmount(100))
	f.borrow(t, debt, "alice", wadAmount(50))

	data, err := f.engine.CalculateUserAccountData("alice", f.users.Get("alice"))
	if err != nil {
		t.Fatalf("account data: %v", err)
	}

	if data.TotalCollateralValue.Cmp(wadAmount(100)) != 0 {
		t.Fatalf("collateral = %s, want 100 wad", data.TotalCollateralValue)
	}
	if data.TotalDebtValue.Cmp(wadAmount(50)) != 0 {
		t.Fatalf("debt = %s, want 50 wad", data.TotalDebtValue)
	}
	if data.LTVBps != 6_000 || data.LiquidationThresholdBps != 6_500 {
		t.Fatalf("weighted params = %d/%d, want 6000/6500", data.LTVBps, data.LiquidationThresholdBps)
	}

	// 100 * 0.65 / 50 = 1.3 ray
	wantHF := new(big.Int).Mul(big.NewInt(13), wadray.Ray())
	wantHF.Quo(wantHF, big.NewInt(10))
	if data.HealthFactor.Cmp(wantHF) != 0 {
		t.Fatalf("health factor = %s, want %s", data.HealthFactor, wantHF)
	}

	// 100 * 0.60 - 50 = 10 wad of headroom
	if data.AvailableBorrowsValue.Cmp(wadAmount(10)) != 0 {
		t.Fatalf("available borrows = %s, want 10 wad", data.AvailableBorrowsValue)
	}
}

func TestHealthFactorInfiniteWithoutDebt(t *testing.T) {
	f, coll, _ := scenarioFixture(t)
	f.supply(t, coll, "alice", wadAmount(100))

	data, err := f.engine.CalculateUserAccountData("alice", f.users.Get("alice"))
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	if data.HealthFactor.Cmp(MaxHealthFactor()) != 0 {
		t.Fatalf("zero-debt health factor = %s, want max", data.HealthFactor)
	}
}

func TestBalanceDecreaseAllowedBoundary(t *testing.T) {
	f, coll, debt := scenarioFixture(t)
	f.supply(t, coll, "alice", wadAmount(100))
	f.borrow(t, debt, "alice", wadAmount(50))
	cfg := f.users.Get("alice")

	// (100-23) * 0.65 / 50 = 1.0010 ray: still healthy.
	ok, err := f.engine.BalanceDecreaseAllowed(coll, "alice", wadAmount(23), cfg)
	if err != nil {
		t.Fatalf("decrease check: %v", err)
	}
	if !ok {
		t.Fatal("withdrawing 23 should keep the account healthy")
	}

	// (100-24) * 0.65 / 50 = 0.988 ray: below the boundary.
	ok, err = f.engine.BalanceDecreaseAllowed(coll, "alice", wadAmount(24), cfg)
	if err != nil {
		t.Fatalf("decrease check: %v", err)
	}
	if ok {
		t.Fatal("withdrawing 24 should be blocked")
	}
}

func TestBalanceDecreaseTriviallyAllowed(t *testing.T) {
	f, coll, debt := scenarioFixture(t)
	f.supply(t, coll, "alice", wadAmount(100))
	f.borrow(t, debt, "alice", wadAmount(50))
	cfg := f.users.Get("alice")

	// Not flagged as collateral: always removable.
	cfg.SetUsingAsCollateral(coll.ID, false)
	ok, err := f.engine.BalanceDecreaseAllowed(coll, "alice", wadAmount(100), cfg)
	if err != nil {
		t.Fatalf("decrease check: %v", err)
	}
	if !ok {
		t.Fatal("non-collateral balance must always be removable")
	}
}

func TestCalculateAmountToShortAdjustsDecimals(t *testing.T) {
	f, _, _ := scenarioFixture(t)
	f.addReserve(t, "USDT", 6, reserve.Config{BorrowingEnabled: true})
	f.oracle.SetPrice("USDT", wadray.Wad())
	f.oracle.SetPrice("COLL", wadAmount(2)) // collateral worth 2 per unit

	// 1 whole COLL (1e18) at price 2 buys 2 whole USDT (2e6).
	got, err := f.engine.CalculateAmountToShort(wadray.Wad(), "COLL", "USDT")
	if err != nil {
		t.Fatalf("amount to short: %v", err)
	}
	if got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("short amount = %s, want 2000000", got)
	}
}

func positionFixture(t *testing.T) (*fixture, *state.Position) {
	f, _, _ := scenarioFixture(t)
	f.addReserve(t, "LONG", 18, reserve.Config{LiquidationThresholdBps: 8_000})
	f.oracle.SetPrice("LONG", wadray.Wad())

	p := &state.Position{
		Trader:                  "alice",
		CollateralAsset:         "COLL",
		ShortAsset:              "DEBT",
		LongAsset:               "LONG",
		CollateralAmount:        wadAmount(10),
		ShortAmount:             wadAmount(100),
		LongAmount:              wadAmount(100),
		CollateralValueAtOpen:   wadAmount(10),
		LiquidationThresholdBps: 9_100,
		Status:                  state.PositionOpen,
	}
	return f, p
}

func TestPositionHealthFactorBoundary(t *testing.T) {
	f, p := positionFixture(t)

	// (100 + 10) * 0.91 / 100 = 1.001 ray: just above the boundary.
	hf, err := f.engine.PositionHealthFactor(p, 9_100)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if hf.Cmp(HealthFactorLiquidationThreshold()) < 0 {
		t.Fatalf("health factor %s should be above 1.0 ray", hf)
	}

	// (100 + 10) * 0.90 / 100 = 0.99 ray: just below.
	hf, err = f.engine.PositionHealthFactor(p, 9_000)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if hf.Cmp(HealthFactorLiquidationThreshold()) >= 0 {
		t.Fatalf("health factor %s should be below 1.0 ray", hf)
	}
}

func TestPositionHealthFactorInfiniteWithoutDebt(t *testing.T) {
	f, p := positionFixture(t)
	p.ShortAmount = new(big.Int)

	hf, err := f.engine.PositionHealthFactor(p, 9_000)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if hf.Cmp(MaxHealthFactor()) != 0 {
		t.Fatalf("zero-debt position health = %s, want max", hf)
	}
}

func TestPositionPnL(t *testing.T) {
	f, p := positionFixture(t)

	// 100 long + 10 collateral - 100 short - 10 at-open = 0
	pnl, err := f.engine.PositionPnL(p)
	if err != nil {
		t.Fatalf("pnl: %v", err)
	}
	if pnl.Sign() != 0 {
		t.Fatalf("flat-market pnl = %s, want 0", pnl)
	}

	// Long appreciates 10%: pnl = +10 wad.
	price := new(big.Int).Mul(big.NewInt(11), wadray.Wad())
	price.Quo(price, big.NewInt(10))
	f.oracle.SetPrice("LONG", price)

	pnl, err = f.engine.PositionPnL(p)
	if err != nil {
		t.Fatalf("pnl: %v", err)
	}
	if pnl.Cmp(wadAmount(10)) != 0 {
		t.Fatalf("pnl = %s, want 10 wad", pnl)
	}

	// Long halves: pnl = -60 wad.
	f.oracle.SetPrice("LONG", new(big.Int).Quo(wadray.Wad(), big.NewInt(2)))
	pnl, err = f.engine.PositionPnL(p)
	if err != nil {
		t.Fatalf("pnl: %v", err)
	}
	if pnl.Cmp(new(big.Int).Neg(wadAmount(60))) != 0 {
		t.Fatalf("pnl = %s, want -60 wad", pnl)
	}
}
