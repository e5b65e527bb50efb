package state

import (
	"math/big"
	"testing"
)

func TestUserConfigurationFlags(t *testing.T) {
	cfg := NewUserConfiguration()

	if !cfg.IsEmpty() {
		t.Fatal("fresh configuration should be empty")
	}

	cfg.SetUsingAsCollateral(3, true)
	if !cfg.UsingAsCollateral(3) {
		t.Fatal("collateral flag not set")
	}
	if cfg.Borrowing(3) {
		t.Fatal("borrowing flag should be unset")
	}

	cfg.SetBorrowing(3, true)
	cfg.SetUsingAsCollateral(3, false)
	if !cfg.Borrowing(3) {
		t.Fatal("clearing collateral must not clear borrowing")
	}

	cfg.SetBorrowing(3, false)
	if !cfg.IsEmpty() {
		t.Fatal("configuration should be empty once both flags cleared")
	}
}

func TestUserRegistryGetOrCreate(t *testing.T) {
	reg := NewUserRegistry()

	if _, ok := reg.Peek("alice"); ok {
		t.Fatal("peek must not create")
	}

	cfg := reg.Get("alice")
	cfg.SetBorrowing(0, true)

	again := reg.Get("alice")
	if !again.Borrowing(0) {
		t.Fatal("registry should return the same configuration")
	}
}

func TestPositionTransitions(t *testing.T) {
	p := &Position{
		Trader:           "alice",
		CollateralAsset:  "USDC",
		ShortAsset:       "USDC",
		LongAsset:        "WETH",
		CollateralAmount: big.NewInt(100),
		Status:           PositionOpen,
	}

	if err := p.Transition(PositionClosed, 42); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if p.ClosedAt != 42 {
		t.Fatalf("ClosedAt = %d, want 42", p.ClosedAt)
	}

	// Terminal states reject every further transition.
	if err := p.Transition(PositionLiquidated, 43); err == nil {
		t.Fatal("closed position must not transition to liquidated")
	}
	if err := p.Transition(PositionClosed, 43); err == nil {
		t.Fatal("double close must fail")
	}
}

func TestPositionBookIndexes(t *testing.T) {
	book := NewPositionBook()

	a := &Position{Trader: "alice", Status: PositionOpen}
	b := &Position{Trader: "bob", Status: PositionOpen}
	c := &Position{Trader: "alice", Status: PositionOpen}

	if id := book.Append(a); id != 0 {
		t.Fatalf("first id = %d, want 0", id)
	}
	book.Append(b)
	book.Append(c)

	got, ok := book.Get(2)
	if !ok || got != c {
		t.Fatal("lookup by id returned wrong position")
	}
	if _, ok := book.Get(99); ok {
		t.Fatal("out-of-range id should miss")
	}

	alice := book.TraderPositions("alice")
	if len(alice) != 2 || alice[0] != a || alice[1] != c {
		t.Fatalf("trader index wrong: %v", alice)
	}
}
