package pool

import (
	"math/big"
	"time"

	"LeverPool/internal/event"
	"LeverPool/internal/validation"
	"LeverPool/internal/wadray"
)

// Supply deposits `amount` of `asset` from the caller, crediting receipt
// tokens to onBehalfOf (the caller when empty). The first deposit of an
// asset flags it as collateral.
func (p *Pool) Supply(caller, asset string, amount *big.Int, onBehalfOf string) (err error) {
	start := time.Now()
	defer func() { p.observeOperation("supply", start, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.reserveByAsset(asset)
	if err != nil {
		return err
	}
	if onBehalfOf == "" {
		onBehalfOf = caller
	}

	if err = validation.ValidateSupply(r, amount); err != nil {
		return err
	}

	now := p.clock()
	if err = r.UpdateState(now); err != nil {
		return err
	}
	if err = r.UpdateInterestRates(amount, new(big.Int)); err != nil {
		return err
	}

	if err = r.ReceiptToken.PullUnderlying(caller, amount); err != nil {
		return err
	}
	first, err := r.ReceiptToken.Mint(onBehalfOf, amount, r.LiquidityIndex)
	if err != nil {
		return err
	}

	if first {
		p.users.Get(onBehalfOf).SetUsingAsCollateral(r.ID, true)
		p.emit(event.Record{Type: event.TypeCollateralEnabled, Timestamp: now, User: onBehalfOf, Asset: asset})
	}

	p.emit(event.Record{
		Type: event.TypeSupply, Timestamp: now,
		User: caller, OnBehalfOf: onBehalfOf, Asset: asset, Amount: amount.String(),
	})
	p.observeReserveRates(r)

	p.log.Debug().Str("user", caller).Str("asset", asset).Str("amount", amount.String()).Msg("supply")
	return nil
}

// Withdraw redeems receipt tokens for underlying, sent to `to` (the caller
// when empty). Passing MaxInput withdraws the full balance. Returns the
// amount actually withdrawn.
func (p *Pool) Withdraw(caller, asset string, amount *big.Int, to string) (withdrawn *big.Int, err error) {
	start := time.Now()
	defer func() { p.observeOperation("withdraw", start, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.reserveByAsset(asset)
	if err != nil {
		return nil, err
	}
	if to == "" {
		to = caller
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, validation.ErrInvalidAmount
	}

	balance := r.ReceiptToken.BalanceOf(caller)
	amt := amount
	if amount != nil && amount.Cmp(MaxInput) == 0 {
		amt = balance
	}

	cfg := p.users.Get(caller)
	allowed, err := p.risk.BalanceDecreaseAllowed(r, caller, amt, cfg)
	if err != nil {
		return nil, err
	}
	if err = validation.ValidateWithdraw(r, amt, balance, allowed); err != nil {
		return nil, err
	}

	now := p.clock()
	if err = r.UpdateState(now); err != nil {
		return nil, err
	}
	if err = r.UpdateInterestRates(new(big.Int), amt); err != nil {
		return nil, err
	}

	if amt.Cmp(balance) == 0 && cfg.UsingAsCollateral(r.ID) {
		cfg.SetUsingAsCollateral(r.ID, false)
		p.emit(event.Record{Type: event.TypeCollateralDisabled, Timestamp: now, User: caller, Asset: asset})
	}

	if err = r.ReceiptToken.Burn(caller, to, amt, r.LiquidityIndex); err != nil {
		return nil, err
	}

	p.emit(event.Record{
		Type: event.TypeWithdraw, Timestamp: now,
		User: caller, Asset: asset, Amount: amt.String(),
	})
	p.observeReserveRates(r)

	p.log.Debug().Str("user", caller).Str("asset", asset).Str("amount", amt.String()).Msg("withdraw")
	return new(big.Int).Set(amt), nil
}

// Borrow draws `amount` of `asset` against the caller's collateral. Only the
// variable rate mode is accepted.
func (p *Pool) Borrow(caller, asset string, amount *big.Int, mode validation.RateMode) (err error) {
	start := time.Now()
	defer func() { p.observeOperation("borrow", start, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.reserveByAsset(asset)
	if err != nil {
		return err
	}
	cfg := p.users.Get(caller)
	if amount == nil || amount.Sign() <= 0 {
		return validation.ErrInvalidAmount
	}

	amountValue, err := p.priceValue(r, amount)
	if err != nil {
		return err
	}
	acct, err := p.risk.CalculateUserAccountData(caller, cfg)
	if err != nil {
		return err
	}
	if err = validation.ValidateBorrow(r, mode, amount, amountValue, acct); err != nil {
		return err
	}

	now := p.clock()
	if err = r.UpdateState(now); err != nil {
		return err
	}

	first, err := r.DebtToken.Mint(caller, caller, amount, r.VariableBorrowIndex)
	if err != nil {
		return err
	}
	if first {
		cfg.SetBorrowing(r.ID, true)
	}

	if err = r.UpdateInterestRates(new(big.Int), amount); err != nil {
		return err
	}
	if err = r.ReceiptToken.TransferUnderlyingTo(caller, amount); err != nil {
		return err
	}

	p.emit(event.Record{
		Type: event.TypeBorrow, Timestamp: now,
		User: caller, Asset: asset, Amount: amount.String(),
	})
	p.observeReserveRates(r)

	p.log.Debug().Str("user", caller).Str("asset", asset).Str("amount", amount.String()).Msg("borrow")
	return nil
}

// Repay settles onBehalfOf's debt (the caller's own when empty) with funds
// pulled from the caller. Passing MaxInput repays everything, allowed only
// on the caller's own debt. Returns the amount actually repaid.
func (p *Pool) Repay(caller, asset string, amount *big.Int, onBehalfOf string) (payback *big.Int, err error) {
	start := time.Now()
	defer func() { p.observeOperation("repay", start, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.reserveByAsset(asset)
	if err != nil {
		return nil, err
	}
	if onBehalfOf == "" {
		onBehalfOf = caller
	}

	debt := r.DebtToken.BalanceOf(onBehalfOf)
	repayAll := amount != nil && amount.Cmp(MaxInput) == 0

	if err = validation.ValidateRepay(r, amount, repayAll, caller == onBehalfOf, debt); err != nil {
		return nil, err
	}

	payback = new(big.Int).Set(debt)
	if !repayAll {
		payback = wadray.Min(amount, debt)
	}

	now := p.clock()
	if err = r.UpdateState(now); err != nil {
		return nil, err
	}

	if err = r.DebtToken.Burn(onBehalfOf, payback, r.VariableBorrowIndex); err != nil {
		return nil, err
	}
	if r.DebtToken.BalanceOf(onBehalfOf).Sign() == 0 {
		p.users.Get(onBehalfOf).SetBorrowing(r.ID, false)
	}

	if err = r.UpdateInterestRates(payback, new(big.Int)); err != nil {
		return nil, err
	}
	if err = r.ReceiptToken.PullUnderlying(caller, payback); err != nil {
		return nil, err
	}
	if err = r.ReceiptToken.HandleRepayment(caller, payback); err != nil {
		return nil, err
	}

	p.emit(event.Record{
		Type: event.TypeRepay, Timestamp: now,
		User: caller, OnBehalfOf: onBehalfOf, Asset: asset, Amount: payback.String(),
	})
	p.observeReserveRates(r)

	p.log.Debug().Str("user", caller).Str("on_behalf_of", onBehalfOf).Str("asset", asset).
		Str("amount", payback.String()).Msg("repay")
	return payback, nil
}
