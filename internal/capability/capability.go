// Package capability declares the external collaborators the pool core
// depends on. Token bookkeeping, price feeds, swap routing and fund custody
// are owned by other systems; the core only ever talks to these interfaces.
//
// Every call is synchronous: it either returns a result or an error, and a
// returned error voids the surrounding pool operation.
package capability

import "math/big"

// ReceiptToken is the interest-bearing claim on supplied underlying. The
// implementation holds the reserve's underlying liquidity and scales balances
// by the reserve's liquidity index.
type ReceiptToken interface {
	// Mint credits `amount` (underlying units) to `to` at the given liquidity
	// index. Returns true when `to` previously held a zero balance.
	Mint(to string, amount *big.Int, index *big.Int) (bool, error)

	// Burn removes `amount` from `from` at the given liquidity index and
	// releases the matching underlying to `to`.
	Burn(from, to string, amount *big.Int, index *big.Int) error

	// BalanceOf returns the current underlying-denominated balance of user,
	// interest included.
	BalanceOf(user string) *big.Int

	// TransferUnderlyingTo releases underlying liquidity held by the token to
	// the recipient without touching receipt balances (borrow payout leg).
	TransferUnderlyingTo(to string, amount *big.Int) error

	// PullUnderlying moves underlying from the payer into the token's
	// holdings (supply and repay inbound leg).
	PullUnderlying(from string, amount *big.Int) error

	// HandleRepayment notifies the token that `amount` of underlying it now
	// holds settles debt paid by `payer`.
	HandleRepayment(payer string, amount *big.Int) error

	// TransferOnLiquidation moves receipt balance from the liquidated user to
	// the liquidator without releasing underlying.
	TransferOnLiquidation(from, to string, amount *big.Int) error

	// UnderlyingBalance reports the underlying liquidity currently held,
	// the "available liquidity" input to rate computation.
	UnderlyingBalance() *big.Int
}

// DebtToken tracks variable-rate borrow balances, scaled by the reserve's
// borrow index.
type DebtToken interface {
	// Mint books `amount` of debt against onBehalfOf at the given borrow
	// index. Returns true when onBehalfOf previously had no debt.
	Mint(caller, onBehalfOf string, amount *big.Int, index *big.Int) (bool, error)

	// Burn settles `amount` of user's debt at the given borrow index.
	Burn(user string, amount *big.Int, index *big.Int) error

	// BalanceOf returns the user's current debt, accrued interest included.
	BalanceOf(user string) *big.Int

	// ScaledBalanceOf returns the user's index-scaled principal.
	ScaledBalanceOf(user string) *big.Int

	// TotalSupply returns total outstanding debt, accrued interest included.
	TotalSupply() *big.Int

	// ScaledTotalSupply returns the index-scaled total principal.
	ScaledTotalSupply() *big.Int
}

// PriceOracle quotes asset prices in the common valuation unit, wad-scaled
// per whole token. Implementations may fall back to a secondary source; a
// returned error means no usable price exists.
type PriceOracle interface {
	GetAssetPrice(asset string) (*big.Int, error)
}

// SwapVenue exchanges one asset for another at a venue-determined rate.
type SwapVenue interface {
	// SwapExactInput sells exactly amountIn of assetIn. Fails when the
	// proceeds would be below minAmountOut.
	SwapExactInput(assetIn, assetOut string, amountIn, minAmountOut *big.Int, recipient string) (in *big.Int, out *big.Int, err error)

	// SwapForExactOutput buys exactly amountOut of assetOut. Fails when more
	// than maxAmountIn of assetIn would be consumed.
	SwapForExactOutput(assetIn, assetOut string, amountOut, maxAmountIn *big.Int, recipient string) (in *big.Int, out *big.Int, err error)
}

// Vault is the custody account for margin positions: it holds pulled
// collateral and swapped long holdings until close or liquidation.
type Vault interface {
	// Address identifies the vault as a principal for debt bookkeeping.
	Address() string

	// Pull moves `amount` of asset from a trader into the vault.
	Pull(asset, from string, amount *big.Int) error

	// Pay moves `amount` of asset from the vault to a recipient.
	Pay(asset, to string, amount *big.Int) error

	// Balance reports the vault's holdings of asset.
	Balance(asset string) *big.Int
}
