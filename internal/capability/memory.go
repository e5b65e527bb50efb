package capability

import (
	"fmt"
	"math/big"

	"LeverPool/internal/wadray"
)

// Ledger is a minimal in-memory balance book shared by the in-memory
// capability implementations. It backs tests and the self-contained dev
// service; production deployments supply real collaborators instead.
type Ledger struct {
	balances map[string]map[string]*big.Int // asset -> holder -> balance
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[string]*big.Int)}
}

func (l *Ledger) Credit(asset, holder string, amount *big.Int) {
	holders := l.balances[asset]
	if holders == nil {
		holders = make(map[string]*big.Int)
		l.balances[asset] = holders
	}
	cur := holders[holder]
	if cur == nil {
		cur = new(big.Int)
		holders[holder] = cur
	}
	cur.Add(cur, amount)
}

func (l *Ledger) Debit(asset, holder string, amount *big.Int) error {
	cur := l.balances[asset][holder]
	if cur == nil || cur.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: %s holds insufficient %s", holder, asset)
	}
	cur.Sub(cur, amount)
	return nil
}

func (l *Ledger) Transfer(asset, from, to string, amount *big.Int) error {
	if err := l.Debit(asset, from, amount); err != nil {
		return err
	}
	l.Credit(asset, to, amount)
	return nil
}

func (l *Ledger) Balance(asset, holder string) *big.Int {
	cur := l.balances[asset][holder]
	if cur == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// MemReceiptToken is an in-memory ReceiptToken. Balances are stored
// index-scaled; the current value is projected through the index source,
// which defaults to the last index seen on a mint or burn.
type MemReceiptToken struct {
	ledger      *Ledger
	asset       string
	holder      string
	scaled      map[string]*big.Int
	lastIndex   *big.Int
	indexSource func() *big.Int
}

func NewMemReceiptToken(ledger *Ledger, asset, holder string) *MemReceiptToken {
	return &MemReceiptToken{
		ledger:    ledger,
		asset:     asset,
		holder:    holder,
		scaled:    make(map[string]*big.Int),
		lastIndex: wadray.Ray(),
	}
}

// SetIndexSource wires the token to the reserve's normalized income so that
// BalanceOf reflects interest accrued since the last index write.
func (t *MemReceiptToken) SetIndexSource(f func() *big.Int) { t.indexSource = f }

func (t *MemReceiptToken) index() *big.Int {
	if t.indexSource != nil {
		return t.indexSource()
	}
	return t.lastIndex
}

func (t *MemReceiptToken) Mint(to string, amount, index *big.Int) (bool, error) {
	scaledUp, err := wadray.RayDiv(amount, index)
	if err != nil {
		return false, err
	}
	cur := t.scaled[to]
	first := cur == nil || cur.Sign() == 0
	if cur == nil {
		cur = new(big.Int)
		t.scaled[to] = cur
	}
	cur.Add(cur, scaledUp)
	t.lastIndex = new(big.Int).Set(index)
	return first, nil
}

func (t *MemReceiptToken) Burn(from, to string, amount, index *big.Int) error {
	scaledDown, err := wadray.RayDiv(amount, index)
	if err != nil {
		return err
	}
	cur := t.scaled[from]
	if cur == nil {
		return fmt.Errorf("receipt token: %s holds no %s", from, t.asset)
	}
	// Half-up rounding on the projected balance can overshoot the scaled
	// principal by one unit on a full withdrawal.
	if scaledDown.Cmp(cur) > 0 {
		if new(big.Int).Sub(scaledDown, cur).Cmp(big.NewInt(1)) > 0 {
			return fmt.Errorf("receipt token: burn exceeds balance of %s", from)
		}
		scaledDown = new(big.Int).Set(cur)
	}
	cur.Sub(cur, scaledDown)
	t.lastIndex = new(big.Int).Set(index)
	return t.ledger.Transfer(t.asset, t.holder, to, amount)
}

func (t *MemReceiptToken) BalanceOf(user string) *big.Int {
	cur := t.scaled[user]
	if cur == nil {
		return new(big.Int)
	}
	return wadray.RayMul(cur, t.index())
}

func (t *MemReceiptToken) TransferUnderlyingTo(to string, amount *big.Int) error {
	return t.ledger.Transfer(t.asset, t.holder, to, amount)
}

func (t *MemReceiptToken) PullUnderlying(from string, amount *big.Int) error {
	return t.ledger.Transfer(t.asset, from, t.holder, amount)
}

func (t *MemReceiptToken) HandleRepayment(payer string, amount *big.Int) error {
	return nil
}

func (t *MemReceiptToken) TransferOnLiquidation(from, to string, amount *big.Int) error {
	scaledAmt, err := wadray.RayDiv(amount, t.index())
	if err != nil {
		return err
	}
	cur := t.scaled[from]
	if cur == nil || cur.Cmp(scaledAmt) < 0 {
		return fmt.Errorf("receipt token: liquidation transfer exceeds balance of %s", from)
	}
	cur.Sub(cur, scaledAmt)
	dst := t.scaled[to]
	if dst == nil {
		dst = new(big.Int)
		t.scaled[to] = dst
	}
	dst.Add(dst, scaledAmt)
	return nil
}

func (t *MemReceiptToken) UnderlyingBalance() *big.Int {
	return t.ledger.Balance(t.asset, t.holder)
}

// MemDebtToken is an in-memory DebtToken with the same index-scaling scheme
// as MemReceiptToken.
type MemDebtToken struct {
	asset       string
	scaled      map[string]*big.Int
	totalScaled *big.Int
	lastIndex   *big.Int
	indexSource func() *big.Int
}

func NewMemDebtToken(asset string) *MemDebtToken {
	return &MemDebtToken{
		asset:       asset,
		scaled:      make(map[string]*big.Int),
		totalScaled: new(big.Int),
		lastIndex:   wadray.Ray(),
	}
}

// SetIndexSource wires the token to the reserve's normalized debt.
func (t *MemDebtToken) SetIndexSource(f func() *big.Int) { t.indexSource = f }

func (t *MemDebtToken) index() *big.Int {
	if t.indexSource != nil {
		return t.indexSource()
	}
	return t.lastIndex
}

func (t *MemDebtToken) Mint(caller, onBehalfOf string, amount, index *big.Int) (bool, error) {
	scaledUp, err := wadray.RayDiv(amount, index)
	if err != nil {
		return false, err
	}
	cur := t.scaled[onBehalfOf]
	first := cur == nil || cur.Sign() == 0
	if cur == nil {
		cur = new(big.Int)
		t.scaled[onBehalfOf] = cur
	}
	cur.Add(cur, scaledUp)
	t.totalScaled.Add(t.totalScaled, scaledUp)
	t.lastIndex = new(big.Int).Set(index)
	return first, nil
}

func (t *MemDebtToken) Burn(user string, amount, index *big.Int) error {
	scaledDown, err := wadray.RayDiv(amount, index)
	if err != nil {
		return err
	}
	cur := t.scaled[user]
	if cur == nil {
		return fmt.Errorf("debt token: %s owes no %s", user, t.asset)
	}
	if scaledDown.Cmp(cur) > 0 {
		if new(big.Int).Sub(scaledDown, cur).Cmp(big.NewInt(1)) > 0 {
			return fmt.Errorf("debt token: burn exceeds debt of %s", user)
		}
		scaledDown = new(big.Int).Set(cur)
	}
	cur.Sub(cur, scaledDown)
	t.totalScaled.Sub(t.totalScaled, scaledDown)
	t.lastIndex = new(big.Int).Set(index)
	return nil
}

func (t *MemDebtToken) BalanceOf(user string) *big.Int {
	cur := t.scaled[user]
	if cur == nil {
		return new(big.Int)
	}
	return wadray.RayMul(cur, t.index())
}

func (t *MemDebtToken) ScaledBalanceOf(user string) *big.Int {
	cur := t.scaled[user]
	if cur == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

func (t *MemDebtToken) TotalSupply() *big.Int {
	return wadray.RayMul(t.totalScaled, t.index())
}

func (t *MemDebtToken) ScaledTotalSupply() *big.Int {
	return new(big.Int).Set(t.totalScaled)
}

// MemOracle quotes fixed prices set by tests or dev config.
type MemOracle struct {
	prices map[string]*big.Int // asset -> wad price
}

func NewMemOracle() *MemOracle {
	return &MemOracle{prices: make(map[string]*big.Int)}
}

func (o *MemOracle) SetPrice(asset string, price *big.Int) {
	o.prices[asset] = new(big.Int).Set(price)
}

func (o *MemOracle) GetAssetPrice(asset string) (*big.Int, error) {
	p, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("oracle: no price for %s", asset)
	}
	return new(big.Int).Set(p), nil
}

// MemSwap settles swaps at oracle prices with no fee or depth. Output assets
// are created and input assets destroyed; the double is not a conserved
// exchange, it only honors the SwapVenue contract.
type MemSwap struct {
	ledger   *Ledger
	oracle   *MemOracle
	decimals map[string]uint8
}

func NewMemSwap(ledger *Ledger, oracle *MemOracle) *MemSwap {
	return &MemSwap{ledger: ledger, oracle: oracle, decimals: make(map[string]uint8)}
}

func (s *MemSwap) RegisterAsset(asset string, decimals uint8) {
	s.decimals[asset] = decimals
}

func (s *MemSwap) unit(asset string) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.decimals[asset])), nil)
}

func (s *MemSwap) quote(assetIn, assetOut string) (priceIn, priceOut *big.Int, err error) {
	priceIn, err = s.oracle.GetAssetPrice(assetIn)
	if err != nil {
		return nil, nil, err
	}
	priceOut, err = s.oracle.GetAssetPrice(assetOut)
	if err != nil {
		return nil, nil, err
	}
	if priceOut.Sign() == 0 {
		return nil, nil, fmt.Errorf("swap: zero price for %s", assetOut)
	}
	return priceIn, priceOut, nil
}

func (s *MemSwap) SwapExactInput(assetIn, assetOut string, amountIn, minAmountOut *big.Int, recipient string) (*big.Int, *big.Int, error) {
	priceIn, priceOut, err := s.quote(assetIn, assetOut)
	if err != nil {
		return nil, nil, err
	}
	out := new(big.Int).Mul(amountIn, priceIn)
	out.Mul(out, s.unit(assetOut))
	out.Quo(out, priceOut)
	out.Quo(out, s.unit(assetIn))
	if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
		return nil, nil, fmt.Errorf("swap: output %s below minimum %s", out, minAmountOut)
	}
	if err := s.ledger.Debit(assetIn, recipient, amountIn); err != nil {
		return nil, nil, err
	}
	s.ledger.Credit(assetOut, recipient, out)
	return new(big.Int).Set(amountIn), out, nil
}

func (s *MemSwap) SwapForExactOutput(assetIn, assetOut string, amountOut, maxAmountIn *big.Int, recipient string) (*big.Int, *big.Int, error) {
	priceIn, priceOut, err := s.quote(assetIn, assetOut)
	if err != nil {
		return nil, nil, err
	}
	if priceIn.Sign() == 0 {
		return nil, nil, fmt.Errorf("swap: zero price for %s", assetIn)
	}
	// Round the required input up so the venue never undercharges.
	num := new(big.Int).Mul(amountOut, priceOut)
	num.Mul(num, s.unit(assetIn))
	den := new(big.Int).Mul(priceIn, s.unit(assetOut))
	in := new(big.Int).Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	in.Quo(in, den)
	if maxAmountIn != nil && in.Cmp(maxAmountIn) > 0 {
		return nil, nil, fmt.Errorf("swap: input %s above maximum %s", in, maxAmountIn)
	}
	if err := s.ledger.Debit(assetIn, recipient, in); err != nil {
		return nil, nil, err
	}
	s.ledger.Credit(assetOut, recipient, amountOut)
	return in, new(big.Int).Set(amountOut), nil
}

// MemVault holds margin custody balances in the shared ledger under a fixed
// account name.
type MemVault struct {
	ledger *Ledger
	addr   string
}

func NewMemVault(ledger *Ledger, addr string) *MemVault {
	return &MemVault{ledger: ledger, addr: addr}
}

func (v *MemVault) Address() string { return v.addr }

func (v *MemVault) Pull(asset, from string, amount *big.Int) error {
	return v.ledger.Transfer(asset, from, v.addr, amount)
}

func (v *MemVault) Pay(asset, to string, amount *big.Int) error {
	return v.ledger.Transfer(asset, v.addr, to, amount)
}

func (v *MemVault) Balance(asset string) *big.Int {
	return v.ledger.Balance(asset, v.addr)
}
