// Package pool orchestrates the protocol's public operations: supply,
// withdraw, borrow, repay, leveraged open/close, and the two liquidation
// paths. It owns the reserve arena, user configurations and the position
// book, and wires the validation and risk engines in front of every state
// transition.
//
// Operations execute strictly serially under one mutex; the environment
// embedding the pool is expected to provide atomicity for the capability
// calls an operation performs.
package pool

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"LeverPool/internal/capability"
	"LeverPool/internal/event"
	"LeverPool/internal/observability"
	"LeverPool/internal/rates"
	"LeverPool/internal/reserve"
	"LeverPool/internal/risk"
	"LeverPool/internal/state"
	"LeverPool/internal/wadray"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CloseFactorBps caps a single account-liquidation call at half the target's
// outstanding debt in the selected asset.
const CloseFactorBps uint64 = 5_000

// MaxInput is the sentinel for "everything": the full balance on withdraw,
// the full debt on repay.
var MaxInput = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ErrUnknownReserve is returned for assets the pool has no reserve for.
var ErrUnknownReserve = errors.New("pool: unknown reserve")

// Params wires the pool's collaborators.
type Params struct {
	Oracle capability.PriceOracle
	Swap   capability.SwapVenue
	Vault  capability.Vault

	// MaxLeverageBps bounds open-position leverage: allowed range is
	// (10000, MaxLeverageBps].
	MaxLeverageBps uint64

	Emitter event.Emitter
	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// StartSequence seeds event numbering. A restarted service passes the
	// event log's high-water mark so new events never collide with already
	// persisted sequences.
	StartSequence uint64

	// Clock supplies operation timestamps (unix seconds). Defaults to wall
	// clock; tests inject a manual clock.
	Clock func() int64
}

type Pool struct {
	mu sync.Mutex

	log     zerolog.Logger
	metrics *observability.Metrics

	oracle capability.PriceOracle
	swap   capability.SwapVenue
	vault  capability.Vault

	maxLeverageBps uint64

	reserves     []*reserve.Reserve
	reserveIndex map[string]int

	users     *state.UserRegistry
	positions *state.PositionBook
	risk      *risk.Engine

	emitter event.Emitter
	seq     uint64
	clock   func() int64
}

func New(p Params) (*Pool, error) {
	if p.Oracle == nil {
		return nil, errors.New("pool: price oracle is required")
	}
	if p.Swap == nil {
		return nil, errors.New("pool: swap venue is required")
	}
	if p.Vault == nil {
		return nil, errors.New("pool: vault is required")
	}
	if p.MaxLeverageBps <= 10_000 {
		return nil, fmt.Errorf("pool: max leverage %d bps must exceed 10000", p.MaxLeverageBps)
	}
	if p.Emitter == nil {
		p.Emitter = event.Discard{}
	}
	if p.Clock == nil {
		p.Clock = func() int64 { return time.Now().Unix() }
	}

	pool := &Pool{
		log:            p.Logger,
		metrics:        p.Metrics,
		oracle:         p.Oracle,
		swap:           p.Swap,
		vault:          p.Vault,
		maxLeverageBps: p.MaxLeverageBps,
		reserveIndex:   make(map[string]int),
		users:          state.NewUserRegistry(),
		positions:      state.NewPositionBook(),
		emitter:        p.Emitter,
		seq:            p.StartSequence,
		clock:          p.Clock,
	}
	pool.risk = risk.NewEngine(pool, p.Oracle)
	return pool, nil
}

// InitReserve registers a reserve for an asset. Administrative: called once
// per asset at wiring time; reserves are never removed, only deactivated or
// frozen through SetReserveConfig.
func (p *Pool) InitReserve(asset string, cfg reserve.Config, pcfg reserve.PositionConfig, receipt capability.ReceiptToken, debt capability.DebtToken, strategy rates.Strategy) (*reserve.Reserve, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.reserveIndex[asset]; exists {
		return nil, fmt.Errorf("pool: reserve %s already initialized", asset)
	}
	if len(p.reserves) >= 256 {
		return nil, errors.New("pool: reserve arena is full")
	}
	if receipt == nil || debt == nil || strategy == nil {
		return nil, fmt.Errorf("pool: reserve %s needs receipt token, debt token and rate strategy", asset)
	}

	r := reserve.New(uint8(len(p.reserves)), asset, cfg, pcfg, receipt, debt, strategy)
	r.LastUpdateTimestamp = p.clock()
	p.reserveIndex[asset] = len(p.reserves)
	p.reserves = append(p.reserves, r)

	p.log.Info().Str("asset", asset).Uint8("reserve_id", r.ID).Msg("reserve initialized")
	return r, nil
}

// SetReserveConfig replaces a reserve's configuration, the administrative
// path for activating, freezing or retuning an asset.
func (p *Pool) SetReserveConfig(asset string, cfg reserve.Config, pcfg reserve.PositionConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.reserveByAsset(asset)
	if err != nil {
		return err
	}
	r.Config = cfg
	r.PositionConfig = pcfg
	p.log.Info().Str("asset", asset).Msg("reserve configuration updated")
	return nil
}

// ReserveByAsset implements risk.ReserveSource. Called while the operation
// lock is held; external readers use the View accessors instead.
func (p *Pool) ReserveByAsset(asset string) (*reserve.Reserve, bool) {
	i, ok := p.reserveIndex[asset]
	if !ok {
		return nil, false
	}
	return p.reserves[i], true
}

// Reserves implements risk.ReserveSource.
func (p *Pool) Reserves() []*reserve.Reserve { return p.reserves }

func (p *Pool) reserveByAsset(asset string) (*reserve.Reserve, error) {
	i, ok := p.reserveIndex[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReserve, asset)
	}
	return p.reserves[i], nil
}

// priceValue converts a native-decimals amount of r's asset into a wad
// valuation in the oracle's common unit.
func (p *Pool) priceValue(r *reserve.Reserve, amount *big.Int) (*big.Int, error) {
	price, err := p.oracle.GetAssetPrice(r.Asset)
	if err != nil {
		return nil, fmt.Errorf("pool: pricing %s: %w", r.Asset, err)
	}
	v := new(big.Int).Mul(amount, price)
	return v.Quo(v, r.Unit()), nil
}

// emit assigns the next sequence and hands the record to the emitter. Called
// only after the operation's state changes are complete.
func (p *Pool) emit(rec event.Record) {
	p.seq++
	rec.Sequence = p.seq
	rec.ID = uuid.New()
	p.emitter.Emit(rec)

	if p.metrics != nil {
		p.metrics.EventsEmitted.WithLabelValues(string(rec.Type)).Inc()
		p.metrics.PoolSequence.Set(float64(p.seq))
	}
}

func (p *Pool) observeOperation(operation string, start time.Time, err error) {
	if p.metrics != nil {
		p.metrics.ObserveOperation(operation, start, err)
	}
}

func (p *Pool) observeReserveRates(r *reserve.Reserve) {
	if p.metrics == nil {
		return
	}
	p.metrics.ReserveLiquidityRate.WithLabelValues(r.Asset).Set(rayFloat(r.CurrentLiquidityRate))
	p.metrics.ReserveBorrowRate.WithLabelValues(r.Asset).Set(rayFloat(r.CurrentBorrowRate))

	debt := r.DebtToken.TotalSupply()
	total := new(big.Int).Add(debt, r.ReceiptToken.UnderlyingBalance())
	if total.Sign() > 0 {
		util, _ := new(big.Float).Quo(new(big.Float).SetInt(debt), new(big.Float).SetInt(total)).Float64()
		p.metrics.ReserveUtilization.WithLabelValues(r.Asset).Set(util)
	}
}

func rayFloat(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(wadray.Ray())).Float64()
	return f
}

// Sequence returns the last assigned event sequence.
func (p *Pool) Sequence() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}
