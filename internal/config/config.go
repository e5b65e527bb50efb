// Package config loads the service configuration from TOML and validates
// it before anything is wired. Rate-curve and risk parameters are written
// in basis points and converted to ray internally.
package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full service configuration.
type Config struct {
	Service  Service   `toml:"service"`
	Pool     Pool      `toml:"pool"`
	Reserves []Reserve `toml:"reserve"`
}

type Service struct {
	HTTPAddr        string `toml:"http_addr"`
	NATSURL         string `toml:"nats_url"`
	PostgresDSN     string `toml:"postgres_dsn"`
	MigrationsDir   string `toml:"migrations_dir"`
	PersistBatch    int    `toml:"persist_batch"`
	PersistFlushMS  int    `toml:"persist_flush_ms"`
	SampleIntervalS int    `toml:"sample_interval_s"`
}

type Pool struct {
	VaultAddress   string `toml:"vault_address"`
	MaxLeverageBps uint64 `toml:"max_leverage_bps"`
}

// Reserve configures one asset reserve. DevPrice seeds the in-memory oracle
// when the service runs self-contained; it is a decimal wad string.
type Reserve struct {
	Asset    string `toml:"asset"`
	Decimals uint8  `toml:"decimals"`

	LTVBps                  uint64 `toml:"ltv_bps"`
	LiquidationThresholdBps uint64 `toml:"liquidation_threshold_bps"`
	LiquidationBonusBps     uint64 `toml:"liquidation_bonus_bps"`
	ReserveFactorBps        uint64 `toml:"reserve_factor_bps"`

	Active           bool `toml:"active"`
	Frozen           bool `toml:"frozen"`
	BorrowingEnabled bool `toml:"borrowing_enabled"`

	Position Position `toml:"position"`

	Rates Rates `toml:"rates"`

	DevPrice string `toml:"dev_price"`
}

type Position struct {
	Active            bool `toml:"active"`
	CollateralEnabled bool `toml:"collateral_enabled"`
	LongEnabled       bool `toml:"long_enabled"`
	ShortEnabled      bool `toml:"short_enabled"`
}

// Rates is the kinked two-slope curve in basis points of annualized rate.
type Rates struct {
	OptimalUtilizationBps uint64 `toml:"optimal_utilization_bps"`
	BaseRateBps           uint64 `toml:"base_rate_bps"`
	Slope1Bps             uint64 `toml:"slope1_bps"`
	Slope2Bps             uint64 `toml:"slope2_bps"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.HTTPAddr == "" {
		c.Service.HTTPAddr = ":8080"
	}
	if c.Service.MigrationsDir == "" {
		c.Service.MigrationsDir = "migrations"
	}
	if c.Service.PersistBatch == 0 {
		c.Service.PersistBatch = 100
	}
	if c.Service.PersistFlushMS == 0 {
		c.Service.PersistFlushMS = 200
	}
	if c.Service.SampleIntervalS == 0 {
		c.Service.SampleIntervalS = 15
	}
	if c.Pool.VaultAddress == "" {
		c.Pool.VaultAddress = "margin-vault"
	}
}

// Validate rejects configurations that would wire an unsound pool.
func (c *Config) Validate() error {
	if c.Pool.MaxLeverageBps <= 10_000 {
		return fmt.Errorf("config: pool.max_leverage_bps %d must exceed 10000", c.Pool.MaxLeverageBps)
	}
	if len(c.Reserves) == 0 {
		return fmt.Errorf("config: at least one reserve is required")
	}

	seen := make(map[string]bool, len(c.Reserves))
	for _, r := range c.Reserves {
		if r.Asset == "" {
			return fmt.Errorf("config: reserve with empty asset")
		}
		if seen[r.Asset] {
			return fmt.Errorf("config: duplicate reserve %s", r.Asset)
		}
		seen[r.Asset] = true

		if r.Decimals > 30 {
			return fmt.Errorf("config: reserve %s: %d decimals is out of range", r.Asset, r.Decimals)
		}
		if r.LTVBps > 10_000 || r.LiquidationThresholdBps > 10_000 {
			return fmt.Errorf("config: reserve %s: ltv/threshold above 100%%", r.Asset)
		}
		if r.LiquidationThresholdBps < r.LTVBps {
			return fmt.Errorf("config: reserve %s: threshold %d below ltv %d", r.Asset, r.LiquidationThresholdBps, r.LTVBps)
		}
		if r.LiquidationThresholdBps > 0 && r.LiquidationBonusBps <= 10_000 {
			return fmt.Errorf("config: reserve %s: liquidation bonus %d must exceed 10000", r.Asset, r.LiquidationBonusBps)
		}
		if r.ReserveFactorBps > 10_000 {
			return fmt.Errorf("config: reserve %s: reserve factor above 100%%", r.Asset)
		}
		if r.Rates.OptimalUtilizationBps == 0 || r.Rates.OptimalUtilizationBps >= 10_000 {
			return fmt.Errorf("config: reserve %s: optimal utilization %d outside (0, 10000)", r.Asset, r.Rates.OptimalUtilizationBps)
		}
		if r.DevPrice != "" {
			if _, ok := new(big.Int).SetString(r.DevPrice, 10); !ok {
				return fmt.Errorf("config: reserve %s: dev_price %q is not a decimal integer", r.Asset, r.DevPrice)
			}
		}
	}
	return nil
}

// bpsToRay converts basis points to a ray fraction: 10000 bps = 1.0 ray.
func bpsToRay(bps uint64) *big.Int {
	out := new(big.Int).SetUint64(bps)
	return out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(23), nil))
}

// OptimalUtilizationRay returns the curve kink in ray.
func (r Rates) OptimalUtilizationRay() *big.Int { return bpsToRay(r.OptimalUtilizationBps) }

// BaseRateRay returns the base borrow rate in ray.
func (r Rates) BaseRateRay() *big.Int { return bpsToRay(r.BaseRateBps) }

// Slope1Ray returns the below-kink slope in ray.
func (r Rates) Slope1Ray() *big.Int { return bpsToRay(r.Slope1Bps) }

// Slope2Ray returns the above-kink slope in ray.
func (r Rates) Slope2Ray() *big.Int { return bpsToRay(r.Slope2Bps) }

// DevPriceWad parses the dev oracle price, defaulting to one wad.
func (r Reserve) DevPriceWad() *big.Int {
	if r.DevPrice == "" {
		return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	}
	out, _ := new(big.Int).SetString(r.DevPrice, 10)
	return out
}
