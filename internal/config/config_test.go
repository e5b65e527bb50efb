package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `
[service]
http_addr = ":9090"

[pool]
vault_address = "vault-1"
max_leverage_bps = 30000

[[reserve]]
asset = "DAI"
decimals = 18
ltv_bps = 6000
liquidation_threshold_bps = 7500
liquidation_bonus_bps = 10500
active = true
borrowing_enabled = true
dev_price = "1000000000000000000"

[reserve.position]
active = true
collateral_enabled = true

[reserve.rates]
optimal_utilization_bps = 8000
base_rate_bps = 0
slope1_bps = 400
slope2_bps = 6000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leverpool.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service.HTTPAddr != ":9090" {
		t.Fatalf("http addr %q", cfg.Service.HTTPAddr)
	}
	if cfg.Pool.VaultAddress != "vault-1" || cfg.Pool.MaxLeverageBps != 30_000 {
		t.Fatalf("pool config %+v", cfg.Pool)
	}
	if len(cfg.Reserves) != 1 {
		t.Fatalf("got %d reserves", len(cfg.Reserves))
	}

	r := cfg.Reserves[0]
	if r.Asset != "DAI" || !r.Position.CollateralEnabled {
		t.Fatalf("reserve %+v", r)
	}

	// Defaults fill unset service values.
	if cfg.Service.PersistBatch != 100 || cfg.Service.SampleIntervalS != 15 {
		t.Fatalf("defaults not applied: %+v", cfg.Service)
	}

	// 8000 bps kink = 0.8 ray.
	wantKink := new(big.Int).Mul(big.NewInt(8), new(big.Int).Exp(big.NewInt(10), big.NewInt(26), nil))
	if r.Rates.OptimalUtilizationRay().Cmp(wantKink) != 0 {
		t.Fatalf("kink %s, want %s", r.Rates.OptimalUtilizationRay(), wantKink)
	}
	if r.DevPriceWad().Cmp(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)) != 0 {
		t.Fatalf("dev price %s", r.DevPriceWad())
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "leverage at 1x",
			mutate:  func(s string) string { return strings.Replace(s, "max_leverage_bps = 30000", "max_leverage_bps = 10000", 1) },
			wantErr: "max_leverage_bps",
		},
		{
			name:    "threshold below ltv",
			mutate:  func(s string) string { return strings.Replace(s, "liquidation_threshold_bps = 7500", "liquidation_threshold_bps = 5000", 1) },
			wantErr: "threshold",
		},
		{
			name:    "bonus without premium",
			mutate:  func(s string) string { return strings.Replace(s, "liquidation_bonus_bps = 10500", "liquidation_bonus_bps = 10000", 1) },
			wantErr: "bonus",
		},
		{
			name:    "kink at 100%",
			mutate:  func(s string) string { return strings.Replace(s, "optimal_utilization_bps = 8000", "optimal_utilization_bps = 10000", 1) },
			wantErr: "optimal utilization",
		},
		{
			name:    "garbage dev price",
			mutate:  func(s string) string { return strings.Replace(s, `dev_price = "1000000000000000000"`, `dev_price = "1.5e18"`, 1) },
			wantErr: "dev_price",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.mutate(sampleConfig)))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateRejectsDuplicateReserve(t *testing.T) {
	dup := sampleConfig + sampleConfig[strings.Index(sampleConfig, "[[reserve]]"):]
	_, err := Load(writeConfig(t, dup))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("err = %v, want duplicate reserve rejection", err)
	}
}
