package main

import (
	"context"
	"database/sql"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LeverPool/internal/capability"
	"LeverPool/internal/config"
	"LeverPool/internal/event"
	"LeverPool/internal/observability"
	"LeverPool/internal/persistence"
	"LeverPool/internal/pool"
	"LeverPool/internal/projection"
	"LeverPool/internal/query"
	"LeverPool/internal/rates"
	"LeverPool/internal/reserve"
	"LeverPool/internal/server"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("LeverPool starting")

	cfgPath := envOrDefault("LEVERPOOL_CONFIG", "leverpool.toml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgPath).Msg("load config")
	}

	// Environment overrides for the deploy-specific endpoints.
	if v := os.Getenv("LEVERPOOL_POSTGRES_DSN"); v != "" {
		cfg.Service.PostgresDSN = v
	}
	if v := os.Getenv("LEVERPOOL_NATS_URL"); v != "" {
		cfg.Service.NATSURL = v
	}
	if v := os.Getenv("LEVERPOOL_HTTP_ADDR"); v != "" {
		cfg.Service.HTTPAddr = v
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- In-memory capabilities ---
	// The self-contained deployment settles against the shared in-memory
	// double; production environments substitute real token, oracle and
	// venue adapters behind the same interfaces.
	ledger := capability.NewLedger()
	oracle := capability.NewMemOracle()
	swap := capability.NewMemSwap(ledger, oracle)
	vault := capability.NewMemVault(ledger, cfg.Pool.VaultAddress)

	// --- Event plumbing ---
	recent := event.NewBuffer(4096)
	emitters := event.Fanout{recent}

	var db *sql.DB
	var persistWorker *persistence.Worker
	var startSeq uint64
	if cfg.Service.PostgresDSN != "" {
		db, err = sql.Open("postgres", cfg.Service.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres open")
		}
		defer db.Close()
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping")
		}
		if err := persistence.NewMigrator(db, cfg.Service.MigrationsDir).Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("run migrations")
		}
		health.SetComponent("postgres", true)
		log.Info().Msg("postgres connected, migrations applied")

		writer := persistence.NewEventLogWriter(db)

		// Resume event numbering after the persisted high-water mark so a
		// restart never re-issues sequences the log already holds.
		startSeq, err = writer.LastSequence(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("read event log high-water mark")
		}
		log.Info().Uint64("resume_sequence", startSeq).Msg("event numbering resumed")

		persistWorker = persistence.NewWorker(
			writer,
			cfg.Service.PersistBatch,
			time.Duration(cfg.Service.PersistFlushMS)*time.Millisecond,
			metrics,
		)
		emitters = append(emitters, persistWorker)
	} else {
		log.Warn().Msg("no postgres configured, event log disabled")
	}

	var publisher *event.Publisher
	if cfg.Service.NATSURL != "" {
		nc, err := nats.Connect(cfg.Service.NATSURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()

		js, err := jetstream.New(nc)
		if err != nil {
			log.Fatal().Err(err).Msg("jetstream context")
		}
		if err := event.EnsureStream(ctx, js); err != nil {
			log.Fatal().Err(err).Msg("ensure outbound stream")
		}
		health.SetComponent("nats", true)
		log.Info().Msg("nats connected")

		publisher = event.NewPublisher(js, observability.NewLogger("publisher"))
		emitters = append(emitters, publisher)
	} else {
		log.Warn().Msg("no nats configured, outbound publishing disabled")
	}

	// --- Pool ---
	p, err := pool.New(pool.Params{
		Oracle:         oracle,
		Swap:           swap,
		Vault:          vault,
		MaxLeverageBps: cfg.Pool.MaxLeverageBps,
		Emitter:        emitters,
		Logger:         observability.NewLogger("pool"),
		Metrics:        metrics,
		StartSequence:  startSeq,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("construct pool")
	}

	for _, rc := range cfg.Reserves {
		strategy, err := rates.NewDefaultStrategy(
			rc.Rates.OptimalUtilizationRay(),
			rc.Rates.BaseRateRay(),
			rc.Rates.Slope1Ray(),
			rc.Rates.Slope2Ray(),
		)
		if err != nil {
			log.Fatal().Err(err).Str("asset", rc.Asset).Msg("rate strategy")
		}

		oracle.SetPrice(rc.Asset, rc.DevPriceWad())
		swap.RegisterAsset(rc.Asset, rc.Decimals)

		receipt := capability.NewMemReceiptToken(ledger, rc.Asset, "reserve:"+rc.Asset)
		debt := capability.NewMemDebtToken(rc.Asset)

		res, err := p.InitReserve(rc.Asset,
			reserve.Config{
				LTVBps:                  rc.LTVBps,
				LiquidationThresholdBps: rc.LiquidationThresholdBps,
				LiquidationBonusBps:     rc.LiquidationBonusBps,
				Decimals:                rc.Decimals,
				Active:                  rc.Active,
				Frozen:                  rc.Frozen,
				BorrowingEnabled:        rc.BorrowingEnabled,
				ReserveFactorBps:        rc.ReserveFactorBps,
			},
			reserve.PositionConfig{
				Active:            rc.Position.Active,
				CollateralEnabled: rc.Position.CollateralEnabled,
				LongEnabled:       rc.Position.LongEnabled,
				ShortEnabled:      rc.Position.ShortEnabled,
			},
			receipt, debt, strategy,
		)
		if err != nil {
			log.Fatal().Err(err).Str("asset", rc.Asset).Msg("init reserve")
		}

		// Project balances through the live indices so reads between
		// operations include accrued interest.
		receipt.SetIndexSource(func() *big.Int { return res.NormalizedIncome(time.Now().Unix()) })
		debt.SetIndexSource(func() *big.Int { return res.NormalizedDebt(time.Now().Unix()) })
	}

	// --- Read side ---
	history := projection.NewRateHistory(4096)
	sampler := projection.NewWorker(p, history, time.Duration(cfg.Service.SampleIntervalS)*time.Second)
	queries := query.NewService(p, history, recent, db)
	httpServer := server.New(cfg.Service.HTTPAddr, queries, health, metrics)

	// --- Workers ---
	errChan := make(chan error, 4)
	if persistWorker != nil {
		go func() { errChan <- persistWorker.Run(ctx) }()
	}
	if publisher != nil {
		go func() { errChan <- publisher.Run(ctx) }()
	}
	go func() { errChan <- sampler.Run(ctx) }()
	go func() { errChan <- httpServer.ListenAndServe() }()

	health.SetReady(true)
	log.Info().Str("http", cfg.Service.HTTPAddr).Int("reserves", len(cfg.Reserves)).Msg("LeverPool ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("worker failed, shutting down")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Give the persistence worker a beat to flush its final batch.
	time.Sleep(500 * time.Millisecond)
	log.Info().Msg("LeverPool shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
