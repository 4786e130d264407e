// Package main is the entry point for the wager challenge engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"focus-wager-engine/internal/broadcast"
	"focus-wager-engine/internal/challenge"
	"focus-wager-engine/internal/config"
	"focus-wager-engine/internal/engine"
	"focus-wager-engine/internal/ledger"
	"focus-wager-engine/internal/payment"
	"focus-wager-engine/internal/pkg/db"
	"focus-wager-engine/internal/pkg/lock"
	"focus-wager-engine/internal/repository/postgres"
	"focus-wager-engine/internal/service"
	"focus-wager-engine/internal/settlement"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := postgres.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userStore := postgres.NewUserStore(dbPool.Pool)
	challengeStore := postgres.NewChallengeStore(dbPool.Pool)
	ledgerStore := postgres.NewLedgerStore(dbPool.Pool)

	// Initialize the ledger with its per-user lock
	userLock := lock.NewKeyedLock[int64]()
	moneyLedger := ledger.New(ledgerStore, userStore, userLock)

	// Fee schedule from configuration
	tiers := settlement.Tiers{
		HighStakeThreshold: cfg.Wager.HighStakeThreshold,
		HighStakeFeePct:    cfg.Wager.HighStakeFeePct,
		BaseFeePct:         cfg.Wager.BaseFeePct,
	}

	// Initialize the event hub and the challenge registry
	hub := broadcast.NewHub()
	registry := challenge.NewRegistry(challengeStore, userStore, moneyLedger, tiers, hub)

	// Initialize the payment gateway and confirmation intake
	var gateway payment.Gateway
	switch cfg.Payment.Provider {
	case "sandbox":
		gateway = payment.NewSandboxGateway()
	default:
		log.Fatal().Str("provider", cfg.Payment.Provider).Msg("Unknown payment provider")
	}
	confirmations := payment.NewConfirmations(moneyLedger, userStore)

	// Initialize services
	walletService := service.NewWalletService(moneyLedger, userStore, gateway)
	statsService := service.NewStatsService(userStore)

	eng := engine.New(registry, walletService, statsService, confirmations, hub)

	log.Info().
		Str("payment_provider", cfg.Payment.Provider).
		Int64("base_fee_pct", tiers.BaseFeePct).
		Int64("high_stake_fee_pct", tiers.HighStakeFeePct).
		Msg("Wager challenge engine started")

	// Run engine in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- eng.Run(ctx)
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			log.Fatal().Err(err).Msg("Engine failed")
		}
	}

	log.Info().Msg("Engine stopped gracefully")
}
