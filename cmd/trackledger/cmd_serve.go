package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/trackledger/trackledger/internal/config"
	httpapi "github.com/trackledger/trackledger/internal/interfaces/http"
	"github.com/trackledger/trackledger/internal/ledger"
	"github.com/trackledger/trackledger/internal/persistence/postgres"
	"github.com/trackledger/trackledger/internal/providers/broker"
	"github.com/trackledger/trackledger/internal/report"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	store := postgres.NewStore(db, cfg.Database.QueryTimeout.Std())
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	signer := ledger.NewSigner([]byte(cfg.HMACKey))
	policy := ledger.CheckpointPolicy{
		Interval: cfg.Checkpoint.Interval,
		OnTypes:  map[ledger.EventType]bool{},
	}
	if cfg.Checkpoint.OnVerificationPassed {
		policy.OnTypes[ledger.EventVerificationPassed] = true
	}
	appender := ledger.NewAppender(store, policy, signer)
	verifier := ledger.NewVerifier(store, signer)
	reports := report.NewBuilder(store, verifier, signer, store)

	var thresholds config.ThresholdSource = config.StaticThresholds{Table: cfg.Ladder}
	if cfg.Cache.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
		defer rdb.Close()
		thresholds = config.NewRedisThresholdCache(rdb, thresholds, cfg.Cache.TTL.Std())
		log.Info().Str("addr", cfg.Cache.Addr).Msg("threshold cache enabled")
	}

	metrics := httpapi.NewMetrics()
	server := httpapi.NewServer(cfg.HTTP, httpapi.Deps{
		Store:      store,
		Evidence:   store,
		Appender:   appender,
		Verifier:   verifier,
		Reports:    reports,
		Thresholds: thresholds,
		Metrics:    metrics,
	})

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Broker.BaseURL != "" {
		client := broker.NewClient(broker.ClientConfig{
			BaseURL:   cfg.Broker.BaseURL,
			RateLimit: rate.Limit(cfg.Broker.RateLimit),
			Burst:     cfg.Broker.Burst,
		})
		bindings := make([]broker.AccountBinding, 0, len(cfg.Broker.Accounts))
		for _, a := range cfg.Broker.Accounts {
			bindings = append(bindings, broker.AccountBinding{ChainID: a.ChainID, AccountID: a.AccountID})
		}
		poller := broker.NewPoller(client, store, appender, cfg.Broker.PollInterval.Std(), bindings)
		go poller.Run(runCtx)
		log.Info().Int("accounts", len(bindings)).Msg("broker evidence poller started")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
