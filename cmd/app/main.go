// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xperience-payments/internal/config"
	"xperience-payments/internal/domain/model"
	"xperience-payments/internal/domain/ports/repository"
	pg "xperience-payments/internal/infra/db/postgres"
	"xperience-payments/internal/infra/logging"
	"xperience-payments/internal/infra/metrics"
	"xperience-payments/internal/infra/monitor"
	pay "xperience-payments/internal/infra/payment"
	"xperience-payments/internal/infra/rates"
	red "xperience-payments/internal/infra/redis"
	"xperience-payments/internal/infra/sched"
	"xperience-payments/internal/infra/web"
	"xperience-payments/internal/infra/worker"
	"xperience-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, sandbox rails)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Payment store ----
	var store repository.PaymentStore
	switch cfg.Store.Backend {
	case "postgres":
		if err := pg.Migrate(cfg.Database.URL); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect failed")
		}
		defer pool.Close()
		store = pg.NewPaymentRepo(pool)
	default:
		cli, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer cli.Close()
		store = red.NewPaymentStateRepo(cli)
	}

	// ---- Rates ----
	oracle := rates.NewCoinGecko(cfg.Rates.OracleURL, log)
	exchange := usecase.NewExchangeRates(oracle, cfg.Rates.TTL, log)
	go func() {
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		defer warmCancel()
		exchange.Warm(warmCtx)
	}()

	// ---- Providers ----
	pix := pay.NewPixProvider(cfg.Payment.Pix, log)
	btc := pay.NewBitcoinProvider(cfg.Payment.Bitcoin, exchange, store, log)
	usdt := pay.NewUsdtProvider(cfg.Payment.Usdt, exchange, store, log)
	github := pay.NewGitHubProvider(cfg.Payment.GitHub, log)

	paymentUC := usecase.NewPaymentUseCase(exchange, store, log, pix, btc, usdt, github)

	// ---- Background verification ----
	pool := worker.NewPool(cfg.Reconciler.Workers, log)
	pool.Start(ctx)
	defer pool.Stop()

	reconciler := sched.NewPaymentReconciler(paymentUC, store, pool, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, log)
	go reconciler.Start(ctx)

	launch := func(provider model.PaymentProvider, txID string) {
		m := monitor.New(paymentUC, provider, txID, monitor.ParamsFor(provider), monitor.RealClock(), log)
		results := m.Start(ctx)
		go func() {
			if status, ok := <-results; ok {
				log.Info().Str("tx", txID).Str("status", string(status)).Msg("monitor finished")
			}
		}()
	}

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Server.SessionSecret, !cfg.Runtime.Dev, cfg.Server.SessionTTL)
	srv := web.NewServer(paymentUC, pix, github, launch, auth, cfg.Server.APIKey, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}
	cancel()
}
