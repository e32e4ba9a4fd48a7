package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webAdapter "sklad-ledger/internal/adapters/web"
	"sklad-ledger/internal/config"
	"sklad-ledger/internal/core"
	"sklad-ledger/internal/db"
	"sklad-ledger/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("prod").Error("config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.AutoMigrate {
		if err := db.Migrate(ctx, cfg.Postgres.DSN, log); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.Error("database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("db connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(reg)

	ledger := core.NewLedger(pool, core.LedgerOptions{
		Logger:       log,
		Metrics:      metrics,
		LockTimeout:  cfg.Ledger.LockTimeout,
		ApplyTimeout: cfg.Ledger.ApplyTimeout,
	})
	svc := webAdapter.Services{
		Catalog:       core.NewCatalogService(pool),
		Balances:      core.NewBalanceStore(pool),
		Operations:    core.NewOperationLog(pool),
		Ledger:        ledger,
		Documents:     core.NewDocumentService(pool, log, metrics),
		RetryAttempts: cfg.Ledger.RetryAttempts,
	}
	if cfg.Metrics.Enabled {
		svc.Gatherer = reg
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           webAdapter.NewHandler(svc, log, cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			stop()
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
