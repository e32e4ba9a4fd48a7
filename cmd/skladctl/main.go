package main

import (
	"context"
	"flag"
	"log"
	"os"

	"sklad-ledger/internal/adapters/cli"
	"sklad-ledger/internal/config"
	"sklad-ledger/internal/core"
	"sklad-ledger/internal/db"
	"sklad-ledger/internal/logger"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	orgFlag := flag.String("org", os.Getenv("SKLAD_ORGANIZATION_ID"), "organization id to act in")
	actorFlag := flag.String("actor", os.Getenv("SKLAD_ACTOR_ID"), "actor id recorded on writes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	orgID, err := uuid.Parse(*orgFlag)
	if err != nil {
		log.Fatalf("-org (or SKLAD_ORGANIZATION_ID) must be a UUID: %v", err)
	}
	actorID, err := uuid.Parse(*actorFlag)
	if err != nil {
		log.Fatalf("-actor (or SKLAD_ACTOR_ID) must be a UUID: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	svc := cli.Services{
		Ledger: core.NewLedger(pool, core.LedgerOptions{
			Logger:       logger.NewWithWriter(os.Stderr, cfg.App.Env),
			LockTimeout:  cfg.Ledger.LockTimeout,
			ApplyTimeout: cfg.Ledger.ApplyTimeout,
		}),
		Balances:      core.NewBalanceStore(pool),
		Operations:    core.NewOperationLog(pool),
		RetryAttempts: cfg.Ledger.RetryAttempts,
	}
	scope := cli.Scope{OrganizationID: orgID, ActorID: actorID}

	if err := cli.Run(ctx, svc, scope, flag.Args(), os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
