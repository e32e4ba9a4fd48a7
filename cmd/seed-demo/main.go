// seed-demo creates a demo organization with two warehouses, a few products
// and opening stock, so the API and skladctl have something to show.
//
// Usage: go run ./cmd/seed-demo
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"sklad-ledger/internal/config"
	"sklad-ledger/internal/core"
	"sklad-ledger/internal/db"

	"github.com/google/uuid"
)

var demoProducts = []core.CreateNomenclatureInput{
	{Name: "Bolt M8x40", Article: "BLT-M8-40", Unit: "pcs"},
	{Name: "Nut M8", Article: "NUT-M8", Unit: "pcs"},
	{Name: "Washer 8mm", Article: "WSH-8", Unit: "pcs"},
	{Name: "Machine oil", Article: "OIL-1L", Unit: "l"},
}

func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	if err := db.Migrate(ctx, cfg.Postgres.DSN, nil); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	orgID := uuid.New()
	if raw := os.Getenv("SKLAD_ORGANIZATION_ID"); raw != "" {
		if orgID, err = uuid.Parse(raw); err != nil {
			log.Fatalf("SKLAD_ORGANIZATION_ID must be a UUID: %v", err)
		}
	}
	actorID := uuid.New()

	catalog := core.NewCatalogService(pool)
	ledger := core.NewLedger(pool, core.LedgerOptions{LockTimeout: cfg.Ledger.LockTimeout})

	log.Println("Creating warehouses...")
	central, err := catalog.CreateWarehouse(ctx, orgID, core.CreateWarehouseInput{
		Name: "Central warehouse", Code: "DEMO-MAIN", Type: core.WarehouseMain,
	})
	if errors.Is(err, core.ErrConflict) {
		log.Fatalf("Demo data already present (warehouse code DEMO-MAIN is taken)")
	}
	if err != nil {
		log.Fatalf("Failed to create warehouse: %v", err)
	}
	shop, err := catalog.CreateWarehouse(ctx, orgID, core.CreateWarehouseInput{
		Name: "Shop floor", Code: "DEMO-SHOP", Type: core.WarehouseRetail,
	})
	if err != nil {
		log.Fatalf("Failed to create warehouse: %v", err)
	}

	log.Println("Creating nomenclature and opening stock...")
	for i, in := range demoProducts {
		n, err := catalog.CreateNomenclature(ctx, orgID, in)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", in.Article, err)
		}
		comment := "opening balance"
		if _, err := ledger.Apply(ctx, core.OperationRequest{
			Type: core.OperationReceipt, NomenclatureID: n.ID, Quantity: 100 * (i + 1),
			ToWarehouseID: &central.ID, Comment: &comment,
		}, orgID, actorID); err != nil {
			log.Fatalf("Failed to receive %s: %v", in.Article, err)
		}
		if _, err := ledger.Apply(ctx, core.OperationRequest{
			Type: core.OperationTransfer, NomenclatureID: n.ID, Quantity: 10,
			FromWarehouseID: &central.ID, ToWarehouseID: &shop.ID,
		}, orgID, actorID); err != nil {
			log.Fatalf("Failed to stock shop with %s: %v", in.Article, err)
		}
	}

	log.Printf("Seed data created for organization %s (actor %s).", orgID, actorID)
}
