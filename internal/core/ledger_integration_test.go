package core_test

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"sklad-ledger/internal/core"
	"sklad-ledger/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	if err := db.Migrate(ctx, dbURL, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	pool, err := db.NewPool(ctx, dbURL, 32)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE sklad_document_items, sklad_documents, stock_operations, balances, nomenclature, warehouses CASCADE;
	`)
	if err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}

	return pool
}

// fixture is one organization with a nomenclature item and two warehouses.
type fixture struct {
	org     core.OrganizationID
	actor   core.ActorID
	nom     *core.Nomenclature
	whA     *core.Warehouse
	whB     *core.Warehouse
	catalog core.CatalogService
}

func seedFixture(t *testing.T, pool *pgxpool.Pool) fixture {
	t.Helper()
	ctx := context.Background()
	catalog := core.NewCatalogService(pool)
	f := fixture{org: uuid.New(), actor: uuid.New(), catalog: catalog}

	var err error
	f.whA, err = catalog.CreateWarehouse(ctx, f.org, core.CreateWarehouseInput{Name: "Main warehouse", Code: "wh-a", Type: core.WarehouseMain})
	require.NoError(t, err)
	f.whB, err = catalog.CreateWarehouse(ctx, f.org, core.CreateWarehouseInput{Name: "Retail floor", Code: "wh-b", Type: core.WarehouseRetail})
	require.NoError(t, err)
	f.nom, err = catalog.CreateNomenclature(ctx, f.org, core.CreateNomenclatureInput{Name: "Bolt M8", Article: "blt-m8"})
	require.NoError(t, err)
	return f
}

func newTestLedger(pool *pgxpool.Pool) *core.Ledger {
	return core.NewLedger(pool, core.LedgerOptions{LockTimeout: 5 * time.Second})
}

func quantityAt(t *testing.T, balances core.BalanceStore, f fixture, wh *core.Warehouse) int {
	t.Helper()
	b, err := balances.GetBalance(context.Background(), f.org, f.nom.ID, wh.ID)
	require.NoError(t, err)
	return b.Quantity
}

func countOperations(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM stock_operations`).Scan(&n))
	return n
}

func receive(t *testing.T, ledger *core.Ledger, f fixture, wh *core.Warehouse, qty int) {
	t.Helper()
	_, err := ledger.Apply(context.Background(), core.OperationRequest{
		Type: core.OperationReceipt, NomenclatureID: f.nom.ID, Quantity: qty, ToWarehouseID: &wh.ID,
	}, f.org, f.actor)
	require.NoError(t, err)
}

func TestLedger_ReceiptAndTransfer(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	balances := core.NewBalanceStore(pool)
	ctx := context.Background()

	receive(t, ledger, f, f.whA, 10)

	// 1. RECEIPT of 5 onto 10
	op, err := ledger.Apply(ctx, core.OperationRequest{
		Type: core.OperationReceipt, NomenclatureID: f.nom.ID, Quantity: 5, ToWarehouseID: &f.whA.ID,
	}, f.org, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 15, quantityAt(t, balances, f, f.whA))
	assert.Equal(t, core.OperationReceipt, op.Type)
	assert.Equal(t, 5, op.Quantity)
	assert.Nil(t, op.FromWarehouseID)
	require.NotNil(t, op.ToWarehouseID)
	assert.Equal(t, f.whA.ID, *op.ToWarehouseID)
	assert.Equal(t, f.actor, op.PerformedBy)

	// 2. TRANSFER 10 from A to B
	_, err = ledger.Apply(ctx, core.OperationRequest{
		Type: core.OperationTransfer, NomenclatureID: f.nom.ID, Quantity: 10,
		FromWarehouseID: &f.whA.ID, ToWarehouseID: &f.whB.ID,
	}, f.org, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 5, quantityAt(t, balances, f, f.whA))
	assert.Equal(t, 10, quantityAt(t, balances, f, f.whB))
	assert.Equal(t, 3, countOperations(t, pool))
}

func TestLedger_InsufficientStockLeavesStateUnchanged(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	balances := core.NewBalanceStore(pool)
	ctx := context.Background()

	receive(t, ledger, f, f.whA, 5)
	before := countOperations(t, pool)

	// 3. SALE of 10 against 5
	_, err := ledger.Apply(ctx, core.OperationRequest{
		Type: core.OperationSale, NomenclatureID: f.nom.ID, Quantity: 10, FromWarehouseID: &f.whA.ID,
	}, f.org, f.actor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientStock))
	var ise *core.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 5, ise.Available)
	assert.Equal(t, 10, ise.Required)
	assert.Equal(t, f.whA.ID, ise.WarehouseID)

	assert.Equal(t, 5, quantityAt(t, balances, f, f.whA))
	assert.Equal(t, before, countOperations(t, pool))

	// A failed TRANSFER must not touch the destination either.
	_, err = ledger.Apply(ctx, core.OperationRequest{
		Type: core.OperationTransfer, NomenclatureID: f.nom.ID, Quantity: 6,
		FromWarehouseID: &f.whA.ID, ToWarehouseID: &f.whB.ID,
	}, f.org, f.actor)
	assert.True(t, errors.Is(err, core.ErrInsufficientStock))
	assert.Equal(t, 5, quantityAt(t, balances, f, f.whA))
	assert.Equal(t, 0, quantityAt(t, balances, f, f.whB))
	assert.Equal(t, before, countOperations(t, pool))
}

func TestLedger_Adjustment(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	balances := core.NewBalanceStore(pool)
	ctx := context.Background()

	receive(t, ledger, f, f.whA, 5)

	// 4. ADJUSTMENT -3 then -5
	_, err := ledger.Apply(ctx, core.OperationRequest{
		Type: core.OperationAdjustment, NomenclatureID: f.nom.ID, Quantity: -3, ToWarehouseID: &f.whA.ID,
	}, f.org, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 2, quantityAt(t, balances, f, f.whA))

	_, err = ledger.Apply(ctx, core.OperationRequest{
		Type: core.OperationAdjustment, NomenclatureID: f.nom.ID, Quantity: -5, ToWarehouseID: &f.whA.ID,
	}, f.org, f.actor)
	assert.True(t, errors.Is(err, core.ErrInsufficientStock))
	assert.Equal(t, 2, quantityAt(t, balances, f, f.whA))

	// With both sides supplied the destination is adjusted.
	op, err := ledger.Apply(ctx, core.OperationRequest{
		Type: core.OperationAdjustment, NomenclatureID: f.nom.ID, Quantity: 4,
		FromWarehouseID: &f.whA.ID, ToWarehouseID: &f.whB.ID,
	}, f.org, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 2, quantityAt(t, balances, f, f.whA))
	assert.Equal(t, 4, quantityAt(t, balances, f, f.whB))
	assert.NotNil(t, op.FromWarehouseID)
	assert.NotNil(t, op.ToWarehouseID)
}

func TestLedger_RejectionsByKind(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	ctx := context.Background()

	receive(t, ledger, f, f.whA, 3)
	before := countOperations(t, pool)

	missing := uuid.New()
	otherOrg := uuid.New()

	tests := []struct {
		name  string
		req   core.OperationRequest
		orgID core.OrganizationID
		kind  error
	}{
		{"zero quantity", core.OperationRequest{Type: core.OperationSale, NomenclatureID: f.nom.ID, Quantity: 0, FromWarehouseID: &f.whA.ID}, f.org, core.ErrValidation},
		{"unknown nomenclature", core.OperationRequest{Type: core.OperationReceipt, NomenclatureID: missing, Quantity: 1, ToWarehouseID: &f.whA.ID}, f.org, core.ErrNotFound},
		{"unknown warehouse", core.OperationRequest{Type: core.OperationReceipt, NomenclatureID: f.nom.ID, Quantity: 1, ToWarehouseID: &missing}, f.org, core.ErrNotFound},
		{"other organization", core.OperationRequest{Type: core.OperationReceipt, NomenclatureID: f.nom.ID, Quantity: 1, ToWarehouseID: &f.whA.ID}, otherOrg, core.ErrNotFound},
		{"unknown transfer destination", core.OperationRequest{Type: core.OperationTransfer, NomenclatureID: f.nom.ID, Quantity: 1, FromWarehouseID: &f.whA.ID, ToWarehouseID: &missing}, f.org, core.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Apply(ctx, tt.req, tt.orgID, f.actor)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}

	assert.Equal(t, before, countOperations(t, pool))
	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM balances`).Scan(&rows))
	assert.Equal(t, 1, rows, "rejected operations must not create balance rows")
}

func TestLedger_DeletedWarehouseIsInvisible(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	ctx := context.Background()

	require.NoError(t, f.catalog.DeleteWarehouse(ctx, f.org, f.whB.ID))

	_, err := ledger.Apply(ctx, core.OperationRequest{
		Type: core.OperationReceipt, NomenclatureID: f.nom.ID, Quantity: 1, ToWarehouseID: &f.whB.ID,
	}, f.org, f.actor)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestLedger_ConcurrentSales(t *testing.T) {
	const n = 20

	run := func(t *testing.T, sales int) (accepted, insufficient, final int) {
		pool := setupTestDB(t)
		defer pool.Close()

		f := seedFixture(t, pool)
		ledger := newTestLedger(pool)
		receive(t, ledger, f, f.whA, n)

		var (
			mu  sync.Mutex
			wg  sync.WaitGroup
			ctx = context.Background()
		)
		for i := 0; i < sales; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ledger.Apply(ctx, core.OperationRequest{
					Type: core.OperationSale, NomenclatureID: f.nom.ID, Quantity: 1, FromWarehouseID: &f.whA.ID,
				}, f.org, f.actor)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					accepted++
				case errors.Is(err, core.ErrInsufficientStock):
					insufficient++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		return accepted, insufficient, quantityAt(t, core.NewBalanceStore(pool), f, f.whA)
	}

	t.Run("exactly N", func(t *testing.T) {
		accepted, insufficient, final := run(t, n)
		assert.Equal(t, n, accepted)
		assert.Equal(t, 0, insufficient)
		assert.Equal(t, 0, final)
	})

	t.Run("N plus one", func(t *testing.T) {
		accepted, insufficient, final := run(t, n+1)
		assert.Equal(t, n, accepted)
		assert.Equal(t, 1, insufficient)
		assert.Equal(t, 0, final)
	})
}

func TestLedger_OppositeTransfersDoNotDeadlock(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	balances := core.NewBalanceStore(pool)
	receive(t, ledger, f, f.whA, 100)
	receive(t, ledger, f, f.whB, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := ledger.Apply(ctx, core.OperationRequest{
				Type: core.OperationTransfer, NomenclatureID: f.nom.ID, Quantity: 1,
				FromWarehouseID: &f.whA.ID, ToWarehouseID: &f.whB.ID,
			}, f.org, f.actor)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := ledger.Apply(ctx, core.OperationRequest{
				Type: core.OperationTransfer, NomenclatureID: f.nom.ID, Quantity: 1,
				FromWarehouseID: &f.whB.ID, ToWarehouseID: &f.whA.ID,
			}, f.org, f.actor)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	a := quantityAt(t, balances, f, f.whA)
	b := quantityAt(t, balances, f, f.whB)
	assert.Equal(t, 200, a+b, "transfers must conserve the total")
	assert.Equal(t, 100, a)
}

func TestLedger_UpdateThresholds(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	balances := core.NewBalanceStore(pool)
	ctx := context.Background()

	minQty, reserved := 10, 4
	b, err := ledger.UpdateThresholds(ctx, f.org, f.nom.ID, f.whA.ID, core.Thresholds{MinQuantity: &minQty, Reserved: &reserved})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Quantity)
	assert.Equal(t, 4, b.Reserved)
	require.NotNil(t, b.MinQuantity)
	assert.Equal(t, 10, *b.MinQuantity)

	// Reserved may exceed quantity; it is not enforced.
	receive(t, ledger, f, f.whA, 2)
	low, err := balances.ListBalances(ctx, f.org, core.BalanceFilter{LowStockOnly: true})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, f.whA.ID, low[0].WarehouseID)
	assert.Equal(t, -2, low[0].Available())

	ok, err := balances.CheckAvailable(ctx, f.nom.ID, f.whA.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	negative := -1
	_, err = ledger.UpdateThresholds(ctx, f.org, f.nom.ID, f.whA.ID, core.Thresholds{Reserved: &negative})
	assert.True(t, errors.Is(err, core.ErrValidation))
	_, err = ledger.UpdateThresholds(ctx, f.org, f.nom.ID, f.whA.ID, core.Thresholds{})
	assert.True(t, errors.Is(err, core.ErrValidation))
	huge := math.MaxInt32 + 1
	_, err = ledger.UpdateThresholds(ctx, f.org, f.nom.ID, f.whA.ID, core.Thresholds{MinQuantity: &huge})
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestBalanceStore_MissingBalanceIsZero(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	balances := core.NewBalanceStore(pool)
	ctx := context.Background()

	b, err := balances.GetBalance(ctx, f.org, f.nom.ID, f.whB.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Quantity)
	assert.Equal(t, 0, b.Reserved)

	ok, err := balances.CheckAvailable(ctx, f.nom.ID, f.whB.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = balances.GetBalance(ctx, uuid.New(), f.nom.ID, f.whB.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestBalanceStore_StockSummary(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	balances := core.NewBalanceStore(pool)
	ctx := context.Background()

	receive(t, ledger, f, f.whA, 7)
	receive(t, ledger, f, f.whB, 3)

	all, err := balances.StockSummary(ctx, f.org, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 10, all[0].Quantity)
	assert.Equal(t, "BLT-M8", all[0].Article)

	onlyB, err := balances.StockSummary(ctx, f.org, &f.whB.ID)
	require.NoError(t, err)
	require.Len(t, onlyB, 1)
	assert.Equal(t, 3, onlyB[0].Quantity)
}

// holdBalanceLock locks the balance row in a separate transaction until the
// returned release func is called.
func holdBalanceLock(t *testing.T, pool *pgxpool.Pool, f fixture, wh *core.Warehouse) (release func()) {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `
		SELECT quantity FROM balances WHERE nomenclature_id = $1 AND warehouse_id = $2 FOR UPDATE
	`, f.nom.ID, wh.ID)
	require.NoError(t, err)
	return func() { _ = tx.Rollback(ctx) }
}

// waitForLockWaiters blocks until n backends are waiting on a lock.
func waitForLockWaiters(t *testing.T, pool *pgxpool.Pool, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var waiting int
		require.NoError(t, pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM pg_locks WHERE NOT granted`).Scan(&waiting))
		if waiting >= n {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no backend started waiting on a lock")
}

func TestLedger_LockTimeoutIsRetryableAndChangesNothing(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	balances := core.NewBalanceStore(pool)
	receive(t, newTestLedger(pool), f, f.whA, 5)
	before := countOperations(t, pool)

	ledger := core.NewLedger(pool, core.LedgerOptions{LockTimeout: 200 * time.Millisecond})
	release := holdBalanceLock(t, pool, f, f.whA)

	start := time.Now()
	_, err := ledger.Apply(context.Background(), core.OperationRequest{
		Type: core.OperationTransfer, NomenclatureID: f.nom.ID, Quantity: 2,
		FromWarehouseID: &f.whA.ID, ToWarehouseID: &f.whB.ID,
	}, f.org, f.actor)
	release()

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPersistence), "got %v", err)
	assert.True(t, core.IsRetryable(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, 5, quantityAt(t, balances, f, f.whA))
	assert.Equal(t, 0, quantityAt(t, balances, f, f.whB))
	assert.Equal(t, before, countOperations(t, pool))
}

func TestLedger_CancelledApplyChangesNothing(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	balances := core.NewBalanceStore(pool)
	receive(t, ledger, f, f.whA, 5)
	receive(t, ledger, f, f.whB, 1)
	before := countOperations(t, pool)

	// Already cancelled: nothing starts.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ledger.Apply(cancelled, core.OperationRequest{
		Type: core.OperationReceipt, NomenclatureID: f.nom.ID, Quantity: 1, ToWarehouseID: &f.whA.ID,
	}, f.org, f.actor)
	require.Error(t, err)
	assert.False(t, core.IsRetryable(err), "a caller cancellation must not be retried")

	// Cancelled mid-transaction while waiting for the second row of a transfer.
	release := holdBalanceLock(t, pool, f, f.whB)
	ctx, cancelWait := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ledger.Apply(ctx, core.OperationRequest{
			Type: core.OperationTransfer, NomenclatureID: f.nom.ID, Quantity: 3,
			FromWarehouseID: &f.whA.ID, ToWarehouseID: &f.whB.ID,
		}, f.org, f.actor)
		done <- err
	}()
	waitForLockWaiters(t, pool, 1)
	cancelWait()
	err = <-done
	release()

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPersistence), "got %v", err)
	assert.Equal(t, 5, quantityAt(t, balances, f, f.whA))
	assert.Equal(t, 1, quantityAt(t, balances, f, f.whB))
	assert.Equal(t, before, countOperations(t, pool))
}

func TestOperationLog_LockWaiterSortsAfterEarlierCommits(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	receive(t, ledger, f, f.whA, 5)
	receive(t, ledger, f, f.whB, 5)

	release := holdBalanceLock(t, pool, f, f.whA)
	done := make(chan error, 1)
	go func() {
		_, err := ledger.Apply(context.Background(), core.OperationRequest{
			Type: core.OperationSale, NomenclatureID: f.nom.ID, Quantity: 1, FromWarehouseID: &f.whA.ID,
		}, f.org, f.actor)
		done <- err
	}()
	waitForLockWaiters(t, pool, 1)

	// Commits while the sale above is still waiting.
	_, err := ledger.Apply(context.Background(), core.OperationRequest{
		Type: core.OperationDisposal, NomenclatureID: f.nom.ID, Quantity: 1, FromWarehouseID: &f.whB.ID,
	}, f.org, f.actor)
	require.NoError(t, err)

	release()
	require.NoError(t, <-done)

	ops, err := core.NewOperationLog(pool).List(context.Background(), core.OperationFilter{OrganizationID: f.org, Limit: 2})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, core.OperationSale, ops[0].Type, "the waiter committed last and is newest")
	assert.Equal(t, core.OperationDisposal, ops[1].Type)
	assert.False(t, ops[0].CreatedAt.Before(ops[1].CreatedAt))
}

func TestLedger_BalanceCannotExceedColumnRange(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	f := seedFixture(t, pool)
	ledger := newTestLedger(pool)
	balances := core.NewBalanceStore(pool)

	receive(t, ledger, f, f.whA, 2_000_000_000)
	before := countOperations(t, pool)

	_, err := ledger.Apply(context.Background(), core.OperationRequest{
		Type: core.OperationReceipt, NomenclatureID: f.nom.ID, Quantity: 2_000_000_000, ToWarehouseID: &f.whA.ID,
	}, f.org, f.actor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation), "got %v", err)
	assert.False(t, core.IsRetryable(err))

	assert.Equal(t, 2_000_000_000, quantityAt(t, balances, f, f.whA))
	assert.Equal(t, before, countOperations(t, pool))
}
