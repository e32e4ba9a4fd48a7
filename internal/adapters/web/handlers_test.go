package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sklad-ledger/internal/core"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	errs  []error
	calls int
	last  core.OperationRequest
	org   core.OrganizationID
	actor core.ActorID
}

func (f *fakeLedger) Apply(_ context.Context, req core.OperationRequest, orgID core.OrganizationID, actorID core.ActorID) (*core.StockOperation, error) {
	f.calls++
	f.last, f.org, f.actor = req, orgID, actorID
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &core.StockOperation{
		ID:              uuid.New(),
		Seq:             int64(f.calls),
		OrganizationID:  orgID,
		Type:            req.Type,
		NomenclatureID:  req.NomenclatureID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		PerformedBy:     actorID,
		Metadata:        map[string]any{},
	}, nil
}

func (f *fakeLedger) UpdateThresholds(_ context.Context, _ core.OrganizationID, nomenclatureID, warehouseID uuid.UUID, th core.Thresholds) (*core.Balance, error) {
	b := &core.Balance{NomenclatureID: nomenclatureID, WarehouseID: warehouseID, Quantity: 4, MinQuantity: th.MinQuantity}
	if th.Reserved != nil {
		b.Reserved = *th.Reserved
	}
	return b, nil
}

type fakeOperationLog struct {
	core.OperationLog
	filter core.OperationFilter
}

func (f *fakeOperationLog) List(_ context.Context, filter core.OperationFilter) ([]core.StockOperation, error) {
	f.filter = filter
	return nil, nil
}

func (f *fakeOperationLog) Get(_ context.Context, _ core.OrganizationID, id uuid.UUID) (*core.StockOperation, error) {
	return nil, &core.Error{Kind: core.ErrNotFound, Detail: "stock operation " + id.String() + " not found"}
}

type fakeBalances struct {
	core.BalanceStore
}

func (fakeBalances) GetBalance(_ context.Context, _ core.OrganizationID, nomenclatureID, warehouseID uuid.UUID) (*core.Balance, error) {
	minQty := 5
	return &core.Balance{NomenclatureID: nomenclatureID, WarehouseID: warehouseID, Quantity: 3, Reserved: 1, MinQuantity: &minQty}, nil
}

var (
	testOrg   = uuid.MustParse("0b7c5a2e-7f0e-4a57-9a43-1d6f3c1e0a01")
	testActor = uuid.MustParse("5f1d7c3b-2e4a-4b8c-9d6e-7a8b9c0d1e02")
)

func newTestHandler(svc Services) http.Handler {
	return NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func doRequest(h http.Handler, method, path, body string, withIdentity bool) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if withIdentity {
		req.Header.Set("X-Organization-ID", testOrg.String())
		req.Header.Set("X-Actor-ID", testActor.String())
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	w := doRequest(newTestHandler(Services{}), http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAPI_RequiresIdentity(t *testing.T) {
	w := doRequest(newTestHandler(Services{}), http.MethodGet, "/api/operations", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Code)
}

func TestApplyOperation_Created(t *testing.T) {
	ledger := &fakeLedger{}
	h := newTestHandler(Services{Ledger: ledger})

	nomenclatureID, from, to := uuid.New(), uuid.New(), uuid.New()
	body := `{"operation_type":"TRANSFER","nomenclature_id":"` + nomenclatureID.String() +
		`","quantity":10,"from_warehouse_id":"` + from.String() + `","to_warehouse_id":"` + to.String() +
		`","comment":"restock","metadata":{"doc":"A-1"}}`
	w := doRequest(h, http.MethodPost, "/api/operations", body, true)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, core.OperationTransfer, ledger.last.Type)
	assert.Equal(t, nomenclatureID, ledger.last.NomenclatureID)
	assert.Equal(t, 10, ledger.last.Quantity)
	require.NotNil(t, ledger.last.FromWarehouseID)
	assert.Equal(t, from, *ledger.last.FromWarehouseID)
	assert.Equal(t, "A-1", ledger.last.Metadata["doc"])
	assert.Equal(t, testOrg, ledger.org)
	assert.Equal(t, testActor, ledger.actor)

	var op core.StockOperation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &op))
	assert.Equal(t, core.OperationTransfer, op.Type)
	assert.Equal(t, testActor, op.PerformedBy)
}

func TestApplyOperation_ErrorMapping(t *testing.T) {
	nomenclatureID, warehouseID := uuid.New(), uuid.New()
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &core.Error{Kind: core.ErrValidation, Detail: "SALE requires from_warehouse_id"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", &core.Error{Kind: core.ErrNotFound, Detail: "warehouse missing"}, http.StatusNotFound, "NOT_FOUND"},
		{"insufficient", &core.InsufficientStockError{NomenclatureID: nomenclatureID, WarehouseID: warehouseID, Available: 5, Required: 10}, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK"},
		{"conflict", &core.Error{Kind: core.ErrConflict, Detail: "duplicate"}, http.StatusConflict, "CONFLICT"},
		{"persistence", &core.Error{Kind: core.ErrPersistence, Detail: "lock wait aborted"}, http.StatusServiceUnavailable, "PERSISTENCE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{errs: []error{tt.err}}
			h := newTestHandler(Services{Ledger: ledger})
			body := `{"operation_type":"SALE","nomenclature_id":"` + nomenclatureID.String() + `","quantity":10,"from_warehouse_id":"` + warehouseID.String() + `"}`

			w := doRequest(h, http.MethodPost, "/api/operations", body, true)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestApplyOperation_InsufficientStockDetails(t *testing.T) {
	nomenclatureID, warehouseID := uuid.New(), uuid.New()
	ledger := &fakeLedger{errs: []error{&core.InsufficientStockError{NomenclatureID: nomenclatureID, WarehouseID: warehouseID, Available: 5, Required: 10}}}
	h := newTestHandler(Services{Ledger: ledger})
	body := `{"operation_type":"SALE","nomenclature_id":"` + nomenclatureID.String() + `","quantity":10,"from_warehouse_id":"` + warehouseID.String() + `"}`

	w := doRequest(h, http.MethodPost, "/api/operations", body, true)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Details insufficientStockDetails `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Details.Available)
	assert.Equal(t, 10, resp.Details.Required)
	assert.Equal(t, warehouseID.String(), resp.Details.WarehouseID)
}

func TestApplyOperation_RetriesPersistenceFailure(t *testing.T) {
	ledger := &fakeLedger{errs: []error{&core.Error{Kind: core.ErrPersistence, Detail: "lock wait aborted"}, nil}}
	h := newTestHandler(Services{Ledger: ledger, RetryAttempts: 2})
	body := `{"operation_type":"RECEIPT","nomenclature_id":"` + uuid.NewString() + `","quantity":3,"to_warehouse_id":"` + uuid.NewString() + `"}`

	w := doRequest(h, http.MethodPost, "/api/operations", body, true)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 2, ledger.calls)
}

func TestApplyOperation_BadPayload(t *testing.T) {
	ledger := &fakeLedger{}
	h := newTestHandler(Services{Ledger: ledger})

	w := doRequest(h, http.MethodPost, "/api/operations", `{"operation_type":"SALE","nomenclature_id":"not-a-uuid"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(h, http.MethodPost, "/api/operations", `{"quantity":1}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Code)

	assert.Zero(t, ledger.calls)
}

func TestListOperations_Filter(t *testing.T) {
	log := &fakeOperationLog{}
	h := newTestHandler(Services{Operations: log})
	warehouseID := uuid.New()

	w := doRequest(h, http.MethodGet, "/api/operations?operation_type=SALE&warehouse_id="+warehouseID.String()+"&offset=20&limit=5", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, testOrg, log.filter.OrganizationID)
	require.NotNil(t, log.filter.Type)
	assert.Equal(t, core.OperationSale, *log.filter.Type)
	require.NotNil(t, log.filter.WarehouseID)
	assert.Equal(t, warehouseID, *log.filter.WarehouseID)
	assert.Nil(t, log.filter.NomenclatureID)
	assert.Equal(t, 20, log.filter.Offset)
	assert.Equal(t, 5, log.filter.Limit)

	w = doRequest(h, http.MethodGet, "/api/operations?limit=ten", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOperation_NotFound(t *testing.T) {
	h := newTestHandler(Services{Operations: &fakeOperationLog{}})
	w := doRequest(h, http.MethodGet, "/api/operations/"+uuid.NewString(), "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(h, http.MethodGet, "/api/operations/42", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBalance_DerivedFields(t *testing.T) {
	h := newTestHandler(Services{Balances: fakeBalances{}})
	w := doRequest(h, http.MethodGet, "/api/balances/"+uuid.NewString()+"/"+uuid.NewString(), "", true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 3, resp["quantity"])
	assert.EqualValues(t, 2, resp["available"])
	assert.Equal(t, true, resp["below_minimum"])
}

func TestUpdateThresholds(t *testing.T) {
	h := newTestHandler(Services{Ledger: &fakeLedger{}})
	path := "/api/balances/" + uuid.NewString() + "/" + uuid.NewString() + "/thresholds"

	w := doRequest(h, http.MethodPatch, path, `{"reserved":2,"min_quantity":10}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp["reserved"])
	assert.EqualValues(t, 10, resp["min_quantity"])

	w = doRequest(h, http.MethodPatch, path, `{"reserved":-1}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	core.NewMetrics(reg)
	h := newTestHandler(Services{Gatherer: reg})

	w := doRequest(h, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(newTestHandler(Services{}), http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	h := NewHandler(Services{}, slog.New(slog.NewTextHandler(io.Discard, nil)), []string{"https://sklad.example"})

	req := httptest.NewRequest(http.MethodOptions, "/api/operations", nil)
	req.Header.Set("Origin", "https://sklad.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://sklad.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
