package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"sklad-ledger/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services bundles the core components the HTTP adapter drives.
type Services struct {
	Catalog    core.CatalogService
	Balances   core.BalanceStore
	Operations core.OperationLog
	Ledger     core.LedgerService
	Documents  core.DocumentService

	// Gatherer, when set, is exposed at /metrics.
	Gatherer prometheus.Gatherer

	// RetryAttempts is how many times a retryable apply is repeated.
	RetryAttempts uint64
}

// Handler holds the core services the routes call.
type Handler struct {
	svc      Services
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc Services, logger *slog.Logger, allowedOrigins []string) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		svc:      svc,
		logger:   logger,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/health", h.health)
	if svc.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{}))
	}

	// ── API (identity supplied by the upstream auth layer) ───────────────────
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// Ledger
		r.Post("/operations", h.applyOperation)
		r.Get("/operations", h.listOperations)
		r.Get("/operations/{operationID}", h.getOperation)

		// Balances
		r.Get("/balances", h.listBalances)
		r.Get("/balances/{nomenclatureID}/{warehouseID}", h.getBalance)
		r.Patch("/balances/{nomenclatureID}/{warehouseID}/thresholds", h.updateThresholds)
		r.Get("/reports/stock.xlsx", h.stockReport)

		// Catalog
		r.Get("/warehouses", h.listWarehouses)
		r.Post("/warehouses", h.createWarehouse)
		r.Get("/warehouses/{warehouseID}", h.getWarehouse)
		r.Delete("/warehouses/{warehouseID}", h.deleteWarehouse)
		r.Get("/nomenclature", h.listNomenclature)
		r.Post("/nomenclature", h.createNomenclature)
		r.Get("/nomenclature/{nomenclatureID}", h.getNomenclature)
		r.Delete("/nomenclature/{nomenclatureID}", h.deleteNomenclature)

		// Documents
		r.Get("/documents", h.listDocuments)
		r.Post("/documents", h.createDocument)
		r.Get("/documents/{documentID}", h.getDocument)
		r.Patch("/documents/{documentID}", h.updateDocument)
		r.Delete("/documents/{documentID}", h.deleteDocument)
		r.Get("/documents/{documentID}/items", h.listItems)
		r.Post("/documents/{documentID}/items", h.addItem)
		r.Get("/items/{itemID}", h.getItem)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.deleteItem)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON decodes the request body into v and validates its tags. It
// writes the error response and returns false on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, r, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
		return false
	}
	return true
}

// pathUUID parses the named URL parameter. It writes a 400 and returns false
// when the value is not a UUID.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, name+" must be a UUID", "BAD_REQUEST", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// queryUUID parses an optional query parameter.
func queryUUID(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, name+" must be a UUID", "BAD_REQUEST", http.StatusBadRequest)
		return nil, false
	}
	return &id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, name+" must be an integer", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
