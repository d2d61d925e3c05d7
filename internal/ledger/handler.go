package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Danu-Nur/lumbung-sub003/internal/platform/httpx"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Handler exposes read access to batches and movement history.
type Handler struct {
	logger   *slog.Logger
	recorder *Recorder
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, recorder *Recorder) *Handler {
	return &Handler{logger: logger, recorder: recorder}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/batches", h.handleListBatches)
	r.Get("/movements", h.handleListMovements)
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	batches, err := h.recorder.ListBatches(r.Context(), id.TenantID, warehouseID)
	if err != nil {
		h.logger.Error("list batches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	q := r.URL.Query()
	filter := MovementFilter{TenantID: id.TenantID}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.Kind = MovementKind(q.Get("kind"))
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		// end of day
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	movements, page, err := h.recorder.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements, "pagination": page})
}
