package adjustment

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Danu-Nur/lumbung-sub003/internal/platform/httpx"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Handler wires HTTP endpoints for the adjustment workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the adjustment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/reverse", h.handleReverse)
}

type createRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Direction   string `json:"direction" validate:"required,oneof=increase decrease"`
	Qty         int64  `json:"qty" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required"`
	Note        string `json:"note"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adj, err := h.service.Create(r.Context(), CreateInput{
		TenantID:    id.TenantID,
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Direction:   Direction(req.Direction),
		Qty:         req.Qty,
		Reason:      req.Reason,
		Note:        req.Note,
		ActorID:     id.ActorID,
	})
	if err != nil {
		h.logger.Error("create adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	adjustmentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	reversal, err := h.service.Reverse(r.Context(), id.TenantID, adjustmentID, id.ActorID)
	if err != nil {
		h.logger.Error("reverse adjustment", slog.Int64("adjustment_id", adjustmentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	adjustmentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	adj, err := h.service.Get(r.Context(), id.TenantID, adjustmentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	adjustments, pagination, err := h.service.List(r.Context(), id.TenantID, page, perPage)
	if err != nil {
		h.logger.Error("list adjustments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": adjustments, "pagination": pagination})
}
