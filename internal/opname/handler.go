package opname

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Danu-Nur/lumbung-sub003/internal/platform/httpx"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// Handler wires HTTP endpoints for the opname workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the opname handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers opname routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/start", h.handleStart)
	r.Post("/{id}/counts", h.handleCount)
	r.Post("/{id}/finalize", h.handleFinalize)
	r.Post("/{id}/cancel", h.handleCancel)
}

type createRequest struct {
	Number      string `json:"number"`
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Note        string `json:"note"`
}

type countRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int64 `json:"qty" validate:"gte=0"`
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
	op, err := h.service.Create(r.Context(), CreateInput{
		TenantID:    id.TenantID,
		Number:      req.Number,
		WarehouseID: req.WarehouseID,
		Note:        req.Note,
		ActorID:     id.ActorID,
	})
	if err != nil {
		h.logger.Error("create opname", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, op)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start", func(ctx context.Context, tenantID, opnameID, _ int64) error {
		return h.service.Start(ctx, tenantID, opnameID)
	})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "finalize", h.service.Finalize)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", func(ctx context.Context, tenantID, opnameID, _ int64) error {
		return h.service.Cancel(ctx, tenantID, opnameID)
	})
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	opnameID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid opname id")
		return
	}
	var req countRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.RecordCount(r.Context(), id.TenantID, opnameID, req.ProductID, req.Qty, id.ActorID); err != nil {
		h.logger.Error("record count", slog.Int64("opname_id", opnameID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, tenantID, opnameID, actorID int64) error) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	opnameID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid opname id")
		return
	}
	if err := fn(r.Context(), id.TenantID, opnameID, id.ActorID); err != nil {
		h.logger.Error(action+" opname", slog.Int64("opname_id", opnameID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	op, lines, err := h.service.Get(r.Context(), id.TenantID, opnameID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"opname": op, "lines": lines})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	opnameID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid opname id")
		return
	}
	op, lines, err := h.service.Get(r.Context(), id.TenantID, opnameID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"opname": op, "lines": lines})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opnames, pagination, err := h.service.List(r.Context(), id.TenantID, page, perPage)
	if err != nil {
		h.logger.Error("list opnames", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"opnames": opnames, "pagination": pagination})
}
