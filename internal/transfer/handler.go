package transfer

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

// Handler wires HTTP endpoints for the transfer workflow.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/send", h.handleSend)
	r.Post("/{id}/complete", h.handleComplete)
	r.Post("/{id}/cancel", h.handleCancel)
}

type createRequest struct {
	Number        string        `json:"number"`
	SourceID      int64         `json:"source_warehouse_id" validate:"required,gt=0"`
	DestinationID int64         `json:"destination_warehouse_id" validate:"required,gt=0"`
	Note          string        `json:"note"`
	Lines         []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int64 `json:"qty" validate:"required,gt=0"`
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
	in := CreateInput{
		TenantID:      id.TenantID,
		Number:        req.Number,
		SourceID:      req.SourceID,
		DestinationID: req.DestinationID,
		Note:          req.Note,
		ActorID:       id.ActorID,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput{ProductID: line.ProductID, Qty: line.Qty})
	}
	tr, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tr)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "send", h.service.Send)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "complete", h.service.Complete)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", func(ctx context.Context, tenantID, transferID, _ int64) error {
		return h.service.Cancel(ctx, tenantID, transferID)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, tenantID, transferID, actorID int64) error) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	transferID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	if err := fn(r.Context(), id.TenantID, transferID, id.ActorID); err != nil {
		h.logger.Error(action+" transfer", slog.Int64("transfer_id", transferID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	tr, lines, err := h.service.Get(r.Context(), id.TenantID, transferID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfer": tr, "lines": lines})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	transferID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	tr, lines, err := h.service.Get(r.Context(), id.TenantID, transferID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfer": tr, "lines": lines})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	transfers, pagination, err := h.service.List(r.Context(), id.TenantID, page, perPage)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers, "pagination": pagination})
}
