package importer

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Danu-Nur/lumbung-sub003/internal/platform/httpx"
	"github.com/Danu-Nur/lumbung-sub003/internal/shared"
)

// maxUploadBytes bounds the accepted spreadsheet size.
const maxUploadBytes = 8 << 20

// Handler wires the bulk import endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the import handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleImport)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form with a file field required")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file field required")
		return
	}
	defer file.Close()

	result, err := h.service.Import(r.Context(), id.TenantID, id.ActorID, file)
	if err != nil {
		h.logger.Error("import", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if len(result.Errors) > 0 {
		// partial success still reports 200 with the row errors listed;
		// 422 is reserved for a file that imported nothing
		if result.Imported == 0 {
			status = http.StatusUnprocessableEntity
		}
	}
	httpx.JSON(w, status, result)
}
